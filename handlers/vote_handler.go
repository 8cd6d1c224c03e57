package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"school-evoting-backend/service"
)

// CastVoteInput is a ballot submission. The voter comes from the session,
// never from the request body.
type CastVoteInput struct {
	CandidateID uint `json:"candidate_id" binding:"required"`
}

// CastVote records the authenticated voter's ballot. On success the
// response is an opaque receipt; it does not echo the candidate, so the
// response alone cannot prove how someone voted.
func CastVote(c *gin.Context) {
	var input CastVoteInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "candidate_id is required"})
		return
	}

	voterID := c.GetUint(ctxVoterID)

	schedule, err := electionSvc.CurrentSchedule(c.Request.Context())
	if err != nil {
		log.Printf("loading election schedule failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "vote could not be processed"})
		return
	}

	receipt, err := votingSvc.CastVote(c.Request.Context(), voterID, input.CandidateID, schedule)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnauthenticated):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "not authorized to vote"})
		case errors.Is(err, service.ErrVotingClosed):
			c.JSON(http.StatusForbidden, gin.H{"error": "voting is closed"})
		case errors.Is(err, service.ErrAlreadyVoted):
			c.JSON(http.StatusForbidden, gin.H{"error": "you have already voted"})
		case errors.Is(err, service.ErrInvalidCandidate):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid candidate"})
		default:
			log.Printf("casting vote failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "vote could not be processed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "accepted",
		"confirmation": receipt.Confirmation,
		"cast_at":      receipt.CastAt,
	})
}
