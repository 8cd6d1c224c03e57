package handlers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"school-evoting-backend/cache"
)

// ElectionStatus reports whether voting is open right now. Public: the
// frontend polls it to decide which screen to show.
func ElectionStatus(c *gin.Context) {
	schedule, err := electionSvc.CurrentSchedule(c.Request.Context())
	if err != nil {
		log.Printf("loading election schedule failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "election state unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"voting_open": schedule.IsOpenAt(time.Now()),
		"start_time":  schedule.StartTime,
		"end_time":    schedule.EndTime,
	})
}

// SetVotingOpenInput toggles the master voting switch.
type SetVotingOpenInput struct {
	Open *bool `json:"open" binding:"required"`
}

// SetVotingOpen opens or closes voting. Admin only.
func SetVotingOpen(c *gin.Context) {
	var input SetVotingOpenInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "open is required"})
		return
	}

	schedule, err := electionSvc.SetVotingOpen(c.Request.Context(), *input.Open)
	if err != nil {
		log.Printf("updating election state failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update election state"})
		return
	}

	if turnoutHub != nil {
		turnoutHub.BroadcastElectionState(schedule.VotingOpen)
	}

	c.JSON(http.StatusOK, gin.H{
		"voting_open": schedule.VotingOpen,
		"start_time":  schedule.StartTime,
		"end_time":    schedule.EndTime,
	})
}

// SetWindowInput sets or clears the scheduled voting window. A null bound
// clears that side of the window.
type SetWindowInput struct {
	StartTime *time.Time `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
}

// SetElectionWindow updates the scheduled voting window. Admin only.
func SetElectionWindow(c *gin.Context) {
	var input SetWindowInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid window"})
		return
	}

	if input.StartTime != nil && input.EndTime != nil && !input.EndTime.After(*input.StartTime) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end_time must be after start_time"})
		return
	}

	schedule, err := electionSvc.SetWindow(c.Request.Context(), input.StartTime, input.EndTime)
	if err != nil {
		log.Printf("updating election window failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update election window"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"voting_open": schedule.VotingOpen,
		"start_time":  schedule.StartTime,
		"end_time":    schedule.EndTime,
	})
}

// GetResults returns the anonymized tally with turnout. Admin only; served
// through the tally cache when Redis is available.
func GetResults(c *gin.Context) {
	results, err := currentResults()
	if err != nil {
		log.Printf("computing results failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "results unavailable"})
		return
	}
	c.JSON(http.StatusOK, results)
}

// ResetElection wipes all votes and tokens and closes voting. Guarded by a
// distributed lock so two admins cannot race the wipe.
func ResetElection(c *gin.Context) {
	err := cache.GetLockService().WithLock("election_reset", 30*time.Second, func() error {
		return electionSvc.ResetElection(c.Request.Context())
	})
	if err != nil {
		if errors.Is(err, cache.ErrLockNotAcquired) {
			c.JSON(http.StatusConflict, gin.H{"error": "a reset is already in progress"})
			return
		}
		log.Printf("resetting election failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reset failed"})
		return
	}

	if tallyCache != nil {
		tallyCache.Invalidate(c.Request.Context())
	}
	if turnoutHub != nil {
		turnoutHub.BroadcastElectionState(false)
	}

	c.JSON(http.StatusOK, gin.H{"status": "election reset"})
}
