package service

import (
	"context"
	"errors"
	"log"
	"time"

	"school-evoting-backend/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CastVoteReceipt is the opaque confirmation returned on success. It never
// carries the chosen candidate, so a voter cannot prove their choice from
// the response alone.
type CastVoteReceipt struct {
	Confirmation string    `json:"confirmation"`
	CastAt       time.Time `json:"cast_at"`
}

// VoteRecorded is the post-commit notification for a successful vote. It
// carries no voter identity so downstream consumers (audit queue, live
// turnout feed) cannot link a voter to a candidate.
type VoteRecorded struct {
	CandidateID uint
	CastAt      time.Time
}

// VoteNotifier receives post-commit vote notifications. Implementations
// must not block: a failed notification never unwinds a committed vote.
type VoteNotifier interface {
	VoteRecorded(event VoteRecorded)
}

// VotingService decides whether a vote is admissible and records it
// exactly once.
type VotingService interface {
	CastVote(ctx context.Context, voterID, candidateID uint, schedule ElectionSchedule) (*CastVoteReceipt, error)
}

type votingService struct {
	db       *gorm.DB
	notifier VoteNotifier
}

// NewVotingService creates the voting transaction service. notifier may be
// nil when no post-commit consumers are wired (tests do this).
func NewVotingService(db *gorm.DB, notifier VoteNotifier) VotingService {
	return &votingService{db: db, notifier: notifier}
}

// CastVote validates the vote preconditions in order and, if admissible,
// commits the vote row, the voter flag and the token consumption as one
// transaction. Duplicate submissions lose on one of three independent
// guards: the has_voted conditional update, the is_used conditional update,
// or the unique index on votes.voter_id. No partial state ever commits.
func (s *votingService) CastVote(ctx context.Context, voterID, candidateID uint, schedule ElectionSchedule) (*CastVoteReceipt, error) {
	now := time.Now()

	var voter models.Voter
	if err := s.db.WithContext(ctx).First(&voter, voterID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}

	if !schedule.IsOpenAt(now) {
		return nil, ErrVotingClosed
	}

	if voter.HasVoted {
		return nil, ErrAlreadyVoted
	}

	var candidate models.Candidate
	err := s.db.WithContext(ctx).
		Where("id = ? AND is_active = ?", candidateID, true).
		First(&candidate).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCandidate
		}
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Voter{}).
			Where("id = ? AND has_voted = ?", voter.ID, false).
			Update("has_voted", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyVoted
		}

		res = tx.Model(&models.VoteToken{}).
			Where("voter_id = ? AND is_used = ?", voter.ID, false).
			Updates(map[string]interface{}{"is_used": true, "used_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Either the token was consumed by a concurrent cast, or the
			// voter never held one. The latter means the session does not
			// prove eligibility.
			var tokens int64
			if err := tx.Model(&models.VoteToken{}).
				Where("voter_id = ?", voter.ID).Count(&tokens).Error; err != nil {
				return err
			}
			if tokens == 0 {
				return ErrUnauthenticated
			}
			return ErrAlreadyVoted
		}

		vote := models.Vote{VoterID: voter.ID, CandidateID: candidate.ID, CastAt: now}
		if err := tx.Create(&vote).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyVoted
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.VoteRecorded(VoteRecorded{CandidateID: candidate.ID, CastAt: now})
	}

	log.Printf("vote recorded for voter %d", voter.ID)
	return &CastVoteReceipt{Confirmation: uuid.New().String(), CastAt: now}, nil
}
