package service

import (
	"context"
	"time"

	"school-evoting-backend/models"

	"gorm.io/gorm"
)

// ElectionSchedule is a snapshot of the election state. It is passed into
// CastVote as a plain value so the vote decision is a function of its
// inputs, not of a live global toggle.
type ElectionSchedule struct {
	VotingOpen bool
	StartTime  *time.Time
	EndTime    *time.Time
}

// IsOpenAt reports whether votes are accepted at the given instant.
func (s ElectionSchedule) IsOpenAt(now time.Time) bool {
	if !s.VotingOpen {
		return false
	}
	if s.StartTime != nil && now.Before(*s.StartTime) {
		return false
	}
	if s.EndTime != nil && now.After(*s.EndTime) {
		return false
	}
	return true
}

// ElectionService manages the global election state and the
// administrator-only lifecycle operations.
type ElectionService interface {
	CurrentSchedule(ctx context.Context) (ElectionSchedule, error)
	SetVotingOpen(ctx context.Context, open bool) (ElectionSchedule, error)
	SetWindow(ctx context.Context, start, end *time.Time) (ElectionSchedule, error)
	ResetElection(ctx context.Context) error
	Results(ctx context.Context) (*models.ElectionResults, error)
}

type electionService struct {
	db *gorm.DB
}

// NewElectionService creates the election state service.
func NewElectionService(db *gorm.DB) ElectionService {
	return &electionService{db: db}
}

// state loads the singleton state row, creating a closed one on first use.
func (s *electionService) state(ctx context.Context) (*models.ElectionState, error) {
	var state models.ElectionState
	err := s.db.WithContext(ctx).
		Where(models.ElectionState{}).
		Attrs(models.ElectionState{VotingOpen: false}).
		FirstOrCreate(&state).Error
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *electionService) CurrentSchedule(ctx context.Context) (ElectionSchedule, error) {
	state, err := s.state(ctx)
	if err != nil {
		return ElectionSchedule{}, err
	}
	return ElectionSchedule{
		VotingOpen: state.VotingOpen,
		StartTime:  state.StartTime,
		EndTime:    state.EndTime,
	}, nil
}

func (s *electionService) SetVotingOpen(ctx context.Context, open bool) (ElectionSchedule, error) {
	state, err := s.state(ctx)
	if err != nil {
		return ElectionSchedule{}, err
	}
	state.VotingOpen = open
	if err := s.db.WithContext(ctx).Save(state).Error; err != nil {
		return ElectionSchedule{}, err
	}
	return s.CurrentSchedule(ctx)
}

func (s *electionService) SetWindow(ctx context.Context, start, end *time.Time) (ElectionSchedule, error) {
	state, err := s.state(ctx)
	if err != nil {
		return ElectionSchedule{}, err
	}
	// Updates with a map so a nil bound clears the column.
	err = s.db.WithContext(ctx).Model(state).
		Select("start_time", "end_time").
		Updates(map[string]interface{}{"start_time": start, "end_time": end}).Error
	if err != nil {
		return ElectionSchedule{}, err
	}
	return s.CurrentSchedule(ctx)
}

// ResetElection wipes all votes and tokens and clears every voter's
// has_voted flag. This is the only operation allowed to delete used
// tokens. Deletes are unscoped: the unique indexes on vote_tokens and
// votes must not be held hostage by soft-deleted rows.
func (s *electionService) ResetElection(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).
			Unscoped().Delete(&models.Vote{}).Error; err != nil {
			return err
		}
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).
			Unscoped().Delete(&models.VoteToken{}).Error; err != nil {
			return err
		}
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).
			Model(&models.Voter{}).Update("has_voted", false).Error; err != nil {
			return err
		}
		return tx.Session(&gorm.Session{AllowGlobalUpdate: true}).
			Model(&models.ElectionState{}).Update("voting_open", false).Error
	})
}

// Results computes the per-candidate tally and turnout.
func (s *electionService) Results(ctx context.Context) (*models.ElectionResults, error) {
	var candidates []models.Candidate
	if err := s.db.WithContext(ctx).Order("position asc, id asc").Find(&candidates).Error; err != nil {
		return nil, err
	}

	type countRow struct {
		CandidateID uint
		Count       int64
	}
	var rows []countRow
	err := s.db.WithContext(ctx).Model(&models.Vote{}).
		Select("candidate_id", "count(*) as count").
		Group("candidate_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[uint]int64, len(rows))
	var totalVotes int64
	for _, r := range rows {
		counts[r.CandidateID] = r.Count
		totalVotes += r.Count
	}

	var totalVoters int64
	if err := s.db.WithContext(ctx).Model(&models.Voter{}).Count(&totalVoters).Error; err != nil {
		return nil, err
	}

	results := &models.ElectionResults{
		TotalVotes:  totalVotes,
		TotalVoters: totalVoters,
		Candidates:  make([]models.CandidateResult, len(candidates)),
		GeneratedAt: time.Now(),
	}
	if totalVoters > 0 {
		results.Turnout = float64(totalVotes) / float64(totalVoters) * 100
	}
	for i, c := range candidates {
		votes := counts[c.ID]
		percentage := 0.0
		if totalVotes > 0 {
			percentage = float64(votes) / float64(totalVotes) * 100
		}
		results.Candidates[i] = models.CandidateResult{
			CandidateID: c.ID,
			Name:        c.Name,
			Votes:       votes,
			Percentage:  percentage,
		}
	}

	return results, nil
}
