package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"school-evoting-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCastVote_Success(t *testing.T) {
	db := setupTestDB(t)
	svc := NewVotingService(db, nil)
	tokens := NewTokenService(db)

	voter := createVoter(t, db, "S1001", "Mara Lindt", "10a")
	candidate := createCandidate(t, db, "Alice Anderson", true)
	_, err := tokens.IssueToken(context.Background(), voter.ID)
	require.NoError(t, err)

	receipt, err := svc.CastVote(context.Background(), voter.ID, candidate.ID, openSchedule())
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.NotEmpty(t, receipt.Confirmation)
	assert.False(t, receipt.CastAt.IsZero())

	// Voter is marked, exactly one vote row exists, token is consumed.
	var reloaded models.Voter
	require.NoError(t, db.First(&reloaded, voter.ID).Error)
	assert.True(t, reloaded.HasVoted)

	var voteCount int64
	require.NoError(t, db.Model(&models.Vote{}).Where("voter_id = ?", voter.ID).Count(&voteCount).Error)
	assert.Equal(t, int64(1), voteCount)

	var token models.VoteToken
	require.NoError(t, db.Where("voter_id = ?", voter.ID).First(&token).Error)
	assert.True(t, token.IsUsed)
	require.NotNil(t, token.UsedAt)
}

func TestCastVote_SecondAttemptFails(t *testing.T) {
	db := setupTestDB(t)
	svc := NewVotingService(db, nil)
	tokens := NewTokenService(db)

	voter := createVoter(t, db, "S1002", "Jon Weiss", "10b")
	first := createCandidate(t, db, "Alice Anderson", true)
	second := createCandidate(t, db, "Bob Becker", true)
	_, err := tokens.IssueToken(context.Background(), voter.ID)
	require.NoError(t, err)

	_, err = svc.CastVote(context.Background(), voter.ID, first.ID, openSchedule())
	require.NoError(t, err)

	// Repeating with the same candidate fails.
	_, err = svc.CastVote(context.Background(), voter.ID, first.ID, openSchedule())
	assert.ErrorIs(t, err, ErrAlreadyVoted)

	// Switching candidates does not help.
	_, err = svc.CastVote(context.Background(), voter.ID, second.ID, openSchedule())
	assert.ErrorIs(t, err, ErrAlreadyVoted)

	var voteCount int64
	require.NoError(t, db.Model(&models.Vote{}).Where("voter_id = ?", voter.ID).Count(&voteCount).Error)
	assert.Equal(t, int64(1), voteCount)
}

func TestCastVote_UnknownVoter(t *testing.T) {
	db := setupTestDB(t)
	svc := NewVotingService(db, nil)

	candidate := createCandidate(t, db, "Alice Anderson", true)

	_, err := svc.CastVote(context.Background(), 9999, candidate.ID, openSchedule())
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestCastVote_VotingClosed(t *testing.T) {
	db := setupTestDB(t)
	svc := NewVotingService(db, nil)
	tokens := NewTokenService(db)

	voter := createVoter(t, db, "S1003", "Pia Trost", "10a")
	candidate := createCandidate(t, db, "Alice Anderson", true)
	_, err := tokens.IssueToken(context.Background(), voter.ID)
	require.NoError(t, err)

	_, err = svc.CastVote(context.Background(), voter.ID, candidate.ID, ElectionSchedule{VotingOpen: false})
	assert.ErrorIs(t, err, ErrVotingClosed)

	// Complete no-op: neither voter nor token were touched.
	var reloaded models.Voter
	require.NoError(t, db.First(&reloaded, voter.ID).Error)
	assert.False(t, reloaded.HasVoted)

	var token models.VoteToken
	require.NoError(t, db.Where("voter_id = ?", voter.ID).First(&token).Error)
	assert.False(t, token.IsUsed)
	assert.Nil(t, token.UsedAt)

	var voteCount int64
	require.NoError(t, db.Model(&models.Vote{}).Count(&voteCount).Error)
	assert.Zero(t, voteCount)
}

func TestCastVote_WindowBounds(t *testing.T) {
	db := setupTestDB(t)
	svc := NewVotingService(db, nil)
	tokens := NewTokenService(db)

	voter := createVoter(t, db, "S1004", "Ira Moll", "9c")
	candidate := createCandidate(t, db, "Alice Anderson", true)
	_, err := tokens.IssueToken(context.Background(), voter.ID)
	require.NoError(t, err)

	future := time.Now().Add(1 * time.Hour)
	past := time.Now().Add(-1 * time.Hour)

	// Open flag set, but the window has not started yet.
	_, err = svc.CastVote(context.Background(), voter.ID, candidate.ID,
		ElectionSchedule{VotingOpen: true, StartTime: &future})
	assert.ErrorIs(t, err, ErrVotingClosed)

	// Window already over.
	_, err = svc.CastVote(context.Background(), voter.ID, candidate.ID,
		ElectionSchedule{VotingOpen: true, EndTime: &past})
	assert.ErrorIs(t, err, ErrVotingClosed)

	// Inside the window.
	_, err = svc.CastVote(context.Background(), voter.ID, candidate.ID,
		ElectionSchedule{VotingOpen: true, StartTime: &past, EndTime: &future})
	assert.NoError(t, err)
}

func TestCastVote_InvalidCandidate(t *testing.T) {
	db := setupTestDB(t)
	svc := NewVotingService(db, nil)
	tokens := NewTokenService(db)

	voter := createVoter(t, db, "S1005", "Leo Falk", "9a")
	inactive := createCandidate(t, db, "Dropped Out", false)
	_, err := tokens.IssueToken(context.Background(), voter.ID)
	require.NoError(t, err)

	// Nonexistent candidate.
	_, err = svc.CastVote(context.Background(), voter.ID, 4242, openSchedule())
	assert.ErrorIs(t, err, ErrInvalidCandidate)

	// Inactive candidate.
	_, err = svc.CastVote(context.Background(), voter.ID, inactive.ID, openSchedule())
	assert.ErrorIs(t, err, ErrInvalidCandidate)

	// Nothing was mutated.
	var reloaded models.Voter
	require.NoError(t, db.First(&reloaded, voter.ID).Error)
	assert.False(t, reloaded.HasVoted)

	var token models.VoteToken
	require.NoError(t, db.Where("voter_id = ?", voter.ID).First(&token).Error)
	assert.False(t, token.IsUsed)
}

func TestCastVote_NoTokenIssued(t *testing.T) {
	db := setupTestDB(t)
	svc := NewVotingService(db, nil)

	voter := createVoter(t, db, "S1006", "Nora Veit", "9b")
	candidate := createCandidate(t, db, "Alice Anderson", true)

	// A voter without a token cannot prove eligibility.
	_, err := svc.CastVote(context.Background(), voter.ID, candidate.ID, openSchedule())
	assert.ErrorIs(t, err, ErrUnauthenticated)

	var reloaded models.Voter
	require.NoError(t, db.First(&reloaded, voter.ID).Error)
	assert.False(t, reloaded.HasVoted)

	var voteCount int64
	require.NoError(t, db.Model(&models.Vote{}).Count(&voteCount).Error)
	assert.Zero(t, voteCount)
}

// TestCastVote_Concurrent verifies that simultaneous submissions for the
// same voter produce exactly one vote row, no matter the interleaving.
func TestCastVote_Concurrent(t *testing.T) {
	db := setupTestDB(t)
	svc := NewVotingService(db, nil)
	tokens := NewTokenService(db)

	voter := createVoter(t, db, "S1007", "Tim Brandt", "10c")
	candidate := createCandidate(t, db, "Alice Anderson", true)
	_, err := tokens.IssueToken(context.Background(), voter.ID)
	require.NoError(t, err)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, errs[idx] = svc.CastVote(context.Background(), voter.ID, candidate.ID, openSchedule())
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		}
	}
	assert.Equal(t, 1, successes, "exactly one concurrent cast must win")

	var voteCount int64
	require.NoError(t, db.Model(&models.Vote{}).Where("voter_id = ?", voter.ID).Count(&voteCount).Error)
	assert.Equal(t, int64(1), voteCount)

	var usedTokens int64
	require.NoError(t, db.Model(&models.VoteToken{}).
		Where("voter_id = ? AND is_used = ?", voter.ID, true).Count(&usedTokens).Error)
	assert.Equal(t, int64(1), usedTokens)
}

type captureNotifier struct {
	mu     sync.Mutex
	events []VoteRecorded
}

func (c *captureNotifier) VoteRecorded(event VoteRecorded) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func TestCastVote_NotifierFiresOnceWithoutVoterIdentity(t *testing.T) {
	db := setupTestDB(t)
	notifier := &captureNotifier{}
	svc := NewVotingService(db, notifier)
	tokens := NewTokenService(db)

	voter := createVoter(t, db, "S1008", "Gus Reimer", "8a")
	candidate := createCandidate(t, db, "Bob Becker", true)
	_, err := tokens.IssueToken(context.Background(), voter.ID)
	require.NoError(t, err)

	_, err = svc.CastVote(context.Background(), voter.ID, candidate.ID, openSchedule())
	require.NoError(t, err)

	_, err = svc.CastVote(context.Background(), voter.ID, candidate.ID, openSchedule())
	assert.ErrorIs(t, err, ErrAlreadyVoted)

	require.Len(t, notifier.events, 1)
	assert.Equal(t, candidate.ID, notifier.events[0].CandidateID)
}
