package service

import (
	"context"
	"testing"
	"time"

	"school-evoting-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElectionSchedule_IsOpenAt(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-1 * time.Hour)
	later := now.Add(1 * time.Hour)

	tests := []struct {
		name     string
		schedule ElectionSchedule
		want     bool
	}{
		{"closed flag", ElectionSchedule{VotingOpen: false}, false},
		{"open no bounds", ElectionSchedule{VotingOpen: true}, true},
		{"before window", ElectionSchedule{VotingOpen: true, StartTime: &later}, false},
		{"after window", ElectionSchedule{VotingOpen: true, EndTime: &earlier}, false},
		{"inside window", ElectionSchedule{VotingOpen: true, StartTime: &earlier, EndTime: &later}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.schedule.IsOpenAt(now))
		})
	}
}

func TestElectionService_OpenCloseAndWindow(t *testing.T) {
	db := setupTestDB(t)
	svc := NewElectionService(db)

	// First read creates the singleton row, closed.
	schedule, err := svc.CurrentSchedule(context.Background())
	require.NoError(t, err)
	assert.False(t, schedule.VotingOpen)

	schedule, err = svc.SetVotingOpen(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, schedule.VotingOpen)

	start := time.Now().Add(-1 * time.Hour)
	end := time.Now().Add(1 * time.Hour)
	schedule, err = svc.SetWindow(context.Background(), &start, &end)
	require.NoError(t, err)
	require.NotNil(t, schedule.StartTime)
	require.NotNil(t, schedule.EndTime)

	// Clearing the window works through the same operation.
	schedule, err = svc.SetWindow(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Nil(t, schedule.StartTime)
	assert.Nil(t, schedule.EndTime)

	// Only one state row exists no matter how often it is touched.
	var count int64
	require.NoError(t, db.Model(&models.ElectionState{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestResetElection(t *testing.T) {
	db := setupTestDB(t)
	elections := NewElectionService(db)
	tokens := NewTokenService(db)
	votes := NewVotingService(db, nil)

	voter := createVoter(t, db, "S3001", "Mara Lindt", "10a")
	candidate := createCandidate(t, db, "Alice Anderson", true)
	_, err := tokens.IssueToken(context.Background(), voter.ID)
	require.NoError(t, err)
	_, err = votes.CastVote(context.Background(), voter.ID, candidate.ID, openSchedule())
	require.NoError(t, err)

	require.NoError(t, elections.ResetElection(context.Background()))

	var voteCount, tokenCount int64
	require.NoError(t, db.Unscoped().Model(&models.Vote{}).Count(&voteCount).Error)
	require.NoError(t, db.Unscoped().Model(&models.VoteToken{}).Count(&tokenCount).Error)
	assert.Zero(t, voteCount)
	assert.Zero(t, tokenCount)

	var reloaded models.Voter
	require.NoError(t, db.First(&reloaded, voter.ID).Error)
	assert.False(t, reloaded.HasVoted)

	// After a reset the full cycle works again: reissue and revote.
	_, err = tokens.IssueToken(context.Background(), voter.ID)
	require.NoError(t, err)
	_, err = votes.CastVote(context.Background(), voter.ID, candidate.ID, openSchedule())
	require.NoError(t, err)
}

func TestResults_TallyAndTurnout(t *testing.T) {
	db := setupTestDB(t)
	elections := NewElectionService(db)
	tokens := NewTokenService(db)
	votes := NewVotingService(db, nil)

	alice := createCandidate(t, db, "Alice Anderson", true)
	bob := createCandidate(t, db, "Bob Becker", true)

	voters := []*models.Voter{
		createVoter(t, db, "S3101", "V1", "10a"),
		createVoter(t, db, "S3102", "V2", "10a"),
		createVoter(t, db, "S3103", "V3", "10b"),
		createVoter(t, db, "S3104", "V4", "10b"),
	}
	choices := []uint{alice.ID, alice.ID, bob.ID, alice.ID}
	for i, voter := range voters[:3] {
		_, err := tokens.IssueToken(context.Background(), voter.ID)
		require.NoError(t, err)
		_, err = votes.CastVote(context.Background(), voter.ID, choices[i], openSchedule())
		require.NoError(t, err)
	}

	results, err := elections.Results(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), results.TotalVotes)
	assert.Equal(t, int64(4), results.TotalVoters)
	assert.InDelta(t, 75.0, results.Turnout, 0.01)

	require.Len(t, results.Candidates, 2)
	byName := make(map[string]models.CandidateResult)
	for _, c := range results.Candidates {
		byName[c.Name] = c
	}
	assert.Equal(t, int64(2), byName["Alice Anderson"].Votes)
	assert.Equal(t, int64(1), byName["Bob Becker"].Votes)
	assert.InDelta(t, 66.66, byName["Alice Anderson"].Percentage, 0.1)
}
