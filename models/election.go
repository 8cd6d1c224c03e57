package models

import (
	"time"

	"gorm.io/gorm"
)

// Voter represents a student eligible to cast exactly one vote.
type Voter struct {
	gorm.Model
	StudentNumber string `gorm:"uniqueIndex;not null" json:"student_number"`
	Name          string `gorm:"not null" json:"name"`
	ClassName     string `gorm:"index" json:"class_name"`
	HasVoted      bool   `gorm:"default:false" json:"has_voted"`
}

// VoteToken is the single-use secret credential bound to one voter.
// At most one token exists per voter; a used token is never reissued.
type VoteToken struct {
	gorm.Model
	Secret  string     `gorm:"uniqueIndex;not null" json:"-"`
	VoterID uint       `gorm:"uniqueIndex;not null" json:"voter_id"`
	IsUsed  bool       `gorm:"default:false" json:"is_used"`
	UsedAt  *time.Time `json:"used_at,omitempty"`
}

// Candidate is an electable option. Only active candidates are valid
// vote targets; Position controls display order.
type Candidate struct {
	gorm.Model
	Name     string `gorm:"not null" json:"name"`
	Motto    string `gorm:"type:text" json:"motto"`
	IsActive bool   `gorm:"default:true" json:"is_active"`
	Position int    `gorm:"default:0" json:"position"`
}

// Vote is the immutable record of one voter's choice. The unique index on
// VoterID is the storage-level guarantee that a voter can never hold two
// vote rows, regardless of request timing.
type Vote struct {
	gorm.Model
	VoterID     uint      `gorm:"uniqueIndex;not null" json:"voter_id"`
	CandidateID uint      `gorm:"index;not null" json:"candidate_id"`
	CastAt      time.Time `gorm:"not null" json:"cast_at"`
}

// ElectionState is the single global record controlling whether votes are
// accepted. Written only by admin actions, read by every vote attempt.
type ElectionState struct {
	gorm.Model
	VotingOpen bool       `gorm:"default:false" json:"voting_open"`
	StartTime  *time.Time `json:"start_time,omitempty"`
	EndTime    *time.Time `json:"end_time,omitempty"`
}

// CandidateResult is one row of the admin tally.
type CandidateResult struct {
	CandidateID uint    `json:"candidate_id"`
	Name        string  `json:"name"`
	Votes       int64   `json:"votes"`
	Percentage  float64 `json:"percentage"`
}

// ElectionResults aggregates the tally plus turnout counters.
type ElectionResults struct {
	TotalVotes  int64             `json:"total_votes"`
	TotalVoters int64             `json:"total_voters"`
	Turnout     float64           `json:"turnout"`
	Candidates  []CandidateResult `json:"candidates"`
	GeneratedAt time.Time         `json:"generated_at"`
}
