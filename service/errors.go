package service

import "errors"

var (
	// Errors returned by CastVote. Handlers map each one to a distinct
	// HTTP status; anything else is treated as a system error.
	ErrUnauthenticated  = errors.New("voter identity not recognized")
	ErrVotingClosed     = errors.New("voting is closed")
	ErrAlreadyVoted     = errors.New("voter has already voted")
	ErrInvalidCandidate = errors.New("candidate not found or inactive")

	// Token issuance errors.
	ErrVoterNotFound = errors.New("voter not found")
	ErrTokenUsed     = errors.New("token already used, reissue refused")
)
