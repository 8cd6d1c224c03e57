package handlers

import (
	"context"
	"log"
	"time"

	"school-evoting-backend/cache"
	"school-evoting-backend/database"
	"school-evoting-backend/models"
	"school-evoting-backend/mq"
	"school-evoting-backend/service"
	"school-evoting-backend/websocket"
)

// Package-level wiring set once at startup. Tests call InitHandlers after
// pointing database.DB at an in-memory store.
var (
	authSvc     service.AuthService
	votingSvc   service.VotingService
	tokenSvc    service.TokenService
	electionSvc service.ElectionService

	mqAdapter  *mq.Adapter
	turnoutHub *websocket.Hub
	tallyCache *cache.TallyCache
)

// auditNotifier forwards committed votes to the audit queue. The event
// carries the candidate and timestamp only, never the voter.
type auditNotifier struct{}

func (auditNotifier) VoteRecorded(event service.VoteRecorded) {
	if mqAdapter == nil {
		return
	}
	if err := mqAdapter.PublishAuditEvent(event.CandidateID, event.CastAt.Unix()); err != nil {
		log.Printf("publishing audit event failed: %v", err)
	}
}

// InitHandlers builds the service layer on the global database handle and
// wires the audit queue and turnout hub. adapter and hub may be nil in
// tests; the vote path then runs without post-commit fan-out.
func InitHandlers(adapter *mq.Adapter, hub *websocket.Hub) {
	mqAdapter = adapter
	turnoutHub = hub

	authSvc = service.NewAuthService(database.DB)
	tokenSvc = service.NewTokenService(database.DB)
	electionSvc = service.NewElectionService(database.DB)

	var notifier service.VoteNotifier
	if adapter != nil {
		notifier = auditNotifier{}
	}
	votingSvc = service.NewVotingService(database.DB, notifier)

	if client, err := cache.GetClient(); err == nil {
		tallyCache = cache.NewTallyCache(client, cache.GetLockService(), 30*time.Second)
	}
}

// HandleAuditEvent is the consumer side of the audit queue: refresh the
// cached tally and push the new turnout to live watchers. It runs after
// commit, so failures here never affect the stored vote.
func HandleAuditEvent(candidateID uint, castAt int64) error {
	if tallyCache != nil {
		tallyCache.Invalidate(context.Background())
	}

	results, err := currentResults()
	if err != nil {
		return err
	}

	if turnoutHub != nil {
		turnoutHub.BroadcastTurnout(results)
	}
	PushTurnoutUpdate(results)
	return nil
}

func currentResults() (*models.ElectionResults, error) {
	ctx := context.Background()
	if tallyCache != nil {
		return tallyCache.Get(ctx, func() (*models.ElectionResults, error) {
			return electionSvc.Results(ctx)
		})
	}
	return electionSvc.Results(ctx)
}
