// Package reward converts a finish rank into an experience award through the
// collaborator and relays level-up consequences back to the caller.
package reward

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/tankmates/tankmates/internal/rest"
)

// ExpByRank is the fixed settlement table.
func ExpByRank(rank int) int {
	switch rank {
	case 1:
		return 20
	case 2:
		return 10
	case 3:
		return 5
	default:
		return 3
	}
}

// Result is the outcome of one settlement.
type Result struct {
	Rank      int
	EarnedExp int
	Exp       rest.ExpResult
	// LeveledUp compares the new level against the level captured at game
	// start; the caller surfaces it as a separate acknowledged step.
	LeveledUp bool
}

type Settler struct {
	rest *rest.Client
	log  *zap.Logger

	mu        sync.Mutex
	requested map[string]bool
}

func NewSettler(restClient *rest.Client, log *zap.Logger) *Settler {
	return &Settler{rest: restClient, log: log.Named("reward"), requested: make(map[string]bool)}
}

// Settle issues the experience award for the local participant's rank in the
// finish order. At most one request is sent per (session, participant), no
// matter how many times the end notice is delivered; a repeat call returns
// (nil, nil). A participant absent from the finish order settles nothing.
func (s *Settler) Settle(ctx context.Context, sessionID, userID string, finishOrder []string, levelAtStart int) (*Result, error) {
	rank := 0
	for i, id := range finishOrder {
		if id == userID {
			rank = i + 1
			break
		}
	}
	if rank == 0 {
		return nil, nil
	}

	key := sessionID + "/" + userID
	s.mu.Lock()
	if s.requested[key] {
		s.mu.Unlock()
		return nil, nil
	}
	s.requested[key] = true
	s.mu.Unlock()

	earned := ExpByRank(rank)
	res, err := s.rest.ExpUp(ctx, userID, earned)
	if err != nil {
		s.log.Warn("settlement failed",
			zap.String("session", sessionID),
			zap.Int("rank", rank),
			zap.Error(err))
		return nil, err
	}
	s.log.Info("settled",
		zap.String("session", sessionID),
		zap.Int("rank", rank),
		zap.Int("earnedExp", earned),
		zap.Int("level", res.UserLevel))
	return &Result{
		Rank:      rank,
		EarnedExp: earned,
		Exp:       res,
		LeveledUp: res.UserLevel > levelAtStart,
	}, nil
}

// ConfirmLevelUp fetches the bonus-currency balance after the user
// acknowledges a level-up.
func (s *Settler) ConfirmLevelUp(ctx context.Context, userID string) (rest.TicketBalance, error) {
	return s.rest.FishTicket(ctx, userID)
}
