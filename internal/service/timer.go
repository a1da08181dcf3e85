package service

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mkieran/demesne/internal/repository"
)

// TimerListener listens for Redis keyspace notifications on expired timer
// keys and force-advances a campaign's turn when its deadline passes. Also
// runs a polling fallback to catch expirations if keyspace notifications
// are unavailable.
type TimerListener struct {
	rdb      *redis.Client
	turnSvc  *TurnService
	turnRepo repository.TurnRepository
}

// NewTimerListener creates a TimerListener.
func NewTimerListener(rdb *redis.Client, turnSvc *TurnService, turnRepo repository.TurnRepository) *TimerListener {
	return &TimerListener{rdb: rdb, turnSvc: turnSvc, turnRepo: turnRepo}
}

// Start begins listening for expired key events and runs a polling fallback.
func (t *TimerListener) Start(ctx context.Context) {
	go t.listenKeyspace(ctx)
	t.pollExpiredTurns(ctx)
}

// listenKeyspace subscribes to Redis keyspace notifications for expired keys.
func (t *TimerListener) listenKeyspace(ctx context.Context) {
	pubsub := t.rdb.PSubscribe(ctx, "__keyevent@0__:expired")
	defer pubsub.Close()

	log.Info().Msg("Timer listener started, listening for expired keys")
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			t.handleExpiry(ctx, msg.Payload)
		}
	}
}

// pollExpiredTurns periodically checks for turns past their deadline and
// advances them.
func (t *TimerListener) pollExpiredTurns(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	log.Info().Msg("Turn deadline poller started (10s interval)")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Turn deadline poller stopped")
			return
		case <-ticker.C:
			t.checkExpiredTurns(ctx)
		}
	}
}

// checkExpiredTurns finds unresolved turns past their deadline and advances them.
func (t *TimerListener) checkExpiredTurns(ctx context.Context) {
	turns, err := t.turnRepo.ListExpired(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list expired turns")
		return
	}
	if len(turns) > 0 {
		log.Info().Int("count", len(turns)).Msg("Poller found expired turns")
	}
	for _, turn := range turns {
		log.Info().Str("campaignId", turn.CampaignID).Int("turn", turn.Number).
			Time("deadline", turn.Deadline).Msg("Poller advancing expired turn")
		if _, err := t.turnSvc.AdvanceTurn(ctx, turn.CampaignID, "", true); err != nil {
			log.Error().Err(err).Str("campaignId", turn.CampaignID).Msg("Turn advance failed from poller")
		}
	}
}

// handleExpiry processes an expired key. Only acts on campaign timer keys.
func (t *TimerListener) handleExpiry(ctx context.Context, key string) {
	if !strings.HasPrefix(key, "campaign:") || !strings.HasSuffix(key, ":timer") {
		return
	}

	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 {
		return
	}
	campaignID := parts[1]

	log.Info().Str("campaignId", campaignID).Msg("Timer expired, forcing turn advance")
	if _, err := t.turnSvc.AdvanceTurn(ctx, campaignID, "", true); err != nil {
		log.Error().Err(err).Str("campaignId", campaignID).Msg("Turn advance failed after timer expiry")
	}
}
