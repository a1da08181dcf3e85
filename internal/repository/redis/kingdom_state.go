package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key patterns for Redis kingdom state.
func stateKey(campaignID string) string        { return "campaign:" + campaignID + ":state" }
func pendingCheckKey(campaignID string) string { return "campaign:" + campaignID + ":pending_check" }
func timerKey(campaignID string) string        { return "campaign:" + campaignID + ":timer" }

// SetKingdomState stores the live kingdom sheet JSON. This is the write
// half of the state contract; writes are serialized per campaign by the
// service layer's per-campaign locks.
func (c *Client) SetKingdomState(ctx context.Context, campaignID string, state json.RawMessage) error {
	return c.rdb.Set(ctx, stateKey(campaignID), []byte(state), 0).Err()
}

// GetKingdomState retrieves the live kingdom sheet JSON. A missing key
// reads as nil, nil.
func (c *Client) GetKingdomState(ctx context.Context, campaignID string) (json.RawMessage, error) {
	data, err := c.rdb.Get(ctx, stateKey(campaignID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get kingdom state: %w", err)
	}
	return json.RawMessage(data), nil
}

// SetPendingCheck stores the turn-stamped check awaiting resolution.
func (c *Client) SetPendingCheck(ctx context.Context, campaignID string, check json.RawMessage) error {
	return c.rdb.Set(ctx, pendingCheckKey(campaignID), []byte(check), 0).Err()
}

// GetPendingCheck retrieves the pending check, or nil when none is stored.
func (c *Client) GetPendingCheck(ctx context.Context, campaignID string) (json.RawMessage, error) {
	data, err := c.rdb.Get(ctx, pendingCheckKey(campaignID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pending check: %w", err)
	}
	return json.RawMessage(data), nil
}

// ClearPendingCheck discards the pending check.
func (c *Client) ClearPendingCheck(ctx context.Context, campaignID string) error {
	return c.rdb.Del(ctx, pendingCheckKey(campaignID)).Err()
}

// turnGracePeriod is the extra time after the displayed deadline before
// auto-advancement triggers, giving players a few seconds of leeway.
const turnGracePeriod = 5 * time.Second

// SetTimer creates a timer key with a TTL. When the key expires, Redis
// keyspace notifications trigger turn auto-advancement.
func (c *Client) SetTimer(ctx context.Context, campaignID string, deadline time.Time) error {
	ttl := time.Until(deadline) + turnGracePeriod
	if ttl <= 0 {
		ttl = time.Second
	}
	return c.rdb.Set(ctx, timerKey(campaignID), deadline.Unix(), ttl).Err()
}

// ClearTimer removes the timer for a campaign.
func (c *Client) ClearTimer(ctx context.Context, campaignID string) error {
	return c.rdb.Del(ctx, timerKey(campaignID)).Err()
}

// ClearTurnData removes turn-scoped keys after a turn advances.
func (c *Client) ClearTurnData(ctx context.Context, campaignID string) error {
	return c.rdb.Del(ctx, pendingCheckKey(campaignID), timerKey(campaignID)).Err()
}

// DeleteCampaignData removes all Redis data for a campaign (on end).
func (c *Client) DeleteCampaignData(ctx context.Context, campaignID string) error {
	return c.rdb.Del(ctx, stateKey(campaignID), pendingCheckKey(campaignID), timerKey(campaignID)).Err()
}
