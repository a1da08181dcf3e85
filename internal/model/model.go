package model

import (
	"encoding/json"
	"time"
)

// User represents a registered user.
type User struct {
	ID          string    `json:"id"`
	Provider    string    `json:"provider"`
	ProviderID  string    `json:"provider_id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Campaign represents one shared kingdom and the group playing it.
type Campaign struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	CreatorID    string           `json:"creator_id"`
	Status       string           `json:"status"` // waiting, active, finished
	TurnDuration string           `json:"turn_duration"`
	CreatedAt    time.Time        `json:"created_at"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	FinishedAt   *time.Time       `json:"finished_at,omitempty"`
	Members      []CampaignMember `json:"members,omitempty"`
}

// CampaignMember represents a user's membership in a campaign.
type CampaignMember struct {
	CampaignID string    `json:"campaign_id"`
	UserID     string    `json:"user_id"`
	Role       string    `json:"role"` // ruler, councilor
	JoinedAt   time.Time `json:"joined_at"`
}

// Turn is one persisted kingdom turn: the sheet snapshot taken on entry,
// the snapshot written when the turn resolves, and the deadline after
// which the turn auto-advances.
type Turn struct {
	ID          string          `json:"id"`
	CampaignID  string          `json:"campaign_id"`
	Number      int             `json:"number"`
	StateBefore json.RawMessage `json:"state_before"`
	StateAfter  json.RawMessage `json:"state_after,omitempty"`
	Deadline    time.Time       `json:"deadline"`
	ResolvedAt  *time.Time      `json:"resolved_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Check is the audit record of one resolved skill check.
type Check struct {
	ID         string    `json:"id"`
	CampaignID string    `json:"campaign_id"`
	TurnNumber int       `json:"turn_number"`
	Phase      string    `json:"phase"`
	ActorID    string    `json:"actor_id,omitempty"`
	Kind       string    `json:"kind"` // action, event, incident
	RecordID   string    `json:"record_id"`
	Skill      string    `json:"skill"`
	Roll       int       `json:"roll"`
	Modifier   int       `json:"modifier"`
	DC         int       `json:"dc"`
	Degree     string    `json:"degree"`
	CreatedAt  time.Time `json:"created_at"`
}

// Milestone is the persisted record of a doctrine axis first reaching a
// tier, stamped with the turn it happened on.
type Milestone struct {
	ID         string    `json:"id"`
	CampaignID string    `json:"campaign_id"`
	Axis       string    `json:"axis"`
	Tier       string    `json:"tier"`
	TurnNumber int       `json:"turn_number"`
	CreatedAt  time.Time `json:"created_at"`
}
