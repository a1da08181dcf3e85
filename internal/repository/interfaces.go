package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mkieran/demesne/internal/model"
)

// UserRepository defines user data operations.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByProviderID(ctx context.Context, provider, providerID string) (*model.User, error)
	Upsert(ctx context.Context, provider, providerID, displayName, avatarURL string) (*model.User, error)
	UpdateDisplayName(ctx context.Context, id, displayName string) error
}

// CampaignRepository defines campaign and membership data operations.
type CampaignRepository interface {
	Create(ctx context.Context, name, creatorID, turnDuration string) (*model.Campaign, error)
	FindByID(ctx context.Context, id string) (*model.Campaign, error)
	ListOpen(ctx context.Context) ([]model.Campaign, error)
	ListByUser(ctx context.Context, userID string) ([]model.Campaign, error)
	ListActive(ctx context.Context) ([]model.Campaign, error)
	Join(ctx context.Context, campaignID, userID, role string) error
	Members(ctx context.Context, campaignID string) ([]model.CampaignMember, error)
	MemberCount(ctx context.Context, campaignID string) (int, error)
	SetStarted(ctx context.Context, campaignID string) error
	SetFinished(ctx context.Context, campaignID string) error
	Delete(ctx context.Context, campaignID string) error
}

// TurnRepository defines turn snapshot, check audit, and milestone
// data operations.
type TurnRepository interface {
	CreateTurn(ctx context.Context, campaignID string, number int, stateBefore json.RawMessage, deadline time.Time) (*model.Turn, error)
	CurrentTurn(ctx context.Context, campaignID string) (*model.Turn, error)
	ListTurns(ctx context.Context, campaignID string) ([]model.Turn, error)
	ResolveTurn(ctx context.Context, turnID string, stateAfter json.RawMessage) error
	ListExpired(ctx context.Context) ([]model.Turn, error)
	SaveCheck(ctx context.Context, check *model.Check) error
	ListChecks(ctx context.Context, campaignID string, turnNumber int) ([]model.Check, error)
	SaveMilestones(ctx context.Context, milestones []model.Milestone) error
	ListMilestones(ctx context.Context, campaignID string) ([]model.Milestone, error)
}

// StateCache defines live kingdom state operations (Redis). SetKingdomState
// and GetKingdomState form the read/write state contract the engine
// consumes; writes are atomic relative to other writes from this process.
type StateCache interface {
	SetKingdomState(ctx context.Context, campaignID string, state json.RawMessage) error
	GetKingdomState(ctx context.Context, campaignID string) (json.RawMessage, error)
	SetPendingCheck(ctx context.Context, campaignID string, check json.RawMessage) error
	GetPendingCheck(ctx context.Context, campaignID string) (json.RawMessage, error)
	ClearPendingCheck(ctx context.Context, campaignID string) error
	SetTimer(ctx context.Context, campaignID string, deadline time.Time) error
	ClearTimer(ctx context.Context, campaignID string) error
	ClearTurnData(ctx context.Context, campaignID string) error
	DeleteCampaignData(ctx context.Context, campaignID string) error
}
