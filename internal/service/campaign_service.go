package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mkieran/demesne/internal/model"
	"github.com/mkieran/demesne/internal/repository"
	"github.com/mkieran/demesne/pkg/kingdom"
)

// Campaign lifecycle errors surfaced to the handler layer.
var (
	ErrCampaignNotFound = errors.New("campaign not found")
	ErrCampaignStarted  = errors.New("campaign already started")
	ErrNotCreator       = errors.New("only the campaign creator may do this")
	ErrAlreadyMember    = errors.New("user already joined this campaign")
)

// DefaultTurnDuration is used when a campaign does not choose one.
const DefaultTurnDuration = "72h"

// CampaignService handles campaign creation, membership, and startup.
type CampaignService struct {
	campaignRepo repository.CampaignRepository
	turnRepo     repository.TurnRepository
	userRepo     repository.UserRepository
	cache        repository.StateCache

	phases []kingdom.PhaseDef
}

// NewCampaignService creates a CampaignService using the default phase
// configuration.
func NewCampaignService(
	campaignRepo repository.CampaignRepository,
	turnRepo repository.TurnRepository,
	userRepo repository.UserRepository,
	cache repository.StateCache,
) *CampaignService {
	return &CampaignService{
		campaignRepo: campaignRepo,
		turnRepo:     turnRepo,
		userRepo:     userRepo,
		cache:        cache,
		phases:       kingdom.DefaultPhases(),
	}
}

// CreateCampaign creates a campaign in waiting status with the creator
// enrolled as ruler.
func (s *CampaignService) CreateCampaign(ctx context.Context, name, creatorID, turnDuration string) (*model.Campaign, error) {
	if turnDuration == "" {
		turnDuration = DefaultTurnDuration
	}
	if _, err := time.ParseDuration(turnDuration); err != nil {
		return nil, fmt.Errorf("invalid turn duration %q: %w", turnDuration, err)
	}
	c, err := s.campaignRepo.Create(ctx, name, creatorID, turnDuration)
	if err != nil {
		return nil, err
	}
	log.Info().Str("campaignId", c.ID).Str("creatorId", creatorID).Msg("Campaign created")
	return c, nil
}

// JoinCampaign enrolls a user as a councilor in a waiting campaign.
func (s *CampaignService) JoinCampaign(ctx context.Context, campaignID, userID string) error {
	c, err := s.campaignRepo.FindByID(ctx, campaignID)
	if err != nil {
		return err
	}
	if c == nil {
		return ErrCampaignNotFound
	}
	if c.Status != "waiting" {
		return ErrCampaignStarted
	}
	for _, m := range c.Members {
		if m.UserID == userID {
			return ErrAlreadyMember
		}
	}
	if err := s.campaignRepo.Join(ctx, campaignID, userID, "councilor"); err != nil {
		return err
	}
	log.Info().Str("campaignId", campaignID).Str("userId", userID).Msg("User joined campaign")
	return nil
}

// StartCampaign activates a campaign: seeds a fresh kingdom sheet into the
// live-state cache, creates the first turn row with its entry snapshot,
// and arms the deadline timer. Only the creator may start.
func (s *CampaignService) StartCampaign(ctx context.Context, campaignID, userID string) (*model.Campaign, error) {
	c, err := s.campaignRepo.FindByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrCampaignNotFound
	}
	if c.CreatorID != userID {
		return nil, ErrNotCreator
	}
	if c.Status != "waiting" {
		return nil, ErrCampaignStarted
	}

	state := kingdom.NewState(s.phases)
	stateJSON, err := state.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal initial state: %w", err)
	}
	if err := s.cache.SetKingdomState(ctx, campaignID, stateJSON); err != nil {
		return nil, fmt.Errorf("seed kingdom state: %w", err)
	}

	deadline := time.Now().Add(s.turnDuration(c))
	if _, err := s.turnRepo.CreateTurn(ctx, campaignID, 1, stateJSON, deadline); err != nil {
		return nil, err
	}
	if err := s.cache.SetTimer(ctx, campaignID, deadline); err != nil {
		log.Warn().Err(err).Str("campaignId", campaignID).Msg("Failed to arm turn timer")
	}
	if err := s.campaignRepo.SetStarted(ctx, campaignID); err != nil {
		return nil, err
	}

	log.Info().Str("campaignId", campaignID).Time("deadline", deadline).Msg("Campaign started")
	return s.campaignRepo.FindByID(ctx, campaignID)
}

// GetCampaign returns a campaign with its members.
func (s *CampaignService) GetCampaign(ctx context.Context, campaignID string) (*model.Campaign, error) {
	c, err := s.campaignRepo.FindByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrCampaignNotFound
	}
	return c, nil
}

// ListCampaigns returns open campaigns, or the user's campaigns when
// filter is "mine".
func (s *CampaignService) ListCampaigns(ctx context.Context, userID, filter string) ([]model.Campaign, error) {
	if filter == "mine" {
		return s.campaignRepo.ListByUser(ctx, userID)
	}
	return s.campaignRepo.ListOpen(ctx)
}

// FinishCampaign ends a campaign and discards its live state.
func (s *CampaignService) FinishCampaign(ctx context.Context, campaignID, userID string) error {
	c, err := s.campaignRepo.FindByID(ctx, campaignID)
	if err != nil {
		return err
	}
	if c == nil {
		return ErrCampaignNotFound
	}
	if c.CreatorID != userID {
		return ErrNotCreator
	}
	if err := s.campaignRepo.SetFinished(ctx, campaignID); err != nil {
		return err
	}
	if err := s.cache.DeleteCampaignData(ctx, campaignID); err != nil {
		log.Warn().Err(err).Str("campaignId", campaignID).Msg("Failed to delete campaign cache data")
	}
	log.Info().Str("campaignId", campaignID).Msg("Campaign finished")
	return nil
}

// turnDuration parses the campaign's configured duration, falling back to
// the default on bad stored data.
func (s *CampaignService) turnDuration(c *model.Campaign) time.Duration {
	d, err := time.ParseDuration(c.TurnDuration)
	if err != nil {
		d, _ = time.ParseDuration(DefaultTurnDuration)
	}
	return d
}
