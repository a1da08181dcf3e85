package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mkieran/demesne/internal/model"
	"github.com/mkieran/demesne/pkg/kingdom"
)

type mockCampaignRepo struct {
	campaigns map[string]*model.Campaign
	members   map[string][]model.CampaignMember
}

func newMockCampaignRepo() *mockCampaignRepo {
	return &mockCampaignRepo{
		campaigns: make(map[string]*model.Campaign),
		members:   make(map[string][]model.CampaignMember),
	}
}

func (m *mockCampaignRepo) Create(_ context.Context, name, creatorID, turnDuration string) (*model.Campaign, error) {
	c := &model.Campaign{
		ID:           fmt.Sprintf("campaign-%d", len(m.campaigns)+1),
		Name:         name,
		CreatorID:    creatorID,
		Status:       "waiting",
		TurnDuration: turnDuration,
		CreatedAt:    time.Now(),
	}
	m.campaigns[c.ID] = c
	m.members[c.ID] = []model.CampaignMember{
		{CampaignID: c.ID, UserID: creatorID, Role: "ruler", JoinedAt: time.Now()},
	}
	return c, nil
}

func (m *mockCampaignRepo) FindByID(_ context.Context, id string) (*model.Campaign, error) {
	c, ok := m.campaigns[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	cp.Members = m.members[id]
	return &cp, nil
}

func (m *mockCampaignRepo) ListOpen(_ context.Context) ([]model.Campaign, error) {
	var result []model.Campaign
	for _, c := range m.campaigns {
		if c.Status == "waiting" {
			result = append(result, *c)
		}
	}
	return result, nil
}

func (m *mockCampaignRepo) ListByUser(_ context.Context, userID string) ([]model.Campaign, error) {
	var result []model.Campaign
	for id, members := range m.members {
		for _, mem := range members {
			if mem.UserID == userID {
				if c, ok := m.campaigns[id]; ok {
					result = append(result, *c)
				}
				break
			}
		}
	}
	return result, nil
}

func (m *mockCampaignRepo) ListActive(_ context.Context) ([]model.Campaign, error) {
	var result []model.Campaign
	for _, c := range m.campaigns {
		if c.Status == "active" {
			result = append(result, *c)
		}
	}
	return result, nil
}

func (m *mockCampaignRepo) Join(_ context.Context, campaignID, userID, role string) error {
	m.members[campaignID] = append(m.members[campaignID], model.CampaignMember{
		CampaignID: campaignID, UserID: userID, Role: role, JoinedAt: time.Now(),
	})
	return nil
}

func (m *mockCampaignRepo) Members(_ context.Context, campaignID string) ([]model.CampaignMember, error) {
	return m.members[campaignID], nil
}

func (m *mockCampaignRepo) MemberCount(_ context.Context, campaignID string) (int, error) {
	return len(m.members[campaignID]), nil
}

func (m *mockCampaignRepo) SetStarted(_ context.Context, campaignID string) error {
	if c, ok := m.campaigns[campaignID]; ok {
		c.Status = "active"
		now := time.Now()
		c.StartedAt = &now
	}
	return nil
}

func (m *mockCampaignRepo) SetFinished(_ context.Context, campaignID string) error {
	if c, ok := m.campaigns[campaignID]; ok {
		c.Status = "finished"
		now := time.Now()
		c.FinishedAt = &now
	}
	return nil
}

func (m *mockCampaignRepo) Delete(_ context.Context, campaignID string) error {
	delete(m.campaigns, campaignID)
	delete(m.members, campaignID)
	return nil
}

type mockUserRepo struct {
	users map[string]*model.User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User)}
}

func (m *mockUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return u, nil
}

func (m *mockUserRepo) FindByProviderID(_ context.Context, provider, providerID string) (*model.User, error) {
	for _, u := range m.users {
		if u.Provider == provider && u.ProviderID == providerID {
			return u, nil
		}
	}
	return nil, nil
}

func (m *mockUserRepo) Upsert(_ context.Context, provider, providerID, displayName, avatarURL string) (*model.User, error) {
	for _, u := range m.users {
		if u.Provider == provider && u.ProviderID == providerID {
			u.DisplayName = displayName
			u.AvatarURL = avatarURL
			return u, nil
		}
	}
	u := &model.User{
		ID:          fmt.Sprintf("user-%d", len(m.users)+1),
		Provider:    provider,
		ProviderID:  providerID,
		DisplayName: displayName,
		AvatarURL:   avatarURL,
		CreatedAt:   time.Now(),
	}
	m.users[u.ID] = u
	return u, nil
}

func (m *mockUserRepo) UpdateDisplayName(_ context.Context, id, displayName string) error {
	if u, ok := m.users[id]; ok {
		u.DisplayName = displayName
	}
	return nil
}

type mockTurnRepo struct {
	turns      map[string]*model.Turn
	checks     []model.Check
	milestones []model.Milestone
	nextID     int
}

func newMockTurnRepo() *mockTurnRepo {
	return &mockTurnRepo{turns: make(map[string]*model.Turn)}
}

func (m *mockTurnRepo) CreateTurn(_ context.Context, campaignID string, number int, stateBefore json.RawMessage, deadline time.Time) (*model.Turn, error) {
	m.nextID++
	t := &model.Turn{
		ID:          fmt.Sprintf("turn-%d", m.nextID),
		CampaignID:  campaignID,
		Number:      number,
		StateBefore: stateBefore,
		Deadline:    deadline,
		CreatedAt:   time.Now(),
	}
	m.turns[t.ID] = t
	return t, nil
}

func (m *mockTurnRepo) CurrentTurn(_ context.Context, campaignID string) (*model.Turn, error) {
	var current *model.Turn
	for _, t := range m.turns {
		if t.CampaignID != campaignID || t.ResolvedAt != nil {
			continue
		}
		if current == nil || t.Number > current.Number {
			current = t
		}
	}
	return current, nil
}

func (m *mockTurnRepo) ListTurns(_ context.Context, campaignID string) ([]model.Turn, error) {
	var result []model.Turn
	for _, t := range m.turns {
		if t.CampaignID == campaignID {
			result = append(result, *t)
		}
	}
	return result, nil
}

func (m *mockTurnRepo) ResolveTurn(_ context.Context, turnID string, stateAfter json.RawMessage) error {
	t, ok := m.turns[turnID]
	if !ok {
		return fmt.Errorf("turn %s not found", turnID)
	}
	now := time.Now()
	t.StateAfter = stateAfter
	t.ResolvedAt = &now
	return nil
}

func (m *mockTurnRepo) ListExpired(_ context.Context) ([]model.Turn, error) {
	var result []model.Turn
	for _, t := range m.turns {
		if t.ResolvedAt == nil && time.Now().After(t.Deadline) {
			result = append(result, *t)
		}
	}
	return result, nil
}

func (m *mockTurnRepo) SaveCheck(_ context.Context, check *model.Check) error {
	m.checks = append(m.checks, *check)
	return nil
}

func (m *mockTurnRepo) ListChecks(_ context.Context, campaignID string, turnNumber int) ([]model.Check, error) {
	var result []model.Check
	for _, c := range m.checks {
		if c.CampaignID == campaignID && c.TurnNumber == turnNumber {
			result = append(result, c)
		}
	}
	return result, nil
}

func (m *mockTurnRepo) SaveMilestones(_ context.Context, milestones []model.Milestone) error {
	m.milestones = append(m.milestones, milestones...)
	return nil
}

func (m *mockTurnRepo) ListMilestones(_ context.Context, campaignID string) ([]model.Milestone, error) {
	var result []model.Milestone
	for _, ms := range m.milestones {
		if ms.CampaignID == campaignID {
			result = append(result, ms)
		}
	}
	return result, nil
}

type mockCache struct {
	mu      sync.Mutex
	states  map[string]json.RawMessage
	pending map[string]json.RawMessage
	timers  map[string]time.Time
}

func newMockCache() *mockCache {
	return &mockCache{
		states:  make(map[string]json.RawMessage),
		pending: make(map[string]json.RawMessage),
		timers:  make(map[string]time.Time),
	}
}

func (c *mockCache) SetKingdomState(_ context.Context, campaignID string, state json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[campaignID] = state
	return nil
}

func (c *mockCache) GetKingdomState(_ context.Context, campaignID string) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[campaignID], nil
}

func (c *mockCache) SetPendingCheck(_ context.Context, campaignID string, check json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[campaignID] = check
	return nil
}

func (c *mockCache) GetPendingCheck(_ context.Context, campaignID string) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending[campaignID], nil
}

func (c *mockCache) ClearPendingCheck(_ context.Context, campaignID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, campaignID)
	return nil
}

func (c *mockCache) SetTimer(_ context.Context, campaignID string, deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timers[campaignID] = deadline
	return nil
}

func (c *mockCache) ClearTimer(_ context.Context, campaignID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.timers, campaignID)
	return nil
}

func (c *mockCache) ClearTurnData(_ context.Context, campaignID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, campaignID)
	return nil
}

func (c *mockCache) DeleteCampaignData(_ context.Context, campaignID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.states, campaignID)
	delete(c.pending, campaignID)
	delete(c.timers, campaignID)
	return nil
}

type broadcastEvent struct {
	campaignID string
	eventType  string
	data       any
}

type mockBroadcaster struct {
	mu     sync.Mutex
	events []broadcastEvent
}

func (b *mockBroadcaster) BroadcastCampaignEvent(campaignID string, eventType string, data any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, broadcastEvent{campaignID, eventType, data})
}

func (b *mockBroadcaster) eventTypes() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	types := make([]string, len(b.events))
	for i, e := range b.events {
		types[i] = e.eventType
	}
	return types
}

// mockRecordSource serves effect tables from in-memory maps.
type mockRecordSource struct {
	actions   map[string]kingdom.EffectTable
	events    map[string]kingdom.EffectTable
	incidents map[string]kingdom.EffectTable
}

func newMockRecordSource() *mockRecordSource {
	return &mockRecordSource{
		actions:   make(map[string]kingdom.EffectTable),
		events:    make(map[string]kingdom.EffectTable),
		incidents: make(map[string]kingdom.EffectTable),
	}
}

func (m *mockRecordSource) lookup(tables map[string]kingdom.EffectTable, id string) (kingdom.EffectTable, error) {
	t, ok := tables[id]
	if !ok {
		return nil, fmt.Errorf("no record %q", id)
	}
	return t, nil
}

func (m *mockRecordSource) ActionEffects(id string) (kingdom.EffectTable, error) {
	return m.lookup(m.actions, id)
}

func (m *mockRecordSource) EventEffects(id string) (kingdom.EffectTable, error) {
	return m.lookup(m.events, id)
}

func (m *mockRecordSource) IncidentEffects(id string) (kingdom.EffectTable, error) {
	return m.lookup(m.incidents, id)
}
