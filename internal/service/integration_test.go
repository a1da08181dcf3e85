//go:build integration

package service

import (
	"context"
	"database/sql"
	"testing"

	goredis "github.com/redis/go-redis/v9"

	"github.com/mkieran/demesne/internal/catalog"
	"github.com/mkieran/demesne/internal/model"
	"github.com/mkieran/demesne/internal/repository/postgres"
	redisrepo "github.com/mkieran/demesne/internal/repository/redis"
	"github.com/mkieran/demesne/internal/testutil"
	"github.com/mkieran/demesne/pkg/kingdom"
)

// integrationEnv holds shared test infrastructure.
type integrationEnv struct {
	db           *sql.DB
	rdb          *goredis.Client
	userRepo     *postgres.UserRepo
	campaignRepo *postgres.CampaignRepo
	turnRepo     *postgres.TurnRepo
	cache        *redisrepo.Client
}

var env *integrationEnv

func setupEnv(t *testing.T) *integrationEnv {
	t.Helper()
	if env == nil {
		db := testutil.SetupDB(t)
		rdb := testutil.SetupRedis(t)
		env = &integrationEnv{
			db:           db,
			rdb:          rdb,
			userRepo:     postgres.NewUserRepo(db),
			campaignRepo: postgres.NewCampaignRepo(db),
			turnRepo:     postgres.NewTurnRepo(db),
			cache:        redisrepo.NewClientFromPool(rdb),
		}
	}
	testutil.CleanupDB(t, env.db)
	testutil.CleanupRedis(t, env.rdb)
	return env
}

func newServices(e *integrationEnv) (*CampaignService, *TurnService, *CheckService) {
	campaignSvc := NewCampaignService(e.campaignRepo, e.turnRepo, e.userRepo, e.cache)
	turnSvc := NewTurnService(e.campaignRepo, e.turnRepo, e.cache, nil)
	checkSvc := NewCheckService(turnSvc, e.turnRepo, e.cache, nil, catalog.Default())
	return campaignSvc, turnSvc, checkSvc
}

// createAndStart creates a two-member campaign and starts it.
func createAndStart(t *testing.T, e *integrationEnv, campaignSvc *CampaignService) (*model.Campaign, []*model.User) {
	t.Helper()
	ctx := context.Background()

	ruler, err := e.userRepo.Upsert(ctx, "test", "ruler", "Ruler", "")
	if err != nil {
		t.Fatalf("create ruler: %v", err)
	}
	councilor, err := e.userRepo.Upsert(ctx, "test", "councilor", "Councilor", "")
	if err != nil {
		t.Fatalf("create councilor: %v", err)
	}

	c, err := campaignSvc.CreateCampaign(ctx, "Integration", ruler.ID, "1h")
	if err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	if err := campaignSvc.JoinCampaign(ctx, c.ID, councilor.ID); err != nil {
		t.Fatalf("join campaign: %v", err)
	}
	c, err = campaignSvc.StartCampaign(ctx, c.ID, ruler.ID)
	if err != nil {
		t.Fatalf("start campaign: %v", err)
	}
	return c, []*model.User{ruler, councilor}
}

// completePhase completes every step of the current phase with force.
func completePhase(t *testing.T, turnSvc *TurnService, campaignID, actorID string) *kingdom.State {
	t.Helper()
	ctx := context.Background()

	st, err := turnSvc.CurrentState(ctx, campaignID)
	if err != nil {
		t.Fatalf("current state: %v", err)
	}
	for i := range st.Steps {
		if st.Steps[i].Completed {
			continue
		}
		if st, err = turnSvc.CompleteStep(ctx, campaignID, i, actorID, true); err != nil {
			t.Fatalf("complete step %d: %v", i, err)
		}
	}
	return st
}

// TestFullTurnLifecycle walks one complete turn: start, upkeep, a commerce
// check, the remaining phases, and the turn advance.
func TestFullTurnLifecycle(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	campaignSvc, turnSvc, checkSvc := newServices(e)

	c, users := createAndStart(t, e, campaignSvc)
	ruler := users[0]

	if c.Status != "active" {
		t.Fatalf("expected active, got %s", c.Status)
	}
	st, err := turnSvc.CurrentState(ctx, c.ID)
	if err != nil {
		t.Fatalf("current state: %v", err)
	}
	if st.Turn != 1 || st.Phase != kingdom.PhaseUpkeep {
		t.Fatalf("expected turn 1 upkeep, got turn %d %s", st.Turn, st.Phase)
	}

	// Upkeep -> commerce.
	completePhase(t, turnSvc, c.ID, ruler.ID)
	st, err = turnSvc.AdvancePhase(ctx, c.ID, ruler.ID)
	if err != nil {
		t.Fatalf("advance to commerce: %v", err)
	}
	if st.Phase != kingdom.PhaseCommerce {
		t.Fatalf("expected commerce, got %s", st.Phase)
	}

	// A successful tax check against the built-in catalogue.
	outcome, err := checkSvc.SubmitCheck(ctx, c.ID, ruler.ID, CheckSubmission{
		Kind:     CheckKindAction,
		RecordID: "claim-taxes",
		Skill:    "politics",
		Input:    kingdom.CheckInput{NaturalRoll: 12, TotalModifier: 5, DC: 15, Turn: 1},
	})
	if err != nil {
		t.Fatalf("submit check: %v", err)
	}
	if outcome.Degree != kingdom.DegreeSuccess {
		t.Fatalf("expected success, got %s", outcome.Degree)
	}
	if outcome.State.Resources[kingdom.ResourceGold] != 2 {
		t.Fatalf("expected 2 gold, got %d", outcome.State.Resources[kingdom.ResourceGold])
	}

	// The audit row is persisted.
	checks, err := e.turnRepo.ListChecks(ctx, c.ID, 1)
	if err != nil {
		t.Fatalf("list checks: %v", err)
	}
	if len(checks) != 1 || checks[0].RecordID != "claim-taxes" {
		t.Fatalf("unexpected audit rows: %+v", checks)
	}

	// Commerce -> activity -> event -> turn advance.
	completePhase(t, turnSvc, c.ID, ruler.ID)
	if _, err := turnSvc.AdvancePhase(ctx, c.ID, ruler.ID); err != nil {
		t.Fatalf("advance to activity: %v", err)
	}
	completePhase(t, turnSvc, c.ID, ruler.ID)
	if _, err := turnSvc.AdvancePhase(ctx, c.ID, ruler.ID); err != nil {
		t.Fatalf("advance to event: %v", err)
	}
	if _, err := turnSvc.BeginEventPhase(ctx, c.ID, "", ruler.ID); err != nil {
		t.Fatalf("event check: %v", err)
	}

	st, err = turnSvc.AdvanceTurn(ctx, c.ID, ruler.ID, false)
	if err != nil {
		t.Fatalf("advance turn: %v", err)
	}
	if st.Turn != 2 || st.Phase != kingdom.PhaseUpkeep {
		t.Fatalf("expected turn 2 upkeep, got turn %d %s", st.Turn, st.Phase)
	}
	// Gold carries across the turn boundary.
	if st.Resources[kingdom.ResourceGold] != 2 {
		t.Fatalf("expected 2 gold after advance, got %d", st.Resources[kingdom.ResourceGold])
	}

	turns, err := e.turnRepo.ListTurns(ctx, c.ID)
	if err != nil {
		t.Fatalf("list turns: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turn rows, got %d", len(turns))
	}
	if turns[0].ResolvedAt == nil || turns[0].StateAfter == nil {
		t.Fatal("turn 1 should be resolved with an exit snapshot")
	}
	if turns[1].ResolvedAt != nil {
		t.Fatal("turn 2 should be open")
	}
}

// TestRecoverRebuildsCacheFromSnapshots simulates a Redis wipe and verifies
// the live state is rebuilt from the turn snapshot.
func TestRecoverRebuildsCacheFromSnapshots(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	campaignSvc, turnSvc, _ := newServices(e)

	c, users := createAndStart(t, e, campaignSvc)
	completePhase(t, turnSvc, c.ID, users[0].ID)

	testutil.CleanupRedis(t, e.rdb)
	if _, err := turnSvc.CurrentState(ctx, c.ID); err == nil {
		t.Fatal("expected missing state after redis wipe")
	}

	if err := turnSvc.RecoverActiveCampaigns(ctx); err != nil {
		t.Fatalf("recover: %v", err)
	}

	st, err := turnSvc.CurrentState(ctx, c.ID)
	if err != nil {
		t.Fatalf("current state after recovery: %v", err)
	}
	// Recovery restores the turn's entry snapshot; progress made after
	// that snapshot is not recoverable.
	if st.Turn != 1 || st.Phase != kingdom.PhaseUpkeep {
		t.Fatalf("expected turn 1 upkeep, got turn %d %s", st.Turn, st.Phase)
	}

	exists := e.rdb.Exists(ctx, "campaign:"+c.ID+":timer").Val()
	if exists != 1 {
		t.Fatal("expected timer re-armed for unexpired deadline")
	}
}
