package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mkieran/demesne/internal/model"
)

// TurnRepo handles turn snapshot, check audit, and milestone database
// operations.
type TurnRepo struct {
	db *sql.DB
}

// NewTurnRepo creates a TurnRepo.
func NewTurnRepo(db *sql.DB) *TurnRepo {
	return &TurnRepo{db: db}
}

// CreateTurn inserts a new turn with its entry snapshot.
func (r *TurnRepo) CreateTurn(ctx context.Context, campaignID string, number int, stateBefore json.RawMessage, deadline time.Time) (*model.Turn, error) {
	var t model.Turn
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO turns (campaign_id, number, state_before, deadline)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, campaign_id, number, state_before, deadline, created_at`,
		campaignID, number, stateBefore, deadline,
	).Scan(&t.ID, &t.CampaignID, &t.Number, &t.StateBefore, &t.Deadline, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create turn: %w", err)
	}
	return &t, nil
}

// CurrentTurn returns the latest unresolved turn for a campaign.
func (r *TurnRepo) CurrentTurn(ctx context.Context, campaignID string) (*model.Turn, error) {
	var t model.Turn
	var stateAfter sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, campaign_id, number, state_before, state_after, deadline, resolved_at, created_at
		 FROM turns WHERE campaign_id = $1 AND resolved_at IS NULL
		 ORDER BY number DESC LIMIT 1`, campaignID,
	).Scan(&t.ID, &t.CampaignID, &t.Number, &t.StateBefore, &stateAfter, &t.Deadline, &t.ResolvedAt, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("current turn: %w", err)
	}
	if stateAfter.Valid {
		t.StateAfter = json.RawMessage(stateAfter.String)
	}
	return &t, nil
}

// ListTurns returns all turns for a campaign in play order.
func (r *TurnRepo) ListTurns(ctx context.Context, campaignID string) ([]model.Turn, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, campaign_id, number, state_before, state_after, deadline, resolved_at, created_at
		 FROM turns WHERE campaign_id = $1 ORDER BY number`, campaignID,
	)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	var turns []model.Turn
	for rows.Next() {
		var t model.Turn
		var stateAfter sql.NullString
		if err := rows.Scan(&t.ID, &t.CampaignID, &t.Number, &t.StateBefore, &stateAfter, &t.Deadline, &t.ResolvedAt, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if stateAfter.Valid {
			t.StateAfter = json.RawMessage(stateAfter.String)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// ResolveTurn marks a turn as resolved and stores the exit snapshot.
func (r *TurnRepo) ResolveTurn(ctx context.Context, turnID string, stateAfter json.RawMessage) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE turns SET state_after = $1, resolved_at = now() WHERE id = $2`,
		stateAfter, turnID,
	)
	if err != nil {
		return fmt.Errorf("resolve turn: %w", err)
	}
	return nil
}

// ListExpired returns unresolved turns of active campaigns whose deadline
// has passed.
func (r *TurnRepo) ListExpired(ctx context.Context) ([]model.Turn, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT t.id, t.campaign_id, t.number, t.state_before, t.deadline, t.created_at
		 FROM turns t
		 JOIN campaigns c ON c.id = t.campaign_id
		 WHERE t.resolved_at IS NULL AND t.deadline < now() AND c.status = 'active'`,
	)
	if err != nil {
		return nil, fmt.Errorf("list expired turns: %w", err)
	}
	defer rows.Close()

	var turns []model.Turn
	for rows.Next() {
		var t model.Turn
		if err := rows.Scan(&t.ID, &t.CampaignID, &t.Number, &t.StateBefore, &t.Deadline, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan expired turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// SaveCheck inserts a check audit record.
func (r *TurnRepo) SaveCheck(ctx context.Context, c *model.Check) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO checks (id, campaign_id, turn_number, phase, actor_id, kind, record_id, skill, roll, modifier, dc, degree)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		c.ID, c.CampaignID, c.TurnNumber, c.Phase, c.ActorID, c.Kind, c.RecordID, c.Skill, c.Roll, c.Modifier, c.DC, c.Degree,
	)
	if err != nil {
		return fmt.Errorf("save check: %w", err)
	}
	return nil
}

// ListChecks returns a turn's check audit records in roll order.
func (r *TurnRepo) ListChecks(ctx context.Context, campaignID string, turnNumber int) ([]model.Check, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, campaign_id, turn_number, phase, actor_id, kind, record_id, skill, roll, modifier, dc, degree, created_at
		 FROM checks WHERE campaign_id = $1 AND turn_number = $2 ORDER BY created_at`, campaignID, turnNumber,
	)
	if err != nil {
		return nil, fmt.Errorf("list checks: %w", err)
	}
	defer rows.Close()

	var checks []model.Check
	for rows.Next() {
		var c model.Check
		if err := rows.Scan(&c.ID, &c.CampaignID, &c.TurnNumber, &c.Phase, &c.ActorID, &c.Kind, &c.RecordID, &c.Skill, &c.Roll, &c.Modifier, &c.DC, &c.Degree, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan check: %w", err)
		}
		checks = append(checks, c)
	}
	return checks, rows.Err()
}

// SaveMilestones inserts a batch of milestone records.
func (r *TurnRepo) SaveMilestones(ctx context.Context, milestones []model.Milestone) error {
	if len(milestones) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save milestones: %w", err)
	}
	defer tx.Rollback()

	for _, m := range milestones {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO milestones (id, campaign_id, axis, tier, turn_number)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (campaign_id, axis, tier) DO NOTHING`,
			m.ID, m.CampaignID, m.Axis, m.Tier, m.TurnNumber,
		); err != nil {
			return fmt.Errorf("save milestone: %w", err)
		}
	}
	return tx.Commit()
}

// ListMilestones returns a campaign's milestones in the order reached.
func (r *TurnRepo) ListMilestones(ctx context.Context, campaignID string) ([]model.Milestone, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, campaign_id, axis, tier, turn_number, created_at
		 FROM milestones WHERE campaign_id = $1 ORDER BY created_at`, campaignID,
	)
	if err != nil {
		return nil, fmt.Errorf("list milestones: %w", err)
	}
	defer rows.Close()

	var milestones []model.Milestone
	for rows.Next() {
		var m model.Milestone
		if err := rows.Scan(&m.ID, &m.CampaignID, &m.Axis, &m.Tier, &m.TurnNumber, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan milestone: %w", err)
		}
		milestones = append(milestones, m)
	}
	return milestones, rows.Err()
}
