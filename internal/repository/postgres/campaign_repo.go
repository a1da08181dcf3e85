package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mkieran/demesne/internal/model"
)

// CampaignRepo handles campaign and membership database operations.
type CampaignRepo struct {
	db *sql.DB
}

// NewCampaignRepo creates a CampaignRepo.
func NewCampaignRepo(db *sql.DB) *CampaignRepo {
	return &CampaignRepo{db: db}
}

const campaignColumns = `id, name, creator_id, status, turn_duration, created_at, started_at, finished_at`

func scanCampaign(row interface{ Scan(...any) error }) (*model.Campaign, error) {
	var c model.Campaign
	err := row.Scan(&c.ID, &c.Name, &c.CreatorID, &c.Status, &c.TurnDuration,
		&c.CreatedAt, &c.StartedAt, &c.FinishedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create inserts a new campaign in waiting status and enrolls the creator
// as its ruler.
func (r *CampaignRepo) Create(ctx context.Context, name, creatorID, turnDuration string) (*model.Campaign, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create campaign: %w", err)
	}
	defer tx.Rollback()

	c, err := scanCampaign(tx.QueryRowContext(ctx,
		`INSERT INTO campaigns (name, creator_id, status, turn_duration)
		 VALUES ($1, $2, 'waiting', $3)
		 RETURNING `+campaignColumns,
		name, creatorID, turnDuration,
	))
	if err != nil {
		return nil, fmt.Errorf("create campaign: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO campaign_members (campaign_id, user_id, role) VALUES ($1, $2, 'ruler')`,
		c.ID, creatorID,
	); err != nil {
		return nil, fmt.Errorf("enroll creator: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create campaign: %w", err)
	}
	return c, nil
}

// FindByID returns a campaign with its members loaded.
func (r *CampaignRepo) FindByID(ctx context.Context, id string) (*model.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find campaign: %w", err)
	}
	c.Members, err = r.Members(ctx, id)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListOpen returns campaigns still waiting for members.
func (r *CampaignRepo) ListOpen(ctx context.Context) ([]model.Campaign, error) {
	return r.list(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE status = 'waiting' ORDER BY created_at DESC`)
}

// ListByUser returns campaigns the user belongs to.
func (r *CampaignRepo) ListByUser(ctx context.Context, userID string) ([]model.Campaign, error) {
	return r.list(ctx,
		`SELECT c.id, c.name, c.creator_id, c.status, c.turn_duration, c.created_at, c.started_at, c.finished_at
		 FROM campaigns c
		 JOIN campaign_members m ON m.campaign_id = c.id
		 WHERE m.user_id = $1 ORDER BY c.created_at DESC`, userID)
}

// ListActive returns campaigns currently in play.
func (r *CampaignRepo) ListActive(ctx context.Context) ([]model.Campaign, error) {
	return r.list(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE status = 'active'`)
}

func (r *CampaignRepo) list(ctx context.Context, query string, args ...any) ([]model.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []model.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// Join enrolls a user in a campaign with the given role.
func (r *CampaignRepo) Join(ctx context.Context, campaignID, userID, role string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO campaign_members (campaign_id, user_id, role) VALUES ($1, $2, $3)`,
		campaignID, userID, role,
	)
	if err != nil {
		return fmt.Errorf("join campaign: %w", err)
	}
	return nil
}

// Members returns a campaign's membership.
func (r *CampaignRepo) Members(ctx context.Context, campaignID string) ([]model.CampaignMember, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT campaign_id, user_id, role, joined_at
		 FROM campaign_members WHERE campaign_id = $1 ORDER BY joined_at`, campaignID,
	)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []model.CampaignMember
	for rows.Next() {
		var m model.CampaignMember
		if err := rows.Scan(&m.CampaignID, &m.UserID, &m.Role, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// MemberCount returns how many users belong to a campaign.
func (r *CampaignRepo) MemberCount(ctx context.Context, campaignID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM campaign_members WHERE campaign_id = $1`, campaignID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("member count: %w", err)
	}
	return n, nil
}

// SetStarted moves a campaign to active status.
func (r *CampaignRepo) SetStarted(ctx context.Context, campaignID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE campaigns SET status = 'active', started_at = now() WHERE id = $1`, campaignID,
	)
	if err != nil {
		return fmt.Errorf("start campaign: %w", err)
	}
	return nil
}

// SetFinished moves a campaign to finished status.
func (r *CampaignRepo) SetFinished(ctx context.Context, campaignID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE campaigns SET status = 'finished', finished_at = now() WHERE id = $1`, campaignID,
	)
	if err != nil {
		return fmt.Errorf("finish campaign: %w", err)
	}
	return nil
}

// Delete removes a campaign and (via cascade) its members, turns, checks,
// and milestones.
func (r *CampaignRepo) Delete(ctx context.Context, campaignID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM campaigns WHERE id = $1`, campaignID)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	return nil
}
