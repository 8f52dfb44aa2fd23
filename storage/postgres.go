package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tender-notifier/pkg/tender"
)

const schema = `
CREATE TABLE IF NOT EXISTS latest_snapshot (
	id           integer PRIMARY KEY,
	payload      jsonb,
	live_tenders integer NOT NULL DEFAULT 0,
	count        integer NOT NULL DEFAULT 0,
	scraped_at   timestamptz
);
CREATE TABLE IF NOT EXISTS user_profiles (
	user_id    text PRIMARY KEY,
	data       jsonb NOT NULL,
	updated_at timestamptz NOT NULL
);
CREATE TABLE IF NOT EXISTS alert_preferences (
	user_id    text PRIMARY KEY,
	data       jsonb NOT NULL,
	updated_at timestamptz NOT NULL
);`

// Postgres keeps the snapshot row and user rows in a relational database.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresPool creates and verifies a pgxpool connection pool.
func NewPostgresPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	return pool, nil
}

// NewPostgres wraps pool and creates the tables if they are missing.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (*Postgres, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Postgres{pool: pool, logger: logger}, nil
}

// Snapshot reads the id=1 row. A NULL payload yields a nil Payload.
func (p *Postgres) Snapshot(ctx context.Context) (*tender.Snapshot, error) {
	var (
		payload   []byte
		scrapedAt *time.Time
		snap      tender.Snapshot
	)
	err := p.pool.QueryRow(ctx,
		`SELECT id, payload, live_tenders, count, scraped_at
		 FROM latest_snapshot
		 WHERE id = $1`,
		tender.SnapshotID,
	).Scan(&snap.ID, &payload, &snap.LiveTenders, &snap.Count, &scrapedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select snapshot: %w", err)
	}

	if scrapedAt != nil {
		snap.ScrapedAt = *scrapedAt
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &snap.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot payload: %w", err)
		}
	}
	return &snap, nil
}

// SaveSnapshot upserts the id=1 row wholesale.
func (p *Postgres) SaveSnapshot(ctx context.Context, snap *tender.Snapshot) error {
	var payload []byte
	if snap.Payload != nil {
		var err error
		payload, err = json.Marshal(snap.Payload)
		if err != nil {
			return fmt.Errorf("marshal snapshot payload: %w", err)
		}
	}

	_, err := p.pool.Exec(ctx,
		`INSERT INTO latest_snapshot (id, payload, live_tenders, count, scraped_at)
		 VALUES ($1, $2::jsonb, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE
		 SET payload = EXCLUDED.payload,
		     live_tenders = EXCLUDED.live_tenders,
		     count = EXCLUDED.count,
		     scraped_at = EXCLUDED.scraped_at`,
		tender.SnapshotID, payload, snap.LiveTenders, snap.Count, snap.ScrapedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	snap.ID = tender.SnapshotID
	p.logger.Info("Snapshot saved", "tenders", len(snap.Payload), "live_tenders", snap.LiveTenders)
	return nil
}

// Profile loads a user's onboarding profile.
func (p *Postgres) Profile(ctx context.Context, userID string) (*tender.Profile, error) {
	var prof tender.Profile
	if err := p.loadRow(ctx, "user_profiles", userID, &prof); err != nil {
		return nil, err
	}
	return &prof, nil
}

// SaveProfile upserts a user's profile.
func (p *Postgres) SaveProfile(ctx context.Context, prof *tender.Profile) error {
	return p.upsertRow(ctx, "user_profiles", prof.UserID, prof)
}

// Preferences loads a user's alert preferences.
func (p *Postgres) Preferences(ctx context.Context, userID string) (*tender.AlertPreferences, error) {
	var prefs tender.AlertPreferences
	if err := p.loadRow(ctx, "alert_preferences", userID, &prefs); err != nil {
		return nil, err
	}
	return &prefs, nil
}

// SavePreferences upserts a user's alert preferences.
func (p *Postgres) SavePreferences(ctx context.Context, prefs *tender.AlertPreferences) error {
	return p.upsertRow(ctx, "alert_preferences", prefs.UserID, prefs)
}

// table is always one of the constants above, never user input.
func (p *Postgres) loadRow(ctx context.Context, table, userID string, v any) error {
	var data []byte
	err := p.pool.QueryRow(ctx, `SELECT data FROM `+table+` WHERE user_id = $1`, userID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("select %s: %w", table, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", table, err)
	}
	return nil
}

func (p *Postgres) upsertRow(ctx context.Context, table, userID string, v any) error {
	if userID == "" {
		return errors.New("empty user id")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", table, err)
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO `+table+` (user_id, data, updated_at)
		 VALUES ($1, $2::jsonb, now())
		 ON CONFLICT (user_id) DO UPDATE
		 SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		userID, data,
	)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", table, err)
	}
	p.logger.Debug("Row upserted", "table", table, "user_id", userID)
	return nil
}
