// Package store keeps a history of generated proposals. SQLite is the default
// backend; a postgres:// DSN switches to Postgres through the pgx stdlib driver.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/joelkehle/sales-proposal-agency/internal/proposal"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("proposal not found")

// Fixed-width UTC timestamps so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS proposals (
	proposal_id    TEXT PRIMARY KEY,
	customer       TEXT NOT NULL DEFAULT '',
	complexity     TEXT NOT NULL,
	business_model TEXT NOT NULL,
	currency       TEXT NOT NULL DEFAULT '',
	diy_cost       BIGINT NOT NULL,
	final_total    BIGINT NOT NULL,
	report_mode    TEXT NOT NULL,
	consistent     INTEGER NOT NULL DEFAULT 1,
	created_at     TEXT NOT NULL,
	envelope       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS proposals_created_at ON proposals (created_at);
`

// Summary is one row of the proposal history.
type Summary struct {
	ProposalID    string    `db:"proposal_id" json:"proposal_id"`
	Customer      string    `db:"customer" json:"customer,omitempty"`
	Complexity    string    `db:"complexity" json:"complexity"`
	BusinessModel string    `db:"business_model" json:"business_model"`
	Currency      string    `db:"currency" json:"currency"`
	DIYCost       int64     `db:"diy_cost" json:"diy_cost"`
	FinalTotal    int64     `db:"final_total" json:"final_total"`
	ReportMode    string    `db:"report_mode" json:"report_mode"`
	Consistent    bool      `db:"-" json:"consistent"`
	CreatedAt     time.Time `db:"-" json:"created_at"`
}

type summaryRow struct {
	Summary
	ConsistentInt int    `db:"consistent"`
	CreatedAtRaw  string `db:"created_at"`
}

type Store struct {
	db     *sqlx.DB
	driver string
	now    func() time.Time
}

const sqlitePragmas = "_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)"

// sqliteSource appends the WAL and busy-timeout pragmas, keeping any query the DSN already has.
func sqliteSource(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
		if strings.HasSuffix(dsn, "?") || strings.HasSuffix(dsn, "&") {
			sep = ""
		}
	}
	return dsn + sep + sqlitePragmas
}

// Open connects to dsn and creates the schema. A DSN starting with postgres://
// or postgresql:// uses Postgres; anything else is treated as a SQLite file path.
func Open(dsn string) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("store: empty dsn")
	}
	driver, source := "sqlite", sqliteSource(dsn)
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver, source = "pgx", dsn
	}
	db, err := sqlx.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return &Store{db: db, driver: driver, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Driver() string { return s.driver }

// Save upserts the envelope keyed by its proposal ID.
func (s *Store) Save(ctx context.Context, env proposal.ResponseEnvelope) error {
	if strings.TrimSpace(env.ProposalID) == "" {
		return errors.New("store: proposal_id is required")
	}
	blob, err := json.Marshal(env)
	if err != nil {
		return err
	}
	created := env.PipelineMetadata.CompletedAt
	if created.IsZero() {
		created = s.now()
	}
	consistent := 0
	if env.Consistency.IsConsistent {
		consistent = 1
	}
	q := s.db.Rebind(`INSERT INTO proposals
		(proposal_id, customer, complexity, business_model, currency, diy_cost, final_total, report_mode, consistent, created_at, envelope)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (proposal_id) DO UPDATE SET
			customer = excluded.customer,
			complexity = excluded.complexity,
			business_model = excluded.business_model,
			currency = excluded.currency,
			diy_cost = excluded.diy_cost,
			final_total = excluded.final_total,
			report_mode = excluded.report_mode,
			consistent = excluded.consistent,
			created_at = excluded.created_at,
			envelope = excluded.envelope`)
	_, err = s.db.ExecContext(ctx, q,
		env.ProposalID, env.Customer, string(env.Profile.Complexity), string(env.Profile.BusinessModel), env.Currency,
		env.Quote.DIYCost, env.Quote.FinalTotal, string(env.ReportMode), consistent,
		created.UTC().Format(timeLayout), string(blob))
	if err != nil {
		return fmt.Errorf("save proposal %s: %w", env.ProposalID, err)
	}
	return nil
}

// Record lets the store act as a proposal.ResultSink.
func (s *Store) Record(ctx context.Context, env proposal.ResponseEnvelope) error {
	return s.Save(ctx, env)
}

func (s *Store) Get(ctx context.Context, id string) (proposal.ResponseEnvelope, error) {
	var blob string
	err := s.db.GetContext(ctx, &blob, s.db.Rebind(`SELECT envelope FROM proposals WHERE proposal_id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return proposal.ResponseEnvelope{}, ErrNotFound
	}
	if err != nil {
		return proposal.ResponseEnvelope{}, err
	}
	var env proposal.ResponseEnvelope
	if err := json.Unmarshal([]byte(blob), &env); err != nil {
		return proposal.ResponseEnvelope{}, fmt.Errorf("decode proposal %s: %w", id, err)
	}
	return env, nil
}

// List returns the newest proposals first. limit <= 0 means 50.
func (s *Store) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []summaryRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`SELECT proposal_id, customer, complexity, business_model, currency,
		diy_cost, final_total, report_mode, consistent, created_at
		FROM proposals ORDER BY created_at DESC, proposal_id LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(rows))
	for _, r := range rows {
		sum := r.Summary
		sum.Consistent = r.ConsistentInt != 0
		sum.CreatedAt, _ = time.Parse(timeLayout, r.CreatedAtRaw)
		out = append(out, sum)
	}
	return out, nil
}
