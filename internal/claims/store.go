package claims

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists extracted claims per wave so the cross-wave checker can
// load the full corpus of earlier waves without keeping raw outputs live.
type Store struct {
	db *sql.DB
}

// NewStore opens (and migrates) a claim database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open claim database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate claim database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS claims (
			phase       TEXT NOT NULL,
			wave        INTEGER NOT NULL,
			document    TEXT NOT NULL,
			claim_id    TEXT NOT NULL,
			text        TEXT NOT NULL,
			claim_type  TEXT NOT NULL,
			confidence  REAL NOT NULL,
			uncertainty TEXT,
			sources     TEXT NOT NULL,
			created_at  TEXT NOT NULL,
			PRIMARY KEY (wave, document, claim_id)
		);

		CREATE INDEX IF NOT EXISTS idx_claims_wave ON claims(wave);
		CREATE INDEX IF NOT EXISTS idx_claims_phase ON claims(phase);
	`)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveBatch inserts or replaces claims for a wave. Re-running a step
// after rework overwrites its earlier rows.
func (s *Store) SaveBatch(ctx context.Context, phase string, wave int, batch []Claim) error {
	if len(batch) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO claims
			(phase, wave, document, claim_id, text, claim_type, confidence, uncertainty, sources, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, c := range batch {
		sources, err := json.Marshal(c.Sources)
		if err != nil {
			return fmt.Errorf("encode sources for claim %s: %w", c.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			phase, wave, c.Document, c.ID, c.Text, string(c.Type),
			c.Confidence, c.Uncertainty, string(sources), now,
		); err != nil {
			return fmt.Errorf("insert claim %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit claims: %w", err)
	}
	return nil
}

// ByWave returns all claims produced by a single wave, in insertion order.
func (s *Store) ByWave(ctx context.Context, wave int) ([]Claim, error) {
	return s.query(ctx, `SELECT document, claim_id, text, claim_type, confidence, uncertainty, sources
		FROM claims WHERE wave = ? ORDER BY document, claim_id`, wave)
}

// BeforeWave returns all claims produced by waves earlier than wave.
func (s *Store) BeforeWave(ctx context.Context, wave int) ([]Claim, error) {
	return s.query(ctx, `SELECT document, claim_id, text, claim_type, confidence, uncertainty, sources
		FROM claims WHERE wave < ? ORDER BY wave, document, claim_id`, wave)
}

// ByPhase returns all claims produced within a phase.
func (s *Store) ByPhase(ctx context.Context, phase string) ([]Claim, error) {
	return s.query(ctx, `SELECT document, claim_id, text, claim_type, confidence, uncertainty, sources
		FROM claims WHERE phase = ? ORDER BY wave, document, claim_id`, phase)
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Claim, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query claims: %w", err)
	}
	defer rows.Close()

	var result []Claim
	for rows.Next() {
		var c Claim
		var claimType, sources string
		var uncertainty sql.NullString
		if err := rows.Scan(&c.Document, &c.ID, &c.Text, &claimType, &c.Confidence, &uncertainty, &sources); err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		c.Type = ClaimType(claimType)
		c.Uncertainty = uncertainty.String
		if err := json.Unmarshal([]byte(sources), &c.Sources); err != nil {
			return nil, fmt.Errorf("decode sources for claim %s: %w", c.ID, err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}
