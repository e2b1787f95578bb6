package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/andresmejia3/aist/internal/identity"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

var ErrNotFound = errors.New("identity not found")

// Store manages the PostgreSQL pool and pgvector operations.
type Store struct {
	pool *pgxpool.Pool
}

// Identity is one gallery row.
type Identity struct {
	Position  int
	Label     string
	Dim       int
	CreatedAt time.Time
}

// MatchEvent is one recognition outcome recorded during a scan.
type MatchEvent struct {
	SessionID  uuid.UUID
	Seq        int
	Camera     int
	ObservedAt time.Time
	Outcome    string
	Label      string
	Distance   float64
}

// New establishes a connection pool and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

// initSchema creates the tables and vector extension if they don't exist (Auto-Migration).
// The embedding column has no fixed dimension; the gallery enforces one per snapshot.
func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS identities (
			position INT PRIMARY KEY,
			label TEXT NOT NULL UNIQUE,
			embedding VECTOR NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS match_events (
			id BIGSERIAL PRIMARY KEY,
			session_id UUID NOT NULL,
			seq INT NOT NULL,
			camera INT NOT NULL,
			observed_at TIMESTAMPTZ NOT NULL,
			outcome TEXT NOT NULL,
			label TEXT NOT NULL,
			distance DOUBLE PRECISION NOT NULL
		);
		CREATE INDEX IF NOT EXISTS match_events_session_idx ON match_events (session_id, seq);
	`
	_, err := pool.Exec(ctx, query)
	return err
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

func toVector(vec identity.Embedding) pgvector.Vector {
	f := make([]float32, len(vec))
	for i, v := range vec {
		f[i] = float32(v)
	}
	return pgvector.NewVector(f)
}

func fromVector(v pgvector.Vector) identity.Embedding {
	s := v.Slice()
	out := make(identity.Embedding, len(s))
	for i, f := range s {
		out[i] = float64(f)
	}
	return out
}

// SaveGallery replaces every stored identity with the contents of g.
func (s *Store) SaveGallery(ctx context.Context, g *identity.Gallery) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM identities"); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for i, e := range g.Entries() {
		batch.Queue("INSERT INTO identities (position, label, embedding) VALUES ($1, $2, $3)", i, e.Label, toVector(e.Vec))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert identities: %w", err)
	}

	return tx.Commit(ctx)
}

// LoadGallery rebuilds a gallery from the stored identities, in position order.
func (s *Store) LoadGallery(ctx context.Context) (*identity.Gallery, error) {
	rows, err := s.pool.Query(ctx, "SELECT label, embedding FROM identities ORDER BY position")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	g := identity.NewGallery()
	for rows.Next() {
		var label string
		var vec pgvector.Vector
		if err := rows.Scan(&label, &vec); err != nil {
			return nil, err
		}
		if err := g.Add(label, fromVector(vec)); err != nil {
			return nil, err
		}
	}
	return g, rows.Err()
}

// Nearest runs the threshold match inside Postgres using L2 distance (<->).
// Ties resolve to the lowest position, like the in-memory matcher.
//
// pgvector stores and compares float32 components, so a distance that lands
// within float32 rounding of threshold may fall on the other side of the
// strict "distance < threshold" rule than identity.Match decides in float64.
func (s *Store) Nearest(ctx context.Context, query identity.Embedding, threshold float64) (identity.Result, error) {
	if threshold < 0 || math.IsNaN(threshold) {
		return identity.Result{}, identity.ErrInvalidThreshold
	}

	var label string
	var dist float64
	err := s.pool.QueryRow(ctx, `
		SELECT label, embedding <-> $1 AS distance
		FROM identities
		ORDER BY embedding <-> $1, position
		LIMIT 1
	`, toVector(query)).Scan(&label, &dist)
	if errors.Is(err, pgx.ErrNoRows) {
		return identity.Result{Outcome: identity.NoOne}, nil
	}
	if err != nil {
		return identity.Result{}, err
	}

	if dist >= threshold {
		return identity.Result{Outcome: identity.Unknown, Distance: dist}, nil
	}
	return identity.Result{Outcome: identity.Identified, Label: label, Distance: dist}, nil
}

// ListIdentities returns the stored identities in gallery order.
func (s *Store) ListIdentities(ctx context.Context) ([]Identity, error) {
	rows, err := s.pool.Query(ctx, "SELECT position, label, vector_dims(embedding), created_at FROM identities ORDER BY position")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Identity
	for rows.Next() {
		var id Identity
		if err := rows.Scan(&id.Position, &id.Label, &id.Dim, &id.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// RenameIdentity changes the label of a stored identity.
func (s *Store) RenameIdentity(ctx context.Context, from, to string) error {
	tag, err := s.pool.Exec(ctx, "UPDATE identities SET label = $1 WHERE label = $2", to, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%q: %w", from, ErrNotFound)
	}
	return nil
}

// InsertMatchEvents appends events in one batch.
func (s *Store) InsertMatchEvents(ctx context.Context, events []MatchEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(`
			INSERT INTO match_events (session_id, seq, camera, observed_at, outcome, label, distance)
			VALUES ($1::uuid, $2, $3, $4, $5, $6, $7)
		`, e.SessionID.String(), e.Seq, e.Camera, e.ObservedAt, e.Outcome, e.Label, e.Distance)
	}
	return s.pool.SendBatch(ctx, batch).Close()
}

// SessionEvents returns the events of one session ordered by sequence.
func (s *Store) SessionEvents(ctx context.Context, session uuid.UUID) ([]MatchEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT seq, camera, observed_at, outcome, label, distance
		FROM match_events
		WHERE session_id = $1::uuid
		ORDER BY seq, id
	`, session.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MatchEvent
	for rows.Next() {
		e := MatchEvent{SessionID: session}
		if err := rows.Scan(&e.Seq, &e.Camera, &e.ObservedAt, &e.Outcome, &e.Label, &e.Distance); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Reset drops all application tables to clear the database state.
// This is useful for development to force a schema refresh without migrations.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		DROP TABLE IF EXISTS match_events CASCADE;
		DROP TABLE IF EXISTS identities CASCADE;
	`)
	return err
}
