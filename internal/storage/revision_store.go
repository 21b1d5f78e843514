package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"slidedeck/internal/domain"
)

// DefaultRevisionLimit is how many revisions are kept per deck.
const DefaultRevisionLimit = 40

// Revision is one persisted snapshot of a deck.
type Revision struct {
	ID        string       `json:"id"`
	DeckID    string       `json:"deckId"`
	Label     string       `json:"label"`
	Deck      *domain.Deck `json:"deck,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
}

// RevisionStore keeps a bounded, append-only list of deck snapshots. It is
// durable history for restore, separate from the in-memory undo stack.
type RevisionStore struct {
	db    *DB
	limit int
	now   func() time.Time
}

func NewRevisionStore(db *DB, limit int) *RevisionStore {
	if limit <= 0 {
		limit = DefaultRevisionLimit
	}
	return &RevisionStore{db: db, limit: limit, now: time.Now}
}

// Record appends a snapshot of d and prunes the oldest ones over the limit.
func (s *RevisionStore) Record(ctx context.Context, d *domain.Deck, label string) error {
	if d == nil {
		return nil
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode revision: %w", err)
	}

	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx, s.db.rebind(`SELECT COALESCE(MAX(seq), 0) FROM deck_revisions WHERE deck_id = ?`), d.ID).Scan(&seq)
	if err != nil {
		return fmt.Errorf("next revision seq: %w", err)
	}
	seq++

	_, err = tx.ExecContext(ctx, s.db.rebind(
		`INSERT INTO deck_revisions (id, deck_id, label, deck_json, seq, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
		uuid.NewString(), d.ID, label, string(raw), seq, s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert revision: %w", err)
	}

	if seq > int64(s.limit) {
		_, err = tx.ExecContext(ctx, s.db.rebind(`DELETE FROM deck_revisions WHERE deck_id = ? AND seq <= ?`), d.ID, seq-int64(s.limit))
		if err != nil {
			return fmt.Errorf("prune revisions: %w", err)
		}
	}
	return tx.Commit()
}

// List returns the revisions of deckID, newest first, without snapshots.
func (s *RevisionStore) List(ctx context.Context, deckID string) ([]Revision, error) {
	rows, err := s.db.conn.QueryContext(ctx, s.db.rebind(
		`SELECT id, deck_id, label, created_at FROM deck_revisions WHERE deck_id = ? ORDER BY seq DESC`), deckID)
	if err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	defer rows.Close()

	var out []Revision
	for rows.Next() {
		var (
			r       Revision
			created int64
		)
		if err := rows.Scan(&r.ID, &r.DeckID, &r.Label, &created); err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		r.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// Get loads one revision including its deck snapshot.
func (s *RevisionStore) Get(ctx context.Context, id string) (*Revision, error) {
	var (
		r       Revision
		raw     string
		created int64
	)
	err := s.db.conn.QueryRowContext(ctx, s.db.rebind(
		`SELECT id, deck_id, label, deck_json, created_at FROM deck_revisions WHERE id = ?`), id,
	).Scan(&r.ID, &r.DeckID, &r.Label, &raw, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("revision %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get revision %s: %w", id, err)
	}
	r.CreatedAt = time.UnixMilli(created).UTC()
	r.Deck = &domain.Deck{}
	if err := json.Unmarshal([]byte(raw), r.Deck); err != nil {
		return nil, fmt.Errorf("decode revision %s: %w", id, err)
	}
	return &r, nil
}
