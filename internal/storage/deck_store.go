package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"slidedeck/internal/domain"
)

// DeckStore implements domain.DeckRepository on a SQL database.
type DeckStore struct {
	db  *DB
	now func() time.Time
}

func NewDeckStore(db *DB) *DeckStore {
	return &DeckStore{db: db, now: time.Now}
}

func (s *DeckStore) SaveDeck(ctx context.Context, d *domain.Deck) error {
	if d == nil || d.ID == "" {
		return fmt.Errorf("save deck: missing id")
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode deck %s: %w", d.ID, err)
	}
	q := s.db.upsert("decks", "id", []string{"id", "title", "theme", "slide_count", "deck_json", "created_at", "updated_at"})
	_, err = s.db.conn.ExecContext(ctx, q,
		d.ID, d.Title, d.Theme, len(d.Slides), string(raw), d.CreatedAt, s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save deck %s: %w", d.ID, err)
	}
	return nil
}

func (s *DeckStore) GetDeck(ctx context.Context, id string) (*domain.Deck, error) {
	var raw string
	err := s.db.conn.QueryRowContext(ctx, s.db.rebind(`SELECT deck_json FROM decks WHERE id = ?`), id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrDeckNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get deck %s: %w", id, err)
	}
	var d domain.Deck
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, fmt.Errorf("decode deck %s: %w", id, err)
	}
	return &d, nil
}

// ListDecks returns summaries, most recently saved first.
func (s *DeckStore) ListDecks(ctx context.Context) ([]domain.DeckSummary, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT id, title, slide_count, updated_at FROM decks ORDER BY updated_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list decks: %w", err)
	}
	defer rows.Close()

	var out []domain.DeckSummary
	for rows.Next() {
		var (
			sum     domain.DeckSummary
			updated int64
		)
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.SlideCount, &updated); err != nil {
			return nil, fmt.Errorf("scan deck: %w", err)
		}
		sum.UpdatedAt = time.UnixMilli(updated).UTC()
		out = append(out, sum)
	}
	return out, rows.Err()
}

// DeleteDeck removes the deck and its revisions.
func (s *DeckStore) DeleteDeck(ctx context.Context, id string) error {
	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.db.rebind(`DELETE FROM decks WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete deck %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrDeckNotFound, id)
	}
	if _, err := tx.ExecContext(ctx, s.db.rebind(`DELETE FROM deck_revisions WHERE deck_id = ?`), id); err != nil {
		return fmt.Errorf("delete revisions of %s: %w", id, err)
	}
	return tx.Commit()
}

// Close closes the underlying database.
func (s *DeckStore) Close() error {
	return s.db.Close()
}
