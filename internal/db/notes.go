package db

import (
	"context"
	"fmt"
	"time"
)

func (s *Store) SaveNotes(ctx context.Context, note *Note) error {
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now().UTC()
	}
	if _, err := s.db.NewInsert().Model(note).Exec(ctx); err != nil {
		return fmt.Errorf("failed to save notes: %w", err)
	}
	return nil
}

// ListNotes returns the notes generated for source, newest first. An empty topic matches all.
func (s *Store) ListNotes(ctx context.Context, source, topic string) ([]Note, error) {
	notes := []Note{}
	q := s.db.NewSelect().Model(&notes).Where("source_id = ?", source)
	if topic != "" {
		q = q.Where("topic = ?", topic)
	}
	if err := q.Order("id DESC").Scan(ctx); err != nil {
		return nil, err
	}
	return notes, nil
}
