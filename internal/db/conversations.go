package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"study-planner/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
)

// CreateConversation starts an untitled conversation and returns its id.
func (s *Store) CreateConversation(ctx context.Context) (int64, error) {
	c, err := createConversation(ctx, s.db)
	if err != nil {
		return 0, err
	}
	return c.ID, nil
}

func (s *Store) GetConversation(ctx context.Context, id int64) (*Conversation, error) {
	c := new(Conversation)
	err := s.db.NewSelect().Model(c).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, conversationNotFound(id)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListConversations returns conversations newest first.
func (s *Store) ListConversations(ctx context.Context) ([]Conversation, error) {
	convs := []Conversation{}
	if err := s.db.NewSelect().Model(&convs).Order("id DESC").Scan(ctx); err != nil {
		return nil, err
	}
	return convs, nil
}

// AppendTurn adds one turn to an existing conversation.
func (s *Store) AppendTurn(ctx context.Context, id int64, role models.Role, text string) (*Turn, error) {
	if err := validateTurn(role, text); err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(lockKey(id))
	defer unlock()

	var turn *Turn
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := ensureConversation(ctx, tx, id); err != nil {
			return err
		}
		var err error
		turn, err = insertTurn(ctx, tx, id, role, text)
		return err
	})
	if err != nil {
		return nil, err
	}
	return turn, nil
}

// AppendExchange records a student question and the tutor answer together and titles the
// conversation from the question if it is still untitled. id 0 creates the conversation in
// the same transaction, so nothing is written unless both turns are. Returns the conversation
// as it stands afterwards.
func (s *Store) AppendExchange(ctx context.Context, id int64, question, answer string) (*Conversation, error) {
	if err := validateTurn(models.RoleStudent, question); err != nil {
		return nil, err
	}
	if err := validateTurn(models.RoleTutor, answer); err != nil {
		return nil, err
	}
	if id != 0 {
		unlock := s.locks.Lock(lockKey(id))
		defer unlock()
	}

	conv := new(Conversation)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		convID := id
		if convID == 0 {
			created, err := createConversation(ctx, tx)
			if err != nil {
				return err
			}
			convID = created.ID
		} else if err := ensureConversation(ctx, tx, convID); err != nil {
			return err
		}
		if _, err := insertTurn(ctx, tx, convID, models.RoleStudent, question); err != nil {
			return err
		}
		if _, err := insertTurn(ctx, tx, convID, models.RoleTutor, answer); err != nil {
			return err
		}
		if _, err := renameIfUntitled(ctx, tx, convID, question); err != nil {
			return err
		}
		return tx.NewSelect().Model(conv).Where("id = ?", convID).Scan(ctx)
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// GetHistory returns every turn of the conversation in insertion order.
func (s *Store) GetHistory(ctx context.Context, id int64) ([]Turn, error) {
	turns := []Turn{}
	err := s.db.NewSelect().Model(&turns).Where("conversation_id = ?", id).Order("id ASC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	return turns, nil
}

// RenameIfUntitled replaces the placeholder title with one derived from candidate. It only
// ever succeeds once per conversation and reports whether it did.
func (s *Store) RenameIfUntitled(ctx context.Context, id int64, candidate string) (bool, error) {
	unlock := s.locks.Lock(lockKey(id))
	defer unlock()

	var renamed bool
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := ensureConversation(ctx, tx, id); err != nil {
			return err
		}
		var err error
		renamed, err = renameIfUntitled(ctx, tx, id, candidate)
		return err
	})
	return renamed, err
}

func renameIfUntitled(ctx context.Context, db bun.IDB, id int64, candidate string) (bool, error) {
	title := models.DeriveTitle(candidate)
	if title == "" || title == models.UntitledConversation {
		return false, nil
	}
	res, err := db.NewUpdate().Model((*Conversation)(nil)).
		Set("title = ?", title).
		Where("id = ?", id).
		Where("title = ?", models.UntitledConversation).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to rename conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		log.Debug().Int64("conversation_id", id).Str("title", title).Msg("conversation titled")
	}
	return n > 0, nil
}

func createConversation(ctx context.Context, db bun.IDB) (*Conversation, error) {
	c := &Conversation{Title: models.UntitledConversation, CreatedAt: time.Now().UTC()}
	if _, err := db.NewInsert().Model(c).Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	log.Debug().Int64("conversation_id", c.ID).Msg("conversation created")
	return c, nil
}

func insertTurn(ctx context.Context, db bun.IDB, id int64, role models.Role, text string) (*Turn, error) {
	turn := &Turn{ConversationID: id, Role: role, Text: text, CreatedAt: time.Now().UTC()}
	if _, err := db.NewInsert().Model(turn).Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to append %s turn: %w", role, err)
	}
	return turn, nil
}

func ensureConversation(ctx context.Context, db bun.IDB, id int64) error {
	exists, err := db.NewSelect().Model((*Conversation)(nil)).Where("id = ?", id).Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return conversationNotFound(id)
	}
	return nil
}

func validateTurn(role models.Role, text string) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", models.ErrInput, role)
	}
	if strings.TrimSpace(text) == "" {
		return models.InputError("text")
	}
	return nil
}

func conversationNotFound(id int64) error {
	return fmt.Errorf("conversation %d: %w", id, models.ErrNotFound)
}

func lockKey(id int64) string {
	return "conversation:" + strconv.FormatInt(id, 10)
}
