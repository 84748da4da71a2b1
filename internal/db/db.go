package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"study-planner/internal/config"
	"study-planner/internal/helper"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
	_ "modernc.org/sqlite"
)

const sqlitePragmas = "_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"

// Connect opens the record store selected by cfg.Driver.
func Connect(cfg config.DatabaseConfig) (*bun.DB, error) {
	var db *bun.DB
	switch cfg.Driver {
	case "sqlite":
		sqldb, err := sql.Open("sqlite", sqliteDSN(cfg.DSN))
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %v", err)
		}
		// one writer; also keeps a :memory: database alive on a single connection
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	case "pgdriver":
		opts := []pgdriver.Option{pgdriver.WithDSN(cfg.DSN)}
		if pw := config.Secret(cfg.PasswordEnv); pw != "" {
			opts = append(opts, pgdriver.WithPassword(pw))
		}
		db = bun.NewDB(sql.OpenDB(pgdriver.NewConnector(opts...)), pgdialect.New())
	case "pq":
		sqldb, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %v", err)
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	if cfg.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	log.Debug().Str("driver", cfg.Driver).Msg("record store opened")
	return db, nil
}

func sqliteDSN(dsn string) string {
	if dsn == "" {
		dsn = ":memory:"
	}
	if strings.Contains(dsn, "?") {
		return dsn
	}
	if dsn == ":memory:" {
		return dsn + "?_pragma=foreign_keys(ON)"
	}
	if i := strings.LastIndex(dsn, "/"); i > 0 {
		if err := helper.CreateFolder(dsn[:i]); err != nil {
			log.Warn().Err(err).Msg("could not create database folder")
		}
	}
	return dsn + "?" + sqlitePragmas
}

// Store is the durable record store for conversations, plans and notes.
type Store struct {
	db    *bun.DB
	locks *helper.KeyedMutex
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db, locks: helper.NewKeyedMutex()}
}

// OpenStore connects and creates the schema.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	db, err := Connect(cfg)
	if err != nil {
		return nil, err
	}
	s := NewStore(db)
	if err := s.Init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Init creates every table that does not exist yet.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().Model((*Conversation)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create conversations: %v", err)
	}
	if _, err := s.db.NewCreateTable().Model((*Turn)(nil)).IfNotExists().
		ForeignKey(`("conversation_id") REFERENCES "conversations" ("id") ON DELETE CASCADE`).
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to create turns: %v", err)
	}
	if _, err := s.db.NewCreateTable().Model((*Plan)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create plans: %v", err)
	}
	if _, err := s.db.NewCreateTable().Model((*Progress)(nil)).IfNotExists().
		ForeignKey(`("plan_id") REFERENCES "plans" ("id") ON DELETE CASCADE`).
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to create progress: %v", err)
	}
	if _, err := s.db.NewCreateTable().Model((*Note)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create notes: %v", err)
	}
	if _, err := s.db.NewCreateIndex().Model((*Turn)(nil)).Index("turns_conversation_idx").
		IfNotExists().Column("conversation_id", "id").Exec(ctx); err != nil {
		return fmt.Errorf("failed to index turns: %v", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DropAll removes every table. Call Init afterwards to start from an empty database.
func (s *Store) DropAll(ctx context.Context) error {
	for _, model := range []any{(*Progress)(nil), (*Plan)(nil), (*Turn)(nil), (*Conversation)(nil), (*Note)(nil)} {
		if _, err := s.db.NewDropTable().Model(model).IfExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}
