package db

import (
	"time"

	"study-planner/internal/models"

	"github.com/uptrace/bun"
)

type Conversation struct {
	bun.BaseModel `bun:"table:conversations,alias:c"`
	ID            int64     `bun:"id,pk,autoincrement" json:"conversation_id"`
	Title         string    `bun:"title,notnull" json:"title"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
}

// Turn is one immutable message. ID order is insertion order.
type Turn struct {
	bun.BaseModel  `bun:"table:turns,alias:t"`
	ID             int64       `bun:"id,pk,autoincrement" json:"id"`
	ConversationID int64       `bun:"conversation_id,notnull" json:"conversation_id"`
	Role           models.Role `bun:"role,notnull" json:"role"`
	Text           string      `bun:"text,notnull" json:"text"`
	CreatedAt      time.Time   `bun:"created_at,notnull" json:"created_at"`
}

type Plan struct {
	bun.BaseModel `bun:"table:plans,alias:p"`
	ID            int64     `bun:"id,pk,autoincrement" json:"plan_id"`
	SourceID      string    `bun:"source_id,notnull" json:"source_id"`
	Week          int       `bun:"week,notnull" json:"week"`
	Text          string    `bun:"text,notnull" json:"plan"`
	Approved      bool      `bun:"approved,notnull" json:"approved"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
}

type Progress struct {
	bun.BaseModel `bun:"table:progress,alias:pr"`
	ID            int64 `bun:"id,pk,autoincrement" json:"id"`
	PlanID        int64 `bun:"plan_id,notnull" json:"plan_id"`
	Week          int   `bun:"week,notnull" json:"week"`
	Completed     int   `bun:"completed,notnull" json:"completed"`
}

type Note struct {
	bun.BaseModel `bun:"table:notes,alias:n"`
	ID            int64     `bun:"id,pk,autoincrement" json:"note_id"`
	SourceID      string    `bun:"source_id,notnull" json:"source_id"`
	Topic         string    `bun:"topic,notnull" json:"topic"`
	Text          string    `bun:"text,notnull" json:"notes"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
}
