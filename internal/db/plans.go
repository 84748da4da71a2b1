package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"study-planner/internal/models"

	"github.com/uptrace/bun"
)

// SavePlan stores a generated plan and its progress row in one transaction. IDs are set on
// the passed values.
func (s *Store) SavePlan(ctx context.Context, plan *Plan, progress *Progress) error {
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now().UTC()
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(plan).Exec(ctx); err != nil {
			return fmt.Errorf("failed to save plan: %w", err)
		}
		progress.PlanID = plan.ID
		progress.Week = plan.Week
		if _, err := tx.NewInsert().Model(progress).Exec(ctx); err != nil {
			return fmt.Errorf("failed to save progress: %w", err)
		}
		return nil
	})
}

// ApprovePlan marks exactly the given plan approved.
func (s *Store) ApprovePlan(ctx context.Context, planID int64) error {
	res, err := s.db.NewUpdate().Model((*Plan)(nil)).
		Set("approved = ?", true).
		Where("id = ?", planID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to approve plan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return planNotFound(planID)
	}
	return nil
}

func (s *Store) GetPlan(ctx context.Context, planID int64) (*Plan, error) {
	p := new(Plan)
	err := s.db.NewSelect().Model(p).Where("id = ?", planID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, planNotFound(planID)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetProgress returns the progress rows recorded for a plan.
func (s *Store) GetProgress(ctx context.Context, planID int64) ([]Progress, error) {
	rows := []Progress{}
	if err := s.db.NewSelect().Model(&rows).Where("plan_id = ?", planID).Order("id ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

// ListPlans returns the plans of source, newest first.
func (s *Store) ListPlans(ctx context.Context, source string) ([]Plan, error) {
	plans := []Plan{}
	if err := s.db.NewSelect().Model(&plans).Where("source_id = ?", source).Order("id DESC").Scan(ctx); err != nil {
		return nil, err
	}
	return plans, nil
}

func planNotFound(id int64) error {
	return fmt.Errorf("plan %d: %w", id, models.ErrNotFound)
}
