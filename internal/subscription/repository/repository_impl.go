package repository

import (
	"context"
	"errors"
	"time"

	"github.com/agencyops/credcore/internal/subscription/domain"
	pkgdb "github.com/agencyops/credcore/pkg/db"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repository struct{}

func NewRepository() domain.Repository {
	return &repository{}
}

func (r *repository) Insert(ctx context.Context, db *gorm.DB, sub *domain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (
			id, org_id, plan_id, status, start_at, next_refill_at,
			paused_at, resumed_at, cancelled_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID,
		sub.OrgID,
		sub.PlanID,
		sub.Status,
		sub.StartAt,
		sub.NextRefillAt,
		sub.PausedAt,
		sub.ResumedAt,
		sub.CancelledAt,
		sub.CreatedAt,
		sub.UpdatedAt,
	).Error
}

func (r *repository) FindByOrgID(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := db.WithContext(ctx).Where("org_id = ?", orgID).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repository) FindByOrgIDForUpdate(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*domain.Subscription, error) {
	var subs []domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM subscriptions WHERE org_id = ?`+pkgdb.ForUpdate(db),
		orgID,
	).Scan(&subs).Error
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, nil
	}
	return &subs[0], nil
}

func (r *repository) Update(ctx context.Context, db *gorm.DB, sub *domain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET plan_id = ?, status = ?, start_at = ?, next_refill_at = ?,
		     paused_at = ?, resumed_at = ?, cancelled_at = ?, updated_at = ?
		 WHERE org_id = ?`,
		sub.PlanID,
		sub.Status,
		sub.StartAt,
		sub.NextRefillAt,
		sub.PausedAt,
		sub.ResumedAt,
		sub.CancelledAt,
		sub.UpdatedAt,
		sub.OrgID,
	).Error
}

func (r *repository) ListDue(ctx context.Context, db *gorm.DB, asOf time.Time, limit int) ([]domain.DueSubscription, error) {
	var due []domain.DueSubscription
	stmt := db.WithContext(ctx).Raw(
		`SELECT s.org_id, s.id AS subscription_id, p.id AS plan_id, p.name AS plan_name,
		        p.monthly_credits, s.next_refill_at
		 FROM subscriptions s
		 JOIN plans p ON p.id = s.plan_id
		 WHERE s.status = ? AND s.next_refill_at IS NOT NULL AND s.next_refill_at <= ?
		 ORDER BY s.next_refill_at ASC, s.id ASC
		 LIMIT ?`,
		domain.SubscriptionStatusActive,
		asOf.UTC(),
		limit,
	)
	if err := stmt.Scan(&due).Error; err != nil {
		return nil, err
	}
	return due, nil
}
