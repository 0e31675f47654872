package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/agencyops/credcore/internal/plan/domain"
	planrepository "github.com/agencyops/credcore/internal/plan/repository"
)

func newTestService(t *testing.T) (*gorm.DB, domain.Service) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	for _, ddl := range []string{
		`CREATE TABLE plans (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			monthly_credits INTEGER NOT NULL,
			price_cents INTEGER,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE TABLE subscriptions (
			id INTEGER PRIMARY KEY,
			org_id INTEGER NOT NULL UNIQUE,
			plan_id INTEGER,
			status TEXT NOT NULL,
			start_at DATETIME,
			next_refill_at DATETIME,
			paused_at DATETIME,
			resumed_at DATETIME,
			cancelled_at DATETIME,
			created_at DATETIME,
			updated_at DATETIME
		)`,
	} {
		require.NoError(t, db.Exec(ddl).Error)
	}

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  planrepository.NewRepository(),
	})
	return db, svc
}

func TestCreatePlan(t *testing.T) {
	_, svc := newTestService(t)

	price := int64(4900)
	created, err := svc.Create(context.Background(), domain.CreatePlanRequest{
		Name:           "Growth",
		MonthlyCredits: 500,
		PriceCents:     &price,
	})
	require.NoError(t, err)
	assert.Equal(t, "Growth", created.Name)
	assert.Equal(t, int64(500), created.MonthlyCredits)
	assert.True(t, created.Active)

	_, err = svc.Create(context.Background(), domain.CreatePlanRequest{Name: "  "})
	require.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = svc.Create(context.Background(), domain.CreatePlanRequest{Name: "Bad", MonthlyCredits: -1})
	require.ErrorIs(t, err, domain.ErrInvalidMonthlyCredits)
}

func TestUpdatePlan(t *testing.T) {
	_, svc := newTestService(t)

	created, err := svc.Create(context.Background(), domain.CreatePlanRequest{Name: "Growth", MonthlyCredits: 500})
	require.NoError(t, err)

	newCredits := int64(750)
	updated, err := svc.Update(context.Background(), created.ID.String(), domain.UpdatePlanRequest{
		MonthlyCredits: &newCredits,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(750), updated.MonthlyCredits)
	assert.Equal(t, "Growth", updated.Name)

	_, err = svc.Update(context.Background(), snowflake.ID(42).String(), domain.UpdatePlanRequest{})
	require.ErrorIs(t, err, domain.ErrPlanNotFound)
}

func TestSetPlanActive(t *testing.T) {
	_, svc := newTestService(t)

	created, err := svc.Create(context.Background(), domain.CreatePlanRequest{Name: "Growth", MonthlyCredits: 500})
	require.NoError(t, err)

	updated, err := svc.SetActive(context.Background(), created.ID.String(), false)
	require.NoError(t, err)
	assert.False(t, updated.Active)
}

func TestDeletePlanInUse(t *testing.T) {
	db, svc := newTestService(t)

	created, err := svc.Create(context.Background(), domain.CreatePlanRequest{Name: "Growth", MonthlyCredits: 500})
	require.NoError(t, err)

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	now := time.Now().UTC()
	require.NoError(t, db.Exec(
		`INSERT INTO subscriptions (id, org_id, plan_id, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		node.Generate(), node.Generate(), created.ID, "ACTIVE", now, now,
	).Error)

	err = svc.Delete(context.Background(), created.ID.String())
	require.ErrorIs(t, err, domain.ErrPlanInUse)

	// Still present and deactivatable instead.
	found, err := svc.GetByID(context.Background(), created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
}

func TestDeleteUnreferencedPlan(t *testing.T) {
	_, svc := newTestService(t)

	created, err := svc.Create(context.Background(), domain.CreatePlanRequest{Name: "Scratch", MonthlyCredits: 10})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), created.ID.String()))

	_, err = svc.GetByID(context.Background(), created.ID.String())
	require.ErrorIs(t, err, domain.ErrPlanNotFound)
}

func TestListPlans(t *testing.T) {
	_, svc := newTestService(t)

	_, err := svc.Create(context.Background(), domain.CreatePlanRequest{Name: "A", MonthlyCredits: 1})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), domain.CreatePlanRequest{Name: "B", MonthlyCredits: 2})
	require.NoError(t, err)

	plans, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, plans, 2)
}
