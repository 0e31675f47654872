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

	"github.com/agencyops/credcore/internal/config"
	planrepository "github.com/agencyops/credcore/internal/plan/repository"
	"github.com/agencyops/credcore/internal/subscription/domain"
	subscriptionrepository "github.com/agencyops/credcore/internal/subscription/repository"
)

type fixture struct {
	db     *gorm.DB
	svc    domain.Service
	node   *snowflake.Node
	orgID  snowflake.ID
	planID snowflake.ID
}

func newFixture(t *testing.T, policy config.RefillPolicy) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	for _, ddl := range []string{
		`CREATE TABLE organizations (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at DATETIME,
			updated_at DATETIME
		)`,
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

	now := time.Now().UTC()
	orgID := node.Generate()
	require.NoError(t, db.Exec(
		`INSERT INTO organizations (id, name, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		orgID, "Acme", "ACTIVE", now, now,
	).Error)

	planID := node.Generate()
	require.NoError(t, db.Exec(
		`INSERT INTO plans (id, name, monthly_credits, active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		planID, "Growth", 50, true, now, now,
	).Error)

	svc := NewService(Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Repo:     subscriptionrepository.NewRepository(),
		PlanRepo: planrepository.NewRepository(),
		Policy:   config.NewStaticRefillPolicyHolder(policy),
	})

	return &fixture{db: db, svc: svc, node: node, orgID: orgID, planID: planID}
}

func (f *fixture) start(t *testing.T, startAt time.Time) *domain.Subscription {
	t.Helper()
	sub, err := f.svc.Start(context.Background(), domain.StartSubscriptionRequest{
		OrgID:   f.orgID.String(),
		PlanID:  f.planID.String(),
		StartAt: startAt,
	})
	require.NoError(t, err)
	return sub
}

func TestStartSetsScheduleOneMonthOut(t *testing.T) {
	f := newFixture(t, config.DefaultRefillPolicy())
	startAt := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	sub := f.start(t, startAt)

	assert.Equal(t, domain.SubscriptionStatusActive, sub.Status)
	require.NotNil(t, sub.PlanID)
	assert.Equal(t, f.planID, *sub.PlanID)
	require.NotNil(t, sub.NextRefillAt)
	assert.Equal(t, time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC), sub.NextRefillAt.UTC())
}

func TestStartRejectsInactivePlan(t *testing.T) {
	f := newFixture(t, config.DefaultRefillPolicy())
	require.NoError(t, f.db.Exec(`UPDATE plans SET active = ? WHERE id = ?`, false, f.planID).Error)

	_, err := f.svc.Start(context.Background(), domain.StartSubscriptionRequest{
		OrgID:   f.orgID.String(),
		PlanID:  f.planID.String(),
		StartAt: time.Now().UTC(),
	})
	require.ErrorIs(t, err, domain.ErrPlanInactive)
}

func TestStartRejectsUnknownOrganization(t *testing.T) {
	f := newFixture(t, config.DefaultRefillPolicy())

	_, err := f.svc.Start(context.Background(), domain.StartSubscriptionRequest{
		OrgID:   snowflake.ID(12345).String(),
		PlanID:  f.planID.String(),
		StartAt: time.Now().UTC(),
	})
	require.ErrorIs(t, err, domain.ErrInvalidOrganization)
}

func TestStartWhileActiveIsRejected(t *testing.T) {
	f := newFixture(t, config.DefaultRefillPolicy())
	f.start(t, time.Now().UTC())

	_, err := f.svc.Start(context.Background(), domain.StartSubscriptionRequest{
		OrgID:   f.orgID.String(),
		PlanID:  f.planID.String(),
		StartAt: time.Now().UTC(),
	})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestPauseKeepsSchedule(t *testing.T) {
	f := newFixture(t, config.DefaultRefillPolicy())
	startAt := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	started := f.start(t, startAt)
	originalNext := *started.NextRefillAt

	paused, err := f.svc.Pause(context.Background(), f.orgID.String())
	require.NoError(t, err)

	assert.Equal(t, domain.SubscriptionStatusPaused, paused.Status)
	require.NotNil(t, paused.NextRefillAt)
	assert.True(t, paused.NextRefillAt.Equal(originalNext))
	require.NotNil(t, paused.PausedAt)
}

func TestResumeKeepSchedulePolicy(t *testing.T) {
	f := newFixture(t, config.RefillPolicy{
		ResumePolicy:    config.ResumePolicyKeepSchedule,
		MaxErrorDetails: 25,
	})
	started := f.start(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	originalNext := *started.NextRefillAt

	_, err := f.svc.Pause(context.Background(), f.orgID.String())
	require.NoError(t, err)

	resumed, err := f.svc.Resume(context.Background(), f.orgID.String())
	require.NoError(t, err)

	assert.Equal(t, domain.SubscriptionStatusActive, resumed.Status)
	require.NotNil(t, resumed.NextRefillAt)
	assert.True(t, resumed.NextRefillAt.Equal(originalNext), "schedule must survive a pause and resume")
	require.NotNil(t, resumed.ResumedAt)
}

func TestResumeResetSchedulePolicy(t *testing.T) {
	f := newFixture(t, config.RefillPolicy{
		ResumePolicy:    config.ResumePolicyResetSchedule,
		MaxErrorDetails: 25,
	})
	started := f.start(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	originalNext := *started.NextRefillAt

	_, err := f.svc.Pause(context.Background(), f.orgID.String())
	require.NoError(t, err)

	resumed, err := f.svc.Resume(context.Background(), f.orgID.String())
	require.NoError(t, err)

	require.NotNil(t, resumed.NextRefillAt)
	assert.False(t, resumed.NextRefillAt.Equal(originalNext), "reset policy must recompute the schedule")
	assert.True(t, resumed.NextRefillAt.After(time.Now().UTC().AddDate(0, 1, -1)))
}

func TestResumeRequiresPaused(t *testing.T) {
	f := newFixture(t, config.DefaultRefillPolicy())
	f.start(t, time.Now().UTC())

	_, err := f.svc.Resume(context.Background(), f.orgID.String())
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestCancelClearsSchedule(t *testing.T) {
	f := newFixture(t, config.DefaultRefillPolicy())
	f.start(t, time.Now().UTC())

	cancelled, err := f.svc.Cancel(context.Background(), f.orgID.String())
	require.NoError(t, err)

	assert.Equal(t, domain.SubscriptionStatusCancelled, cancelled.Status)
	assert.Nil(t, cancelled.NextRefillAt)
	require.NotNil(t, cancelled.CancelledAt)
}

func TestCancelTwiceIsRejected(t *testing.T) {
	f := newFixture(t, config.DefaultRefillPolicy())
	f.start(t, time.Now().UTC())

	_, err := f.svc.Cancel(context.Background(), f.orgID.String())
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), f.orgID.String())
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestResumeFromCancelledIsRejected(t *testing.T) {
	f := newFixture(t, config.DefaultRefillPolicy())
	f.start(t, time.Now().UTC())

	_, err := f.svc.Cancel(context.Background(), f.orgID.String())
	require.NoError(t, err)

	_, err = f.svc.Resume(context.Background(), f.orgID.String())
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestRestartAfterCancelResetsEverything(t *testing.T) {
	f := newFixture(t, config.DefaultRefillPolicy())
	f.start(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	_, err := f.svc.Cancel(context.Background(), f.orgID.String())
	require.NoError(t, err)

	restartAt := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	restarted, err := f.svc.Start(context.Background(), domain.StartSubscriptionRequest{
		OrgID:   f.orgID.String(),
		PlanID:  f.planID.String(),
		StartAt: restartAt,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.SubscriptionStatusActive, restarted.Status)
	require.NotNil(t, restarted.NextRefillAt)
	assert.Equal(t, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), restarted.NextRefillAt.UTC())
	assert.Nil(t, restarted.CancelledAt)
	assert.Nil(t, restarted.PausedAt)
}

func TestListDueForRefill(t *testing.T) {
	f := newFixture(t, config.DefaultRefillPolicy())
	f.start(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))

	due, err := f.svc.ListDueForRefill(context.Background(), time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, f.orgID, due[0].OrgID)
	assert.Equal(t, "Growth", due[0].PlanName)
	assert.Equal(t, int64(50), due[0].MonthlyCredits)

	// Not yet due.
	due, err = f.svc.ListDueForRefill(context.Background(), time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	// Paused subscriptions are never due.
	_, err = f.svc.Pause(context.Background(), f.orgID.String())
	require.NoError(t, err)
	due, err = f.svc.ListDueForRefill(context.Background(), time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC), 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestGetByOrgIDNotFound(t *testing.T) {
	f := newFixture(t, config.DefaultRefillPolicy())

	_, err := f.svc.GetByOrgID(context.Background(), f.orgID.String())
	require.ErrorIs(t, err, domain.ErrSubscriptionNotFound)
}

func TestPauseInactiveIsRejected(t *testing.T) {
	f := newFixture(t, config.DefaultRefillPolicy())
	now := time.Now().UTC()
	require.NoError(t, f.db.Exec(
		`INSERT INTO subscriptions (id, org_id, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		f.node.Generate(), f.orgID, domain.SubscriptionStatusInactive, now, now,
	).Error)

	_, err := f.svc.Pause(context.Background(), f.orgID.String())
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestPauseWithoutSubscriptionRow(t *testing.T) {
	f := newFixture(t, config.DefaultRefillPolicy())

	_, err := f.svc.Pause(context.Background(), f.orgID.String())
	require.ErrorIs(t, err, domain.ErrSubscriptionNotFound)
}
