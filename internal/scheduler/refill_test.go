package scheduler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/agencyops/credcore/internal/audit/domain"
	"github.com/agencyops/credcore/internal/clock"
	"github.com/agencyops/credcore/internal/config"
	ledgerservice "github.com/agencyops/credcore/internal/ledger/service"
	planrepository "github.com/agencyops/credcore/internal/plan/repository"
	subscriptiondomain "github.com/agencyops/credcore/internal/subscription/domain"
	subscriptionrepository "github.com/agencyops/credcore/internal/subscription/repository"
	subscriptionservice "github.com/agencyops/credcore/internal/subscription/service"
)

type noopAuditSvc struct{}

func (noopAuditSvc) AuditLog(context.Context, *snowflake.ID, string, *string, string, string, *string, map[string]any) error {
	return nil
}

func (noopAuditSvc) List(context.Context, auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{}, nil
}

type refillFixture struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	sched *Scheduler
}

func newRefillFixture(t *testing.T, now time.Time) *refillFixture {
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
		`CREATE TABLE ledger_entries (
			id INTEGER PRIMARY KEY,
			org_id INTEGER NOT NULL,
			amount INTEGER NOT NULL,
			description TEXT NOT NULL,
			project_id INTEGER,
			created_at DATETIME
		)`,
		`CREATE TABLE refill_executions (
			id INTEGER PRIMARY KEY,
			executed_at DATETIME NOT NULL,
			organizations_processed INTEGER NOT NULL DEFAULT 0,
			credits_added INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			error_summary TEXT,
			error_details TEXT
		)`,
	} {
		require.NoError(t, db.Exec(ddl).Error)
	}

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		AuditSvc: noopAuditSvc{},
	})

	subscriptionSvc := subscriptionservice.NewService(subscriptionservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Repo:     subscriptionrepository.NewRepository(),
		PlanRepo: planrepository.NewRepository(),
		Policy:   config.NewStaticRefillPolicyHolder(config.DefaultRefillPolicy()),
	})

	fakeClock := clock.NewFakeClock(now)

	sched, err := New(Params{
		DB:              db,
		Log:             zap.NewNop(),
		GenID:           node,
		Clock:           fakeClock,
		LedgerSvc:       ledgerSvc,
		SubscriptionSvc: subscriptionSvc,
		AuditSvc:        noopAuditSvc{},
		PolicyHolder:    config.NewStaticRefillPolicyHolder(config.DefaultRefillPolicy()),
		Config: Config{
			BatchSize:  10,
			JobTimeout: 30 * time.Second,
		},
	})
	require.NoError(t, err)

	return &refillFixture{db: db, node: node, clock: fakeClock, sched: sched}
}

// seedOrg creates an organization with an active subscription due at nextRefill.
// When orphan is true the organization row is skipped so the ledger write fails.
func (f *refillFixture) seedOrg(t *testing.T, name string, monthlyCredits int64, nextRefill time.Time, orphan bool) snowflake.ID {
	t.Helper()
	now := f.clock.Now()

	orgID := f.node.Generate()
	if !orphan {
		require.NoError(t, f.db.Exec(
			`INSERT INTO organizations (id, name, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			orgID, name, "ACTIVE", now, now,
		).Error)
	}

	planID := f.node.Generate()
	require.NoError(t, f.db.Exec(
		`INSERT INTO plans (id, name, monthly_credits, active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		planID, name+" plan", monthlyCredits, true, now, now,
	).Error)

	require.NoError(t, f.db.Exec(
		`INSERT INTO subscriptions (id, org_id, plan_id, status, start_at, next_refill_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.node.Generate(), orgID, planID, subscriptiondomain.SubscriptionStatusActive,
		nextRefill.AddDate(0, -1, 0), nextRefill.UTC(), now, now,
	).Error)

	return orgID
}

func (f *refillFixture) balance(t *testing.T, orgID snowflake.ID) int64 {
	t.Helper()
	var balance int64
	require.NoError(t, f.db.Raw(`SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE org_id = ?`, orgID).Scan(&balance).Error)
	return balance
}

func (f *refillFixture) nextRefillAt(t *testing.T, orgID snowflake.ID) time.Time {
	t.Helper()
	var next time.Time
	require.NoError(t, f.db.Raw(`SELECT next_refill_at FROM subscriptions WHERE org_id = ?`, orgID).Scan(&next).Error)
	return next.UTC()
}

func TestRunRefillBatchGrantsAndAdvances(t *testing.T) {
	// The batch runs late, on the 20th, against a refill scheduled for the
	// 15th. The schedule must advance from its own previous value.
	runAt := time.Date(2024, 1, 20, 3, 0, 0, 0, time.UTC)
	f := newRefillFixture(t, runAt)

	due := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	orgID := f.seedOrg(t, "Acme", 50, due, false)

	// Starting balance of 10.
	require.NoError(t, f.db.Exec(
		`INSERT INTO ledger_entries (id, org_id, amount, description, created_at) VALUES (?, ?, ?, ?, ?)`,
		f.node.Generate(), orgID, 10, "Initial top-up", runAt,
	).Error)

	exec, err := f.sched.RunRefillBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ExecutionStatusSuccess, exec.Status)
	assert.Equal(t, 1, exec.OrganizationsProcessed)
	assert.Equal(t, int64(50), exec.CreditsAdded)
	assert.Nil(t, exec.ErrorSummary)

	assert.Equal(t, int64(60), f.balance(t, orgID))
	assert.True(t, f.nextRefillAt(t, orgID).Equal(time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)))

	var entry struct {
		Amount      int64
		Description string
	}
	require.NoError(t, f.db.Raw(
		`SELECT amount, description FROM ledger_entries WHERE org_id = ? ORDER BY id DESC LIMIT 1`, orgID,
	).Scan(&entry).Error)
	assert.Equal(t, int64(50), entry.Amount)
	assert.Equal(t, "Subscription refill", entry.Description)
}

func TestRunRefillBatchIsIdempotent(t *testing.T) {
	runAt := time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)
	f := newRefillFixture(t, runAt)
	orgID := f.seedOrg(t, "Acme", 50, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), false)

	first, err := f.sched.RunRefillBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, first.OrganizationsProcessed)

	second, err := f.sched.RunRefillBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ExecutionStatusSuccess, second.Status)
	assert.Equal(t, 0, second.OrganizationsProcessed)
	assert.Equal(t, int64(0), second.CreditsAdded)

	// Exactly one grant.
	assert.Equal(t, int64(50), f.balance(t, orgID))
	var count int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(1) FROM ledger_entries WHERE org_id = ?`, orgID).Scan(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRunRefillBatchPartialFailure(t *testing.T) {
	runAt := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	f := newRefillFixture(t, runAt)
	due := time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)

	firstOrg := f.seedOrg(t, "First", 10, due, false)
	brokenOrg := f.seedOrg(t, "Broken", 20, due, true)
	thirdOrg := f.seedOrg(t, "Third", 30, due, false)

	exec, err := f.sched.RunRefillBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ExecutionStatusPartialFailure, exec.Status)
	assert.Equal(t, 3, exec.OrganizationsProcessed)
	assert.Equal(t, int64(40), exec.CreditsAdded)
	require.NotNil(t, exec.ErrorSummary)

	var failures []orgFailure
	require.NoError(t, json.Unmarshal(exec.ErrorDetails, &failures))
	require.Len(t, failures, 1)
	assert.Equal(t, brokenOrg.String(), failures[0].OrgID)

	// Healthy organizations advanced, the broken one stays due for retry.
	advanced := due.AddDate(0, 1, 0)
	assert.True(t, f.nextRefillAt(t, firstOrg).Equal(advanced))
	assert.True(t, f.nextRefillAt(t, thirdOrg).Equal(advanced))
	assert.True(t, f.nextRefillAt(t, brokenOrg).Equal(due))

	assert.Equal(t, int64(10), f.balance(t, firstOrg))
	assert.Equal(t, int64(0), f.balance(t, brokenOrg))
	assert.Equal(t, int64(30), f.balance(t, thirdOrg))
}

func TestRunRefillBatchNothingDue(t *testing.T) {
	runAt := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	f := newRefillFixture(t, runAt)
	f.seedOrg(t, "Acme", 50, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), false)

	exec, err := f.sched.RunRefillBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ExecutionStatusSuccess, exec.Status)
	assert.Equal(t, 0, exec.OrganizationsProcessed)
}

func TestRunRefillBatchExpiredContextStillRecordsExecution(t *testing.T) {
	runAt := time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)
	f := newRefillFixture(t, runAt)
	orgID := f.seedOrg(t, "Acme", 50, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec, err := f.sched.RunRefillBatch(ctx)
	require.NoError(t, err)
	require.NotNil(t, exec)

	// The run did nothing, but the audit record still lands.
	assert.Equal(t, 0, exec.OrganizationsProcessed)
	assert.Equal(t, int64(0), exec.CreditsAdded)
	require.NotNil(t, exec.ErrorSummary)
	assert.Contains(t, *exec.ErrorSummary, "timed out")

	var count int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(*) FROM refill_executions`).Scan(&count).Error)
	assert.Equal(t, int64(1), count)

	assert.Equal(t, int64(0), f.balance(t, orgID))
	assert.True(t, f.nextRefillAt(t, orgID).Equal(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)))
}

func TestRecentExecutionsNewestFirst(t *testing.T) {
	runAt := time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)
	f := newRefillFixture(t, runAt)
	f.seedOrg(t, "Acme", 50, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), false)

	_, err := f.sched.RunRefillBatch(context.Background())
	require.NoError(t, err)

	f.clock.Advance(24 * time.Hour)
	_, err = f.sched.RunRefillBatch(context.Background())
	require.NoError(t, err)

	execs, err := f.sched.RecentExecutions(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, execs, 2)
	assert.True(t, execs[0].ExecutedAt.After(execs[1].ExecutedAt))
	assert.Equal(t, 1, execs[1].OrganizationsProcessed)
	assert.Equal(t, 0, execs[0].OrganizationsProcessed)
}
