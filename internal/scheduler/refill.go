package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	auditdomain "github.com/agencyops/credcore/internal/audit/domain"
	"github.com/agencyops/credcore/internal/clock"
	"github.com/agencyops/credcore/internal/config"
	ledgerdomain "github.com/agencyops/credcore/internal/ledger/domain"
	obsmetrics "github.com/agencyops/credcore/internal/observability/metrics"
	"github.com/agencyops/credcore/internal/ratelimit"
	subscriptiondomain "github.com/agencyops/credcore/internal/subscription/domain"
	pkgdb "github.com/agencyops/credcore/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidConfig       = errors.New("invalid_scheduler_config")
	ErrBatchAlreadyRunning = errors.New("refill_batch_already_running")

	// errNotDue claims nothing: the row was already advanced, locked by
	// another worker, or no longer active by the time we locked it.
	errNotDue = errors.New("subscription_not_due")
)

const (
	refillLockKey     = "refill:run"
	refillDescription = "Subscription refill"
)

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	Clock           clock.Clock
	LedgerSvc       ledgerdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	AuditSvc        auditdomain.Service
	PolicyHolder    *config.RefillPolicyHolder
	Limiter         *ratelimit.TransactionLimiter `optional:"true"`
	Config          Config                        `optional:"true"`
}

type Scheduler struct {
	db              *gorm.DB
	log             *zap.Logger
	cfg             Config
	genID           *snowflake.Node
	clock           clock.Clock
	ledgerSvc       ledgerdomain.Service
	subscriptionSvc subscriptiondomain.Service
	auditSvc        auditdomain.Service
	policyHolder    *config.RefillPolicyHolder
	locker          *ratelimit.Locker
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.LedgerSvc == nil || p.SubscriptionSvc == nil || p.AuditSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:              p.DB,
		log:             p.Log.Named("scheduler").With(zap.String("component", "refill")),
		cfg:             p.Config.withDefaults(),
		genID:           p.GenID,
		clock:           p.Clock,
		ledgerSvc:       p.LedgerSvc,
		subscriptionSvc: p.SubscriptionSvc,
		auditSvc:        p.AuditSvc,
		policyHolder:    p.PolicyHolder,
		locker:          p.Limiter.Locker(),
	}, nil
}

// RunRefillBatch grants one month of credits to every organization whose
// subscription is active and due, advances each schedule by one calendar
// month from its previous date, and records a RefillExecution row. A failing
// organization is recorded and skipped; its schedule is not advanced, so the
// next run picks it up again. The execution row is written even when the run
// times out partway through.
func (s *Scheduler) RunRefillBatch(parent context.Context) (*RefillExecution, error) {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, refillLockKey, s.cfg.LockTTL)
		if err != nil {
			s.log.Warn("refill lock unavailable, running without it", zap.Error(err))
		} else if !ok {
			return nil, ErrBatchAlreadyRunning
		} else {
			defer func() {
				if relErr := s.locker.Release(context.WithoutCancel(ctx), refillLockKey, token); relErr != nil {
					s.log.Warn("failed to release refill lock", zap.Error(relErr))
				}
			}()
		}
	}

	start := s.clock.Now()
	// Duration is measured on the wall clock; start comes from the injected
	// clock and only anchors due-time comparisons and ExecutedAt.
	wallStart := time.Now()
	log := s.log.With(zap.Time("batch_start", start))
	log.Info("refill batch started")

	var (
		processed    int
		creditsAdded int64
		failures     []orgFailure
		attempted    = make(map[snowflake.ID]struct{})
		runErr       error
		timedOut     bool
	)

batch:
	for {
		if ctx.Err() != nil {
			timedOut = true
			break
		}

		due, err := s.subscriptionSvc.ListDueForRefill(ctx, start, s.cfg.BatchSize)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				timedOut = true
				break
			}
			runErr = err
			break
		}

		progressed := false
		for _, d := range due {
			if ctx.Err() != nil {
				timedOut = true
				break batch
			}
			if _, seen := attempted[d.SubscriptionID]; seen {
				// Still due means its grant failed this run; retry next run.
				continue
			}
			attempted[d.SubscriptionID] = struct{}{}
			progressed = true

			granted, err := s.refillOne(ctx, d, start)
			if err != nil {
				if errors.Is(err, errNotDue) {
					continue
				}
				processed++
				obsmetrics.Refill().IncOrgFailure()
				failures = append(failures, orgFailure{
					OrgID:          d.OrgID.String(),
					SubscriptionID: d.SubscriptionID.String(),
					Error:          err.Error(),
				})
				log.Warn("refill failed for organization",
					zap.String("org_id", d.OrgID.String()),
					zap.Error(err),
				)
				continue
			}

			processed++
			creditsAdded += granted
			obsmetrics.Refill().IncOrgRefilled(granted)
		}

		if len(due) < s.cfg.BatchSize || !progressed {
			break
		}
	}

	status := ExecutionStatusSuccess
	switch {
	case runErr != nil && processed == 0:
		status = ExecutionStatusFailure
	case len(failures) > 0 && len(failures) == processed:
		status = ExecutionStatusFailure
	case len(failures) > 0 || runErr != nil:
		status = ExecutionStatusPartialFailure
	}

	duration := time.Since(wallStart)
	exec := &RefillExecution{
		ID:                     s.genID.Generate(),
		ExecutedAt:             start.UTC(),
		OrganizationsProcessed: processed,
		CreditsAdded:           creditsAdded,
		Status:                 status,
		DurationMs:             duration.Milliseconds(),
	}
	s.attachErrors(exec, failures, runErr, timedOut)

	// The execution record is the audit trail of the run; persist it even
	// after a timeout, outside the expired context.
	persistCtx, persistCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer persistCancel()
	if err := s.insertExecution(persistCtx, exec); err != nil {
		log.Error("failed to persist refill execution", zap.Error(err))
		return exec, err
	}

	execID := exec.ID.String()
	if err := s.auditSvc.AuditLog(persistCtx, nil, auditdomain.ActorTypeSystem, nil, "refill.batch_completed", "refill_execution", &execID, map[string]any{
		"status":                  exec.Status,
		"organizations_processed": exec.OrganizationsProcessed,
		"credits_added":           exec.CreditsAdded,
	}); err != nil {
		log.Warn("failed to write refill audit log", zap.Error(err))
	}

	obsmetrics.Refill().ObserveRun(status, duration)
	log.Info("refill batch finished",
		zap.String("status", status),
		zap.Int("organizations_processed", processed),
		zap.Int64("credits_added", creditsAdded),
		zap.Int("failures", len(failures)),
		zap.Duration("duration", duration),
	)
	return exec, nil
}

// refillOne grants one month of credits and advances the schedule in a single
// transaction, so a crash between the two cannot double-grant on retry. The
// subscription row is claimed with a skip-locked read: losing the claim is not
// an error, another worker owns that organization.
func (s *Scheduler) refillOne(ctx context.Context, due subscriptiondomain.DueSubscription, now time.Time) (int64, error) {
	var granted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row struct {
			ID           snowflake.ID `gorm:"column:id"`
			NextRefillAt time.Time    `gorm:"column:next_refill_at"`
		}
		claim := tx.WithContext(ctx).Raw(
			`SELECT id, next_refill_at FROM subscriptions
			 WHERE id = ? AND status = ? AND next_refill_at IS NOT NULL AND next_refill_at <= ?`+pkgdb.ForUpdateSkipLocked(tx),
			due.SubscriptionID,
			subscriptiondomain.SubscriptionStatusActive,
			now.UTC(),
		).Scan(&row)
		if claim.Error != nil {
			return claim.Error
		}
		if claim.RowsAffected == 0 {
			return errNotDue
		}

		resp, err := s.ledgerSvc.AddTransactionTx(ctx, tx, ledgerdomain.AddTransactionRequest{
			OrgID:       due.OrgID,
			Amount:      due.MonthlyCredits,
			Description: refillDescription,
		})
		if err != nil {
			return err
		}
		granted = resp.Entry.Amount

		// One calendar month from the previous date, not from today, so the
		// schedule never drifts when a run lands late.
		next := row.NextRefillAt.AddDate(0, 1, 0)
		update := tx.WithContext(ctx).Exec(
			`UPDATE subscriptions SET next_refill_at = ?, updated_at = ? WHERE id = ?`,
			next.UTC(),
			now.UTC(),
			due.SubscriptionID,
		)
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected == 0 {
			return fmt.Errorf("subscription %s disappeared during refill", due.SubscriptionID)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return granted, nil
}

func (s *Scheduler) attachErrors(exec *RefillExecution, failures []orgFailure, runErr error, timedOut bool) {
	maxDetails := config.DefaultRefillPolicy().MaxErrorDetails
	if s.policyHolder != nil {
		maxDetails = s.policyHolder.Get().MaxErrorDetails
	}

	var parts []string
	if runErr != nil {
		parts = append(parts, runErr.Error())
	}
	if timedOut {
		parts = append(parts, "batch timed out before completing; remaining organizations stay due")
	}
	if len(failures) > 0 {
		parts = append(parts, fmt.Sprintf("%d organization(s) failed", len(failures)))
	}
	if len(parts) > 0 {
		summary := parts[0]
		for _, p := range parts[1:] {
			summary += "; " + p
		}
		exec.ErrorSummary = &summary
	}

	if len(failures) == 0 {
		return
	}
	if maxDetails > 0 && len(failures) > maxDetails {
		failures = failures[:maxDetails]
	}
	if raw, err := json.Marshal(failures); err == nil {
		exec.ErrorDetails = raw
	}
}

func (s *Scheduler) insertExecution(ctx context.Context, exec *RefillExecution) error {
	return s.db.WithContext(ctx).Exec(
		`INSERT INTO refill_executions (id, executed_at, organizations_processed, credits_added, status, duration_ms, error_summary, error_details)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID,
		exec.ExecutedAt,
		exec.OrganizationsProcessed,
		exec.CreditsAdded,
		exec.Status,
		exec.DurationMs,
		exec.ErrorSummary,
		exec.ErrorDetails,
	).Error
}

// RecentExecutions returns the newest runs first.
func (s *Scheduler) RecentExecutions(ctx context.Context, limit int) ([]RefillExecution, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var execs []RefillExecution
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, executed_at, organizations_processed, credits_added, status, duration_ms, error_summary, error_details
		 FROM refill_executions
		 ORDER BY executed_at DESC, id DESC
		 LIMIT ?`,
		limit,
	).Scan(&execs).Error
	if err != nil {
		return nil, err
	}
	return execs, nil
}
