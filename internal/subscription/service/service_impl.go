package service

import (
	"context"
	"strings"
	"time"

	auditdomain "github.com/agencyops/credcore/internal/audit/domain"
	"github.com/agencyops/credcore/internal/config"
	plandomain "github.com/agencyops/credcore/internal/plan/domain"
	"github.com/agencyops/credcore/internal/subscription/domain"
	pkgdb "github.com/agencyops/credcore/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	PlanRepo plandomain.Repository
	Policy   *config.RefillPolicyHolder
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	planRepo plandomain.Repository
	policy   *config.RefillPolicyHolder
	auditSvc auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("subscription.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		planRepo: p.PlanRepo,
		policy:   p.Policy,
		auditSvc: p.AuditSvc,
	}
}

// Start activates the organization's subscription. The subscription row is
// created lazily on first start; a cancelled subscription is restarted with a
// fresh plan, start date and schedule.
func (s *Service) Start(ctx context.Context, req domain.StartSubscriptionRequest) (*domain.Subscription, error) {
	orgID, err := parseID(req.OrgID, domain.ErrInvalidOrganization)
	if err != nil {
		return nil, err
	}
	planID, err := parseID(req.PlanID, domain.ErrInvalidPlan)
	if err != nil {
		return nil, err
	}
	if req.StartAt.IsZero() {
		return nil, domain.ErrInvalidStartAt
	}
	startAt := req.StartAt.UTC()

	var result *domain.Subscription
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := s.organizationExists(ctx, tx, orgID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrInvalidOrganization
		}

		plan, err := s.planRepo.FindByID(ctx, tx, planID)
		if err != nil {
			return err
		}
		if plan == nil {
			return domain.ErrPlanNotFound
		}
		if !plan.Active {
			return domain.ErrPlanInactive
		}

		sub, err := s.repo.FindByOrgIDForUpdate(ctx, tx, orgID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		nextRefill := startAt.AddDate(0, 1, 0)

		if sub == nil {
			sub = &domain.Subscription{
				ID:           s.genID.Generate(),
				OrgID:        orgID,
				PlanID:       &planID,
				Status:       domain.SubscriptionStatusActive,
				StartAt:      &startAt,
				NextRefillAt: &nextRefill,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := s.repo.Insert(ctx, tx, sub); err != nil {
				// two concurrent first starts race on the unique org index
				if pkgdb.IsDuplicateKeyErr(err) {
					return domain.ErrInvalidTransition
				}
				return err
			}
			result = sub
			return nil
		}

		// Start is only legal from INACTIVE or CANCELLED; resuming a paused
		// subscription goes through Resume instead.
		if sub.Status != domain.SubscriptionStatusInactive && sub.Status != domain.SubscriptionStatusCancelled {
			return domain.ErrInvalidTransition
		}

		sub.PlanID = &planID
		sub.Status = domain.SubscriptionStatusActive
		sub.StartAt = &startAt
		sub.NextRefillAt = &nextRefill
		sub.PausedAt = nil
		sub.ResumedAt = nil
		sub.CancelledAt = nil
		sub.UpdatedAt = now

		if err := s.repo.Update(ctx, tx, sub); err != nil {
			return err
		}
		result = sub
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, result, "subscription.start")
	return result, nil
}

func (s *Service) Pause(ctx context.Context, orgID string) (*domain.Subscription, error) {
	return s.transition(ctx, orgID, domain.SubscriptionStatusPaused, "subscription.pause")
}

func (s *Service) Resume(ctx context.Context, orgID string) (*domain.Subscription, error) {
	return s.transition(ctx, orgID, domain.SubscriptionStatusActive, "subscription.resume")
}

func (s *Service) Cancel(ctx context.Context, orgID string) (*domain.Subscription, error) {
	return s.transition(ctx, orgID, domain.SubscriptionStatusCancelled, "subscription.cancel")
}

func (s *Service) transition(ctx context.Context, rawOrgID string, target domain.SubscriptionStatus, action string) (*domain.Subscription, error) {
	orgID, err := parseID(rawOrgID, domain.ErrInvalidOrganization)
	if err != nil {
		return nil, err
	}

	var result *domain.Subscription
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.repo.FindByOrgIDForUpdate(ctx, tx, orgID)
		if err != nil {
			return err
		}
		if sub == nil {
			return domain.ErrSubscriptionNotFound
		}

		if !isTransitionAllowed(sub.Status, target) {
			return domain.ErrInvalidTransition
		}

		now := time.Now().UTC()
		switch target {
		case domain.SubscriptionStatusPaused:
			// The schedule is kept so the original refill date survives a pause.
			sub.PausedAt = &now
		case domain.SubscriptionStatusActive:
			sub.ResumedAt = &now
			if s.resumePolicy() == config.ResumePolicyResetSchedule {
				next := now.AddDate(0, 1, 0)
				sub.NextRefillAt = &next
			}
		case domain.SubscriptionStatusCancelled:
			sub.CancelledAt = &now
			sub.NextRefillAt = nil
		default:
			return domain.ErrInvalidTransition
		}

		sub.Status = target
		sub.UpdatedAt = now

		if err := s.repo.Update(ctx, tx, sub); err != nil {
			return err
		}
		result = sub
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, result, action)
	return result, nil
}

func (s *Service) GetByOrgID(ctx context.Context, rawOrgID string) (*domain.Subscription, error) {
	orgID, err := parseID(rawOrgID, domain.ErrInvalidOrganization)
	if err != nil {
		return nil, err
	}

	sub, err := s.repo.FindByOrgID(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, domain.ErrSubscriptionNotFound
	}
	return sub, nil
}

func (s *Service) ListDueForRefill(ctx context.Context, asOf time.Time, limit int) ([]domain.DueSubscription, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.repo.ListDue(ctx, s.db, asOf, limit)
}

func (s *Service) organizationExists(ctx context.Context, tx *gorm.DB, orgID snowflake.ID) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM organizations WHERE id = ?`,
		orgID,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Service) resumePolicy() config.ResumePolicy {
	if s.policy == nil {
		return config.ResumePolicyKeepSchedule
	}
	return s.policy.Get().ResumePolicy
}

func (s *Service) audit(ctx context.Context, sub *domain.Subscription, action string) {
	if s.auditSvc == nil || sub == nil {
		return
	}
	targetID := sub.ID.String()
	orgID := sub.OrgID
	metadata := map[string]any{"status": string(sub.Status)}
	if sub.PlanID != nil {
		metadata["plan_id"] = sub.PlanID.String()
	}
	if err := s.auditSvc.AuditLog(ctx, &orgID, auditdomain.ActorTypeOperator, nil, action, "subscription", &targetID, metadata); err != nil {
		s.log.Warn("failed to write subscription audit log", zap.Error(err))
	}
}

// isTransitionAllowed encodes the lifecycle state machine for pause, resume
// and cancel. CANCELLED and INACTIVE have no outgoing transitions here;
// leaving either requires an explicit Start.
func isTransitionAllowed(current, target domain.SubscriptionStatus) bool {
	switch current {
	case domain.SubscriptionStatusActive:
		return target == domain.SubscriptionStatusPaused || target == domain.SubscriptionStatusCancelled
	case domain.SubscriptionStatusPaused:
		return target == domain.SubscriptionStatusActive || target == domain.SubscriptionStatusCancelled
	default:
		return false
	}
}

func parseID(value string, invalidErr error) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, invalidErr
	}
	return id, nil
}
