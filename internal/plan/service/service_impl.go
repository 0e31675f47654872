package service

import (
	"context"
	"strings"
	"time"

	auditdomain "github.com/agencyops/credcore/internal/audit/domain"
	"github.com/agencyops/credcore/internal/plan/domain"
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
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	auditSvc auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("plan.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreatePlanRequest) (*domain.Plan, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if req.MonthlyCredits < 0 {
		return nil, domain.ErrInvalidMonthlyCredits
	}

	now := time.Now().UTC()
	plan := &domain.Plan{
		ID:             s.genID.Generate(),
		Name:           name,
		MonthlyCredits: req.MonthlyCredits,
		PriceCents:     req.PriceCents,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.Insert(ctx, s.db, plan); err != nil {
		return nil, err
	}

	s.audit(ctx, plan, "plan.create")
	return plan, nil
}

func (s *Service) Update(ctx context.Context, id string, req domain.UpdatePlanRequest) (*domain.Plan, error) {
	planID, err := s.parseID(id)
	if err != nil {
		return nil, err
	}

	var updated *domain.Plan
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		plan, err := s.repo.FindByID(ctx, tx, planID)
		if err != nil {
			return err
		}
		if plan == nil {
			return domain.ErrPlanNotFound
		}

		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return domain.ErrInvalidName
			}
			plan.Name = name
		}
		if req.MonthlyCredits != nil {
			if *req.MonthlyCredits < 0 {
				return domain.ErrInvalidMonthlyCredits
			}
			plan.MonthlyCredits = *req.MonthlyCredits
		}
		if req.PriceCents != nil {
			plan.PriceCents = req.PriceCents
		}
		plan.UpdatedAt = time.Now().UTC()

		if err := s.repo.Update(ctx, tx, plan); err != nil {
			return err
		}
		updated = plan
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, updated, "plan.update")
	return updated, nil
}

func (s *Service) SetActive(ctx context.Context, id string, active bool) (*domain.Plan, error) {
	planID, err := s.parseID(id)
	if err != nil {
		return nil, err
	}

	var updated *domain.Plan
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		plan, err := s.repo.FindByID(ctx, tx, planID)
		if err != nil {
			return err
		}
		if plan == nil {
			return domain.ErrPlanNotFound
		}

		plan.Active = active
		plan.UpdatedAt = time.Now().UTC()
		if err := s.repo.Update(ctx, tx, plan); err != nil {
			return err
		}
		updated = plan
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, updated, "plan.set_active")
	return updated, nil
}

// Delete refuses to remove a plan that any subscription still references.
// The reference count and the delete run in one transaction so a concurrent
// subscription start cannot slip in between.
func (s *Service) Delete(ctx context.Context, id string) error {
	planID, err := s.parseID(id)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		plan, err := s.repo.FindByID(ctx, tx, planID)
		if err != nil {
			return err
		}
		if plan == nil {
			return domain.ErrPlanNotFound
		}

		refs, err := s.repo.CountSubscriptionsReferencing(ctx, tx, planID)
		if err != nil {
			return err
		}
		if refs > 0 {
			return domain.ErrPlanInUse
		}

		return s.repo.Delete(ctx, tx, planID)
	})
	if err != nil {
		return err
	}

	if s.auditSvc != nil {
		targetID := planID.String()
		if err := s.auditSvc.AuditLog(ctx, nil, auditdomain.ActorTypeOperator, nil, "plan.delete", "plan", &targetID, nil); err != nil {
			s.log.Warn("failed to write plan audit log", zap.Error(err))
		}
	}
	return nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*domain.Plan, error) {
	planID, err := s.parseID(id)
	if err != nil {
		return nil, err
	}

	plan, err := s.repo.FindByID(ctx, s.db, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, domain.ErrPlanNotFound
	}
	return plan, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Plan, error) {
	return s.repo.List(ctx, s.db)
}

func (s *Service) audit(ctx context.Context, plan *domain.Plan, action string) {
	if s.auditSvc == nil || plan == nil {
		return
	}
	targetID := plan.ID.String()
	err := s.auditSvc.AuditLog(ctx, nil, auditdomain.ActorTypeOperator, nil, action, "plan", &targetID, map[string]any{
		"name":            plan.Name,
		"monthly_credits": plan.MonthlyCredits,
		"active":          plan.Active,
	})
	if err != nil {
		s.log.Warn("failed to write plan audit log", zap.Error(err))
	}
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidPlan
	}
	return id, nil
}
