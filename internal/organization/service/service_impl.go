package service

import (
	"context"
	"strings"
	"time"

	auditdomain "github.com/agencyops/credcore/internal/audit/domain"
	"github.com/agencyops/credcore/internal/organization/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
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
		log:      p.Log.Named("organization.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateOrganizationRequest) (*domain.Organization, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	now := time.Now().UTC()
	org := &domain.Organization{
		ID:                 s.genID.Generate(),
		Name:               name,
		RegistrationNumber: trimPtr(req.RegistrationNumber),
		Status:             domain.OrganizationStatusPilot,
		BusinessProfile:    strings.TrimSpace(req.BusinessProfile),
		Metadata:           datatypes.JSONMap{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.repo.Insert(ctx, s.db, org); err != nil {
		return nil, err
	}

	s.audit(ctx, org, "organization.create")
	return org, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*domain.Organization, error) {
	orgID, err := s.parseID(id)
	if err != nil {
		return nil, err
	}

	org, err := s.repo.FindByID(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, domain.ErrOrganizationNotFound
	}
	return org, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Organization, error) {
	return s.repo.List(ctx, s.db)
}

func (s *Service) Update(ctx context.Context, id string, req domain.UpdateOrganizationRequest) (*domain.Organization, error) {
	orgID, err := s.parseID(id)
	if err != nil {
		return nil, err
	}

	var updated *domain.Organization
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		org, err := s.repo.FindByID(ctx, tx, orgID)
		if err != nil {
			return err
		}
		if org == nil {
			return domain.ErrOrganizationNotFound
		}

		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return domain.ErrInvalidName
			}
			org.Name = name
		}
		if req.RegistrationNumber != nil {
			org.RegistrationNumber = trimPtr(req.RegistrationNumber)
		}
		if req.BusinessProfile != nil {
			org.BusinessProfile = strings.TrimSpace(*req.BusinessProfile)
		}
		org.UpdatedAt = time.Now().UTC()

		if err := s.repo.Update(ctx, tx, org); err != nil {
			return err
		}
		updated = org
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, updated, "organization.update")
	return updated, nil
}

func (s *Service) SetStatus(ctx context.Context, id string, status domain.OrganizationStatus) (*domain.Organization, error) {
	orgID, err := s.parseID(id)
	if err != nil {
		return nil, err
	}
	if !isValidStatus(status) {
		return nil, domain.ErrInvalidStatus
	}

	var updated *domain.Organization
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		org, err := s.repo.FindByID(ctx, tx, orgID)
		if err != nil {
			return err
		}
		if org == nil {
			return domain.ErrOrganizationNotFound
		}

		org.Status = status
		org.UpdatedAt = time.Now().UTC()
		if err := s.repo.Update(ctx, tx, org); err != nil {
			return err
		}
		updated = org
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, updated, "organization.set_status")
	return updated, nil
}

func (s *Service) audit(ctx context.Context, org *domain.Organization, action string) {
	if s.auditSvc == nil || org == nil {
		return
	}
	targetID := org.ID.String()
	orgID := org.ID
	err := s.auditSvc.AuditLog(ctx, &orgID, auditdomain.ActorTypeOperator, nil, action, "organization", &targetID, map[string]any{
		"name":   org.Name,
		"status": string(org.Status),
	})
	if err != nil {
		s.log.Warn("failed to write organization audit log", zap.Error(err))
	}
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidOrganization
	}
	return id, nil
}

func isValidStatus(status domain.OrganizationStatus) bool {
	switch status {
	case domain.OrganizationStatusPilot,
		domain.OrganizationStatusActive,
		domain.OrganizationStatusChurned:
		return true
	default:
		return false
	}
}

func trimPtr(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
