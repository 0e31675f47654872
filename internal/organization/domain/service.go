package domain

import (
	"context"
	"errors"
)

type CreateOrganizationRequest struct {
	Name               string  `json:"name"`
	RegistrationNumber *string `json:"registration_number,omitempty"`
	BusinessProfile    string  `json:"business_profile,omitempty"`
}

type UpdateOrganizationRequest struct {
	Name               *string `json:"name,omitempty"`
	RegistrationNumber *string `json:"registration_number,omitempty"`
	BusinessProfile    *string `json:"business_profile,omitempty"`
}

type Service interface {
	Create(ctx context.Context, req CreateOrganizationRequest) (*Organization, error)
	GetByID(ctx context.Context, id string) (*Organization, error)
	List(ctx context.Context) ([]Organization, error)
	Update(ctx context.Context, id string, req UpdateOrganizationRequest) (*Organization, error)
	SetStatus(ctx context.Context, id string, status OrganizationStatus) (*Organization, error)
}

var (
	ErrInvalidName          = errors.New("invalid_name")
	ErrInvalidOrganization  = errors.New("invalid_organization")
	ErrInvalidStatus        = errors.New("invalid_status")
	ErrOrganizationNotFound = errors.New("organization_not_found")
)
