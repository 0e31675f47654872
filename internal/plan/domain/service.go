package domain

import (
	"context"
	"errors"
)

type CreatePlanRequest struct {
	Name           string `json:"name"`
	MonthlyCredits int64  `json:"monthly_credits"`
	PriceCents     *int64 `json:"price_cents,omitempty"`
}

type UpdatePlanRequest struct {
	Name           *string `json:"name,omitempty"`
	MonthlyCredits *int64  `json:"monthly_credits,omitempty"`
	PriceCents     *int64  `json:"price_cents,omitempty"`
}

type Service interface {
	Create(ctx context.Context, req CreatePlanRequest) (*Plan, error)
	Update(ctx context.Context, id string, req UpdatePlanRequest) (*Plan, error)
	SetActive(ctx context.Context, id string, active bool) (*Plan, error)
	// Delete removes an unreferenced plan. Plans referenced by any
	// subscription fail with ErrPlanInUse and must be deactivated instead.
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*Plan, error)
	List(ctx context.Context) ([]Plan, error)
}

var (
	ErrInvalidName           = errors.New("invalid_name")
	ErrInvalidPlan           = errors.New("invalid_plan")
	ErrInvalidMonthlyCredits = errors.New("invalid_monthly_credits")
	ErrPlanNotFound          = errors.New("plan_not_found")
	ErrPlanInUse             = errors.New("plan_in_use")
)
