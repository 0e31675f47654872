// Package seed bootstraps a default organization and a starter plan so a
// fresh install has something to operate on.
package seed

import (
	"context"
	"errors"
	"time"

	organizationdomain "github.com/agencyops/credcore/internal/organization/domain"
	plandomain "github.com/agencyops/credcore/internal/plan/domain"
	subscriptiondomain "github.com/agencyops/credcore/internal/subscription/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultOrgName        = "Main"
	starterPlanName       = "Starter"
	starterMonthlyCredits = 100
	starterPlanPriceCents = 0
)

// EnsureDefaults seeds the default organization, its subscription row and a
// starter plan. Safe to call on every startup.
func EnsureDefaults(db *gorm.DB) error {
	return EnsureDefaultsWithOrgID(db, 0)
}

// EnsureDefaultsWithOrgID seeds with a fixed organization id, used when the
// operator pins the default organization via configuration.
func EnsureDefaultsWithOrgID(db *gorm.DB, orgID int64) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		org, err := ensureDefaultOrgTx(ctx, tx, node, snowflake.ID(orgID))
		if err != nil {
			return err
		}
		if err := ensureSubscriptionRowTx(ctx, tx, node, org.ID); err != nil {
			return err
		}
		return ensureStarterPlanTx(ctx, tx, node)
	})
}

func ensureDefaultOrgTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, fixedID snowflake.ID) (*organizationdomain.Organization, error) {
	var org organizationdomain.Organization
	err := tx.WithContext(ctx).Where("name = ?", defaultOrgName).First(&org).Error
	if err == nil {
		return &org, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	id := fixedID
	if id == 0 {
		id = node.Generate()
	}
	now := time.Now().UTC()
	org = organizationdomain.Organization{
		ID:        id,
		Name:      defaultOrgName,
		Status:    organizationdomain.OrganizationStatusActive,
		Metadata:  datatypes.JSONMap{"seeded": true},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&org).Error; err != nil {
		return nil, err
	}
	return &org, nil
}

func ensureSubscriptionRowTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, orgID snowflake.ID) error {
	var sub subscriptiondomain.Subscription
	err := tx.WithContext(ctx).Where("org_id = ?", orgID).First(&sub).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	now := time.Now().UTC()
	sub = subscriptiondomain.Subscription{
		ID:        node.Generate(),
		OrgID:     orgID,
		Status:    subscriptiondomain.SubscriptionStatusInactive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return tx.WithContext(ctx).Create(&sub).Error
}

func ensureStarterPlanTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node) error {
	var plan plandomain.Plan
	err := tx.WithContext(ctx).Where("name = ?", starterPlanName).First(&plan).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	now := time.Now().UTC()
	price := int64(starterPlanPriceCents)
	plan = plandomain.Plan{
		ID:             node.Generate(),
		Name:           starterPlanName,
		MonthlyCredits: starterMonthlyCredits,
		PriceCents:     &price,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return tx.WithContext(ctx).Create(&plan).Error
}
