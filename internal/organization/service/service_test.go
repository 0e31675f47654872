package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/agencyops/credcore/internal/organization/domain"
	organizationrepository "github.com/agencyops/credcore/internal/organization/repository"
)

func newTestService(t *testing.T) domain.Service {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.Exec(`
		CREATE TABLE organizations (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			registration_number TEXT,
			status TEXT NOT NULL,
			business_profile TEXT,
			metadata TEXT,
			created_at DATETIME,
			updated_at DATETIME
		)
	`).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  organizationrepository.NewRepository(),
	})
}

func TestCreateOrganization(t *testing.T) {
	svc := newTestService(t)

	regNo := "  REG-042  "
	org, err := svc.Create(context.Background(), domain.CreateOrganizationRequest{
		Name:               "  Acme Media  ",
		RegistrationNumber: &regNo,
		BusinessProfile:    "Advertising agency",
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme Media", org.Name)
	require.NotNil(t, org.RegistrationNumber)
	assert.Equal(t, "REG-042", *org.RegistrationNumber)
	assert.Equal(t, domain.OrganizationStatusPilot, org.Status)

	_, err = svc.Create(context.Background(), domain.CreateOrganizationRequest{Name: "   "})
	require.ErrorIs(t, err, domain.ErrInvalidName)
}

func TestGetOrganizationByID(t *testing.T) {
	svc := newTestService(t)

	org, err := svc.Create(context.Background(), domain.CreateOrganizationRequest{Name: "Acme"})
	require.NoError(t, err)

	found, err := svc.GetByID(context.Background(), org.ID.String())
	require.NoError(t, err)
	assert.Equal(t, org.ID, found.ID)

	_, err = svc.GetByID(context.Background(), snowflake.ID(77).String())
	require.ErrorIs(t, err, domain.ErrOrganizationNotFound)

	_, err = svc.GetByID(context.Background(), "not-a-number")
	require.ErrorIs(t, err, domain.ErrInvalidOrganization)
}

func TestUpdateOrganization(t *testing.T) {
	svc := newTestService(t)

	org, err := svc.Create(context.Background(), domain.CreateOrganizationRequest{Name: "Acme"})
	require.NoError(t, err)

	newName := "Acme Holdings"
	updated, err := svc.Update(context.Background(), org.ID.String(), domain.UpdateOrganizationRequest{
		Name: &newName,
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme Holdings", updated.Name)

	empty := " "
	_, err = svc.Update(context.Background(), org.ID.String(), domain.UpdateOrganizationRequest{Name: &empty})
	require.ErrorIs(t, err, domain.ErrInvalidName)
}

func TestSetOrganizationStatus(t *testing.T) {
	svc := newTestService(t)

	org, err := svc.Create(context.Background(), domain.CreateOrganizationRequest{Name: "Acme"})
	require.NoError(t, err)

	updated, err := svc.SetStatus(context.Background(), org.ID.String(), domain.OrganizationStatusActive)
	require.NoError(t, err)
	assert.Equal(t, domain.OrganizationStatusActive, updated.Status)

	_, err = svc.SetStatus(context.Background(), org.ID.String(), domain.OrganizationStatus("BOGUS"))
	require.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestListOrganizations(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Create(context.Background(), domain.CreateOrganizationRequest{Name: "A"})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), domain.CreateOrganizationRequest{Name: "B"})
	require.NoError(t, err)

	orgs, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, orgs, 2)
}
