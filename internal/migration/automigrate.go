package migration

import (
	auditdomain "github.com/agencyops/credcore/internal/audit/domain"
	ledgerdomain "github.com/agencyops/credcore/internal/ledger/domain"
	organizationdomain "github.com/agencyops/credcore/internal/organization/domain"
	plandomain "github.com/agencyops/credcore/internal/plan/domain"
	"github.com/agencyops/credcore/internal/scheduler"
	subscriptiondomain "github.com/agencyops/credcore/internal/subscription/domain"
	"gorm.io/gorm"
)

// AutoMigrate derives the schema from the models for non-postgres databases.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&organizationdomain.Organization{},
		&ledgerdomain.LedgerEntry{},
		&plandomain.Plan{},
		&subscriptiondomain.Subscription{},
		&scheduler.RefillExecution{},
		&auditdomain.AuditLog{},
	)
}
