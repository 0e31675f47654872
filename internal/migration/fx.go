package migration

import (
	"github.com/agencyops/credcore/internal/config"
	"github.com/agencyops/credcore/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// mysql and sqlite are dev conveniences; let gorm derive the
			// schema from the models there.
			if err := AutoMigrate(conn); err != nil {
				return err
			}
		}

		if !cfg.SeedDefaults {
			return nil
		}
		if cfg.DefaultOrgID != 0 {
			return seed.EnsureDefaultsWithOrgID(conn, cfg.DefaultOrgID)
		}
		return seed.EnsureDefaults(conn)
	}),
)
