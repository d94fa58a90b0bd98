package migration

import (
	"github.com/smallbiznis/recouply/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(migrateOnStart),
)

func migrateOnStart(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
	log = log.Named("migration")
	if !cfg.DBAutoMigrate {
		log.Info("auto migration disabled")
		return nil
	}
	if cfg.DBType != "postgres" {
		log.Warn("skipping embedded migrations for non-postgres database",
			zap.String("database_type", cfg.DBType),
		)
		return nil
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	res, err := Up(sqlDB)
	if err != nil {
		return err
	}
	if res.Dirty {
		log.Warn("schema left dirty", zap.Uint("version", res.Version))
	}
	log.Info("schema ready",
		zap.Uint("version", res.Version),
		zap.Bool("changed", res.Changed),
	)
	return nil
}
