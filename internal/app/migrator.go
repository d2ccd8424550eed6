package app

import (
	"context"
	"fmt"
	"io/fs"
	"os"

	"github.com/Freeeeeet/concierge/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

// Migrator обёртка над goose
type Migrator struct {
	provider *goose.Provider
	logger   *zap.Logger
}

// NewMigrator создаёт мигратор. Пустой migrationsPath означает встроенные миграции.
func NewMigrator(pool *pgxpool.Pool, migrationsPath string, logger *zap.Logger) (*Migrator, error) {
	var fsys fs.FS = migrations.FS
	if migrationsPath != "" {
		fsys = os.DirFS(migrationsPath)
	}

	// Goose работает с *sql.DB, поэтому создаём его поверх пула
	db := stdlib.OpenDBFromPool(pool)

	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create goose provider: %w", err)
	}

	return &Migrator{provider: provider, logger: logger}, nil
}

// Run применяет все pending миграции
func (mg *Migrator) Run(ctx context.Context) error {
	mg.logger.Info("Applying database migrations")

	results, err := mg.provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	for _, res := range results {
		mg.logger.Info("Migration applied",
			zap.Int64("version", res.Source.Version),
			zap.Duration("took", res.Duration),
		)
	}

	version, err := mg.Version(ctx)
	if err != nil {
		return err
	}
	mg.logger.Info("Migrations up to date", zap.Int64("version", version), zap.Int("applied", len(results)))
	return nil
}

// Version показывает текущую версию схемы
func (mg *Migrator) Version(ctx context.Context) (int64, error) {
	version, err := mg.provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("get version: %w", err)
	}
	return version, nil
}

// Close закрывает sql.DB мигратора, пул остаётся открытым
func (mg *Migrator) Close() error {
	return mg.provider.Close()
}
