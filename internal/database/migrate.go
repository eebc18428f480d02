// Package database はデータベース接続とマイグレーション管理を提供する。
package database

import (
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sandbox/*.sql
var sandboxMigrationsFS embed.FS

//go:embed migrations/device/*.sql
var deviceMigrationsFS embed.FS

// NewMigrator はサンドボックス用PostgreSQLのmigrateインスタンスを生成する。
// databaseURLはPostgreSQLの接続URLを指定する。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	return newMigrator(sandboxMigrationsFS, "migrations/sandbox", databaseURL)
}

// NewDeviceMigrator はデバイスローカルSQLiteのmigrateインスタンスを生成する。
// pathはSQLiteファイルのパスを指定する。
func NewDeviceMigrator(path string) (*migrate.Migrate, error) {
	return newMigrator(deviceMigrationsFS, "migrations/device", "sqlite://"+path)
}

func newMigrator(fsys embed.FS, dir, databaseURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return m, nil
}

// RunMigrations はサンドボックスのすべてのマイグレーションを適用する。
// すでに最新の場合はエラーなしで返る。
func RunMigrations(databaseURL string) error {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	return up(m)
}

// RunDeviceMigrations は下書きストア用SQLiteにマイグレーションを適用する。
// migrateは独自の接続を開くため、アプリケーションの*sql.DBには影響しない。
func RunDeviceMigrations(path string) error {
	m, err := NewDeviceMigrator(path)
	if err != nil {
		return err
	}
	return up(m)
}

func up(m *migrate.Migrate) error {
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
