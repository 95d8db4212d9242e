package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

func ParseDirection(raw string) (Direction, error) {
	switch Direction(raw) {
	case "", Up:
		return Up, nil
	case Down:
		return Down, nil
	default:
		return "", fmt.Errorf("unknown migration direction %q", raw)
	}
}

// MigratePostgres applies the embedded postgres migrations through the pool.
func MigratePostgres(pool *pgxpool.Pool, dir Direction) error {
	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	drv, err := migratepgx.WithInstance(sqlDB, &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("postgres migrate driver: %w", err)
	}
	return run("pgx5", drv, "migrations/postgres", dir)
}

// MigrateSQLite applies the embedded sqlite migrations. The handle stays open.
func MigrateSQLite(conn *sql.DB, dir Direction) error {
	drv, err := migratesqlite.WithInstance(conn, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("sqlite migrate driver: %w", err)
	}
	return run("sqlite", drv, "migrations/sqlite", dir)
}

// run never closes the migrator: that would close the caller's database handle.
func run(driverName string, drv database.Driver, path string, dir Direction) error {
	src, err := iofs.New(migrationsFS, path)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, driverName, drv)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	switch dir {
	case Down:
		err = m.Down()
	default:
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate %s: %w", dir, err)
	}
	return nil
}
