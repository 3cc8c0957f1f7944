// Package migrations применяет встроенные SQL-миграции схемы апгрейдов.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/giantcranberry/Newsworthy-sub000/pkg/logger"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed sql/*.sql
var sqlFS embed.FS

// Source открывает встроенные миграции
func Source() (source.Driver, error) {
	src, err := iofs.New(sqlFS, "sql")
	if err != nil {
		return nil, fmt.Errorf("migrations: open embedded migrations: %w", err)
	}
	return src, nil
}

// Migrator обертка над migrate.Migrate с логированием
type Migrator struct {
	m   *migrate.Migrate
	log *logger.Logger
}

// New создает Migrator поверх открытого подключения
func New(db *sql.DB, log *logger.Logger) (*Migrator, error) {
	driver, err := pgx.WithInstance(db, &pgx.Config{})
	if err != nil {
		return nil, fmt.Errorf("migrations: create postgres driver: %w", err)
	}

	src, err := Source()
	if err != nil {
		return nil, err
	}

	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		return nil, fmt.Errorf("migrations: init migrate instance: %w", err)
	}
	return &Migrator{m: m, log: log}, nil
}

// Up применяет все новые миграции. Актуальная схема не считается ошибкой.
func (mg *Migrator) Up() error {
	before, _, _ := mg.Version()

	if err := mg.m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			mg.log.Infow("No new migrations to apply", "version", before)
			return nil
		}
		return fmt.Errorf("migrations: apply: %w", err)
	}

	after, _, err := mg.Version()
	if err != nil {
		return err
	}
	mg.log.Infow("Migrations applied", "from", before, "to", after)
	return nil
}

// Down откатывает steps последних миграций
func (mg *Migrator) Down(steps int) error {
	if steps <= 0 {
		return fmt.Errorf("migrations: steps must be positive, got %d", steps)
	}
	if err := mg.m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrations: rollback: %w", err)
	}
	mg.log.Infow("Migrations rolled back", "steps", steps)
	return nil
}

// Version текущая версия схемы. Для пустой базы возвращается 0.
func (mg *Migrator) Version() (uint, bool, error) {
	v, dirty, err := mg.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("migrations: read version: %w", err)
	}
	return v, dirty, nil
}

// Force выставляет версию без выполнения миграций, снимая признак dirty
func (mg *Migrator) Force(version int) error {
	if err := mg.m.Force(version); err != nil {
		return fmt.Errorf("migrations: force version %d: %w", version, err)
	}
	mg.log.Warnw("Migration version forced", "version", version)
	return nil
}

// Close освобождает источник миграций. Подключение к базе остается открытым.
func (mg *Migrator) Close() error {
	srcErr, _ := mg.m.Close()
	return srcErr
}

// Up применяет миграции одним вызовом
func Up(db *sql.DB, log *logger.Logger) error {
	mg, err := New(db, log)
	if err != nil {
		return err
	}
	return mg.Up()
}
