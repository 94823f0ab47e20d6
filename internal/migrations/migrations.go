package migrations

import (
	"database/sql"
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/logger"
)

//go:embed sql/*.sql
var sqlFS embed.FS

// Migrator applies the embedded schema to a Postgres database.
type Migrator struct {
	m      *migrate.Migrate
	logger *logger.Logger
}

// New prepares a migrator on an open connection.
func New(db *sql.DB, logger *logger.Logger) (*Migrator, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("create postgres migration driver").
			Mark(ierr.ErrDatabase)
	}

	source, err := iofs.New(sqlFS, "sql")
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("open embedded migrations").
			Mark(ierr.ErrSystem)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("init migrate instance").
			Mark(ierr.ErrDatabase)
	}
	return &Migrator{m: m, logger: logger}, nil
}

// Up applies every pending migration. A database already at the latest version is not an error.
func (mg *Migrator) Up() error {
	if err := mg.m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			mg.logger.Infow("no new migrations to apply", "version", mg.version())
			return nil
		}
		return ierr.WithError(err).WithMessage("apply migrations").Mark(ierr.ErrDatabase)
	}
	mg.logger.Infow("applied migrations", "version", mg.version())
	return nil
}

// Down rolls back the given number of migrations.
func (mg *Migrator) Down(steps int) error {
	if err := mg.m.Steps(-steps); err != nil {
		return ierr.WithError(err).WithMessage("roll back migrations").Mark(ierr.ErrDatabase)
	}
	mg.logger.Infow("rolled back migrations", "steps", steps, "version", mg.version())
	return nil
}

// Version returns the current schema version and whether it is dirty.
func (mg *Migrator) Version() (uint, bool, error) {
	v, dirty, err := mg.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

func (mg *Migrator) version() uint {
	v, _, _ := mg.Version()
	return v
}

// Close releases the source and database drivers.
func (mg *Migrator) Close() error {
	srcErr, dbErr := mg.m.Close()
	if srcErr != nil {
		return srcErr
	}
	return dbErr
}
