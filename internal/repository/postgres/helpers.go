package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	ierr "github.com/vibefunder/billing/internal/errors"
)

const pqUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

// wrapGetError maps a single row read failure onto the error sentinels.
func wrapGetError(err error, entity string, details map[string]any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ierr.WithError(err).
			WithHintf("%s not found", entity).
			WithReportableDetails(details).
			Mark(ierr.ErrNotFound)
	}
	return ierr.WithError(err).
		WithMessagef("failed to get %s", strings.ToLower(entity)).
		WithHintf("Could not load %s", strings.ToLower(entity)).
		Mark(ierr.ErrDatabase)
}

// wrapWriteError maps an insert or update failure onto the error sentinels.
func wrapWriteError(err error, op, entity string, details map[string]any) error {
	if isUniqueViolation(err) {
		return ierr.WithError(err).
			WithHintf("%s already exists", entity).
			WithReportableDetails(details).
			Mark(ierr.ErrAlreadyExists)
	}
	return ierr.WithError(err).
		WithMessagef("failed to %s %s", op, strings.ToLower(entity)).
		WithHintf("Could not %s %s", op, strings.ToLower(entity)).
		Mark(ierr.ErrDatabase)
}

// whereBuilder collects positional predicates.
type whereBuilder struct {
	clauses []string
	args    []interface{}
}

func (w *whereBuilder) add(clause string, arg interface{}) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(clause, len(w.args)))
}

func (w *whereBuilder) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}
