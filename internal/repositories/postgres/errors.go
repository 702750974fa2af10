package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/feastline/api/internal/repositories"
)

// wrapError classifies driver errors into repository error kinds.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}

	kind := repositories.ErrorKindUnknown
	message := "query failed"

	switch {
	case errors.Is(err, sql.ErrNoRows):
		kind = repositories.ErrorKindNotFound
		message = "record not found"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		kind = repositories.ErrorKindUnavailable
		message = "database operation interrupted"
	case errors.Is(err, sql.ErrConnDone), errors.Is(err, sql.ErrTxDone):
		kind = repositories.ErrorKindUnavailable
		message = "database connection unavailable"
	default:
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Code.Class() {
			case "23":
				kind = repositories.ErrorKindConflict
				message = "constraint violation"
			case "08", "53", "57":
				kind = repositories.ErrorKindUnavailable
				message = "database unavailable"
			}
		}
	}

	return repositories.NewError(op, kind, message, err)
}
