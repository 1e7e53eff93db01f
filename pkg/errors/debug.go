package errors

import (
	stdErrors "errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Dump renders the whole wrapped chain for logging, including driver
// specifics that Error() alone would hide.
func Dump(err error) string {
	if err == nil {
		return "<nil>"
	}

	var sb strings.Builder
	depth := 0
	for err != nil {
		if depth > 0 {
			sb.WriteString(" <- ")
		}
		sb.WriteString(err.Error())

		var pgErr *pgconn.PgError
		if stdErrors.As(err, &pgErr) {
			sb.WriteString(fmt.Sprintf(
				" [pg code=%s detail=%s constraint=%s table=%s]",
				pgErr.Code, pgErr.Detail, pgErr.ConstraintName, pgErr.TableName,
			))
		}
		var pqErr *pq.Error
		if stdErrors.As(err, &pqErr) {
			sb.WriteString(fmt.Sprintf(
				" [pq code=%s detail=%s constraint=%s]",
				pqErr.Code, pqErr.Detail, pqErr.Constraint,
			))
		}

		err = stdErrors.Unwrap(err)
		depth++
		if depth > 16 {
			sb.WriteString(" <- ...")
			break
		}
	}
	return sb.String()
}
