package repository

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// uniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const uniqueViolation = "23505"

// isUniqueViolation はerrがPostgreSQLの一意制約違反かを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// wrapWriteError は書き込みエラーにメッセージを付与する。
// 一意制約違反の場合はErrConflictとしても判定できるようにする。
func wrapWriteError(msg string, err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w (%w)", msg, ErrConflict, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
