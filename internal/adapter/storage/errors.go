package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/storefront/internal/core/domain"
)

const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

// classify wraps a driver error with op and maps failures that are safe to
// retry onto TRANSIENT_STORE. Domain errors pass through untouched.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	wrapped := fmt.Errorf("%s: %w", op, err)

	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlErrDuplicateEntry:
			return domain.WrapError(domain.KindAlreadyExists, "resource already exists", wrapped)
		case mysqlErrLockWaitTimeout, mysqlErrDeadlock:
			return domain.WrapError(domain.KindTransientStore, "storage temporarily unavailable", wrapped)
		}
		return wrapped
	}

	var netErr net.Error
	switch {
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, mysql.ErrInvalidConn),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, redis.ErrClosed),
		errors.As(err, &netErr):
		return domain.WrapError(domain.KindTransientStore, "storage temporarily unavailable", wrapped)
	}
	return wrapped
}
