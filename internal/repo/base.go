package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// DefaultTimeout bounds reads issued outside a transaction when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// Base provides a shared foundation for domain repositories.
type Base struct {
	db      *gorm.DB
	timeout time.Duration
}

// NewBase constructs a Base repository backed by the provided GORM connection.
func NewBase(db *gorm.DB) Base {
	return Base{db: db, timeout: DefaultTimeout}
}

// WithTimeout returns a copy whose bounded queries use d.
func (b Base) WithTimeout(d time.Duration) Base {
	if d > 0 {
		b.timeout = d
	}
	return b
}

// DB returns the GORM connection bound to the supplied context (if any).
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Bounded returns the connection bound to a context that expires after the
// store operation timeout. Callers must invoke the returned cancel func.
func (b Base) Bounded(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	return b.db.WithContext(ctx), cancel
}
