package bootstrap

import (
	"github.com/shipstream/tagkeeper/common/db"
	"github.com/shipstream/tagkeeper/common/logger"
)

// Option configures the bootstrap process
type Option func(*options)

type options struct {
	skipTelemetry bool
	customLogger  *logger.Logger
	dbInitHook    func(*db.DB) error
}

// WithoutTelemetry skips telemetry initialization
func WithoutTelemetry() Option {
	return func(o *options) {
		o.skipTelemetry = true
	}
}

// WithCustomLogger uses a custom logger instead of creating one
func WithCustomLogger(log *logger.Logger) Option {
	return func(o *options) {
		o.customLogger = log
	}
}

// WithDBInitHook runs a custom function after DB initialization
// Useful for running migrations, seeding data, etc.
func WithDBInitHook(hook func(*db.DB) error) Option {
	return func(o *options) {
		o.dbInitHook = hook
	}
}

func defaultOptions() *options {
	return &options{}
}
