package courier

import (
	"context"
	"log/slog"

	"github.com/casualjim/courier/pkg/slogx"
	"github.com/fogfish/opts"
)

// FailureSink receives errors from async handlers started by Publish, where
// no caller is waiting for the outcome.
type FailureSink func(ctx context.Context, subscriptionID string, err error)

type brokerConfig struct {
	logger      *slog.Logger
	failureSink FailureSink
	filters     []any
}

var (
	// WithLogger sets the logger used for unobserved failures and diagnostics.
	WithLogger = opts.ForName[brokerConfig, *slog.Logger]("logger")

	// WithFailureSink routes failures of fire-and-forget async handlers.
	// Without a sink they are logged at error level.
	WithFailureSink = opts.ForName[brokerConfig, FailureSink]("failureSink")
)

// WithGlobalFilters seeds the global filters of every broker built from these
// options. Each value is used by the brokers whose message type it serves:
// a Filter[T] or a FilterProvider[T]. Other values are ignored.
func WithGlobalFilters(filters ...any) opts.Option[brokerConfig] {
	return opts.Type[brokerConfig](func(c *brokerConfig) error {
		c.filters = append(c.filters, filters...)
		return nil
	})
}

// WithFilterProvider seeds the global filters from provider.
func WithFilterProvider[T any](provider FilterProvider[T]) opts.Option[brokerConfig] {
	return WithGlobalFilters(provider)
}

func newBrokerConfig(options []opts.Option[brokerConfig]) brokerConfig {
	cfg := brokerConfig{}
	if err := opts.Apply(&cfg, options); err != nil {
		panic(err)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.failureSink == nil {
		logger := cfg.logger
		cfg.failureSink = func(ctx context.Context, id string, err error) {
			logger.ErrorContext(ctx, "unobserved handler failure", slogx.SubscriptionID(id), slogx.Error(err))
		}
	}
	return cfg
}
