// Package app assembles configuration, broker, stores, engines and
// transports into a runnable process.
package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"vigil/internal/config"
	"vigil/internal/logger"
	"vigil/internal/scheduler"
	apihttp "vigil/internal/transport/http"
)

// App owns the long-running pieces and their shutdown order.
type App struct {
	cfg   *config.Config
	http  *apihttp.Server
	sched *scheduler.IntervalScheduler

	closers []func()
}

// NewApp builds the application from config without starting it.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run serves HTTP and the automation loop until ctx is cancelled or
// one of them fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.close()

	group, ctx := errgroup.WithContext(ctx)

	if a.http != nil {
		group.Go(func() error {
			logger.Infof("http server listening on %s", a.http.Addr())
			if err := a.http.Start(ctx); err != nil {
				return fmt.Errorf("http server error: %w", err)
			}
			return nil
		})
	}

	group.Go(func() error {
		err := a.sched.Run(ctx)
		if err == context.Canceled {
			return nil
		}
		return err
	})

	return group.Wait()
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
