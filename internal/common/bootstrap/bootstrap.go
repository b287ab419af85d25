package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/AlibekovAA/webpush-relay/internal/common/config"
	"github.com/AlibekovAA/webpush-relay/internal/common/constants"
	"github.com/AlibekovAA/webpush-relay/internal/common/db"
	"github.com/AlibekovAA/webpush-relay/internal/common/logger"
	subscriptionrepo "github.com/AlibekovAA/webpush-relay/internal/subscription/repository"
	"github.com/AlibekovAA/webpush-relay/internal/vapid"
)

// PushApp holds what must exist before the HTTP server starts: config, the
// subscription store and the VAPID identity.
type PushApp struct {
	Log      *logger.Logger
	Config   config.PushConfig
	Store    subscriptionrepo.Repository
	Identity vapid.Identity
	closers  []func()
}

func NewPushApp(ctx context.Context) (*PushApp, error) {
	log, err := initializeLogger("push")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg, err := config.LoadPushConfig()
	if err != nil {
		log.Errorf("failed to load config: %v", err)
		return nil, err
	}

	app := &PushApp{Log: log, Config: cfg}

	if err := app.initializeStore(ctx); err != nil {
		return nil, err
	}

	identity, err := vapid.NewProvider(cfg.VAPIDKeyPath(), log).EnsureIdentity(cfg.VAPIDSubject)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Identity = identity

	return app, nil
}

func (a *PushApp) initializeStore(ctx context.Context) error {
	switch a.Config.StoreDriver {
	case config.StoreDriverSQLite:
		repo, err := subscriptionrepo.OpenSQLite(ctx, a.Config.SQLitePath, constants.DefaultSQLiteBusyTimeout)
		if err != nil {
			return fmt.Errorf("failed to open subscription store: %w", err)
		}
		a.Store = repo
		a.closers = append(a.closers, func() { _ = repo.Close() })
		a.Log.Infof("subscription store: sqlite at %s", a.Config.SQLitePath)

	default:
		pool, err := db.NewPool(ctx, a.Log, a.Config.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to initialize database pool: %w", err)
		}
		db.StartPoolMetrics(ctx, pool, constants.DBPoolMetricsInterval)
		a.Store = subscriptionrepo.NewPgRepository(pool)
		a.closers = append(a.closers, pool.Close)
		a.Log.Info("subscription store: postgres")
	}
	return nil
}

// Close releases the store. Safe to call more than once.
func (a *PushApp) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func initializeLogger(serviceName string) (*logger.Logger, error) {
	return logger.New(os.Getenv("LOG_DIR"), serviceName, os.Getenv("LOG_LEVEL"))
}
