package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/AlibekovAA/webpush-relay/internal/common/constants"
	"github.com/AlibekovAA/webpush-relay/internal/common/logger"
)

// ShutdownHook runs after the HTTP server has stopped accepting requests.
type ShutdownHook struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Run serves until ctx is done, then shuts the server down and runs hooks in
// order, sharing one drain deadline.
func Run(ctx context.Context, server *http.Server, log *logger.Logger, serviceName string, hooks ...ShutdownHook) error {
	serveErr := make(chan error, 1)
	go func() {
		log.Infof("%s service listening on %s", serviceName, server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("failed to start %s service: %w", serviceName, err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Infof("shutting down %s service...", serviceName)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer shutdownCancel()

	server.SetKeepAlivesEnabled(false)
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("%s service forced to shutdown: %v", serviceName, err)
	}

	drainCtx, drainCancel := context.WithTimeout(shutdownCtx, constants.DrainTimeout)
	defer drainCancel()

	log.Infof("%s service: executing shutdown hooks (drain period: %v)", serviceName, constants.DrainTimeout)
	for _, hook := range hooks {
		if err := hook.Fn(drainCtx); err != nil {
			log.Errorf("%s service: shutdown hook %s failed: %v", serviceName, hook.Name, err)
		}
	}

	log.Infof("%s service stopped gracefully", serviceName)
	return nil
}
