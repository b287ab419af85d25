package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AlibekovAA/webpush-relay/internal/alert"
	"github.com/AlibekovAA/webpush-relay/internal/common/bootstrap"
	"github.com/AlibekovAA/webpush-relay/internal/common/clock"
	commonhttp "github.com/AlibekovAA/webpush-relay/internal/common/http"
	srv "github.com/AlibekovAA/webpush-relay/internal/common/server"
	"github.com/AlibekovAA/webpush-relay/internal/presence"
	"github.com/AlibekovAA/webpush-relay/internal/push"
	subscriptionhttp "github.com/AlibekovAA/webpush-relay/internal/subscription/http"
	subscriptionservice "github.com/AlibekovAA/webpush-relay/internal/subscription/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.NewPushApp(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to start push service: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer app.Close()

	log := app.Log
	cfg := app.Config

	hub := presence.NewHub(log)
	go hub.Run(ctx)

	var alerts push.AlertForwarder
	pushover := alert.NewPushoverForwarder(cfg.Pushover, log)
	if pushover != nil {
		alerts = pushover
		log.Info("pushover alert forwarding enabled")
	}

	transport := push.NewWebPushTransport(app.Identity, push.WebPushTransportConfig{
		TTL:     cfg.PushTTL,
		Timeout: cfg.DeliveryTimeout,
	})
	dispatcher := push.NewDispatcher(push.DispatcherDeps{
		Transport: transport,
		Alerts:    alerts,
		Log:       log,
	}, push.DispatcherConfig{
		SuppressWhenAttached: cfg.SuppressWhenAttached,
	})

	subscriptions := subscriptionservice.NewSubscriptionService(app.Store, hub, clock.NewRealClock(), log)

	apiHandler := subscriptionhttp.NewHandler(subscriptions, dispatcher, subscriptionhttp.Config{
		JWTSecret:      cfg.JWTSecret,
		NotifyToken:    cfg.NotifyToken,
		VAPIDPublicKey: app.Identity.Keys.PublicKey,
		RequestTimeout: cfg.RequestTimeout,
	}, log)

	wsHandler := presence.NewHandler(hub, cfg.JWTSecret, presence.ClientConfig{
		WriteWait: cfg.WebSocketWriteWait,
		PongWait:  cfg.WebSocketPongWait,
	}, log)

	restMux := http.NewServeMux()
	restMux.HandleFunc("/health", commonhttp.HealthHandler(log))
	restMux.Handle("/metrics", promhttp.Handler())
	restMux.Handle("/api/push/", apiHandler)
	restMux.Handle("/internal/push/", apiHandler)

	mainMux := http.NewServeMux()
	mainMux.Handle("/ws/push", wsHandler)
	mainMux.Handle("/", commonhttp.BuildBaseHandler(log, restMux))

	server := srv.NewServer(srv.DefaultServerConfig(cfg.HTTPPort), mainMux)

	err = srv.Run(ctx, server, log, "push",
		srv.ShutdownHook{Name: "presence", Fn: func(context.Context) error {
			hub.Close()
			return nil
		}},
		srv.ShutdownHook{Name: "deliveries", Fn: dispatcher.Drain},
		srv.ShutdownHook{Name: "alerts", Fn: func(ctx context.Context) error {
			if pushover == nil {
				return nil
			}
			return pushover.Drain(ctx)
		}},
	)
	if err != nil {
		log.Errorf("%v", err)
		app.Close()
		os.Exit(1)
	}
}
