package http

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/google/uuid"

	commonerrors "github.com/AlibekovAA/webpush-relay/internal/common/errors"
	commonhttp "github.com/AlibekovAA/webpush-relay/internal/common/http"
	"github.com/AlibekovAA/webpush-relay/internal/common/jwtverify"
	"github.com/AlibekovAA/webpush-relay/internal/common/logger"
	"github.com/AlibekovAA/webpush-relay/internal/push"
	"github.com/AlibekovAA/webpush-relay/internal/subscription/domain"
	"github.com/AlibekovAA/webpush-relay/internal/subscription/service"
)

const notifyTokenHeader = "X-Notify-Token"

type Config struct {
	JWTSecret      string
	NotifyToken    string
	VAPIDPublicKey string
	RequestTimeout time.Duration
}

type Handler struct {
	subscriptions *service.SubscriptionService
	dispatcher    *push.Dispatcher
	cfg           Config
	log           *logger.Logger
}

type keysRequest struct {
	P256dh string `json:"p256dh" validate:"required"`
	Auth   string `json:"auth" validate:"required"`
}

type subscriptionRequest struct {
	Endpoint string      `json:"endpoint" validate:"required,url,max=2048"`
	Keys     keysRequest `json:"keys" validate:"required"`
}

type notifyRequest struct {
	UserID      string         `json:"user_id" validate:"required"`
	UserName    string         `json:"user_name" validate:"required"`
	Title       string         `json:"title" validate:"required,max=256"`
	Body        string         `json:"body" validate:"max=4096"`
	Data        map[string]any `json:"data"`
	OnlyOffline bool           `json:"only_offline"`
}

func NewHandler(subscriptions *service.SubscriptionService, dispatcher *push.Dispatcher, cfg Config, log *logger.Logger) http.Handler {
	h := &Handler{
		subscriptions: subscriptions,
		dispatcher:    dispatcher,
		cfg:           cfg,
		log:           log,
	}

	auth := jwtverify.Middleware(cfg.JWTSecret, log)
	timeout := commonhttp.WithTimeout(cfg.RequestTimeout)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/push/vapid-key", commonhttp.RequireMethod(http.MethodGet)(h.vapidKey))
	mux.Handle("/api/push/subscription", auth(http.HandlerFunc(timeout(h.subscription))))
	mux.Handle("/api/push/test", auth(http.HandlerFunc(commonhttp.RequireMethod(http.MethodPost)(timeout(h.testPush)))))
	mux.HandleFunc("/internal/push/notify", commonhttp.RequireMethod(http.MethodPost)(timeout(h.notify)))

	return mux
}

func (h *Handler) vapidKey(w http.ResponseWriter, r *http.Request) {
	commonhttp.WriteJSON(w, http.StatusOK, map[string]string{
		"public_key": h.cfg.VAPIDPublicKey,
	})
}

func (h *Handler) subscription(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.register(w, r)
	case http.MethodDelete:
		h.unregister(w, r)
	default:
		commonhttp.WriteErrorEnvelope(w, http.StatusMethodNotAllowed, commonhttp.CodeMethodNotAllowed, "method not allowed", nil, "")
	}
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims, ok := jwtverify.FromContext(ctx)
	if !ok {
		commonhttp.HandleError(w, r, commonerrors.ErrInvalidToken, h.log)
		return
	}

	var req subscriptionRequest
	if !commonhttp.DecodeAndValidate(w, r, &req) {
		h.log.WithFields(ctx, logger.Fields{
			"user_id": claims.UserID,
			"action":  "push_subscribe_invalid_request",
		}).Warn("push/subscribe failed: invalid request")
		return
	}

	owner := domain.Owner{
		UserID:       claims.UserID,
		Username:     claims.Username,
		SessionToken: claims.SessionID,
	}
	sub := domain.PushSubscription{
		Endpoint: req.Endpoint,
		Keys:     domain.Keys{P256dh: req.Keys.P256dh, Auth: req.Keys.Auth},
	}
	if err := h.subscriptions.Register(ctx, owner, sub); err != nil {
		commonhttp.HandleError(w, r, err, h.log)
		return
	}

	commonhttp.WriteJSON(w, http.StatusCreated, map[string]string{"status": "subscribed"})
}

func (h *Handler) unregister(w http.ResponseWriter, r *http.Request) {
	claims, ok := jwtverify.FromContext(r.Context())
	if !ok {
		commonhttp.HandleError(w, r, commonerrors.ErrInvalidToken, h.log)
		return
	}

	if err := h.subscriptions.Unregister(r.Context(), claims.SessionID); err != nil {
		commonhttp.HandleError(w, r, err, h.log)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) testPush(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims, ok := jwtverify.FromContext(ctx)
	if !ok {
		commonhttp.HandleError(w, r, commonerrors.ErrInvalidToken, h.log)
		return
	}
	if claims.SessionID == "" {
		commonhttp.HandleError(w, r, commonerrors.ErrMissingSessionToken, h.log)
		return
	}

	record, err := h.subscriptions.Get(ctx, claims.SessionID)
	if err != nil {
		commonhttp.HandleError(w, r, err, h.log)
		return
	}

	payload := push.Payload{
		Title: "Test notification",
		Body:  "Push notifications are working for this browser.",
		Extra: map[string]any{
			"type":      "test",
			"tag":       uuid.NewString(),
			"timestamp": time.Now().UnixMilli(),
		},
	}
	h.dispatcher.DeliverSingle(ctx, h.subscriptions.Recipient(claims.UserID, claims.Username), record.Subscription, payload)

	h.log.WithFields(ctx, logger.Fields{
		"user_id": claims.UserID,
		"action":  "push_test_dispatched",
	}).Info("push/test dispatched")
	commonhttp.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (h *Handler) notify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.cfg.NotifyToken == "" {
		commonhttp.HandleError(w, r, commonerrors.ErrNotifyDisabled, h.log)
		return
	}

	got := r.Header.Get(notifyTokenHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.cfg.NotifyToken)) != 1 {
		h.log.WithFields(ctx, logger.Fields{
			"action": "push_notify_unauthorized",
		}).Warn("push/notify failed: bad notify token")
		commonhttp.HandleError(w, r, commonerrors.ErrInvalidToken, h.log)
		return
	}

	var req notifyRequest
	if !commonhttp.DecodeAndValidate(w, r, &req) {
		return
	}

	payload := push.Payload{
		Title: req.Title,
		Body:  req.Body,
		Extra: req.Data,
	}
	h.dispatcher.Push(ctx, h.subscriptions.Recipient(req.UserID, req.UserName), payload, req.OnlyOffline)

	commonhttp.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
