package presence

import (
	"net/http"

	gorillaWS "github.com/gorilla/websocket"

	"github.com/AlibekovAA/webpush-relay/internal/common/constants"
	commonhttp "github.com/AlibekovAA/webpush-relay/internal/common/http"
	"github.com/AlibekovAA/webpush-relay/internal/common/jwtverify"
	"github.com/AlibekovAA/webpush-relay/internal/common/logger"
)

type Handler struct {
	hub       *Hub
	jwtSecret []byte
	upgrader  gorillaWS.Upgrader
	cfg       ClientConfig
	log       *logger.Logger
}

func NewHandler(hub *Hub, jwtSecret string, cfg ClientConfig, log *logger.Logger) *Handler {
	return &Handler{
		hub:       hub,
		jwtSecret: []byte(jwtSecret),
		cfg:       cfg,
		upgrader: gorillaWS.Upgrader{
			ReadBufferSize:  constants.WebSocketReadBufferSize,
			WriteBufferSize: constants.WebSocketWriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				host := r.Host
				if host == "" {
					host = r.URL.Host
				}
				return origin == "http://"+host || origin == "https://"+host
			},
		},
		log: log,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tokenString, ok := jwtverify.ExtractToken(r)
	if !ok {
		commonhttp.WriteErrorEnvelope(w, http.StatusUnauthorized, commonhttp.CodeMissingAuthorization, "missing or invalid authorization", nil, "")
		return
	}

	claims, err := jwtverify.ParseToken(tokenString, h.jwtSecret)
	if err != nil {
		h.log.WithFields(ctx, logger.Fields{
			"action": "presence_auth_failed",
		}).Warnf("presence auth failed: %v", err)
		commonhttp.WriteErrorEnvelope(w, http.StatusUnauthorized, commonhttp.CodeInvalidToken, "invalid token", nil, "")
		return
	}
	if claims.SessionID == "" {
		commonhttp.WriteErrorEnvelope(w, http.StatusUnauthorized, commonhttp.CodeMissingSessionToken, "token carries no session", nil, "")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithFields(ctx, logger.Fields{
			"action": "presence_upgrade_failed",
		}).Errorf("presence upgrade failed: %v", err)
		return
	}

	client := NewClient(h.hub, conn, claims.UserID, claims.Username, claims.SessionID, h.cfg, h.log)
	if !h.hub.Register(client) {
		_ = conn.Close()
		return
	}
	client.Start()
}
