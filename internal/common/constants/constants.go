package constants

import "time"

const (
	JWTSecretMinLength = 32

	VAPIDKeyFileName         = "vapid.json"
	DefaultVAPIDSubject      = "https://github.com/AlibekovAA/webpush-relay"
	DefaultPushTTL           = 24 * 60 * 60
	DefaultDeliveryTimeout   = 30 * time.Second
	SessionLookupTimeout     = 10 * time.Second
	DefaultPushoverURL       = "https://api.pushover.net/1/messages.json"
	DefaultPushoverTimeout   = 10 * time.Second
	DefaultSQLiteFileName    = "push.db"
	DefaultSQLiteBusyTimeout = 5 * time.Second

	PushoverCircuitBreakerThreshold = 5
	PushoverCircuitBreakerReset     = 1 * time.Minute

	MaxEndpointLength     = 2048
	DefaultMaxRequestSize = 64 * 1024

	DBPoolMaxOpenConns    = 10
	DBPoolMinOpenConns    = 2
	DBPoolConnMaxLifetime = 5 * time.Minute
	DBPoolConnMaxIdleTime = 10 * time.Minute
	DBPoolHealthCheck     = 1 * time.Minute
	DBPoolConnectTimeout  = 15 * time.Second
	DBPoolMaxAttempts     = 10
	DBPoolRetryDelay      = 1 * time.Second
	DBPoolMetricsInterval = 30 * time.Second

	ServerReadHeaderTimeout = 10 * time.Second
	ServerReadTimeout       = 30 * time.Second
	ServerWriteTimeout      = 30 * time.Second
	ServerIdleTimeout       = 120 * time.Second

	ShutdownTimeout = 30 * time.Second
	DrainTimeout    = 10 * time.Second

	DefaultPushHTTPPort       = "8083"
	DefaultPushRequestTimeout = 5 * time.Second

	DefaultWebSocketWriteWait   = 10 * time.Second
	DefaultWebSocketPongWait    = 60 * time.Second
	DefaultWebSocketMaxMsgSize  = 4 * 1024
	DefaultWebSocketSendBufSize = 16

	WebSocketReadBufferSize  = 1024
	WebSocketWriteBufferSize = 1024

	LoggerMaxSize    = 100
	LoggerMaxBackups = 3
	LoggerMaxAge     = 28
)

type TraceIDKeyType string

const TraceIDKey TraceIDKeyType = "trace_id"
