package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/AlibekovAA/webpush-relay/internal/common/constants"
	commonerrors "github.com/AlibekovAA/webpush-relay/internal/common/errors"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
)

type PushoverConfig struct {
	APIToken string
	UserKey  string
	URL      string
	Timeout  time.Duration
}

// Enabled reports whether both Pushover credentials are present.
func (c PushoverConfig) Enabled() bool {
	return c.APIToken != "" && c.UserKey != ""
}

type PushConfig struct {
	HTTPPort             string
	JWTSecret            string
	StoreDriver          string
	DatabaseURL          string
	SQLitePath           string
	HomeDir              string
	VAPIDSubject         string
	PushTTL              int
	DeliveryTimeout      time.Duration
	SuppressWhenAttached bool
	NotifyToken          string
	Pushover             PushoverConfig
	RequestTimeout       time.Duration
	WebSocketPongWait    time.Duration
	WebSocketWriteWait   time.Duration
}

func (c PushConfig) VAPIDKeyPath() string {
	return filepath.Join(c.HomeDir, constants.VAPIDKeyFileName)
}

func LoadPushConfig() (PushConfig, error) {
	jwtSecret, err := mustEnv("JWT_SECRET")
	if err != nil {
		return PushConfig{}, err
	}

	if err := validateJWTSecret(jwtSecret); err != nil {
		return PushConfig{}, err
	}

	homeDir := getEnv("PUSH_HOME", ".")

	driver := strings.ToLower(getEnv("PUSH_STORE_DRIVER", StoreDriverPostgres))
	var databaseURL string
	switch driver {
	case StoreDriverPostgres:
		databaseURL, err = mustEnv("DATABASE_URL")
		if err != nil {
			return PushConfig{}, err
		}
	case StoreDriverSQLite:
	default:
		return PushConfig{}, commonerrors.ErrInvalidStoreDriver.WithCause(fmt.Errorf("got %q", driver))
	}

	return PushConfig{
		HTTPPort:             getEnv("PUSH_HTTP_PORT", constants.DefaultPushHTTPPort),
		JWTSecret:            jwtSecret,
		StoreDriver:          driver,
		DatabaseURL:          databaseURL,
		SQLitePath:           getEnv("PUSH_SQLITE_PATH", filepath.Join(homeDir, constants.DefaultSQLiteFileName)),
		HomeDir:              homeDir,
		VAPIDSubject:         getEnv("PUSH_VAPID_SUBJECT", constants.DefaultVAPIDSubject),
		PushTTL:              getIntEnv("PUSH_TTL", constants.DefaultPushTTL),
		DeliveryTimeout:      getDurationEnv("PUSH_DELIVERY_TIMEOUT", constants.DefaultDeliveryTimeout),
		SuppressWhenAttached: getBoolEnv("PUSH_SUPPRESS_WHEN_ATTACHED", true),
		NotifyToken:          getEnv("PUSH_NOTIFY_TOKEN", ""),
		Pushover: PushoverConfig{
			APIToken: getEnv("PUSHOVER_API_TOKEN", ""),
			UserKey:  getEnv("PUSHOVER_USER_KEY", ""),
			URL:      getEnv("PUSHOVER_URL", constants.DefaultPushoverURL),
			Timeout:  getDurationEnv("PUSHOVER_TIMEOUT", constants.DefaultPushoverTimeout),
		},
		RequestTimeout:     getDurationEnv("PUSH_REQUEST_TIMEOUT", constants.DefaultPushRequestTimeout),
		WebSocketPongWait:  getDurationEnv("PUSH_WS_PONG_WAIT", constants.DefaultWebSocketPongWait),
		WebSocketWriteWait: getDurationEnv("PUSH_WS_WRITE_WAIT", constants.DefaultWebSocketWriteWait),
	}, nil
}

func validateJWTSecret(secret string) error {
	if len(secret) < constants.JWTSecretMinLength {
		return commonerrors.ErrInvalidJWTSecret.WithCause(fmt.Errorf("got %d bytes", len(secret)))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func mustEnv(key string) (string, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", commonerrors.ErrMissingRequiredEnv.WithCause(fmt.Errorf("%s", key))
	}
	return v, nil
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getIntEnv(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getBoolEnv(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
