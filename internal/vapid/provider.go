package vapid

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	webpush "github.com/SherClockHolmes/webpush-go"

	commonerrors "github.com/AlibekovAA/webpush-relay/internal/common/errors"
	"github.com/AlibekovAA/webpush-relay/internal/common/logger"
)

// GenerateFunc returns a fresh (private, public) key pair.
type GenerateFunc func() (privateKey, publicKey string, err error)

type Provider struct {
	path     string
	generate GenerateFunc
	log      *logger.Logger
}

func NewProvider(path string, log *logger.Logger) *Provider {
	return &Provider{
		path:     path,
		generate: webpush.GenerateVAPIDKeys,
		log:      log,
	}
}

func (p *Provider) WithGenerator(generate GenerateFunc) *Provider {
	p.generate = generate
	return p
}

// EnsureKeyPair loads the persisted pair or, when the file is missing or does
// not hold two string keys, generates and persists a new one.
func (p *Provider) EnsureKeyPair() (KeyPair, error) {
	if keys, ok := p.load(); ok {
		return keys, nil
	}

	privateKey, publicKey, err := p.generate()
	if err != nil {
		return KeyPair{}, commonerrors.ErrKeyPairGenerateFailed.WithCause(err)
	}
	keys := KeyPair{PublicKey: publicKey, PrivateKey: privateKey}

	if err := p.persist(keys); err != nil {
		return KeyPair{}, commonerrors.ErrKeyPairPersistFailed.WithCause(err)
	}

	p.log.Info("New VAPID key pair has been generated for use with push subscription.")
	return keys, nil
}

// EnsureIdentity is EnsureKeyPair plus the contact subject.
func (p *Provider) EnsureIdentity(subject string) (Identity, error) {
	keys, err := p.EnsureKeyPair()
	if err != nil {
		return Identity{}, err
	}
	return Identity{Subject: subject, Keys: keys}, nil
}

func (p *Provider) load() (KeyPair, bool) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			p.log.Debugf("vapid key file unreadable, regenerating: %v", err)
		}
		return KeyPair{}, false
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return KeyPair{}, false
	}

	publicKey, ok := decodeString(raw["publicKey"])
	if !ok {
		return KeyPair{}, false
	}
	privateKey, ok := decodeString(raw["privateKey"])
	if !ok {
		return KeyPair{}, false
	}

	return KeyPair{PublicKey: publicKey, PrivateKey: privateKey}, true
}

func (p *Provider) persist(keys KeyPair) error {
	data, err := json.MarshalIndent(keys, "", "\t")
	if err != nil {
		return fmt.Errorf("failed to marshal key pair: %w", err)
	}

	if dir := filepath.Dir(p.path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create key directory: %w", err)
		}
	}

	return os.WriteFile(p.path, data, 0o600)
}

func decodeString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}
