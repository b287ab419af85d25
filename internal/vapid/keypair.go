// Package vapid owns the long-lived VAPID key pair that identifies this
// server to push services.
package vapid

// KeyPair holds base64url encoded VAPID keys. Both fields are set or both
// are empty.
type KeyPair struct {
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
}

// Identity is the signing identity handed to the push transport.
type Identity struct {
	Subject string
	Keys    KeyPair
}
