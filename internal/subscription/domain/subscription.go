package domain

import "time"

type Keys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// PushSubscription is what a browser's PushManager hands out. Within one user
// it is identified by Endpoint.
type PushSubscription struct {
	Endpoint string `json:"endpoint"`
	Keys     Keys   `json:"keys"`
}

func (s PushSubscription) SameEndpoint(other PushSubscription) bool {
	return s.Endpoint == other.Endpoint
}

// Owner is the session a subscription is registered for.
type Owner struct {
	UserID       string
	Username     string
	SessionToken string
}

// Record is one stored session with its subscription.
type Record struct {
	Token        string
	UserID       string
	Username     string
	Subscription PushSubscription
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
