// Package idgen generates short, URL-safe identifiers for events and
// subscriptions, backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes distinguish the kinds of identifier at a glance.
const (
	EventPrefix        = "ev-"
	SubscriptionPrefix = "sub-"
)

// Alphabet is the character set of the random part.
const Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters, excluding the prefix.
const Length = 10

// Event returns a new event ID.
func Event() (string, error) {
	return WithPrefix(EventPrefix)
}

// Subscription returns a new subscription ID.
func Subscription() (string, error) {
	return WithPrefix(SubscriptionPrefix)
}

// WithPrefix returns a new ID with the given prefix.
func WithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}

// MustSubscription is like Subscription but falls back to a fixed ID if the
// random source fails. Subscription IDs are labels only; uniqueness is not
// load-bearing.
func MustSubscription() string {
	id, err := Subscription()
	if err != nil {
		return SubscriptionPrefix + "local"
	}
	return id
}
