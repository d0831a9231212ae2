// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package appservice

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Registration is the appservice registration document shared between
// the bridge and the homeserver. The homeserver reads it to learn the
// bridge's URL, tokens, and reserved namespaces.
type Registration struct {
	// ID uniquely identifies this appservice to the homeserver.
	ID string `yaml:"id"`

	// URL is where the homeserver pushes transactions.
	URL string `yaml:"url"`

	// ASToken authenticates the bridge's requests to the homeserver.
	ASToken string `yaml:"as_token"`

	// HSToken authenticates the homeserver's requests to the bridge.
	HSToken string `yaml:"hs_token"`

	// SenderLocalpart is the localpart of the bridge bot.
	SenderLocalpart string `yaml:"sender_localpart"`

	RateLimited bool       `yaml:"rate_limited"`
	Namespaces  Namespaces `yaml:"namespaces"`
}

// Namespaces declares the identifier ranges the appservice claims.
type Namespaces struct {
	Users []Namespace `yaml:"users,omitempty"`
}

// Namespace is a single claimed pattern. Exclusive namespaces cannot
// be registered by other users or appservices.
type Namespace struct {
	Exclusive bool   `yaml:"exclusive"`
	Regex     string `yaml:"regex"`
}

// GenerateRegistration creates a registration with fresh random
// tokens, claiming the bridge's virtual user namespace exclusively.
func GenerateRegistration(id, url, senderLocalpart string) (*Registration, error) {
	asToken, err := newToken()
	if err != nil {
		return nil, err
	}
	hsToken, err := newToken()
	if err != nil {
		return nil, err
	}

	return &Registration{
		ID:              id,
		URL:             url,
		ASToken:         asToken,
		HSToken:         hsToken,
		SenderLocalpart: senderLocalpart,
		RateLimited:     false,
		Namespaces: Namespaces{
			Users: []Namespace{
				{Exclusive: true, Regex: fmt.Sprintf("@%s_.*", senderLocalpart)},
				{Exclusive: true, Regex: fmt.Sprintf("@%s:.*", senderLocalpart)},
			},
		},
	}, nil
}

// LoadRegistration reads a registration YAML file.
func LoadRegistration(path string) (*Registration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("appservice: reading registration %s: %w", path, err)
	}
	var registration Registration
	if err := yaml.Unmarshal(data, &registration); err != nil {
		return nil, fmt.Errorf("appservice: parsing registration %s: %w", path, err)
	}
	if registration.ASToken == "" || registration.HSToken == "" {
		return nil, fmt.Errorf("appservice: registration %s is missing tokens", path)
	}
	return &registration, nil
}

// WriteFile writes the registration as YAML, readable only by the
// owner — it contains both credentials.
func (r *Registration) WriteFile(path string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("appservice: encoding registration: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("appservice: writing registration %s: %w", path, err)
	}
	return nil
}

// newToken returns 32 bytes of hex-encoded randomness.
func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("appservice: generating token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
