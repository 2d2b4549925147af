// Discolog - Personal Music Library and Listening History Backend
// Copyright 2026 Nils K. (nilskh)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nilskh/discolog

package auth

import (
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	bcryptCost        = 12
	minPasswordLength = 8
)

// Verifier checks login attempts against the configured admin account.
// The password is hashed at construction time so the plaintext never
// lives beyond startup.
type Verifier struct {
	username     string
	passwordHash []byte
}

// NewVerifier hashes the admin password and returns a verifier for it.
func NewVerifier(username, password string) (*Verifier, error) {
	if username == "" {
		return nil, fmt.Errorf("admin username is required")
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("admin password must be at least %d characters", minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash admin password: %w", err)
	}

	return &Verifier{
		username:     username,
		passwordHash: hash,
	}, nil
}

// Verify reports whether the supplied credentials match the admin
// account. Both comparisons always run so response timing does not
// reveal which of the two was wrong.
func (v *Verifier) Verify(username, password string) bool {
	usernameMatch := subtle.ConstantTimeCompare([]byte(username), []byte(v.username)) == 1
	passwordErr := bcrypt.CompareHashAndPassword(v.passwordHash, []byte(password))
	return usernameMatch && passwordErr == nil
}
