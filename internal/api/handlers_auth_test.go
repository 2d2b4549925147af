// Discolog - Personal Music Library and Listening History Backend
// Copyright 2026 Nils K. (nilskh)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nilskh/discolog

package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/nilskh/discolog/internal/auth"
	"github.com/nilskh/discolog/internal/config"
	"github.com/nilskh/discolog/internal/models"
)

const (
	testAdminUser     = "admin"
	testAdminPassword = "correct-horse-battery"
	testJWTSecret     = "test_secret_with_at_least_32_characters_here"
)

// setupAuthHandler builds a handler with JWT auth enabled and known
// admin credentials.
func setupAuthHandler(t *testing.T) (*Handler, *config.Config) {
	t.Helper()

	cfg := testConfig()
	cfg.Security.AuthMode = "jwt"
	cfg.Security.JWTSecret = testJWTSecret
	cfg.Security.SessionTimeout = time.Hour
	cfg.Security.AdminUsername = testAdminUser
	cfg.Security.AdminPassword = testAdminPassword

	jwtMgr, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		t.Fatalf("NewJWTManager() error = %v", err)
	}
	verifier, err := auth.NewVerifier(testAdminUser, testAdminPassword)
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}

	return NewHandler(nil, nil, nil, cfg, jwtMgr, verifier, nil), cfg
}

func loginRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestLoginIssuesTokenAndCookie(t *testing.T) {
	handler, cfg := setupAuthHandler(t)

	rec := serveHandler(handler, cfg, loginRequest(`{"username": "admin", "password": "correct-horse-battery"}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	resp := decodeEnvelope(t, rec)
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		t.Fatalf("re-marshal data: %v", err)
	}
	var login models.LoginResponse
	if err := json.Unmarshal(raw, &login); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if login.Token == "" {
		t.Error("expected a token in the response")
	}
	if login.Username != testAdminUser {
		t.Errorf("username = %q, want %q", login.Username, testAdminUser)
	}
	if login.Role != "admin" {
		t.Errorf("role = %q, want %q", login.Role, "admin")
	}
	if !login.ExpiresAt.After(time.Now()) {
		t.Errorf("expires_at = %v, want future time", login.ExpiresAt)
	}

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "token" {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("expected a token cookie")
	}
	if cookie.Value != login.Token {
		t.Error("cookie token differs from response token")
	}
	if !cookie.HttpOnly {
		t.Error("token cookie must be HttpOnly")
	}
	if cookie.SameSite != http.SameSiteStrictMode {
		t.Errorf("cookie SameSite = %v, want Strict", cookie.SameSite)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	handler, cfg := setupAuthHandler(t)

	tests := []struct {
		name string
		body string
	}{
		{"wrong password", `{"username": "admin", "password": "wrong"}`},
		{"wrong username", `{"username": "root", "password": "correct-horse-battery"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serveHandler(handler, cfg, loginRequest(tt.body))
			assertErrorCode(t, rec, http.StatusUnauthorized, "AUTHENTICATION_ERROR")
		})
	}
}

func TestLoginRejectsMissingFields(t *testing.T) {
	handler, cfg := setupAuthHandler(t)

	tests := []struct {
		name string
		body string
	}{
		{"empty body object", `{}`},
		{"missing password", `{"username": "admin"}`},
		{"malformed json", `{"username": `},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serveHandler(handler, cfg, loginRequest(tt.body))
			assertErrorCode(t, rec, http.StatusBadRequest, "VALIDATION_ERROR")
		})
	}
}

func TestLoginDisabledWithoutJWTMode(t *testing.T) {
	handler := setupTestHandler(t) // auth_mode "none"

	rec := serveHandler(handler, handler.cfg, loginRequest(`{"username": "admin", "password": "whatever"}`))
	assertErrorCode(t, rec, http.StatusForbidden, "AUTH_DISABLED")
}

func TestLogoutClearsCookie(t *testing.T) {
	handler, cfg := setupAuthHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	rec := serveHandler(handler, cfg, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "token" {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("expected a cleared token cookie")
	}
	if cookie.Value != "" {
		t.Errorf("cookie value = %q, want empty", cookie.Value)
	}
	if cookie.MaxAge >= 0 {
		t.Errorf("cookie MaxAge = %d, want negative", cookie.MaxAge)
	}
}
