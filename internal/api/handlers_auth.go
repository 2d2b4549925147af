// Discolog - Personal Music Library and Listening History Backend
// Copyright 2026 Nils K. (nilskh)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nilskh/discolog

package api

import (
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/nilskh/discolog/internal/logging"
	"github.com/nilskh/discolog/internal/models"
	"github.com/nilskh/discolog/internal/validation"
)

// Login verifies the admin credentials and issues a session token. The
// token is returned in the body and doubled as an HTTP-only cookie so
// browser clients get it without touching local storage.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	if h.cfg == nil || h.cfg.Security.AuthMode != "jwt" {
		respondError(w, http.StatusForbidden, "AUTH_DISABLED", "Authentication is not enabled", nil)
		return
	}
	if h.jwt == nil || h.verifier == nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Authentication is not configured", nil)
		return
	}

	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", err)
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondValidationError(w, verr)
		return
	}

	if !h.verifier.Verify(req.Username, req.Password) {
		logging.Warn().Str("username", sanitizeLogValue(req.Username)).Msg("Login failed")
		respondError(w, http.StatusUnauthorized, "AUTHENTICATION_ERROR", "Invalid username or password", nil)
		return
	}

	token, err := h.jwt.GenerateToken(req.Username, "admin")
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to issue token", err)
		return
	}

	expiresAt := time.Now().Add(h.jwt.SessionTimeout())
	h.setAuthCookie(w, r, token, expiresAt)

	logging.Info().Str("username", sanitizeLogValue(req.Username)).Msg("Login succeeded")
	respondSuccess(w, http.StatusOK, models.LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Username:  req.Username,
		Role:      "admin",
	}, time.Time{})
}

// Logout clears the session cookie. Tokens held by non-browser clients
// stay valid until they expire; this only ends the browser session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
	respondSuccess(w, http.StatusOK, map[string]interface{}{"status": "logged_out"}, time.Time{})
}

func (h *Handler) setAuthCookie(w http.ResponseWriter, r *http.Request, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}
