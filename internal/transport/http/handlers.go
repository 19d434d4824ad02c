// Copyright 2026 The Scopekeeper Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/scopekeeper/scopekeeper/internal/observability/logger"
	"github.com/scopekeeper/scopekeeper/internal/resolver"
	"github.com/scopekeeper/scopekeeper/internal/role"
	"github.com/scopekeeper/scopekeeper/internal/scope"
	"github.com/scopekeeper/scopekeeper/internal/signature"
)

// Handler holds the collaborators the transport layer needs: a HAWK
// authenticator and the currently active resolver registry.
type Handler struct {
	auth      *signature.MACAuthenticator
	resolvers *resolver.Registry
}

// NewHandler wires a Handler from its collaborators.
func NewHandler(auth *signature.MACAuthenticator, resolvers *resolver.Registry) *Handler {
	return &Handler{auth: auth, resolvers: resolvers}
}

// NewRouter builds the chi mux this service exposes, wired with request
// logging, panic recovery, and per-IP rate limiting.
func NewRouter(h *Handler, rl *RateLimiter) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(RateLimitMiddleware(rl))

	r.Get("/healthz", h.HealthCheck)
	r.Post("/v1/authorize", h.Authorize)

	return r
}

// HealthCheck reports liveness; it never touches the resolver, so it
// stays fast even mid-rebuild.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// authorizeRequest is the body of POST /v1/authorize: the scopes the
// caller wants to exercise, to be checked against the scopes its HAWK
// credential (direct client or temporary certificate) resolves to.
type authorizeRequest struct {
	Scopes []string `json:"scopes"`
}

type authorizeResponse struct {
	Status   string   `json:"status"`
	ClientID string   `json:"clientId,omitempty"`
	Scopes   []string `json:"scopes,omitempty"`
	Message  string   `json:"message,omitempty"`
}

// Authorize authenticates the request (HAWK header or bewit), expands
// the resolved credential's scopes through the active resolver, and
// reports whether that expansion satisfies the scopes requested in the
// body.
func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	var result *signature.Result
	var err error
	if r.URL.Query().Get("bewit") != "" {
		result, err = h.auth.AuthenticateBewit(r)
	} else {
		result, err = h.auth.Authenticate(r)
	}
	if err != nil {
		slog.WarnContext(r.Context(), "authorize: authentication failed", logger.Error(err))
		respondJSON(w, http.StatusUnauthorized, authorizeResponse{Status: "failed", Message: err.Error()})
		return
	}

	var body authorizeRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	res := h.resolvers.Load()
	// A client also implicitly assumes its own synthetic client-id:<id>
	// role (§3), which lets admin-defined roles targeting client-id:*
	// or a specific client id grant scopes without being listed on the
	// credential itself.
	clientRole := role.ActivationPattern(role.ClientRoleID(result.ClientID))
	given := append(append([]scope.Scope{}, result.Scopes...), clientRole)
	expanded := res.ExpandScopes(given)

	requested := make([]scope.Scope, len(body.Scopes))
	for i, s := range body.Scopes {
		requested[i] = scope.Scope(s)
	}

	if !scope.Satisfies(expanded, requested) {
		slog.InfoContext(r.Context(), "authorize: denied",
			logger.ClientID(result.ClientID), logger.ScopeCount(len(requested)))
		respondJSON(w, http.StatusForbidden, authorizeResponse{Status: "failed", Message: "requested scopes exceed what this credential resolves to"})
		return
	}

	out := make([]string, len(expanded))
	for i, s := range expanded {
		out[i] = string(s)
	}
	slog.InfoContext(r.Context(), "authorize: granted",
		logger.ClientID(result.ClientID), logger.Scheme(result.Scheme), logger.ScopeCount(len(out)))
	respondJSON(w, http.StatusOK, authorizeResponse{Status: "success", ClientID: result.ClientID, Scopes: out})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
