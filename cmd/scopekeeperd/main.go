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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scopekeeper/scopekeeper/internal/clientdir"
	"github.com/scopekeeper/scopekeeper/internal/config"
	"github.com/scopekeeper/scopekeeper/internal/observability/logger"
	"github.com/scopekeeper/scopekeeper/internal/observability/metrics"
	"github.com/scopekeeper/scopekeeper/internal/observability/tracing"
	"github.com/scopekeeper/scopekeeper/internal/resolver"
	"github.com/scopekeeper/scopekeeper/internal/role"
	"github.com/scopekeeper/scopekeeper/internal/roletable"
	"github.com/scopekeeper/scopekeeper/internal/signature"
	transportHTTP "github.com/scopekeeper/scopekeeper/internal/transport/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})
	slog.Info("starting scopekeeperd")

	ctx := context.Background()

	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
	}
	defer tracer.Shutdown(ctx)

	meter, err := metrics.New(ctx, metrics.Config{Enabled: cfg.Observability.OTELEnabled}, cfg.Observability.ServiceName)
	if err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
	}
	rebuildCounter, err := meter.CreateCounter("scopekeeper.roletable.rebuilds", "role table rebuilds, by outcome")
	if err != nil {
		slog.Error("failed to create rebuild counter", logger.Error(err))
	}

	dir := clientdir.New()
	registry := resolver.NewRegistry(resolver.Build(nil))

	reload := func() {
		f, err := roletable.Load(cfg.RoleTable.Path)
		if err != nil {
			slog.ErrorContext(ctx, "role table reload failed", logger.Error(err))
			if rebuildCounter != nil {
				rebuildCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "load_error")))
			}
			return
		}

		table, rejected := role.NewTable(f.Roles())
		for _, r := range rejected {
			slog.WarnContext(ctx, "dropping malformed role", logger.RoleID(string(r.Role.ID)), logger.Error(r.Err))
		}

		// Fold every client's own scopes in as a synthetic
		// client-id:<clientId> role before closing the table, so that
		// admin-defined roles targeting client-id:* (or a specific
		// client) can activate, and so assume:client-id:<clientId>
		// resolves through the DFA like any other role (§3).
		clients := f.Clients()
		for _, c := range clients {
			table = table.WithClient(c.ID, c.Scopes)
		}

		closed := table.Close()
		registry.Swap(resolver.Build(closed))
		dir.Replace(clients)

		slog.InfoContext(ctx, "role table reloaded",
			logger.Operation("reload"), logger.ScopeCount(len(closed)))
		if rebuildCounter != nil {
			rebuildCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "success")))
		}
	}
	reload()

	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)
	go func() {
		ticker := time.NewTicker(cfg.RoleTable.ReloadPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				reload()
			case <-hupCh:
				slog.Info("SIGHUP received, reloading role table")
				reload()
			}
		}
	}()

	auth := signature.NewMACAuthenticator(dir, registry)
	handler := transportHTTP.NewHandler(auth, registry)
	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	router := transportHTTP.NewRouter(handler, rateLimiter)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("listening", logger.Component("server"), logger.Operation("listen"), logger.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", logger.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", logger.Error(err))
	}
	slog.Info("server stopped")
}
