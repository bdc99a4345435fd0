package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"portal-api/internal/auth"
	"portal-api/internal/cache"
	"portal-api/internal/config"
	"portal-api/internal/events"
	"portal-api/internal/geomap"
	"portal-api/internal/handler"
	"portal-api/internal/service"
	"portal-api/internal/store"
	"portal-api/internal/threatintel"
	tlsmanager "portal-api/internal/tls"
	"portal-api/internal/util"
)

func main() {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)
	defer util.Sync()

	st, err := openStore(cfg)
	if err != nil {
		util.Fatal("Failed to open store", util.ErrorField(err))
	}
	defer st.Close()

	authService := auth.NewService(st, cache.NewRevocationCache(cfg), cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	publisher := events.NewPublisher(cfg.Events)
	defer publisher.Close()

	bookings := service.NewBookingService(st, events.NewCRMDelivery(cfg.CRM), events.NewNotifier(cfg.Notify), publisher)
	portal := service.NewPortalService(st)
	intel := threatintel.NewService(cfg.ThreatIntel, st)
	refresher := geomap.NewRefresher(intel)

	router := handler.NewRouter(handler.Handlers{
		Auth:    handler.NewAuthHandler(authService),
		Booking: handler.NewBookingHandler(bookings, st, authService),
		Threat:  handler.NewThreatHandler(intel, portal),
		Admin:   handler.NewAdminHandler(portal, bookings, authService, refresher, cfg.CRM.WebhookToken),
	}, cfg, util.Get())

	// Background cache warmer for the threat map.
	refreshCtx, stopRefresh := context.WithCancel(context.Background())
	defer stopRefresh()
	go refresher.Run(refreshCtx)

	addr := cfg.GetServerAddress()
	if cfg.Server.EnableTLS {
		addr = fmt.Sprintf(":%d", cfg.Server.TLSPort)
	}

	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	if cfg.Server.EnableTLS {
		server.TLSConfig = tlsmanager.NewManager(cfg.Server).GetTLSConfig()
	}

	go func() {
		var err error
		if cfg.Server.EnableTLS {
			util.Info("Starting HTTPS server",
				util.String("environment", cfg.Environment),
				util.Int("port", cfg.Server.TLSPort))
			err = server.ListenAndServeTLS("", "")
		} else {
			util.Info("Starting HTTP server",
				util.String("environment", cfg.Environment),
				util.String("address", addr))
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			util.Fatal("Server failed to start", util.ErrorField(err))
		}
	}()

	waitForShutdown(server, stopRefresh)
}

func openStore(cfg *config.Config) (*store.Store, error) {
	if dir := filepath.Dir(cfg.Database.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := st.InitSchema(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	if err := st.Seed(ctx, cfg); err != nil {
		st.Close()
		return nil, fmt.Errorf("seed database: %w", err)
	}
	return st, nil
}

func waitForShutdown(server *http.Server, stopRefresh context.CancelFunc) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	sig := <-signalChan
	util.Info("Received shutdown signal", util.String("signal", sig.String()))

	stopRefresh()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		util.Error("Failed to shutdown server gracefully", util.ErrorField(err))
	} else {
		util.Info("Server shutdown completed")
	}
}
