package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"userpay-client/internal/config"
	"userpay-client/internal/logger"
	"userpay-client/internal/sandbox"
)

func main() {
	// Парсинг флагов командной строки
	configPath := flag.String("c", "", "Path to config file")
	flag.Parse()

	// Загрузка конфигурации
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Валидация конфигурации
	if err := cfg.ValidateSandbox(); err != nil {
		fmt.Printf("Invalid config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logger.Level)
	log.Info("Starting UserPay sandbox API...")
	if cfg.Sandbox.JWTSecret == config.DefaultSandboxJWTSecret {
		log.Warn("Using default sandbox JWT secret")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	sb := sandbox.New(sandbox.Options{
		GinMode:       cfg.Sandbox.GinMode,
		JWTSecret:     cfg.Sandbox.JWTSecret,
		JWTExpiration: cfg.Sandbox.JWTExpiration,
		OTPTTL:        cfg.Sandbox.OTPTTL,
		LegacyRoutes:  cfg.Sandbox.LegacyRoutes,
	}, registry, log)

	srv := &http.Server{
		Addr:         ":" + cfg.Sandbox.HTTPPort,
		Handler:      sb.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Infof("HTTP server is listening on port %s (legacy routes: %v)", cfg.Sandbox.HTTPPort, cfg.Sandbox.LegacyRoutes)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	<-done
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}

	log.Info("Server stopped gracefully")
}
