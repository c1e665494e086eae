// Command skillhubd runs the skill marketplace and chat API server.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/skillhub/skillhub/internal/aistream"
	"github.com/skillhub/skillhub/internal/auth"
	"github.com/skillhub/skillhub/internal/config"
	"github.com/skillhub/skillhub/internal/httpserver"
	"github.com/skillhub/skillhub/internal/logging"
	"github.com/skillhub/skillhub/internal/provider"
	"github.com/skillhub/skillhub/internal/provider/loopback"
	"github.com/skillhub/skillhub/internal/provider/openai"
	"github.com/skillhub/skillhub/internal/skillfile"
	"github.com/skillhub/skillhub/internal/store"
	"github.com/skillhub/skillhub/internal/store/postgres"
	"github.com/skillhub/skillhub/internal/store/sqlite"
)

const logMaxBytes = 50 << 20

func main() {
	root := flag.String("root", ".", "directory containing the config tree")
	addr := flag.String("addr", "", "listen address override")
	flag.Parse()

	cfg, err := config.Load(*root)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *addr != "" {
		cfg.HTTPAddress = *addr
	}

	logger, closeLog, err := buildLogger(cfg)
	if err != nil {
		log.Fatalf("init logging: %v", err)
	}
	defer closeLog()

	st, err := openStore(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	defer st.Close()

	systemContext, err := skillfile.LoadSystemContext(cfg.SystemSkillsDir)
	if err != nil {
		logger.Fatalf("load system skills: %v", err)
	}
	if systemContext != "" {
		logger.Printf("loaded system context from %s (%d bytes)", cfg.SystemSkillsDir, len(systemContext))
	}

	srv := httpserver.New(cfg, st, auth.NewManager(cfg.AuthSecret), aistream.NewRegistry(), buildProvider(cfg, logger), systemContext, logger)

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: SSE responses stay open for the whole generation.
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("skillhubd listening on %s (env=%s)", cfg.HTTPAddress, cfg.Environment)
		errCh <- httpSrv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Printf("received %s, shutting down", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("serve: %v", err)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Printf("shutdown: %v", err)
	}
}

func buildLogger(cfg config.ServerConfig) (*log.Logger, func(), error) {
	flags := log.LstdFlags
	if cfg.LogLevel == "debug" {
		flags |= log.Lshortfile
	}
	if cfg.LogFile == "" {
		return log.New(os.Stdout, "", flags), func() {}, nil
	}
	w, err := logging.NewRotatingWriter(cfg.LogFile, logMaxBytes)
	if err != nil {
		return nil, nil, err
	}
	logger := log.New(io.MultiWriter(os.Stdout, w), "", flags)
	return logger, func() { _ = w.Close() }, nil
}

func openStore(databaseURL string) (store.Store, error) {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		return postgres.New(databaseURL)
	}
	return sqlite.New(databaseURL)
}

func buildProvider(cfg config.ServerConfig, logger *log.Logger) provider.ChatStreamer {
	if cfg.OpenAIAPIKey != "" || cfg.OpenAIBaseURL != "" {
		return openai.New(openai.Config{APIKey: cfg.OpenAIAPIKey, BaseURL: cfg.OpenAIBaseURL})
	}
	logger.Printf("no upstream API configured, using loopback provider")
	return loopback.New()
}
