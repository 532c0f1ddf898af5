package tambal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/odit-bit/tambal/tambal/agent"
	"github.com/odit-bit/tambal/tambal/agent/driver"
	"github.com/odit-bit/tambal/tambal/config"
	"github.com/odit-bit/tambal/tambal/fingerprint"
	"github.com/odit-bit/tambal/tambal/store"
)

const shutdownTimeout = 10 * time.Second

// Open assembles a Tambal from configuration. The returned func closes the
// store and must be called once the instance is no longer used.
func Open(ctx context.Context, cfg *config.Config) (*Tambal, func() error, error) {
	//logging
	if cfg.Server.Debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
		slog.Debug("configuration", "provider", cfg.Provider.Name, "models", cfg.Provider.Models, "store", cfg.Store.Path)
	}

	// category rules
	classifier := fingerprint.Default
	if cfg.Rules != "" {
		f, err := os.Open(cfg.Rules)
		if err != nil {
			return nil, nil, fmt.Errorf("rules: %w", err)
		}
		classifier, err = fingerprint.LoadRules(f)
		f.Close()
		if err != nil {
			return nil, nil, err
		}
		slog.Info("loaded category rules", "file", cfg.Rules, "categories", len(classifier.Categories()))
	}

	// llm provider
	provider, err := driver.New(ctx, cfg.Provider.Name, cfg.Provider.ApiKey, cfg.Provider.DriverConfig())
	if err != nil {
		slog.Error("tambal init provider", "error", err)
		return nil, nil, err
	}
	dispatcher, err := agent.New(
		provider,
		cfg.Provider.Models,
		agent.WithAttemptTimeout(cfg.Provider.Timeout),
		agent.WithRateLimitDelay(cfg.Provider.RateLimitDelay),
		agent.WithRequestsPerSecond(cfg.Provider.RequestsPerSecond),
	)
	if err != nil {
		return nil, nil, err
	}

	st, err := store.Open(ctx, cfg.Store.Path)
	if err != nil {
		return nil, nil, err
	}

	t, err := New(
		st,
		dispatcher,
		WithClassifier(classifier),
		WithSessionLimits(cfg.Session.MaxSessions, cfg.Session.MaxExchanges, cfg.Session.MaxMessageRunes),
	)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return t, st.Close, nil
}

type Server struct {
	e    *echo.Echo
	addr string
}

// NewHttp registers the api of s on a new echo instance. metrics may be nil.
func NewHttp(s Service, addr string, metrics http.Handler) *Server {
	e := echo.New()
	e.HideBanner = true
	RestHandler(s, e, metrics)
	return &Server{e: e, addr: addr}
}

func (s *Server) Handler() http.Handler {
	return s.e
}

// Run serves until ctx is done, then shuts the server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errC := make(chan error, 1)
	go func() {
		errC <- s.e.Start(s.addr)
	}()

	select {
	case err := <-errC:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutdown http server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.e.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errC; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
