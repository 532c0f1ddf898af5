package tambal

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/odit-bit/tambal/tambal/agent"
	"github.com/odit-bit/tambal/tambal/store"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Service is what the http api needs from the resolver. *Tambal implements it.
type Service interface {
	Resolve(ctx context.Context, userID int64, system, query string, opts ...ResolveOption) (*Resolution, error)
	ApplyFeedback(ctx context.Context, userID int64, rating store.Rating) (bool, error)
	Stats(ctx context.Context) (Stats, error)
}

// Request
type FixRequest struct {
	Code   string `json:"code"`
	UserID int64  `json:"user_id"`
}

// Response
type FixResponse struct {
	// extracted code, or the whole answer when it carries no code block
	FixedCode  string  `json:"fixed_code"`
	CodeOnly   bool    `json:"code_only"`
	Filename   string  `json:"filename"`
	Model      string  `json:"model"`
	Source     Source  `json:"source"`
	Confidence float64 `json:"confidence"`
	RequestID  string  `json:"request_id"`
}

type RateRequest struct {
	UserID int64  `json:"user_id"`
	Rating string `json:"rating"`
}

type RateResponse struct {
	Status string `json:"status"`
	// false when the user had no answer waiting for a rating
	Applied bool `json:"applied"`
}

func RestHandler(s Service, e *echo.Echo, metrics http.Handler) {
	if e == nil || s == nil {
		panic("got nil parameter")
	}

	meter := otel.Meter("tambal.rest")
	requestCounter, err := meter.Int64Counter(
		"tambal.http.request_total",
		metric.WithDescription("total number of HTTP request"),
	)
	if err != nil {
		panic(err)
	}

	// otel middleware
	e.Use(otelecho.Middleware("tambal-server"))

	//custom middleware to counter request
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			requestCounter.Add(c.Request().Context(), 1)
			return err
		}
	})

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})

	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics))
	}

	e.POST("/api/fix", func(c echo.Context) error {
		if ok := IsJsonContentType(c.Request()); !ok {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "expecting json body"})
		}

		var input FixRequest
		if err := c.Bind(&input); err != nil {
			slog.Error("failed binding", "error", err)
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "bad json format"})
		}

		res, err := s.Resolve(c.Request().Context(), input.UserID, CodeOnlyPrompt, input.Code)
		switch {
		case errors.Is(err, ErrInvalidQuery):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": MsgInvalidQuery})
		case err != nil:
			status := http.StatusServiceUnavailable
			if errors.Is(err, agent.ErrAuthentication) {
				status = http.StatusBadGateway
			}
			body := echo.Map{"error": MsgUnavailable, "source": SourceError}
			if res != nil {
				body["error"] = res.Answer
				body["request_id"] = res.RequestID
			}
			return c.JSON(status, body)
		}

		return c.JSON(http.StatusOK, newFixResponse(res))
	})

	e.POST("/api/rate", func(c echo.Context) error {
		var input RateRequest
		if err := c.Bind(&input); err != nil {
			return c.JSON(http.StatusBadRequest, RateResponse{Status: "error"})
		}
		rating, err := ParseRating(input.Rating)
		if err != nil {
			return c.JSON(http.StatusBadRequest, RateResponse{Status: "error"})
		}

		applied, err := s.ApplyFeedback(c.Request().Context(), input.UserID, rating)
		if err != nil {
			slog.Error("failed feedback", "user", input.UserID, "error", err)
			return c.JSON(http.StatusInternalServerError, RateResponse{Status: "error"})
		}
		return c.JSON(http.StatusOK, RateResponse{Status: "ok", Applied: applied})
	})

	e.GET("/api/stats", func(c echo.Context) error {
		st, err := s.Stats(c.Request().Context())
		if err != nil {
			slog.Error("failed stats", "error", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "server unavailable"})
		}
		return c.JSON(http.StatusOK, st)
	})
}

func newFixResponse(res *Resolution) FixResponse {
	out := FixResponse{
		FixedCode:  strings.TrimSpace(res.Answer),
		Filename:   res.Filename,
		Model:      res.Model,
		Source:     res.Source,
		Confidence: res.Confidence,
		RequestID:  res.RequestID,
	}
	if res.Code != "" {
		out.FixedCode = strings.TrimSpace(res.Code)
		out.CodeOnly = true
	}
	return out
}

func IsJsonContentType(req *http.Request) bool {
	ct := req.Header.Get("Content-Type")
	return strings.HasPrefix(ct, echo.MIMEApplicationJSON)
}
