package tambal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/odit-bit/tambal/tambal/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ParseRating accepts good/bad as well as positive/negative.
func ParseRating(s string) (store.Rating, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "good", "positive", "up", "+":
		return store.Positive, nil
	case "bad", "negative", "down", "-":
		return store.Negative, nil
	}
	return "", fmt.Errorf("tambal: unknown rating %q", s)
}

// ApplyFeedback rates the solution userID was last answered with. The pending
// slot is cleared before the store is touched, so a second rating never lands
// on a stale fingerprint. It reports false when nothing was pending.
func (t *Tambal) ApplyFeedback(ctx context.Context, userID int64, rating store.Rating) (bool, error) {
	if rating != store.Positive && rating != store.Negative {
		return false, fmt.Errorf("tambal: unknown rating %q", rating)
	}

	hash, ok := t.sessions.takePending(userID)
	if !ok {
		slog.Debug("feedback without pending answer", "user", userID)
		return false, nil
	}

	if err := t.store.AdjustConfidence(ctx, hash, rating == store.Positive); err != nil {
		return false, fmt.Errorf("tambal: adjust confidence: %w", err)
	}
	if err := t.store.AppendRating(ctx, userID, hash, rating); err != nil {
		// confidence already moved, the audit row is best effort
		slog.Error("store rating", "user", userID, "fingerprint", hash, "error", err)
	}

	t.feedbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("rating", string(rating))))
	slog.Debug("feedback applied", "user", userID, "fingerprint", hash, "rating", rating)
	return true, nil
}
