package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

var (
	ErrAuthentication = errors.New("agent: backend rejected credentials")
	ErrExhausted      = errors.New("agent: all backends unavailable")
)

// Dispatcher tries an ordered list of candidate models against one provider
// and returns the first successful answer. Every candidate gets exactly one
// attempt per call.
type Dispatcher struct {
	provider Provider
	models   []string

	timeout        time.Duration
	rateLimitDelay time.Duration
	limiter        *rate.Limiter

	attempts metric.Int64Counter
}

func New(provider Provider, models []string, opts ...OptionFunc) (*Dispatcher, error) {
	if provider == nil {
		return nil, errors.New("agent: provider is required")
	}
	if len(models) == 0 {
		return nil, errors.New("agent: at least one candidate model is required")
	}

	o := options{
		timeout:        defaultAttemptTimeout,
		rateLimitDelay: defaultRateLimitDelay,
	}
	for _, fn := range opts {
		fn(&o)
	}

	meter := otel.Meter("tambal.agent")
	attempts, err := meter.Int64Counter(
		"tambal.dispatch.attempt.total",
		metric.WithDescription("backend attempts by model and outcome"),
	)
	if err != nil {
		return nil, err
	}

	d := &Dispatcher{
		provider:       provider,
		models:         append([]string(nil), models...),
		timeout:        o.timeout,
		rateLimitDelay: o.rateLimitDelay,
		attempts:       attempts,
	}
	if o.rps > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(o.rps), 1)
	}
	return d, nil
}

// Models returns the candidates in priority order.
func (d *Dispatcher) Models() []string {
	return append([]string(nil), d.models...)
}

// Complete sends system prompt, history and query to the candidates in order.
// It returns ErrAuthentication as soon as a backend rejects the credential
// and ErrExhausted when no candidate produced an answer.
func (d *Dispatcher) Complete(ctx context.Context, system string, history []*Message, query string) (*Completion, error) {
	msgs := make([]*Message, 0, len(history)+2)
	if system != "" {
		msgs = append(msgs, NewTextMessage(RoleSystem, system))
	}
	msgs = append(msgs, history...)
	msgs = append(msgs, NewTextMessage(RoleUser, query))

	for i, model := range d.models {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("agent: rate limiter: %w", err)
			}
		}

		res := d.attempt(ctx, model, msgs)
		d.attempts.Add(ctx, 1, metric.WithAttributes(
			attribute.String("model", model),
			attribute.String("outcome", res.Outcome.String()),
		))

		switch res.Outcome {
		case Success:
			slog.Debug("dispatch success", "model", model, "attempt", i+1)
			return &Completion{
				Text:  ParseThink(res.Text),
				Model: ShortModelName(model),
			}, nil
		case AuthError:
			slog.Error("dispatch aborted, backend rejected credentials", "model", model, "error", res.Err, "alert", true)
			return nil, fmt.Errorf("%w (model %s)", ErrAuthentication, model)
		}

		slog.Debug("dispatch candidate failed", "model", model, "outcome", res.Outcome.String(), "error", res.Err)

		if res.Outcome == RateLimited && i < len(d.models)-1 && d.rateLimitDelay > 0 {
			select {
			case <-time.After(d.rateLimitDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return nil, ErrExhausted
}

func (d *Dispatcher) attempt(ctx context.Context, model string, msgs []*Message) Result {
	ctx, span := otel.Tracer("tambal.agent").Start(ctx, "dispatch.attempt",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("model", model)),
	)
	defer span.End()

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	res := d.provider.Chat(ctx, model, msgs)
	if res.Outcome == Success && res.Text == "" {
		res.Outcome = Malformed
		res.Err = errors.New("empty answer")
	}
	span.SetAttributes(attribute.String("outcome", res.Outcome.String()))
	if res.Outcome != Success {
		span.SetStatus(codes.Error, res.Outcome.String())
		if res.Err != nil {
			span.RecordError(res.Err)
		}
	}
	return res
}
