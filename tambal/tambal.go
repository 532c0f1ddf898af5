/*
Package tambal answers error reports from a self-learning cache of rated
solutions and falls back to live language models on a miss.

A query is fingerprinted, looked up by exact fingerprint and then by error
category. Only records users have rated up are served from the cache. Live
answers are stored at neutral confidence and wait for feedback.
*/
package tambal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/odit-bit/tambal/tambal/agent"
	"github.com/odit-bit/tambal/tambal/codeblock"
	"github.com/odit-bit/tambal/tambal/fingerprint"
	"github.com/odit-bit/tambal/tambal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const minQueryRunes = 5

var ErrInvalidQuery = errors.New("tambal: query is empty or too short")

// User facing messages. Internal errors only go to the log.
const (
	MsgInvalidQuery = "Send code, an error log or a file."
	MsgUnavailable  = "All models are busy right now. Please send the log again in a minute."
	MsgAuthFailure  = "The assistant is temporarily unavailable. The operator has been notified."
)

type Source string

const (
	SourceCache Source = "cache"
	SourceLive  Source = "live"
	SourceError Source = "error"
)

// Resolution is the answer to one query.
type Resolution struct {
	Answer string
	// first fenced block of Answer, empty when there is none
	Code     string
	Filename string
	Source   Source
	// short model name, "cache" for cached answers
	Model       string
	Fingerprint string
	Category    string
	// stored confidence of a cached answer, zero for live answers
	Confidence float64
	RequestID  string
}

// Store is the persistence the resolver needs. *store.SQLite implements it.
type Store interface {
	FindExact(ctx context.Context, hash string) (*store.Solution, error)
	FindByCategory(ctx context.Context, category string) (*store.Solution, error)
	Upsert(ctx context.Context, hash, category, rawQuery, answer, code string) error
	AdjustConfidence(ctx context.Context, hash string, positive bool) error
	AppendRating(ctx context.Context, userID int64, hash string, rating store.Rating) error
	AppendHistory(ctx context.Context, e store.HistoryEntry) error
	Stats(ctx context.Context) (store.Stats, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Completer produces live answers. *agent.Dispatcher implements it.
type Completer interface {
	Complete(ctx context.Context, system string, history []*agent.Message, query string) (*agent.Completion, error)
}

type Tambal struct {
	store      Store
	completer  Completer
	classifier *fingerprint.Classifier
	sessions   *sessions

	resolves  metric.Int64Counter
	feedbacks metric.Int64Counter
	now       func() time.Time
}

type Option func(t *tambalOptions)

type tambalOptions struct {
	classifier   *fingerprint.Classifier
	maxSessions  int
	maxExchanges int
	maxRunes     int
}

// WithClassifier replaces the embedded category rules.
func WithClassifier(c *fingerprint.Classifier) Option {
	return func(o *tambalOptions) {
		o.classifier = c
	}
}

// WithSessionLimits bounds the number of remembered users, the exchanges kept
// per user and the length of every remembered message. Zero keeps the default.
func WithSessionLimits(maxSessions, maxExchanges, maxRunes int) Option {
	return func(o *tambalOptions) {
		o.maxSessions = maxSessions
		o.maxExchanges = maxExchanges
		o.maxRunes = maxRunes
	}
}

// ResolveOption tunes a single Resolve call.
type ResolveOption func(o *resolveOptions)

type resolveOptions struct {
	filenameHint string
}

// WithFilenameHint names the downloadable fix after a file the user uploaded,
// as long as the extension matches the language of the answer.
func WithFilenameHint(name string) ResolveOption {
	return func(o *resolveOptions) {
		o.filenameHint = name
	}
}

func New(s Store, c Completer, opts ...Option) (*Tambal, error) {
	if s == nil || c == nil {
		return nil, errors.New("tambal: store and completer are required")
	}
	o := tambalOptions{classifier: fingerprint.Default}
	for _, fn := range opts {
		fn(&o)
	}

	sess, err := newSessions(o.maxSessions, o.maxExchanges, o.maxRunes)
	if err != nil {
		return nil, fmt.Errorf("tambal: sessions: %w", err)
	}

	meter := otel.Meter("tambal")
	resolves, err := meter.Int64Counter(
		"tambal.resolve.total",
		metric.WithDescription("resolved queries by source"),
	)
	if err != nil {
		return nil, err
	}
	feedbacks, err := meter.Int64Counter(
		"tambal.feedback.total",
		metric.WithDescription("applied feedback by rating"),
	)
	if err != nil {
		return nil, err
	}

	return &Tambal{
		store:      s,
		completer:  c,
		classifier: o.classifier,
		sessions:   sess,
		resolves:   resolves,
		feedbacks:  feedbacks,
		now:        time.Now,
	}, nil
}

// Resolve answers query for userID, from the cache when a trusted solution
// exists and from the live models otherwise. On a dispatch failure the
// returned Resolution carries a stable user message with SourceError
// together with the error.
func (t *Tambal) Resolve(ctx context.Context, userID int64, system, query string, opts ...ResolveOption) (*Resolution, error) {
	var o resolveOptions
	for _, fn := range opts {
		fn(&o)
	}
	if utf8.RuneCountInString(strings.TrimSpace(query)) < minQueryRunes {
		return nil, ErrInvalidQuery
	}

	p := t.classifier.Of(query)
	reqID := uuid.NewString()
	slog.Debug("resolve", "user", userID, "fingerprint", p.Hash, "category", p.Category, "request_id", reqID)

	if sol := t.lookup(ctx, p); sol != nil {
		return t.fromCache(ctx, userID, query, reqID, sol, o.filenameHint), nil
	}

	comp, err := t.completer.Complete(ctx, system, t.sessions.history(userID), query)
	if err != nil {
		t.count(ctx, SourceError)
		msg := MsgUnavailable
		if errors.Is(err, agent.ErrAuthentication) {
			msg = MsgAuthFailure
		}
		slog.Error("resolve failed", "user", userID, "fingerprint", p.Hash, "request_id", reqID, "error", err)
		return &Resolution{
			Answer:      msg,
			Source:      SourceError,
			Fingerprint: p.Hash,
			Category:    p.Category,
			RequestID:   reqID,
		}, err
	}

	res := &Resolution{
		Answer:      comp.Text,
		Filename:    codeblock.DefaultFilename,
		Source:      SourceLive,
		Model:       comp.Model,
		Fingerprint: p.Hash,
		Category:    p.Category,
		RequestID:   reqID,
	}
	if block, ok := codeblock.Extract(comp.Text); ok {
		res.Code = block.Code
		res.Filename = codeblock.Filename(block.Lang, o.filenameHint)
		t.sessions.setLastFix(userID, Fix{Code: block.Code, Filename: res.Filename, Model: comp.Model})
	}

	if err := t.store.Upsert(ctx, p.Hash, p.Category, query, comp.Text, res.Code); err != nil {
		slog.Error("store upsert", "fingerprint", p.Hash, "error", err)
	}
	t.appendHistory(ctx, store.HistoryEntry{
		RequestID: reqID,
		UserID:    userID,
		Query:     query,
		Response:  comp.Text,
		Source:    store.SourceLive,
	})
	t.sessions.setPending(userID, p.Hash)
	t.sessions.appendExchange(userID, query, comp.Text)
	t.count(ctx, SourceLive)

	return res, nil
}

// lookup tries the exact fingerprint first, then the category. Store errors
// count as a miss.
func (t *Tambal) lookup(ctx context.Context, p fingerprint.Print) *store.Solution {
	sol, err := t.store.FindExact(ctx, p.Hash)
	if err == nil {
		return sol
	}
	if !errors.Is(err, store.ErrNotFound) {
		slog.Error("store exact lookup", "fingerprint", p.Hash, "error", err)
	}

	if p.Category == fingerprint.CategoryUnknown {
		return nil
	}
	sol, err = t.store.FindByCategory(ctx, p.Category)
	if err == nil {
		return sol
	}
	if !errors.Is(err, store.ErrNotFound) {
		slog.Error("store category lookup", "category", p.Category, "error", err)
	}
	return nil
}

func (t *Tambal) fromCache(ctx context.Context, userID int64, query, reqID string, sol *store.Solution, filenameHint string) *Resolution {
	res := &Resolution{
		Answer:      sol.AnswerText,
		Code:        sol.CodeExcerpt,
		Filename:    codeblock.DefaultFilename,
		Source:      SourceCache,
		Model:       string(SourceCache),
		Fingerprint: sol.Fingerprint,
		Category:    sol.Category,
		Confidence:  sol.Confidence,
		RequestID:   reqID,
	}
	if block, ok := codeblock.Extract(sol.AnswerText); ok {
		res.Filename = codeblock.Filename(block.Lang, filenameHint)
	}
	if res.Code != "" {
		t.sessions.setLastFix(userID, Fix{Code: res.Code, Filename: res.Filename, Model: res.Model})
	}

	// a rating after a cached answer adjusts the record that was served
	t.sessions.setPending(userID, sol.Fingerprint)
	t.appendHistory(ctx, store.HistoryEntry{
		RequestID: reqID,
		UserID:    userID,
		Query:     query,
		Response:  sol.AnswerText,
		Source:    store.SourceCache,
	})
	t.count(ctx, SourceCache)
	slog.Debug("cache hit", "user", userID, "fingerprint", sol.Fingerprint, "confidence", sol.Confidence)
	return res
}

func (t *Tambal) appendHistory(ctx context.Context, e store.HistoryEntry) {
	if err := t.store.AppendHistory(ctx, e); err != nil {
		slog.Error("store history", "request_id", e.RequestID, "error", err)
	}
}

func (t *Tambal) count(ctx context.Context, src Source) {
	t.resolves.Add(ctx, 1, metric.WithAttributes(attribute.String("source", string(src))))
}

// ClearSession forgets the conversation, pending rating and last fix of userID.
func (t *Tambal) ClearSession(userID int64) {
	t.sessions.clear(userID)
}

// LastFix returns the code extracted from the latest answer userID received.
func (t *Tambal) LastFix(userID int64) (Fix, bool) {
	return t.sessions.lastFix(userID)
}

type Stats struct {
	store.Stats
	ActiveSessions int `json:"active_sessions"`
}

func (t *Tambal) Stats(ctx context.Context) (Stats, error) {
	st, err := t.store.Stats(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("tambal: stats: %w", err)
	}
	return Stats{Stats: st, ActiveSessions: t.sessions.len()}, nil
}

// RunJanitor prunes untrusted solutions older than retention every interval
// until ctx is done. A zero retention disables pruning.
func (t *Tambal) RunJanitor(ctx context.Context, retention, interval time.Duration) error {
	if retention <= 0 {
		slog.Info("solution retention disabled")
		return nil
	}
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		n, err := t.store.Prune(ctx, t.now().Add(-retention))
		if err != nil {
			slog.Error("prune solutions", "error", err)
		} else if n > 0 {
			slog.Info("pruned solutions", "count", n)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
