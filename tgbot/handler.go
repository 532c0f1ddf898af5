package telebot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/odit-bit/tambal/tambal"
	"github.com/odit-bit/tambal/tambal/agent"
	"github.com/odit-bit/tambal/tambal/store"
	tele "gopkg.in/telebot.v4"
)

const (
	// only the end of an uploaded file is sent, tracebacks live there
	maxDocumentRunes = 30000
	maxDocumentTail  = 4 * maxDocumentRunes
	// telegram rejects messages above 4096 characters
	maxReplyRunes = 4000
)

const (
	msgStart = "Send me broken code, an error log or a file (main.py, index.js, ...).\n\n" +
		"You get the fixed file back with an explanation. Rate answers with 👍 / 👎 so good fixes are remembered."
	msgCleared       = "🧹 Context cleared"
	msgNoFix         = "Send some code first!"
	msgRated         = "Thanks for the feedback!"
	msgNothingToRate = "Nothing to rate yet"
	msgSent          = "📥 Sent!"
	msgEscalated     = "👨‍💻 An engineer has been notified"
	msgNoHuman       = "No engineer is available"
	msgServerError   = "server error"
)

// Resolver is what the bot needs from the resolver. *tambal.Tambal implements it.
type Resolver interface {
	Resolve(ctx context.Context, userID int64, system, query string, opts ...tambal.ResolveOption) (*tambal.Resolution, error)
	ApplyFeedback(ctx context.Context, userID int64, rating store.Rating) (bool, error)
	Stats(ctx context.Context) (tambal.Stats, error)
	ClearSession(userID int64)
	LastFix(userID int64) (tambal.Fix, bool)
}

type Handler struct {
	ctx     context.Context
	t       Resolver
	adminID int64

	menu        *tele.ReplyMarkup
	btnGood     tele.Btn
	btnBad      tele.Btn
	btnDownload tele.Btn
	btnClear    tele.Btn
	btnHuman    tele.Btn
}

func newHandler(ctx context.Context, t Resolver, adminID int64) *Handler {
	h := &Handler{ctx: ctx, t: t, adminID: adminID}

	menu := &tele.ReplyMarkup{}
	h.btnGood = menu.Data("👍", "rate_good")
	h.btnBad = menu.Data("👎", "rate_bad")
	h.btnDownload = menu.Data("📥 Download", "download")
	h.btnClear = menu.Data("🧹 Clear", "clear")
	h.btnHuman = menu.Data("👨‍💻 Human", "human")
	menu.Inline(
		menu.Row(h.btnGood, h.btnBad),
		menu.Row(h.btnDownload, h.btnClear, h.btnHuman),
	)
	h.menu = menu
	return h
}

// Handle registers commands, messages and buttons on bot.
func Handle(ctx context.Context, bot *tele.Bot, t Resolver, adminID int64) {
	h := newHandler(ctx, t, adminID)

	bot.Handle("/start", h.HandleStart)
	bot.Handle("/clear", h.HandleClear)
	bot.Handle("/stats", h.HandleStats)

	bot.Handle(tele.OnText, h.HandleText)
	bot.Handle(tele.OnDocument, h.HandleDoc)

	bot.Handle(&h.btnGood, h.HandleRate(store.Positive))
	bot.Handle(&h.btnBad, h.HandleRate(store.Negative))
	bot.Handle(&h.btnDownload, h.HandleDownload)
	bot.Handle(&h.btnClear, h.HandleClearButton)
	bot.Handle(&h.btnHuman, h.HandleHuman)
}

func (h *Handler) HandleStart(c tele.Context) error {
	return c.Send(msgStart)
}

func (h *Handler) HandleClear(c tele.Context) error {
	if c.Sender() == nil {
		return nil
	}
	h.t.ClearSession(c.Sender().ID)
	return c.Send(msgCleared)
}

// HandleStats answers the admin only, everybody else is ignored.
func (h *Handler) HandleStats(c tele.Context) error {
	if c.Sender() == nil || h.adminID == 0 || c.Sender().ID != h.adminID {
		return nil
	}
	st, err := h.t.Stats(h.ctx)
	if err != nil {
		slog.Error("failed stats", "error", err)
		return c.Send(msgServerError)
	}
	return c.Send(formatStats(st))
}

func (h *Handler) HandleText(c tele.Context) error {
	text := c.Text()
	if strings.HasPrefix(text, "/") {
		return nil
	}
	return h.answer(c, text)
}

func (h *Handler) HandleDoc(c tele.Context) error {
	doc := c.Message().Document
	rc, err := c.Bot().File(&doc.File)
	if err != nil {
		slog.Error("failed to get doc from telegram", "error", err)
		return c.Send(msgServerError)
	}
	defer rc.Close()

	return h.answerDocument(c, c.Message().Caption, doc.FileName, rc)
}

// answerDocument resolves the tail of an uploaded file. The fix keeps the
// uploaded name when the answer is in the same language.
func (h *Handler) answerDocument(c tele.Context, caption, filename string, r io.Reader) error {
	b, err := readTail(r, maxDocumentTail)
	if err != nil {
		slog.Error("failed read doc", "error", err)
		return c.Send(msgServerError)
	}
	return h.answer(c, withDocument(caption, filename, string(b)), tambal.WithFilenameHint(filename))
}

func (h *Handler) answer(c tele.Context, query string, opts ...tambal.ResolveOption) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	if err := c.Notify(tele.Typing); err != nil {
		slog.Debug("failed typing notify", "user", sender.ID, "error", err)
	}

	res, err := h.t.Resolve(h.ctx, sender.ID, tambal.ChatPrompt, query, opts...)
	switch {
	case errors.Is(err, tambal.ErrInvalidQuery):
		return c.Send(tambal.MsgInvalidQuery)
	case err != nil:
		if errors.Is(err, agent.ErrAuthentication) {
			h.notifyAdmin(c, "⚠️ model backend rejected the api key")
		}
		msg := tambal.MsgUnavailable
		if res != nil {
			msg = res.Answer
		}
		return c.Send(msg)
	}
	return c.Send(formatAnswer(res), h.menu)
}

func (h *Handler) HandleRate(rating store.Rating) tele.HandlerFunc {
	return func(c tele.Context) error {
		if c.Sender() == nil {
			return nil
		}
		applied, err := h.t.ApplyFeedback(h.ctx, c.Sender().ID, rating)
		if err != nil {
			slog.Error("failed feedback", "user", c.Sender().ID, "error", err)
			return c.Respond(&tele.CallbackResponse{Text: msgServerError})
		}
		if !applied {
			return c.Respond(&tele.CallbackResponse{Text: msgNothingToRate})
		}
		return c.Respond(&tele.CallbackResponse{Text: msgRated})
	}
}

func (h *Handler) HandleDownload(c tele.Context) error {
	if c.Sender() == nil {
		return nil
	}
	fix, ok := h.t.LastFix(c.Sender().ID)
	if !ok {
		return c.Respond(&tele.CallbackResponse{Text: msgNoFix})
	}

	doc := &tele.Document{
		File:     tele.FromReader(strings.NewReader(fix.Code)),
		FileName: fix.Filename,
		Caption:  fmt.Sprintf("✅ %s, fixed by %s", fix.Filename, fix.Model),
	}
	if err := c.Send(doc); err != nil {
		return err
	}
	return c.Respond(&tele.CallbackResponse{Text: msgSent})
}

func (h *Handler) HandleClearButton(c tele.Context) error {
	if c.Sender() == nil {
		return nil
	}
	h.t.ClearSession(c.Sender().ID)
	return c.Respond(&tele.CallbackResponse{Text: msgCleared})
}

// HandleHuman forwards the answer the button belongs to to the admin.
func (h *Handler) HandleHuman(c tele.Context) error {
	if h.adminID == 0 || c.Sender() == nil {
		return c.Respond(&tele.CallbackResponse{Text: msgNoHuman})
	}
	if err := c.ForwardTo(tele.ChatID(h.adminID)); err != nil {
		slog.Error("failed forward to admin", "error", err)
	}
	h.notifyAdmin(c, fmt.Sprintf("🆘 from @%s | id %d", c.Sender().Username, c.Sender().ID))
	if err := c.Respond(&tele.CallbackResponse{Text: msgEscalated}); err != nil {
		return err
	}
	return c.Send(msgEscalated)
}

func (h *Handler) notifyAdmin(c tele.Context, text string) {
	if h.adminID == 0 {
		return
	}
	if _, err := c.Bot().Send(tele.ChatID(h.adminID), text); err != nil {
		slog.Error("failed notify admin", "error", err)
	}
}

/* HELPER */

// withDocument appends the tail of an uploaded file to the caption.
func withDocument(caption, filename, content string) string {
	if filename == "" {
		filename = "code.txt"
	}
	content = strings.ToValidUTF8(content, "")
	return strings.TrimSpace(fmt.Sprintf("%s\n\nFile: %s\n```\n%s\n```", caption, filename, tailRunes(content, maxDocumentRunes)))
}

// readTail streams r and keeps only its last n bytes. A cut through a
// multi-byte rune is dropped later by withDocument.
func readTail(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, 0, 2*n)
	chunk := make([]byte, 32<<10)
	for {
		k, err := r.Read(chunk)
		buf = append(buf, chunk[:k]...)
		if len(buf) > n {
			buf = append(buf[:0], buf[len(buf)-n:]...)
		}
		if errors.Is(err, io.EOF) {
			return buf, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func tailRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

func formatAnswer(res *tambal.Resolution) string {
	footer := "⚡ Model: " + res.Model
	if res.Source == tambal.SourceCache {
		footer = fmt.Sprintf("📦 From cache, confidence %.2f", res.Confidence)
	}
	answer := []rune(res.Answer)
	if len(answer) > maxReplyRunes {
		answer = answer[:maxReplyRunes]
	}
	return string(answer) + "\n\n" + footer
}

func formatStats(st tambal.Stats) string {
	return fmt.Sprintf(
		"📊 Stats\n\nSolutions: %d (reliable %d)\nRatings: 👍 %d / 👎 %d\nQueries: %d\nUsers: %d\nActive sessions: %d",
		st.TotalSolutions, st.ReliableSolutions,
		st.PositiveRatings, st.NegativeRatings,
		st.TotalQueries, st.DistinctUsers, st.ActiveSessions,
	)
}
