// Package telebot is the telegram front-end of tambal.
package telebot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/odit-bit/tambal/tambal/config"
	tele "gopkg.in/telebot.v4"
)

// Run long-polls telegram until ctx is done.
func Run(ctx context.Context, cfg config.BotConfig, t Resolver) error {
	setting := tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: cfg.PollTimeout},
		OnError: func(err error, c tele.Context) {
			slog.Error("telegram handler", "error", err)
		},
	}
	bot, err := tele.NewBot(setting)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}

	Handle(ctx, bot, t, cfg.AdminID)

	done := make(chan struct{})
	go func() {
		defer close(done)
		slog.Info("telegram bot started", "bot", bot.Me.Username)
		bot.Start()
	}()

	<-ctx.Done()
	slog.Info("shutdown telegram bot...")
	bot.Stop()
	<-done
	return nil
}
