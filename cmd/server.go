package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/odit-bit/tambal/tambal"
	"github.com/odit-bit/tambal/tambal/config"
	telebot "github.com/odit-bit/tambal/tgbot"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func init() {
	ServerCMD.Flags().AddFlagSet(config.FlagSet)
}

var ServerCMD = cobra.Command{
	Use:   "server",
	Short: "serve the http api and, when enabled, the telegram bot",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := config.LoadAndValidate(cmd.Flags())
		if err != nil {
			return err
		}
		return runServer(ctx, cfg)
	},
}

func runServer(ctx context.Context, cfg *config.Config) error {
	// start observability
	tel, err := tambal.InitObservability(ctx, "tambal-server", cfg.Observe)
	if err != nil {
		return fmt.Errorf("failed init obervability: %w", err)
	}

	t, closeStore, err := tambal.Open(ctx, cfg)
	if err != nil {
		return errors.Join(err, tel.Shutdown(context.Background()))
	}

	g, gctx := errgroup.WithContext(ctx)

	srv := tambal.NewHttp(t, cfg.Server.Address, tel.Metrics)
	g.Go(func() error {
		return srv.Run(gctx)
	})

	if cfg.Bot.Enable {
		g.Go(func() error {
			return telebot.Run(gctx, cfg.Bot, t)
		})
	}

	g.Go(func() error {
		return t.RunJanitor(gctx, cfg.Store.Retention, cfg.Store.PruneInterval)
	})

	err = g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Join(err, tel.Shutdown(shutdownCtx), closeStore())
}
