package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := newApp(ctx, os.Stdout)
	if err := app.Run(os.Args); err != nil {
		stop()
		log.Fatal().Err(err).Msg("reconstore failed")
	}
}
