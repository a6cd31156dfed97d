// Command metrotune-desk opens the metronome and tuner in a desktop window.
// The HTTP shell runs alongside it, so a browser or script can drive the same
// engines.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/MrWong99/metrotune/internal/app"
	"github.com/MrWong99/metrotune/internal/backends"
	"github.com/MrWong99/metrotune/internal/config"
	"github.com/MrWong99/metrotune/internal/desk"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	headless := flag.Bool("no-http", false, "do not serve the HTTP shell")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if errors.Is(err, os.ErrNotExist) {
		cfg = config.Defaults()
	} else if err != nil {
		fmt.Fprintf(os.Stderr, "metrotune-desk: %v\n", err)
		return 1
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Server.LogLevel.SlogLevel(),
	})))

	reg := config.NewRegistry()
	backends.Register(reg)
	platform, err := reg.CreateAudio(cfg.Audio)
	if err != nil {
		slog.Error("failed to open audio backend", "backend", cfg.Audio.Backend, "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, platform)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := application.Shutdown(sctx); err != nil {
			slog.Error("shutdown error", "err", err)
		}
	}()

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	if !*headless {
		go func() {
			if err := application.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("http shell stopped", "err", err)
			}
		}()
	}

	ebiten.SetWindowSize(desk.ScreenWidth*2, desk.ScreenHeight*2)
	ebiten.SetWindowTitle("metrotune")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetTPS(cfg.Shell.RefreshRate)

	game := desk.New(runCtx, application.Metronome(), application.Tuner())
	err = ebiten.RunGame(game)
	game.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("window error", "err", err)
		return 1
	}
	return 0
}
