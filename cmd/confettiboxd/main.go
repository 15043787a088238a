// Command confettiboxd runs the confetti-box server: it loads settings,
// opens the blob store and metadata index, and serves the upload/lookup
// HTTP surface until interrupted, persisting the index and draining
// in-flight staged uploads on the way out.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Dangoware/confetti-box/internal/config"
	"github.com/Dangoware/confetti-box/internal/server"
	"github.com/Dangoware/confetti-box/pkg/appctx"
	"github.com/Dangoware/confetti-box/pkg/blobstore"
	"github.com/Dangoware/confetti-box/pkg/lookup"
	"github.com/Dangoware/confetti-box/pkg/metaindex"
	"github.com/Dangoware/confetti-box/pkg/reaper"
	"github.com/Dangoware/confetti-box/pkg/staging"
	"github.com/Dangoware/confetti-box/pkg/upload"
)

var (
	configFlag = flag.String("c", "./confettibox.toml", "path to the TOML settings file")
	miPeriod   = flag.Duration("mi-sweep", time.Minute, "metadata index reaper sweep interval")
	csPeriod   = flag.Duration("cs-sweep", 30*time.Second, "chunk staging timeout sweep interval")
)

func main() {
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	if err := run(log); err != nil {
		log.Error().Err(err).Msg("confettiboxd: fatal error")
		os.Exit(1)
	}
}

func run(log zerolog.Logger) error {
	cfg, err := config.Load(*configFlag)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	bs, err := blobstore.New(cfg.FileDir)
	if err != nil {
		return fmt.Errorf("opening blob store: %w", err)
	}

	idx, err := metaindex.Load(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("loading metadata index: %w", err)
	}

	cs, err := staging.New(cfg.TempDir, cfg.ChunkSize, 30*time.Second)
	if err != nil {
		return fmt.Errorf("opening chunk staging directory: %w", err)
	}

	if same, err := bs.SameFilesystem(cfg.TempDir); err != nil {
		return fmt.Errorf("checking temp_dir/file_dir filesystem: %w", err)
	} else if !same {
		return fmt.Errorf("temp_dir %q and file_dir %q must be on the same filesystem for atomic promotion", cfg.TempDir, cfg.FileDir)
	}

	lkSvc := lookup.New(idx, bs, cfg)
	upSvc := upload.New(cs, bs, idx, cfg)
	rp := reaper.New(idx, bs, cs, cfg.DatabasePath, *miPeriod, *csPeriod)
	srv := server.New(cfg, upSvc, lkSvc, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = appctx.WithLogger(ctx, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rp.Run(gctx)
	})
	g.Go(func() error {
		log.Info().Str("addr", cfg.Server.Address).Uint16("port", cfg.Server.Port).Msg("confettiboxd: listening")
		return srv.Run(gctx)
	})

	err = g.Wait()

	log.Info().Msg("confettiboxd: shutting down, persisting index and draining staged uploads")
	if saveErr := idx.Save(cfg.DatabasePath); saveErr != nil {
		log.Error().Err(saveErr).Msg("confettiboxd: failed to persist index on shutdown")
	}
	cs.DeleteAll(&log)

	return err
}
