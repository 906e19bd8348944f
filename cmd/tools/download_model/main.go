// Command download_model fetches a model variant into the local cache.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skypro1111/whisper-offline/internal/model"
)

func main() {
	dir := flag.String("dir", "./data", "Application data directory")
	variant := flag.String("variant", "base", "Model variant (tiny, base, small)")
	baseURL := flag.String("base-url", "", "Remote host serving model artifacts")
	timeout := flag.Duration("timeout", 10*time.Minute, "Per-file download timeout")
	force := flag.Bool("force", false, "Re-download even when cached")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *baseURL == "" {
		fmt.Fprintln(os.Stderr, "Error: -base-url is required")
		flag.Usage()
		os.Exit(1)
	}

	mgr, err := model.NewManager(model.Config{
		RootDir: *dir,
		BaseURL: *baseURL,
		Timeout: *timeout,
	}, logger)
	if err != nil {
		logger.Error("Failed to create model manager", slog.String("error", err.Error()))
		os.Exit(1)
	}

	v := model.Variant(*variant)
	if !model.KnownVariant(v) {
		logger.Error("Unknown variant", slog.String("variant", *variant))
		os.Exit(1)
	}

	if mgr.IsDownloaded(v) && !*force {
		logger.Info("Model already downloaded", slog.String("variant", *variant))
		return
	}
	if *force {
		os.Remove(mgr.EncoderPath(v))
		os.Remove(mgr.DecoderPath(v))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var lastPercent int64 = -1
	err = mgr.Download(ctx, v, func(file string, received, total int64) {
		if total <= 0 {
			return
		}
		percent := received * 100 / total
		if percent != lastPercent {
			lastPercent = percent
			fmt.Fprintf(os.Stderr, "\r%s: %d%%", file, percent)
			if percent == 100 {
				fmt.Fprintln(os.Stderr)
			}
		}
	})
	if err != nil {
		fmt.Fprintln(os.Stderr)
		logger.Error("Download failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	handle, err := mgr.Resolve(v)
	if err != nil {
		logger.Error("Downloaded model failed verification", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Model ready",
		slog.String("variant", string(handle.Variant)),
		slog.String("encoder", handle.EncoderPath),
		slog.String("decoder", handle.DecoderPath),
	)
}
