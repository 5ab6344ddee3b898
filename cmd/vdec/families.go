package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/zsiec/vdec/internal/config"
	"github.com/zsiec/vdec/internal/decoder"
	"github.com/zsiec/vdec/internal/decoder/probe"
	"github.com/zsiec/vdec/internal/worker"
)

// newFamilies returns the decoder families built into this binary.
// Hardware names listed in the configuration are skipped when no family
// for them is registered.
func newFamilies(log *slog.Logger) *decoder.Registry {
	return decoder.NewRegistry(probe.New(log))
}

func workerOptions(cfg *config.Config, log *slog.Logger, sink worker.Sink) worker.Options {
	return worker.Options{
		Log:         log,
		Families:    newFamilies(log),
		Decoder:     cfg.Decoder,
		Recovery:    cfg.Recovery,
		ProcessName: filepath.Base(os.Args[0]),
		Sink:        sink,
	}
}
