package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/vdec/internal/config"
	"github.com/zsiec/vdec/internal/ingest"
	srtingest "github.com/zsiec/vdec/internal/ingest/srt"
	"github.com/zsiec/vdec/internal/pipeline"
	"github.com/zsiec/vdec/internal/source"
	"github.com/zsiec/vdec/internal/stream"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var (
		srtAddr string
		pulls   []string
		status  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept SRT publishers and decode every stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if srtAddr != "" {
				cfg.Ingest.SRTAddr = srtAddr
			}
			reqs := make([]srtingest.PullRequest, 0, len(pulls))
			for _, p := range pulls {
				req, err := srtingest.ParsePullRequest(p)
				if err != nil {
					return err
				}
				reqs = append(reqs, req)
			}

			runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(runCtx, cfg, reqs, status, slog.Default())
		},
	}

	cmd.Flags().StringVar(&srtAddr, "srt", "", "SRT listen address (overrides ingest.srt_addr)")
	cmd.Flags().StringArrayVar(&pulls, "pull", nil, "Pull a remote SRT stream, as key@host:port[/streamid]")
	cmd.Flags().DurationVar(&status, "status", 10*time.Second, "Interval between session status logs (0 disables)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, pulls []srtingest.PullRequest, status time.Duration, log *slog.Logger) error {
	log.Info("vdec starting", "version", version, "srt", cfg.Ingest.SRTAddr, "hardware", cfg.Decoder.Hardware)

	sessions := stream.NewManager(log)
	g, ctx := errgroup.WithContext(ctx)

	// Created after the errgroup so sessions stop when any component fails.
	registry := ingest.NewRegistry(func(s *ingest.Stream) {
		src := source.NewTSReader(ctx, s.Input(), log.With("stream", s.Key))
		p := pipeline.New(s.Key, src, workerOptions(cfg, log, nil))
		p.SetProtocol("SRT")
		err := sessions.Run(ctx, s.Key, p)
		if err == nil {
			err = fmt.Errorf("session %q ended", s.Key)
		}
		s.Abort(err)
		log.Info("stream ended", "key", s.Key, "ingest", s.IngestStats())
	})

	latency := time.Duration(cfg.Ingest.LatencyMs) * time.Millisecond
	srv := srtingest.NewServer(cfg.Ingest.SRTAddr, latency, registry, log)
	g.Go(func() error {
		return srv.Start(ctx)
	})

	caller := srtingest.NewCaller(registry, latency, log)
	for _, req := range pulls {
		if err := caller.Pull(ctx, req); err != nil {
			log.Error("pull failed", "stream_key", req.StreamKey, "address", req.Address, "error", err)
		}
	}

	if status > 0 {
		g.Go(func() error {
			reportStatus(ctx, sessions, status, log)
			return nil
		})
	}

	err := g.Wait()
	sessions.Wait()
	if err != nil {
		log.Error("server error", "error", err)
	}
	return err
}

// reportStatus reports live sessions every interval: a table when stderr is
// a terminal, one log line per session otherwise.
func reportStatus(ctx context.Context, sessions *stream.Manager, interval time.Duration, log *slog.Logger) {
	t := time.NewTicker(interval)
	defer t.Stop()
	tty := isTerminal(os.Stderr)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		snaps := sessions.Snapshots()
		if len(snaps) == 0 {
			continue
		}
		if tty {
			fmt.Fprintln(os.Stderr, renderSessions(snaps))
			continue
		}
		for _, s := range snaps {
			log.Info("session status",
				"stream", s.Key,
				"codec", s.Codec,
				"family", s.Family,
				"delivered", s.Delivered,
				"suppressed", s.Suppressed,
				"fallbacks", s.Fallbacks,
				"flushes", s.Flushes,
				"uptime_ms", s.UptimeMs,
			)
		}
	}
}
