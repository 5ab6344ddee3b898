package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zsiec/vdec/internal/media"
	"github.com/zsiec/vdec/internal/pipeline"
)

func newDecodeCommand(ctx *commandContext) *cobra.Command {
	var (
		fps        float64
		format     string
		showFrames bool
		jsonOut    bool
	)

	cmd := &cobra.Command{
		Use:   "decode <file>",
		Short: "Decode a file and report decoder statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			var sink frameSink
			if showFrames {
				sink.w = out
			}
			log := slog.Default()

			src, closer, err := openSource(runCtx, args[0], format, fps, log)
			if err != nil {
				return err
			}
			defer closer.Close()

			p := pipeline.New(args[0], src, workerOptions(cfg, log, &sink))
			p.SetProtocol("file")
			runErr := p.Run(runCtx)

			snap := p.Snapshot()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(snap); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(out, renderSnapshot(snap))
			}
			return runErr
		},
	}

	cmd.Flags().Float64Var(&fps, "fps", 0, "Frame rate used to synthesize timestamps for raw H.264 input")
	cmd.Flags().StringVar(&format, "format", formatAuto, "Input format: auto, annexb, ts or mp4")
	cmd.Flags().BoolVar(&showFrames, "frames", false, "Print one line per delivered frame")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print statistics as JSON")
	return cmd
}

// frameSink prints delivered frames when w is set.
type frameSink struct {
	w io.Writer
}

func (s *frameSink) Deliver(f *media.Frame) error {
	if s.w == nil {
		return nil
	}
	_, err := fmt.Fprintln(s.w, formatFrame(f))
	return err
}

func formatFrame(f *media.Frame) string {
	kind := "P"
	if f.Keyframe {
		kind = "K"
	}
	pts := "-"
	if f.HasPTS {
		pts = fmt.Sprintf("%d", f.PTS)
	}
	return fmt.Sprintf("%6d %s frame_num=%d poc=%d pts=%s %dx%d %s",
		f.Seq, kind, f.FrameNum, f.POC, pts, f.Width, f.Height, f.Family)
}
