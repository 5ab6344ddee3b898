// Package pipeline drives a single stream from its access-unit source
// through a decode worker, forwarding decoded frames to a sink while
// collecting counters for status reporting.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/vdec/internal/media"
	"github.com/zsiec/vdec/internal/source"
	"github.com/zsiec/vdec/internal/worker"
)

// Snapshot is a point-in-time view of a pipeline, suitable for JSON
// serialization and for the end-of-run table printed by the CLI.
type Snapshot struct {
	Key             string `json:"key"`
	Protocol        string `json:"protocol,omitempty"`
	UptimeMs        int64  `json:"uptimeMs"`
	Codec           string `json:"codec"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	Family          string `json:"family"`
	Units           int64  `json:"units"`
	Discontinuities int64  `json:"discontinuities"`
	Submitted       int64  `json:"submitted"`
	Decoded         int64  `json:"decoded"`
	Delivered       int64  `json:"delivered"`
	Suppressed      int64  `json:"suppressed"`
	Dropped         int64  `json:"dropped"`
	Fallbacks       int64  `json:"fallbacks"`
	Reinits         int64  `json:"reinits"`
	Replays         int64  `json:"replays"`
	Flushes         int64  `json:"flushes"`
	LastPTS         int64  `json:"lastPts"`
}

// Pipeline bridges one Source and one Worker. Units are read on their own
// goroutine into a buffered channel so a slow decoder does not stall a
// network reader, and submitted to the worker in decode order. A unit
// flagged as a discontinuity flushes the worker before it is submitted.
type Pipeline struct {
	log       *slog.Logger
	key       string
	src       source.Source
	opts      worker.Options
	startTime time.Time
	protocol  string

	w       atomic.Pointer[worker.Worker]
	codec   atomic.Value // string
	family  atomic.Value // string, last family seen active
	width   atomic.Int64
	height  atomic.Int64
	units   atomic.Int64
	discont atomic.Int64
	lastPTS atomic.Int64
}

// New creates a Pipeline for the stream identified by key. opts configures
// the worker created by Run; its Sink receives every decoded frame.
func New(key string, src source.Source, opts worker.Options) *Pipeline {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("stream", key)
	opts.Log = log
	p := &Pipeline{
		log:       log,
		key:       key,
		src:       src,
		opts:      opts,
		startTime: time.Now(),
	}
	p.codec.Store(media.CodecUnknown.String())
	p.family.Store("none")
	return p
}

// SetProtocol records the ingest protocol name (e.g. "SRT") reported in
// snapshots.
func (p *Pipeline) SetProtocol(proto string) {
	p.protocol = proto
}

// Snapshot returns the current counters. It is safe to call concurrently
// with Run.
func (p *Pipeline) Snapshot() Snapshot {
	s := Snapshot{
		Key:             p.key,
		Protocol:        p.protocol,
		UptimeMs:        time.Since(p.startTime).Milliseconds(),
		Codec:           p.codec.Load().(string),
		Width:           int(p.width.Load()),
		Height:          int(p.height.Load()),
		Family:          p.family.Load().(string),
		Units:           p.units.Load(),
		Discontinuities: p.discont.Load(),
		LastPTS:         p.lastPTS.Load(),
	}
	if w := p.w.Load(); w != nil {
		if k, ok := w.ActiveKind(); ok {
			s.Family = k.String()
			p.family.Store(s.Family)
		}
		st := w.Stats()
		s.Submitted = st.Submitted
		s.Decoded = st.Decoded
		s.Delivered = st.Delivered
		s.Suppressed = st.Suppressed
		s.Dropped = st.Dropped
		s.Fallbacks = st.Fallbacks
		s.Reinits = st.Reinits
		s.Replays = st.Replays
		s.Flushes = st.Flushes
	}
	return s
}

// Run reads the source to the end, decoding every unit. It returns nil at
// end of stream or on cancellation, and the first read, decode or sink
// error otherwise.
func (p *Pipeline) Run(ctx context.Context) error {
	units := make(chan *media.AccessUnit, media.AccessUnitBufferSize)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(units)
		for {
			au, err := p.src.Next(gctx)
			if errors.Is(err, io.EOF) {
				p.log.Info("source finished", "units", p.units.Load())
				return nil
			}
			if err != nil {
				return fmt.Errorf("read source: %w", err)
			}
			p.units.Add(1)
			select {
			case units <- au:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})
	g.Go(func() error {
		return p.decode(gctx, units)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (p *Pipeline) decode(ctx context.Context, units <-chan *media.AccessUnit) error {
	var w *worker.Worker
	defer func() {
		if w == nil {
			return
		}
		if err := w.Close(context.WithoutCancel(ctx)); err != nil {
			p.log.Warn("worker close failed", "error", err)
		}
	}()

	for {
		var au *media.AccessUnit
		var ok bool
		select {
		case au, ok = <-units:
		case <-ctx.Done():
			return ctx.Err()
		}
		if !ok {
			if w == nil {
				p.log.Info("stream ended before any unit")
				return nil
			}
			if err := w.EndOfStream(ctx); err != nil {
				return fmt.Errorf("end of stream: %w", err)
			}
			return nil
		}

		if w == nil {
			var err error
			if w, err = p.open(ctx, au); err != nil {
				return err
			}
		} else if au.Discontinuity {
			p.discont.Add(1)
			p.log.Info("discontinuity, flushing decoder", "pts", au.PTS)
			if err := w.Flush(ctx); err != nil {
				return fmt.Errorf("flush: %w", err)
			}
		}

		if err := w.Submit(ctx, au); err != nil {
			return fmt.Errorf("submit: %w", err)
		}
	}
}

// open creates the worker using parameters derived from the first unit.
func (p *Pipeline) open(ctx context.Context, first *media.AccessUnit) (*worker.Worker, error) {
	codec, params := source.Describe(p.src, first)
	p.codec.Store(codec.String())
	p.width.Store(int64(params.Width))
	p.height.Store(int64(params.Height))

	opts := p.opts
	sink := opts.Sink
	opts.Sink = worker.SinkFunc(func(f *media.Frame) error {
		if f.HasPTS {
			p.lastPTS.Store(f.PTS)
		}
		if f.Family != "" {
			p.family.Store(f.Family)
		}
		if sink == nil {
			return nil
		}
		return sink.Deliver(f)
	})

	w := worker.New(opts)
	p.w.Store(w)
	if err := w.Open(ctx, codec, params); err != nil {
		if cerr := w.Close(context.WithoutCancel(ctx)); cerr != nil {
			p.log.Warn("worker close failed", "error", cerr)
		}
		return nil, fmt.Errorf("open decoder: %w", err)
	}
	kind, _ := w.ActiveKind()
	p.family.Store(kind.String())
	p.log.Info("stream opened", "codec", codec, "width", params.Width, "height", params.Height, "family", kind)
	return w, nil
}
