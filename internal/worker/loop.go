package worker

import (
	"errors"

	"github.com/zsiec/vdec/internal/decoder"
	"github.com/zsiec/vdec/internal/h264"
	"github.com/zsiec/vdec/internal/media"
	"github.com/zsiec/vdec/internal/nalu"
	"github.com/zsiec/vdec/internal/recovery"
)

func (w *Worker) run() {
	defer close(w.done)
	for {
		select {
		case c := <-w.cmds:
			c.reply <- w.handle(c)
			if c.op == opShutdown {
				return
			}
		case j := <-w.mailbox:
			w.decodeJob(j)
		}
	}
}

func (w *Worker) handle(c command) error {
	w.log.Debug("command", "op", c.op)
	switch c.op {
	case opCreate:
		return w.open(c.codec, c.params)
	case opFlush:
		w.flush()
		return nil
	case opDrain:
		w.drain()
		return nil
	case opReinit:
		if !w.slot.Active() {
			return ErrNoDecoder
		}
		return w.reinit(nil)
	case opClose:
		w.drain()
		w.slot.Close()
		w.setOpened(false)
		return nil
	case opShutdown:
		if j := w.pendingJob(); j != nil {
			w.dropped.Add(1)
			j.finish(ErrClosed)
		}
		w.slot.Close()
		return nil
	}
	return nil
}

func (w *Worker) pendingJob() *job {
	select {
	case j := <-w.mailbox:
		return j
	default:
		return nil
	}
}

func (w *Worker) open(codec media.CodecID, params media.StreamParams) error {
	if j := w.pendingJob(); j != nil {
		w.decodeJob(j)
	}
	if params.Threads <= 0 {
		params.Threads = w.opts.Decoder.Threads
	}
	if params.ReorderDepth <= 0 {
		params.ReorderDepth = w.opts.Decoder.ReorderDepth
	}

	w.inflight = nil
	w.lost = 0
	w.ended = false
	w.mu.Lock()
	w.terminal = nil
	w.reported = false
	w.mu.Unlock()

	cands := decoder.Candidates(codec, params.Width, params.Height, w.opts.Decoder, w.opts.ProcessName)
	if err := w.slot.Open(codec, params, cands); err != nil {
		w.setOpened(false)
		w.log.Error("no decoder family could be created", "codec", codec, "error", err)
		return err
	}

	w.rec = nil
	if codec == media.CodecH264 && w.opts.Recovery.Enabled {
		w.rec = recovery.New(w.baseLog)
		w.rec.SetPrefixLen(params.PrefixLen)
		w.rec.SetMaxFrameNum(maxFrameNum(params))
		// Joining a stream is a random access like any seek.
		w.rec.NotifyFlush(w.threadDelay())
	}
	w.setOpened(true)
	return nil
}

// maxFrameNum returns the frame_num modulus of params, reading it from the
// first SPS in ExtraData when the source did not fill it in.
func maxFrameNum(params media.StreamParams) int {
	if params.MaxFrameNum > 0 {
		return params.MaxFrameNum
	}
	for _, u := range nalu.Split(params.ExtraData, nalu.AnnexB) {
		if u.Type != nalu.TypeSPS {
			continue
		}
		if sps, err := h264.ParseSPS(u.Data); err == nil {
			return sps.MaxFrameNum()
		}
	}
	return 0
}

func (w *Worker) decodeJob(j *job) {
	j.finish(w.decodeUnit(j.au, false))
}

// decodeUnit decodes au on the active family. Replayed units skip recovery
// inspection, which already saw them.
func (w *Worker) decodeUnit(au *media.AccessUnit, replay bool) error {
	if w.ended || !w.slot.Active() {
		w.dropped.Add(1)
		return ErrStreamEnded
	}
	if w.rec != nil && !replay {
		w.rec.SetPrefixLen(au.PrefixLen)
		w.rec.Inspect(au.Data)
	}
	w.track(au)

	frames, err := w.slot.Decode(au)
	if len(frames) > 0 {
		w.retire(len(frames))
		w.queue(frames, false)
	}
	switch {
	case err == nil, errors.Is(err, decoder.ErrNoFrame):
		w.decoded.Add(1)
		w.lost = 0
		return nil
	case errors.Is(err, decoder.ErrDeviceLost):
		w.lost++
		if w.lost <= maxReinits {
			return w.reinit(err)
		}
		w.lost = 0
		return w.failover(err)
	default:
		return w.failover(err)
	}
}

func (w *Worker) track(au *media.AccessUnit) {
	if len(w.inflight) == maxInflight {
		copy(w.inflight, w.inflight[1:])
		w.inflight = w.inflight[:maxInflight-1]
	}
	w.inflight = append(w.inflight, au)
}

// retire forgets the n oldest in-flight units once n frames came out. The
// units left are those a fresh decoder needs to reproduce the frames still
// held back.
func (w *Worker) retire(n int) {
	if n >= len(w.inflight) {
		w.inflight = nil
		return
	}
	w.inflight = append([]*media.AccessUnit(nil), w.inflight[n:]...)
}

// failover abandons the active family for the rest of the stream and
// replays the in-flight units on the next candidate.
func (w *Worker) failover(cause error) error {
	units := w.inflight
	w.inflight = nil
	from := w.slot.Kind()
	w.slot.Fail()
	if err := w.slot.Next(); err != nil {
		return w.terminate(err)
	}
	w.fallbacks.Add(1)
	w.log.Warn("decoder family failed, falling back",
		"from", from,
		"to", w.slot.Kind(),
		"replay", len(units),
		"error", cause,
	)
	return w.replay(units)
}

// reinit recreates the active family and replays the in-flight units. A
// failed recreate falls back to the next family.
func (w *Worker) reinit(cause error) error {
	units := w.inflight
	w.inflight = nil
	if err := w.slot.Recreate(); err != nil {
		w.inflight = units
		return w.failover(err)
	}
	w.reinits.Add(1)
	w.log.Info("decoder reinitialized", "family", w.slot.Kind(), "replay", len(units), "cause", cause)
	return w.replay(units)
}

func (w *Worker) replay(units []*media.AccessUnit) error {
	for _, u := range units {
		w.replays.Add(1)
		if err := w.decodeUnit(u, true); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) terminate(err error) error {
	w.ended = true
	w.inflight = nil
	w.slot.Close()
	w.mu.Lock()
	w.terminal = err
	w.mu.Unlock()
	w.log.Error("decoding stopped", "codec", w.slot.Codec(), "error", err)
	return err
}

func (w *Worker) flush() {
	if j := w.pendingJob(); j != nil {
		w.dropped.Add(1)
		j.finish(nil)
	}
	w.slot.Flush()
	w.inflight = nil

	w.mu.Lock()
	w.dropped.Add(int64(len(w.out)))
	w.out = nil
	w.mu.Unlock()

	if w.rec != nil {
		w.rec.NotifyFlush(w.threadDelay())
	}
	w.flushes.Add(1)
}

func (w *Worker) drain() {
	if j := w.pendingJob(); j != nil {
		w.decodeJob(j)
	}
	if w.ended || !w.slot.Active() {
		return
	}
	frames, err := w.slot.Drain()
	w.inflight = nil
	w.queue(frames, true)
	if err != nil && !errors.Is(err, decoder.ErrNoFrame) {
		w.log.Warn("drain failed", "family", w.slot.Kind(), "error", err)
	}
}

func (w *Worker) threadDelay() int {
	if d := w.opts.Recovery.ThreadDelay; d > 0 {
		return d
	}
	return w.slot.ThreadDelay()
}

// queue judges frames against the recovery machine and appends the
// deliverable ones to the output queue. Drained frames have no decode
// context of their own.
func (w *Worker) queue(frames []*media.Frame, drained bool) {
	if len(frames) == 0 {
		return
	}
	family := w.slot.Kind().String()
	keep := make([]*media.Frame, 0, len(frames))
	for _, f := range frames {
		f.Family = family
		if w.rec != nil {
			p := recovery.Picture{FrameNum: f.DecodeFrameNum, POC: f.DecodePOC, OutputPOC: f.POC}
			if drained {
				p.FrameNum, p.POC = f.FrameNum, f.POC
			}
			if w.rec.Judge(p) {
				w.suppressed.Add(1)
				continue
			}
		}
		keep = append(keep, f)
	}
	w.mu.Lock()
	w.out = append(w.out, keep...)
	w.mu.Unlock()
}
