package mpegts

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
)

// Demuxer reads transport packets from a reader and returns the PAT, PMT
// and PES units they carry, in the order they complete.
type Demuxer struct {
	ctx  context.Context
	log  *slog.Logger
	r    *bufio.Reader
	pkt  [PacketSize]byte
	pids map[uint16]*pidState
	pmt  map[uint16]bool

	queue   []*Unit
	eof     bool
	corrupt int64
}

// Option configures a Demuxer.
type Option func(*Demuxer)

// WithLogger sets the logger used for skipped-data diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(d *Demuxer) {
		if log != nil {
			d.log = log
		}
	}
}

// NewDemuxer returns a demuxer reading from r. Next returns ctx's error
// once ctx is done.
func NewDemuxer(ctx context.Context, r io.Reader, opts ...Option) *Demuxer {
	d := &Demuxer{
		ctx:  ctx,
		log:  slog.Default(),
		r:    bufio.NewReaderSize(r, 64*PacketSize),
		pids: make(map[uint16]*pidState),
		pmt:  make(map[uint16]bool),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = d.log.With("component", "mpegts")
	return d
}

// Corrupt returns the number of sync losses and malformed units skipped.
func (d *Demuxer) Corrupt() int64 {
	return d.corrupt
}

// Next returns the next unit. It returns io.EOF after the units still
// buffered at the end of the input have been returned.
func (d *Demuxer) Next() (*Unit, error) {
	for {
		if len(d.queue) > 0 {
			u := d.queue[0]
			d.queue = d.queue[1:]
			return u, nil
		}
		if d.eof {
			return nil, io.EOF
		}
		if err := d.ctx.Err(); err != nil {
			return nil, err
		}

		err := d.readPacket()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			d.eof = true
			d.flushAll()
			continue
		}
		if err != nil {
			return nil, err
		}

		var p Packet
		if err := parsePacket(d.pkt[:], &p); err != nil {
			d.corrupt++
			continue
		}
		if done := d.state(p.PID).add(&p); done != nil {
			d.parse(done)
		}
	}
}

// readPacket fills d.pkt with the next packet. When the stream is out of
// alignment it skips to a sync byte that is followed by another one a
// packet later.
func (d *Demuxer) readPacket() error {
	if _, err := io.ReadFull(d.r, d.pkt[:]); err != nil {
		return err
	}
	if d.pkt[0] == syncByte {
		return nil
	}
	d.corrupt++
	skipped := 0
	for {
		i := 1 + bytes.IndexByte(d.pkt[1:], syncByte)
		if i == 0 {
			i = PacketSize
		}
		skipped += i
		n := copy(d.pkt[:], d.pkt[i:])
		if _, err := io.ReadFull(d.r, d.pkt[n:]); err != nil {
			return err
		}
		if d.pkt[0] == syncByte && d.syncFollows() {
			break
		}
	}
	d.log.Debug("resynchronized", "skipped", skipped)
	return nil
}

// syncFollows reports whether the next unread byte is a sync byte. The
// end of the input counts as one.
func (d *Demuxer) syncFollows() bool {
	b, err := d.r.Peek(1)
	return err != nil || b[0] == syncByte
}

func (d *Demuxer) state(pid uint16) *pidState {
	s, ok := d.pids[pid]
	if !ok {
		s = newPIDState(pid, pid == pidPAT || d.pmt[pid])
		d.pids[pid] = s
	}
	return s
}

// parse decodes a completed unit payload and queues the result.
func (d *Demuxer) parse(p *pending) {
	if p.psi {
		units, err := parsePSI(p.pid, p.payload)
		if err != nil {
			d.corrupt++
			d.log.Debug("skipping section", "pid", p.pid, "error", err)
		}
		for _, u := range units {
			for _, prog := range u.PAT {
				d.addPMT(prog.PMTPID)
			}
		}
		d.queue = append(d.queue, units...)
		return
	}
	if !hasStartCode(p.payload) {
		return
	}
	pes, err := parsePES(p.payload)
	if err != nil {
		d.corrupt++
		d.log.Debug("skipping PES", "pid", p.pid, "error", err)
		return
	}
	d.queue = append(d.queue, &Unit{PID: p.pid, PES: pes, Discontinuity: p.disc})
}

func (d *Demuxer) addPMT(pid uint16) {
	d.pmt[pid] = true
	if s, ok := d.pids[pid]; ok {
		s.psi = true
	}
}

// flushAll emits the units still being assembled, PAT first so the PMT
// PIDs it announces are known when their buffers are parsed.
func (d *Demuxer) flushAll() {
	pids := make([]uint16, 0, len(d.pids))
	for pid := range d.pids {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })
	for _, pid := range pids {
		s := d.pids[pid]
		s.psi = pid == pidPAT || d.pmt[pid]
		if p := s.take(); p != nil {
			d.parse(p)
		}
	}
}
