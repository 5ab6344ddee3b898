// Package probe implements a software decoder family for H.264 that works
// at the header level. It produces one metadata frame per coded picture
// (frame_num, picture order count, keyframe flag, dimensions) in output
// order, using a POC-sorted reorder buffer like a conforming decoder's
// picture output process, but reconstructs no pixels.
package probe

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/zsiec/vdec/internal/decoder"
	"github.com/zsiec/vdec/internal/h264"
	"github.com/zsiec/vdec/internal/media"
	"github.com/zsiec/vdec/internal/nalu"
)

// Family creates probe instances.
type Family struct {
	log *slog.Logger
}

// New returns the probe family. If log is nil, slog.Default() is used.
func New(log *slog.Logger) *Family {
	if log == nil {
		log = slog.Default()
	}
	return &Family{log: log.With("component", "probe")}
}

// Kind implements decoder.Family.
func (f *Family) Kind() decoder.Kind { return decoder.KindSoftware }

// Caps implements decoder.Family. Decode never retains the input buffer.
func (f *Family) Caps() decoder.Caps { return decoder.CapThreadSafeBuffers }

// Create implements decoder.Family.
func (f *Family) Create(codec media.CodecID, params media.StreamParams) (decoder.Instance, error) {
	if codec != media.CodecH264 {
		return nil, fmt.Errorf("%w: probe decodes h264 only, got %s", decoder.ErrInitFailure, codec)
	}
	d := &Decoder{
		log:   f.log,
		store: h264.NewParamSetStore(),
		depth: params.ReorderDepth,
	}
	for _, u := range nalu.Split(params.ExtraData, nalu.AnnexB) {
		if _, err := d.store.Add(u.Data); err != nil {
			return nil, fmt.Errorf("%w: extradata: %w", decoder.ErrInitFailure, err)
		}
	}
	return d, nil
}

// Decoder is one probe instance.
type Decoder struct {
	log   *slog.Logger
	store *h264.ParamSetStore
	poc   h264.POCState
	seg   nalu.Segmenter
	depth int

	// pending holds decoded pictures not yet output, sorted by POC.
	pending []*media.Frame
	// field is the first field of a frame whose second field has not
	// arrived yet.
	field *fieldRef
}

type fieldRef struct {
	frame    *media.Frame
	frameNum uint32
	bottom   bool
}

// Decode implements decoder.Instance.
func (d *Decoder) Decode(au *media.AccessUnit) ([]*media.Frame, error) {
	var (
		hdr *h264.SliceHeader
		sps *h264.SPS
	)
	d.seg.SetBuffer(au.Data, au.PrefixLen)
	for {
		u, ok := d.seg.Next()
		if !ok {
			break
		}
		if u.Forbidden {
			return nil, fmt.Errorf("%w: forbidden_zero_bit set in %s", decoder.ErrHardFailure, u.Type)
		}
		switch {
		case u.Type == nalu.TypeSPS || u.Type == nalu.TypePPS:
			if _, err := d.store.Add(u.Data); err != nil {
				d.log.Debug("bad parameter set", "type", u.Type, "error", err)
			}
		case hdr == nil && u.Type.StartsSliceHeader():
			h, s, err := h264.ParseSliceHeader(u.Data, d.store)
			switch {
			case err == nil:
				hdr, sps = h, s
			case errors.Is(err, h264.ErrMissingParamSet), errors.Is(err, h264.ErrIncomplete):
				return nil, fmt.Errorf("%w: %w", decoder.ErrNoFrame, err)
			default:
				return nil, fmt.Errorf("%w: %w", decoder.ErrHardFailure, err)
			}
		}
	}
	if hdr == nil {
		return nil, decoder.ErrNoFrame
	}

	var out []*media.Frame
	if hdr.IsIDR() {
		out = d.pending
		d.pending = nil
		d.field = nil
	}

	poc := d.poc.Compute(hdr, sps)

	if f := d.field; f != nil && hdr.FieldPic && hdr.FrameNum == f.frameNum && hdr.Bottom != f.bottom {
		// Second field of a frame already buffered.
		d.field = nil
		if poc < f.frame.POC {
			f.frame.POC = poc
			d.sort()
		}
		return d.finish(out, hdr, poc)
	}

	fr := &media.Frame{
		FrameNum: int(hdr.FrameNum),
		POC:      poc,
		PTS:      au.PTS,
		HasPTS:   au.HasPTS,
		Keyframe: hdr.IsIDR() || hdr.Type.IsIntra(),
		Width:    sps.Width,
		Height:   sps.Height,
	}
	d.field = nil
	if hdr.FieldPic {
		d.field = &fieldRef{frame: fr, frameNum: hdr.FrameNum, bottom: hdr.Bottom}
	}
	d.insert(fr)

	depth := d.depth
	if sps.MaxNumReorderFrames >= 0 {
		depth = sps.MaxNumReorderFrames
	}
	for len(d.pending) > depth {
		if d.field != nil && d.pending[0] == d.field.frame {
			break
		}
		out = append(out, d.pending[0])
		d.pending = d.pending[1:]
	}
	return d.finish(out, hdr, poc)
}

func (d *Decoder) finish(out []*media.Frame, hdr *h264.SliceHeader, poc int) ([]*media.Frame, error) {
	if len(out) == 0 {
		return nil, decoder.ErrNoFrame
	}
	for _, f := range out {
		f.DecodeFrameNum = int(hdr.FrameNum)
		f.DecodePOC = poc
	}
	return out, nil
}

// insert adds f keeping pending sorted by POC. Equal POCs keep decode order.
func (d *Decoder) insert(f *media.Frame) {
	i := len(d.pending)
	for i > 0 && d.pending[i-1].POC > f.POC {
		i--
	}
	d.pending = append(d.pending, nil)
	copy(d.pending[i+1:], d.pending[i:])
	d.pending[i] = f
}

func (d *Decoder) sort() {
	for i := 1; i < len(d.pending); i++ {
		for j := i; j > 0 && d.pending[j-1].POC > d.pending[j].POC; j-- {
			d.pending[j-1], d.pending[j] = d.pending[j], d.pending[j-1]
		}
	}
}

// Flush implements decoder.Instance. Parameter sets survive a flush.
func (d *Decoder) Flush() {
	d.pending = nil
	d.field = nil
	d.poc.Reset()
}

// Drain implements decoder.Instance.
func (d *Decoder) Drain() ([]*media.Frame, error) {
	out := d.pending
	d.pending = nil
	d.field = nil
	return out, nil
}

// Close implements decoder.Instance.
func (d *Decoder) Close() error {
	d.Flush()
	d.store.Reset()
	return nil
}
