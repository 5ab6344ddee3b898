package source

import (
	"context"
	"io"
	"log/slog"

	"github.com/zsiec/vdec/internal/media"
	"github.com/zsiec/vdec/internal/mpegts"
	"github.com/zsiec/vdec/internal/nalu"
)

// TSReader emits one access unit per video PES packet of an MPEG transport
// stream. It follows the first H.264 or H.265 elementary stream announced in
// a PMT and ignores every other PID.
type TSReader struct {
	log   *slog.Logger
	dmx   *mpegts.Demuxer
	pid   uint16
	codec media.CodecID
	units int64
}

// NewTSReader returns a reader demuxing r. ctx bounds the underlying
// demuxer; Next also honours its own context.
func NewTSReader(ctx context.Context, r io.Reader, log *slog.Logger) *TSReader {
	if log == nil {
		log = slog.Default()
	}
	return &TSReader{
		log: log.With("component", "ts-source"),
		dmx: mpegts.NewDemuxer(ctx, r, mpegts.WithLogger(log)),
	}
}

// Describe reports the codec of the selected video PID.
func (t *TSReader) Describe() (media.CodecID, media.StreamParams) {
	return t.codec, media.StreamParams{}
}

// Corrupt returns the number of transport packets skipped as malformed.
func (t *TSReader) Corrupt() int64 {
	return t.dmx.Corrupt()
}

// Next returns the next video access unit.
func (t *TSReader) Next(ctx context.Context) (*media.AccessUnit, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		u, err := t.dmx.Next()
		if err != nil {
			return nil, err
		}

		if u.PMT != nil {
			t.selectPID(u.PMT)
			continue
		}
		if u.PES == nil || t.pid == 0 || u.PID != t.pid {
			continue
		}
		if len(u.PES.Data) == 0 {
			continue
		}

		au := &media.AccessUnit{
			Data:          u.PES.Data,
			PrefixLen:     nalu.AnnexB,
			PTS:           u.PES.PTS,
			DTS:           u.PES.DTS,
			HasPTS:        u.PES.HasPTS,
			Discontinuity: u.Discontinuity && t.units > 0,
		}
		switch t.codec {
		case media.CodecH264:
			au.Sync = containsIDR(au.Data, nalu.AnnexB)
		case media.CodecH265:
			au.Sync = containsIRAP(au.Data)
		}
		t.units++
		return au, nil
	}
}

func (t *TSReader) selectPID(pmt *mpegts.PMT) {
	if t.pid != 0 {
		return
	}
	for _, es := range pmt.Streams {
		switch es.StreamType {
		case mpegts.StreamTypeH264:
			t.pid, t.codec = es.PID, media.CodecH264
		case mpegts.StreamTypeH265:
			t.pid, t.codec = es.PID, media.CodecH265
		default:
			continue
		}
		t.log.Info("found video PID", "pid", es.PID, "codec", t.codec)
		return
	}
}
