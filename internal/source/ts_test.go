package source_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/zsiec/vdec/internal/h264/h264test"
	"github.com/zsiec/vdec/internal/media"
	"github.com/zsiec/vdec/internal/mpegts/mpegtstest"
	"github.com/zsiec/vdec/internal/source"
)

func TestTSReaderVideoUnits(t *testing.T) {
	t.Parallel()
	_, units := sampleStream()
	ts := mpegtstest.New(0x100, mpegtstest.StreamTypeH264)
	for i, u := range units {
		// Pad one unit with a large SEI so it spans several packets.
		nals := u
		if i == 1 {
			nals = append([][]byte{h264test.SEIUserData(600)}, u...)
		}
		ts.Video(int64(i)*3003+9000, int64(i)*3003+6000, h264test.AnnexB(nals...))
	}

	r := source.NewTSReader(context.Background(), bytes.NewReader(ts.Bytes()), nil)
	got := readAll(t, r)
	if len(got) != len(units) {
		t.Fatalf("got %d units, want %d", len(got), len(units))
	}
	for i, au := range got {
		if want := int64(i)*3003 + 9000; !au.HasPTS || au.PTS != want {
			t.Errorf("unit %d: got pts %d (has %v), want %d", i, au.PTS, au.HasPTS, want)
		}
		if want := int64(i)*3003 + 6000; au.DTS != want {
			t.Errorf("unit %d: got dts %d, want %d", i, au.DTS, want)
		}
		if got, want := au.Sync, i == 0; got != want {
			t.Errorf("unit %d: got sync %v, want %v", i, got, want)
		}
		if au.Discontinuity {
			t.Errorf("unit %d: unexpected discontinuity", i)
		}
	}
	if !bytes.Equal(got[0].Data, h264test.AnnexB(units[0]...)) {
		t.Error("first unit payload mismatch")
	}

	codec, params := source.Describe(r, got[0])
	if codec != media.CodecH264 {
		t.Errorf("got codec %v, want h264", codec)
	}
	if params.Width != 320 || params.Height != 240 {
		t.Errorf("got %dx%d, want 320x240", params.Width, params.Height)
	}
}

func TestTSReaderDiscontinuity(t *testing.T) {
	t.Parallel()
	_, units := sampleStream()
	data := func(i int) []byte { return h264test.AnnexB(units[i]...) }

	t.Run("lost packets", func(t *testing.T) {
		t.Parallel()
		ts := mpegtstest.New(0x100, mpegtstest.StreamTypeH264)
		ts.Video(1000, -1, data(0))
		ts.Video(2000, -1, data(1))
		ts.Skip(3)
		ts.Video(3000, -1, data(2))
		ts.Video(4000, -1, data(3))

		got := readAll(t, source.NewTSReader(context.Background(), bytes.NewReader(ts.Bytes()), nil))
		// The unit pending when the gap was seen is dropped.
		wantPTS := []int64{1000, 3000, 4000}
		wantDisc := []bool{false, true, false}
		if len(got) != len(wantPTS) {
			t.Fatalf("got %d units, want %d", len(got), len(wantPTS))
		}
		for i, au := range got {
			if au.PTS != wantPTS[i] || au.Discontinuity != wantDisc[i] {
				t.Errorf("unit %d: got pts=%d disc=%v, want pts=%d disc=%v",
					i, au.PTS, au.Discontinuity, wantPTS[i], wantDisc[i])
			}
			if au.DTS != au.PTS {
				t.Errorf("unit %d: got dts %d, want pts fallback %d", i, au.DTS, au.PTS)
			}
		}
	})

	t.Run("signalled", func(t *testing.T) {
		t.Parallel()
		ts := mpegtstest.New(0x100, mpegtstest.StreamTypeH264)
		ts.Video(1000, -1, data(0))
		ts.Video(2000, -1, data(1))
		ts.Skip(5)
		ts.Discontinuity()
		ts.Video(9000, -1, data(2))

		got := readAll(t, source.NewTSReader(context.Background(), bytes.NewReader(ts.Bytes()), nil))
		wantDisc := []bool{false, false, true}
		if len(got) != len(wantDisc) {
			t.Fatalf("got %d units, want %d", len(got), len(wantDisc))
		}
		for i, au := range got {
			if au.Discontinuity != wantDisc[i] {
				t.Errorf("unit %d: got disc %v, want %v", i, au.Discontinuity, wantDisc[i])
			}
		}
	})
}

func TestTSReaderIgnoresOtherCodecs(t *testing.T) {
	t.Parallel()
	ts := mpegtstest.New(0x100, 0x0F)
	ts.Video(1000, -1, []byte{0xFF, 0xF1, 0x50, 0x80})
	got := readAll(t, source.NewTSReader(context.Background(), bytes.NewReader(ts.Bytes()), nil))
	if len(got) != 0 {
		t.Errorf("got %d units from a stream without video, want 0", len(got))
	}
}
