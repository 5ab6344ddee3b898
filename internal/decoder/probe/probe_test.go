package probe

import (
	"errors"
	"slices"
	"testing"

	"github.com/zsiec/vdec/internal/decoder"
	"github.com/zsiec/vdec/internal/h264"
	"github.com/zsiec/vdec/internal/h264/h264test"
	"github.com/zsiec/vdec/internal/media"
)

type pic struct {
	idr      bool
	typ      h264.SliceType
	refIDC   uint8
	frameNum uint32
	pocLsb   uint32
}

func (p pic) nal(sps h264test.SPSConfig) []byte {
	return h264test.Slice(sps, h264test.SliceConfig{
		IDR:      p.idr,
		RefIDC:   p.refIDC,
		Type:     p.typ,
		FrameNum: p.frameNum,
		POCLsb:   p.pocLsb,
	})
}

func newDecoder(t *testing.T, params media.StreamParams) *Decoder {
	t.Helper()
	inst, err := New(nil).Create(media.CodecH264, params)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return inst.(*Decoder)
}

func TestCreateRejectsOtherCodecs(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Create(media.CodecH265, media.StreamParams{})
	if !errors.Is(err, decoder.ErrInitFailure) {
		t.Errorf("got %v, want ErrInitFailure", err)
	}
}

func TestCreateRejectsBadExtraData(t *testing.T) {
	t.Parallel()

	sps := h264test.SPS(h264test.DefaultSPS())
	_, err := New(nil).Create(media.CodecH264, media.StreamParams{ExtraData: h264test.AnnexB(sps[:5])})
	if !errors.Is(err, decoder.ErrInitFailure) {
		t.Errorf("got %v, want ErrInitFailure", err)
	}
}

func TestDecodeInOrder(t *testing.T) {
	t.Parallel()

	cfg := h264test.DefaultSPS()
	cfg.MaxNumReorderFrames = 0
	d := newDecoder(t, media.StreamParams{})

	pics := []pic{
		{idr: true, typ: h264.SliceI + 5, refIDC: 3, frameNum: 0, pocLsb: 0},
		{typ: h264.SliceP, refIDC: 2, frameNum: 1, pocLsb: 2},
		{typ: h264.SliceP, refIDC: 2, frameNum: 2, pocLsb: 4},
	}
	for i, p := range pics {
		nals := [][]byte{p.nal(cfg)}
		if i == 0 {
			nals = [][]byte{h264test.SPS(cfg), h264test.PPS(0, 0), p.nal(cfg)}
		}
		frames, err := d.Decode(&media.AccessUnit{Data: h264test.AnnexB(nals...), PTS: int64(i) * 3000, HasPTS: true})
		if err != nil {
			t.Fatalf("picture %d: %v", i, err)
		}
		if len(frames) != 1 {
			t.Fatalf("picture %d: got %d frames, want 1", i, len(frames))
		}
		f := frames[0]
		if f.FrameNum != int(p.frameNum) || f.POC != int(p.pocLsb) || f.PTS != int64(i)*3000 {
			t.Errorf("picture %d: got %+v", i, f)
		}
		if f.Keyframe != (i == 0) {
			t.Errorf("picture %d: keyframe %v", i, f.Keyframe)
		}
		if f.Width != 320 || f.Height != 240 {
			t.Errorf("picture %d: size %dx%d", i, f.Width, f.Height)
		}
	}
}

func TestDecodeReorders(t *testing.T) {
	t.Parallel()

	cfg := h264test.DefaultSPS()
	cfg.MaxNumReorderFrames = 1
	d := newDecoder(t, media.StreamParams{ExtraData: h264test.AnnexB(h264test.SPS(cfg), h264test.PPS(0, 0))})

	pics := []pic{
		{idr: true, typ: h264.SliceI, refIDC: 3, frameNum: 0, pocLsb: 0},
		{typ: h264.SliceP, refIDC: 2, frameNum: 1, pocLsb: 8},
		{typ: h264.SliceB, refIDC: 0, frameNum: 2, pocLsb: 4},
		{typ: h264.SliceP, refIDC: 2, frameNum: 2, pocLsb: 16},
		{typ: h264.SliceB, refIDC: 0, frameNum: 3, pocLsb: 12},
	}
	var out []int
	var decodeNums []int
	for i, p := range pics {
		frames, err := d.Decode(&media.AccessUnit{Data: h264test.Prefixed(4, p.nal(cfg)), PrefixLen: 4})
		if i == 0 {
			if !errors.Is(err, decoder.ErrNoFrame) {
				t.Fatalf("first picture: got %v, want ErrNoFrame", err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("picture %d: %v", i, err)
		}
		for _, f := range frames {
			out = append(out, f.POC)
			decodeNums = append(decodeNums, f.DecodeFrameNum)
		}
	}
	rest, err := d.Drain()
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range rest {
		out = append(out, f.POC)
	}
	if want := []int{0, 4, 8, 12, 16}; !slices.Equal(out, want) {
		t.Errorf("output POCs: got %v, want %v", out, want)
	}
	if want := []int{1, 2, 2, 3}; !slices.Equal(decodeNums, want) {
		t.Errorf("decode frame nums: got %v, want %v", decodeNums, want)
	}
}

func TestIDRBumpsPendingPictures(t *testing.T) {
	t.Parallel()

	cfg := h264test.DefaultSPS()
	d := newDecoder(t, media.StreamParams{
		ReorderDepth: 2,
		ExtraData:    h264test.AnnexB(h264test.SPS(cfg), h264test.PPS(0, 0)),
	})
	decode := func(p pic) ([]*media.Frame, error) {
		return d.Decode(&media.AccessUnit{Data: h264test.AnnexB(p.nal(cfg))})
	}
	if _, err := decode(pic{idr: true, typ: h264.SliceI, refIDC: 3}); !errors.Is(err, decoder.ErrNoFrame) {
		t.Fatalf("got %v, want ErrNoFrame", err)
	}
	if _, err := decode(pic{typ: h264.SliceP, refIDC: 2, frameNum: 1, pocLsb: 8}); !errors.Is(err, decoder.ErrNoFrame) {
		t.Fatalf("got %v, want ErrNoFrame", err)
	}
	frames, err := decode(pic{idr: true, typ: h264.SliceI, refIDC: 3, pocLsb: 0})
	if err != nil {
		t.Fatalf("IDR: %v", err)
	}
	if len(frames) != 2 || frames[0].POC != 0 || frames[1].POC != 8 {
		t.Fatalf("bumped frames: got %d", len(frames))
	}
	rest, _ := d.Drain()
	if len(rest) != 1 || !rest[0].Keyframe {
		t.Errorf("drain after IDR: got %d frames", len(rest))
	}
}

func TestDecodeWithoutParameterSets(t *testing.T) {
	t.Parallel()

	d := newDecoder(t, media.StreamParams{})
	slice := pic{typ: h264.SliceP, refIDC: 2, frameNum: 3}.nal(h264test.DefaultSPS())
	_, err := d.Decode(&media.AccessUnit{Data: h264test.AnnexB(slice)})
	if !errors.Is(err, decoder.ErrNoFrame) || !errors.Is(err, h264.ErrMissingParamSet) {
		t.Errorf("got %v, want ErrNoFrame wrapping ErrMissingParamSet", err)
	}

	_, err = d.Decode(&media.AccessUnit{Data: h264test.AnnexB(h264test.AUD(0))})
	if !errors.Is(err, decoder.ErrNoFrame) {
		t.Errorf("unit without slices: got %v, want ErrNoFrame", err)
	}
}

func TestForbiddenBitIsHardFailure(t *testing.T) {
	t.Parallel()

	cfg := h264test.DefaultSPS()
	d := newDecoder(t, media.StreamParams{ExtraData: h264test.AnnexB(h264test.SPS(cfg), h264test.PPS(0, 0))})
	slice := pic{typ: h264.SliceP, refIDC: 2, frameNum: 1}.nal(cfg)
	slice[0] |= 0x80
	_, err := d.Decode(&media.AccessUnit{Data: h264test.AnnexB(slice)})
	if !errors.Is(err, decoder.ErrHardFailure) {
		t.Errorf("got %v, want ErrHardFailure", err)
	}
}

func TestFlushDiscardsPending(t *testing.T) {
	t.Parallel()

	cfg := h264test.DefaultSPS()
	d := newDecoder(t, media.StreamParams{
		ReorderDepth: 4,
		ExtraData:    h264test.AnnexB(h264test.SPS(cfg), h264test.PPS(0, 0)),
	})
	idr := pic{idr: true, typ: h264.SliceI, refIDC: 3}.nal(cfg)
	if _, err := d.Decode(&media.AccessUnit{Data: h264test.AnnexB(idr)}); !errors.Is(err, decoder.ErrNoFrame) {
		t.Fatalf("got %v, want ErrNoFrame", err)
	}
	d.Flush()
	if rest, _ := d.Drain(); len(rest) != 0 {
		t.Errorf("drain after flush: got %d frames, want 0", len(rest))
	}
	// Parameter sets survive the flush.
	if _, err := d.Decode(&media.AccessUnit{Data: h264test.AnnexB(idr)}); !errors.Is(err, decoder.ErrNoFrame) || errors.Is(err, h264.ErrMissingParamSet) {
		t.Errorf("decode after flush: %v", err)
	}
}
