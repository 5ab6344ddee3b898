package source

import (
	"context"
	"fmt"
	"io"

	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/zsiec/vdec/internal/media"
	"github.com/zsiec/vdec/internal/nalu"
)

// mp4PrefixLen is the NAL length field size mp4ff writes and reads in avcC.
const mp4PrefixLen = 4

// nonSyncSample is sample_is_non_sync_sample in fragment sample flags.
const nonSyncSample = 0x00010000

// MP4Reader emits the samples of the first AVC video track of an MP4 file
// as length-prefixed access units. Parameter sets from the avcC box are
// prepended to every sync sample so decoding can start at any of them.
type MP4Reader struct {
	rs        io.ReadSeeker
	timescale uint64
	paramSets []byte
	params    media.StreamParams

	// Progressive files read samples lazily through the sample table.
	stbl    *mp4.StblBox
	syncs   map[uint32]bool
	samples uint32
	nr      uint32

	// Fragmented files are flattened at open.
	frags []mp4.FullSample
	idx   int
}

// OpenMP4 parses the box structure of rs and locates the video track.
func OpenMP4(rs io.ReadSeeker) (*MP4Reader, error) {
	f, err := mp4.DecodeFile(rs)
	if err != nil {
		return nil, fmt.Errorf("decode mp4: %w", err)
	}

	moov := f.Moov
	if f.Init != nil && f.Init.Moov != nil {
		moov = f.Init.Moov
	}
	if moov == nil {
		return nil, fmt.Errorf("%w: no moov box", ErrNoVideoTrack)
	}

	trak, entry, err := videoTrack(moov)
	if err != nil {
		return nil, err
	}

	r := &MP4Reader{rs: rs, timescale: 90000}
	if trak.Mdia.Mdhd != nil && trak.Mdia.Mdhd.Timescale != 0 {
		r.timescale = uint64(trak.Mdia.Mdhd.Timescale)
	}

	var extra []byte
	for _, sps := range entry.AvcC.SPSnalus {
		r.paramSets = nalu.AppendPrefixed(r.paramSets, sps, mp4PrefixLen)
		extra = nalu.AppendAnnexB(extra, sps)
	}
	for _, pps := range entry.AvcC.PPSnalus {
		r.paramSets = nalu.AppendPrefixed(r.paramSets, pps, mp4PrefixLen)
		extra = nalu.AppendAnnexB(extra, pps)
	}
	r.params = media.StreamParams{
		Width:     int(entry.Width),
		Height:    int(entry.Height),
		PrefixLen: mp4PrefixLen,
		ExtraData: extra,
	}

	if f.IsFragmented() {
		if err := r.loadFragments(f, moov, trak.Tkhd.TrackID); err != nil {
			return nil, err
		}
		return r, nil
	}

	stbl := trak.Mdia.Minf.Stbl
	if stbl.Stsz == nil || stbl.Stsc == nil || (stbl.Stco == nil && stbl.Co64 == nil) {
		return nil, fmt.Errorf("%w: incomplete sample table", ErrNoVideoTrack)
	}
	r.stbl = stbl
	r.samples = stbl.Stsz.SampleNumber
	if stbl.Stss != nil {
		r.syncs = make(map[uint32]bool, len(stbl.Stss.SampleNumber))
		for _, nr := range stbl.Stss.SampleNumber {
			r.syncs[nr] = true
		}
	}
	return r, nil
}

func videoTrack(moov *mp4.MoovBox) (*mp4.TrakBox, *mp4.VisualSampleEntryBox, error) {
	for _, trak := range moov.Traks {
		if trak.Mdia == nil || trak.Mdia.Hdlr == nil || trak.Mdia.Hdlr.HandlerType != "vide" {
			continue
		}
		if trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil || trak.Mdia.Minf.Stbl.Stsd == nil {
			continue
		}
		for _, child := range trak.Mdia.Minf.Stbl.Stsd.Children {
			switch child.Type() {
			case "avc1", "avc3":
			default:
				return nil, nil, fmt.Errorf("%w: sample entry %q", ErrUnsupportedCodec, child.Type())
			}
			entry, ok := child.(*mp4.VisualSampleEntryBox)
			if !ok || entry.AvcC == nil {
				continue
			}
			return trak, entry, nil
		}
	}
	return nil, nil, ErrNoVideoTrack
}

func (r *MP4Reader) loadFragments(f *mp4.File, moov *mp4.MoovBox, trackID uint32) error {
	var trex *mp4.TrexBox
	if moov.Mvex != nil {
		for _, t := range moov.Mvex.Trexs {
			if t.TrackID == trackID {
				trex = t
				break
			}
		}
	}
	for _, seg := range f.Segments {
		for _, frag := range seg.Fragments {
			if frag.Moof == nil {
				continue
			}
			for _, traf := range frag.Moof.Trafs {
				if traf.Tfhd.TrackID != trackID {
					continue
				}
				samples, err := frag.GetFullSamples(trex)
				if err != nil {
					return fmt.Errorf("get samples: %w", err)
				}
				r.frags = append(r.frags, samples...)
			}
		}
	}
	return nil
}

// Describe reports H.264 and the parameters known from the sample entry.
func (r *MP4Reader) Describe() (media.CodecID, media.StreamParams) {
	return media.CodecH264, r.params
}

// Len returns the number of samples in the video track.
func (r *MP4Reader) Len() int {
	if r.stbl != nil {
		return int(r.samples)
	}
	return len(r.frags)
}

// Next returns the next sample.
func (r *MP4Reader) Next(ctx context.Context) (*media.AccessUnit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.stbl != nil {
		return r.nextProgressive()
	}
	return r.nextFragmented()
}

func (r *MP4Reader) nextFragmented() (*media.AccessUnit, error) {
	if r.idx >= len(r.frags) {
		return nil, io.EOF
	}
	s := r.frags[r.idx]
	sync := s.Flags&nonSyncSample == 0 || r.idx == 0
	r.idx++
	dts := s.DecodeTime
	pts := uint64(int64(dts) + int64(s.CompositionTimeOffset))
	return r.unit(s.Data, sync, pts, dts), nil
}

func (r *MP4Reader) nextProgressive() (*media.AccessUnit, error) {
	if r.nr >= r.samples {
		return nil, io.EOF
	}
	r.nr++
	nr := r.nr

	data, err := r.readSample(nr)
	if err != nil {
		return nil, fmt.Errorf("sample %d: %w", nr, err)
	}
	var dts uint64
	if r.stbl.Stts != nil {
		dts, _ = r.stbl.Stts.GetDecodeTime(nr)
	}
	pts := dts
	if r.stbl.Ctts != nil {
		pts = uint64(int64(dts) + int64(r.stbl.Ctts.GetCompositionTimeOffset(nr)))
	}
	sync := r.syncs == nil || r.syncs[nr]
	return r.unit(data, sync, pts, dts), nil
}

func (r *MP4Reader) unit(sample []byte, sync bool, pts, dts uint64) *media.AccessUnit {
	var data []byte
	if sync {
		data = make([]byte, 0, len(r.paramSets)+len(sample))
		data = append(data, r.paramSets...)
	}
	data = append(data, sample...)
	return &media.AccessUnit{
		Data:      data,
		PrefixLen: mp4PrefixLen,
		PTS:       r.to90k(pts),
		DTS:       r.to90k(dts),
		HasPTS:    true,
		Sync:      sync,
	}
}

func (r *MP4Reader) to90k(t uint64) int64 {
	return int64(t * 90000 / r.timescale)
}

func (r *MP4Reader) readSample(nr uint32) ([]byte, error) {
	stbl := r.stbl
	chunkNr, first, err := stbl.Stsc.ChunkNrFromSampleNr(int(nr))
	if err != nil {
		return nil, fmt.Errorf("chunk nr: %w", err)
	}

	var offset uint64
	if stbl.Stco != nil {
		offset, err = stbl.Stco.GetOffset(chunkNr)
		if err != nil {
			return nil, fmt.Errorf("chunk offset: %w", err)
		}
	} else {
		if chunkNr < 1 || chunkNr > len(stbl.Co64.ChunkOffset) {
			return nil, fmt.Errorf("chunk nr %d out of range", chunkNr)
		}
		offset = stbl.Co64.ChunkOffset[chunkNr-1]
	}
	for s := uint32(first); s < nr; s++ {
		offset += uint64(stbl.Stsz.GetSampleSize(int(s)))
	}

	if _, err := r.rs.Seek(int64(offset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek: %w", err)
	}
	data := make([]byte, stbl.Stsz.GetSampleSize(int(nr)))
	if _, err := io.ReadFull(r.rs, data); err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return data, nil
}
