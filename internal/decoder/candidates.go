package decoder

import (
	"path/filepath"
	"slices"
	"strings"

	"github.com/zsiec/vdec/internal/config"
	"github.com/zsiec/vdec/internal/media"
)

type hwProfile struct {
	codecs []media.CodecID
	limit  config.Limit
}

// Built-in hardware capabilities. Sizes are the largest coded picture the
// family is known to accept for any supported codec.
var hwProfiles = map[Kind]hwProfile{
	KindNVDEC: {
		codecs: []media.CodecID{media.CodecH264, media.CodecH265, media.CodecMPEG2, media.CodecVC1, media.CodecAV1},
		limit:  config.Limit{MaxWidth: 8192, MaxHeight: 8192},
	},
	KindQSV: {
		codecs: []media.CodecID{media.CodecH264, media.CodecH265, media.CodecMPEG2, media.CodecVC1},
		limit:  config.Limit{MaxWidth: 4096, MaxHeight: 2304},
	},
	KindVAAPI: {
		codecs: []media.CodecID{media.CodecH264, media.CodecH265, media.CodecMPEG2, media.CodecVC1, media.CodecAV1},
		limit:  config.Limit{MaxWidth: 4096, MaxHeight: 4096},
	},
}

// Candidates returns the families to try for a stream, most preferred
// first. Hardware families come from cfg.Hardware in order, filtered by
// codec support and picture size, and are skipped entirely when
// processName is blacklisted. The legacy family precedes software for
// legacy codecs when cfg.Legacy is set. The list always ends with
// KindSoftware. A zero width or height is treated as unknown and passes
// size checks.
func Candidates(codec media.CodecID, width, height int, cfg config.Decoder, processName string) []Kind {
	var out []Kind
	if !blacklisted(processName, cfg.Blacklist) {
		for _, name := range cfg.Hardware {
			k, ok := ParseKind(name)
			if !ok || !k.IsHardware() || slices.Contains(out, k) {
				continue
			}
			p := hwProfiles[k]
			if !slices.Contains(p.codecs, codec) {
				continue
			}
			limit := p.limit
			if l, ok := cfg.Limits[name]; ok {
				if l.MaxWidth > 0 {
					limit.MaxWidth = l.MaxWidth
				}
				if l.MaxHeight > 0 {
					limit.MaxHeight = l.MaxHeight
				}
			}
			if width > limit.MaxWidth || height > limit.MaxHeight {
				continue
			}
			out = append(out, k)
		}
	}
	if cfg.Legacy && (codec == media.CodecMPEG2 || codec == media.CodecVC1) {
		out = append(out, KindLegacy)
	}
	return append(out, KindSoftware)
}

func blacklisted(processName string, list []string) bool {
	if processName == "" {
		return false
	}
	name := strings.ToLower(filepath.Base(processName))
	name = strings.TrimSuffix(name, ".exe")
	for _, b := range list {
		b = strings.TrimSuffix(strings.ToLower(b), ".exe")
		if b != "" && b == name {
			return true
		}
	}
	return false
}
