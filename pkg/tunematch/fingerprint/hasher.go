package fingerprint

import (
	"encoding/binary"
	"strconv"

	"github.com/OneOfOne/xxhash"
	"github.com/himanishpuri/tunematch/pkg/models"
)

const (
	FanOut        = 10
	MinDeltaFrame = 5
	MaxDeltaFrame = 120
)

// hashToken encodes an anchor/target pair as a hex xxhash64 token.
func hashToken(f1, f2, dt int) string {
	var buf [6]byte
	binary.BigEndian.PutUint16(buf[0:], uint16(f1))
	binary.BigEndian.PutUint16(buf[2:], uint16(f2))
	binary.BigEndian.PutUint16(buf[4:], uint16(dt))
	return strconv.FormatUint(xxhash.Checksum64(buf[:]), 16)
}

// Pair builds fingerprints from time-sorted peaks. Each anchor is paired with
// up to FanOut later peaks whose frame distance is in [MinDeltaFrame, MaxDeltaFrame].
// The fingerprint offset is the anchor's frame index.
func Pair(peaks []Peak) []models.Fingerprint {
	fps := make([]models.Fingerprint, 0, len(peaks)*FanOut)
	for i, anchor := range peaks {
		paired := 0
		for j := i + 1; j < len(peaks) && paired < FanOut; j++ {
			target := peaks[j]
			dt := target.TimeIdx - anchor.TimeIdx
			if dt < MinDeltaFrame {
				continue
			}
			if dt > MaxDeltaFrame {
				break
			}
			fps = append(fps, models.Fingerprint{
				Hash:   hashToken(anchor.FreqIdx, target.FreqIdx, dt),
				Offset: int64(anchor.TimeIdx),
			})
			paired++
		}
	}
	return fps
}
