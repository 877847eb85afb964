package badger

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/poiesic/hegemon/core"
)

// Key prefixes for different data types
const (
	docRecordPrefix       = "rawdoc"
	docCompanyTimePrefix  = "rawdocct"
	chunkRecordPrefix     = "chkrec"
	chunkCompanyTimeIndex = "chkrecct"
	seenHashPrefix        = "seen"
	watermarkPrefix       = "wmark"
	runLogPrefix          = "runlog"
)

// makeDocKey generates a key for a raw document by ID.
func makeDocKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", docRecordPrefix, id))
}

// keyMicros converts a timestamp to the microsecond value encoded into
// composite keys. Timestamps before the Unix epoch (including the zero
// time.Time) clamp to 0 so they never wrap into a huge uint64 that would
// sort after every real key.
func keyMicros(timestamp time.Time) uint64 {
	micros := timestamp.UnixMicro()
	if micros < 0 {
		return 0
	}
	return uint64(micros)
}

// makeCompanyTimeKey generates a composite key for a per-company time index.
// Format: prefix:code:timestamp:id, with timestamp and id written BigEndian
// so lexicographic sort matches chronological order.
func makeCompanyTimeKey(prefix, code string, timestamp time.Time, id core.ID) []byte {
	head := []byte(prefix + ":" + code + ":")
	buf := make([]byte, len(head)+16)
	offset := copy(buf, head)
	binary.BigEndian.PutUint64(buf[offset:], keyMicros(timestamp))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makePartialCompanyTimeKey generates a partial key for time range scans.
func makePartialCompanyTimeKey(prefix, code string, timestamp time.Time) []byte {
	head := []byte(prefix + ":" + code + ":")
	buf := make([]byte, len(head)+8)
	offset := copy(buf, head)
	binary.BigEndian.PutUint64(buf[offset:], keyMicros(timestamp))
	return buf
}

// makeChunkKey generates a key for a chunk by ID.
func makeChunkKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", chunkRecordPrefix, id))
}

// makeSeenKey generates a key for a dedup index entry.
func makeSeenKey(hash core.ID) []byte {
	head := []byte(seenHashPrefix + ":")
	buf := make([]byte, len(head)+8)
	offset := copy(buf, head)
	binary.BigEndian.PutUint64(buf[offset:], uint64(hash))
	return buf
}

// makeWatermarkKey generates a key for a source's watermark.
func makeWatermarkKey(sourceId string) []byte {
	return []byte(watermarkPrefix + ":" + sourceId)
}

// makeRunKey generates a composite key for the append-only run log.
// Format: prefix:startedAt:runId in BigEndian so iteration order is
// chronological.
func makeRunKey(startedAt time.Time, runId core.ID) []byte {
	head := []byte(runLogPrefix + ":")
	buf := make([]byte, len(head)+16)
	offset := copy(buf, head)
	binary.BigEndian.PutUint64(buf[offset:], uint64(startedAt.UnixMicro()))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], uint64(runId))
	return buf
}
