package pipeline

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"
)

// Job ids are ULIDs: 26 Crockford Base32 characters with a millisecond
// timestamp prefix, so they sort by submission time.

var (
	ulidMu  sync.Mutex
	lastTS  uint64
	lastSeq uint16
)

const crockford = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// NewJobID returns a new, time-ordered job id.
func NewJobID() string {
	ulidMu.Lock()
	defer ulidMu.Unlock()

	ts := uint64(time.Now().UnixMilli())
	if ts == lastTS {
		lastSeq++
	} else {
		lastTS = ts
		lastSeq = 0
	}

	var b [16]byte
	for i := range 6 {
		b[i] = byte(ts >> (40 - 8*i))
	}
	rand.Read(b[6:])
	// Sequence keeps ids unique and ordered within the same millisecond.
	binary.BigEndian.PutUint16(b[6:8], lastSeq)

	return encode(b)
}

// encode writes 128 bits as 26 base32 digits, most significant first. The
// leading digit carries only the top 3 bits.
func encode(b [16]byte) string {
	hi := binary.BigEndian.Uint64(b[:8])
	lo := binary.BigEndian.Uint64(b[8:])
	var out [26]byte
	for i := 25; i >= 0; i-- {
		out[i] = crockford[lo&31]
		lo = lo>>5 | hi<<59
		hi >>= 5
	}
	return string(out[:])
}
