package export

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"
)

// Job IDs are ULIDs: 26 Crockford Base32 characters with a millisecond
// timestamp prefix, so IDs sort by creation time. Generated locally, no
// external dependency required.

const crockford = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

var (
	ulidMu  sync.Mutex
	lastTS  uint64
	lastSeq uint16
)

func generateULID() string {
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
	// 48-bit timestamp in the first 6 bytes.
	binary.BigEndian.PutUint64(b[:8], ts<<16)
	rand.Read(b[6:])
	// Sequence in bytes 6-7 keeps IDs unique and ordered within one ms.
	binary.BigEndian.PutUint16(b[6:8], lastSeq)
	return encodeCrockford(b)
}

// encodeCrockford packs 128 bits into 26 characters. The first character
// carries only the top 3 bits, per the ULID layout.
func encodeCrockford(b [16]byte) string {
	var out [26]byte
	bit := -2
	for i := range out {
		var v byte
		for k := range 5 {
			v <<= 1
			idx := bit + k
			if idx >= 0 && b[idx>>3]&(0x80>>(idx&7)) != 0 {
				v |= 1
			}
		}
		out[i] = crockford[v]
		bit += 5
	}
	return string(out[:])
}
