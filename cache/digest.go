package cache

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/zeebo/xxh3"
)

var digestPool = sync.Pool{New: func() any { return &Digest{h: xxh3.New()} }}

// Digest accumulates descriptor fields into an xxh3 content hash.
//
//	d := cache.NewDigest()
//	d.String(desc.Label)
//	d.Uint32(uint32(desc.Usage))
//	h := d.Sum64()
type Digest struct {
	h   *xxh3.Hasher
	buf [8]byte
}

// NewDigest returns an empty digest from the pool.
func NewDigest() *Digest { return digestPool.Get().(*Digest) }

// Uint32 mixes v into the digest.
func (d *Digest) Uint32(v uint32) {
	binary.LittleEndian.PutUint32(d.buf[:4], v)
	_, _ = d.h.Write(d.buf[:4])
}

// Uint64 mixes v into the digest.
func (d *Digest) Uint64(v uint64) {
	binary.LittleEndian.PutUint64(d.buf[:], v)
	_, _ = d.h.Write(d.buf[:])
}

// Float32 mixes the bit pattern of v into the digest.
func (d *Digest) Float32(v float32) { d.Uint32(math.Float32bits(v)) }

// Bool mixes v into the digest.
func (d *Digest) Bool(v bool) {
	if v {
		d.Uint32(1)
	} else {
		d.Uint32(0)
	}
}

// String mixes the length and bytes of s into the digest.
func (d *Digest) String(s string) {
	d.Uint64(uint64(len(s)))
	_, _ = d.h.WriteString(s)
}

// Bytes mixes the length and contents of b into the digest.
func (d *Digest) Bytes(b []byte) {
	d.Uint64(uint64(len(b)))
	_, _ = d.h.Write(b)
}

// Sum64 returns the hash and puts the digest back into the pool. The digest
// must not be used afterwards.
func (d *Digest) Sum64() uint64 {
	sum := d.h.Sum64()
	d.h.Reset()
	digestPool.Put(d)
	return sum
}

// HashBytes returns the xxh3 hash of b.
func HashBytes(b []byte) uint64 { return xxh3.Hash(b) }

// HashString returns the xxh3 hash of s.
func HashString(s string) uint64 { return xxh3.HashString(s) }
