// Package cipher implements the primitive codecs the MDict container format
// depends on: RIPEMD-128 (key derivation), Salsa20/8 (prelude and passcode
// encryption) and fast_decrypt (key-block-info obfuscation). None of these
// have a ready-made package in the module's dependency graph, so they are
// hand-written here, shaped like the hash.Hash block-cipher packages in
// golang.org/x/crypto.
package cipher

import "hash"

// Size is the size, in bytes, of a RIPEMD-128 checksum.
const Size = 16

// BlockSize is the block size, in bytes, of the RIPEMD-128 hash function.
const BlockSize = 64

const (
	s0 = 0x67452301
	s1 = 0xefcdab89
	s2 = 0x98badcfe
	s3 = 0x10325476
)

type ripemd128Digest struct {
	s   [4]uint32
	x   [BlockSize]byte
	nx  int
	len uint64
}

// NewRIPEMD128 returns a new hash.Hash computing the RIPEMD-128 checksum.
func NewRIPEMD128() hash.Hash {
	d := new(ripemd128Digest)
	d.Reset()
	return d
}

func (d *ripemd128Digest) Reset() {
	d.s[0], d.s[1], d.s[2], d.s[3] = s0, s1, s2, s3
	d.nx = 0
	d.len = 0
}

func (d *ripemd128Digest) Size() int      { return Size }
func (d *ripemd128Digest) BlockSize() int { return BlockSize }

func (d *ripemd128Digest) Write(p []byte) (nn int, err error) {
	nn = len(p)
	d.len += uint64(nn)
	if d.nx > 0 {
		n := copy(d.x[d.nx:], p)
		d.nx += n
		if d.nx == BlockSize {
			ripemd128Block(d, d.x[0:])
			d.nx = 0
		}
		p = p[n:]
	}
	n := ripemd128Block(d, p)
	p = p[n:]
	if len(p) > 0 {
		d.nx = copy(d.x[:], p)
	}
	return
}

func (d0 *ripemd128Digest) Sum(in []byte) []byte {
	d := *d0
	len := d.len
	var tmp [64]byte
	tmp[0] = 0x80
	if len%64 < 56 {
		d.Write(tmp[0 : 56-len%64])
	} else {
		d.Write(tmp[0 : 64+56-len%64])
	}

	len <<= 3
	for i := uint(0); i < 8; i++ {
		tmp[i] = byte(len >> (8 * i))
	}
	d.Write(tmp[0:8])

	if d.nx != 0 {
		panic("d.nx != 0")
	}

	var digest [Size]byte
	for i, s := range d.s {
		digest[i*4] = byte(s)
		digest[i*4+1] = byte(s >> 8)
		digest[i*4+2] = byte(s >> 16)
		digest[i*4+3] = byte(s >> 24)
	}

	return append(in, digest[:]...)
}

// Sum128 returns the RIPEMD-128 checksum of data.
func Sum128(data []byte) [Size]byte {
	d := new(ripemd128Digest)
	d.Reset()
	d.Write(data)
	sum := d.Sum(nil)
	var out [Size]byte
	copy(out[:], sum)
	return out
}
