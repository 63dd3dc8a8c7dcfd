package cipher

import "encoding/binary"

// Salsa20Stream implements the Salsa20 stream cipher with a configurable
// round count. The MDict format calls for the reduced Salsa20/8 variant (8
// rounds, i.e. 4 double-rounds) which golang.org/x/crypto/salsa20's public
// API does not expose (it is hardwired to 20 rounds), so the core function
// is reproduced here.
type Salsa20Stream struct {
	state   [16]uint32
	block   [64]byte
	blockOn int // bytes of block already consumed
	rounds  int
}

var sigma = [4]uint32{0x61707865, 0x3320646e, 0x79622d32, 0x6b206574}
var tau = [4]uint32{0x61707865, 0x3120646e, 0x79622d36, 0x6b206574}

// NewSalsa20 builds a Salsa20 keystream generator. key must be 16 or 32
// bytes; iv must be 8 bytes. rounds is the number of Salsa20 rounds (MDict
// always uses 8).
func NewSalsa20(key, iv []byte, rounds int) *Salsa20Stream {
	if len(iv) != 8 {
		panic("cipher: salsa20 iv must be 8 bytes")
	}

	s := &Salsa20Stream{rounds: rounds, blockOn: 64}

	var c [4]uint32
	switch len(key) {
	case 32:
		c = sigma
	case 16:
		c = tau
		key = append(append([]byte{}, key...), key...)
	default:
		panic("cipher: salsa20 key must be 16 or 32 bytes")
	}

	s.state[0] = c[0]
	s.state[1] = binary.LittleEndian.Uint32(key[0:4])
	s.state[2] = binary.LittleEndian.Uint32(key[4:8])
	s.state[3] = binary.LittleEndian.Uint32(key[8:12])
	s.state[4] = binary.LittleEndian.Uint32(key[12:16])
	s.state[5] = c[1]
	s.state[6] = binary.LittleEndian.Uint32(iv[0:4])
	s.state[7] = binary.LittleEndian.Uint32(iv[4:8])
	s.state[8] = 0
	s.state[9] = 0
	s.state[10] = c[2]
	s.state[11] = binary.LittleEndian.Uint32(key[16:20])
	s.state[12] = binary.LittleEndian.Uint32(key[20:24])
	s.state[13] = binary.LittleEndian.Uint32(key[24:28])
	s.state[14] = binary.LittleEndian.Uint32(key[28:32])
	s.state[15] = c[3]

	return s
}

func quarterround(y0, y1, y2, y3 uint32) (uint32, uint32, uint32, uint32) {
	y1 ^= rol(y0+y3, 7)
	y2 ^= rol(y1+y0, 9)
	y3 ^= rol(y2+y1, 13)
	y0 ^= rol(y3+y2, 18)
	return y0, y1, y2, y3
}

func (s *Salsa20Stream) generateBlock() {
	x := s.state

	for i := 0; i < s.rounds/2; i++ {
		x[0], x[4], x[8], x[12] = quarterround(x[0], x[4], x[8], x[12])
		x[5], x[9], x[13], x[1] = quarterround(x[5], x[9], x[13], x[1])
		x[10], x[14], x[2], x[6] = quarterround(x[10], x[14], x[2], x[6])
		x[15], x[3], x[7], x[11] = quarterround(x[15], x[3], x[7], x[11])

		x[0], x[1], x[2], x[3] = quarterround(x[0], x[1], x[2], x[3])
		x[5], x[6], x[7], x[4] = quarterround(x[5], x[6], x[7], x[4])
		x[10], x[11], x[8], x[9] = quarterround(x[10], x[11], x[8], x[9])
		x[15], x[12], x[13], x[14] = quarterround(x[15], x[12], x[13], x[14])
	}

	for i := 0; i < 16; i++ {
		binary.LittleEndian.PutUint32(s.block[i*4:], x[i]+s.state[i])
	}

	s.state[8]++
	if s.state[8] == 0 {
		s.state[9]++
	}
	s.blockOn = 0
}

// XORKeyStream XORs src with the Salsa20 keystream, writing to dst. Because
// encrypt and decrypt are the same operation for a stream cipher, this is
// used for both directions in the MDict reader.
func (s *Salsa20Stream) XORKeyStream(dst, src []byte) {
	for i := range src {
		if s.blockOn == 64 {
			s.generateBlock()
		}
		dst[i] = src[i] ^ s.block[s.blockOn]
		s.blockOn++
	}
}

// Salsa20_8 encrypts (== decrypts) data with an all-zero 8-byte IV and 8
// rounds, per the MDict passcode and prelude encryption scheme.
func Salsa20_8(key, data []byte) []byte {
	out := make([]byte, len(data))
	s := NewSalsa20(key, make([]byte, 8), 8)
	s.XORKeyStream(out, data)
	return out
}
