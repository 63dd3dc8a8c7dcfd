package cipher

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// fastEncrypt is the mathematical inverse of FastDecrypt, used only to build
// synthetic encrypted fixtures in tests (producing real MDict archives is an
// explicit non-goal of the reader itself). Solving t = rot(data[i]) ^
// previous ^ i ^ key[i] for data[i] given the desired plaintext p[i] and the
// running ciphertext "previous" yields data[i] = rot(p[i] ^ previous ^ i ^
// key[i]), since rotateNibbles is an involution.
func fastEncrypt(plain, key []byte) []byte {
	out := make([]byte, len(plain))
	var previous byte = 0x36
	for i, p := range plain {
		c := rotateNibbles(p ^ previous ^ byte(i&0xFF) ^ key[i%len(key)])
		out[i] = c
		previous = c
	}
	return out
}

func TestFastDecryptRoundTrip(t *testing.T) {
	key := []byte{0xAB, 0xCD, 0xEF, 0x01}
	plain := []byte("the quick brown fox jumps over the lazy dog 0123456789")

	enc := fastEncrypt(plain, key)
	require.NotEqual(t, plain, enc)

	dec := FastDecrypt(enc, key)
	require.Equal(t, plain, dec)
}

func TestMdxDecryptRoundTrip(t *testing.T) {
	plain := append([]byte{0x02, 0x00, 0x00, 0x00, 0xAA, 0xBB, 0xCC, 0xDD}, []byte("some zlib body bytes go here")...)

	header := plain[:8]
	body := plain[8:]
	derived := Sum128(append(append([]byte{}, header[4:8]...), 0x95, 0x36, 0x00, 0x00))

	encBody := fastEncrypt(body, derived[:])
	blob := append(append([]byte{}, header...), encBody...)

	got := MdxDecrypt(blob)
	require.Equal(t, plain, got)
}
