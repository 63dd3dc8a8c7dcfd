package cipher

import "encoding/binary"

// FastDecrypt reverses the custom byte-permutation cipher MDict uses to
// obfuscate the key-block-info blob (Encrypted bit 1). It mutates nothing;
// the permutation is applied into a freshly allocated slice.
func FastDecrypt(data, key []byte) []byte {
	out := make([]byte, len(data))
	var previous byte = 0x36
	for i, b := range data {
		t := rotateNibbles(b)
		t ^= previous ^ byte(i&0xFF) ^ key[i%len(key)]
		previous = b
		out[i] = t
	}
	return out
}

func rotateNibbles(b byte) byte {
	return ((b >> 4) | (b << 4)) & 0xFF
}

// MdxDecrypt decrypts an 8-byte-header compressed block whose ciphertext is
// obfuscated with FastDecrypt. The key is derived from the block's own
// Adler-32 field, per the MDict key-block-info encryption scheme.
func MdxDecrypt(block []byte) []byte {
	var salt [4]byte
	binary.LittleEndian.PutUint32(salt[:], 0x3695)
	key := Sum128(append(append([]byte{}, block[4:8]...), salt[:]...))

	out := make([]byte, len(block))
	copy(out[:8], block[:8])
	copy(out[8:], FastDecrypt(block[8:], key[:]))
	return out
}

// RegcodeKeyByEmail derives the Salsa20 passcode key from a registration
// code and the user's email address (RegisterBy=EMail).
func RegcodeKeyByEmail(regCode, email []byte) []byte {
	utf16le := toUTF16LE(email)
	digest := Sum128(utf16le)
	return Salsa20_8(digest[:], regCode)
}

// RegcodeKeyByDeviceID derives the Salsa20 passcode key from a registration
// code and a device identifier (any RegisterBy value other than EMail).
func RegcodeKeyByDeviceID(regCode, deviceID []byte) []byte {
	digest := Sum128(deviceID)
	return Salsa20_8(digest[:], regCode)
}

// toUTF16LE encodes ASCII/UTF-8 text as UTF-16LE for the RIPEMD-128 email
// digest; MDict registration emails are plain ASCII in practice, so a
// rune-by-rune BMP encoding is sufficient here without pulling in a text
// codec for this single call site.
func toUTF16LE(s []byte) []byte {
	out := make([]byte, 0, len(s)*2)
	for _, r := range string(s) {
		if r < 0x10000 {
			out = append(out, byte(r), byte(r>>8))
			continue
		}
		r -= 0x10000
		hi := 0xD800 + (r >> 10)
		lo := 0xDC00 + (r & 0x3FF)
		out = append(out, byte(hi), byte(hi>>8), byte(lo), byte(lo>>8))
	}
	return out
}
