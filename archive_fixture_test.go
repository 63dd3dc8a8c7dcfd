package mdict_test

import (
	"bytes"
	"encoding/binary"
	"hash/adler32"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"

	"github.com/EricWvi/ldoce/internal/cipher"
	"github.com/EricWvi/ldoce/internal/mdxheader"
)

// fixtureKey is one (key text, record payload) pair used to assemble a
// synthetic archive in file order.
type fixtureKey struct {
	text    string
	payload []byte
}

// fixtureOpts configures a synthetic MDict archive built by buildArchive,
// covering the version/encoding/encryption/compression axes the format
// supports.
type fixtureOpts struct {
	version     mdxheader.Version
	isMDD       bool
	encoding    string // header Encoding attribute; .mdd forces UTF-16 regardless
	encrypt     int    // bitmask: bit0 salsa prelude, bit1 fast_decrypt key-block-info
	registerBy  string // "EMail" or a device id string
	regCode     []byte
	userID      []byte
	blockType   string // "raw" or "zlib", for both the key block and the record block
	keys        []fixtureKey
	title       string
	description string

	corruptPreludeAdler bool
	corruptRecordByte   bool
}

func utf16le(s string) []byte {
	b, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(s))
	if err != nil {
		panic(err)
	}
	return b
}

func numWidth(v mdxheader.Version) int {
	if v == mdxheader.V1 {
		return 4
	}
	return 8
}

func putNumber(v mdxheader.Version, n uint64) []byte {
	b := make([]byte, numWidth(v))
	if v == mdxheader.V1 {
		binary.BigEndian.PutUint32(b, uint32(n))
	} else {
		binary.BigEndian.PutUint64(b, n)
	}
	return b
}

func zlibCompress(t *testing.T, payload []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func buildCompressedBlock(t *testing.T, blockType string, decompressed []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	var adler [4]byte
	binary.BigEndian.PutUint32(adler[:], adler32.Checksum(decompressed))

	switch blockType {
	case "raw":
		buf.Write([]byte{0x00, 0x00, 0x00, 0x00})
		buf.Write(adler[:])
		buf.Write(decompressed)
	case "zlib":
		buf.Write([]byte{0x02, 0x00, 0x00, 0x00})
		buf.Write(adler[:])
		buf.Write(zlibCompress(t, decompressed))
	default:
		t.Fatalf("unsupported fixture block type %q", blockType)
	}
	return buf.Bytes()
}

// buildArchive assembles a full MDict file per the on-disk layout in spec
// §6 and writes it to a temp file, returning its path.
func buildArchive(t *testing.T, o fixtureOpts) string {
	t.Helper()

	headerEncoding := o.encoding
	if o.isMDD {
		headerEncoding = "UTF-16"
	}

	attrs := map[string]string{
		"GeneratedByEngineVersion": "2.0",
		"Encoding":                 headerEncoding,
	}
	if o.version == mdxheader.V1 {
		attrs["GeneratedByEngineVersion"] = "1.2"
	}
	if o.encrypt != 0 {
		attrs["Encrypted"] = itoa(o.encrypt)
	}
	if o.registerBy != "" {
		attrs["RegisterBy"] = o.registerBy
	}
	if o.title != "" {
		attrs["Title"] = o.title
	}
	if o.description != "" {
		attrs["Description"] = o.description
	}

	headerBlock := buildHeaderBlock(attrs)

	unit := 1
	if headerEncoding == "UTF-16" {
		unit = 2
	}
	term := 0
	if o.version == mdxheader.V2 {
		term = 1
	}
	byteWidth := 1
	if o.version == mdxheader.V2 {
		byteWidth = 2
	}

	// Assign record_offset by concatenating payloads in key order.
	var recordStream bytes.Buffer
	offsets := make([]uint64, len(o.keys))
	for i, k := range o.keys {
		offsets[i] = uint64(recordStream.Len())
		recordStream.Write(k.payload)
	}

	// Build a single key block holding every key.
	var keyBlockPlain bytes.Buffer
	for i, k := range o.keys {
		keyBlockPlain.Write(putNumber(o.version, offsets[i]))
		if headerEncoding == "UTF-16" {
			keyBlockPlain.Write(utf16le(k.text))
			keyBlockPlain.Write(make([]byte, unit)) // NUL terminator, unit-wide
		} else {
			keyBlockPlain.WriteString(k.text)
			keyBlockPlain.WriteByte(0)
		}
	}
	keyBlock := buildCompressedBlock(t, o.blockType, keyBlockPlain.Bytes())

	// Key-block-info: one entry describing the single key block above.
	var infoPlain bytes.Buffer
	infoPlain.Write(putNumber(o.version, uint64(len(o.keys))))
	infoPlain.Write(widthBytes(byteWidth, 0)) // head_text_size
	infoPlain.Write(make([]byte, term*unit))
	infoPlain.Write(widthBytes(byteWidth, 0)) // tail_text_size
	infoPlain.Write(make([]byte, term*unit))
	infoPlain.Write(putNumber(o.version, uint64(len(keyBlock))))
	infoPlain.Write(putNumber(o.version, uint64(keyBlockPlain.Len())))

	var infoBlob []byte
	if o.version == mdxheader.V2 {
		wrapped := infoPlain.Bytes()
		if o.encrypt&0x02 != 0 {
			// mdx_decrypt turns header(4 marker + 4 adler) || fastEncrypt(zlib(body), key)
			// back into header || zlib(body). So to construct the on-disk form we
			// zlib-compress, prepend marker+adler, then apply fastEncryptBlob (the
			// inverse of fast_decrypt) to everything past the 8-byte header with the
			// same key MdxDecrypt will re-derive.
			compressed := zlibCompress(t, wrapped)
			var plain bytes.Buffer
			plain.Write([]byte{0x02, 0x00, 0x00, 0x00})
			var adler [4]byte
			binary.BigEndian.PutUint32(adler[:], adler32.Checksum(wrapped))
			plain.Write(adler[:])
			plain.Write(compressed)
			infoBlob = fastEncryptBlob(plain.Bytes())
		} else {
			compressed := zlibCompress(t, wrapped)
			var buf bytes.Buffer
			buf.Write([]byte{0x02, 0x00, 0x00, 0x00})
			var adler [4]byte
			binary.BigEndian.PutUint32(adler[:], adler32.Checksum(wrapped))
			buf.Write(adler[:])
			buf.Write(compressed)
			infoBlob = buf.Bytes()
		}
	} else {
		infoBlob = infoPlain.Bytes()
	}

	numCounters := 4
	if o.version == mdxheader.V2 {
		numCounters = 5
	}
	var prelude bytes.Buffer
	prelude.Write(putNumber(o.version, 1)) // num_key_blocks
	prelude.Write(putNumber(o.version, uint64(len(o.keys))))
	if o.version == mdxheader.V2 {
		prelude.Write(putNumber(o.version, uint64(infoPlain.Len()))) // key_block_info_decompressed_size
	}
	prelude.Write(putNumber(o.version, uint64(len(infoBlob))))
	prelude.Write(putNumber(o.version, uint64(len(keyBlock))))
	require.Equal(t, numCounters*numWidth(o.version), prelude.Len())

	preludeBytes := prelude.Bytes()
	if o.encrypt&0x01 != 0 {
		key := passcodeKeyForTest(o.registerBy, o.regCode, o.userID)
		preludeBytes = cipher.Salsa20_8(key, preludeBytes)
	}

	var keySection bytes.Buffer
	keySection.Write(preludeBytes)
	if o.version == mdxheader.V2 {
		var adler [4]byte
		want := adler32.Checksum(prelude.Bytes())
		if o.corruptPreludeAdler {
			want ^= 0xFFFFFFFF
		}
		binary.BigEndian.PutUint32(adler[:], want)
		keySection.Write(adler[:])
	}
	keySection.Write(infoBlob)
	keySection.Write(keyBlock)

	// Record section: a single record block holding the whole stream.
	recordBlock := buildCompressedBlock(t, o.blockType, recordStream.Bytes())
	if o.corruptRecordByte && len(recordBlock) > 9 {
		recordBlock[len(recordBlock)-1] ^= 0xFF
	}

	var recordSection bytes.Buffer
	recordSection.Write(putNumber(o.version, 1)) // num_record_blocks
	recordSection.Write(putNumber(o.version, uint64(len(o.keys))))
	recordSection.Write(putNumber(o.version, uint64(2*numWidth(o.version)))) // record_block_info_size
	recordSection.Write(putNumber(o.version, uint64(len(recordBlock))))
	recordSection.Write(putNumber(o.version, uint64(len(recordBlock))))     // compressed_size
	recordSection.Write(putNumber(o.version, uint64(recordStream.Len())))  // decompressed_size
	recordSection.Write(recordBlock)

	var file bytes.Buffer
	file.Write(headerBlock)
	file.Write(keySection.Bytes())
	file.Write(recordSection.Bytes())

	ext := ".mdx"
	if o.isMDD {
		ext = ".mdd"
	}
	path := filepath.Join(t.TempDir(), "fixture"+ext)
	require.NoError(t, os.WriteFile(path, file.Bytes(), 0o644))
	return path
}

func widthBytes(width int, n uint16) []byte {
	b := make([]byte, width)
	if width == 1 {
		b[0] = byte(n)
	} else {
		binary.BigEndian.PutUint16(b, n)
	}
	return b
}

func buildHeaderBlock(attrs map[string]string) []byte {
	var sb bytes.Buffer
	for k, v := range attrs {
		sb.WriteString(k)
		sb.WriteString(`="`)
		sb.WriteString(v)
		sb.WriteString(`" `)
	}
	payload := append(utf16le(sb.String()), 0, 0)

	var buf bytes.Buffer
	var sizeBuf [4]byte
	binary.BigEndian.PutUint32(sizeBuf[:], uint32(len(payload)))
	buf.Write(sizeBuf[:])
	buf.Write(payload)

	var adlerBuf [4]byte
	binary.LittleEndian.PutUint32(adlerBuf[:], adler32.Checksum(payload))
	buf.Write(adlerBuf[:])
	return buf.Bytes()
}

// fastEncryptBlob applies the mathematical inverse of cipher.FastDecrypt to
// the ciphertext-shaped body of blob[8:], so that cipher.MdxDecrypt(blob)
// recovers blob unmodified (modulo the encrypted region). See
// fastdecrypt_test.go in internal/cipher for the derivation.
func fastEncryptBlob(blob []byte) []byte {
	var salt [4]byte
	binary.LittleEndian.PutUint32(salt[:], 0x3695)
	key := cipher.Sum128(append(append([]byte{}, blob[4:8]...), salt[:]...))

	plain := blob[8:]
	out := make([]byte, len(plain))
	var previous byte = 0x36
	for i, p := range plain {
		c := rotateNibbles(p ^ previous ^ byte(i&0xFF) ^ key[i%len(key)])
		out[i] = c
		previous = c
	}

	result := make([]byte, len(blob))
	copy(result[:8], blob[:8])
	copy(result[8:], out)
	return result
}

func rotateNibbles(b byte) byte {
	return ((b >> 4) | (b << 4)) & 0xFF
}

func passcodeKeyForTest(registerBy string, regCode, userID []byte) []byte {
	if registerBy == "EMail" {
		return cipher.RegcodeKeyByEmail(regCode, userID)
	}
	return cipher.RegcodeKeyByDeviceID(regCode, userID)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	if neg {
		b = append([]byte{'-'}, b...)
	}
	return string(b)
}
