package codec

import (
	"bytes"
	"hash/adler32"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/require"

	"github.com/EricWvi/ldoce/internal/mderr"
)

func zlibCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestParseBlockType(t *testing.T) {
	bt, err := ParseBlockType([]byte{0x00, 0x00, 0x00, 0x00})
	require.NoError(t, err)
	require.Equal(t, Raw, bt)

	bt, err = ParseBlockType([]byte{0x02, 0x00, 0x00, 0x00})
	require.NoError(t, err)
	require.Equal(t, Zlib, bt)

	_, err = ParseBlockType([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	require.ErrorIs(t, err, ErrUnsupportedCompression)
}

func TestDecodersRawAndZlib(t *testing.T) {
	d := NewDecoders()
	payload := []byte("<p>hi</p>")

	out, err := d.Decompress(Raw, payload, len(payload), adler32.Checksum(payload))
	require.NoError(t, err)
	require.Equal(t, payload, out)

	compressed := zlibCompress(t, payload)
	out, err = d.Decompress(Zlib, compressed, len(payload), adler32.Checksum(payload))
	require.NoError(t, err)
	require.Equal(t, payload, out)
}

func TestDecodersChecksumMismatch(t *testing.T) {
	d := NewDecoders()
	payload := []byte("hello")
	_, err := d.Decompress(Raw, payload, len(payload), 0xDEADBEEF)
	require.ErrorIs(t, err, ErrChecksumMismatch)
	require.ErrorIs(t, err, mderr.CorruptArchive)
}

func TestDecodersNoLZOSurfacesError(t *testing.T) {
	d := NewDecodersNoLZO()
	_, err := d.Decompress(LZO, []byte{1, 2, 3}, 10, 0)
	require.ErrorIs(t, err, ErrUnsupportedCompression)
	require.ErrorIs(t, err, mderr.UnsupportedCompression)
}

func TestParseBlockTypeWrapsTaxonomy(t *testing.T) {
	_, err := ParseBlockType([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	require.ErrorIs(t, err, mderr.UnsupportedCompression)
}

func TestReadBlockHeader(t *testing.T) {
	block := append([]byte{0x02, 0x00, 0x00, 0x00}, []byte{0x00, 0x00, 0x00, 0x2A}...)
	block = append(block, []byte{0x99, 0x88}...)

	bt, checksum, rest, err := ReadBlockHeader(block)
	require.NoError(t, err)
	require.Equal(t, Zlib, bt)
	require.Equal(t, uint32(0x2A), checksum)
	require.Equal(t, []byte{0x99, 0x88}, rest)
}
