// Package codec implements the MDict block decompression layer: a small
// Decompressor interface over the three block types the container format
// can carry (raw, zlib, LZO1X), plus the Adler-32 integrity check every
// block is stamped with.
package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/adler32"
	"io"

	lzo "github.com/anchore/go-lzo"
	"github.com/klauspost/compress/zlib"

	"github.com/EricWvi/ldoce/internal/mderr"
)

// BlockType identifies how a key or record block's body is compressed.
type BlockType uint8

const (
	Raw BlockType = iota
	LZO
	Zlib
)

func (t BlockType) String() string {
	switch t {
	case Raw:
		return "raw"
	case LZO:
		return "lzo"
	case Zlib:
		return "zlib"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// ErrUnsupportedCompression is returned when a block's type tag requests a
// codec that has no registered Decompressor (LZO without anchore/go-lzo, or
// an unrecognized tag). It always wraps mderr.UnsupportedCompression, so
// callers can match on either the package-local or the taxonomy sentinel.
var ErrUnsupportedCompression = errors.New("codec: unsupported compression")

// ErrChecksumMismatch is returned when a decompressed block's Adler-32 does
// not match the value stamped in its 4-byte header field, or when a block is
// otherwise malformed. It always wraps mderr.CorruptArchive.
var ErrChecksumMismatch = errors.New("codec: adler32 mismatch")

// ParseBlockType maps the 4-byte little-endian tag prefixing every
// compressed block to a BlockType, per the on-disk format in spec §6.
func ParseBlockType(tag []byte) (BlockType, error) {
	switch {
	case bytes.Equal(tag, []byte{0x00, 0x00, 0x00, 0x00}):
		return Raw, nil
	case bytes.Equal(tag, []byte{0x01, 0x00, 0x00, 0x00}):
		return LZO, nil
	case bytes.Equal(tag, []byte{0x02, 0x00, 0x00, 0x00}):
		return Zlib, nil
	default:
		return 0, fmt.Errorf("%w: %w: %w: unrecognized block type tag %x", mderr.CorruptArchive, mderr.UnsupportedCompression, ErrUnsupportedCompression, tag)
	}
}

// Decompressor inflates a compressed block body to its known decompressed
// size. Implementations are injected capabilities (§9 of the spec): the
// core never hardcodes the zlib or LZO library it uses.
type Decompressor interface {
	Decompress(body []byte, decompressedSize int) ([]byte, error)
}

// rawDecompressor is the identity transform for block type 0.
type rawDecompressor struct{}

func (rawDecompressor) Decompress(body []byte, decompressedSize int) ([]byte, error) {
	if len(body) != decompressedSize {
		return nil, fmt.Errorf("%w: %w: raw block length %d != declared %d", mderr.CorruptArchive, ErrChecksumMismatch, len(body), decompressedSize)
	}
	return body, nil
}

// zlibDecompressor wraps klauspost/compress/zlib, a drop-in faster
// implementation of the standard zlib codec the teacher already depends on
// for its own s2/zstd siblings.
type zlibDecompressor struct{}

func (zlibDecompressor) Decompress(body []byte, decompressedSize int) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: codec: zlib: %w", mderr.CorruptArchive, err)
	}
	defer r.Close()

	out := make([]byte, 0, decompressedSize)
	buf := bytes.NewBuffer(out)
	if _, err := io.Copy(buf, r); err != nil {
		return nil, fmt.Errorf("%w: codec: zlib: %w", mderr.CorruptArchive, err)
	}
	return buf.Bytes(), nil
}

// lzoDecompressor wraps github.com/anchore/go-lzo's LZO1X decompressor.
// When this decompressor is not registered with a Decoders set, LZO blocks
// surface ErrUnsupportedCompression instead of being silently skipped,
// matching spec §7's "surfaced not swallowed" requirement.
type lzoDecompressor struct{}

func (lzoDecompressor) Decompress(body []byte, decompressedSize int) ([]byte, error) {
	out, err := lzo.Decompress1X(bytes.NewReader(body), len(body), decompressedSize)
	if err != nil {
		return nil, fmt.Errorf("%w: codec: lzo: %w", mderr.CorruptArchive, err)
	}
	return out, nil
}

// Decoders is the set of Decompressors available to a reader, keyed by
// BlockType. NewDecoders wires in raw+zlib+lzo; NewDecodersNoLZO mirrors the
// original Python reader's behavior when its optional lzo module import
// fails.
type Decoders map[BlockType]Decompressor

// NewDecoders returns the full raw+zlib+LZO decoder set.
func NewDecoders() Decoders {
	return Decoders{
		Raw:  rawDecompressor{},
		Zlib: zlibDecompressor{},
		LZO:  lzoDecompressor{},
	}
}

// NewDecodersNoLZO returns a decoder set without LZO support, for
// environments that want LZO blocks to fail fast with
// ErrUnsupportedCompression.
func NewDecodersNoLZO() Decoders {
	return Decoders{
		Raw:  rawDecompressor{},
		Zlib: zlibDecompressor{},
	}
}

// Decompress inflates body (whose type is bt) to decompressedSize bytes and
// verifies it against wantAdler32, the big-endian Adler-32 stored in the
// block's 4-byte checksum field.
func (d Decoders) Decompress(bt BlockType, body []byte, decompressedSize int, wantAdler32 uint32) ([]byte, error) {
	dec, ok := d[bt]
	if !ok {
		return nil, fmt.Errorf("%w: %w: block type %s", mderr.UnsupportedCompression, ErrUnsupportedCompression, bt)
	}

	out, err := dec.Decompress(body, decompressedSize)
	if err != nil {
		return nil, err
	}

	if got := adler32.Checksum(out); got != wantAdler32 {
		return nil, fmt.Errorf("%w: %w: want %08x got %08x", mderr.CorruptArchive, ErrChecksumMismatch, wantAdler32, got)
	}
	return out, nil
}

// ReadBlockHeader parses the 8-byte header (4-byte type tag + 4-byte
// big-endian Adler-32) prefixing every compressed key/record block.
func ReadBlockHeader(block []byte) (BlockType, uint32, []byte, error) {
	if len(block) < 8 {
		return 0, 0, nil, fmt.Errorf("%w: %w: block shorter than 8-byte header", mderr.CorruptArchive, ErrChecksumMismatch)
	}
	bt, err := ParseBlockType(block[:4])
	if err != nil {
		return 0, 0, nil, err
	}
	checksum := binary.BigEndian.Uint32(block[4:8])
	return bt, checksum, block[8:], nil
}
