// Package keyindex reconstructs the sorted key list: decoding the compact
// key-block-info descriptor, decompressing and splitting the key blocks it
// describes, and the brutal-force recovery scan used when the prelude is
// unreadable.
package keyindex

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/adler32"

	"github.com/EricWvi/ldoce/internal/cipher"
	"github.com/EricWvi/ldoce/internal/mderr"
	"github.com/EricWvi/ldoce/internal/mdxheader"
)

// BlockInfo is one key block's compressed/decompressed size pair, per
// spec §3 ("Key-block-info item").
type BlockInfo struct {
	CompressedSize   uint64
	DecompressedSize uint64
}

// DecodeBlockInfo parses the key-block-info blob into a list of BlockInfo.
// For version 2 archives, blob is the raw bytes read from the file
// (optionally fast_decrypt-obfuscated and always zlib-wrapped); for version
// 1 it is used exactly as read. If wantEntries is non-nil, the sum of
// entries-in-block across the list must equal *wantEntries or the decode is
// rejected (spec §3 invariant: "Σ entries-in-keyblocks == num_entries").
func DecodeBlockInfo(blob []byte, ver mdxheader.Version, encrypted int, encoding string, wantEntries *uint64) ([]BlockInfo, error) {
	info := blob
	if ver == mdxheader.V2 {
		if len(blob) < 8 {
			return nil, fmt.Errorf("%w: key-block-info blob shorter than 8 bytes", mderr.CorruptArchive)
		}
		if encrypted&0x02 != 0 {
			blob = cipher.MdxDecrypt(blob)
		}
		if !bytes.Equal(blob[:4], []byte{0x02, 0x00, 0x00, 0x00}) {
			return nil, fmt.Errorf("%w: key-block-info missing zlib marker", mderr.CorruptArchive)
		}
		wantAdler := binary.BigEndian.Uint32(blob[4:8])

		decompressed, err := zlibInflate(blob[8:])
		if err != nil {
			return nil, fmt.Errorf("%w: key-block-info zlib: %v", mderr.CorruptArchive, err)
		}
		if got := adler32.Checksum(decompressed); got != wantAdler {
			return nil, fmt.Errorf("%w: key-block-info adler32 mismatch (want %08x got %08x)", mderr.CorruptArchive, wantAdler, got)
		}
		info = decompressed
	}

	numberWidth := ver.NumberWidth()
	byteWidth := 1
	term := 0
	if ver == mdxheader.V2 {
		byteWidth = 2
		term = 1
	}
	unit := 1
	if encoding == "UTF-16" {
		unit = 2
	}

	var list []BlockInfo
	var entriesTotal uint64
	i := 0
	for i < len(info) {
		if i+numberWidth > len(info) {
			return nil, fmt.Errorf("%w: key-block-info truncated reading entry count", mderr.CorruptArchive)
		}
		entriesInBlock := ver.ReadNumber(info[i : i+numberWidth])
		i += numberWidth

		headSize, n, err := readByteWidth(info, i, byteWidth)
		if err != nil {
			return nil, err
		}
		i = n
		i += (headSize + term) * unit

		tailSize, n, err := readByteWidth(info, i, byteWidth)
		if err != nil {
			return nil, err
		}
		i = n
		i += (tailSize + term) * unit

		if i+2*numberWidth > len(info) {
			return nil, fmt.Errorf("%w: key-block-info truncated reading sizes", mderr.CorruptArchive)
		}
		compressedSize := ver.ReadNumber(info[i : i+numberWidth])
		i += numberWidth
		decompressedSize := ver.ReadNumber(info[i : i+numberWidth])
		i += numberWidth

		entriesTotal += entriesInBlock
		list = append(list, BlockInfo{CompressedSize: compressedSize, DecompressedSize: decompressedSize})
	}

	if wantEntries != nil && entriesTotal != *wantEntries {
		return nil, fmt.Errorf("%w: key-block-info entry count %d != header num_entries %d", mderr.CorruptArchive, entriesTotal, *wantEntries)
	}

	return list, nil
}

func readByteWidth(b []byte, i, width int) (int, int, error) {
	if i+width > len(b) {
		return 0, 0, fmt.Errorf("%w: key-block-info truncated reading text size", mderr.CorruptArchive)
	}
	if width == 1 {
		return int(b[i]), i + 1, nil
	}
	return int(binary.BigEndian.Uint16(b[i : i+2])), i + 2, nil
}
