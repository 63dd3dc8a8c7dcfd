package keyindex

import (
	"fmt"
	"strings"

	"github.com/EricWvi/ldoce/internal/codec"
	"github.com/EricWvi/ldoce/internal/mderr"
	"github.com/EricWvi/ldoce/internal/mdxheader"
)

// Entry is one (record_offset, key_text) pair from the key list, per
// spec §3 ("Key entry").
type Entry struct {
	RecordOffset uint64
	KeyText      string
}

// DecodeKeyBlocks walks keyBlockData (the concatenated, still-compressed key
// blocks) according to info, decompressing and splitting each one into key
// entries.
func DecodeKeyBlocks(keyBlockData []byte, info []BlockInfo, decoders codec.Decoders, ver mdxheader.Version, encoding string) ([]Entry, error) {
	var entries []Entry
	pos := 0
	for idx, it := range info {
		end := pos + int(it.CompressedSize)
		if end > len(keyBlockData) {
			return nil, fmt.Errorf("%w: key block %d exceeds key_block_size", mderr.CorruptArchive, idx)
		}
		block := keyBlockData[pos:end]

		bt, checksum, body, err := codec.ReadBlockHeader(block)
		if err != nil {
			return nil, err
		}

		decompressed, err := decoders.Decompress(bt, body, int(it.DecompressedSize), checksum)
		if err != nil {
			return nil, fmt.Errorf("key block %d: %w", idx, err)
		}

		split := SplitKeyBlock(decompressed, ver, encoding)
		entries = append(entries, split...)

		pos = end
	}
	return entries, nil
}

// SplitKeyBlock decodes one decompressed key block into (record_offset,
// key_text) entries, per spec §4.3 ("Split a key block"). Each record is
// [number][encoded key text][NUL terminator], the terminator being one NUL
// byte, or two for UTF-16 encoded text.
func SplitKeyBlock(block []byte, ver mdxheader.Version, encoding string) []Entry {
	numberWidth := ver.NumberWidth()
	width := 1
	if encoding == "UTF-16" {
		width = 2
	}

	var entries []Entry
	i := 0
	for i < len(block) {
		if i+numberWidth > len(block) {
			break
		}
		recordOffset := ver.ReadNumber(block[i : i+numberWidth])
		i += numberWidth

		start := i
		end := len(block)
		for j := i; j+width <= len(block); j += width {
			if isZero(block[j : j+width]) {
				end = j
				break
			}
		}

		keyText := strings.TrimSpace(mdxheader.DecodeLenient(block[start:end], encoding))
		entries = append(entries, Entry{RecordOffset: recordOffset, KeyText: keyText})

		i = end + width
	}
	return entries
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
