// Package recordindex reads the record-block table that follows the last
// key block and builds the per-key Index records that pin down exactly
// where each key's payload lives in the decompressed record stream.
package recordindex

import (
	"fmt"

	"github.com/EricWvi/ldoce/internal/codec"
	"github.com/EricWvi/ldoce/internal/keyindex"
	"github.com/EricWvi/ldoce/internal/mderr"
	"github.com/EricWvi/ldoce/internal/mdxheader"
)

// BlockInfo is one record block's compressed/decompressed size pair, per
// spec §3 ("Record-block-info item").
type BlockInfo struct {
	CompressedSize   uint64
	DecompressedSize uint64
}

// Prelude is the 4-counter header immediately following the last key block.
type Prelude struct {
	NumRecordBlocks     uint64
	NumEntries          uint64
	RecordBlockInfoSize uint64
	RecordBlockSize     uint64
}

// DecodePrelude reads the 4 fixed-width counters that open the record
// section, per spec §4.4.
func DecodePrelude(b []byte, ver mdxheader.Version) (Prelude, int, error) {
	w := ver.NumberWidth()
	if len(b) < 4*w {
		return Prelude{}, 0, fmt.Errorf("%w: record section prelude truncated", mderr.CorruptArchive)
	}
	p := Prelude{
		NumRecordBlocks:     ver.ReadNumber(b[0*w : 1*w]),
		NumEntries:          ver.ReadNumber(b[1*w : 2*w]),
		RecordBlockInfoSize: ver.ReadNumber(b[2*w : 3*w]),
		RecordBlockSize:     ver.ReadNumber(b[3*w : 4*w]),
	}
	return p, 4 * w, nil
}

// DecodeBlockInfo parses the num_record_blocks (compressed_size,
// decompressed_size) pairs following the prelude, and validates that their
// total matches recordBlockInfoSize.
func DecodeBlockInfo(b []byte, ver mdxheader.Version, numRecordBlocks, recordBlockInfoSize uint64) ([]BlockInfo, error) {
	w := ver.NumberWidth()
	need := int(numRecordBlocks) * 2 * w
	if len(b) < need {
		return nil, fmt.Errorf("%w: record-block-info truncated", mderr.CorruptArchive)
	}

	list := make([]BlockInfo, 0, numRecordBlocks)
	pos := 0
	for i := uint64(0); i < numRecordBlocks; i++ {
		compressed := ver.ReadNumber(b[pos : pos+w])
		pos += w
		decompressed := ver.ReadNumber(b[pos : pos+w])
		pos += w
		list = append(list, BlockInfo{CompressedSize: compressed, DecompressedSize: decompressed})
	}

	if uint64(pos) != recordBlockInfoSize {
		return nil, fmt.Errorf("%w: record-block-info size %d != declared %d", mderr.CorruptArchive, pos, recordBlockInfoSize)
	}
	return list, nil
}

// IndexRecord is the public per-key lookup descriptor, per spec §3.
type IndexRecord struct {
	FilePos          int64
	CompressedSize   uint64
	DecompressedSize uint64
	BlockType        codec.BlockType
	RecordStart      uint64
	RecordEnd        uint64
	IntraBlockOffset uint64
	KeyText          string
}

// Build walks the record blocks and the key list together, assigning each
// key to the block whose decompressed span contains its record_offset, per
// spec §4.4. recordSection is the file data starting at the first record
// block's type tag; recordSectionFilePos is that position's absolute offset
// in the archive (used to populate IndexRecord.FilePos). When verify is
// true, every block is decompressed and checksummed as it is walked;
// a failure there is fatal to the whole call (spec §7: "Record-block errors
// during index(verify=true) are fatal").
func Build(recordSection []byte, recordSectionFilePos int64, blocks []BlockInfo, keys []keyindex.Entry, decoders codec.Decoders, recordBlockSize uint64, verify bool) ([]IndexRecord, error) {
	var records []IndexRecord
	var offset uint64
	var compressedTotal uint64
	pos := 0
	keyIdx := 0

	for blockIdx, bi := range blocks {
		filePos := recordSectionFilePos + int64(pos)
		end := pos + int(bi.CompressedSize)
		if end > len(recordSection) {
			return nil, fmt.Errorf("%w: record block %d exceeds record section", mderr.CorruptArchive, blockIdx)
		}
		block := recordSection[pos:end]

		bt, checksum, body, err := codec.ReadBlockHeader(block)
		if err != nil {
			return nil, err
		}

		if verify {
			decompressed, err := decoders.Decompress(bt, body, int(bi.DecompressedSize), checksum)
			if err != nil {
				return nil, fmt.Errorf("record block %d: %w", blockIdx, err)
			}
			if uint64(len(decompressed)) != bi.DecompressedSize {
				return nil, fmt.Errorf("%w: record block %d decompressed to %d bytes, want %d", mderr.CorruptArchive, blockIdx, len(decompressed), bi.DecompressedSize)
			}
		}

		for keyIdx < len(keys) && keys[keyIdx].RecordOffset-offset < bi.DecompressedSize {
			recordStart := keys[keyIdx].RecordOffset
			var recordEnd uint64
			if keyIdx+1 < len(keys) {
				recordEnd = keys[keyIdx+1].RecordOffset
			} else {
				recordEnd = offset + bi.DecompressedSize
			}

			records = append(records, IndexRecord{
				FilePos:          filePos,
				CompressedSize:   bi.CompressedSize,
				DecompressedSize: bi.DecompressedSize,
				BlockType:        bt,
				RecordStart:      recordStart,
				RecordEnd:        recordEnd,
				IntraBlockOffset: offset,
				KeyText:          keys[keyIdx].KeyText,
			})
			keyIdx++
		}

		offset += bi.DecompressedSize
		compressedTotal += bi.CompressedSize
		pos = end
	}

	if compressedTotal != recordBlockSize {
		return nil, fmt.Errorf("%w: record block compressed sizes sum to %d, want record_block_size %d", mderr.CorruptArchive, compressedTotal, recordBlockSize)
	}

	return records, nil
}
