package mdict

import (
	"fmt"

	"github.com/EricWvi/ldoce/internal/codec"
	"github.com/EricWvi/ldoce/internal/mderr"
	"github.com/EricWvi/ldoce/internal/mdxheader"
	"github.com/EricWvi/ldoce/internal/recordindex"
)

// MDXIndex is the .mdx shape of Index's return value: the per-key records
// plus archive metadata, per spec §6.
type MDXIndex struct {
	Index       []recordindex.IndexRecord
	Encoding    string
	Stylesheet  map[string][2]string
	Title       string
	Description string
}

// Index returns the per-key record index. When verify is true, every record
// block is re-decompressed and checksummed as it is walked; any mismatch is
// fatal to the call, per spec §7. For .mdd archives the return value is the
// plain record slice; for .mdx it is wrapped in an MDXIndex with archive
// metadata.
func (a *Archive) Index(verify bool) (any, error) {
	if !verify {
		if a.kind == MDD {
			return a.records, nil
		}
		return a.mdxIndex(a.records), nil
	}

	records, err := recordindex.Build(a.recordSection, a.recordSectionFilePos, a.recordBlocks, a.keys, a.decoders, a.recordBlockSize, true)
	if err != nil {
		return nil, err
	}

	if a.kind == MDD {
		return records, nil
	}
	return a.mdxIndex(records), nil
}

func (a *Archive) mdxIndex(records []recordindex.IndexRecord) MDXIndex {
	return MDXIndex{
		Index:       records,
		Encoding:    a.header.Encoding,
		Stylesheet:  a.header.Stylesheet,
		Title:       a.header.Title,
		Description: a.header.Description,
	}
}

// Lookup resolves key to its (possibly empty, possibly multi-valued) list of
// payloads, per spec §4.5/§6: for .mdx archives each payload is decoded text
// in the archive's declared encoding, re-encoded as UTF-8; for .mdd archives
// payloads are returned untouched as raw bytes.
func (a *Archive) Lookup(key string) ([][]byte, error) {
	payloads, err := a.rawLookup(key)
	if err != nil {
		return nil, err
	}
	if a.kind == MDD {
		return payloads, nil
	}

	out := make([][]byte, len(payloads))
	for i, p := range payloads {
		out[i] = []byte(mdxheader.DecodeLenient(p, a.header.Encoding))
	}
	return out, nil
}

// rawLookup resolves key to its list of payloads exactly as stored in the
// record section, with no text decoding applied.
func (a *Archive) rawLookup(key string) ([][]byte, error) {
	var out [][]byte
	for _, r := range a.records {
		if r.KeyText != key {
			continue
		}
		payload, err := a.extract(r)
		if err != nil {
			return nil, fmt.Errorf("lookup %q: %w", key, err)
		}
		out = append(out, payload)
	}
	return out, nil
}

// extract decompresses the record block backing r and slices out r's
// payload, verifying the block's Adler-32 in the process (spec §4.5).
func (a *Archive) extract(r recordindex.IndexRecord) ([]byte, error) {
	blockStart := r.FilePos - a.recordSectionFilePos
	if blockStart < 0 || blockStart+int64(r.CompressedSize) > int64(len(a.recordSection)) {
		return nil, fmt.Errorf("%w: index record file_pos out of range", mderr.CorruptArchive)
	}
	block := a.recordSection[blockStart : blockStart+int64(r.CompressedSize)]

	bt, checksum, body, err := codec.ReadBlockHeader(block)
	if err != nil {
		return nil, err
	}
	if bt != r.BlockType {
		return nil, fmt.Errorf("%w: record block type changed since indexing", mderr.CorruptArchive)
	}

	decompressed, err := a.decoders.Decompress(bt, body, int(r.DecompressedSize), checksum)
	if err != nil {
		return nil, err
	}

	start := r.RecordStart - r.IntraBlockOffset
	end := r.RecordEnd - r.IntraBlockOffset
	if end > uint64(len(decompressed)) || start > end {
		return nil, fmt.Errorf("%w: record bounds [%d:%d] exceed decompressed block of length %d", mderr.CorruptArchive, start, end, len(decompressed))
	}

	return decompressed[start:end], nil
}

// LookupText is a convenience for .mdx archives: it resolves key and decodes
// each payload with the archive's declared encoding, using lenient
// replacement for invalid sequences, returning string instead of Lookup's
// UTF-8-encoded []byte.
func (a *Archive) LookupText(key string) ([]string, error) {
	payloads, err := a.rawLookup(key)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(payloads))
	for i, p := range payloads {
		out[i] = mdxheader.DecodeLenient(p, a.header.Encoding)
	}
	return out, nil
}
