package keyindex

import (
	"bytes"
	"fmt"

	"github.com/EricWvi/ldoce/internal/mderr"
	"github.com/EricWvi/ldoce/internal/mdxheader"
)

const brutalForceScanChunk = 1024

// BrutalForce re-scans the key section from scratch when the normal prelude
// read fails (corrupt Adler-32, implausible counters, failed decrypt). It
// re-seeks to keySectionOffset, skips the fixed-size prelude, takes the
// first 8 bytes of the key-block-info blob as-is, and scans forward from
// there for the type tag of the first key block (v2.0: the zlib tag
// 02 00 00 00; v1.0: the LZO tag 01 00 00 00). Everything before that tag
// is returned as the key-block-info blob — the original MDict reader's
// recovery heuristic, including its assumption that the first key block
// is zlib-compressed (v2.0) or LZO-compressed (v1.0).
func BrutalForce(data []byte, keySectionOffset int64, ver mdxheader.Version) (infoBlob []byte, keyBlockStart int64, err error) {
	var preludeSkip int64
	var marker []byte
	if ver == mdxheader.V2 {
		preludeSkip = 5*8 + 4 // 5 counters + trailing Adler-32
		marker = []byte{0x02, 0x00, 0x00, 0x00}
	} else {
		preludeSkip = 4 * 4
		marker = []byte{0x01, 0x00, 0x00, 0x00}
	}

	pos := keySectionOffset + preludeSkip
	if pos+8 > int64(len(data)) {
		return nil, 0, fmt.Errorf("%w: brutal-force scan ran past end of file", mderr.IoError)
	}

	infoBlob = append([]byte{}, data[pos:pos+8]...)
	pos += 8

	for {
		if pos >= int64(len(data)) {
			return nil, 0, fmt.Errorf("%w: brutal-force scan found no key block marker", mderr.CorruptArchive)
		}
		chunkEnd := pos + brutalForceScanChunk
		if chunkEnd > int64(len(data)) {
			chunkEnd = int64(len(data))
		}
		chunk := data[pos:chunkEnd]

		if idx := bytes.Index(chunk, marker); idx != -1 {
			infoBlob = append(infoBlob, chunk[:idx]...)
			pos += int64(idx)
			break
		}
		infoBlob = append(infoBlob, chunk...)
		pos = chunkEnd
	}

	return infoBlob, pos, nil
}
