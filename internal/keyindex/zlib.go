package keyindex

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"
)

// zlibInflate decompresses a zlib stream using klauspost/compress/zlib, the
// same faster drop-in the codec package uses for block bodies. It is kept
// separate from internal/codec's Decompressor because the key-block-info
// blob's Adler-32 is over the whole decompressed blob, checked by the
// caller, not per-call through codec.Decoders.
func zlibInflate(body []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
