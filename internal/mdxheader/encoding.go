package mdxheader

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// normalizeEncoding maps the header's declared Encoding attribute to the
// canonical name the reader uses internally, per spec §3: GBK/GB2312 fold
// into GB18030, the zero value (no Encoding attribute) becomes UTF-8, and
// everything else is upper-cased.
func normalizeEncoding(enc string) string {
	switch strings.ToUpper(enc) {
	case "GBK", "GB2312":
		return "GB18030"
	case "":
		return "UTF-8"
	default:
		return strings.ToUpper(enc)
	}
}

func decoderFor(enc string) encoding.Encoding {
	switch enc {
	case "UTF-16":
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	case "GB18030":
		return simplifiedchinese.GB18030
	case "BIG5":
		return traditionalchinese.Big5
	default:
		return nil // UTF-8, passthrough
	}
}

// DecodeLenient decodes data from enc to UTF-8, replacing byte sequences the
// codec cannot map with U+FFFD instead of failing outright (spec §4.3: key
// text decoding uses "lenient error handling (replace/ignore invalid
// sequences)").
func DecodeLenient(data []byte, enc string) string {
	e := decoderFor(enc)
	if e == nil {
		return strings.ToValidUTF8(string(data), string(utf8.RuneError))
	}

	var sb strings.Builder
	dec := e.NewDecoder()
	rest := data
	for len(rest) > 0 {
		out, n, err := transform.Bytes(dec, rest)
		sb.Write(out)
		if err == nil {
			break
		}
		if n <= 0 {
			n = 1
		}
		sb.WriteRune(utf8.RuneError)
		rest = rest[n:]
		if len(rest) > 0 {
			rest = rest[1:]
		}
		dec.Reset()
	}
	return sb.String()
}

// decodeStrict decodes data from enc to UTF-8, used for the header blob
// itself where a malformed header is a CorruptHeader, not something to
// paper over.
func decodeStrict(data []byte, enc string) (string, error) {
	e := decoderFor(enc)
	if e == nil {
		return string(data), nil
	}
	out, err := e.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
