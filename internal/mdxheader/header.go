// Package mdxheader parses the UTF-16LE, XML-like header that opens every
// MDict archive: attribute extraction, version discrimination, encoding
// normalization and the (loosely validated) stylesheet mapping.
package mdxheader

import (
	"encoding/binary"
	"fmt"
	"hash/adler32"
	"regexp"
	"strconv"
	"strings"

	"github.com/EricWvi/ldoce/internal/mderr"
	"github.com/sirupsen/logrus"
)

// Version selects the on-disk field widths and key-block-info shape, per
// spec §3: "best modeled as a tagged variant V1 | V2 ... rather than
// threading version >= 2 checks everywhere."
type Version int

const (
	V1 Version = iota
	V2
)

// NumberWidth returns the byte width of every counter field for this
// version: 4 bytes (big-endian uint32) below 2.0, 8 bytes (big-endian
// uint64) at or above it.
func (v Version) NumberWidth() int {
	if v == V1 {
		return 4
	}
	return 8
}

// ReadNumber decodes one counter field of this version's width from b.
func (v Version) ReadNumber(b []byte) uint64 {
	if v == V1 {
		return uint64(binary.BigEndian.Uint32(b))
	}
	return binary.BigEndian.Uint64(b)
}

// PutNumber encodes one counter field of this version's width into b.
func (v Version) PutNumber(b []byte, n uint64) {
	if v == V1 {
		binary.BigEndian.PutUint32(b, uint32(n))
		return
	}
	binary.BigEndian.PutUint64(b, n)
}

// Header holds every attribute and derived field the key and record section
// parsers need.
type Header struct {
	Attrs       map[string]string
	Version     Version
	Encoding    string
	Encrypt     int
	Title       string
	Description string
	RegisterBy  string
	Stylesheet  map[string][2]string

	// KeySectionOffset is the file position immediately after the header's
	// Adler-32 checksum, where the key section begins.
	KeySectionOffset int64
}

var attrPattern = regexp.MustCompile(`(?s)(\w+)="(.*?)"`)

func unescapeEntities(s string) string {
	r := strings.NewReplacer("&lt;", "<", "&gt;", ">", "&quot;", `"`, "&amp;", "&")
	return r.Replace(s)
}

// Parse reads the header at the start of data (normally the full memory
// mapping of the archive) and returns the parsed Header; its
// KeySectionOffset field records where the key section begins.
func Parse(data []byte, isMDD bool, log *logrus.Entry) (*Header, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: file shorter than header length prefix", mderr.CorruptHeader)
	}

	headerSize := binary.BigEndian.Uint32(data[0:4])
	end := 4 + uint64(headerSize)
	if end+4 > uint64(len(data)) {
		return nil, fmt.Errorf("%w: header_size %d exceeds file length", mderr.CorruptHeader, headerSize)
	}

	headerBytes := data[4:end]
	checksum := binary.LittleEndian.Uint32(data[end : end+4])
	if got := adler32.Checksum(headerBytes); got != checksum {
		return nil, fmt.Errorf("%w: header adler32 mismatch (want %08x got %08x)", mderr.CorruptHeader, checksum, got)
	}

	// The trailing 2-byte NUL is part of the on-disk UTF-16LE encoding but
	// not part of the XML-like attribute text.
	xmlBytes := headerBytes
	if len(xmlBytes) >= 2 {
		xmlBytes = xmlBytes[:len(xmlBytes)-2]
	}
	headerText, err := decodeStrict(xmlBytes, "UTF-16")
	if err != nil {
		return nil, fmt.Errorf("%w: header is not valid UTF-16LE: %v", mderr.CorruptHeader, err)
	}

	attrs := make(map[string]string)
	for _, m := range attrPattern.FindAllStringSubmatch(headerText, -1) {
		attrs[m[1]] = unescapeEntities(m[2])
	}

	h := &Header{
		Attrs:            attrs,
		KeySectionOffset: int64(end) + 4,
		Stylesheet:       map[string][2]string{},
	}

	versionStr, ok := attrs["GeneratedByEngineVersion"]
	if !ok {
		return nil, fmt.Errorf("%w: missing GeneratedByEngineVersion", mderr.CorruptHeader)
	}
	versionNum, err := strconv.ParseFloat(versionStr, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid GeneratedByEngineVersion %q", mderr.CorruptHeader, versionStr)
	}
	if versionNum < 2.0 {
		h.Version = V1
	} else {
		h.Version = V2
	}

	if isMDD {
		h.Encoding = "UTF-16"
	} else {
		h.Encoding = normalizeEncoding(attrs["Encoding"])
	}

	switch enc := attrs["Encrypted"]; enc {
	case "", "No":
		h.Encrypt = 0
	case "Yes":
		h.Encrypt = 1
	default:
		n, err := strconv.Atoi(enc)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid Encrypted value %q", mderr.CorruptHeader, enc)
		}
		h.Encrypt = n
	}

	h.Title = attrs["Title"]
	h.Description = attrs["Description"]
	h.RegisterBy = attrs["RegisterBy"]

	if ss := attrs["StyleSheet"]; ss != "" {
		h.Stylesheet = parseStylesheet(ss, log)
	}

	return h, nil
}

// parseStylesheet groups the StyleSheet attribute's lines into
// {name, prefix, suffix} triples. Spec §9 preserves the original's
// assume-triples-without-validation behavior: a malformed (non-multiple-of-3)
// stylesheet silently truncates its trailing partial entry, with a warning
// surfaced through the logger rather than a hard failure.
func parseStylesheet(raw string, log *logrus.Entry) map[string][2]string {
	lines := splitLines(raw)
	out := make(map[string][2]string, len(lines)/3)
	for i := 0; i+2 < len(lines); i += 3 {
		out[lines[i]] = [2]string{lines[i+1], lines[i+2]}
	}
	if len(lines)%3 != 0 && log != nil {
		log.Warnf("mdxheader: stylesheet has %d lines, not a multiple of 3; trailing entry truncated", len(lines))
	}
	return out
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
