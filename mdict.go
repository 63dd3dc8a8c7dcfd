// Package mdict reads MDict dictionary archives: the proprietary mmap-backed
// container format used to distribute reference dictionaries. An Archive
// parses the header and the full key list once at Open, then serves Keys,
// Index and Lookup against the memory-mapped file without re-parsing.
package mdict

import (
	"fmt"
	"os"
	"strings"

	"github.com/edsrzf/mmap-go"
	"github.com/sirupsen/logrus"

	"github.com/EricWvi/ldoce/internal/codec"
	"github.com/EricWvi/ldoce/internal/keyindex"
	"github.com/EricWvi/ldoce/internal/mderr"
	"github.com/EricWvi/ldoce/internal/mdxheader"
	"github.com/EricWvi/ldoce/internal/recordindex"
)

// Kind distinguishes the two archive variants: .mdx holds text entries,
// .mdd holds binary resources addressed by backslash-separated paths.
type Kind int

const (
	MDX Kind = iota
	MDD
)

func (k Kind) String() string {
	if k == MDD {
		return "mdd"
	}
	return "mdx"
}

// Passcode is the (registration_code, user_id) pair required to decrypt an
// archive whose key-section prelude is Salsa20-encrypted (Encrypted bit 0).
// UserID is either an email address (RegisterBy=EMail) or a device
// identifier, per spec §4.1.
type Passcode struct {
	RegCode []byte
	UserID  []byte
}

// Options configures Open.
type Options struct {
	// Encoding overrides the archive's declared encoding. Empty uses the
	// header's own value.
	Encoding string
	// Passcode supplies decryption credentials. Required iff the header's
	// Encrypted bitmask has bit 0 set.
	Passcode *Passcode
	// Log receives parse warnings (e.g. malformed stylesheets). Defaults to
	// a discard logger.
	Log *logrus.Entry
	// NoLZO disables LZO1X block support, surfacing
	// codec.ErrUnsupportedCompression for any LZO block instead.
	NoLZO bool
}

// Archive is a parsed, queryable MDict container. All exported methods are
// safe for concurrent read-only use; Close must not race with any of them.
type Archive struct {
	path string
	data mmap.MMap
	kind Kind

	header   *mdxheader.Header
	keys     []keyindex.Entry
	decoders codec.Decoders

	recordSection        []byte
	recordSectionFilePos int64
	recordBlocks         []recordindex.BlockInfo
	recordBlockSize      uint64
	records              []recordindex.IndexRecord

	log *logrus.Entry
}

// Open parses path's header and full key list, building the record index
// eagerly (without per-block verification; pass verify=true to Index to
// re-walk the record blocks with checksum verification).
func Open(path string, opts Options) (*Archive, error) {
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.New())
		log.Logger.SetOutput(discardWriter{})
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", mderr.IoError, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", mderr.IoError, err)
	}
	if fi.Size() == 0 {
		return nil, fmt.Errorf("%w: empty file", mderr.IoError)
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap: %v", mderr.IoError, err)
	}

	kind := MDX
	if strings.HasSuffix(strings.ToLower(path), ".mdd") {
		kind = MDD
	}

	header, err := mdxheader.Parse(data, kind == MDD, log)
	if err != nil {
		_ = data.Unmap()
		return nil, err
	}
	if opts.Encoding != "" {
		header.Encoding = opts.Encoding
	}

	decoders := codec.NewDecoders()
	if opts.NoLZO {
		decoders = codec.NewDecodersNoLZO()
	}

	a := &Archive{
		path:     path,
		data:     data,
		kind:     kind,
		header:   header,
		decoders: decoders,
		log:      log,
	}

	keySectionEnd, err := a.readKeySection(opts.Passcode)
	if err != nil {
		_ = data.Unmap()
		return nil, err
	}

	if err := a.readRecordSection(keySectionEnd); err != nil {
		_ = data.Unmap()
		return nil, err
	}

	records, err := recordindex.Build(a.recordSection, a.recordSectionFilePos, a.recordBlocks, a.keys, a.decoders, a.recordBlockSize, false)
	if err != nil {
		_ = data.Unmap()
		return nil, err
	}
	a.records = records

	return a, nil
}

// Close releases the memory mapping. The Archive must not be used
// afterward.
func (a *Archive) Close() error {
	return a.data.Unmap()
}

// Kind reports whether this is an .mdx or .mdd archive.
func (a *Archive) Kind() Kind { return a.kind }

// Len returns num_entries: the number of keys in the archive.
func (a *Archive) Len() int { return len(a.keys) }

// Keys returns the ordered key text list, as stored in the file.
func (a *Archive) Keys() []string {
	out := make([]string, len(a.keys))
	for i, e := range a.keys {
		out[i] = e.KeyText
	}
	return out
}

// TranslatePath rewrites a forward-slash path (as produced by a URL route)
// into the backslash form .mdd keys use on disk, per spec §6.
func TranslatePath(p string) string {
	return strings.ReplaceAll(p, "/", "\\")
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
