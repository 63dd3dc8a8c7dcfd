// Package mderr defines the MDict reader's error taxonomy: a small set of
// sentinel errors every layer wraps its failures in, so callers can
// errors.Is against a stable vocabulary regardless of which component
// failed.
package mderr

import "errors"

var (
	// IoError is returned when the underlying byte source failed.
	IoError = errors.New("mdict: io error")

	// CorruptHeader covers header Adler-32 mismatches, malformed
	// attribute text and missing required attributes.
	CorruptHeader = errors.New("mdict: corrupt header")

	// UnsupportedVersion is returned for a GeneratedByEngineVersion
	// outside the two recognized families.
	UnsupportedVersion = errors.New("mdict: unsupported version")

	// CorruptArchive covers block Adler-32 mismatches, size invariant
	// violations and unknown block-type tags encountered past the header.
	CorruptArchive = errors.New("mdict: corrupt archive")

	// UnsupportedCompression is returned when a block requests a codec
	// with no registered Decompressor (typically LZO).
	UnsupportedCompression = errors.New("mdict: unsupported compression")

	// PasscodeRequired is returned when Encrypted bit 0 is set but Open
	// was not given credentials.
	PasscodeRequired = errors.New("mdict: passcode required")

	// DecryptionFailed is reported when Salsa20 decryption of the key
	// section prelude yields counters that fail the prelude's Adler-32
	// check. Later size checks on those counters report CorruptArchive.
	DecryptionFailed = errors.New("mdict: decryption failed")
)
