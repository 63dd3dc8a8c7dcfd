package mdict

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/adler32"

	"github.com/EricWvi/ldoce/internal/cipher"
	"github.com/EricWvi/ldoce/internal/keyindex"
	"github.com/EricWvi/ldoce/internal/mderr"
	"github.com/EricWvi/ldoce/internal/mdxheader"
)

// keySectionPrelude is the fixed set of counters opening the key section,
// per spec §4.3.
type keySectionPrelude struct {
	numKeyBlocks                 uint64
	numEntries                   uint64
	keyBlockInfoDecompressedSize uint64 // v2 only
	keyBlockInfoSize             uint64
	keyBlockSize                 uint64
}

// readKeySection parses the key section starting at a.header.KeySectionOffset,
// populating a.keys, and returns the file offset immediately following the
// last key block (where the record section begins).
func (a *Archive) readKeySection(passcode *Passcode) (int64, error) {
	end, err := a.readKeySectionPrimary(passcode)
	if err == nil {
		return end, nil
	}
	if errors.Is(err, mderr.PasscodeRequired) {
		return 0, err
	}

	a.log.WithError(err).Warn("mdict: primary key section read failed, attempting brutal-force recovery")
	end2, err2 := a.readKeySectionBrutalForce()
	if err2 != nil {
		return 0, err
	}
	return end2, nil
}

func (a *Archive) readKeySectionPrimary(passcode *Passcode) (int64, error) {
	ver := a.header.Version
	w := ver.NumberWidth()
	numCounters := 4
	if ver == mdxheader.V2 {
		numCounters = 5
	}

	pos := a.header.KeySectionOffset
	preludeLen := int64(numCounters * w)
	if pos+preludeLen > int64(len(a.data)) {
		return 0, fmt.Errorf("%w: key section prelude runs past end of file", mderr.IoError)
	}
	preludeBytes := append([]byte{}, a.data[pos:pos+preludeLen]...)
	pos += preludeLen

	if a.header.Encrypt&1 != 0 {
		if passcode == nil {
			return 0, fmt.Errorf("%w: key section prelude is encrypted", mderr.PasscodeRequired)
		}
		key := passcodeKey(a.header.RegisterBy, passcode)
		preludeBytes = cipher.Salsa20_8(key, preludeBytes)
	}

	if ver == mdxheader.V2 {
		if pos+4 > int64(len(a.data)) {
			return 0, fmt.Errorf("%w: key section prelude checksum runs past end of file", mderr.IoError)
		}
		wantAdler := binary.BigEndian.Uint32(a.data[pos : pos+4])
		pos += 4
		if got := adler32.Checksum(preludeBytes); got != wantAdler {
			if a.header.Encrypt&1 != 0 {
				return 0, fmt.Errorf("%w: key section prelude adler32 mismatch after decryption", mderr.DecryptionFailed)
			}
			return 0, fmt.Errorf("%w: key section prelude adler32 mismatch", mderr.CorruptArchive)
		}
	}

	prelude, err := decodePrelude(preludeBytes, ver, w)
	if err != nil {
		return 0, err
	}

	if pos+int64(prelude.keyBlockInfoSize) > int64(len(a.data)) {
		return 0, fmt.Errorf("%w: key_block_info_size runs past end of file", mderr.CorruptArchive)
	}
	infoBlob := a.data[pos : pos+int64(prelude.keyBlockInfoSize)]
	pos += int64(prelude.keyBlockInfoSize)

	wantEntries := prelude.numEntries
	blockInfo, err := keyindex.DecodeBlockInfo(infoBlob, ver, a.header.Encrypt, a.header.Encoding, &wantEntries)
	if err != nil {
		return 0, err
	}

	if pos+int64(prelude.keyBlockSize) > int64(len(a.data)) {
		return 0, fmt.Errorf("%w: key_block_size runs past end of file", mderr.CorruptArchive)
	}
	keyBlockData := a.data[pos : pos+int64(prelude.keyBlockSize)]
	pos += int64(prelude.keyBlockSize)

	keys, err := keyindex.DecodeKeyBlocks(keyBlockData, blockInfo, a.decoders, ver, a.header.Encoding)
	if err != nil {
		return 0, err
	}

	a.keys = keys
	return pos, nil
}

// readKeySectionBrutalForce re-scans the key section per spec §4.3's
// recovery path, trusting only the recovered key-block-info and the key
// blocks that immediately follow it; num_entries is taken from the
// recovered key list length rather than the (presumed corrupt) prelude.
func (a *Archive) readKeySectionBrutalForce() (int64, error) {
	ver := a.header.Version

	infoBlob, keyBlockStart, err := keyindex.BrutalForce([]byte(a.data), a.header.KeySectionOffset, ver)
	if err != nil {
		return 0, err
	}

	blockInfo, err := keyindex.DecodeBlockInfo(infoBlob, ver, a.header.Encrypt, a.header.Encoding, nil)
	if err != nil {
		return 0, err
	}

	var keyBlockSize int64
	for _, bi := range blockInfo {
		keyBlockSize += int64(bi.CompressedSize)
	}
	if keyBlockStart+keyBlockSize > int64(len(a.data)) {
		return 0, fmt.Errorf("%w: recovered key_block_size runs past end of file", mderr.CorruptArchive)
	}
	keyBlockData := a.data[keyBlockStart : keyBlockStart+keyBlockSize]

	keys, err := keyindex.DecodeKeyBlocks(keyBlockData, blockInfo, a.decoders, ver, a.header.Encoding)
	if err != nil {
		return 0, err
	}

	a.keys = keys
	return keyBlockStart + keyBlockSize, nil
}

func decodePrelude(b []byte, ver mdxheader.Version, w int) (keySectionPrelude, error) {
	read := func(i int) uint64 { return ver.ReadNumber(b[i*w : (i+1)*w]) }

	var p keySectionPrelude
	if ver == mdxheader.V2 {
		p.numKeyBlocks = read(0)
		p.numEntries = read(1)
		p.keyBlockInfoDecompressedSize = read(2)
		p.keyBlockInfoSize = read(3)
		p.keyBlockSize = read(4)
	} else {
		p.numKeyBlocks = read(0)
		p.numEntries = read(1)
		p.keyBlockInfoSize = read(2)
		p.keyBlockSize = read(3)
	}
	return p, nil
}

// passcodeKey derives the Salsa20 key used to decrypt the key section
// prelude, per spec §4.1's two registration-method variants.
func passcodeKey(registerBy string, passcode *Passcode) []byte {
	if registerBy == "EMail" {
		return cipher.RegcodeKeyByEmail(passcode.RegCode, passcode.UserID)
	}
	return cipher.RegcodeKeyByDeviceID(passcode.RegCode, passcode.UserID)
}
