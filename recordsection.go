package mdict

import (
	"fmt"

	"github.com/EricWvi/ldoce/internal/mderr"
	"github.com/EricWvi/ldoce/internal/recordindex"
)

// readRecordSection parses the record section starting at keySectionEnd (the
// file offset immediately after the last key block), per spec §4.4.
func (a *Archive) readRecordSection(keySectionEnd int64) error {
	ver := a.header.Version

	if keySectionEnd > int64(len(a.data)) {
		return fmt.Errorf("%w: record section starts past end of file", mderr.IoError)
	}

	prelude, n, err := recordindex.DecodePrelude(a.data[keySectionEnd:], ver)
	if err != nil {
		return err
	}
	pos := keySectionEnd + int64(n)

	if prelude.NumEntries != uint64(len(a.keys)) {
		return fmt.Errorf("%w: record section num_entries %d != key list length %d", mderr.CorruptArchive, prelude.NumEntries, len(a.keys))
	}

	if pos+int64(prelude.RecordBlockInfoSize) > int64(len(a.data)) {
		return fmt.Errorf("%w: record_block_info_size runs past end of file", mderr.CorruptArchive)
	}
	infoBytes := a.data[pos : pos+int64(prelude.RecordBlockInfoSize)]
	pos += int64(prelude.RecordBlockInfoSize)

	blocks, err := recordindex.DecodeBlockInfo(infoBytes, ver, prelude.NumRecordBlocks, prelude.RecordBlockInfoSize)
	if err != nil {
		return err
	}

	if pos+int64(prelude.RecordBlockSize) > int64(len(a.data)) {
		return fmt.Errorf("%w: record_block_size runs past end of file", mderr.CorruptArchive)
	}

	a.recordSection = a.data[pos : pos+int64(prelude.RecordBlockSize)]
	a.recordSectionFilePos = pos
	a.recordBlocks = blocks
	a.recordBlockSize = prelude.RecordBlockSize
	return nil
}
