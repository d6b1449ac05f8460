package block

import (
	"bytes"
)

// SkippedRegion describes a range of bytes that the Scanner was unable
// to decode, together with the reason why.
type SkippedRegion struct {
	OffsetBytes int64
	SizeBytes   int64
	Err         error
}

// Scanner iterates over the blocks stored in a byte slice, without
// depending on any external index. Damaged blocks are skipped:
//
//   - If a block's header is intact but its checksum does not match,
//     the Scanner skips over the block using the length in the header.
//   - If a block's header is damaged, the Scanner searches for the
//     next occurrence of the block magic.
//   - If the data ends in the middle of a block (e.g., due to a write
//     that was interrupted by a crash), scanning stops.
//
// Because the payload length in a damaged block may itself be garbage,
// a block skipped by length is only trusted if it is followed by
// another magic or the end of the data. Otherwise the Scanner falls
// back to searching for the next magic.
type Scanner struct {
	data    []byte
	offset  int
	block   Block
	start   int
	skipped []SkippedRegion
}

// NewScanner creates a Scanner that iterates over the blocks in data.
func NewScanner(data []byte) *Scanner {
	return &Scanner{data: data}
}

func (s *Scanner) skip(from, to int, err error) {
	s.skipped = append(s.skipped, SkippedRegion{
		OffsetBytes: int64(from),
		SizeBytes:   int64(to - from),
		Err:         err,
	})
	s.offset = to
}

// resynchronize moves the scanner to the next occurrence of the block
// magic after the current position.
func (s *Scanner) resynchronize(err error) {
	from := s.offset
	next := bytes.Index(s.data[from+1:], Magic[:])
	if next < 0 {
		s.skip(from, len(s.data), err)
	} else {
		s.skip(from, from+1+next, err)
	}
}

func (s *Scanner) isBoundary(offset int) bool {
	return offset == len(s.data) || bytes.HasPrefix(s.data[offset:], Magic[:])
}

// Next advances the Scanner to the next valid block. It returns false
// when no further blocks can be decoded.
func (s *Scanner) Next() bool {
	for s.offset < len(s.data) {
		b, n, err := Decode(s.data[s.offset:])
		if err == nil {
			s.block = b
			s.start = s.offset
			s.offset += n
			return true
		}

		if IsTruncated(err) {
			// The remainder of the data is too short to hold a
			// block, but may still contain the start of a block
			// that follows a damaged length field.
			if next := bytes.Index(s.data[s.offset+1:], Magic[:]); next >= 0 {
				s.skip(s.offset, s.offset+1+next, err)
				continue
			}
			s.skip(s.offset, len(s.data), err)
			return false
		}

		if _, length, headerSize, headerErr := parseHeader(s.data[s.offset:]); headerErr == nil {
			end := s.offset + headerSize + length + ChecksumSizeBytes
			if end <= len(s.data) && s.isBoundary(end) {
				s.skip(s.offset, end, err)
				continue
			}
		}
		s.resynchronize(err)
	}
	return false
}

// Block returns the block the Scanner is currently positioned at.
func (s *Scanner) Block() Block {
	return s.block
}

// OffsetBytes returns the offset of the current block within the data.
func (s *Scanner) OffsetBytes() int64 {
	return int64(s.start)
}

// SizeBytes returns the encoded size of the current block.
func (s *Scanner) SizeBytes() int64 {
	return int64(s.offset - s.start)
}

// Skipped returns all regions of the data that could not be decoded.
func (s *Scanner) Skipped() []SkippedRegion {
	return s.skipped
}
