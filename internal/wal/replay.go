package wal

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
)

// ReplayFunc is called once per well-formed record encountered during
// a replay scan, in file order.
type ReplayFunc func(Record) error

// ErrTooManyCorruptEntries is returned by Replay/ReplayReader once the
// number of corrupt-but-length-known frames skipped during a scan
// exceeds maxCorruptEntries.
var ErrTooManyCorruptEntries = errors.New("strata/wal: too many corrupt entries encountered during replay")

// Replay scans the WAL file at path from the beginning, decoding and
// handing each well-formed record to fn, until EOF.
//
// Two kinds of damage are distinguished. A frame whose header itself
// is unreadable or carries a bad magic/version ends the scan
// unconditionally: its payload length can't be trusted, so anything
// past it is treated as the classic torn tail of a crash mid-append,
// never counted as a corrupt entry. A frame whose header is
// well-formed (so its payload length is trustworthy) but whose payload
// is torn, fails its checksum, or fails to decode is a verifiable
// corrupt entry: it is skipped using its known length and counted
// against maxCorruptEntries, letting the scan continue to whatever
// well-formed records follow it. Exceeding maxCorruptEntries aborts the
// scan with ErrTooManyCorruptEntries rather than silently returning
// only a partial recovery. It returns the byte offset reached by the
// end of the scan, suitable for TruncateTo to reclaim a torn tail on
// the next write.
//
func Replay(path string, maxCorruptEntries int, fn ReplayFunc) (validUpTo int64, err error) {
	return ReplayFrom(path, 0, maxCorruptEntries, fn)
}

// ReplayFrom is Replay starting at a byte offset, so recovery can
// resume from a snapshot's recorded WAL offset instead of rescanning
// records the snapshot already covers. The returned validUpTo is
// absolute (offset included).
func ReplayFrom(path string, offset int64, maxCorruptEntries int, fn ReplayFunc) (validUpTo int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return offset, nil
		}
		return offset, err
	}
	defer f.Close()
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return offset, err
		}
	}
	n, err := ReplayReader(f, maxCorruptEntries, fn)
	return offset + n, err
}

// ReplayReader runs the same scan as Replay over any io.Reader, so
// callers that already hold the bytes in memory (e.g. a run bundle's
// WAL.runlog) don't need a temporary file.
func ReplayReader(f io.Reader, maxCorruptEntries int, fn ReplayFunc) (validUpTo int64, err error) {
	var offset int64
	var corrupt int
	header := make([]byte, frameHeaderSize)

	for {
		n, rerr := io.ReadFull(f, header)
		if rerr == io.EOF {
			break
		}
		if rerr == io.ErrUnexpectedEOF || n < frameHeaderSize {
			break // torn header at EOF: ordinary crash tail, not counted
		}
		if rerr != nil {
			return offset, rerr
		}

		magic := binary.LittleEndian.Uint32(header[0:4])
		kind := Kind(header[4])
		version := binary.LittleEndian.Uint16(header[5:7])
		payloadLen := binary.LittleEndian.Uint32(header[7:11])
		wantCRC := binary.LittleEndian.Uint32(header[11:15])

		if magic != Magic || version != FormatVersion {
			break // corrupt envelope of unknown length; stop here, never past it
		}

		payload := make([]byte, payloadLen)
		n, rerr = io.ReadFull(f, payload)
		if rerr != nil || uint32(n) != payloadLen {
			break // torn payload: the last frame was mid-write at crash time
		}

		if crc(payload) != wantCRC {
			corrupt++
			if corrupt > maxCorruptEntries {
				return offset, ErrTooManyCorruptEntries
			}
			offset += int64(frameHeaderSize) + int64(payloadLen)
			continue
		}

		rec, derr := decodePayload(kind, payload)
		if derr != nil {
			corrupt++
			if corrupt > maxCorruptEntries {
				return offset, ErrTooManyCorruptEntries
			}
			offset += int64(frameHeaderSize) + int64(payloadLen)
			continue
		}

		if err := fn(rec); err != nil {
			return offset, err
		}

		offset += int64(frameHeaderSize) + int64(payloadLen)
	}

	return offset, nil
}
