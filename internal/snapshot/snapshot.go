// Package snapshot implements the point-in-time store dump recovery
// loads before replaying the WAL. A snapshot captures every key's full
// version chain (not just its head) so that a snapshot taken while a
// reader still pins an older version remains resolvable after reload,
// and so GC's rank-based policies see the same history they would have
// seen without a restart.
//
// The file is header-then-body: magic, format version, and an xxhash
// digest of the whole body, validated before any of it is trusted.
package snapshot

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"

	"strata/internal/key"
	"strata/internal/store"
	"strata/internal/value"
)

const (
	Magic         uint32 = 0x53545253 // "STRS"
	FormatVersion uint16 = 1
	headerSize           = 4 + 2 + 8 + 8 + 8 + 8 // magic|version|globalVersion|walOffset|entryCount|checksum
)

var (
	ErrBadMagic   = errors.New("strata/snapshot: bad magic")
	ErrBadVersion = errors.New("strata/snapshot: unsupported format version")
	ErrChecksum   = errors.New("strata/snapshot: checksum mismatch, snapshot is corrupt")
)

// Header carries the restored global version, the WAL offset replay
// must resume from, and the body's entry count.
type Header struct {
	GlobalVersion uint64
	WALOffset     int64
	EntryCount    uint64
}

// Write serializes every run's recovered chains to path, returning the
// header actually written (so the caller can embed it in a
// Checkpoint WAL record).
func Write(path string, s *store.Store, walOffset int64) (Header, error) {
	f, err := os.Create(path)
	if err != nil {
		return Header{}, err
	}
	defer f.Close()

	var body []byte
	var entryCount uint64
	for _, run := range s.Runs() {
		s.ForEachKeyInRun(run, func(k key.Key, head *store.Entry) {
			body = appendBytes(body, k.Encode())
			var chainEntries []byte
			n := uint32(0)
			for e := head; e != nil; e = e.Next() {
				chainEntries = appendChainEntry(chainEntries, e)
				n++
			}
			var cn [4]byte
			binary.LittleEndian.PutUint32(cn[:], n)
			body = append(body, cn[:]...)
			body = append(body, chainEntries...)
			entryCount++
		})
	}

	globalVersion := s.CurrentVersion()
	checksum := xxhash.Sum64(body)

	header := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(header[0:4], Magic)
	binary.LittleEndian.PutUint16(header[4:6], FormatVersion)
	binary.LittleEndian.PutUint64(header[6:14], globalVersion)
	binary.LittleEndian.PutUint64(header[14:22], uint64(walOffset))
	binary.LittleEndian.PutUint64(header[22:30], entryCount)
	binary.LittleEndian.PutUint64(header[30:38], checksum)

	w := bufio.NewWriter(f)
	if _, err := w.Write(header); err != nil {
		return Header{}, err
	}
	if _, err := w.Write(body); err != nil {
		return Header{}, err
	}
	if err := w.Flush(); err != nil {
		return Header{}, err
	}
	return Header{GlobalVersion: globalVersion, WALOffset: walOffset, EntryCount: entryCount}, nil
}

func appendBytes(dst, b []byte) []byte {
	var l [4]byte
	binary.LittleEndian.PutUint32(l[:], uint32(len(b)))
	dst = append(dst, l[:]...)
	return append(dst, b...)
}

func appendChainEntry(dst []byte, e *store.Entry) []byte {
	if e.IsTombstone() {
		dst = append(dst, 1)
	} else {
		dst = append(dst, 0)
	}
	dst = append(dst, byte(e.Version().Kind))
	dst = appendU64(dst, e.Version().N)
	dst = appendU64(dst, e.GlobalVersion())
	dst = appendU64(dst, e.TxnID())
	dst = appendU64(dst, uint64(e.TimestampUTC()))
	if !e.IsTombstone() {
		dst = appendBytes(dst, value.EncodeBinary(e.Value()))
	}
	return dst
}

func appendU64(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// Load validates and parses the snapshot file at path, restoring every
// chain into a fresh store. Returns ErrChecksum/ErrBadMagic/ErrBadVersion
// if the file fails validation.
func Load(path string) (*store.Store, Header, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, Header{}, err
	}
	if len(raw) < headerSize {
		return nil, Header{}, io.ErrUnexpectedEOF
	}
	magic := binary.LittleEndian.Uint32(raw[0:4])
	if magic != Magic {
		return nil, Header{}, ErrBadMagic
	}
	version := binary.LittleEndian.Uint16(raw[4:6])
	if version != FormatVersion {
		return nil, Header{}, ErrBadVersion
	}
	globalVersion := binary.LittleEndian.Uint64(raw[6:14])
	walOffset := int64(binary.LittleEndian.Uint64(raw[14:22]))
	entryCount := binary.LittleEndian.Uint64(raw[22:30])
	checksum := binary.LittleEndian.Uint64(raw[30:38])

	body := raw[headerSize:]
	if xxhash.Sum64(body) != checksum {
		return nil, Header{}, ErrChecksum
	}

	s := store.New()
	pos := 0
	for i := uint64(0); i < entryCount; i++ {
		kb, n, err := readBytes(body, pos)
		if err != nil {
			return nil, Header{}, err
		}
		pos = n
		k, err := key.Decode(kb)
		if err != nil {
			return nil, Header{}, err
		}
		if pos+4 > len(body) {
			return nil, Header{}, io.ErrUnexpectedEOF
		}
		count := binary.LittleEndian.Uint32(body[pos : pos+4])
		pos += 4

		entries := make([]*store.Entry, 0, count)
		for c := uint32(0); c < count; c++ {
			if pos+1 > len(body) {
				return nil, Header{}, io.ErrUnexpectedEOF
			}
			isTomb := body[pos] == 1
			pos++
			vk := store.VersionKind(body[pos])
			pos++
			vn := binary.LittleEndian.Uint64(body[pos : pos+8])
			pos += 8
			gv := binary.LittleEndian.Uint64(body[pos : pos+8])
			pos += 8
			txnID := binary.LittleEndian.Uint64(body[pos : pos+8])
			pos += 8
			ts := int64(binary.LittleEndian.Uint64(body[pos : pos+8]))
			pos += 8

			ver := store.Version{Kind: vk, N: vn}
			if isTomb {
				entries = append(entries, store.NewTombstoneEntry(ver, gv, txnID, ts))
				continue
			}
			vb, n, err := readBytes(body, pos)
			if err != nil {
				return nil, Header{}, err
			}
			pos = n
			v, err := value.DecodeBinary(vb)
			if err != nil {
				return nil, Header{}, err
			}
			entries = append(entries, store.NewValueEntry(v, ver, gv, txnID, ts))
		}
		// entries were appended newest-first; push oldest-first so the
		// chain's head ends up newest after Push (Push prepends).
		for i := len(entries) - 1; i >= 0; i-- {
			s.PutVersioned(k, entries[i], entries[i].TimestampUTC())
		}
	}

	s.AdvanceVersion(globalVersion)
	return s, Header{GlobalVersion: globalVersion, WALOffset: walOffset, EntryCount: entryCount}, nil
}

func readBytes(body []byte, pos int) ([]byte, int, error) {
	if pos+4 > len(body) {
		return nil, 0, io.ErrUnexpectedEOF
	}
	l := binary.LittleEndian.Uint32(body[pos : pos+4])
	pos += 4
	if pos+int(l) > len(body) {
		return nil, 0, io.ErrUnexpectedEOF
	}
	return body[pos : pos+int(l)], pos + int(l), nil
}
