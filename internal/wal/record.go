// Package wal implements Strata's write-ahead log: a stream of
// self-describing, checksummed records carrying logical operations
// (BeginTxn/Write/Delete/CommitTxn/AbortTxn/Checkpoint), not page
// images, with a scan-to-torn-tail recovery loop.
package wal

import (
	"encoding/binary"
	"errors"
	"hash/crc32"

	"strata/internal/key"
	"strata/internal/value"
)

// Kind identifies a WAL record's payload shape.
type Kind byte

const (
	KindBeginTxn Kind = iota + 1
	KindWrite
	KindDelete
	KindCommitTxn
	KindAbortTxn
	KindCheckpoint
)

func (k Kind) String() string {
	switch k {
	case KindBeginTxn:
		return "BeginTxn"
	case KindWrite:
		return "Write"
	case KindDelete:
		return "Delete"
	case KindCommitTxn:
		return "CommitTxn"
	case KindAbortTxn:
		return "AbortTxn"
	case KindCheckpoint:
		return "Checkpoint"
	default:
		return "Unknown"
	}
}

// Magic and FormatVersion identify a Strata WAL record.
const (
	Magic         uint32 = 0x53747261 // "Stra"
	FormatVersion uint16 = 1

	frameHeaderSize = 4 + 1 + 2 + 4 + 4 // magic|kind|version|len|crc32
)

var (
	ErrBadMagic    = errors.New("strata/wal: bad record magic")
	ErrBadVersion  = errors.New("strata/wal: unsupported record format version")
	ErrChecksum    = errors.New("strata/wal: payload checksum mismatch")
	ErrTruncated   = errors.New("strata/wal: truncated record")
)

// VersionKindWire mirrors store.VersionKind without importing the store
// package (wal does not import store; engine uses these values to
// reconstruct store.Entry values).
type VersionKindWire byte

const (
	VKTxnID VersionKindWire = iota
	VKSequence
	VKCounter
)

// Record is a single decoded WAL entry.
type Record struct {
	Kind Kind

	// BeginTxn / CommitTxn / AbortTxn
	TxnID     uint64
	RunID     key.RunID
	Timestamp int64

	// Write / Delete
	Key         key.Key
	Value       value.Value // zero value for Delete
	VersionKind VersionKindWire
	VersionN    uint64
	GlobalVer   uint64

	// Checkpoint
	SnapshotID  uint64
	Version     uint64
	ActiveRuns  []key.RunID
}

// encodePayload serializes the record's payload (everything after the frame
// header) using a compact length-prefixed layout.
func (r Record) encodePayload() []byte {
	var buf []byte
	putU64 := func(v uint64) {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], v)
		buf = append(buf, b[:]...)
	}
	putI64 := func(v int64) { putU64(uint64(v)) }
	putBytes := func(b []byte) {
		var l [4]byte
		binary.LittleEndian.PutUint32(l[:], uint32(len(b)))
		buf = append(buf, l[:]...)
		buf = append(buf, b...)
	}
	putRun := func(r key.RunID) { buf = append(buf, r[:]...) }

	switch r.Kind {
	case KindBeginTxn:
		putU64(r.TxnID)
		putRun(r.RunID)
		putI64(r.Timestamp)
	case KindCommitTxn, KindAbortTxn:
		putU64(r.TxnID)
		putRun(r.RunID)
	case KindWrite:
		putU64(r.TxnID)
		putRun(r.RunID)
		putBytes(r.Key.Encode())
		putBytes(value.EncodeBinary(r.Value))
		buf = append(buf, byte(r.VersionKind))
		putU64(r.VersionN)
		putU64(r.GlobalVer)
	case KindDelete:
		putU64(r.TxnID)
		putRun(r.RunID)
		putBytes(r.Key.Encode())
		buf = append(buf, byte(r.VersionKind))
		putU64(r.VersionN)
		putU64(r.GlobalVer)
	case KindCheckpoint:
		putU64(r.SnapshotID)
		putU64(r.Version)
		var n [4]byte
		binary.LittleEndian.PutUint32(n[:], uint32(len(r.ActiveRuns)))
		buf = append(buf, n[:]...)
		for _, run := range r.ActiveRuns {
			putRun(run)
		}
	}
	return buf
}

func decodePayload(kind Kind, b []byte) (Record, error) {
	r := Record{Kind: kind}
	pos := 0
	need := func(n int) error {
		if pos+n > len(b) {
			return ErrTruncated
		}
		return nil
	}
	getU64 := func() (uint64, error) {
		if err := need(8); err != nil {
			return 0, err
		}
		v := binary.LittleEndian.Uint64(b[pos:])
		pos += 8
		return v, nil
	}
	getRun := func() (key.RunID, error) {
		if err := need(16); err != nil {
			return key.RunID{}, err
		}
		var run key.RunID
		copy(run[:], b[pos:pos+16])
		pos += 16
		return run, nil
	}
	getBytes := func() ([]byte, error) {
		if err := need(4); err != nil {
			return nil, err
		}
		l := binary.LittleEndian.Uint32(b[pos:])
		pos += 4
		if err := need(int(l)); err != nil {
			return nil, err
		}
		out := b[pos : pos+int(l)]
		pos += int(l)
		return out, nil
	}

	switch kind {
	case KindBeginTxn:
		txnID, err := getU64()
		if err != nil {
			return r, err
		}
		run, err := getRun()
		if err != nil {
			return r, err
		}
		ts, err := getU64()
		if err != nil {
			return r, err
		}
		r.TxnID, r.RunID, r.Timestamp = txnID, run, int64(ts)
	case KindCommitTxn, KindAbortTxn:
		txnID, err := getU64()
		if err != nil {
			return r, err
		}
		run, err := getRun()
		if err != nil {
			return r, err
		}
		r.TxnID, r.RunID = txnID, run
	case KindWrite:
		txnID, err := getU64()
		if err != nil {
			return r, err
		}
		run, err := getRun()
		if err != nil {
			return r, err
		}
		kb, err := getBytes()
		if err != nil {
			return r, err
		}
		k, err := key.Decode(kb)
		if err != nil {
			return r, err
		}
		vb, err := getBytes()
		if err != nil {
			return r, err
		}
		v, err := value.DecodeBinary(vb)
		if err != nil {
			return r, err
		}
		if err := need(1); err != nil {
			return r, err
		}
		vk := VersionKindWire(b[pos])
		pos++
		vn, err := getU64()
		if err != nil {
			return r, err
		}
		gv, err := getU64()
		if err != nil {
			return r, err
		}
		r.TxnID, r.RunID, r.Key, r.Value = txnID, run, k, v
		r.VersionKind, r.VersionN, r.GlobalVer = vk, vn, gv
	case KindDelete:
		txnID, err := getU64()
		if err != nil {
			return r, err
		}
		run, err := getRun()
		if err != nil {
			return r, err
		}
		kb, err := getBytes()
		if err != nil {
			return r, err
		}
		k, err := key.Decode(kb)
		if err != nil {
			return r, err
		}
		if err := need(1); err != nil {
			return r, err
		}
		vk := VersionKindWire(b[pos])
		pos++
		vn, err := getU64()
		if err != nil {
			return r, err
		}
		gv, err := getU64()
		if err != nil {
			return r, err
		}
		r.TxnID, r.RunID, r.Key = txnID, run, k
		r.VersionKind, r.VersionN, r.GlobalVer = vk, vn, gv
	case KindCheckpoint:
		sid, err := getU64()
		if err != nil {
			return r, err
		}
		ver, err := getU64()
		if err != nil {
			return r, err
		}
		if err := need(4); err != nil {
			return r, err
		}
		n := binary.LittleEndian.Uint32(b[pos:])
		pos += 4
		runs := make([]key.RunID, 0, n)
		for i := uint32(0); i < n; i++ {
			run, err := getRun()
			if err != nil {
				return r, err
			}
			runs = append(runs, run)
		}
		r.SnapshotID, r.Version, r.ActiveRuns = sid, ver, runs
	}
	return r, nil
}

func crc(payload []byte) uint32 {
	return crc32.ChecksumIEEE(payload)
}

// EncodeFrame renders r in the same magic|kind|version|len|crc32|payload
// framing Append writes to the live log, for callers that build a WAL
// byte stream without an open *WAL (internal/bundle's export path).
func EncodeFrame(r Record) []byte {
	payload := r.encodePayload()
	frame := make([]byte, frameHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(frame[0:4], Magic)
	frame[4] = byte(r.Kind)
	binary.LittleEndian.PutUint16(frame[5:7], FormatVersion)
	binary.LittleEndian.PutUint32(frame[7:11], uint32(len(payload)))
	binary.LittleEndian.PutUint32(frame[11:15], crc(payload))
	copy(frame[frameHeaderSize:], payload)
	return frame
}
