package wal

import (
	"bytes"
	"testing"
)

func checkpointFrame(version uint64) []byte {
	return EncodeFrame(Record{Kind: KindCheckpoint, Version: version})
}

// corruptFrame builds a well-formed envelope (trustworthy length) whose
// payload fails its checksum, simulating a bit flip that corrupted the
// record body without touching its header.
func corruptFrame(version uint64) []byte {
	f := checkpointFrame(version)
	f[len(f)-1] ^= 0xFF
	return f
}

func TestReplayReaderToleratesCorruptEntriesWithinBound(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(checkpointFrame(1))
	buf.Write(corruptFrame(2))
	buf.Write(checkpointFrame(3))

	var seen []uint64
	validUpTo, err := ReplayReader(bytes.NewReader(buf.Bytes()), 1, func(r Record) error {
		seen = append(seen, r.Version)
		return nil
	})
	if err != nil {
		t.Fatalf("expected the single corrupt entry to be tolerated, got %v", err)
	}
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 3 {
		t.Fatalf("expected records [1 3] to survive around the corrupt entry, got %v", seen)
	}
	if validUpTo != int64(buf.Len()) {
		t.Fatalf("expected validUpTo to reach the end of the scan, got %d want %d", validUpTo, buf.Len())
	}
}

func TestReplayReaderAbortsWhenBoundExceeded(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(checkpointFrame(1))
	buf.Write(corruptFrame(2))
	buf.Write(checkpointFrame(3))

	var seen []uint64
	_, err := ReplayReader(bytes.NewReader(buf.Bytes()), 0, func(r Record) error {
		seen = append(seen, r.Version)
		return nil
	})
	if err != ErrTooManyCorruptEntries {
		t.Fatalf("expected ErrTooManyCorruptEntries, got %v", err)
	}
}

func TestReplayReaderTornTailNeverCountsAsCorrupt(t *testing.T) {
	full := checkpointFrame(1)
	torn := full[:len(full)-2] // truncated mid-payload, as a crash would leave it

	validUpTo, err := ReplayReader(bytes.NewReader(torn), 0, func(Record) error {
		t.Fatal("a torn tail frame must never be handed to fn")
		return nil
	})
	if err != nil {
		t.Fatalf("a torn tail must never be reported as an error, got %v", err)
	}
	if validUpTo != 0 {
		t.Fatalf("expected nothing to be accepted before the torn tail, got %d", validUpTo)
	}
}
