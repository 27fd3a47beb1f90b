// Package bundle implements the deterministic run export/import
// archive: a terminal run's full history packed into a
// <run_id>.runbundle.tar.zst file containing MANIFEST.json, RUN.json,
// and WAL.runlog, and the reverse operation restoring it into a fresh
// engine. Every member other than the manifest itself carries an
// xxhash digest in the manifest, so import validates them before
// touching the engine.
package bundle

import (
	"archive/tar"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"

	"strata/internal/engine"
	"strata/internal/errs"
	"strata/internal/key"
	"strata/internal/run"
	"strata/internal/wal"
)

const (
	manifestName = "MANIFEST.json"
	runMetaName  = "RUN.json"
	walLogName   = "WAL.runlog"

	walLogMagic   uint32 = 0x52554e4c // "RUNL"
	walLogVersion uint16 = 1

	bundleEntryPrefix = "runbundle/"
)

// manifest is MANIFEST.json's shape: a format tag plus a content hash
// per other archive member, so import can detect truncation or tampering
// before touching the engine.
type manifest struct {
	FormatVersion int               `json:"format_version"`
	Checksums     map[string]string `json:"checksums"`
}

// runMeta mirrors run.Meta for JSON serialization without exporting
// run.Meta's internal field tags to the bundle's on-disk contract.
type runMetaJSON struct {
	RunID     string   `json:"run_id"`
	State     string   `json:"state"`
	Tags      []string `json:"tags"`
	CreatedAt int64    `json:"created_at"`
	UpdatedAt int64    `json:"updated_at"`
}

// Export writes runID's bundle archive into destDir and returns its
// path. Only a terminal run may be exported; the same unmodified run
// exported twice produces byte-identical archives.
func Export(e *engine.Engine, runID key.RunID, destDir string) (string, error) {
	meta, err := e.RunGet(runID)
	if err != nil {
		return "", err
	}
	if !run.IsTerminal(meta.State) {
		return "", errs.Newf(errs.KindInvalidTransition, "run %s is not terminal (state %s)", runID.String(), meta.State)
	}

	runJSON, err := json.Marshal(runMetaJSON{
		RunID: runID.String(), State: string(meta.State), Tags: meta.Tags,
		CreatedAt: meta.CreatedAt, UpdatedAt: meta.UpdatedAt,
	})
	if err != nil {
		return "", errs.Io(err)
	}

	walLog := encodeWALLog(e.ExportRunRecords(runID))

	man := manifest{
		FormatVersion: 1,
		Checksums: map[string]string{
			runMetaName: checksumHex(runJSON),
			walLogName:  checksumHex(walLog),
		},
	}
	manJSON, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return "", errs.Io(err)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", errs.Io(err)
	}
	path := filepath.Join(destDir, runID.String()+".runbundle.tar.zst")
	f, err := os.Create(path)
	if err != nil {
		return "", errs.Io(err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f,
		zstd.WithEncoderConcurrency(1),
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		return "", errs.Io(err)
	}
	tw := tar.NewWriter(zw)

	for _, member := range []struct {
		name string
		data []byte
	}{
		{manifestName, manJSON},
		{runMetaName, runJSON},
		{walLogName, walLog},
	} {
		hdr := &tar.Header{
			Name:     bundleEntryPrefix + member.name,
			Mode:     0o644,
			Size:     int64(len(member.data)),
			Typeflag: tar.TypeReg,
			// Zeroed mtime/uid/gid: two exports of the same run must be
			// byte-identical, so nothing time- or
			// host-dependent may leak into the tar header.
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return "", errs.Io(err)
		}
		if _, err := tw.Write(member.data); err != nil {
			return "", errs.Io(err)
		}
	}

	if err := tw.Close(); err != nil {
		return "", errs.Io(err)
	}
	if err := zw.Close(); err != nil {
		return "", errs.Io(err)
	}
	return path, nil
}

// Import reads a bundle archive and installs its run into e. It is a
// hard error if the run already exists
// or if any member's checksum fails to validate.
func Import(e *engine.Engine, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errs.Io(err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return errs.Io(err)
	}
	defer zr.Close()

	members := make(map[string][]byte)
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errs.Io(err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return errs.Io(err)
		}
		name := hdr.Name
		if len(name) > len(bundleEntryPrefix) && name[:len(bundleEntryPrefix)] == bundleEntryPrefix {
			name = name[len(bundleEntryPrefix):]
		}
		members[name] = data
	}

	manBytes, ok := members[manifestName]
	if !ok {
		return errs.New(errs.KindIo, "bundle: missing MANIFEST.json")
	}
	var man manifest
	if err := json.Unmarshal(manBytes, &man); err != nil {
		return errs.Io(err)
	}
	for name, want := range man.Checksums {
		data, ok := members[name]
		if !ok {
			return errs.Newf(errs.KindIo, "bundle: missing %s", name)
		}
		if got := checksumHex(data); got != want {
			return errs.Newf(errs.KindIo, "bundle: checksum mismatch for %s", name)
		}
	}

	runBytes, ok := members[runMetaName]
	if !ok {
		return errs.New(errs.KindIo, "bundle: missing RUN.json")
	}
	var rm runMetaJSON
	if err := json.Unmarshal(runBytes, &rm); err != nil {
		return errs.Io(err)
	}
	runID, err := key.ParseRunID(rm.RunID)
	if err != nil {
		return errs.Io(err)
	}

	if _, err := e.RunGet(runID); err == nil {
		return errs.Newf(errs.KindRunExists, "run %s already exists", runID.String())
	}

	walBytes, ok := members[walLogName]
	if !ok {
		return errs.New(errs.KindIo, "bundle: missing WAL.runlog")
	}
	records, err := decodeWALLog(walBytes)
	if err != nil {
		return err
	}

	if err := e.ApplyBundleRecords(records); err != nil {
		return err
	}

	meta := run.Meta{RunID: runID, State: run.State(rm.State), Tags: rm.Tags, CreatedAt: rm.CreatedAt, UpdatedAt: rm.UpdatedAt}
	e.Runs().Restore(meta)
	return nil
}

// encodeWALLog frames records behind a small magic/version header so
// WAL.runlog is self-describing the same way the live WAL file is.
func encodeWALLog(records []wal.Record) []byte {
	var buf bytes.Buffer
	var header [6]byte
	binary.LittleEndian.PutUint32(header[0:4], walLogMagic)
	binary.LittleEndian.PutUint16(header[4:6], walLogVersion)
	buf.Write(header[:])
	for _, r := range records {
		buf.Write(wal.EncodeFrame(r))
	}
	return buf.Bytes()
}

func decodeWALLog(data []byte) ([]wal.Record, error) {
	if len(data) < 6 {
		return nil, errs.New(errs.KindIo, "bundle: WAL.runlog too short")
	}
	if binary.LittleEndian.Uint32(data[0:4]) != walLogMagic {
		return nil, errs.New(errs.KindIo, "bundle: bad WAL.runlog magic")
	}
	if binary.LittleEndian.Uint16(data[4:6]) != walLogVersion {
		return nil, errs.New(errs.KindIo, "bundle: unsupported WAL.runlog version")
	}
	var records []wal.Record
	// A bundle's WAL.runlog is expected to be fully intact (its
	// manifest carries its own checksum), so zero corrupt entries are
	// tolerated here.
	_, err := wal.ReplayReader(bytes.NewReader(data[6:]), 0, func(r wal.Record) error {
		records = append(records, r)
		return nil
	})
	if err != nil {
		return nil, errs.Io(err)
	}
	return records, nil
}

func checksumHex(b []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(b))
}
