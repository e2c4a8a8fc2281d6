package util

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	// SidecarFile is the name of the statistics file inside an engine root.
	SidecarFile    = "HCDKV-STATS"
	sidecarMagic   = "HCDKVST\x00"
	sidecarVersion = 1
)

// --------------------------------------------------------------------------
// Codec
// --------------------------------------------------------------------------

// WriteCounters writes the snapshot in the sidecar format:
// 8 bytes magic, 1 byte version, 4 x 8 bytes little endian counters.
func WriteCounters(w io.Writer, s CounterSnapshot) error {
	bw := bufio.NewWriter(w)

	// Write file header
	if _, err := bw.WriteString(sidecarMagic); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint8(sidecarVersion)); err != nil {
		return err
	}

	for _, v := range []uint64{s.Records, s.DataBytes, s.ReadBytes, s.WriteBytes} {
		if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// ReadCounters reads a snapshot written by WriteCounters.
func ReadCounters(r io.Reader) (CounterSnapshot, error) {
	br := bufio.NewReader(r)

	// Read and verify magic number
	magicBytes := make([]byte, len(sidecarMagic))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return CounterSnapshot{}, err
	}
	if string(magicBytes) != sidecarMagic {
		return CounterSnapshot{}, fmt.Errorf("invalid stats file: magic number mismatch")
	}

	// Read and verify version
	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return CounterSnapshot{}, err
	}
	if version != sidecarVersion {
		return CounterSnapshot{}, fmt.Errorf("unsupported stats version: %d (expected %d)", version, sidecarVersion)
	}

	var vals [4]uint64
	for i := range vals {
		if err := binary.Read(br, binary.LittleEndian, &vals[i]); err != nil {
			return CounterSnapshot{}, err
		}
	}

	return CounterSnapshot{
		Records:    vals[0],
		DataBytes:  vals[1],
		ReadBytes:  vals[2],
		WriteBytes: vals[3],
	}, nil
}

// --------------------------------------------------------------------------
// File helpers
// --------------------------------------------------------------------------

// SaveCounters atomically replaces the sidecar file in dir.
func SaveCounters(dir string, s CounterSnapshot) error {
	tmp, err := os.CreateTemp(dir, SidecarFile+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if err := WriteCounters(tmp, s); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, SidecarFile))
}

// LoadCounters reads the sidecar file in dir. A missing file yields a zero
// snapshot and ok=false.
func LoadCounters(dir string) (s CounterSnapshot, ok bool, err error) {
	f, err := os.Open(filepath.Join(dir, SidecarFile))
	if errors.Is(err, os.ErrNotExist) {
		return CounterSnapshot{}, false, nil
	}
	if err != nil {
		return CounterSnapshot{}, false, err
	}
	defer f.Close()

	s, err = ReadCounters(f)
	if err != nil {
		return CounterSnapshot{}, false, err
	}
	return s, true, nil
}
