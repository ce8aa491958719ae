// Copyright 2025 The Grind Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package baseline persists measurement results so later runs can be
// compared against them.
//
// A store is a plain directory tree. Every benchmark identity owns one
// subdirectory and every named slot within it is a single JSON file,
// written atomically and encoded deterministically so that equal
// models produce byte-identical files.
package baseline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/go-grind/grind/grindfmt"
)

// FormatVersion is the on-disk snapshot format. Readers reject files
// written by a newer format.
const FormatVersion = 1

// SlotCurrent is the slot the batch pipeline saves after every run.
const SlotCurrent = "current"

var (
	// ErrNotFound reports that no snapshot exists for an id and slot.
	ErrNotFound = errors.New("baseline not found")

	// ErrWriteConflict reports a second in-process write to the same
	// id and slot. Two cases sharing an identity is a configuration
	// error; their results are never merged.
	ErrWriteConflict = errors.New("conflicting baseline write")
)

// Provenance records how a snapshot was produced.
type Provenance struct {
	Command []string  `json:"command"`
	Time    time.Time `json:"time"`
}

// A Snapshot is one persisted measurement.
type Snapshot struct {
	FormatVersion int                  `json:"formatVersion"`
	ID            grindfmt.BenchmarkID `json:"id"`
	Slot          string               `json:"slot"`
	Tool          grindfmt.Tool        `json:"tool"`
	Provenance    Provenance           `json:"provenance"`
	Model         *grindfmt.Model      `json:"model"`
}

// A Store reads and writes snapshots under a root directory. The zero
// value is not usable; create one with NewStore.
type Store struct {
	dir string

	mu      sync.Mutex
	written map[string]bool
}

// NewStore returns a store rooted at dir. The directory is created
// lazily on first save.
func NewStore(dir string) *Store {
	return &Store{dir: dir, written: make(map[string]bool)}
}

// maxComponent bounds one sanitized path component.
const maxComponent = 200

// sanitizeComponent maps an identity part to a directory entry name.
// Anything outside a conservative portable set becomes "_", and long
// components are truncated.
func sanitizeComponent(s string) string {
	if s == "" {
		return "_"
	}
	b := []byte(s)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.':
		default:
			b[i] = '_'
		}
	}
	if len(b) > maxComponent {
		b = b[:maxComponent]
	}
	return string(b)
}

func (s *Store) path(id grindfmt.BenchmarkID, slot string) string {
	name := id.Name
	if id.Param != "" {
		name += "." + id.Param
	}
	return filepath.Join(s.dir,
		sanitizeComponent(id.Group),
		sanitizeComponent(name),
		sanitizeComponent(slot)+".json")
}

// Save writes a snapshot for id under slot. The write is atomic: a
// reader sees either the previous snapshot or the new one, never a
// partial file. A second save to the same id and slot from this store
// returns ErrWriteConflict; a failed save releases the key so it can
// be retried.
func (s *Store) Save(id grindfmt.BenchmarkID, slot string, model *grindfmt.Model, prov Provenance) (err error) {
	if model == nil {
		return errors.New("cannot save a nil model")
	}
	path := s.path(id, slot)

	s.mu.Lock()
	if s.written[path] {
		s.mu.Unlock()
		return errors.Wrapf(ErrWriteConflict, "%s slot %q", id, slot)
	}
	s.written[path] = true
	s.mu.Unlock()
	defer func() {
		if err != nil {
			s.mu.Lock()
			delete(s.written, path)
			s.mu.Unlock()
		}
	}()

	snap := Snapshot{
		FormatVersion: FormatVersion,
		ID:            id,
		Slot:          slot,
		Tool:          model.Tool,
		Provenance:    prov,
		Model:         model.Clone(),
	}
	data, err := json.MarshalIndent(&snap, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "encoding baseline %s", id)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return errors.Wrapf(err, "creating baseline directory for %s", id)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp")
	if err != nil {
		return errors.Wrapf(err, "writing baseline %s", id)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "writing baseline %s", id)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "writing baseline %s", id)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "writing baseline %s", id)
	}
	return nil
}

// Load reads the snapshot for id under slot. The returned snapshot is
// independent of the store; callers may mutate its model freely. A
// missing snapshot is reported as ErrNotFound.
func (s *Store) Load(id grindfmt.BenchmarkID, slot string) (*Snapshot, error) {
	data, err := os.ReadFile(s.path(id, slot))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "%s slot %q", id, slot)
		}
		return nil, errors.Wrapf(err, "reading baseline %s", id)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.Wrapf(err, "decoding baseline %s slot %q", id, slot)
	}
	if snap.FormatVersion > FormatVersion {
		return nil, errors.Newf("baseline %s slot %q has format version %d, this build reads up to %d",
			id, slot, snap.FormatVersion, FormatVersion)
	}
	if snap.Model == nil {
		return nil, errors.Newf("baseline %s slot %q has no model", id, slot)
	}
	return &snap, nil
}
