// Copyright 2025 The Grind Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package baseline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-grind/grind/grindfmt"
)

func testModel() *grindfmt.Model {
	g := grindfmt.NewGraph()
	main := g.Intern(grindfmt.Frame{Binary: "bench", Func: "main"})
	work := g.Intern(grindfmt.Frame{Binary: "bench", Func: "work"})
	g.Node(main).Self = grindfmt.Costs{grindfmt.Ir: 100}
	g.Node(work).Self = grindfmt.Costs{grindfmt.Ir: 400}
	g.AddCall(main, work, 1, grindfmt.Costs{grindfmt.Ir: 400})
	return &grindfmt.Model{
		Tool:   grindfmt.ToolCallgrind,
		Totals: grindfmt.Costs{grindfmt.Ir: 500, grindfmt.Dr: 80},
		Graph:  g,
	}
}

func testProvenance() Provenance {
	return Provenance{
		Command: []string{"./bench", "--mode=fast"},
		Time:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestStoreRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())
	id := grindfmt.BenchmarkID{Group: "codec", Name: "encode", Param: "small"}
	model := testModel()

	require.NoError(t, store.Save(id, SlotCurrent, model, testProvenance()))

	snap, err := store.Load(id, SlotCurrent)
	require.NoError(t, err)
	assert.Equal(t, FormatVersion, snap.FormatVersion)
	assert.Equal(t, id, snap.ID)
	assert.Equal(t, SlotCurrent, snap.Slot)
	assert.Equal(t, grindfmt.ToolCallgrind, snap.Tool)
	assert.Equal(t, testProvenance(), snap.Provenance)
	require.NotNil(t, snap.Model)
	assert.True(t, snap.Model.Totals.Equal(model.Totals))
	require.NotNil(t, snap.Model.Graph)
	assert.Len(t, snap.Model.Graph.Nodes, 2)
}

func TestStoreNotFound(t *testing.T) {
	store := NewStore(t.TempDir())
	id := grindfmt.BenchmarkID{Group: "codec", Name: "missing"}

	_, err := store.Load(id, SlotCurrent)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "codec::missing")
}

func TestStoreWriteConflict(t *testing.T) {
	store := NewStore(t.TempDir())
	id := grindfmt.BenchmarkID{Group: "codec", Name: "encode"}

	require.NoError(t, store.Save(id, SlotCurrent, testModel(), testProvenance()))
	err := store.Save(id, SlotCurrent, testModel(), testProvenance())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWriteConflict))

	// A different slot for the same id is a distinct key.
	require.NoError(t, store.Save(id, "main", testModel(), testProvenance()))
}

func TestStoreSaveRetriesAfterFailure(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	id := grindfmt.BenchmarkID{Group: "codec", Name: "encode"}

	// Occupy the group directory with a plain file so the write fails.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "codec"), []byte("x"), 0o666))
	err := store.Save(id, SlotCurrent, testModel(), testProvenance())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrWriteConflict))

	// A failed save must release the key, not poison it.
	require.NoError(t, os.Remove(filepath.Join(dir, "codec")))
	require.NoError(t, store.Save(id, SlotCurrent, testModel(), testProvenance()))

	_, err = store.Load(id, SlotCurrent)
	require.NoError(t, err)
}

func TestStoreDeterministicBytes(t *testing.T) {
	id := grindfmt.BenchmarkID{Group: "codec", Name: "encode"}

	read := func() []byte {
		t.Helper()
		dir := t.TempDir()
		store := NewStore(dir)
		require.NoError(t, store.Save(id, SlotCurrent, testModel(), testProvenance()))
		data, err := os.ReadFile(filepath.Join(dir, "codec", "encode", "current.json"))
		require.NoError(t, err)
		return data
	}

	a, b := read(), read()
	assert.Equal(t, a, b)
	assert.True(t, strings.HasSuffix(string(a), "\n"))
}

func TestStoreSanitizesIdentity(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	id := grindfmt.BenchmarkID{Group: "my suite", Name: "encode/v2", Param: "n=1000"}

	require.NoError(t, store.Save(id, SlotCurrent, testModel(), testProvenance()))

	path := filepath.Join(dir, "my_suite", "encode_v2.n_1000", "current.json")
	_, err := os.Stat(path)
	assert.NoError(t, err, "expected sanitized path %s", path)

	snap, err := store.Load(id, SlotCurrent)
	require.NoError(t, err)
	assert.Equal(t, id, snap.ID)
}

func TestStoreTruncatesLongComponents(t *testing.T) {
	long := strings.Repeat("x", 500)
	assert.Len(t, sanitizeComponent(long), 200)
	assert.Equal(t, "_", sanitizeComponent(""))
}

func TestStoreLoadedSnapshotIsIndependent(t *testing.T) {
	store := NewStore(t.TempDir())
	id := grindfmt.BenchmarkID{Group: "codec", Name: "encode"}
	require.NoError(t, store.Save(id, SlotCurrent, testModel(), testProvenance()))

	a, err := store.Load(id, SlotCurrent)
	require.NoError(t, err)
	a.Model.Totals[grindfmt.Ir] = 0

	b, err := store.Load(id, SlotCurrent)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), b.Model.Totals[grindfmt.Ir])
}

func TestStoreRejectsNewerFormat(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	id := grindfmt.BenchmarkID{Group: "codec", Name: "encode"}
	require.NoError(t, store.Save(id, SlotCurrent, testModel(), testProvenance()))

	path := filepath.Join(dir, "codec", "encode", "current.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data = []byte(strings.Replace(string(data), `"formatVersion": 1`, `"formatVersion": 99`, 1))
	require.NoError(t, os.WriteFile(path, data, 0o666))

	_, err = store.Load(id, SlotCurrent)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "format version 99")
}
