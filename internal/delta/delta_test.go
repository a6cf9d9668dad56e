package delta

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elijah-cloudlet/memoverlay/internal/pagehash"
)

func TestSortByOffsetIsStableAscending(t *testing.T) {
	l := List{
		{Offset: 8192},
		{Offset: 0},
		{Offset: 4096},
	}
	l.SortByOffset()
	require.Len(t, l, 3)
	assert.Equal(t, int64(0), l[0].Offset)
	assert.Equal(t, int64(4096), l[1].Offset)
	assert.Equal(t, int64(8192), l[2].Offset)
}

func TestCodecRoundTrip(t *testing.T) {
	l := List{
		{Offset: 0, Length: 4096, Hash: pagehash.Hash{1}, Ref: RefRaw, Payload: []byte("hello")},
		{Offset: 4096, Length: 4096, Hash: pagehash.Hash{2}, Ref: RefBaseMem, RefOffset: 8192},
		{Offset: 8192, Length: 4096, Hash: pagehash.Hash{3}, Ref: RefZero},
	}
	path := filepath.Join(t.TempDir(), "overlay.delta")
	require.NoError(t, ToFile(path, l))

	got, err := FromFile(path)
	require.NoError(t, err)
	require.Len(t, got, len(l))
	for i := range l {
		assert.Equal(t, l[i].Offset, got[i].Offset)
		assert.Equal(t, l[i].Length, got[i].Length)
		assert.Equal(t, l[i].Hash, got[i].Hash)
		assert.Equal(t, l[i].Ref, got[i].Ref)
		assert.Equal(t, l[i].RefOffset, got[i].RefOffset)
		assert.Equal(t, l[i].Payload, got[i].Payload)
	}
}

func TestDiffWithHashListPrefersEarlierSource(t *testing.T) {
	h := pagehash.Hash{9}
	items := List{{Offset: 0, Hash: h, Ref: RefRaw, Payload: []byte("x")}}

	zeroSource := pagehash.List{{Offset: -1, Hash: h}}
	DiffWithHashList(zeroSource, items, RefZero)
	require.Equal(t, RefZero, items[0].Ref)
	assert.Nil(t, items[0].Payload)

	// A later, lower-priority source must not override the already-tagged item.
	baseSource := pagehash.List{{Offset: 123, Hash: h}}
	DiffWithHashList(baseSource, items, RefBaseMem)
	assert.Equal(t, RefZero, items[0].Ref)
}

func TestGetSelfDeltaGroupsDuplicateHashes(t *testing.T) {
	h := pagehash.Hash{7}
	survivor := &Item{Offset: 0, Hash: h, Ref: RefRaw, Payload: []byte("dup")}
	dup1 := &Item{Offset: 4096, Hash: h, Ref: RefRaw, Payload: []byte("dup")}
	dup2 := &Item{Offset: 8192, Hash: h, Ref: RefRaw, Payload: []byte("dup")}
	other := &Item{Offset: 12288, Hash: pagehash.Hash{8}, Ref: RefRaw, Payload: []byte("unique")}

	items := List{survivor, dup1, dup2, other}
	GetSelfDelta(items)

	assert.Equal(t, RefRaw, survivor.Ref)
	assert.Equal(t, RefSelf, dup1.Ref)
	assert.Equal(t, int64(0), dup1.RefOffset)
	assert.Equal(t, RefSelf, dup2.Ref)
	assert.Equal(t, int64(0), dup2.RefOffset)
	assert.Equal(t, RefRaw, other.Ref)
}

func TestStatistics(t *testing.T) {
	items := List{
		{Ref: RefRaw, Payload: make([]byte, 4096)},
		{Ref: RefRaw, Payload: make([]byte, 4096)},
		{Ref: RefZero},
	}
	s := Statistics(items)
	assert.Equal(t, 2, s.Count[RefRaw])
	assert.EqualValues(t, 8192, s.PayloadLen[RefRaw])
	assert.Equal(t, 1, s.Count[RefZero])
	assert.EqualValues(t, 0, s.PayloadLen[RefZero])
}

func TestRefKindString(t *testing.T) {
	assert.Equal(t, "RAW", RefRaw.String())
	assert.Equal(t, "SELF", RefSelf.String())
	assert.Contains(t, RefKind(255).String(), "RefKind")
}
