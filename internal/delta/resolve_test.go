package delta

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elijah-cloudlet/memoverlay/internal/baseindex"
	"github.com/elijah-cloudlet/memoverlay/internal/pagehash"
	"github.com/elijah-cloudlet/memoverlay/internal/qemuformat"
)

func openTestBase(t *testing.T, pages [][]byte) *baseindex.Index {
	t.Helper()
	dir := t.TempDir()
	rawPath := filepath.Join(dir, "base.raw")

	var raw []byte
	for _, p := range pages {
		raw = append(raw, p...)
	}
	require.NoError(t, os.WriteFile(rawPath, raw, 0o600))

	f, err := os.Open(rawPath)
	require.NoError(t, err)
	list, err := pagehash.Hash(f, 0, int64(len(raw)))
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, baseindex.WriteMeta(rawPath+".meta", list))

	idx, err := baseindex.Open(rawPath, rawPath+".meta")
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestResolveZeroBaseMemAndSelf(t *testing.T) {
	basePage := make([]byte, qemuformat.PageSize)
	for i := range basePage {
		basePage[i] = 0x55
	}
	base := openTestBase(t, [][]byte{basePage})

	zeroItem := &Item{Offset: 0, Length: qemuformat.PageSize, Ref: RefZero}
	baseMemItem := &Item{Offset: qemuformat.PageSize, Length: qemuformat.PageSize, Ref: RefBaseMem, RefOffset: 0}
	survivor := &Item{Offset: 2 * qemuformat.PageSize, Length: qemuformat.PageSize, Ref: RefRaw, Payload: []byte("survivor-payload")}
	selfItem := &Item{Offset: 3 * qemuformat.PageSize, Length: qemuformat.PageSize, Ref: RefSelf, RefOffset: survivor.Offset}

	items := List{zeroItem, baseMemItem, survivor, selfItem}
	require.NoError(t, Resolve(items, base, nil))

	assert.Equal(t, make([]byte, qemuformat.PageSize), zeroItem.Payload)
	assert.Equal(t, basePage, baseMemItem.Payload)
	assert.Equal(t, []byte("survivor-payload"), selfItem.Payload)
}

func TestResolveBaseMemWithoutIndexErrors(t *testing.T) {
	items := List{{Offset: 0, Length: qemuformat.PageSize, Ref: RefBaseMem, RefOffset: 0}}
	err := Resolve(items, nil, nil)
	assert.Error(t, err)
}

func TestResolveSelfDanglingReferenceErrors(t *testing.T) {
	items := List{{Offset: 0, Length: qemuformat.PageSize, Ref: RefSelf, RefOffset: 9999}}
	err := Resolve(items, nil, nil)
	assert.Error(t, err)
}
