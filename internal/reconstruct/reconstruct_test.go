package reconstruct

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elijah-cloudlet/memoverlay/internal/delta"
	"github.com/elijah-cloudlet/memoverlay/internal/qemuformat"
)

func page(b byte) []byte {
	return bytes.Repeat([]byte{b}, qemuformat.PageSize)
}

func TestRunIdentityDiffProducesExactCopy(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "base.raw")
	base := append(append([]byte{}, page(0x11)...), page(0x22)...)
	require.NoError(t, os.WriteFile(basePath, base, 0o600))

	outPath := filepath.Join(dir, "out.raw")
	overlay, err := Run(basePath, nil, outPath)
	require.NoError(t, err)
	assert.Equal(t, "", overlay)

	got, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, base, got)
}

func TestRunSplicesOverlayItems(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "base.raw")
	base := append(append(append([]byte{}, page(0x11)...), page(0x22)...), page(0x33)...)
	require.NoError(t, os.WriteFile(basePath, base, 0o600))

	items := delta.List{
		{Offset: int64(qemuformat.PageSize), Length: qemuformat.PageSize, Payload: page(0xff)},
	}
	outPath := filepath.Join(dir, "out.raw")
	overlay, err := Run(basePath, items, outPath)
	require.NoError(t, err)
	assert.Equal(t, "1:1", overlay)

	got, err := os.ReadFile(outPath)
	require.NoError(t, err)
	want := append(append(append([]byte{}, page(0x11)...), page(0xff)...), page(0x33)...)
	assert.Equal(t, want, got)
}

func TestRunRejectsMissizedPayload(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "base.raw")
	require.NoError(t, os.WriteFile(basePath, page(0x11), 0o600))

	items := delta.List{{Offset: 0, Length: qemuformat.PageSize, Payload: []byte("short")}}
	_, err := Run(basePath, items, filepath.Join(dir, "out.raw"))
	assert.Error(t, err)
}

func TestVerifyDetectsDivergence(t *testing.T) {
	dir := t.TempDir()
	reconstructedPath := filepath.Join(dir, "r.raw")
	originalPath := filepath.Join(dir, "o.raw")
	require.NoError(t, os.WriteFile(reconstructedPath, page(0x11), 0o600))
	require.NoError(t, os.WriteFile(originalPath, page(0x22), 0o600))

	err := Verify(reconstructedPath, originalPath, nil)
	assert.Error(t, err)
}

func TestVerifyAcceptsIdenticalFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.raw")
	b := filepath.Join(dir, "b.raw")
	data := append(append([]byte{}, page(0xaa)...), page(0xbb)...)
	require.NoError(t, os.WriteFile(a, data, 0o600))
	require.NoError(t, os.WriteFile(b, data, 0o600))

	items := delta.List{{Offset: int64(qemuformat.PageSize), Length: qemuformat.PageSize, Payload: page(0xbb)}}
	assert.NoError(t, Verify(a, b, items))
}
