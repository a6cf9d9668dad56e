package pagehash

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elijah-cloudlet/memoverlay/internal/memerr"
	"github.com/elijah-cloudlet/memoverlay/internal/qemuformat"
)

func TestHashCoversRegionInOrder(t *testing.T) {
	pages := 5
	data := make([]byte, pages*qemuformat.PageSize)
	for i := 0; i < pages; i++ {
		data[i*qemuformat.PageSize] = byte(i + 1)
	}

	list, err := Hash(bytes.NewReader(data), 0, int64(len(data)))
	require.NoError(t, err)
	require.Len(t, list, pages)

	for i, e := range list {
		assert.Equal(t, int64(i*qemuformat.PageSize), e.Offset)
		assert.EqualValues(t, qemuformat.PageSize, e.Length)
		want := sha256.Sum256(data[i*qemuformat.PageSize : (i+1)*qemuformat.PageSize])
		assert.Equal(t, Hash(want), e.Hash)
	}
}

func TestHashRejectsUnalignedRegion(t *testing.T) {
	data := make([]byte, qemuformat.PageSize+10)
	_, err := Hash(bytes.NewReader(data), 0, int64(len(data)))
	require.Error(t, err)
	assert.True(t, memerr.Is(err, memerr.UnalignedRegion))
}

func TestHashRejectsInvertedRange(t *testing.T) {
	_, err := Hash(bytes.NewReader(nil), 10, 0)
	require.Error(t, err)
}

func TestZeroPageMatchesAllZeroDigest(t *testing.T) {
	want := sha256.Sum256(make([]byte, qemuformat.PageSize))
	assert.Equal(t, want, ZeroPage)
}
