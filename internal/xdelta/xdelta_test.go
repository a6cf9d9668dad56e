package xdelta

import (
	"bytes"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireXdelta3(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath(Binary); err != nil {
		t.Skipf("xdelta3 not available on PATH: %v", err)
	}
}

func TestDiffApplyRoundTrip(t *testing.T) {
	requireXdelta3(t)

	source := bytes.Repeat([]byte{0xAA}, 4096)
	target := append(bytes.Repeat([]byte{0xAA}, 4000), bytes.Repeat([]byte{0xBB}, 96)...)

	patch, err := Diff(source, target, 8192)
	require.NoError(t, err)
	assert.NotEmpty(t, patch)

	got, err := Apply(source, patch)
	require.NoError(t, err)
	assert.Equal(t, target, got)
}

func TestDiffRejectsMissingBinary(t *testing.T) {
	old := Binary
	Binary = "this-binary-does-not-exist"
	defer func() { Binary = old }()

	_, err := Diff([]byte("a"), []byte("b"), 4096)
	assert.Error(t, err)
}

func TestDiffEnforcesMaxOut(t *testing.T) {
	requireXdelta3(t)

	source := bytes.Repeat([]byte{0x00}, 4096)
	target := make([]byte, 4096)
	for i := range target {
		target[i] = byte(i)
	}

	_, err := Diff(source, target, 1)
	assert.Error(t, err)
}
