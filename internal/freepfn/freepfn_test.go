package freepfn

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("scanner scripts are POSIX shell only")
	}
	path := filepath.Join(t.TempDir(), "scanner.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o700))
	return path
}

func TestScanParsesPFNLines(t *testing.T) {
	script := writeScript(t, "printf '10\\n20\\n30\\n'\n")
	cfg := Config{Binary: script, PglistAddr: "0xdead", Pfn0Addr: "0xbeef"}

	pfns, err := Scan(context.Background(), "/snapshot.raw", 1024, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, map[int64]struct{}{10: {}, 20: {}, 30: {}}, pfns)
}

func TestScanDisabledWithoutBinary(t *testing.T) {
	pfns, err := Scan(context.Background(), "/snapshot.raw", 1024, Config{}, nil)
	require.NoError(t, err)
	assert.Nil(t, pfns)
}

func TestScanDegradesOnStderr(t *testing.T) {
	script := writeScript(t, "echo 'kernel symbols not found' 1>&2\n")
	cfg := Config{Binary: script}

	pfns, err := Scan(context.Background(), "/snapshot.raw", 1024, cfg, nil)
	require.NoError(t, err)
	assert.Nil(t, pfns)
}

func TestScanPropagatesInvocationFailure(t *testing.T) {
	cfg := Config{Binary: filepath.Join(t.TempDir(), "does-not-exist")}
	_, err := Scan(context.Background(), "/snapshot.raw", 1024, cfg, nil)
	assert.Error(t, err)
}

func TestShiftAddsRamOffsetPages(t *testing.T) {
	pfns := map[int64]struct{}{1: {}, 2: {}}
	shifted := Shift(pfns, 100)
	assert.Equal(t, map[int64]struct{}{101: {}, 102: {}}, shifted)
}

func TestShiftNilIsNil(t *testing.T) {
	assert.Nil(t, Shift(nil, 100))
}
