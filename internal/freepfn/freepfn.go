// Package freepfn invokes the external free-page-frame scanner §6 treats
// as a separate executable: given a snapshot path and the guest kernel's
// page-list and pfn0 addresses, it returns the set of page-frame numbers
// currently on the guest's free list.
//
// §9 flags the original's hard-coded pglist_addr/pgn0_addr/mem_size_mb
// guard as guest-specific state that "must be treated as inputs
// (configuration), not constants." Config carries exactly those values as
// fields instead of baking them in; callers decide whether a given
// snapshot's memory size is one this scanner build supports.
package freepfn

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Config names the external scanner binary and the guest-kernel addresses
// it needs, all caller-supplied per §9.
type Config struct {
	Binary     string // path to the scanner executable; empty disables scanning
	PglistAddr string // hex address of the guest's page list head
	Pfn0Addr   string // hex address of the guest's pfn0 structure
}

// Scan runs the scanner against snapshotPath and returns the set of free
// page-frame numbers it reports, or nil if scanning is disabled or the
// scanner degrades to "no information" (§5: a non-empty stderr is treated
// as advisory failure, not fatal).
//
// The scanner is "strictly advisory: a nil return means do not skip any
// page" (§4.4 step 2); callers must not treat a nil map as an error.
func Scan(ctx context.Context, snapshotPath string, memSizeMB uint64, cfg Config, log *logrus.Entry) (map[int64]struct{}, error) {
	if cfg.Binary == "" {
		return nil, nil
	}

	cmd := exec.CommandContext(ctx, cfg.Binary, snapshotPath, cfg.PglistAddr, cfg.Pfn0Addr, strconv.FormatUint(memSizeMB, 10))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, errors.Wrap(err, "freepfn: scanner invocation failed")
	}
	if stderr.Len() > 0 {
		if log != nil {
			log.WithField("stderr", stderr.String()).Warn("free-page scanner reported an error; ignoring free-page information")
		}
		return nil, nil
	}

	pfns := make(map[int64]struct{})
	sc := bufio.NewScanner(&stdout)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		n, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "freepfn: invalid pfn line %q", line)
		}
		pfns[n] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "freepfn: reading scanner output")
	}
	return pfns, nil
}

// Shift rewrites a raw PFN set returned by Scan into absolute page indices
// within the snapshot file, by adding the RAM block's own file offset
// (expressed in pages), per §6: "outputs are shifted by
// pc.ram_file_offset/PageSize before use."
func Shift(pfns map[int64]struct{}, ramOffsetPages int64) map[int64]struct{} {
	if pfns == nil {
		return nil
	}
	shifted := make(map[int64]struct{}, len(pfns))
	for pfn := range pfns {
		shifted[pfn+ramOffsetPages] = struct{}{}
	}
	return shifted
}
