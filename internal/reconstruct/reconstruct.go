// Package reconstruct implements the Reconstructor and Verifier (§4.5,
// §4.6): rebuilding a modified snapshot from a base raw-memory file and a
// resolved DeltaList, and optionally byte-comparing the result against the
// original modified snapshot.
package reconstruct

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/elijah-cloudlet/memoverlay/internal/delta"
	"github.com/elijah-cloudlet/memoverlay/internal/memerr"
	"github.com/elijah-cloudlet/memoverlay/internal/qemuformat"
)

// Run streams basePath page by page, splicing in every item's payload at
// its offset, and writes the result to outPath. It returns the overlay map
// (§3: an ordered sequence of "pfn:1" tokens) joined by commas, matching
// the original overlay-map serialization.
//
// items must already be resolved (every Payload concrete and exactly
// PageSize long); Resolve in package delta does that. Run sorts a private
// copy of items by offset before streaming, since a deserialized overlay
// file carries no ordering guarantee of its own.
func Run(basePath string, items delta.List, outPath string) (string, error) {
	sorted := make(delta.List, len(items))
	copy(sorted, items)
	sorted.SortByOffset()

	in, err := os.Open(basePath)
	if err != nil {
		return "", errors.Wrap(err, "reconstruct: open base file")
	}
	defer in.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return "", errors.Wrap(err, "reconstruct: create output file")
	}
	defer out.Close()

	var overlay []string
	buf := make([]byte, qemuformat.PageSize)
	i := 0
	offset := int64(0)
	for {
		n, rerr := io.ReadFull(in, buf)
		if n > 0 {
			if i < len(sorted) && sorted[i].Offset == offset {
				if len(sorted[i].Payload) != qemuformat.PageSize {
					return "", memerr.NewAtf(memerr.DeltaSizeMismatch, offset,
						"overlay item payload is %d bytes, want %d", len(sorted[i].Payload), qemuformat.PageSize)
				}
				if _, werr := out.Write(sorted[i].Payload); werr != nil {
					return "", errors.Wrap(werr, "reconstruct: write overlay page")
				}
				overlay = append(overlay, fmt.Sprintf("%d:1", offset/qemuformat.PageSize))
				i++
			} else {
				if _, werr := out.Write(buf[:n]); werr != nil {
					return "", errors.Wrap(werr, "reconstruct: write base page")
				}
			}
			offset += int64(n)
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			return "", errors.Wrap(rerr, "reconstruct: read base page")
		}
	}
	if i != len(sorted) {
		return "", errors.Errorf("reconstruct: %d overlay item(s) lie beyond the base file's length", len(sorted)-i)
	}
	return strings.Join(overlay, ","), nil
}
