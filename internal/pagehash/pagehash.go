// Package pagehash computes and carries the per-page SHA-256 fingerprints
// that every other component in the pipeline keys off of: the PageHasher
// (§4.2) and the HashList/HashEntry data model (§3).
package pagehash

import (
	"crypto/sha256"
	"io"

	"github.com/pkg/errors"

	"github.com/elijah-cloudlet/memoverlay/internal/memerr"
	"github.com/elijah-cloudlet/memoverlay/internal/qemuformat"
)

// Hash is a 32-byte SHA-256 digest over exactly one page.
type Hash [32]byte

// ZeroPage is the digest of an all-zero page, computed once at init since
// it never changes and is compared against constantly during Phase B
// cross-referencing.
var ZeroPage = sha256.Sum256(make([]byte, qemuformat.PageSize))

// Entry is one page's hash-list record: its offset, its length (always
// PageSize in this format) and its digest.
type Entry struct {
	Offset int64
	Length uint32
	Hash   Hash
}

// List is an ordered, strictly-increasing-by-offset sequence of Entry,
// covering [0, ram_size) contiguously once built by Hash.
type List []Entry

// Hash reads [start, end) from r in PageSize chunks and returns the
// resulting HashList in stream order. The region must be exactly
// page-aligned; a short final read is fatal (UnalignedRegion), matching
// the "no I/O retries at this layer" rule in §4.2.
func Hash(r io.ReaderAt, start, end int64) (List, error) {
	if start < 0 || end < start {
		return nil, errors.Errorf("pagehash: invalid region [%d, %d)", start, end)
	}
	size := end - start
	if size%qemuformat.PageSize != 0 {
		return nil, memerr.NewAtf(memerr.UnalignedRegion, start, "region length %d is not a multiple of the page size", size)
	}

	buf := make([]byte, qemuformat.PageSize)
	list := make(List, 0, size/qemuformat.PageSize)
	for off := start; off < end; off += qemuformat.PageSize {
		n, err := r.ReadAt(buf, off)
		if n != len(buf) {
			if err == nil {
				err = io.ErrUnexpectedEOF
			}
			return nil, memerr.NewAtf(memerr.UnalignedRegion, off, "short read (%d of %d bytes): %v", n, len(buf), err)
		}
		if err != nil && err != io.EOF {
			return nil, errors.Wrapf(err, "pagehash: read at offset %d", off)
		}
		list = append(list, Entry{
			Offset: off,
			Length: qemuformat.PageSize,
			Hash:   sha256.Sum256(buf),
		})
	}
	return list, nil
}
