// Package baseindex is the BaseIndex (§4.3): an immutable, read-only view
// over a base raw-memory snapshot, backed by a lazily-created mmap and its
// persisted page-hash sidecar. The Differ and delta.Resolve read base-memory
// bytes through it; the Reconstructor streams the base file directly.
package baseindex

import (
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"

	"github.com/elijah-cloudlet/memoverlay/internal/pagehash"
)

// Index wraps a base raw-memory file. It owns the mmap exclusively and
// hands out read-only slices into it; the mmap is created on first access
// rather than at Open time.
type Index struct {
	path   string
	file   *os.File
	region mmap.MMap
	hashes pagehash.List
}

// Open opens rawPath and loads its accompanying meta file. The mmap itself
// is not created until the first ReadPage call.
func Open(rawPath, metaPath string) (*Index, error) {
	f, err := os.Open(rawPath)
	if err != nil {
		return nil, errors.Wrap(err, "baseindex: open raw file")
	}
	hashes, err := ReadMeta(metaPath)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Index{path: rawPath, file: f, hashes: hashes}, nil
}

// ensureMapped lazily creates the read-only mmap over the whole raw file.
func (idx *Index) ensureMapped() error {
	if idx.region != nil {
		return nil
	}
	region, err := mmap.Map(idx.file, mmap.RDONLY, 0)
	if err != nil {
		return errors.Wrapf(err, "baseindex: mmap %s", idx.path)
	}
	idx.region = region
	return nil
}

// ReadPage returns a read-only slice of the base memory at [offset,
// offset+length). The returned slice aliases the mmap and must not be
// retained past the Index's Close.
func (idx *Index) ReadPage(offset int64, length uint32) ([]byte, error) {
	if err := idx.ensureMapped(); err != nil {
		return nil, err
	}
	end := offset + int64(length)
	if offset < 0 || end > int64(len(idx.region)) {
		return nil, errors.Errorf("baseindex: read_page [%d, %d) out of range (base is %d bytes)", offset, end, len(idx.region))
	}
	return idx.region[offset:end], nil
}

// HashAt returns the precomputed hash of the page at pageIndex (offset /
// PageSize), an O(1) lookup into the loaded HashList.
func (idx *Index) HashAt(pageIndex int64) (pagehash.Hash, bool) {
	if pageIndex < 0 || pageIndex >= int64(len(idx.hashes)) {
		return pagehash.Hash{}, false
	}
	return idx.hashes[pageIndex].Hash, true
}

// Hashes returns the full ordered HashList, for the Differ's
// cross-reference step.
func (idx *Index) Hashes() pagehash.List {
	return idx.hashes
}

// Len reports the number of indexed pages.
func (idx *Index) Len() int {
	return len(idx.hashes)
}

// Close unmaps the base region (if mapped) and closes the underlying file.
func (idx *Index) Close() error {
	var err error
	if idx.region != nil {
		err = idx.region.Unmap()
		idx.region = nil
	}
	if cerr := idx.file.Close(); err == nil {
		err = cerr
	}
	return err
}
