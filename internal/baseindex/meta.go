package baseindex

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/elijah-cloudlet/memoverlay/internal/memerr"
	"github.com/elijah-cloudlet/memoverlay/internal/pagehash"
)

// metaRecordSize is the fixed width of one .meta record: an 8-byte
// big-endian offset, a 4-byte big-endian length, and a 32-byte digest.
const metaRecordSize = 8 + 4 + 32

// WriteMeta persists a HashList as the concatenation of fixed-width
// records described in §4.3: no header, no trailer, no checksum.
func WriteMeta(path string, list pagehash.List) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "baseindex: create meta file")
	}
	defer f.Close()

	buf := make([]byte, metaRecordSize)
	for _, e := range list {
		binary.BigEndian.PutUint64(buf[0:8], uint64(e.Offset))
		binary.BigEndian.PutUint32(buf[8:12], e.Length)
		copy(buf[12:], e.Hash[:])
		if _, err := f.Write(buf); err != nil {
			return errors.Wrap(err, "baseindex: write meta record")
		}
	}
	return nil
}

// ReadMeta loads a .meta file back into a HashList. A truncated file is
// detected by EOF at a record boundary; per §4.3 this format carries no
// framing to distinguish "clean EOF" from "truncated last record", so a
// partial final record is reported as CorruptMeta rather than silently
// dropped.
func ReadMeta(path string) (pagehash.List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "baseindex: open meta file")
	}
	defer f.Close()

	var list pagehash.List
	buf := make([]byte, metaRecordSize)
	for {
		n, err := io.ReadFull(f, buf)
		if n == 0 && err == io.EOF {
			break
		}
		if err == io.ErrUnexpectedEOF {
			return nil, memerr.New(memerr.CorruptMeta, "truncated record in meta file")
		}
		if err != nil {
			return nil, errors.Wrap(err, "baseindex: read meta record")
		}
		var e pagehash.Entry
		e.Offset = int64(binary.BigEndian.Uint64(buf[0:8]))
		e.Length = binary.BigEndian.Uint32(buf[8:12])
		copy(e.Hash[:], buf[12:])
		list = append(list, e)
	}
	return list, nil
}

// DedupeByHash collapses a HashList to one entry per unique hash, keeping
// the first occurrence. It mirrors the original pack_hashlist utility; it
// is not used on the hot differencing path but is exposed since the
// original exported it as a first-class operation on a HashList.
func DedupeByHash(list pagehash.List) pagehash.List {
	seen := make(map[pagehash.Hash]struct{}, len(list))
	out := make(pagehash.List, 0, len(list))
	for _, e := range list {
		if _, ok := seen[e.Hash]; ok {
			continue
		}
		seen[e.Hash] = struct{}{}
		out = append(out, e)
	}
	return out
}
