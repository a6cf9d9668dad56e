// Package ramstream implements the StreamParser (§4.1): it locates the
// libvirt-wrapped QEMU migration stream's RAM section and returns the
// file offsets of each RAM block without ever materializing a page. It is
// the sole reader of the migration wire format; everything downstream
// operates purely on the offsets it returns.
package ramstream

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/elijah-cloudlet/memoverlay/internal/memerr"
	"github.com/elijah-cloudlet/memoverlay/internal/qemuformat"
)

// BlockInfo describes one named RAM block: its declared length and the
// file offset its body starts at.
type BlockInfo struct {
	ID     string
	Length uint64
	Offset int64
}

// RamInfo maps block id to BlockInfo, scoped to a single parse.
type RamInfo map[string]BlockInfo

// BodyOffset returns the libvirt header body offset, i.e. the position the
// QEMU migration stream itself must start at. The wrapper header is opaque
// to this package; callers that already know their header format seek past
// it themselves and hand Parse a reader positioned at the body.
const BodyOffset = qemuformat.PageSize

// Parse reads a QEMU migration stream (the reader must already be
// positioned at the start of the body, i.e. at file offset BodyOffset) and
// returns the offset immediately following the RAM section along with the
// per-block directory.
//
// r must implement io.ReadSeeker; the parser seeks backwards once to reread
// the memory-size header after locating the "pc.ram" identifier.
func Parse(r io.ReadSeeker) (ramEnd int64, info RamInfo, err error) {
	bodyStart, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, nil, errors.Wrap(err, "ramstream: determine body offset")
	}
	if bodyStart != BodyOffset {
		return 0, nil, memerr.NewAtf(memerr.UnsupportedHeader, bodyStart,
			"libvirt header body must start at %d, reader is at %d", BodyOffset, bodyStart)
	}

	idPos, err := seekRAMID(r)
	if err != nil {
		return 0, nil, err
	}

	totalRamSize, err := parseMemSizeHeader(r, idPos)
	if err != nil {
		return 0, nil, err
	}

	info, err = parseBlockDirectory(r, totalRamSize)
	if err != nil {
		return 0, nil, err
	}

	ramEnd, info, err = parseBlockBodies(r, info, totalRamSize)
	if err != nil {
		return 0, nil, err
	}
	return ramEnd, info, nil
}

// seekRAMID reads PageSize-sized blocks from the current position looking
// for the length-prefixed "pc.ram" identifier, accepting a match only when
// the byte preceding it equals the identifier's length — that byte doubles
// as the id-length field of the first block-directory entry, which the
// memory-size header and the directory share (§4.1). Returns the file
// offset the identifier text starts at and leaves the reader seeked there.
func seekRAMID(r io.ReadSeeker) (int64, error) {
	startIndex, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, errors.Wrap(err, "ramstream: seek current")
	}
	needle := []byte(qemuformat.RamIDString)
	buf := make([]byte, qemuformat.PageSize)
	prevLast := -1 // last byte of the previous chunk; -1 before the first chunk
	for {
		n, rerr := r.Read(buf)
		if n == 0 {
			if rerr != nil {
				return 0, memerr.New(memerr.RamIDNotFound, "reached EOF before locating pc.ram")
			}
			continue
		}
		chunk := buf[:n]
		if idx := bytes.Index(chunk, needle); idx != -1 {
			// idx == 0 is a legitimate match at the very start of the chunk;
			// unlike a `find` result tested with `if idx:`, -1 is the only
			// sentinel for "not found" here. Such a match's preceding byte is
			// the last byte of the previous chunk.
			preceding := prevLast
			if idx > 0 {
				preceding = int(chunk[idx-1])
			}
			if preceding == len(needle) {
				pos := startIndex + int64(idx)
				if _, err := r.Seek(pos, io.SeekStart); err != nil {
					return 0, errors.Wrap(err, "ramstream: seek to pc.ram")
				}
				return pos, nil
			}
		}
		prevLast = int(chunk[n-1])
		startIndex += int64(n)
		if rerr == io.EOF {
			return 0, memerr.New(memerr.RamIDNotFound, "reached EOF before locating pc.ram")
		}
		if rerr != nil {
			return 0, errors.Wrap(rerr, "ramstream: read while scanning for pc.ram")
		}
	}
}

// parseMemSizeHeader reads the 8-byte flags/size word that precedes the
// id-length byte at idPos-1 (that byte belongs to, and is left unread for,
// the block directory's first entry — see seekRAMID) and returns the total
// declared RAM size with the low 12 bits cleared.
func parseMemSizeHeader(r io.ReadSeeker, idPos int64) (uint64, error) {
	idLenPos := idPos - 1
	headerStart := idLenPos - 8
	if headerStart < 0 {
		return 0, memerr.NewAtf(memerr.MalformedRamHeader, idPos, "not enough room before pc.ram for the size header")
	}
	if _, err := r.Seek(headerStart, io.SeekStart); err != nil {
		return 0, errors.Wrap(err, "ramstream: seek to mem-size header")
	}
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, memerr.NewAtf(memerr.MalformedRamHeader, headerStart, "short read of mem-size header: %v", err)
	}
	flagsAndSize := binary.BigEndian.Uint64(hdr[:])
	if flagsAndSize&qemuformat.FlagMemSize == 0 {
		return 0, memerr.NewAtf(memerr.MalformedRamHeader, headerStart, "MEM_SIZE flag not set in header word 0x%x", flagsAndSize)
	}
	// Leave the reader at idLenPos so parseBlockDirectory reads the shared
	// id-length byte as the first directory entry's own field.
	if _, err := r.Seek(idLenPos, io.SeekStart); err != nil {
		return 0, errors.Wrap(err, "ramstream: seek to shared id-length byte")
	}
	return flagsAndSize &^ 0xfff, nil
}

// parseBlockDirectory reads {u8 id_len, id, u64 length} records until the
// cumulative declared length equals totalRamSize.
func parseBlockDirectory(r io.Reader, totalRamSize uint64) (RamInfo, error) {
	info := make(RamInfo)
	var read uint64
	for read < totalRamSize {
		var idLen [1]byte
		if _, err := io.ReadFull(r, idLen[:]); err != nil {
			return nil, errors.Wrap(err, "ramstream: read block-directory id length")
		}
		idBuf := make([]byte, idLen[0])
		if _, err := io.ReadFull(r, idBuf); err != nil {
			return nil, errors.Wrap(err, "ramstream: read block-directory id")
		}
		var lenBuf [8]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return nil, errors.Wrap(err, "ramstream: read block-directory length")
		}
		length := binary.BigEndian.Uint64(lenBuf[:])
		id := string(idBuf)
		info[id] = BlockInfo{ID: id, Length: length}
		read += length
	}
	return info, nil
}

// parseBlockBodies reads {u64 flags, id, padding, body} records until the
// cumulative parsed body size equals totalRamSize, filling in Offset for
// each directory entry as it goes.
func parseBlockBodies(r io.ReadSeeker, info RamInfo, totalRamSize uint64) (int64, RamInfo, error) {
	var read uint64
	for read < totalRamSize {
		var flagsBuf [8]byte
		if _, err := io.ReadFull(r, flagsBuf[:]); err != nil {
			return 0, nil, errors.Wrap(err, "ramstream: read block-body flags")
		}
		flags := binary.BigEndian.Uint64(flagsBuf[:])
		pos, _ := r.Seek(0, io.SeekCurrent)
		if flags&qemuformat.FlagEOS != 0 {
			return 0, nil, memerr.NewAtf(memerr.MalformedRamHeader, pos, "unexpected EOS flag before RAM fully read")
		}
		if flags&qemuformat.FlagRaw == 0 {
			return 0, nil, memerr.NewAtf(memerr.MalformedRamHeader, pos, "block body missing RAW flag (0x%x)", flags)
		}

		var idLen [1]byte
		if _, err := io.ReadFull(r, idLen[:]); err != nil {
			return 0, nil, errors.Wrap(err, "ramstream: read block-body id length")
		}
		idBuf := make([]byte, idLen[0])
		if _, err := io.ReadFull(r, idBuf); err != nil {
			return 0, nil, errors.Wrap(err, "ramstream: read block-body id")
		}
		id := string(idBuf)

		cur, err := r.Seek(0, io.SeekCurrent)
		if err != nil {
			return 0, nil, errors.Wrap(err, "ramstream: seek current before padding")
		}
		padded := alignUp(cur, qemuformat.PageSize)
		if padded != cur {
			if _, err := r.Seek(padded, io.SeekStart); err != nil {
				return 0, nil, errors.Wrap(err, "ramstream: seek past padding")
			}
		}

		block, ok := info[id]
		if !ok {
			return 0, nil, memerr.NewAtf(memerr.UnknownBlock, padded, "block body references unknown id %q", id)
		}
		block.Offset = padded
		info[id] = block

		if _, err := r.Seek(block.Offset+int64(block.Length), io.SeekStart); err != nil {
			return 0, nil, errors.Wrap(err, "ramstream: seek past block body")
		}
		read += block.Length
	}
	ramEnd, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, nil, errors.Wrap(err, "ramstream: seek current at end of RAM")
	}
	return ramEnd, info, nil
}

func alignUp(pos int64, align int64) int64 {
	rem := pos % align
	if rem == 0 {
		return pos
	}
	return pos + (align - rem)
}
