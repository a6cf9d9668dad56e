package delta

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"
)

// on-disk record: u8 ref, i64 offset, u32 length, 32-byte hash, i64
// ref_offset, u32 payload_len, payload bytes. This is the overlay file
// format §6 calls the DeltaList module's opaque tofile/fromfile encoding.
func writeItem(w io.Writer, it *Item) error {
	var hdr [1 + 8 + 4 + 32 + 8 + 4]byte
	hdr[0] = byte(it.Ref)
	binary.BigEndian.PutUint64(hdr[1:9], uint64(it.Offset))
	binary.BigEndian.PutUint32(hdr[9:13], it.Length)
	copy(hdr[13:45], it.Hash[:])
	binary.BigEndian.PutUint64(hdr[45:53], uint64(it.RefOffset))
	binary.BigEndian.PutUint32(hdr[53:57], uint32(len(it.Payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(it.Payload) > 0 {
		if _, err := w.Write(it.Payload); err != nil {
			return err
		}
	}
	return nil
}

func readItem(r io.Reader) (*Item, error) {
	var hdr [1 + 8 + 4 + 32 + 8 + 4]byte
	n, err := io.ReadFull(r, hdr[:])
	if n == 0 && err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, err
	}
	it := &Item{Ref: RefKind(hdr[0])}
	it.Offset = int64(binary.BigEndian.Uint64(hdr[1:9]))
	it.Length = binary.BigEndian.Uint32(hdr[9:13])
	copy(it.Hash[:], hdr[13:45])
	it.RefOffset = int64(binary.BigEndian.Uint64(hdr[45:53]))
	payloadLen := binary.BigEndian.Uint32(hdr[53:57])
	if payloadLen > 0 {
		it.Payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(r, it.Payload); err != nil {
			return nil, err
		}
	}
	return it, nil
}

// ToFile persists a DeltaList as the overlay file.
func ToFile(path string, l List) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "delta: create overlay file")
	}
	defer f.Close()
	for _, it := range l {
		if err := writeItem(f, it); err != nil {
			return errors.Wrap(err, "delta: write overlay item")
		}
	}
	return nil
}

// FromFile loads a DeltaList back from an overlay file.
func FromFile(path string) (List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "delta: open overlay file")
	}
	defer f.Close()

	var l List
	for {
		it, err := readItem(f)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "delta: read overlay item")
		}
		l = append(l, it)
	}
	return l, nil
}
