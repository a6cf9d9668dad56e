package delta

import (
	"github.com/pkg/errors"

	"github.com/elijah-cloudlet/memoverlay/internal/baseindex"
	"github.com/elijah-cloudlet/memoverlay/internal/xdelta"
)

// Resolve fills in concrete page bytes for every item in l, the step §4.5
// assumes has already happened by the time a DeltaList reaches the
// Reconstructor: ZERO items get a fresh all-zero page, BASE_MEM/BASE_DISK
// items are read from the matching Index, XDELTA items are decoded against
// their source base page, and SELF items copy their survivor's resolved
// payload. RAW items are left untouched; they already carry raw bytes.
//
// baseDisk may be nil if no item references it; base may only be nil if
// the list contains no BASE_MEM, XDELTA or SELF-of-those items.
func Resolve(l List, base, baseDisk *baseindex.Index) error {
	for _, it := range l {
		switch it.Ref {
		case RefZero:
			it.Payload = make([]byte, it.Length)
		case RefBaseMem:
			if base == nil {
				return errors.Errorf("delta: resolve BASE_MEM item at %d: no base memory index", it.Offset)
			}
			page, err := base.ReadPage(it.RefOffset, it.Length)
			if err != nil {
				return errors.Wrapf(err, "delta: resolve BASE_MEM item at %d", it.Offset)
			}
			it.Payload = append([]byte(nil), page...)
		case RefBaseDisk:
			if baseDisk == nil {
				return errors.Errorf("delta: resolve BASE_DISK item at %d: no base disk index", it.Offset)
			}
			page, err := baseDisk.ReadPage(it.RefOffset, it.Length)
			if err != nil {
				return errors.Wrapf(err, "delta: resolve BASE_DISK item at %d", it.Offset)
			}
			it.Payload = append([]byte(nil), page...)
		case RefXdelta:
			if base == nil {
				return errors.Errorf("delta: resolve XDELTA item at %d: no base memory index", it.Offset)
			}
			source, err := base.ReadPage(it.Offset, it.Length)
			if err != nil {
				return errors.Wrapf(err, "delta: resolve XDELTA item at %d", it.Offset)
			}
			raw, err := xdelta.Apply(source, it.Payload)
			if err != nil {
				return errors.Wrapf(err, "delta: apply xdelta patch at %d", it.Offset)
			}
			it.Payload = raw
		}
	}
	// SELF items reference another item's offset; resolve them in a second
	// pass so the referenced item's payload is already concrete regardless
	// of list order.
	byOffset := make(map[int64]*Item, len(l))
	for _, it := range l {
		if it.Ref != RefSelf {
			byOffset[it.Offset] = it
		}
	}
	for _, it := range l {
		if it.Ref != RefSelf {
			continue
		}
		src, ok := byOffset[it.RefOffset]
		if !ok || src.Payload == nil {
			return errors.Errorf("delta: resolve SELF item at %d: dangling reference to %d", it.Offset, it.RefOffset)
		}
		it.Payload = append([]byte(nil), src.Payload...)
	}
	return nil
}
