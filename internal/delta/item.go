// Package delta implements the DeltaItem/DeltaList container format and
// the cross-source classification routines §6 attributes to an external
// "DeltaList module": ref-kind tagging, self-deduplication, on-disk
// encoding, and payload resolution ahead of reconstruction.
package delta

import (
	"fmt"

	"github.com/elijah-cloudlet/memoverlay/internal/pagehash"
)

// RefKind tags how a DeltaItem should be reconstructed. The six kinds are
// a closed set, modeled here as an enum rather than a type hierarchy per
// §9 ("dynamic dispatch / ref-kind polymorphism").
type RefKind uint8

const (
	RefRaw RefKind = iota
	RefXdelta
	RefZero
	RefBaseMem
	RefBaseDisk
	RefSelf
)

func (k RefKind) String() string {
	switch k {
	case RefRaw:
		return "RAW"
	case RefXdelta:
		return "XDELTA"
	case RefZero:
		return "ZERO"
	case RefBaseMem:
		return "BASE_MEM"
	case RefBaseDisk:
		return "BASE_DISK"
	case RefSelf:
		return "SELF"
	default:
		return fmt.Sprintf("RefKind(%d)", uint8(k))
	}
}

// Item is one page's worth of change information.
//
// Payload holds the raw page bytes for RefRaw, the xdelta patch bytes for
// RefXdelta (until Resolve decodes it), and is nil for RefZero/RefBaseMem/
// RefBaseDisk/RefSelf until Resolve fills it in. RefOffset names the
// cross-reference source offset for RefBaseMem/RefBaseDisk/RefSelf; it is
// unused for the other kinds.
type Item struct {
	Offset    int64
	Length    uint32
	Hash      pagehash.Hash
	Ref       RefKind
	Payload   []byte
	RefOffset int64
}

// List is an ordered sequence of Item. The Differ's linear page scan
// produces these in strictly increasing offset order (§5); cross-reference
// and self-delta passes preserve that order, but Reconstructor re-sorts
// defensively before use since a deserialized overlay file carries no such
// guarantee.
type List []*Item
