package delta

import (
	"sort"

	"github.com/elijah-cloudlet/memoverlay/internal/pagehash"
)

// SortByOffset sorts the list in place, ascending by offset, stably.
func (l List) SortByOffset() {
	sort.SliceStable(l, func(i, j int) bool {
		return l[i].Offset < l[j].Offset
	})
}

// Stats summarizes a DeltaList by ref kind, the way the original
// DeltaList.statistics helper reported overlay composition after a diff.
type Stats struct {
	Count      map[RefKind]int
	PayloadLen map[RefKind]int64
}

// Statistics computes per-ref-kind counts and payload byte totals.
func Statistics(l List) Stats {
	s := Stats{
		Count:      make(map[RefKind]int),
		PayloadLen: make(map[RefKind]int64),
	}
	for _, it := range l {
		s.Count[it.Ref]++
		s.PayloadLen[it.Ref] += int64(len(it.Payload))
	}
	return s
}

// DiffWithHashList re-tags any item in l whose hash matches an entry in
// source with ref. Only items still carrying a concrete payload (RefRaw or
// RefXdelta — i.e. not yet classified by an earlier, cheaper source) are
// considered, so calling this for ZERO before BASE_MEM before BASE_DISK
// gives earlier sources priority as required by §4.4 Phase B.
func DiffWithHashList(source pagehash.List, l List, ref RefKind) {
	if len(source) == 0 {
		return
	}
	index := make(map[Hash]int64, len(source))
	for _, e := range source {
		if _, exists := index[e.Hash]; !exists {
			index[e.Hash] = e.Offset
		}
	}
	for _, it := range l {
		if it.Ref != RefRaw && it.Ref != RefXdelta {
			continue
		}
		if srcOffset, ok := index[it.Hash]; ok {
			it.Ref = ref
			it.RefOffset = srcOffset
			it.Payload = nil
		}
	}
}

// Hash is an alias so this file doesn't need to import pagehash twice for
// the map key type.
type Hash = pagehash.Hash

// GetSelfDelta implements Phase C: among items still unresolved (RefRaw or
// RefXdelta), group by hash and rewrite every member but the first
// survivor as a RefSelf reference to it.
func GetSelfDelta(l List) {
	firstByHash := make(map[Hash]*Item)
	for _, it := range l {
		if it.Ref != RefRaw && it.Ref != RefXdelta {
			continue
		}
		if survivor, ok := firstByHash[it.Hash]; ok {
			it.Ref = RefSelf
			it.RefOffset = survivor.Offset
			it.Payload = nil
			continue
		}
		firstByHash[it.Hash] = it
	}
}
