// Package differ implements the Differ (§4.4): it classifies every page of
// a modified snapshot against zero, base-memory, base-disk and self
// references and emits a DeltaList holding only what differs from base.
package differ

import (
	"context"
	"crypto/sha256"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/elijah-cloudlet/memoverlay/internal/baseindex"
	"github.com/elijah-cloudlet/memoverlay/internal/delta"
	"github.com/elijah-cloudlet/memoverlay/internal/freepfn"
	"github.com/elijah-cloudlet/memoverlay/internal/memerr"
	"github.com/elijah-cloudlet/memoverlay/internal/pagehash"
	"github.com/elijah-cloudlet/memoverlay/internal/qemuformat"
	"github.com/elijah-cloudlet/memoverlay/internal/ramstream"
	"github.com/elijah-cloudlet/memoverlay/internal/xdelta"
)

// defaultSafetyCeiling is the reference implementation's 10^6-item guard
// against diffing against an unrelated base (§4.4 step 4).
const defaultSafetyCeiling = 1_000_000

// Options configures one Run call. All fields are optional.
type Options struct {
	// FreePfn, if non-nil, is used to invoke the external free-page
	// scanner. A nil FreePfn means "do not attempt free-page suppression."
	FreePfn *freepfn.Config
	// BaseDisk, if non-nil, is consulted in Phase B after BASE_MEM.
	BaseDisk *baseindex.Index
	// SafetyCeiling overrides defaultSafetyCeiling; zero means "use the
	// default."
	SafetyCeiling int
	Log           *logrus.Entry
}

// Result is the Differ's output: the classified DeltaList plus the count
// of pages dropped because they were on the guest's free list.
type Result struct {
	Items      delta.List
	FreedCount int
}

// Run classifies every page of the snapshot at modifiedPath against base
// and returns the resulting DeltaList.
func Run(ctx context.Context, modifiedPath string, base *baseindex.Index, opts Options) (*Result, error) {
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "differ").WithField("modified", modifiedPath)

	f, err := os.Open(modifiedPath)
	if err != nil {
		return nil, errors.Wrap(err, "differ: open modified snapshot")
	}
	defer f.Close()

	if _, err := f.Seek(ramstream.BodyOffset, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "differ: seek to stream body")
	}
	_, ramInfo, err := ramstream.Parse(f)
	if err != nil {
		return nil, errors.Wrap(err, "differ: parse modified snapshot header")
	}

	freeSet, err := resolveFreeSet(ctx, modifiedPath, ramInfo, opts.FreePfn, log)
	if err != nil {
		return nil, err
	}

	block, ok := ramInfo[qemuformat.RamIDString]
	if !ok {
		return nil, errors.New("differ: ram info missing pc.ram block")
	}
	ramStart := block.Offset
	ramEnd := ramStart + int64(block.Length)

	ceiling := opts.SafetyCeiling
	if ceiling == 0 {
		ceiling = defaultSafetyCeiling
	}

	// Item.Offset is guest-relative (relative to the start of pc.ram), the
	// same addressing base's own hash list and reconstruct use; absPageIdx
	// stays file-relative since that's the space freepfn.Shift reports in.
	var items delta.List
	freed := 0
	buf := make([]byte, qemuformat.PageSize)
	for off := ramStart; off+qemuformat.PageSize <= ramEnd; off += qemuformat.PageSize {
		if _, err := f.ReadAt(buf, off); err != nil && err != io.EOF {
			return nil, errors.Wrapf(err, "differ: read page at %d", off)
		}
		h := pagehash.Hash(sha256.Sum256(buf))
		guestOff := off - ramStart
		guestPageIdx := guestOff / qemuformat.PageSize
		absPageIdx := off / qemuformat.PageSize

		if baseHash, ok := base.HashAt(guestPageIdx); ok && baseHash == h {
			continue
		}
		if freeSet != nil {
			if _, isFree := freeSet[absPageIdx]; isFree {
				freed++
				continue
			}
		}

		item, err := classify(base, guestOff, h, buf)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if len(items) > ceiling {
			return nil, memerr.NewAtf(memerr.SuspectBaseMismatch, guestOff,
				"emitted %d delta items, exceeding the safety ceiling of %d; base is likely not this snapshot's ancestor", len(items), ceiling)
		}

		if len(items)%(100) == 0 {
			log.WithField("items", len(items)).Debug("differ progress")
		}
	}

	log.WithFields(logrus.Fields{"phase": "cross-reference"}).Info("classifying against zero, base-memory and base-disk")
	zeroSource := pagehash.List{{Offset: -1, Length: qemuformat.PageSize, Hash: pagehash.ZeroPage}}
	delta.DiffWithHashList(zeroSource, items, delta.RefZero)
	delta.DiffWithHashList(base.Hashes(), items, delta.RefBaseMem)
	if opts.BaseDisk != nil {
		delta.DiffWithHashList(opts.BaseDisk.Hashes(), items, delta.RefBaseDisk)
	}

	log.WithField("phase", "self-delta").Info("classifying self-references")
	delta.GetSelfDelta(items)

	return &Result{Items: items, FreedCount: freed}, nil
}

// classify computes the single-page encoding decision of §4.4 step 3(c):
// try an xdelta patch against the base page first, falling back to RAW
// when xdelta fails or doesn't win.
func classify(base *baseindex.Index, off int64, h pagehash.Hash, page []byte) (*delta.Item, error) {
	srcPage, err := base.ReadPage(off, qemuformat.PageSize)
	if err == nil {
		patch, xerr := xdelta.Diff(srcPage, page, 2*qemuformat.PageSize)
		if xerr == nil && len(patch) < qemuformat.PageSize {
			return &delta.Item{
				Offset:  off,
				Length:  qemuformat.PageSize,
				Hash:    h,
				Ref:     delta.RefXdelta,
				Payload: patch,
			}, nil
		}
		// XdeltaFailure (or a non-winning patch) is recoverable: fall back
		// to RAW for this page per §7.
	}
	raw := make([]byte, len(page))
	copy(raw, page)
	return &delta.Item{
		Offset:  off,
		Length:  qemuformat.PageSize,
		Hash:    h,
		Ref:     delta.RefRaw,
		Payload: raw,
	}, nil
}

func resolveFreeSet(ctx context.Context, modifiedPath string, ramInfo ramstream.RamInfo, cfg *freepfn.Config, log *logrus.Entry) (map[int64]struct{}, error) {
	if cfg == nil {
		return nil, nil
	}
	block, ok := ramInfo[qemuformat.RamIDString]
	if !ok {
		return nil, errors.New("differ: ram info missing pc.ram block")
	}
	memSizeMB := block.Length / (1024 * 1024)
	raw, err := freepfn.Scan(ctx, modifiedPath, memSizeMB, *cfg, log)
	if err != nil {
		return nil, errors.Wrap(err, "differ: free-page scan")
	}
	if raw == nil {
		return nil, nil
	}
	return freepfn.Shift(raw, block.Offset/qemuformat.PageSize), nil
}
