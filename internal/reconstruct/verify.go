package reconstruct

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/elijah-cloudlet/memoverlay/internal/delta"
	"github.com/elijah-cloudlet/memoverlay/internal/memerr"
	"github.com/elijah-cloudlet/memoverlay/internal/qemuformat"
)

// Verify byte-compares reconstructedPath against originalModifiedPath
// page-by-page, then re-checks every DeltaItem's payload against the
// original at its offset (§4.6). It is only ever invoked in test/debug
// mode; production reconstruction does not call it.
func Verify(reconstructedPath, originalModifiedPath string, items delta.List) error {
	rf, err := os.Open(reconstructedPath)
	if err != nil {
		return errors.Wrap(err, "verify: open reconstructed snapshot")
	}
	defer rf.Close()

	of, err := os.Open(originalModifiedPath)
	if err != nil {
		return errors.Wrap(err, "verify: open original snapshot")
	}
	defer of.Close()

	const chunk = qemuformat.PageSize // one page at a time, so a divergence is reported at its page offset
	bufA := make([]byte, chunk)
	bufB := make([]byte, chunk)
	offset := int64(0)
	for {
		na, erra := io.ReadFull(rf, bufA)
		nb, errb := io.ReadFull(of, bufB)
		if na == 0 && nb == 0 {
			break
		}
		if na != nb || !bytes.Equal(bufA[:na], bufB[:nb]) {
			return memerr.NewAt(memerr.VerificationFailed, offset, "reconstructed snapshot diverges from the original")
		}
		offset += int64(na)
		if erra == io.EOF || errb == io.EOF || erra == io.ErrUnexpectedEOF || errb == io.ErrUnexpectedEOF {
			break
		}
		if erra != nil {
			return errors.Wrap(erra, "verify: read reconstructed snapshot")
		}
		if errb != nil {
			return errors.Wrap(errb, "verify: read original snapshot")
		}
	}

	for _, it := range items {
		want := make([]byte, it.Length)
		if _, err := of.ReadAt(want, it.Offset); err != nil {
			return errors.Wrapf(err, "verify: read original at overlay offset %d", it.Offset)
		}
		if !bytes.Equal(want, it.Payload) {
			return memerr.NewAt(memerr.VerificationFailed, it.Offset, "overlay item payload diverges from the original at its own offset")
		}
	}
	return nil
}
