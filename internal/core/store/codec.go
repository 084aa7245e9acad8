package store

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/dmbot/dmbot/internal/core"
)

var (
	snapshotEncMode cbor.EncMode
	snapshotDecMode cbor.DecMode
)

func init() {
	var err error
	snapshotEncMode, err = cbor.EncOptions{
		Sort: cbor.SortCanonical,
		Time: cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor encode mode: %v", err))
	}
	snapshotDecMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("cbor decode mode: %v", err))
	}
}

// EncodeSnapshot renders snap as deterministic CBOR.
func EncodeSnapshot(snap *core.Snapshot) ([]byte, error) {
	if snap == nil {
		snap = core.NewSnapshot()
	}
	data, err := snapshotEncMode.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot parses CBOR produced by EncodeSnapshot.
func DecodeSnapshot(data []byte) (*core.Snapshot, error) {
	snap := &core.Snapshot{}
	if err := snapshotDecMode.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrStateCorrupt, err)
	}
	snap.Normalize()
	return snap, nil
}
