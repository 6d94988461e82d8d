package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"voxelstreams.ai/internal/sim/stream/flow"
)

// EncodeFlows encodes a flow grid as base64(varint pairs) of (flow, run_len).
// Painted chunks are mostly dry, so long None runs collapse to a few bytes.
func EncodeFlows(cells []flow.Flow) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	for i := 0; i < len(cells); {
		f := cells[i]
		run := 1
		for j := i + 1; j < len(cells) && cells[j] == f; j++ {
			run++
		}
		n := binary.PutUvarint(tmp[:], uint64(f))
		buf.Write(tmp[:n])
		n = binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])
		i += run
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeFlows reverses EncodeFlows. size is the expected cell count; the
// payload must expand to exactly that many cells.
func DecodeFlows(b64 string, size int) ([]flow.Flow, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	out := make([]flow.Flow, 0, size)
	for i := 0; i < len(raw); {
		f, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if f > uint64(flow.None) {
			return nil, fmt.Errorf("flow value out of range: %d", f)
		}
		if run == 0 || run > uint64(size-len(out)) {
			return nil, fmt.Errorf("run of %d overflows %d cells", run, size)
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, flow.Flow(f))
		}
	}
	if len(out) != size {
		return nil, fmt.Errorf("decoded %d cells, want %d", len(out), size)
	}
	return out, nil
}
