package dataspace

import (
	"fmt"
	"math"

	"github.com/vmihailenco/msgpack/v5"
)

// MarshalPackets encodes save packets for transfer to another process.
// Row states keep their numeric wire values.
func MarshalPackets(packets []*SavePacket) ([]byte, error) {
	b, err := msgpack.Marshal(packets)
	if err != nil {
		return nil, fmt.Errorf("dataspace: marshal packets: %w", err)
	}
	return b, nil
}

// UnmarshalPackets decodes packets produced by MarshalPackets. Integer
// column values come back as int64 whatever width they were encoded with,
// except unsigned values above math.MaxInt64 which stay uint64.
func UnmarshalPackets(data []byte) ([]*SavePacket, error) {
	var packets []*SavePacket
	if err := msgpack.Unmarshal(data, &packets); err != nil {
		return nil, fmt.Errorf("dataspace: unmarshal packets: %w", err)
	}
	for i, p := range packets {
		switch p.RowState {
		case Unchanged, Added, Deleted, Modified:
		default:
			return nil, fmt.Errorf("dataspace: unmarshal packets: packet %d has invalid state %d", i, int(p.RowState))
		}
		normalizeInts(p.CurrentValues)
		normalizeInts(p.OriginalValues)
	}
	return packets, nil
}

func normalizeInts(values map[string]any) {
	for k, v := range values {
		values[k] = normalizeInt(v)
	}
}

func normalizeInt(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint:
		if uint64(n) <= math.MaxInt64 {
			return int64(n)
		}
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		if n <= math.MaxInt64 {
			return int64(n)
		}
	}
	return v
}
