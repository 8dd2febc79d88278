package backlight

import (
	"fmt"
	"math"
)

const (
	defaultTableSize = 512
	defaultOutputMax = 255
	defaultGamma     = 2.2
)

// DefaultLookupTable maps apple-panel-bl readings onto the touch bar
// backlight, whose response is far steeper than the panel's.
var DefaultLookupTable = gammaTable(defaultTableSize, defaultOutputMax, defaultGamma)

// LookupTable maps source brightness readings to output brightness values.
// It is immutable once built.
type LookupTable struct {
	values []uint32
}

// TableBuilder builds a lookup table for a source with readings 0..sourceMax
// and an output accepting 0..outputMax.
type TableBuilder func(sourceMax, outputMax uint32) (LookupTable, error)

// NewLookupTable copies values into a table. The values must be non-decreasing.
func NewLookupTable(values []uint32) (LookupTable, error) {
	if len(values) == 0 {
		return LookupTable{}, fmt.Errorf("lookup table is empty")
	}
	for i := 1; i < len(values); i++ {
		if values[i] < values[i-1] {
			return LookupTable{}, fmt.Errorf("lookup table decreases at index %d (%d < %d)", i, values[i], values[i-1])
		}
	}
	return LookupTable{values: append([]uint32(nil), values...)}, nil
}

// Len returns the number of entries.
func (t LookupTable) Len() int { return len(t.values) }

// Lookup returns the output value for a source reading.
func (t LookupTable) Lookup(index uint32) (uint32, error) {
	if uint64(index) >= uint64(len(t.values)) {
		return 0, fmt.Errorf("%w: %d (table has %d entries)", ErrLookupOutOfRange, index, len(t.values))
	}
	return t.values[index], nil
}

func gammaTable(size int, outMax uint32, gamma float64) LookupTable {
	values := make([]uint32, size)
	last := float64(size - 1)
	for i := 1; i < size; i++ {
		values[i] = uint32(math.Round(float64(outMax) * math.Pow(float64(i)/last, 1/gamma)))
	}
	return LookupTable{values: values}
}
