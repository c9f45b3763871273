package estuary

import "fmt"

// VConfig describes a new V-engine dictionary at creation time, ported
// from the Config struct in _examples/original_source/include/estuary.h.
type VConfig struct {
	// ItemLimit bounds how many live records the dictionary will ever
	// hold at once; it also fixes the entry table size for the life of
	// the file (Extend only grows the data region).
	ItemLimit uint64
	// MaxKeyLen and MaxValLen bound a single record's key and value.
	MaxKeyLen uint32
	MaxValLen uint32
	// AvgItemSize estimates the mean key+value size across ItemLimit
	// records; it sizes the data region. A skewed size distribution
	// needs a somewhat generous estimate, since CreateV retries once
	// with a larger estimate derived from observed padding if the
	// supplied source overflows the first attempt.
	AvgItemSize uint32
}

func (c VConfig) Validate() error {
	totalEntry := calcTotalEntry(c.ItemLimit)
	switch {
	case totalEntry < minEntry || totalEntry > maxEntry:
		return fmt.Errorf("%w: item limit %d yields entry count %d outside [%d,%d]",
			ErrBadArgument, c.ItemLimit, totalEntry, minEntry, maxEntry)
	case c.MaxKeyLen == 0 || c.MaxKeyLen > maxKeyLenLimit:
		return fmt.Errorf("%w: max key len %d outside [1,%d]", ErrBadArgument, c.MaxKeyLen, maxKeyLenLimit)
	case c.MaxValLen == 0 || c.MaxValLen > maxValLenLimit:
		return fmt.Errorf("%w: max val len %d outside [1,%d]", ErrBadArgument, c.MaxValLen, maxValLenLimit)
	case c.AvgItemSize < 2 || c.AvgItemSize > c.MaxKeyLen+c.MaxValLen:
		return fmt.Errorf("%w: avg item size %d outside [2,%d]", ErrBadArgument, c.AvgItemSize, c.MaxKeyLen+c.MaxValLen)
	}
	return nil
}

const (
	maxKeyLenLimit = uint32(1<<8) - 1
	maxValLenLimit = uint32(1<<24) - 1
)

// FConfig describes a new F-engine dictionary, ported from the Config
// struct in _examples/original_source/include/lucky_estuary.h. Unlike the
// V-engine, both key and value length are fixed per file: every record is
// the same size, which is what lets the F-engine use a direct bucket
// index instead of open addressing.
type FConfig struct {
	Entry    uint64
	Capacity uint32
	KeyLen   uint8
	// ValLen is a uint32, not uint16, because the fixed value length
	// upper bound (UINT16_MAX+1 = 65536) does not fit in a uint16.
	ValLen uint32
}

func (c FConfig) Validate() error {
	switch {
	case c.Capacity < minCapacity || c.Capacity > maxCapacity:
		return fmt.Errorf("%w: capacity %d outside [%d,%d]", ErrBadArgument, c.Capacity, minCapacity, maxCapacity)
	case c.Entry == 0 || c.Entry > uint64(c.Capacity)*maxLoadFactor ||
		uint64(c.Capacity)/c.Entry > maxLoadFactor:
		return fmt.Errorf("%w: entry %d inconsistent with capacity %d", ErrBadArgument, c.Entry, c.Capacity)
	case c.KeyLen == 0:
		return fmt.Errorf("%w: key len must be nonzero", ErrBadArgument)
	case c.ValLen == 0 || c.ValLen > fMaxValLen:
		return fmt.Errorf("%w: val len %d outside [1,%d]", ErrBadArgument, c.ValLen, fMaxValLen)
	}
	return nil
}

const (
	minCapacity   = uint32(1 << 16)
	maxCapacity   = ^uint32(0) - uint32(1<<16)
	maxLoadFactor = 2
	fMaxValLen    = uint32(1 << 16)
)
