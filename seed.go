package estuary

import "time"

// newFileSeed returns a fresh hash seed for a newly created file, the
// same nanosecond-since-epoch source GetSeed in
// _examples/original_source/src/internal.h uses.
func newFileSeed() uint64 {
	return uint64(time.Now().UnixNano())
}
