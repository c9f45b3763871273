//go:build estuary_checks

package estuary

// consistencyAssert panics with a DataError when an internal invariant is
// violated. Only compiled in with the estuary_checks build tag, mirroring
// the original library's ENABLE_CONSISTENCY_CHECK-gated ConsistencyAssert.
func consistencyAssert(condition bool, msg string) {
	if !condition {
		panic(&DataError{Msg: msg})
	}
}
