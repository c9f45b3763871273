//go:build !estuary_checks

package estuary

// consistencyAssert is a no-op unless built with the estuary_checks tag.
func consistencyAssert(condition bool, msg string) {}
