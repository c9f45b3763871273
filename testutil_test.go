package estuary

import "os"

// writeJunkFile writes n zero bytes to path, standing in for a corrupted or
// foreign file when exercising Load's header validation.
func writeJunkFile(path string, n int) error {
	return os.WriteFile(path, make([]byte, n), 0644)
}
