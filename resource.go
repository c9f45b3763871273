package estuary

import (
	"bytes"
	"fmt"
	"os"

	"github.com/natefinch/atomic"
	"golang.org/x/sys/unix"
)

// LoadPolicy selects how Load maps an existing file.
type LoadPolicy int

const (
	// PolicySHARED maps the file read/write with a shared advisory lock,
	// allowing any number of other SHARED opens to map it too; a MONOPOLY
	// or CopyData open, which needs an exclusive flock, is refused while
	// any SHARED lock is held.
	PolicySHARED LoadPolicy = iota
	// PolicyMonopoly takes an exclusive advisory lock and relocates the
	// master mutex into handle-local memory instead of the mapping,
	// since a single exclusive opener needs no process-shared lock.
	PolicyMonopoly
	// PolicyCopyData reads the whole file into a private anonymous
	// mapping; the handle owns this copy exclusively and releases the
	// file lock as soon as the copy completes.
	PolicyCopyData
)

// resourceMap owns one memory-mapped region, plus (for SHARED/MONOPOLY)
// the backing file descriptor and its advisory lock. It is the "mmap of
// the file, exclusive/shared advisory file lock, optional anonymous copy"
// component the spec scopes out as an external collaborator; this is its
// concrete implementation, grounded on the mmap/flock handling in
// _examples/original_source/src/utils.cc's MemMap constructors, ported
// from raw syscall/mmap to golang.org/x/sys/unix.
type resourceMap struct {
	addr   []byte
	file   *os.File
	policy LoadPolicy
}

// anonRoundUp rounds n up to a 2MiB boundary, the same granularity
// _examples/original_source/src/utils.cc's RoundUp uses so an anonymous
// mapping can be backed by huge pages.
func anonRoundUp(n int) int {
	const m = 0x1fffff
	return (n + m) &^ m
}

func createFileMap(path string, size int64) (*resourceMap, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("estuary: open %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		logf("fail to init: %s: %v", path, err)
		return nil, newLockError("flock "+path, err)
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("estuary: truncate %s: %w", path, err)
	}
	addr, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("estuary: mmap %s: %w", path, err)
	}
	return &resourceMap{addr: addr, file: f, policy: PolicyMonopoly}, nil
}

func loadFileMap(path string, policy LoadPolicy) (*resourceMap, error) {
	switch policy {
	case PolicySHARED, PolicyMonopoly:
		return loadSharedOrMonopoly(path, policy)
	case PolicyCopyData:
		return loadByCopy(path)
	default:
		return nil, fmt.Errorf("%w: unknown load policy %d", ErrBadArgument, policy)
	}
}

func loadSharedOrMonopoly(path string, policy LoadPolicy) (*resourceMap, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("estuary: open %s: %w", path, err)
	}
	flag := unix.LOCK_SH
	if policy == PolicyMonopoly {
		flag = unix.LOCK_EX
	}
	if err := unix.Flock(int(f.Fd()), flag|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, newLockError("flock "+path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("estuary: stat %s: %w", path, err)
	}
	size := fi.Size()
	if size <= 0 {
		f.Close()
		return nil, fmt.Errorf("%w: empty file", ErrBrokenFile)
	}
	addr, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("estuary: mmap %s: %w", path, err)
	}
	return &resourceMap{addr: addr, file: f, policy: policy}, nil
}

func loadByCopy(path string) (*resourceMap, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("estuary: open %s: %w", path, err)
	}
	defer f.Close()
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		return nil, newLockError("flock "+path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("estuary: stat %s: %w", path, err)
	}
	size := int(fi.Size())
	if size <= 0 {
		return nil, fmt.Errorf("%w: empty file", ErrBrokenFile)
	}

	full := anonRoundUp(size)
	addr, err := unix.Mmap(-1, 0, full, unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON|unix.MAP_HUGETLB)
	if err != nil {
		addr, err = unix.Mmap(-1, 0, full, unix.PROT_READ|unix.PROT_WRITE,
			unix.MAP_PRIVATE|unix.MAP_ANON)
	}
	if err != nil {
		return nil, fmt.Errorf("estuary: anon mmap: %w", err)
	}
	if _, err := f.ReadAt(addr[:size], 0); err != nil {
		unix.Munmap(addr)
		return nil, fmt.Errorf("estuary: read %s: %w", path, err)
	}
	return &resourceMap{addr: addr[:size], policy: PolicyCopyData}, nil
}

// dump snapshots the mapped bytes to path, written atomically so a crash
// mid-write never leaves a torn file in place.
func (r *resourceMap) dump(path string) error {
	return atomic.WriteFile(path, bytes.NewReader(r.addr))
}

// openRWSized opens path for read/write and reports its current size,
// used by ExtendV/ExtendF which need a raw file handle to truncate and
// remap rather than the full createFileMap/loadFileMap lifecycle.
func openRWSized(path string) (*os.File, int64, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, 0, fmt.Errorf("estuary: open %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("estuary: stat %s: %w", path, err)
	}
	return f, fi.Size(), nil
}

func mmapRW(f *os.File, size int64) ([]byte, error) {
	return unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

func munmapQuiet(addr []byte) {
	_ = unix.Munmap(addr)
}

func (r *resourceMap) close() error {
	var ferr error
	if r.addr != nil {
		if err := unix.Munmap(r.addr); err != nil {
			ferr = err
		}
		r.addr = nil
	}
	if r.file != nil {
		if err := r.file.Close(); err != nil && ferr == nil {
			ferr = err
		}
		r.file = nil
	}
	return ferr
}
