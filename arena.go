package transcend

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"unsafe"

	"github.com/pboyd/malloc"
)

// arena hands out executable memory for trampolines. Its pages are read+exec
// except while place or release is writing to them.
type arena struct {
	mu      sync.Mutex
	heap    *malloc.Arena
	protect func(int) error

	// blocks handed out by place and not yet released
	live int
}

func (a *arena) init() error {
	if a.heap != nil {
		return nil
	}

	be := malloc.MmapBackend(malloc.MmapProt(mprotectExec), malloc.MmapFlags(mmapFlags))
	a.protect = func(int) error {
		return nil
	}
	if protBE, ok := be.(malloc.ProtectedArenaBackend); ok {
		a.protect = protBE.Protect
	}

	a.heap = malloc.NewArena(uint64(os.Getpagesize()), malloc.Backend(be))
	if a.heap == nil {
		return errors.New("unable to initialize arena")
	}
	return nil
}

// writable runs fn with every page of the arena writable and puts them back
// to read+exec afterwards, including pages fn caused the arena to map.
func (a *arena) writable(fn func() error) error {
	if err := a.protect(mprotectRWX); err != nil {
		return fmt.Errorf("unable to make arena writable: %w", err)
	}

	err := fn()
	if perr := a.protect(mprotectRX); perr != nil {
		err = errors.Join(err, fmt.Errorf("unable to make arena executable: %w", perr))
	}
	return err
}

// place copies code into a fresh executable block and returns it.
func (a *arena) place(code []byte) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.init(); err != nil {
		return nil, err
	}

	var buf []byte
	err := a.writable(func() error {
		var err error
		buf, err = malloc.MallocSlice[byte](a.heap, len(code))
		if err != nil {
			return err
		}
		copy(buf, code)
		return nil
	})
	if err != nil {
		if buf != nil {
			malloc.FreeSlice(a.heap, buf)
		}
		return nil, err
	}

	a.live++
	return buf, nil
}

// release returns a block obtained from place.
func (a *arena) release(buf []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.heap == nil {
		return errors.New("release before place")
	}

	err := a.writable(func() error {
		malloc.FreeSlice(a.heap, buf)
		return nil
	})
	a.live--
	return err
}

// blocks returns the number of blocks placed and not yet released.
func (a *arena) blocks() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}

func sliceAddr(buf []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
}

var codeArena = &arena{}
