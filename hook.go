package transcend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"sync"
	"unsafe"
)

var (
	// ErrDoubleHook means the target overlaps a hook that's already installed.
	ErrDoubleHook = errors.New("double hook")
	// ErrHookNotFound means the hook was already removed.
	ErrHookNotFound = errors.New("hook not found")
	// ErrNilAddress means a target or replacement address was zero.
	ErrNilAddress = errors.New("nil address")
	// ErrUnsupportedArch means inline hooks aren't implemented for GOARCH.
	ErrUnsupportedArch = errors.New("inline hooks are only supported on amd64")
)

// Hook is an installed inline hook. It holds everything needed to undo it.
type Hook struct {
	// Target is the patched address.
	Target uintptr

	// Trampoline is the entry point of a copy of the original prologue
	// that jumps back to Target+PatchSize.
	Trampoline uintptr

	// Original holds the bytes at Target before they were patched.
	Original [PatchSize]byte

	// Protection is the page protection Target had before the hook, as
	// the platform reports it (PROT_* on Unix, PAGE_* on Windows). When the
	// patch crosses into a second page, that page keeps its own protection.
	Protection int

	trampoline []byte
}

// protectFunc changes page protection for patch writes.
var protectFunc = protect

// pageProtection is the protection a page had before it was made writable.
type pageProtection struct {
	addr uintptr
	prot int
}

// makeWritable makes every page overlapping [addr, addr+size) writable and
// returns the protection each one had, in address order.
func makeWritable(addr, size uintptr) ([]pageProtection, error) {
	pageSize := uintptr(os.Getpagesize())

	var pages []pageProtection
	for page := addr &^ (pageSize - 1); page < addr+size; page += pageSize {
		old, err := protectFunc(page, 1, mprotectRWX)
		if err != nil {
			return nil, errors.Join(
				fmt.Errorf("unable to make %#x writable: %w", page, err),
				restoreProtection(pages),
			)
		}
		pages = append(pages, pageProtection{addr: page, prot: old})
	}
	return pages, nil
}

// restoreProtection puts each page back to its saved protection.
func restoreProtection(pages []pageProtection) error {
	var errs []error
	for _, p := range pages {
		if _, err := protectFunc(p.addr, 1, p.prot); err != nil {
			errs = append(errs, fmt.Errorf("unable to restore protection at %#x: %w", p.addr, err))
		}
	}
	return errors.Join(errs...)
}

// writeCode copies b to addr with the pages under it temporarily writable
// and returns their protection from before the write. If the protection
// can't be restored, the previous bytes are put back before returning.
func writeCode(addr uintptr, b []byte) ([]pageProtection, error) {
	pages, err := makeWritable(addr, uintptr(len(b)))
	if err != nil {
		return nil, err
	}

	code := unsafe.Slice((*byte)(unsafe.Pointer(addr)), len(b))
	prev := bytes.Clone(code)
	copy(code, b)

	if err := restoreProtection(pages); err != nil {
		// Some pages may be back to read+exec already.
		if _, werr := makeWritable(addr, uintptr(len(b))); werr != nil {
			return nil, errors.Join(err, werr)
		}
		copy(code, prev)
		return nil, errors.Join(err, restoreProtection(pages))
	}

	return pages, nil
}

var (
	// hooks applied with target addresses as keys
	hooks = map[uintptr]*Hook{}
	// protect the hooks map
	hooksMu sync.Mutex
)

// Install patches the code at target to jump to replacement.
//
// The first PatchSize bytes at target are replaced by an absolute jump
// through RAX. The replacement must be reachable from the target's callers
// with that register clobbered, which holds for every native x86-64 C ABI
// function and for Go functions whose first argument isn't an integer.
//
// Install doesn't suspend other threads. The caller must ensure nothing is
// executing the first PatchSize bytes of target while it runs.
func Install(target, replacement uintptr) (*Hook, error) {
	if target == 0 || replacement == 0 {
		return nil, ErrNilAddress
	}

	hooksMu.Lock()
	defer hooksMu.Unlock()

	for t := range hooks {
		if target < t+PatchSize && t < target+PatchSize {
			return nil, fmt.Errorf("%w: %#x overlaps hook at %#x", ErrDoubleHook, target, t)
		}
	}

	h := &Hook{Target: target}
	code := unsafe.Slice((*byte)(unsafe.Pointer(target)), PatchSize)
	copy(h.Original[:], code)

	// Build everything before the target is touched so a failure leaves
	// it intact.
	patch := make([]byte, PatchSize)
	if err := insertJump(patch, replacement); err != nil {
		return nil, err
	}

	tramp, err := buildTrampoline(h.Original[:], target+PatchSize)
	if err != nil {
		return nil, err
	}
	h.trampoline, err = codeArena.place(tramp)
	if err != nil {
		return nil, fmt.Errorf("unable to allocate trampoline: %w", err)
	}
	h.Trampoline = sliceAddr(h.trampoline)

	pages, err := writeCode(target, patch)
	if err != nil {
		return nil, errors.Join(
			fmt.Errorf("unable to patch %#x: %w", target, err),
			codeArena.release(h.trampoline),
		)
	}
	h.Protection = pages[0].prot

	hooks[target] = h
	logPatch("hook installed", h, code)

	return h, nil
}

// InstallFunc is like Install with the entry point of the Go function fn as
// the replacement.
//
// Closures lose their captured variables this way. Pass a top-level function.
func InstallFunc(target uintptr, fn any) (*Hook, error) {
	fnv := reflect.ValueOf(fn)
	if fnv.Kind() != reflect.Func {
		return nil, fmt.Errorf("not a function, kind: %v", fnv.Kind())
	}
	if fnv.IsNil() {
		return nil, ErrNilAddress
	}

	return Install(target, fnv.Pointer())
}

// Remove puts the original bytes back at the target and frees the
// trampoline. Functions obtained from Original must not be called
// afterwards.
func (h *Hook) Remove() error {
	hooksMu.Lock()
	defer hooksMu.Unlock()

	if hooks[h.Target] != h {
		return ErrHookNotFound
	}

	if _, err := writeCode(h.Target, h.Original[:]); err != nil {
		return fmt.Errorf("unable to unpatch %#x: %w", h.Target, err)
	}

	delete(hooks, h.Target)

	err := codeArena.release(h.trampoline)
	h.trampoline = nil
	h.Trampoline = 0

	logPatch("hook removed", h, unsafe.Slice((*byte)(unsafe.Pointer(h.Target)), PatchSize))
	return err
}

func logPatch(msg string, h *Hook, code []byte) {
	l := log()
	if !l.Enabled(context.Background(), slog.LevelDebug) {
		return
	}

	asm, err := disassemble(code)
	if err != nil {
		asm = err.Error()
	}

	l.Debug(msg,
		slog.String("target", fmt.Sprintf("%#x", h.Target)),
		slog.String("trampoline", fmt.Sprintf("%#x", h.Trampoline)),
		slog.String("code", asm),
	)
}
