//go:build unix

package transcend

import (
	"syscall"
	"unsafe"
)

const (
	mprotectExec = syscall.PROT_EXEC
	mprotectRX   = syscall.PROT_READ | syscall.PROT_EXEC
	mprotectRWX  = syscall.PROT_READ | syscall.PROT_WRITE | syscall.PROT_EXEC

	mmapFlags = 0
)

// protect changes the protection of every page overlapping [addr, addr+size)
// and returns the protection the first page had before the change.
func protect(addr, size uintptr, flags int) (int, error) {
	old, err := currentProtection(addr)
	if err != nil {
		return 0, err
	}

	pageSize := uintptr(syscall.Getpagesize())

	// Round address down to page boundary.
	pageStart := addr &^ (pageSize - 1)

	// Round up to cover complete pages.
	regionSize := (addr - pageStart + size + pageSize - 1) &^ (pageSize - 1)

	region := unsafe.Slice((*byte)(unsafe.Pointer(pageStart)), regionSize)

	return old, syscall.Mprotect(region, flags)
}
