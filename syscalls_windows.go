//go:build windows

package transcend

import (
	"syscall"

	"golang.org/x/sys/windows"
)

const (
	mprotectExec = windows.PAGE_EXECUTE
	mprotectRX   = windows.PAGE_EXECUTE_READ
	mprotectRWX  = windows.PAGE_EXECUTE_READWRITE

	mmapFlags = 0
)

// protect changes the protection of every page overlapping [addr, addr+size)
// and returns the protection VirtualProtect reports for the first page.
func protect(addr, size uintptr, flags int) (int, error) {
	pageSize := uintptr(syscall.Getpagesize())

	// Round address down to page boundary.
	pageStart := addr &^ (pageSize - 1)

	// Round up to cover complete pages.
	regionSize := (addr - pageStart + size + pageSize - 1) &^ (pageSize - 1)

	var oldFlags uint32
	err := windows.VirtualProtect(pageStart, regionSize, uint32(flags), &oldFlags)
	return int(oldFlags), err
}
