package transcend

import (
	"fmt"
	"syscall"

	"github.com/prometheus/procfs"
)

// currentProtection reports the protection of the mapping containing addr.
func currentProtection(addr uintptr) (int, error) {
	proc, err := procfs.Self()
	if err != nil {
		return 0, fmt.Errorf("unable to open /proc/self: %w", err)
	}

	maps, err := proc.ProcMaps()
	if err != nil {
		return 0, fmt.Errorf("unable to read memory maps: %w", err)
	}

	for _, m := range maps {
		if addr < m.StartAddr || addr >= m.EndAddr {
			continue
		}

		flags := syscall.PROT_NONE
		if m.Perms.Read {
			flags |= syscall.PROT_READ
		}
		if m.Perms.Write {
			flags |= syscall.PROT_WRITE
		}
		if m.Perms.Execute {
			flags |= syscall.PROT_EXEC
		}
		return flags, nil
	}

	return 0, fmt.Errorf("no mapping contains address %#x", addr)
}
