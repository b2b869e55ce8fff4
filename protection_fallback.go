//go:build unix && !linux

package transcend

// There's no portable way to query page protection outside of Linux. Code
// pages are read+exec everywhere we care about.
func currentProtection(addr uintptr) (int, error) {
	return mprotectRX, nil
}
