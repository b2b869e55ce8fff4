package transcend

import "syscall"

// InstallCallback is like Install with a Go function wrapped to be called
// with the Microsoft x64 calling convention. fn must take only uintptr sized
// arguments and return one uintptr sized result.
//
// Windows limits how many callbacks a process can create. They are never
// freed.
func InstallCallback(target uintptr, fn any) (*Hook, error) {
	return Install(target, syscall.NewCallback(fn))
}
