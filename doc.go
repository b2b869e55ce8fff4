// Package transcend inspects and patches the running executable.
//
// Locate finds where the executable is mapped. Its bytes can be searched for
// signatures with Scan, and on Windows the PE section table narrows the
// search to a single section such as ".text". Resolve turns an offset from
// the image base into a callable function, and Install redirects a function
// to a replacement while keeping a trampoline that calls the original.
//
// Limitations:
//   - Image location works on Linux and Windows only
//   - Inline hooks are amd64 only
//   - The hooked prologue is copied without relocation, so calling the
//     original of a function that starts with a relative instruction crashes
//   - Nothing stops other threads from running a function while it's patched
package transcend
