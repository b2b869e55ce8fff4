package transcend

import (
	"fmt"
	"reflect"
	"unsafe"

	"github.com/ebitengine/purego"
)

// CallConv selects how a resolved function is called.
type CallConv int

const (
	// ConvGo calls with Go's internal register ABI. Use it for functions
	// compiled by the Go toolchain.
	ConvGo CallConv = iota

	// ConvC calls with the platform C ABI: System V on Unix and the
	// Microsoft x64 convention on Windows.
	ConvC
)

func (c CallConv) String() string {
	switch c {
	case ConvGo:
		return "go"
	case ConvC:
		return "c"
	}
	return fmt.Sprintf("CallConv(%d)", int(c))
}

const maxResolveArgs = 4

// funcval is the runtime representation a Go func value points at.
type funcval struct {
	fn uintptr
}

// Resolve returns the function at offset bytes from the image base as a
// value of type F.
//
// Nothing about the target is checked. The address must be the entry point
// of a function whose signature and calling convention are exactly F and
// conv, otherwise calling the result is undefined behavior.
func Resolve[F any](offset uintptr, conv CallConv) F {
	return ResolveAddr[F](Base()+offset, conv)
}

// ResolveAddr is like Resolve with an absolute address.
//
// F must be a func type with at most four parameters. ResolveAddr panics
// otherwise.
func ResolveAddr[F any](addr uintptr, conv CallConv) F {
	var fn F

	ft := reflect.TypeOf(fn)
	if ft == nil || ft.Kind() != reflect.Func {
		panic(fmt.Sprintf("transcend: %v is not a function type", ft))
	}
	if ft.NumIn() > maxResolveArgs {
		panic(fmt.Sprintf("transcend: %v has %d parameters, at most %d are supported", ft, ft.NumIn(), maxResolveArgs))
	}

	switch conv {
	case ConvGo:
		// A func value is a pointer to a funcval. Build one around addr.
		fv := &funcval{fn: addr}
		return *(*F)(unsafe.Pointer(&fv))
	case ConvC:
		purego.RegisterFunc(&fn, addr)
		return fn
	}

	panic(fmt.Sprintf("transcend: unknown calling convention %v", conv))
}

// Original returns a function that runs the hooked function as it was before
// the hook: the saved prologue followed by the rest of the original code.
//
// The prologue is copied without relocation, so this only works when the
// first PatchSize bytes hold whole, position independent instructions.
func Original[F any](h *Hook, conv CallConv) F {
	return ResolveAddr[F](h.Trampoline, conv)
}
