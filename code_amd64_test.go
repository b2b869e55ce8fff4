//go:build linux || windows

package transcend

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	// MOVL $1, AX; MOVL $2, CX; ADDL CX, AX; NOP; NOP; RET
	//
	// The first PatchSize bytes are whole, position independent
	// instructions so the trampoline can run them.
	codeReturn3 = []byte{
		0xb8, 0x01, 0x00, 0x00, 0x00,
		0xb9, 0x02, 0x00, 0x00, 0x00,
		0x01, 0xc8,
		0x90, 0x90,
		0xc3,
	}

	// MOVL $42, AX; RET
	codeReturn42 = []byte{0xb8, 0x2a, 0x00, 0x00, 0x00, 0xc3}

	// LEAQ 1(AX), AX; RET
	//
	// Go's register ABI passes the first integer argument and returns the
	// first result in AX.
	codeGoIncrement = []byte{0x48, 0x8d, 0x40, 0x01, 0xc3}
)

// codeCAdd returns machine code for int32 add(int32 a, int32 b) in the
// platform C ABI.
func codeCAdd() []byte {
	if runtime.GOOS == "windows" {
		// LEAL (CX)(DX*1), AX; RET
		return []byte{0x8d, 0x04, 0x11, 0xc3}
	}
	// LEAL (DI)(SI*1), AX; RET
	return []byte{0x8d, 0x04, 0x37, 0xc3}
}

// placeCode copies code into executable memory for the duration of the test.
func placeCode(t *testing.T, code []byte) uintptr {
	t.Helper()

	buf, err := codeArena.place(code)
	require.NoError(t, err)
	t.Cleanup(func() {
		codeArena.release(buf)
	})

	return sliceAddr(buf)
}
