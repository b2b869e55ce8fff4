package transcend

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArena(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	a := &arena{}

	first, err := a.place([]byte{0xc3})
	require.NoError(err)
	second, err := a.place([]byte{0x90, 0xc3})
	require.NoError(err)

	assert.Equal([]byte{0xc3}, first)
	assert.Equal([]byte{0x90, 0xc3}, second)
	assert.NotEqual(sliceAddr(first), sliceAddr(second))
	assert.Equal(2, a.blocks())

	assert.NoError(a.release(first))
	assert.NoError(a.release(second))
	assert.Equal(0, a.blocks())
}

func TestArena_Grow(t *testing.T) {
	a := &arena{}

	// Larger than the initial mapping.
	code := make([]byte, 3*4096)
	for i := range code {
		code[i] = byte(i)
	}

	buf, err := a.place(code)
	require.NoError(t, err)
	assert.Equal(t, code, buf)
	assert.NoError(t, a.release(buf))
}

func TestArena_ProtectFails(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	a := &arena{}
	first, err := a.place([]byte{0xc3})
	require.NoError(err)

	errProtect := errors.New("protect failed")
	realProtect := a.protect
	a.protect = func(prot int) error {
		if prot == mprotectRX {
			return errProtect
		}
		return realProtect(prot)
	}

	_, err = a.place([]byte{0x90, 0xc3})
	assert.ErrorIs(err, errProtect)
	assert.Equal(1, a.blocks())

	a.protect = realProtect
	assert.NoError(a.release(first))
}

func TestArena_ReleaseBeforePlace(t *testing.T) {
	a := &arena{}
	assert.Error(t, a.release([]byte{0}))
}

func TestSliceAddr(t *testing.T) {
	buf := make([]byte, 4)
	assert.Equal(t, uintptr(unsafe.Pointer(&buf[0])), sliceAddr(buf))
}
