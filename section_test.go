package transcend

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testSection struct {
	name string
	rva  uint32
	size uint32
}

const testOptionalHeaderSize = 240

// buildPE returns a 4KiB buffer that starts with the headers of a PE32+ image
// with the given sections.
func buildPE(lfanew uint32, sections []testSection) []byte {
	buf := make([]byte, 0x1000)

	binary.LittleEndian.PutUint16(buf, dosMagic)
	binary.LittleEndian.PutUint32(buf[lfanewOffset:], lfanew)

	nt := buf[lfanew:]
	binary.LittleEndian.PutUint32(nt, ntSignature)
	binary.LittleEndian.PutUint16(nt[4:], 0x8664)
	binary.LittleEndian.PutUint16(nt[6:], uint16(len(sections)))
	binary.LittleEndian.PutUint16(nt[20:], testOptionalHeaderSize)

	table := nt[4+fileHeaderSize+testOptionalHeaderSize:]
	for i, s := range sections {
		sh := table[i*sectionSize:]
		copy(sh[:8], s.name)
		binary.LittleEndian.PutUint32(sh[8:], s.size)
		binary.LittleEndian.PutUint32(sh[12:], s.rva)
	}

	return buf
}

func TestParseSections(t *testing.T) {
	assert := assert.New(t)

	buf := buildPE(0x80, []testSection{
		{".text", 0x1000, 0x2345},
		{".rdata", 0x4000, 0x100},
		{".textbss", 0x5000, 0x10},
	})
	base := uintptr(0x140000000)

	sections := parseSections(buf, base)
	assert.Equal([]Section{
		{Name: ".text", Addr: base + 0x1000, Size: 0x2345},
		{Name: ".rdata", Addr: base + 0x4000, Size: 0x100},
		{Name: ".textbss", Addr: base + 0x5000, Size: 0x10},
	}, sections)
}

func TestParseSections_KeepsDuplicates(t *testing.T) {
	buf := buildPE(0x40, []testSection{
		{".data", 0x3000, 0x20},
		{".data", 0x1000, 0x10},
	})

	sections := parseSections(buf, 0)
	if assert.Len(t, sections, 2) {
		assert.Equal(t, uintptr(0x3000), sections[0].Addr)
		assert.Equal(t, uintptr(0x1000), sections[1].Addr)
	}
}

func TestParseSections_Malformed(t *testing.T) {
	cases := map[string]func() []byte{
		"wrong DOS magic": func() []byte {
			buf := buildPE(0x80, []testSection{{".text", 0x1000, 0x10}})
			buf[0] = 'Z'
			return buf
		},
		"wrong NT signature": func() []byte {
			buf := buildPE(0x80, []testSection{{".text", 0x1000, 0x10}})
			buf[0x81] = 'X'
			return buf
		},
		"NT header out of range": func() []byte {
			buf := buildPE(0x80, []testSection{{".text", 0x1000, 0x10}})
			binary.LittleEndian.PutUint32(buf[lfanewOffset:], 0xfffffff0)
			return buf
		},
		"section table out of range": func() []byte {
			buf := buildPE(0x80, []testSection{{".text", 0x1000, 0x10}})
			binary.LittleEndian.PutUint16(buf[0x86:], 0xffff)
			return buf
		},
		"truncated": func() []byte {
			return []byte{'M', 'Z'}
		},
		"ELF header": func() []byte {
			return append([]byte("\x7fELF"), make([]byte, 60)...)
		},
		"no sections": func() []byte {
			return buildPE(0x80, nil)
		},
		"empty": func() []byte {
			return nil
		},
	}

	for name, build := range cases {
		t.Run(name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.Empty(t, parseSections(build(), 0x1000))
			})
		})
	}
}

func TestImage_Sections(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	buf := buildPE(0x80, []testSection{
		{".text", 0x200, 0x40},
		{".data", 0x400, 0x40},
	})
	copy(buf[0x210:], []byte{0x48, 0x8b, 0x05, 0x11, 0x22, 0x33, 0x44})

	img := mapTestImage(t, buf)
	require.Equal(buf, img.Bytes())

	text, ok := img.Section(".text")
	require.True(ok)
	assert.Equal(img.Base+0x200, text.Addr)
	assert.Equal(buf[0x200:0x240], text.Bytes())

	addr, ok := text.Scan(MustParsePattern("48 8B 05 ?? ?? ?? ??"))
	assert.True(ok)
	assert.Equal(img.Base+0x210, addr)

	_, ok = img.Section(".bss")
	assert.False(ok)

	assert.Len(img.Sections(), 2)
}

// mapTestImage copies buf into memory outside the Go heap, the way a loaded
// image lives, and returns it as an Image.
func mapTestImage(t *testing.T, buf []byte) Image {
	t.Helper()

	mem, err := codeArena.place(buf)
	require.NoError(t, err)
	t.Cleanup(func() {
		codeArena.release(mem)
	})

	return Image{
		Base: sliceAddr(mem),
		Size: uintptr(len(mem)),
	}
}
