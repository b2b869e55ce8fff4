package transcend

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"strings"
	"unsafe"
)

const (
	dosMagic       = 0x5a4d     // "MZ"
	ntSignature    = 0x00004550 // "PE\0\0"
	lfanewOffset   = 0x3c
	fileHeaderSize = 20
	sectionSize    = 40
)

// Section is a named region of the image as declared by its section table.
type Section struct {
	Name string
	Addr uintptr
	Size uintptr
}

// Bytes returns the section memory. The slice aliases the live image.
func (s Section) Bytes() []byte {
	if s.Addr == 0 || s.Size == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(s.Addr)), s.Size)
}

// Scan returns the address of the first match of p in the section.
func (s Section) Scan(p Pattern) (uintptr, bool) {
	i, ok := Scan(s.Bytes(), p)
	if !ok {
		return 0, false
	}
	return s.Addr + uintptr(i), true
}

// Sections returns the sections of a PE image in table order. Images that
// don't start with valid DOS and NT headers, including every ELF image, have
// no sections.
func (img Image) Sections() []Section {
	return parseSections(img.Bytes(), img.Base)
}

// Section returns the first section called name.
func (img Image) Section(name string) (Section, bool) {
	for _, s := range img.Sections() {
		if s.Name == name {
			return s, true
		}
	}
	return Section{}, false
}

// parseSections reads the section table from the headers at the start of mem.
// base is the address the RVAs are relative to.
func parseSections(mem []byte, base uintptr) []Section {
	if len(mem) < lfanewOffset+4 {
		return nil
	}
	if binary.LittleEndian.Uint16(mem) != dosMagic {
		return nil
	}

	nt := uint64(binary.LittleEndian.Uint32(mem[lfanewOffset:]))
	if nt+4+fileHeaderSize > uint64(len(mem)) {
		return nil
	}
	if binary.LittleEndian.Uint32(mem[nt:]) != ntSignature {
		return nil
	}

	var fh pe.FileHeader
	if err := binary.Read(bytes.NewReader(mem[nt+4:]), binary.LittleEndian, &fh); err != nil {
		return nil
	}

	table := nt + 4 + fileHeaderSize + uint64(fh.SizeOfOptionalHeader)
	if table+uint64(fh.NumberOfSections)*sectionSize > uint64(len(mem)) {
		return nil
	}

	r := bytes.NewReader(mem[table:])
	sections := make([]Section, 0, fh.NumberOfSections)
	for range fh.NumberOfSections {
		var sh pe.SectionHeader32
		if err := binary.Read(r, binary.LittleEndian, &sh); err != nil {
			return nil
		}

		name, _, _ := bytes.Cut(sh.Name[:], []byte{0})
		sections = append(sections, Section{
			Name: strings.ToValidUTF8(string(name), "\uFFFD"),
			Addr: base + uintptr(sh.VirtualAddress),
			Size: uintptr(sh.VirtualSize),
		})
	}

	return sections
}
