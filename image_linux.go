package transcend

import (
	"debug/elf"
	"errors"
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	_AT_PHDR  = 3
	_AT_PHENT = 4
	_AT_PHNUM = 5
)

// locateImage finds the executable through the program headers the kernel
// passed in the auxiliary vector.
func locateImage() (Image, error) {
	auxv, err := unix.Auxv()
	if err != nil {
		return Image{}, fmt.Errorf("unable to read auxiliary vector: %w", err)
	}

	var phdr, phent, phnum uintptr
	for _, kv := range auxv {
		switch kv[0] {
		case _AT_PHDR:
			phdr = kv[1]
		case _AT_PHENT:
			phent = kv[1]
		case _AT_PHNUM:
			phnum = kv[1]
		}
	}

	if phdr == 0 || phnum == 0 {
		return Image{}, errors.New("auxiliary vector has no program headers")
	}
	if phent != unsafe.Sizeof(elf.Prog64{}) {
		return Image{}, fmt.Errorf("unexpected program header size %d", phent)
	}

	progs := unsafe.Slice((*elf.Prog64)(unsafe.Pointer(phdr)), phnum)
	return imageFromProgs(progs, phdr, uintptr(syscall.Getpagesize()))
}

// imageFromProgs computes the mapped span of the PT_LOAD segments. phdr is
// the runtime address of progs, which gives the load bias when the table
// describes itself with PT_PHDR.
func imageFromProgs(progs []elf.Prog64, phdr, pageSize uintptr) (Image, error) {
	var (
		bias    uintptr
		hasBias bool
		lo      = ^uintptr(0)
		hi      uintptr
	)

	for _, p := range progs {
		switch elf.ProgType(p.Type) {
		case elf.PT_PHDR:
			bias = phdr - uintptr(p.Vaddr)
			hasBias = true
		case elf.PT_LOAD:
			lo = min(lo, uintptr(p.Vaddr))
			hi = max(hi, uintptr(p.Vaddr+p.Memsz))
		}
	}

	if hi == 0 {
		return Image{}, errors.New("no loadable segments")
	}

	lo &^= pageSize - 1
	hi = (hi + pageSize - 1) &^ (pageSize - 1)

	if !hasBias {
		// Without PT_PHDR assume the table shares a page with the ELF
		// header at the start of the first segment.
		bias = (phdr &^ (pageSize - 1)) - lo
	}

	return Image{
		Base: bias + lo,
		Size: hi - lo,
	}, nil
}
