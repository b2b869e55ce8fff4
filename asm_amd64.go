package transcend

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/arch/x86/x86asm"
)

const (
	opcodeINT3   = 0xcc
	opcodeJMPabs = 0xff // JMP r/m64
	opcodeMOVimm = 0xb8 // MOV imm64, r64 (+ register number)
	opcodeNOP    = 0x90

	modrmJMPrax    = 0xe0 // mod=11 /4 rm=RAX
	modrmJMPripRel = 0x25 // mod=00 /4 rm=RIP+disp32

	// PatchSize is the number of bytes overwritten at a hook target.
	PatchSize = 14

	// MOV RAX, imm64 + JMP RAX
	absJumpSize = 12

	// JMP [RIP+0] followed by the 64-bit destination
	jumpBackSize = 14
)

// insertJump writes the equivalent of:
//
//	MOVQ $dest, AX
//	JMP AX
//
// and pads the remainder of buf with NOPs. AX is clobbered, which is free
// under both native x86-64 C ABIs but is the first integer argument of the Go
// register ABI.
func insertJump(buf []byte, dest uintptr) error {
	if len(buf) < absJumpSize {
		return errors.New("buffer too small for jump instruction")
	}

	buf[0] = byte(x86asm.PrefixREX) | byte(x86asm.PrefixREXW)
	buf[1] = opcodeMOVimm
	binary.LittleEndian.PutUint64(buf[2:], uint64(dest))
	buf[10] = opcodeJMPabs
	buf[11] = modrmJMPrax

	for i := absJumpSize; i < len(buf); i++ {
		buf[i] = opcodeNOP
	}

	return nil
}

// insertJumpBack writes an indirect absolute jump that reads its destination
// from the 8 bytes immediately after the instruction:
//
//	JMP [RIP+0]
//	.quad dest
//
// It leaves every register alone, so execution resumes in the original code
// with the state the caller set up.
func insertJumpBack(buf []byte, dest uintptr) error {
	if len(buf) < jumpBackSize {
		return errors.New("buffer too small for jump instruction")
	}

	buf[0] = opcodeJMPabs
	buf[1] = modrmJMPripRel
	binary.LittleEndian.PutUint32(buf[2:], 0)
	binary.LittleEndian.PutUint64(buf[6:], uint64(dest))

	return nil
}

// buildTrampoline returns original followed by a jump to resume, padded to
// 16 bytes with INT3.
func buildTrampoline(original []byte, resume uintptr) ([]byte, error) {
	size := (len(original) + jumpBackSize + 0xf) &^ 0xf
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = opcodeINT3
	}

	copy(buf, original)
	if err := insertJumpBack(buf[len(original):], resume); err != nil {
		return nil, err
	}

	return buf, nil
}

// disassemble formats code one instruction per line. Decoding stops quietly
// at the first invalid byte because the tail of a patch site may cut an
// instruction in half.
func disassemble(code []byte) (string, error) {
	var buf bytes.Buffer

	baseAddr := uintptr(unsafe.Pointer(unsafe.SliceData(code)))

	for i := 0; i < len(code); {
		instruction, err := x86asm.Decode(code[i:], 64)
		if err != nil {
			if i == 0 {
				return "", fmt.Errorf("decode error at offset %d: %w", i, err)
			}
			fmt.Fprintf(&buf, "0x%08x\t%-20s\t?\n", baseAddr+uintptr(i), hex.EncodeToString(code[i:]))
			break
		}
		fmt.Fprintf(&buf, "0x%08x\t%-20s\t%s\n", baseAddr+uintptr(i), hex.EncodeToString(code[i:i+instruction.Len]), instruction.String())

		i += instruction.Len
	}

	return buf.String(), nil
}
