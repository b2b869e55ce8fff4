//go:build !amd64

package transcend

import "encoding/hex"

// PatchSize is the number of bytes overwritten at a hook target.
const PatchSize = 14

func insertJump(buf []byte, dest uintptr) error {
	return ErrUnsupportedArch
}

func buildTrampoline(original []byte, resume uintptr) ([]byte, error) {
	return nil, ErrUnsupportedArch
}

func disassemble(code []byte) (string, error) {
	return hex.EncodeToString(code), nil
}
