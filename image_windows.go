package transcend

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// locateImage asks the loader for the module that started the process.
func locateImage() (Image, error) {
	var module windows.Handle
	err := windows.GetModuleHandleEx(windows.GET_MODULE_HANDLE_EX_FLAG_UNCHANGED_REFCOUNT, nil, &module)
	if err != nil {
		return Image{}, fmt.Errorf("GetModuleHandleEx: %w", err)
	}

	var info windows.ModuleInfo
	err = windows.GetModuleInformation(windows.CurrentProcess(), module, &info, uint32(unsafe.Sizeof(info)))
	if err != nil {
		return Image{}, fmt.Errorf("GetModuleInformation: %w", err)
	}

	return Image{
		Base: uintptr(module),
		Size: uintptr(info.SizeOfImage),
	}, nil
}
