package transcend

import (
	"errors"
	"sync"
	"unsafe"
)

// ErrUnsupportedPlatform is returned when the running image can't be located
// on this operating system.
var ErrUnsupportedPlatform = errors.New("image location is not supported on this platform")

// Image is the executable image of the running process as mapped in memory.
type Image struct {
	// Base is the address the image was loaded at.
	Base uintptr

	// Size is the number of bytes from Base to the end of the last mapped
	// segment.
	Size uintptr
}

// Addr returns the absolute address of an offset relative to the image base.
func (img Image) Addr(offset uintptr) uintptr {
	return img.Base + offset
}

// Contains reports whether addr falls inside the image.
func (img Image) Contains(addr uintptr) bool {
	return addr >= img.Base && addr-img.Base < img.Size
}

// Bytes returns the image memory. The slice aliases the live image and must
// not be written to.
func (img Image) Bytes() []byte {
	if img.Base == 0 || img.Size == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(img.Base)), img.Size)
}

// Scan returns the address of the first match of p in the image.
func (img Image) Scan(p Pattern) (uintptr, bool) {
	i, ok := Scan(img.Bytes(), p)
	if !ok {
		return 0, false
	}
	return img.Base + uintptr(i), true
}

// imageCache computes the image location at most once.
type imageCache struct {
	once   sync.Once
	locate func() (Image, error)
	img    Image
	err    error
}

func newImageCache(locate func() (Image, error)) *imageCache {
	return &imageCache{locate: locate}
}

func (c *imageCache) get() (Image, error) {
	c.once.Do(func() {
		c.img, c.err = c.locate()
	})
	return c.img, c.err
}

var self = newImageCache(locateImage)

// Locate returns the image of the running executable. The first call does
// the work, every later call returns the same result.
func Locate() (Image, error) {
	return self.get()
}

// Base returns the load address of the running executable. It panics if the
// image can't be located, which only happens on unsupported platforms.
func Base() uintptr {
	img, err := Locate()
	if err != nil {
		panic("transcend: " + err.Error())
	}
	return img.Base
}

// Size returns the mapped size of the running executable. Like Base, it
// panics if the image can't be located.
func Size() uintptr {
	img, err := Locate()
	if err != nil {
		panic("transcend: " + err.Error())
	}
	return img.Size
}
