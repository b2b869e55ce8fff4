//go:build !linux && !windows

package transcend

func locateImage() (Image, error) {
	return Image{}, ErrUnsupportedPlatform
}
