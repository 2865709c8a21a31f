// ABOUTME: Downscales images to small JPEG thumbnails for mirrored avatars
// ABOUTME: Accepts GIF, JPEG and PNG input and always produces JPEG output

package media

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif" // register decoders
	"image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
)

// AvatarSize is the bounding box, in pixels, of mirrored avatars.
const AvatarSize = 128

// Thumbnail decodes a GIF, JPEG or PNG image and re-encodes it as a JPEG that
// fits within size x size, preserving aspect ratio. Smaller images are not upscaled.
func Thumbnail(data []byte, size uint) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	thumb := resize.Thumbnail(size, size, img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("encoding thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
