package vision

import (
	"image"

	"github.com/disintegration/imaging"
)

// letterboxFill is the neutral pad value used by the model during
// training (114 mid-gray), normalized.
const letterboxFill = float32(114) / 255

// Preprocess letterboxes an image into a model input tensor: resize
// preserving aspect ratio, center on a Side x Side mid-gray canvas,
// convert RGB to channel-first float32 in [0,1]. The returned Transform
// inverts the mapping. Pure function, the source image is not retained.
func Preprocess(img image.Image, side int) (*Tensor, Transform, error) {
	if img == nil {
		return nil, Transform{}, ErrInvalidImage
	}

	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if srcW <= 0 || srcH <= 0 {
		return nil, Transform{}, ErrInvalidImage
	}

	scale := min(float32(side)/float32(srcW), float32(side)/float32(srcH))
	newW := int(float32(srcW) * scale)
	newH := int(float32(srcH) * scale)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}
	padX := (side - newW) / 2
	padY := (side - newH) / 2

	resized := imaging.Resize(img, newW, newH, imaging.Linear)

	tensor := NewTensor(side)
	channelSize := side * side
	for i := range tensor.Data {
		tensor.Data[i] = letterboxFill
	}

	// NRGBA pixel buffer, 4 bytes per pixel, row stride from imaging.
	pix := resized.Pix
	stride := resized.Stride
	for y := 0; y < newH; y++ {
		rowOffset := y * stride
		dstRow := (y + padY) * side
		for x := 0; x < newW; x++ {
			p := rowOffset + x*4
			i := dstRow + padX + x
			tensor.Data[i] = float32(pix[p]) / 255
			tensor.Data[channelSize+i] = float32(pix[p+1]) / 255
			tensor.Data[2*channelSize+i] = float32(pix[p+2]) / 255
		}
	}

	tf := Transform{
		Scale: scale,
		PadX:  float32(padX),
		PadY:  float32(padY),
	}

	return tensor, tf, nil
}
