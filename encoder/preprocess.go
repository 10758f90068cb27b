package encoder

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// inputSize is the spatial resolution CLIP-family vision encoders expect
const inputSize = 224

// Channel statistics the CLIP preprocessing pipeline normalizes with.
var (
	channelMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	channelStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// preprocessImage decodes raw bytes, scales the shorter side to the
// model input size, center-crops and converts to a normalized CHW
// float32 tensor of length 3*inputSize*inputSize.
func preprocessImage(data []byte) ([]float32, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("image decode failed: %w", err)
	}

	scaled := scaleAndCrop(img)

	tensor := make([]float32, 3*inputSize*inputSize)
	plane := inputSize * inputSize
	for y := 0; y < inputSize; y++ {
		for x := 0; x < inputSize; x++ {
			r, g, b, _ := scaled.At(x, y).RGBA()
			idx := y*inputSize + x
			tensor[idx] = (float32(r)/65535.0 - channelMean[0]) / channelStd[0]
			tensor[plane+idx] = (float32(g)/65535.0 - channelMean[1]) / channelStd[1]
			tensor[2*plane+idx] = (float32(b)/65535.0 - channelMean[2]) / channelStd[2]
		}
	}

	return tensor, nil
}

// scaleAndCrop resizes so the shorter side equals inputSize, then takes
// the center inputSize x inputSize crop.
func scaleAndCrop(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	var scaledW, scaledH int
	if w < h {
		scaledW = inputSize
		scaledH = h * inputSize / w
	} else {
		scaledH = inputSize
		scaledW = w * inputSize / h
	}
	if scaledW < inputSize {
		scaledW = inputSize
	}
	if scaledH < inputSize {
		scaledH = inputSize
	}

	scaled := image.NewRGBA(image.Rect(0, 0, scaledW, scaledH))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, bounds, draw.Over, nil)

	offsetX := (scaledW - inputSize) / 2
	offsetY := (scaledH - inputSize) / 2

	cropped := image.NewRGBA(image.Rect(0, 0, inputSize, inputSize))
	draw.Draw(cropped, cropped.Bounds(), scaled, image.Pt(offsetX, offsetY), draw.Src)
	return cropped
}
