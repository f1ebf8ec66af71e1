package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// DecodeFrame decodes a JPEG or PNG frame, applying EXIF orientation.
// mirror flips the result horizontally, matching a front camera preview.
func DecodeFrame(data []byte, mirror bool) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty frame")
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if mirror {
		return imaging.FlipH(img), nil
	}
	return img, nil
}

// EncodeJPEG encodes an image as JPEG with the given quality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Thumbnail scales img to fit within size x size and re-encodes it. Used for
// avatars uploaded at enrollment.
func Thumbnail(img image.Image, size int) ([]byte, error) {
	return EncodeJPEG(imaging.Fit(img, size, size, imaging.Lanczos), 85)
}

func preprocessForDetection(img image.Image, targetW, targetH int) []float32 {
	return toCHW(img, targetW, targetH, [3]float32{127.5, 127.5, 127.5}, [3]float32{128.0, 128.0, 128.0})
}

func preprocessForEmbedding(img image.Image, targetW, targetH int) []float32 {
	return toCHW(img, targetW, targetH, [3]float32{127.5, 127.5, 127.5}, [3]float32{127.5, 127.5, 127.5})
}

// toCHW resizes img and lays it out as planar RGB with
//
//	pixel = (pixel - mean) / std
func toCHW(img image.Image, targetW, targetH int, mean, std [3]float32) []float32 {
	resized := imaging.Resize(img, targetW, targetH, imaging.Linear)
	w, h := targetW, targetH
	plane := w * h

	data := make([]float32, 3*plane)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := resized.NRGBAAt(x, y)
			idx := y*w + x
			data[idx] = (float32(c.R) - mean[0]) / std[0]
			data[plane+idx] = (float32(c.G) - mean[1]) / std[1]
			data[2*plane+idx] = (float32(c.B) - mean[2]) / std[2]
		}
	}
	return data
}

// cropFace cuts the detection box out of img with 10% padding on each side.
// It returns nil when the box does not overlap the image.
func cropFace(img image.Image, bbox [4]float32) image.Image {
	bounds := img.Bounds()
	box := image.Rect(int(bbox[0]), int(bbox[1]), int(bbox[2]), int(bbox[3])).Intersect(bounds)
	if box.Empty() {
		return nil
	}

	padW := box.Dx() / 10
	padH := box.Dy() / 10
	padded := image.Rect(box.Min.X-padW, box.Min.Y-padH, box.Max.X+padW, box.Max.Y+padH).Intersect(bounds)

	return imaging.Crop(img, padded)
}

// blank returns a uniform grey image, used to warm the models up after loading.
func blank(w, h int) image.Image {
	return imaging.New(w, h, color.NRGBA{R: 127, G: 127, B: 127, A: 255})
}
