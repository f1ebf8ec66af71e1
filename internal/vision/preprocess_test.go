package vision

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return buf.Bytes()
}

func TestDecodeFrameMirror(t *testing.T) {
	img := imaging.New(2, 1, color.NRGBA{A: 255})
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{B: 255, A: 255})
	data := encodePNG(t, img)

	plain, err := DecodeFrame(data, false)
	require.NoError(t, err)
	r, _, b, _ := plain.At(0, 0).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, uint32(0), b)

	mirrored, err := DecodeFrame(data, true)
	require.NoError(t, err)
	r, _, b, _ = mirrored.At(0, 0).RGBA()
	assert.Equal(t, uint32(0), r)
	assert.Equal(t, uint32(0xffff), b)
}

func TestDecodeFrameRejectsGarbage(t *testing.T) {
	_, err := DecodeFrame(nil, false)
	assert.Error(t, err)

	_, err = DecodeFrame([]byte("not an image"), false)
	assert.Error(t, err)
}

func TestEncodeJPEGRoundTrip(t *testing.T) {
	data, err := EncodeJPEG(blank(32, 24), 90)
	require.NoError(t, err)

	img, err := DecodeFrame(data, false)
	require.NoError(t, err)
	assert.Equal(t, 32, img.Bounds().Dx())
	assert.Equal(t, 24, img.Bounds().Dy())
}

func TestThumbnailFitsBox(t *testing.T) {
	data, err := Thumbnail(blank(400, 200), 100)
	require.NoError(t, err)

	img, err := DecodeFrame(data, false)
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 50, img.Bounds().Dy())
}

func TestToCHWLayout(t *testing.T) {
	img := imaging.New(4, 4, color.NRGBA{R: 255, G: 0, B: 127, A: 255})

	data := toCHW(img, 2, 2, [3]float32{127.5, 127.5, 127.5}, [3]float32{127.5, 127.5, 127.5})

	require.Len(t, data, 3*2*2)
	for i := 0; i < 4; i++ {
		assert.InDelta(t, 1.0, data[i], 1e-6, "R plane")
		assert.InDelta(t, -1.0, data[4+i], 1e-6, "G plane")
		assert.InDelta(t, -0.5/127.5, data[8+i], 1e-6, "B plane")
	}
}

func TestCropFace(t *testing.T) {
	img := blank(100, 100)

	face := cropFace(img, [4]float32{10, 10, 50, 50})
	require.NotNil(t, face)
	assert.Equal(t, 48, face.Bounds().Dx())
	assert.Equal(t, 48, face.Bounds().Dy())

	edge := cropFace(img, [4]float32{-10, -10, 20, 20})
	require.NotNil(t, edge)
	assert.Equal(t, 22, edge.Bounds().Dx())

	assert.Nil(t, cropFace(img, [4]float32{150, 150, 200, 200}))
	assert.Nil(t, cropFace(img, [4]float32{30, 30, 30, 60}))
}

func TestNMSKeepsBestOfOverlapping(t *testing.T) {
	dets := []Detection{
		{BBox: [4]float32{0, 0, 10, 10}, Confidence: 0.6},
		{BBox: [4]float32{1, 1, 11, 11}, Confidence: 0.9},
		{BBox: [4]float32{50, 50, 60, 60}, Confidence: 0.7},
	}

	kept := nms(dets, 0.4)

	require.Len(t, kept, 2)
	assert.Equal(t, float32(0.9), kept[0].Confidence)
	assert.Equal(t, float32(0.7), kept[1].Confidence)
}

func TestBestDetection(t *testing.T) {
	_, ok := bestDetection(nil)
	assert.False(t, ok)

	best, ok := bestDetection([]Detection{{Confidence: 0.5}, {Confidence: 0.8}, {Confidence: 0.7}})
	require.True(t, ok)
	assert.Equal(t, float32(0.8), best.Confidence)
}
