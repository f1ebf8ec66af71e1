package device

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/presensi/internal/config"
)

func TestReadJPEGFrames(t *testing.T) {
	var stream bytes.Buffer
	stream.Write([]byte{0x00, 0x01})
	stream.Write([]byte{0xFF, 0xD8, 0x10, 0x20, 0xFF, 0xD9})
	stream.Write([]byte{0xFF, 0xD8, 0x30, 0xFF, 0x00, 0x40, 0xFF, 0xD9})
	stream.Write([]byte{0xFF, 0xD8, 0x50})

	var frames [][]byte
	err := readJPEGFrames(context.Background(), &stream, func(f []byte) { frames = append(frames, f) })

	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, []byte{0xFF, 0xD8, 0x10, 0x20, 0xFF, 0xD9}, frames[0])
	assert.Equal(t, []byte{0xFF, 0xD8, 0x30, 0xFF, 0x00, 0x40, 0xFF, 0xD9}, frames[1])
}

func TestReadJPEGFramesCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := readJPEGFrames(ctx, bytes.NewReader([]byte{0xFF, 0xD8, 0xFF, 0xD9}), func([]byte) {})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFFmpegCameraArgs(t *testing.T) {
	cam := NewFFmpegCamera(config.CameraConfig{Device: "/dev/video0", InputFormat: "v4l2", FPS: 2, Width: 640}, time.Second)

	assert.Equal(t, []string{
		"-hide_banner", "-loglevel", "warning",
		"-f", "v4l2",
		"-i", "/dev/video0",
		"-vf", "fps=2,scale=640:-1",
		"-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "5", "pipe:1",
	}, cam.args())
}

func TestFFmpegCameraMissingBinary(t *testing.T) {
	cam := NewFFmpegCamera(config.CameraConfig{Device: "/dev/video0", FPS: 2, Width: 640}, time.Second)
	cam.Binary = "/nonexistent/ffmpeg"

	_, err := cam.Open(context.Background())
	assert.Error(t, err)
}
