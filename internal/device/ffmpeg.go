package device

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/your-org/presensi/internal/checkin"
	"github.com/your-org/presensi/internal/config"
)

// FFmpegCamera reads a local capture device through ffmpeg, which emits a
// stream of concatenated JPEG frames on stdout.
type FFmpegCamera struct {
	cfg        config.CameraConfig
	staleAfter time.Duration
	// Binary is the ffmpeg executable.
	Binary string
}

func NewFFmpegCamera(cfg config.CameraConfig, staleAfter time.Duration) *FFmpegCamera {
	return &FFmpegCamera{cfg: cfg, staleAfter: staleAfter, Binary: "ffmpeg"}
}

func (c *FFmpegCamera) args() []string {
	args := []string{"-hide_banner", "-loglevel", "warning"}
	if c.cfg.InputFormat != "" {
		args = append(args, "-f", c.cfg.InputFormat)
	}
	return append(args,
		"-i", c.cfg.Device,
		"-vf", fmt.Sprintf("fps=%d,scale=%d:-1", c.cfg.FPS, c.cfg.Width),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "5",
		"pipe:1",
	)
}

// Open starts ffmpeg and waits for the first frame.
func (c *FFmpegCamera) Open(ctx context.Context) (checkin.Stream, error) {
	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, c.Binary, c.args()...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	s := &ffmpegStream{
		FrameBuffer: NewFrameBuffer(c.staleAfter),
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			slog.Warn("ffmpeg stderr", "device", c.cfg.Device, "output", scanner.Text())
		}
	}()

	go func() {
		defer close(s.done)
		err := readJPEGFrames(procCtx, stdout, s.Push)
		waitErr := cmd.Wait()
		if procCtx.Err() != nil {
			return
		}
		if err == nil {
			err = waitErr
		}
		if err == nil {
			err = io.EOF
		}
		slog.Warn("camera stream ended", "device", c.cfg.Device, "error", err)
		s.Fail(fmt.Errorf("camera stream ended: %w", err))
	}()

	if err := s.WaitFirst(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	slog.Info("camera opened", "device", c.cfg.Device, "fps", c.cfg.FPS)
	return s, nil
}

type ffmpegStream struct {
	*FrameBuffer
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Close stops ffmpeg and waits for the reader to exit.
func (s *ffmpegStream) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
	return s.FrameBuffer.Close()
}

// readJPEGFrames splits a stream of concatenated JPEG images and hands each
// to push. It returns nil at a clean end of stream.
func readJPEGFrames(ctx context.Context, r io.Reader, push func([]byte)) error {
	reader := bufio.NewReaderSize(r, 512*1024)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := findJPEGStart(reader); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		frame, err := readUntilJPEGEnd(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		push(frame)
	}
}

func findJPEGStart(r *bufio.Reader) error {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		if b != 0xFF {
			continue
		}
		b, err = r.ReadByte()
		if err != nil {
			return err
		}
		if b == 0xD8 {
			return nil
		}
	}
}

const maxFrameSize = 10 * 1024 * 1024

func readUntilJPEGEnd(r *bufio.Reader) ([]byte, error) {
	data := []byte{0xFF, 0xD8}

	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		data = append(data, b)

		if b == 0xFF {
			next, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			data = append(data, next)
			if next == 0xD9 {
				return data, nil
			}
		}

		if len(data) > maxFrameSize {
			return nil, fmt.Errorf("jpeg frame too large: %s bytes", strconv.Itoa(len(data)))
		}
	}
}
