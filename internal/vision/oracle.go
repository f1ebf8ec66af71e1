package vision

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/your-org/presensi/internal/config"
	"github.com/your-org/presensi/internal/models"
	"github.com/your-org/presensi/internal/observability"
)

var (
	// ErrNoFace is returned by Describe when the image holds no detectable face.
	ErrNoFace = errors.New("no face detected")
	// ErrClosed is returned once the oracle has been closed.
	ErrClosed = errors.New("face oracle closed")
)

type faceDetector interface {
	Detect(img image.Image) ([]Detection, error)
	Close()
}

type faceEmbedder interface {
	Embed(face image.Image) ([]float32, error)
	Close()
}

type loadFunc func() (faceDetector, faceEmbedder, error)

// Oracle turns camera frames into face descriptors. Models load in the
// background; callers block in WaitReady until loading finishes.
type Oracle struct {
	mirror bool
	ready  chan struct{}

	// set once before ready is closed
	loadErr error

	mu     sync.Mutex
	det    faceDetector
	emb    faceEmbedder
	closed bool
}

// NewOracle starts loading the detection and embedding models from
// cfg.ModelsDir and returns immediately.
func NewOracle(cfg config.VisionConfig) *Oracle {
	return startOracle(cfg.Mirror, func() (faceDetector, faceEmbedder, error) {
		if err := initRuntime(cfg.RuntimeLib); err != nil {
			return nil, nil, err
		}

		detPath := filepath.Join(cfg.ModelsDir, cfg.DetectorModel)
		slog.Info("loading detection model", "path", detPath)
		det, err := NewDetector(detPath, float32(cfg.DetectionThreshold), nil)
		if err != nil {
			return nil, nil, fmt.Errorf("load detector: %w", err)
		}

		embPath := filepath.Join(cfg.ModelsDir, cfg.EmbedderModel)
		slog.Info("loading embedding model", "path", embPath)
		emb, err := NewEmbedder(embPath, cfg.EmbeddingDim, nil)
		if err != nil {
			det.Close()
			return nil, nil, fmt.Errorf("load embedder: %w", err)
		}

		if _, err := emb.Embed(blank(112, 112)); err != nil {
			det.Close()
			emb.Close()
			return nil, nil, fmt.Errorf("warm up embedder: %w", err)
		}
		return det, emb, nil
	})
}

func startOracle(mirror bool, load loadFunc) *Oracle {
	o := &Oracle{mirror: mirror, ready: make(chan struct{})}
	go o.load(load)
	return o
}

func (o *Oracle) load(load loadFunc) {
	start := time.Now()
	det, emb, err := load()

	o.mu.Lock()
	if err == nil && o.closed {
		det.Close()
		emb.Close()
		err = ErrClosed
	}
	o.det, o.emb, o.loadErr = det, emb, err
	o.mu.Unlock()

	if err != nil {
		slog.Error("face models failed to load", "error", err)
	} else {
		slog.Info("face models ready", "took", time.Since(start))
	}
	close(o.ready)
}

// WaitReady blocks until the models are loaded. It returns the load error,
// or ctx's error if ctx ends first.
func (o *Oracle) WaitReady(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-o.ready:
		return o.loadErr
	}
}

// Ready reports whether the models finished loading successfully.
func (o *Oracle) Ready() bool {
	select {
	case <-o.ready:
		return o.loadErr == nil
	default:
		return false
	}
}

// Extract runs detection and embedding on one camera frame. When no face is
// found the sample has a nil Descriptor and the error is nil. With several
// faces the most confident detection is used.
func (o *Oracle) Extract(ctx context.Context, frame []byte) (models.LiveSample, error) {
	if err := o.WaitReady(ctx); err != nil {
		return models.LiveSample{}, err
	}
	img, err := DecodeFrame(frame, o.mirror)
	if err != nil {
		return models.LiveSample{}, err
	}

	start := time.Now()
	sample, err := o.extract(img)
	observability.ExtractionDuration.Observe(time.Since(start).Seconds())
	return sample, err
}

// Describe returns the descriptor of the most prominent face in an uploaded
// image, for enrollment.
func (o *Oracle) Describe(ctx context.Context, data []byte) ([]float32, error) {
	if err := o.WaitReady(ctx); err != nil {
		return nil, err
	}
	img, err := DecodeFrame(data, false)
	if err != nil {
		return nil, err
	}
	sample, err := o.extract(img)
	if err != nil {
		return nil, err
	}
	if !sample.HasFace() {
		return nil, ErrNoFace
	}
	return sample.Descriptor, nil
}

func (o *Oracle) extract(img image.Image) (models.LiveSample, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return models.LiveSample{}, ErrClosed
	}

	now := time.Now()
	dets, err := o.det.Detect(img)
	if err != nil {
		return models.LiveSample{}, fmt.Errorf("detect: %w", err)
	}
	best, ok := bestDetection(dets)
	if !ok {
		return models.LiveSample{Timestamp: now}, nil
	}

	face := cropFace(img, best.BBox)
	if face == nil {
		return models.LiveSample{Timestamp: now}, nil
	}

	descriptor, err := o.emb.Embed(face)
	if err != nil {
		return models.LiveSample{}, fmt.Errorf("embed: %w", err)
	}
	return models.LiveSample{Descriptor: descriptor, BBox: best.BBox, Timestamp: now}, nil
}

// Close releases the model sessions. Safe to call more than once, and before
// loading has finished.
func (o *Oracle) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}
	o.closed = true
	if o.det != nil {
		o.det.Close()
	}
	if o.emb != nil {
		o.emb.Close()
	}
}
