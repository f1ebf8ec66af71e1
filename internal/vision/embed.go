package vision

import (
	"fmt"
	"image"
	"math"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/presensi/internal/observability"
)

const (
	embInputSize  = 112
	embInputName  = "input.1"
	embOutputName = "683"
)

// Embedder turns a face crop into an L2-normalised descriptor using an
// ArcFace ONNX model. Not safe for concurrent use.
type Embedder struct {
	session *ort.AdvancedSession
	in, out *ort.Tensor[float32]
	dim     int
}

// NewEmbedder loads the embedding model. dim is the descriptor length the
// model produces (512 for w600k_r50). opts may be nil.
func NewEmbedder(modelPath string, dim int, opts *ort.SessionOptions) (*Embedder, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("embedding dim must be > 0, got %d", dim)
	}
	e := &Embedder{dim: dim}

	var err error
	if e.in, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, embInputSize, embInputSize)); err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	if e.out, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(dim))); err != nil {
		e.Close()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	e.session, err = ort.NewAdvancedSession(modelPath,
		[]string{embInputName}, []string{embOutputName},
		[]ort.Value{e.in}, []ort.Value{e.out},
		opts,
	)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("create embedder session: %w", err)
	}
	return e, nil
}

// Embed returns the descriptor of a face crop.
func (e *Embedder) Embed(face image.Image) ([]float32, error) {
	start := time.Now()
	copy(e.in.GetData(), preprocessForEmbedding(face, embInputSize, embInputSize))
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("run embedding: %w", err)
	}
	observability.InferenceDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())

	return l2Normalized(e.out.GetData()[:e.dim]), nil
}

// Dim returns the descriptor length.
func (e *Embedder) Dim() int { return e.dim }

func (e *Embedder) Close() {
	if e.session != nil {
		e.session.Destroy()
	}
	for _, t := range []*ort.Tensor[float32]{e.in, e.out} {
		if t != nil {
			t.Destroy()
		}
	}
}

// l2Normalized returns a unit-length copy of v. A zero vector is copied as is.
func l2Normalized(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	norm := math.Sqrt(sum)
	for i, x := range v {
		if norm > 0 {
			out[i] = float32(float64(x) / norm)
		} else {
			out[i] = x
		}
	}
	return out
}
