package vision

import (
	"fmt"
	"image"
	"sort"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/presensi/internal/observability"
)

// Detection represents a detected face.
type Detection struct {
	BBox       [4]float32 // x1, y1, x2, y2 (pixel coordinates)
	Confidence float32
	Landmarks  [5][2]float32 // eyes, nose, mouth corners
}

const (
	detInputSize     = 640
	anchorsPerCell   = 2
	nmsIoUThreshold  = 0.4
	landmarksPerFace = 5
)

// detHead is the output group of one feature-map stride of det_10g.
type detHead struct {
	stride                   int
	scores, boxes, landmarks string
}

// Output names of the insightface det_10g export. Outputs carry no batch
// dimension: stride s yields (640/s)^2 * 2 anchors.
var detHeads = []detHead{
	{stride: 8, scores: "448", boxes: "451", landmarks: "454"},
	{stride: 16, scores: "471", boxes: "474", landmarks: "477"},
	{stride: 32, scores: "494", boxes: "497", landmarks: "500"},
}

func (h detHead) anchors() int64 {
	cells := int64(detInputSize / h.stride)
	return cells * cells * anchorsPerCell
}

// headTensors holds the bound output tensors of one head.
type headTensors struct {
	head                     detHead
	scores, boxes, landmarks *ort.Tensor[float32]
}

// Detector runs RetinaFace (SCRFD det_10g) face detection using ONNX
// Runtime. It is not safe for concurrent use; the tensors are shared
// between calls.
type Detector struct {
	session   *ort.AdvancedSession
	input     *ort.Tensor[float32]
	heads     []headTensors
	threshold float32
}

// NewDetector loads the detection model. opts may be nil for ORT defaults.
func NewDetector(modelPath string, threshold float32, opts *ort.SessionOptions) (*Detector, error) {
	d := &Detector{threshold: threshold}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, detInputSize, detInputSize))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	d.input = input

	var (
		names  []string
		values []ort.Value
	)
	for _, h := range detHeads {
		ht := headTensors{head: h}
		for _, out := range []struct {
			name  string
			width int64
			dst   **ort.Tensor[float32]
		}{
			{h.scores, 1, &ht.scores},
			{h.boxes, 4, &ht.boxes},
			{h.landmarks, landmarksPerFace * 2, &ht.landmarks},
		} {
			t, err := ort.NewEmptyTensor[float32](ort.NewShape(h.anchors(), out.width))
			if err != nil {
				d.heads = append(d.heads, ht)
				d.Close()
				return nil, fmt.Errorf("create output tensor %s: %w", out.name, err)
			}
			*out.dst = t
			names = append(names, out.name)
			values = append(values, t)
		}
		d.heads = append(d.heads, ht)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"}, names,
		[]ort.Value{input}, values,
		opts,
	)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("create detector session: %w", err)
	}
	d.session = session
	return d, nil
}

// Detect finds faces in img. Boxes are in img pixel coordinates, sorted by
// descending confidence.
func (d *Detector) Detect(img image.Image) ([]Detection, error) {
	start := time.Now()
	copy(d.input.GetData(), preprocessForDetection(img, detInputSize, detInputSize))
	observability.InferenceDuration.WithLabelValues("preprocess").Observe(time.Since(start).Seconds())

	start = time.Now()
	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())

	b := img.Bounds()
	var dets []Detection
	for _, ht := range d.heads {
		dets = append(dets, decodeHead(ht.head, ht.scores.GetData(), ht.boxes.GetData(),
			ht.landmarks.GetData(), d.threshold, b.Dx(), b.Dy())...)
	}
	return nms(dets, nmsIoUThreshold), nil
}

// decodeHead turns one stride's raw outputs into detections scaled to a
// w x h image. Box and landmark outputs are offsets from the anchor centre
// in stride units.
func decodeHead(head detHead, scores, boxes, landmarks []float32, threshold float32, w, h int) []Detection {
	var dets []Detection
	cells := detInputSize / head.stride
	st := float32(head.stride)
	sx := float32(w) / detInputSize
	sy := float32(h) / detInputSize

	for i, score := range scores {
		if score < threshold {
			continue
		}
		cell := i / anchorsPerCell
		ax := float32(cell%cells) * st
		ay := float32(cell/cells) * st

		box := boxes[i*4 : i*4+4]
		det := Detection{
			Confidence: score,
			BBox: [4]float32{
				clampF((ax-box[0]*st)*sx, 0, float32(w)),
				clampF((ay-box[1]*st)*sy, 0, float32(h)),
				clampF((ax+box[2]*st)*sx, 0, float32(w)),
				clampF((ay+box[3]*st)*sy, 0, float32(h)),
			},
		}
		lm := landmarks[i*landmarksPerFace*2 : (i+1)*landmarksPerFace*2]
		for k := range det.Landmarks {
			det.Landmarks[k] = [2]float32{(ax + lm[2*k]*st) * sx, (ay + lm[2*k+1]*st) * sy}
		}
		dets = append(dets, det)
	}
	return dets
}

// bestDetection returns the most confident detection.
func bestDetection(dets []Detection) (Detection, bool) {
	if len(dets) == 0 {
		return Detection{}, false
	}
	best := dets[0]
	for _, d := range dets[1:] {
		if d.Confidence > best.Confidence {
			best = d
		}
	}
	return best, true
}

func (d *Detector) Close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.input != nil {
		d.input.Destroy()
	}
	for _, ht := range d.heads {
		for _, t := range []*ort.Tensor[float32]{ht.scores, ht.boxes, ht.landmarks} {
			if t != nil {
				t.Destroy()
			}
		}
	}
}

// nms keeps the most confident of every group of boxes overlapping by more
// than iouThreshold. The result is sorted by descending confidence.
func nms(dets []Detection, iouThreshold float32) []Detection {
	if len(dets) < 2 {
		return dets
	}
	sort.SliceStable(dets, func(i, j int) bool {
		return dets[i].Confidence > dets[j].Confidence
	})

	kept := dets[:0]
	for _, cand := range dets {
		suppressed := false
		for _, k := range kept {
			if iou(k.BBox, cand.BBox) > iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, cand)
		}
	}
	return kept
}

func iou(a, b [4]float32) float32 {
	iw := max(0, min(a[2], b[2])-max(a[0], b[0]))
	ih := max(0, min(a[3], b[3])-max(a[1], b[1]))
	inter := iw * ih

	union := (a[2]-a[0])*(a[3]-a[1]) + (b[2]-b[0])*(b[3]-b[1]) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clampF(v, lo, hi float32) float32 {
	return min(max(v, lo), hi)
}
