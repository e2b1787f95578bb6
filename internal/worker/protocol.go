package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/andresmejia3/aist/internal/types"
)

// maxEmbeddingDim guards against allocating garbage sizes from a corrupt reply.
const maxEmbeddingDim = 4096

// reader decodes big endian fields and remembers the first error.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.buf) {
		r.err = io.ErrUnexpectedEOF
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *reader) i32() int32 { return int32(r.u32()) }

func (r *reader) f32() float32 { return math.Float32frombits(r.u32()) }

func (r *reader) bytes(n int) []byte { return r.take(n) }

// FaceWorker runs the face detection + embedding engine.
type FaceWorker struct {
	*PythonWorker
}

// NewFaceWorker starts an engine in embedding mode.
func NewFaceWorker(ctx context.Context, id int, cfg Config) (*FaceWorker, error) {
	cfg.Args = append([]string{"--mode", "embed"}, cfg.Args...)
	w, err := NewPythonWorker(ctx, id, cfg)
	if err != nil {
		return nil, err
	}
	return &FaceWorker{PythonWorker: w}, nil
}

// Embed sends a JPEG frame and returns every face the engine found.
//
//	ok payload: [u32 n] n × ([4]i32 box, [u32 dim], dim × f32 vec, f32 prob)
func (w *FaceWorker) Embed(frame []byte) ([]types.FaceResult, error) {
	r, err := w.call(frame)
	if err != nil {
		return nil, err
	}
	return decodeFaces(r)
}

func decodeFaces(r *reader) ([]types.FaceResult, error) {
	n := int(r.u32())
	if r.err != nil {
		return nil, fmt.Errorf("malformed face reply: %w", r.err)
	}
	faces := make([]types.FaceResult, 0, min(n, 16))
	for i := 0; i < n; i++ {
		var f types.FaceResult
		for j := range f.Loc {
			f.Loc[j] = int(r.i32())
		}
		dim := int(r.u32())
		if dim > maxEmbeddingDim {
			return nil, fmt.Errorf("face %d: embedding dimension %d out of range", i, dim)
		}
		f.Vec = make([]float64, dim)
		for j := range f.Vec {
			f.Vec[j] = float64(r.f32())
		}
		f.Prob = float64(r.f32())
		if r.err != nil {
			return nil, fmt.Errorf("malformed face %d: %w", i, r.err)
		}
		faces = append(faces, f)
	}
	return faces, nil
}

// DetectWorker runs the object detection engine.
type DetectWorker struct {
	*PythonWorker
}

// NewDetectWorker starts an engine in detection mode with the given model weights.
func NewDetectWorker(ctx context.Context, id int, cfg Config, model string) (*DetectWorker, error) {
	args := []string{"--mode", "detect"}
	if model != "" {
		args = append(args, "--model", model)
	}
	cfg.Args = append(args, cfg.Args...)
	w, err := NewPythonWorker(ctx, id, cfg)
	if err != nil {
		return nil, err
	}
	return &DetectWorker{PythonWorker: w}, nil
}

// Detect sends a JPEG frame restricted to classes (empty means all) and a
// minimum confidence, and returns the detected objects.
//
//	request:    [u8 nClasses][nClasses × u8][f32 conf][jpeg]
//	ok payload: [u32 n] n × (i32 class, f32 conf, [4]f32 xyxyn)
func (w *DetectWorker) Detect(frame []byte, classes []int, conf float64) ([]types.Detection, error) {
	req, err := encodeDetectRequest(frame, classes, conf)
	if err != nil {
		return nil, err
	}
	r, err := w.call(req)
	if err != nil {
		return nil, err
	}
	return decodeDetections(r)
}

func encodeDetectRequest(frame []byte, classes []int, conf float64) ([]byte, error) {
	if len(classes) > math.MaxUint8 {
		return nil, errors.New("too many classes in one request")
	}
	var buf bytes.Buffer
	buf.Grow(1 + len(classes) + 4 + len(frame))
	buf.WriteByte(byte(len(classes)))
	for _, c := range classes {
		if c < 0 || c > math.MaxUint8 {
			return nil, fmt.Errorf("class id %d out of range", c)
		}
		buf.WriteByte(byte(c))
	}
	binary.Write(&buf, binary.BigEndian, float32(conf))
	buf.Write(frame)
	return buf.Bytes(), nil
}

func decodeDetections(r *reader) ([]types.Detection, error) {
	n := int(r.u32())
	if r.err != nil {
		return nil, fmt.Errorf("malformed detection reply: %w", r.err)
	}
	out := make([]types.Detection, 0, min(n, 16))
	for i := 0; i < n; i++ {
		var d types.Detection
		d.Class = int(r.i32())
		d.Conf = float64(r.f32())
		for j := range d.Box {
			d.Box[j] = float64(r.f32())
		}
		if r.err != nil {
			return nil, fmt.Errorf("malformed detection %d: %w", i, r.err)
		}
		out = append(out, d)
	}
	return out, nil
}
