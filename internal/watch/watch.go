// Package watch runs an object detector over camera frames and journals what it sees.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/andresmejia3/aist/internal/capture"
	"github.com/andresmejia3/aist/internal/imageio"
	"github.com/andresmejia3/aist/internal/journal"
	"github.com/andresmejia3/aist/internal/types"
	"golang.org/x/sync/errgroup"
)

// DefaultConf is the minimum detection confidence.
const DefaultConf = 0.5

// Detector finds objects of the given classes (all when empty) in a JPEG frame.
type Detector interface {
	Detect(frame []byte, classes []int, conf float64) ([]types.Detection, error)
}

// Engine is a Detector owning a process that must be released.
type Engine interface {
	Detector
	Close()
}

// EngineFactory starts one engine per concurrent source.
type EngineFactory func(ctx context.Context, id int) (Engine, error)

// Record is the journal entry for one frame.
type Record struct {
	Classes []int        `json:"classes"`
	Boxes   [][4]float64 `json:"xyxyn_bboxes"`
	Conf    []float64    `json:"conf,omitempty"`
	Camera  *int         `json:"camera,omitempty"`
}

func newRecord(dets []types.Detection) Record {
	rec := Record{
		Classes: make([]int, len(dets)),
		Boxes:   make([][4]float64, len(dets)),
		Conf:    make([]float64, len(dets)),
	}
	for i, d := range dets {
		rec.Classes[i] = d.Class
		rec.Boxes[i] = d.Box
		rec.Conf[i] = d.Conf
	}
	return rec
}

// Report summarises a run.
type Report struct {
	Frames     int
	Detections int
	PerClass   map[string]int
}

func (rep *Report) add(dets []types.Detection) {
	if rep.PerClass == nil {
		rep.PerClass = make(map[string]int)
	}
	rep.Frames++
	rep.Detections += len(dets)
	for _, d := range dets {
		name, ok := ClassName(d.Class)
		if !ok {
			name = fmt.Sprintf("class %d", d.Class)
		}
		rep.PerClass[name]++
	}
}

// Options configures a run.
type Options struct {
	// Journal receives one Record per frame. Nil disables logging.
	Journal *journal.Journal
	// OnFrame is called in frame order from a single goroutine.
	OnFrame func(camera string, rec Record) error
}

// Watcher detects a selected subset of classes.
type Watcher struct {
	Detector Detector
	Conf     float64
	Logger   *slog.Logger

	classes []int
}

// New watches every class at DefaultConf.
func New(d Detector) *Watcher {
	return &Watcher{Detector: d, Conf: DefaultConf, Logger: slog.Default(), classes: AllClasses()}
}

func (w *Watcher) logger() *slog.Logger {
	if w.Logger == nil {
		return slog.Default()
	}
	return w.Logger
}

// SelectClasses restricts detection to ids. An empty list selects everything.
func (w *Watcher) SelectClasses(ids []int) error {
	if len(ids) == 0 {
		w.classes = AllClasses()
		return nil
	}
	if err := validateClasses(ids); err != nil {
		return err
	}
	w.classes = append([]int(nil), ids...)
	return nil
}

// Classes returns the selected class indexes.
func (w *Watcher) Classes() []int {
	return append([]int(nil), w.classes...)
}

// filter is what goes on the wire: nothing when every class is selected.
func (w *Watcher) filter() []int {
	if len(w.classes) == NumClasses {
		return nil
	}
	return w.classes
}

// PredictBytes runs the detector on an encoded image of any supported format.
// The class selection does not apply here; the confidence does.
func (w *Watcher) PredictBytes(image []byte) (Record, error) {
	frame, err := imageio.ToJPEG(image)
	if err != nil {
		return Record{}, err
	}
	dets, err := w.Detector.Detect(frame, nil, w.Conf)
	if err != nil {
		return Record{}, err
	}
	return newRecord(dets), nil
}

func emit(opts Options, rep *Report, frame types.Frame, camera string, withCamera bool, dets []types.Detection) error {
	rep.add(dets)
	rec := newRecord(dets)
	if withCamera {
		cam := frame.Camera
		rec.Camera = &cam
	}
	if opts.Journal != nil {
		if err := opts.Journal.Record(frame.At, rec); err != nil {
			return err
		}
	}
	if opts.OnFrame != nil {
		return opts.OnFrame(camera, rec)
	}
	return nil
}

// Start watches a single source until it ends or ctx is cancelled.
func (w *Watcher) Start(ctx context.Context, src capture.Source, opts Options) (Report, error) {
	var rep Report
	w.logger().Info("watcher started", "source", src.Name(), "classes", len(w.classes), "conf", w.Conf)
	for {
		frame, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return rep, nil
		}
		if err != nil {
			return rep, err
		}
		dets, err := w.Detector.Detect(frame.Data, w.filter(), w.Conf)
		if err != nil {
			return rep, err
		}
		if err := emit(opts, &rep, frame, src.Name(), false, dets); err != nil {
			return rep, err
		}
	}
}

// ScanSequential polls every source in turn; records carry the camera index.
// A source that reaches EOF leaves the rotation.
func (w *Watcher) ScanSequential(ctx context.Context, sources []capture.Source, opts Options) (Report, error) {
	var rep Report
	active := append([]capture.Source(nil), sources...)
	for len(active) > 0 {
		next := active[:0]
		for _, src := range active {
			frame, err := src.Next(ctx)
			if errors.Is(err, io.EOF) {
				w.logger().Info("source ended", "source", src.Name())
				continue
			}
			if err != nil {
				return rep, err
			}
			next = append(next, src)

			dets, err := w.Detector.Detect(frame.Data, w.filter(), w.Conf)
			if err != nil {
				return rep, fmt.Errorf("camera %s: %w", src.Name(), err)
			}
			if err := emit(opts, &rep, frame, src.Name(), true, dets); err != nil {
				return rep, err
			}
		}
		active = next
	}
	return rep, nil
}

type detected struct {
	frame  types.Frame
	camera string
	dets   []types.Detection
}

// ScanConcurrent gives every source its own goroutine and engine; records
// reach the journal through a single sink in the order their sources handed
// the frames over.
func (w *Watcher) ScanConcurrent(ctx context.Context, sources []capture.Source, newEngine EngineFactory, opts Options) (Report, error) {
	var rep Report
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sink := journal.NewSink(nil, func(ev journal.Event) error {
		d, _ := ev.Data.(detected)
		if err := emit(opts, &rep, d.frame, d.camera, true, d.dets); err != nil {
			cancel()
			return err
		}
		return nil
	}, 2*len(sources))

	filter := w.filter()
	var seq atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			engine, err := newEngine(gctx, i)
			if err != nil {
				return fmt.Errorf("camera %s: start engine: %w", src.Name(), err)
			}
			defer engine.Close()

			for {
				frame, err := src.Next(gctx)
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return err
				}
				n := int(seq.Add(1))
				dets, err := engine.Detect(frame.Data, filter, w.Conf)
				if err != nil {
					return fmt.Errorf("camera %s: %w", src.Name(), err)
				}
				frame.Data = nil
				ev := journal.Event{Seq: n, Camera: i, At: frame.At, Data: detected{frame: frame, camera: src.Name(), dets: dets}}
				if err := sink.Send(gctx, ev); err != nil {
					return err
				}
			}
		})
	}

	err := g.Wait()
	if serr := sink.Close(); serr != nil {
		err = serr
	}
	return rep, err
}
