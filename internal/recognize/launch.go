package recognize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/andresmejia3/aist/internal/capture"
	"github.com/andresmejia3/aist/internal/identity"
	"github.com/andresmejia3/aist/internal/journal"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Report summarises a run.
type Report struct {
	SessionID  uuid.UUID
	Frames     int
	Faces      int
	Identified int
	Unknown    int
	// Last is the most recent face result, NoOne when no face was seen.
	Last identity.Result
}

func (rep *Report) add(matches []FaceMatch) {
	rep.Frames++
	for _, m := range matches {
		rep.Faces++
		switch m.Result.Outcome {
		case identity.Identified:
			rep.Identified++
		case identity.Unknown:
			rep.Unknown++
		}
		rep.Last = m.Result
	}
}

// LaunchOptions configures a single-source run.
type LaunchOptions struct {
	// StopWhenRecognized ends the run at the first identified face.
	StopWhenRecognized bool
	// Journal receives one entry per face. Nil disables logging.
	Journal *journal.Journal
}

// Observation is handed to ScanOptions.OnFrame for every processed frame.
type Observation struct {
	SessionID uuid.UUID
	Seq       int
	Camera    string
	Index     int // position of the source in the scan
	At        time.Time
	Matches   []FaceMatch
}

// ScanOptions configures multi-source runs.
type ScanOptions struct {
	Journal *journal.Journal
	// Quiet suppresses the greeting lines.
	Quiet bool
	// OnFrame is called in frame order from a single goroutine.
	OnFrame func(Observation) error
}

func (r *Recognizer) greet(res identity.Result, camera string) {
	suffix := ""
	if camera != "" {
		suffix = fmt.Sprintf(" (camera %s)", camera)
	}
	switch res.Outcome {
	case identity.Identified:
		fmt.Fprintf(r.out(), "👋 Hi, %s%s\n", res.Label, suffix)
	case identity.Unknown:
		fmt.Fprintf(r.out(), "⚠️  Wrong person detected!%s\n", suffix)
	}
}

func logEntry(res identity.Result, camera string) string {
	if camera == "" {
		return res.String()
	}
	return fmt.Sprintf("%s (camera %s)", res, camera)
}

// Launch watches one source until it ends, ctx is cancelled or, with
// StopWhenRecognized, a gallery identity shows up.
func (r *Recognizer) Launch(ctx context.Context, src capture.Source, opts LaunchOptions) (Report, error) {
	rep := Report{SessionID: uuid.New(), Last: identity.Result{Outcome: identity.NoOne}}
	if r.Gallery.Len() == 0 {
		return rep, ErrNoIdentities
	}
	m := r.Matcher(r.Threshold)
	log := r.logger().With("session", rep.SessionID, "source", src.Name())
	log.Info("recognizer started", "identities", r.Gallery.Len(), "threshold", r.Threshold)

	for {
		frame, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			log.Info("source ended", "frames", rep.Frames)
			return rep, nil
		}
		if err != nil {
			return rep, err
		}

		matches, err := matchFaces(r.Embedder, m, frame.Data)
		if err != nil {
			return rep, err
		}
		rep.add(matches)

		for _, fm := range matches {
			r.greet(fm.Result, "")
			if opts.Journal != nil {
				if err := opts.Journal.Record(frame.At, logEntry(fm.Result, "")); err != nil {
					return rep, err
				}
			}
			if opts.StopWhenRecognized && fm.Result.Outcome == identity.Identified {
				log.Info("identity recognized, stopping", "label", fm.Result.Label, "distance", fm.Result.Distance)
				return rep, nil
			}
		}
	}
}

// ScanSequential polls every source in turn from the calling goroutine.
// A source that reaches EOF leaves the rotation; the scan ends when none remain.
func (r *Recognizer) ScanSequential(ctx context.Context, sources []capture.Source, opts ScanOptions) (Report, error) {
	rep := Report{SessionID: uuid.New(), Last: identity.Result{Outcome: identity.NoOne}}
	if r.Gallery.Len() == 0 {
		return rep, ErrNoIdentities
	}
	m := r.Matcher(r.Threshold)
	log := r.logger().With("session", rep.SessionID)
	log.Info("sequential scan started", "sources", len(sources), "identities", r.Gallery.Len())

	active := append([]capture.Source(nil), sources...)
	seq := 0
	for len(active) > 0 {
		next := active[:0]
		for _, src := range active {
			frame, err := src.Next(ctx)
			if errors.Is(err, io.EOF) {
				log.Info("source ended", "source", src.Name())
				continue
			}
			if err != nil {
				return rep, err
			}
			next = append(next, src)

			matches, err := matchFaces(r.Embedder, m, frame.Data)
			if err != nil {
				return rep, fmt.Errorf("camera %s: %w", src.Name(), err)
			}
			seq++
			rep.add(matches)
			if err := r.emit(opts, rep.SessionID, journal.Event{Seq: seq, Camera: frame.Camera, At: frame.At}, src.Name(), matches); err != nil {
				return rep, err
			}
		}
		active = next
	}
	return rep, nil
}

// emit prints, journals and forwards one processed frame.
func (r *Recognizer) emit(opts ScanOptions, session uuid.UUID, ev journal.Event, camera string, matches []FaceMatch) error {
	for _, fm := range matches {
		if !opts.Quiet {
			r.greet(fm.Result, camera)
		}
		if opts.Journal != nil {
			if err := opts.Journal.Record(ev.At, logEntry(fm.Result, camera)); err != nil {
				return err
			}
		}
	}
	if opts.OnFrame != nil {
		return opts.OnFrame(Observation{
			SessionID: session,
			Seq:       ev.Seq,
			Camera:    camera,
			Index:     ev.Camera,
			At:        ev.At,
			Matches:   matches,
		})
	}
	return nil
}

// scanned is the payload workers hand to the sink.
type scanned struct {
	camera  string
	matches []FaceMatch
}

// ScanConcurrent runs one goroutine per source, each with its own engine from
// newEngine. Frames are numbered in the order their sources hand them over,
// not by frame.At, and delivered to a single sink goroutine, which prints,
// journals and reports them in that order.
// The first failing source cancels the others.
func (r *Recognizer) ScanConcurrent(ctx context.Context, sources []capture.Source, newEngine EngineFactory, opts ScanOptions) (Report, error) {
	rep := Report{SessionID: uuid.New(), Last: identity.Result{Outcome: identity.NoOne}}
	if r.Gallery.Len() == 0 {
		return rep, ErrNoIdentities
	}
	m := r.Matcher(r.Threshold)
	log := r.logger().With("session", rep.SessionID)
	log.Info("concurrent scan started", "sources", len(sources), "identities", r.Gallery.Len())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The sink goroutine owns rep and the journal until Close returns.
	sink := journal.NewSink(nil, func(ev journal.Event) error {
		s, _ := ev.Data.(scanned)
		rep.add(s.matches)
		if err := r.emit(opts, rep.SessionID, ev, s.camera, s.matches); err != nil {
			cancel()
			return err
		}
		return nil
	}, 2*len(sources))

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
					log.Info("source ended", "source", src.Name())
					return nil
				}
				if err != nil {
					return err
				}
				n := int(seq.Add(1))

				matches, err := matchFaces(engine, m, frame.Data)
				if err != nil {
					return fmt.Errorf("camera %s: %w", src.Name(), err)
				}

				err = sink.Send(gctx, journal.Event{
					Seq:    n,
					Camera: i,
					At:     frame.At,
					Data:   scanned{camera: src.Name(), matches: matches},
				})
				if err != nil {
					return err
				}
			}
		})
	}

	err := g.Wait()
	// A sink failure cancels the workers, so it is the more useful error.
	if serr := sink.Close(); serr != nil {
		err = serr
	}
	return rep, err
}
