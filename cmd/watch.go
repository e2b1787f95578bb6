package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/andresmejia3/aist/internal/capture"
	"github.com/andresmejia3/aist/internal/utils"
	"github.com/andresmejia3/aist/internal/watch"
	"github.com/andresmejia3/aist/internal/worker"
	"github.com/spf13/cobra"
)

var (
	watchCameras    []string
	watchClasses    []string
	watchConf       float64
	watchModel      string
	watchConcurrent bool
	watchListOnly   bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Detect objects on one or more cameras and log them",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if watchListOnly {
			printClasses()
			return nil
		}
		if !cmd.Flags().Changed("conf") {
			watchConf = cfg.Watch.Conf
		}
		if !cmd.Flags().Changed("model") {
			watchModel = cfg.Watch.Model
		}
		if watchConf < 0 || watchConf > 1 {
			return fmt.Errorf("--conf must be within [0, 1]")
		}
		ids, err := parseClasses(watchClasses)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			ids = cfg.Watch.Classes
		}
		return runWatch(cmd.Context(), ids)
	},
}

func init() {
	watchCmd.Flags().StringSliceVarP(&watchCameras, "camera", "c", []string{"0"}, "Cameras to watch (repeat or comma separate)")
	watchCmd.Flags().StringSliceVar(&watchClasses, "classes", nil, "Classes to detect, by name or index (default: all)")
	watchCmd.Flags().Float64Var(&watchConf, "conf", watch.DefaultConf, "Minimum detection confidence")
	watchCmd.Flags().StringVar(&watchModel, "model", "yolov5s", "Detection model weights")
	watchCmd.Flags().BoolVar(&watchConcurrent, "concurrent", false, "One engine and goroutine per camera")
	watchCmd.Flags().BoolVar(&watchListOnly, "list-classes", false, "Print the class table and exit")
	rootCmd.AddCommand(watchCmd)
}

// parseClasses accepts class names ("person", "traffic light") or indexes.
func parseClasses(specs []string) ([]int, error) {
	ids := make([]int, 0, len(specs))
	for _, s := range specs {
		s = strings.TrimSpace(s)
		if id, err := strconv.Atoi(s); err == nil {
			if _, ok := watch.ClassName(id); !ok {
				return nil, fmt.Errorf("unknown class %d (valid: 0-%d)", id, watch.NumClasses-1)
			}
			ids = append(ids, id)
			continue
		}
		id, ok := watch.ClassID(strings.ToLower(s))
		if !ok {
			return nil, fmt.Errorf("unknown class %q, see --list-classes", s)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func printClasses() {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tCLASS")
	for _, id := range watch.AllClasses() {
		name, _ := watch.ClassName(id)
		fmt.Fprintf(w, "%d\t%s\n", id, name)
	}
	w.Flush()
}

func runWatch(ctx context.Context, ids []int) error {
	sources, err := openSources(ctx, watchCameras)
	if err != nil {
		utils.ShowError("Failed to open cameras", err, nil)
		return err
	}
	defer capture.CloseAll(sources)

	j, err := openJournal(cfg.Watch.SaveEvery)
	if err != nil {
		utils.ShowError("Failed to create log directory", err, nil)
		return err
	}
	defer closeJournal(j)

	opts := watch.Options{Journal: j}
	var rep watch.Report
	if watchConcurrent && len(sources) > 1 {
		w := watch.New(nil)
		w.Conf = watchConf
		if err := w.SelectClasses(ids); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "⚙️  Spawning %d detection engines...\n", len(sources))
		rep, err = w.ScanConcurrent(ctx, sources, detectEngines(watchModel), opts)
		if err != nil && ctx.Err() == nil {
			return engineError("Concurrent watch failed", err, nil)
		}
	} else {
		engine, err := worker.NewDetectWorker(ctx, 0, workerConfig(), watchModel)
		if err != nil {
			return engineError("Failed to start detection engine", err, nil)
		}
		defer engine.Close()

		w := watch.New(engine)
		w.Conf = watchConf
		if err := w.SelectClasses(ids); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "👀 Watching %d camera(s) for %d classes. Ctrl+C to stop.\n", len(sources), len(w.Classes()))
		if len(sources) == 1 {
			rep, err = w.Start(ctx, sources[0], opts)
		} else {
			rep, err = w.ScanSequential(ctx, sources, opts)
		}
		if err != nil && ctx.Err() == nil {
			return engineError("Watch failed", err, engine.PythonWorker)
		}
	}

	fmt.Fprintf(os.Stderr, "✨ %d frames, %d detections\n", rep.Frames, rep.Detections)
	names := make([]string, 0, len(rep.PerClass))
	for name := range rep.PerClass {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "   %-16s %d\n", name, rep.PerClass[name])
	}
	return nil
}
