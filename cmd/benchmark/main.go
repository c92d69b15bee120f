package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime/pprof"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/delaneyj/watchparty/observer"
	"github.com/jamiealquiza/tachymeter"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v3"
)

const (
	iterationsKey = "iterations"
	profileKey    = "profile"
	syncKey       = "sync"
	maxWidthKey   = "max-width"
)

func main() {
	cmd := &cli.Command{
		Name:  "benchmark",
		Usage: "Measure write-to-flush latency through chains of derived values",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  iterationsKey,
				Usage: "Writes per graph",
				Value: 100,
			},
			&cli.StringFlag{
				Name:  profileKey,
				Usage: "Write a CPU profile to this file",
			},
			&cli.BoolFlag{
				Name:  syncKey,
				Usage: "Also benchmark sync watchers that bypass the scheduler",
			},
			&cli.IntFlag{
				Name:  maxWidthKey,
				Usage: "Largest width and height of the graph",
				Value: 1_000,
			},
		},
		Action: run,
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	if fn := cmd.String(profileKey); fn != "" {
		f, err := os.Create(fn)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return err
		}
		defer pprof.StopCPUProfile()
	}

	var sizes []int
	for n := 1; n <= int(cmd.Int(maxWidthKey)); n *= 10 {
		sizes = append(sizes, n)
	}
	iters := int(cmd.Int(iterationsKey))

	log.Printf("warming up")
	benchmarkPropagate(ctx, "Scheduled watchers", sizes, iters, false, false)

	benchmarkPropagate(ctx, "Scheduled watchers", sizes, iters, false, true)
	if cmd.Bool(syncKey) {
		benchmarkPropagate(ctx, "Sync watchers", sizes, iters, true, true)
	}
	return nil
}

// benchmarkPropagate builds w chains of h derived values over one source,
// each chain ending in a watcher, then times write + flush.
func benchmarkPropagate(ctx context.Context, title string, sizes []int, iters int, sync, shouldRender bool) {
	tbl := table.NewWriter()
	tbl.SetTitle(title)
	tbl.SetOutputMirror(os.Stdout)
	tbl.AppendHeader(table.Row{"benchmark", "avg", "min", "p75", "p99", "max", "order digest"})

	for _, w := range sizes {
		for _, h := range sizes {
			if ctx.Err() != nil {
				return
			}
			tach := tachymeter.New(&tachymeter.Config{Size: iters})

			sys := observer.New(observer.WithErrorHandler(func(err error, info string) {
				log.Panicf("%s: %v", info, err)
			}))
			digest := xxhash.New()
			var buf []byte
			sys.AfterFlush(func(ran []*observer.Watcher) {
				for _, r := range ran {
					buf = strconv.AppendUint(buf[:0], r.ID(), 10)
					digest.Write(buf)
				}
			})

			src := sys.Reactive(map[string]any{"v": 1})
			opts := []observer.WatchOption{}
			if sync {
				opts = append(opts, observer.Sync())
			}
			for i := 0; i < w; i++ {
				last := func() int { return src.Get("v").(int) }
				for j := 0; j < h; j++ {
					prev := last
					d := sys.DefineDerived(func() any { return prev() + 1 })
					last = func() int { return d.Read().(int) }
				}
				sys.Watch(func() any { return last() }, nil, opts...)
			}

			for i := 0; i < iters; i++ {
				start := time.Now()
				src.Set("v", src.Get("v").(int)+1)
				sys.Flush()
				tach.AddTime(time.Since(start))
			}

			calc := tach.Calc()
			tbl.AppendRows([]table.Row{
				{
					fmt.Sprintf("propagate: %d * %d", w, h),
					calc.Time.Avg,
					calc.Time.Min,
					calc.Time.P75,
					calc.Time.P99,
					calc.Time.Max,
					fmt.Sprintf("%016x", digest.Sum64()),
				},
			})
		}
	}

	if shouldRender {
		tbl.Render()
	}
}
