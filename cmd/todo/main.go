package main

import (
	"bufio"
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/delaneyj/watchparty/instrument"
	"github.com/delaneyj/watchparty/observer"
	"github.com/delaneyj/watchparty/persist"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"
)

const (
	dataDirKey     = "data-dir"
	metricsAddrKey = "metrics-addr"
	traceKey       = "trace"
	htmlKey        = "html"
	recordName     = "todos"
)

func main() {
	cmd := &cli.Command{
		Name:  "todo",
		Usage: "A to-do list whose screen is a render watcher over an observable store",
		Description: "Reads commands from stdin, one per line: add <text>, toggle <n>, edit <n> <text>, " +
			"remove <n>, clear, toggle-all, filter all|active|done, title <text>, sort, quit.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  dataDirKey,
				Usage: "Load the list from and autosave it to this directory",
			},
			&cli.StringFlag{
				Name:  metricsAddrKey,
				Usage: "Serve Prometheus metrics on this address, e.g. :9090",
			},
			&cli.BoolFlag{
				Name:  traceKey,
				Usage: "Emit a span per flush through the global OpenTelemetry provider",
			},
			&cli.BoolFlag{
				Name:  htmlKey,
				Usage: "Render HTML instead of text",
			},
		},
		Action: run,
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	start := time.Now()
	log.Printf("todo started")
	defer func() {
		log.Printf("todo finished in %v", time.Since(start))
	}()

	handler := observer.ErrorHandler(func(err error, info string) {
		log.Printf("%s: %v", info, err)
	})
	var observers []observer.FlushObserver

	if addr := cmd.String(metricsAddrKey); addr != "" {
		reg := prometheus.NewRegistry()
		m := instrument.NewMetrics(instrument.WithRegistry(reg), instrument.WithSubsystem("todo"))
		observers = append(observers, m.Observer())
		handler = m.ErrorHandler(handler)

		srv := &http.Server{Addr: addr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("metrics server: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("serving metrics on %s", addr)
	}
	if cmd.Bool(traceKey) {
		tr := instrument.NewTracing(instrument.WithTracerName("todo"), instrument.WithParentContext(ctx))
		observers = append(observers, tr)
		handler = tr.ErrorHandler(handler)
	}

	sys := observer.New(
		observer.WithErrorHandler(handler),
		observer.WithFlushObserver(instrument.Chain(observers...)),
	)
	a := newApp(sys, os.Stdout, cmd.Bool(htmlKey), log.Printf)

	if dir := cmd.String(dataDirKey); dir != "" {
		p, err := persist.NewYAMLPersister(dir)
		if err != nil {
			return err
		}
		if err := p.LoadInto(ctx, recordName, a.state); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		stop := persist.Autosave(ctx, p, recordName, a.state)
		defer stop()
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "quit" {
			break
		}
		if err := a.exec(line); err != nil {
			log.Printf("error: %v", err)
		}
	}
	return scanner.Err()
}
