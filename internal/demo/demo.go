// Package demo implements the scenarios run by the conduit command: basic
// channels, producers, pipelines, broadcast and conflated broadcast over a
// small point-of-sale product list.
package demo

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/baxromumarov/conduit"
	"github.com/baxromumarov/conduit/catalog"
	"github.com/baxromumarov/conduit/chanx"
)

// Env is what every scenario runs against.
type Env struct {
	Config Config
	Source catalog.Source
	Logger *slog.Logger
}

// Report lists, per consumer, what it received in order.
type Report struct {
	Scenario string
	Received map[string][]string
}

// Total returns the number of items received by all consumers.
func (r Report) Total() int {
	n := 0
	for _, items := range r.Received {
		n += len(items)
	}
	return n
}

// Scenario runs one demonstration.
type Scenario func(ctx context.Context, env Env) (Report, error)

var scenarios = map[string]Scenario{
	"basic":     Basic,
	"producer":  ProducerNumbers,
	"channel":   SharedChannel,
	"publisher": Publisher,
	"pipeline":  Pipeline,
	"broadcast": BroadcastFanOut,
	"conflated": ConflatedLatest,
}

// Names returns the scenario names in sorted order.
func Names() []string {
	return slices.Sorted(maps.Keys(scenarios))
}

// Lookup returns the scenario registered under name.
func Lookup(name string) (Scenario, bool) {
	s, ok := scenarios[name]
	return s, ok
}

// Run executes env.Config.Scenario, or every scenario for "all".
func Run(ctx context.Context, env Env) ([]Report, error) {
	names := []string{env.Config.Scenario}
	if env.Config.Scenario == "all" {
		names = Names()
	}
	return RunAll(ctx, env, names)
}

// RunAll executes the named scenarios, one at a time unless
// env.Config.Parallel is set. Reports are returned in the order of names.
func RunAll(ctx context.Context, env Env, names []string) ([]Report, error) {
	for _, name := range names {
		if _, ok := scenarios[name]; !ok {
			return nil, fmt.Errorf("demo: unknown scenario %q", name)
		}
	}

	reports := make([]Report, len(names))
	g, ctx := errgroup.WithContext(ctx)
	if !env.Config.Parallel {
		g.SetLimit(1)
	}
	for i, name := range names {
		g.Go(func() error {
			logger := env.Logger.With(slog.String("scenario", name))
			logger.Info("scenario started")

			r, err := scenarios[name](ctx, Env{Config: env.Config, Source: env.Source, Logger: logger})
			if err != nil {
				return fmt.Errorf("demo: scenario %s: %w", name, err)
			}
			r.Scenario = name
			reports[i] = r

			logger.Info("scenario finished", slog.Int("received", r.Total()))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// recorder collects what each consumer received.
type recorder struct {
	mu       sync.Mutex
	received map[string][]string
}

func newRecorder() *recorder {
	return &recorder{received: make(map[string][]string)}
}

func (r *recorder) add(consumer, item string) {
	r.mu.Lock()
	r.received[consumer] = append(r.received[consumer], item)
	r.mu.Unlock()
}

func (r *recorder) report() Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Report{Received: maps.Clone(r.received)}
}

// fetchProducts loads the product list in its own task.
func fetchProducts(ctx context.Context, sc *conduit.Scope, src catalog.Source) ([]catalog.Product, error) {
	return conduit.Async(sc, "fetch-products", src.Fetch).Await(ctx)
}

func logEvents(logger *slog.Logger, name string) []chanx.Option {
	return []chanx.Option{chanx.WithName(name), chanx.WithObserver(chanx.LogEvents(logger))}
}

func newScope(ctx context.Context, env Env) *conduit.Scope {
	return conduit.New(ctx, conduit.WithLogger(env.Logger), conduit.WithPanicAsError())
}
