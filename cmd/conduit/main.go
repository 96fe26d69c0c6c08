// conduit runs the channel, pipeline and broadcast demonstrations.
//
// Usage:
//
//	conduit [-scenario name|all] [-config conduit.yaml] [-products products.yaml] [-log-level debug] [-parallel]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"

	"github.com/baxromumarov/conduit/catalog"
	"github.com/baxromumarov/conduit/internal/demo"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("conduit", flag.ContinueOnError)
	var (
		configPath = fs.String("config", "", "YAML configuration file")
		scenario   = fs.String("scenario", "", "scenario to run: "+strings.Join(demo.Names(), ", ")+" or all")
		products   = fs.String("products", "", "YAML product list replacing the built-in one")
		logLevel   = fs.String("log-level", "", "debug, info, warn or error")
		parallel   = fs.Bool("parallel", false, "run the scenarios of \"all\" concurrently")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := demo.DefaultConfig()
	if *configPath != "" {
		loaded, err := demo.LoadConfig(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "scenario":
			cfg.Scenario = *scenario
		case "products":
			cfg.ProductsFile = *products
		case "log-level":
			cfg.LogLevel = *logLevel
		case "parallel":
			cfg.Parallel = *parallel
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := demo.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	var src catalog.Source = catalog.NewStaticSource(catalog.DefaultProducts())
	if cfg.ProductsFile != "" {
		src = catalog.FileSource{Path: cfg.ProductsFile}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	reports, err := demo.Run(ctx, demo.Env{Config: cfg, Source: src, Logger: logger})
	if err != nil {
		return err
	}
	for _, r := range reports {
		fmt.Fprintf(stdout, "%s:\n", r.Scenario)
		for _, consumer := range slices.Sorted(maps.Keys(r.Received)) {
			fmt.Fprintf(stdout, "  %-12s %s\n", consumer, strings.Join(r.Received[consumer], ", "))
		}
	}
	return nil
}
