// Command tenk processes 10-K filings on the local machine: process
// downloads and chunks them into files, embed adds vectors to a chunk file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"balance-sheets/internal/app"
	"balance-sheets/internal/cost"
	"balance-sheets/internal/embeddings"
)

const usage = `usage:
  tenk process -ticker AAPL [-years 1] [-out dir]
  tenk embed -file output/AAPL_10K_2024-11-01.json
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "process":
		err = runProcess(ctx, os.Args[2:])
	case "embed":
		err = runEmbed(ctx, os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		slog.Default().Error("tenk failed", "command", os.Args[1], "err", err)
		os.Exit(1)
	}
}

func runProcess(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("process", flag.ContinueOnError)
	ticker := fs.String("ticker", "", "company ticker")
	years := fs.Int("years", 1, "number of most recent 10-Ks")
	out := fs.String("out", "", "output directory (default OUTPUT_DIR)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *ticker == "" || *years < 1 {
		fs.Usage()
		return errors.New("-ticker is required and -years must be at least 1")
	}

	deps, err := app.Build()
	if err != nil {
		return err
	}
	processor, err := app.NewProcessor(deps.Config, deps.Log)
	if err != nil {
		return err
	}
	source, err := app.NewEDGAR(deps.Config, deps.Log)
	if err != nil {
		return err
	}
	dir := *out
	if dir == "" {
		dir = deps.Config.OutputDir
	}

	c := &processCmd{
		source:    source,
		processor: processor,
		pause:     deps.Config.EDGARFilingPause,
		outDir:    dir,
		log:       deps.Log,
	}
	written, err := c.run(ctx, *ticker, *years)
	for _, path := range written {
		fmt.Println(path)
	}
	return err
}

func runEmbed(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("embed", flag.ContinueOnError)
	file := fs.String("file", "", "chunk JSON file written by process")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		fs.Usage()
		return errors.New("-file is required")
	}

	deps, err := app.Build(app.ComponentEmbedder, app.ComponentCheckpoint)
	if err != nil {
		return err
	}
	c := &embedCmd{
		batcher:    embeddings.NewBatcher(deps.Embedder, deps.Checkpoint, deps.Config.EmbeddingBatchSize, deps.Log),
		estimator:  app.NewEstimator(deps.Config),
		approver:   approver(deps.Config.EmbedAutoApprove, os.Stdin, os.Stderr),
		model:      deps.Config.EmbeddingModel,
		dimensions: deps.Config.EmbeddingDimensions,
		log:        deps.Log,
	}
	return c.run(ctx, *file)
}

// approver asks on the terminal when there is one.
func approver(auto bool, in *os.File, out io.Writer) cost.Approver {
	if auto {
		return cost.AutoApprove{}
	}
	if fi, err := in.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
		return cost.Prompt{In: in, Out: out}
	}
	return cost.NonInteractive{}
}
