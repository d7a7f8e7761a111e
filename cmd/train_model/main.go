package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alexflint/go-arg"
	"go.uber.org/zap"

	"servicetime/config"
	"servicetime/db"
	"servicetime/logger"
	"servicetime/workflow"
)

type args struct {
	Config    string  `arg:"-c" help:"YAML config file" default:"config.yaml"`
	Input     string  `arg:"-i" help:"training CSV, overrides data.train_path"`
	Artifacts string  `help:"artifact directory, overrides artifacts.dir"`
	Model     string  `help:"random_forest or decision_tree"`
	Trees     int     `help:"number of trees in the forest"`
	TestRatio float64 `arg:"--test-ratio" help:"held-out share of the rows"`
	Verbose   bool    `arg:"-v" help:"draw a progress bar while fitting"`
}

func (args) Description() string {
	return "Train the service duration model and write the artifact bundle."
}

func main() {
	var a args
	arg.MustParse(&a)

	cfg, err := config.Load(a.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
	if a.Input != "" {
		cfg.Data.TrainPath = a.Input
	}
	if a.Artifacts != "" {
		cfg.Artifacts.Dir = a.Artifacts
	}
	if a.Model != "" {
		cfg.Model.Type = a.Model
	}
	if a.Trees > 0 {
		cfg.Model.NEstimators = a.Trees
	}
	if a.TestRatio > 0 {
		cfg.Training.TestRatio = a.TestRatio
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	opts := []workflow.Option{}
	if a.Verbose {
		opts = append(opts, workflow.WithProgress(os.Stderr))
	}
	if cfg.Database.Path != "" {
		runs, err := db.Open(cfg.Database.Path)
		if err != nil {
			log.Fatal("failed to open run log", zap.Error(err))
		}
		defer runs.Close()
		opts = append(opts, workflow.WithRunLog(runs))
	}

	if _, err := workflow.New(cfg, log, opts...).TrainFile(context.Background()); err != nil {
		log.Error("training failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}
