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
	Config    string `arg:"-c" help:"YAML config file" default:"config.yaml"`
	Input     string `arg:"-i" help:"CSV to predict, overrides data.predict_path"`
	Output    string `arg:"-o" help:"output CSV, overrides data.output_path"`
	Artifacts string `help:"artifact directory, overrides artifacts.dir"`
}

func (args) Description() string {
	return "Predict service durations with a previously trained bundle."
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
		cfg.Data.PredictPath = a.Input
	}
	if a.Output != "" {
		cfg.Data.OutputPath = a.Output
	}
	if a.Artifacts != "" {
		cfg.Artifacts.Dir = a.Artifacts
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

	var opts []workflow.Option
	if cfg.Database.Path != "" {
		runs, err := db.Open(cfg.Database.Path)
		if err != nil {
			log.Fatal("failed to open run log", zap.Error(err))
		}
		defer runs.Close()
		opts = append(opts, workflow.WithRunLog(runs))
	}

	result, err := workflow.New(cfg, log, opts...).PredictFile(context.Background())
	if err != nil {
		log.Error("prediction failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
	if result.MissingTimes > 0 {
		log.Warn("rows predicted with missing times", zap.Int("rows", result.MissingTimes))
	}
}
