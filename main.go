package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexflint/go-arg"
	"go.uber.org/zap"

	"servicetime/config"
	"servicetime/db"
	"servicetime/logger"
	"servicetime/workflow"
)

type args struct {
	Config    string `arg:"-c" help:"YAML config file" default:"config.yaml"`
	SkipTrain bool   `arg:"--skip-train" help:"predict with the existing artifact bundle"`
	Verbose   bool   `arg:"-v" help:"draw a progress bar while fitting"`
}

func (args) Description() string {
	return "Train the service duration model, then predict the configured input."
}

func main() {
	var a args
	arg.MustParse(&a)

	// 1. Load config
	cfg, err := config.Load(a.Config)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %+v\n", err)
		os.Exit(1)
	}

	// 2. Logger and run log
	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %+v\n", err)
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
			log.Fatal("Failed to open run log", zap.Error(err))
		}
		defer runs.Close()
		log.Info("Run log opened", zap.String("path", cfg.Database.Path))
		opts = append(opts, workflow.WithRunLog(runs))
	}

	// 3. Cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 4. Train, then predict
	if _, err := workflow.New(cfg, log, opts...).Run(ctx, a.SkipTrain); err != nil {
		var stageErr *workflow.StageError
		if errors.As(err, &stageErr) {
			log.Error("Pipeline stopped", zap.String("stage", stageErr.Stage), zap.Error(stageErr.Err))
		}
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		stop()
		os.Exit(1)
	}
	log.Info("Exiting")
}
