package workflow

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"servicetime/artifact"
	"servicetime/config"
	"servicetime/db"
)

// Workflow owns the collaborators shared by the train and predict steps.
type Workflow struct {
	cfg      *config.Config
	log      *zap.Logger
	store    *artifact.Store
	runs     *db.RunLog
	out      io.Writer
	progress io.Writer
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithRunLog records runs and predictions in sqlite.
func WithRunLog(runs *db.RunLog) Option {
	return func(w *Workflow) { w.runs = runs }
}

// WithOutput sets where the human-readable summary lines go.
func WithOutput(out io.Writer) Option {
	return func(w *Workflow) { w.out = out }
}

// WithProgress draws a progress bar on out while the model is fitted.
func WithProgress(out io.Writer) Option {
	return func(w *Workflow) { w.progress = out }
}

// New builds a Workflow over cfg. A nil log discards all logging.
func New(cfg *config.Config, log *zap.Logger, opts ...Option) *Workflow {
	if log == nil {
		log = zap.NewNop()
	}
	w := &Workflow{
		cfg:   cfg,
		log:   log,
		store: artifact.NewStore(cfg.Artifacts.Dir),
		out:   os.Stdout,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Workflow) Store() *artifact.Store {
	return w.store
}

func (w *Workflow) printf(format string, args ...interface{}) {
	fmt.Fprintf(w.out, format, args...)
}

func (w *Workflow) delimiter() rune {
	for _, r := range w.cfg.Data.Delimiter {
		return r
	}
	return ','
}
