package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/peterbourgon/diskv/v3"

	"servicetime/ml"
)

func trainedBundle(t *testing.T) *Bundle {
	t.Helper()
	pre := ml.NewPreprocessor(nil)
	frame, err := pre.FitTransform([]ml.Sample{
		{ArrivalTime: "08:00", DepartureTime: "08:30", ServiceType: "Lavage", DayOfWeek: "Lundi", Hour: "8"},
		{ArrivalTime: "09:00", DepartureTime: "09:50", ServiceType: "Vidange", DayOfWeek: "Mardi", Hour: "9"},
		{ArrivalTime: "10:00", DepartureTime: "10:20", ServiceType: "Lavage", DayOfWeek: "Mardi", Hour: "10"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	model := ml.NewRandomForest(ml.ModelParams{NEstimators: 3, Seed: 42})
	if err := model.Fit(frame.Rows, []float64{30, 50, 20}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return &Bundle{
		Model:    model,
		Encoder:  pre.Encoder(),
		Manifest: ml.NewManifest(pre.Encoder()),
		Metadata: Metadata{RunID: "run-1", CreatedAt: time.Now().UTC(), MAE: 1.5},
	}
}

func TestStoreSaveLoad(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "artifacts"))
	if store.Exists() {
		t.Fatal("fresh store should be empty")
	}
	bundle := trainedBundle(t)
	if err := store.Save(bundle); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, key := range []string{KeyModel, KeyEncoder, KeyManifest, KeyMetadata} {
		if _, err := os.Stat(filepath.Join(store.Dir(), key)); err != nil {
			t.Fatalf("expected %s on disk: %v", key, err)
		}
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded.Metadata.RunID != "run-1" || loaded.Metadata.ModelType != ml.TypeRandomForest {
		t.Fatalf("unexpected metadata %+v", loaded.Metadata)
	}
	if len(loaded.Manifest) != len(bundle.Manifest) {
		t.Fatalf("manifest length changed: %d vs %d", len(loaded.Manifest), len(bundle.Manifest))
	}
	for i := range bundle.Manifest {
		if loaded.Manifest[i] != bundle.Manifest[i] {
			t.Fatalf("manifest column %d changed: %s vs %s", i, loaded.Manifest[i], bundle.Manifest[i])
		}
	}
	row := make([]float64, len(bundle.Manifest))
	row[0], row[1] = 480, 510
	want, _ := bundle.Model.Predict(row)
	got, err := loaded.Model.Predict(row)
	if err != nil || got != want {
		t.Fatalf("expected %f after reload, got %f (%v)", want, got, err)
	}
}

func TestStoreLoadMissing(t *testing.T) {
	_, err := NewStore(t.TempDir()).Load()
	if !errors.Is(err, ErrBundleNotFound) {
		t.Fatalf("expected ErrBundleNotFound, got %v", err)
	}
}

func TestStoreDetectsMixedBundle(t *testing.T) {
	store := NewStore(t.TempDir())
	if err := store.Save(trainedBundle(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := os.WriteFile(filepath.Join(store.Dir(), KeyManifest), []byte("stale"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := store.Load()
	if !errors.Is(err, ErrBundleCorrupt) {
		t.Fatalf("expected ErrBundleCorrupt, got %v", err)
	}
}

func TestBundleValidate(t *testing.T) {
	bundle := trainedBundle(t)
	bundle.Manifest = bundle.Manifest[:len(bundle.Manifest)-1]
	if err := bundle.Validate(); !errors.Is(err, ErrBundleCorrupt) {
		t.Fatalf("expected ErrBundleCorrupt for short manifest, got %v", err)
	}
	if err := NewStore(t.TempDir()).Save(bundle); err == nil {
		t.Fatal("expected Save to refuse an inconsistent bundle")
	}
}

func TestStoreFailedSaveKeepsPreviousBundle(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "artifacts"))
	if err := store.Save(trainedBundle(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	before, err := os.ReadFile(filepath.Join(store.Dir(), KeyModel))
	if err != nil {
		t.Fatal(err)
	}

	diskErr := errors.New("disk full")
	store.write = func(d *diskv.Diskv, key string, value []byte) error {
		if key == KeyManifest {
			return diskErr
		}
		return d.Write(key, value)
	}
	next := trainedBundle(t)
	next.Metadata.RunID = "run-2"
	if err := store.Save(next); !errors.Is(err, diskErr) {
		t.Fatalf("expected injected write error, got %v", err)
	}

	after, err := os.ReadFile(filepath.Join(store.Dir(), KeyModel))
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Fatal("failed save changed the stored model")
	}
	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("previous bundle should still load: %v", err)
	}
	if loaded.Metadata.RunID != "run-1" {
		t.Fatalf("expected run-1 after failed save, got %s", loaded.Metadata.RunID)
	}
	if _, err := os.Stat(store.stagingDir()); !os.IsNotExist(err) {
		t.Fatalf("expected staging directory to be removed, got %v", err)
	}
}

func TestStoreSaveReplacesBundle(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "artifacts"))
	for _, runID := range []string{"run-1", "run-2"} {
		bundle := trainedBundle(t)
		bundle.Metadata.RunID = runID
		if err := store.Save(bundle); err != nil {
			t.Fatalf("%s: unexpected error: %v", runID, err)
		}
	}
	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded.Metadata.RunID != "run-2" {
		t.Fatalf("expected run-2, got %s", loaded.Metadata.RunID)
	}
	if _, err := os.Stat(store.previousDir()); !os.IsNotExist(err) {
		t.Fatalf("expected previous bundle to be dropped, got %v", err)
	}
}

func TestStoreRecoversInterruptedSwap(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "artifacts"))
	if err := store.Save(trainedBundle(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := os.Rename(store.Dir(), store.previousDir()); err != nil {
		t.Fatal(err)
	}
	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("expected bundle to be restored, got %v", err)
	}
	if loaded.Metadata.RunID != "run-1" {
		t.Fatalf("expected run-1, got %s", loaded.Metadata.RunID)
	}
}
