package artifact

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/peterbourgon/diskv/v3"
	"github.com/pkg/errors"

	"servicetime/ml"
)

const (
	KeyModel    = "model.gob"
	KeyEncoder  = "encoder.gob"
	KeyManifest = "train_columns.gob"
	KeyMetadata = "bundle.json"
)

var (
	ErrBundleNotFound = errors.New("artifact bundle not found")
	ErrBundleCorrupt  = errors.New("artifact bundle corrupt")
)

// Metadata is stored as bundle.json. It is written after the blobs and
// carries their sha256 checksums.
type Metadata struct {
	RunID     string            `json:"run_id"`
	ModelType string            `json:"model_type"`
	CreatedAt time.Time         `json:"created_at"`
	MAE       float64           `json:"mae"`
	TrainRows int               `json:"train_rows"`
	TestRows  int               `json:"test_rows"`
	Features  int               `json:"features"`
	Checksums map[string]string `json:"checksums"`
}

// Bundle is everything Predict needs to replay training-time features.
type Bundle struct {
	Model    ml.Regressor
	Encoder  *ml.OneHotEncoder
	Manifest ml.Manifest
	Metadata Metadata
}

// Validate checks that the three artifacts describe the same layout.
func (b *Bundle) Validate() error {
	if b.Model == nil || b.Encoder == nil || len(b.Manifest) == 0 {
		return errors.Wrap(ErrBundleCorrupt, "incomplete bundle")
	}
	if b.Model.NumFeatures() != len(b.Manifest) {
		return errors.Wrapf(ErrBundleCorrupt, "model expects %d features, manifest has %d", b.Model.NumFeatures(), len(b.Manifest))
	}
	columns := make(map[string]struct{}, len(b.Manifest))
	for _, column := range b.Manifest {
		columns[column] = struct{}{}
	}
	for _, name := range b.Encoder.FeatureNames() {
		if _, ok := columns[name]; !ok {
			return errors.Wrapf(ErrBundleCorrupt, "encoder column %s not in manifest", name)
		}
	}
	return nil
}

// Store keeps one bundle under a fixed directory. Save builds the complete
// bundle in a sibling staging directory and swaps it in with renames, so a
// failed save leaves the previous bundle loadable. bundle.json lists a
// checksum per blob; blobs that do not match it are reported as corrupt.
type Store struct {
	dir  string
	disk *diskv.Diskv

	// write stores one key; replaced in tests to inject failures.
	write func(d *diskv.Diskv, key string, value []byte) error
}

// NewStore opens the store rooted at dir. Nothing is created until Save.
func NewStore(dir string) *Store {
	dir = filepath.Clean(dir)
	return &Store{
		dir:   dir,
		disk:  newDisk(dir),
		write: func(d *diskv.Diskv, key string, value []byte) error { return d.Write(key, value) },
	}
}

func newDisk(dir string) *diskv.Diskv {
	return diskv.New(diskv.Options{
		BasePath:     dir,
		TempDir:      filepath.Join(dir, ".tmp"),
		Transform:    func(string) []string { return []string{} },
		CacheSizeMax: 0,
	})
}

func (s *Store) Dir() string { return s.dir }

func (s *Store) stagingDir() string  { return s.dir + ".staging" }
func (s *Store) previousDir() string { return s.dir + ".previous" }

// Exists reports whether a committed bundle is present.
func (s *Store) Exists() bool {
	s.restorePrevious()
	return s.disk.Has(KeyMetadata)
}

// restorePrevious puts the previous bundle back when a save stopped
// between moving it aside and moving the staged bundle in.
func (s *Store) restorePrevious() {
	if s.disk.Has(KeyMetadata) {
		return
	}
	if _, err := os.Stat(filepath.Join(s.previousDir(), KeyMetadata)); err != nil {
		return
	}
	if err := os.RemoveAll(s.dir); err != nil {
		return
	}
	_ = os.Rename(s.previousDir(), s.dir)
}

// Save writes bundle as a unit. Nothing under Dir changes unless every blob
// and the metadata were written to the staging directory first.
func (s *Store) Save(bundle *Bundle) error {
	if err := bundle.Validate(); err != nil {
		return err
	}
	s.restorePrevious()

	blobs := make(map[string][]byte, 3)
	var model bytes.Buffer
	if err := ml.EncodeModel(&model, bundle.Model); err != nil {
		return err
	}
	blobs[KeyModel] = model.Bytes()
	for key, value := range map[string]interface{}{
		KeyEncoder:  bundle.Encoder,
		KeyManifest: []string(bundle.Manifest),
	} {
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(value); err != nil {
			return errors.Wrapf(err, "encode %s", key)
		}
		blobs[key] = buf.Bytes()
	}

	metadata := bundle.Metadata
	metadata.ModelType = bundle.Model.Type()
	metadata.Features = len(bundle.Manifest)
	metadata.Checksums = make(map[string]string, len(blobs))
	for key, blob := range blobs {
		metadata.Checksums[key] = checksum(blob)
	}
	meta, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode metadata")
	}

	staging := s.stagingDir()
	if err := os.RemoveAll(staging); err != nil {
		return errors.Wrapf(err, "clear %s", staging)
	}
	if err := os.MkdirAll(filepath.Join(staging, ".tmp"), 0o755); err != nil {
		return errors.Wrapf(err, "create %s", staging)
	}
	staged := newDisk(staging)
	for _, key := range []string{KeyModel, KeyEncoder, KeyManifest} {
		if err := s.write(staged, key, blobs[key]); err != nil {
			os.RemoveAll(staging)
			return errors.Wrapf(err, "write %s", key)
		}
	}
	if err := s.write(staged, KeyMetadata, meta); err != nil {
		os.RemoveAll(staging)
		return errors.Wrap(err, "write metadata")
	}
	return s.swap(staging)
}

// swap moves the current directory aside, moves staging into its place and
// drops the old bundle. A failed second rename restores the old bundle.
func (s *Store) swap(staging string) error {
	if err := os.MkdirAll(filepath.Dir(s.dir), 0o755); err != nil {
		return errors.Wrapf(err, "create parent of %s", s.dir)
	}
	previous := s.previousDir()
	if err := os.RemoveAll(previous); err != nil {
		return errors.Wrapf(err, "clear %s", previous)
	}
	hadPrevious := false
	if _, err := os.Stat(s.dir); err == nil {
		if err := os.Rename(s.dir, previous); err != nil {
			os.RemoveAll(staging)
			return errors.Wrapf(err, "move %s aside", s.dir)
		}
		hadPrevious = true
	}
	if err := os.Rename(staging, s.dir); err != nil {
		if hadPrevious {
			os.Rename(previous, s.dir)
		}
		os.RemoveAll(staging)
		return errors.Wrapf(err, "install %s", s.dir)
	}
	if hadPrevious {
		os.RemoveAll(previous)
	}
	return nil
}

// Load reads and verifies the committed bundle. A missing bundle.json is
// ErrBundleNotFound; a checksum or decode mismatch is ErrBundleCorrupt.
func (s *Store) Load() (*Bundle, error) {
	s.restorePrevious()
	if !s.disk.Has(KeyMetadata) {
		return nil, errors.Wrapf(ErrBundleNotFound, "no %s in %s", KeyMetadata, s.dir)
	}
	meta, err := s.disk.Read(KeyMetadata)
	if err != nil {
		return nil, errors.Wrap(err, "read metadata")
	}
	var metadata Metadata
	if err := json.Unmarshal(meta, &metadata); err != nil {
		return nil, errors.Wrapf(ErrBundleCorrupt, "metadata: %v", err)
	}

	blobs := make(map[string][]byte, 3)
	for _, key := range []string{KeyModel, KeyEncoder, KeyManifest} {
		if !s.disk.Has(key) {
			return nil, errors.Wrapf(ErrBundleNotFound, "no %s in %s", key, s.dir)
		}
		blob, err := s.disk.Read(key)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", key)
		}
		if want, ok := metadata.Checksums[key]; !ok || want != checksum(blob) {
			return nil, errors.Wrapf(ErrBundleCorrupt, "checksum mismatch for %s", key)
		}
		blobs[key] = blob
	}

	model, err := ml.LoadModel(metadata.ModelType, bytes.NewReader(blobs[KeyModel]))
	if err != nil {
		return nil, err
	}
	encoder := &ml.OneHotEncoder{}
	if err := gob.NewDecoder(bytes.NewReader(blobs[KeyEncoder])).Decode(encoder); err != nil {
		return nil, errors.Wrapf(ErrBundleCorrupt, "encoder: %v", err)
	}
	var manifest []string
	if err := gob.NewDecoder(bytes.NewReader(blobs[KeyManifest])).Decode(&manifest); err != nil {
		return nil, errors.Wrapf(ErrBundleCorrupt, "manifest: %v", err)
	}

	bundle := &Bundle{
		Model:    model,
		Encoder:  encoder,
		Manifest: ml.Manifest(manifest),
		Metadata: metadata,
	}
	if err := bundle.Validate(); err != nil {
		return nil, err
	}
	return bundle, nil
}

func checksum(blob []byte) string {
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:])
}
