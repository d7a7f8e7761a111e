package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Config mirrors config.yaml.
type Config struct {
	Data struct {
		TrainPath   string `yaml:"train_path"`
		PredictPath string `yaml:"predict_path"`
		OutputPath  string `yaml:"output_path"`
		Encoding    string `yaml:"encoding"`
		Delimiter   string `yaml:"delimiter"`
	} `yaml:"data"`
	Artifacts struct {
		Dir string `yaml:"dir"`
	} `yaml:"artifacts"`
	Model    ModelConfig `yaml:"model"`
	Training struct {
		TestRatio float64 `yaml:"test_ratio"`
	} `yaml:"training"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Log LogConfig `yaml:"log"`
}

// ModelConfig selects the regressor and its hyperparameters. MaxDepth 0
// means unlimited.
type ModelConfig struct {
	Type            string  `yaml:"type"`
	NEstimators     int     `yaml:"n_estimators"`
	MaxDepth        int     `yaml:"max_depth"`
	MinSamplesSplit int     `yaml:"min_samples_split"`
	MinSamplesLeaf  int     `yaml:"min_samples_leaf"`
	MaxFeatures     float64 `yaml:"max_features"`
	Seed            int64   `yaml:"seed"`
}

// LogConfig controls the console level and the optional rotated JSON log
// file.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Default returns the configuration used when no config file is present.
func Default() *Config {
	var c Config
	c.Data.TrainPath = "data.csv"
	c.Data.PredictPath = "data.csv"
	c.Data.OutputPath = "predictions_results.csv"
	c.Data.Encoding = "utf-8"
	c.Data.Delimiter = ","
	c.Artifacts.Dir = "artifacts"
	c.Model = ModelConfig{
		Type:            "random_forest",
		NEstimators:     100,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		MaxFeatures:     1.0,
		Seed:            42,
	}
	c.Training.TestRatio = 0.2
	c.Log = LogConfig{
		Level:      "info",
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 28,
	}
	return &c
}

// Load reads path on top of Default. A missing file is not an error.
func Load(path string) (*Config, error) {
	config := Default()
	if path == "" {
		return config, nil
	}
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return config, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "open config %s", path)
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(config); err != nil {
		return nil, errors.Wrapf(err, "decode config %s", path)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate rejects values the workflow cannot run with.
func (c *Config) Validate() error {
	if c.Training.TestRatio <= 0 || c.Training.TestRatio >= 1 {
		return errors.Errorf("training.test_ratio must be in (0, 1), got %v", c.Training.TestRatio)
	}
	if c.Artifacts.Dir == "" {
		return errors.New("artifacts.dir is required")
	}
	if len([]rune(c.Data.Delimiter)) > 1 {
		return errors.Errorf("data.delimiter must be a single character, got %q", c.Data.Delimiter)
	}
	switch c.Model.Type {
	case "random_forest", "decision_tree":
	default:
		return errors.Errorf("unsupported model type %q", c.Model.Type)
	}
	if c.Model.MaxFeatures < 0 || c.Model.MaxFeatures > 1 {
		return errors.Errorf("model.max_features must be in [0, 1], got %v", c.Model.MaxFeatures)
	}
	return nil
}
