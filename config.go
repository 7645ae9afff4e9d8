package main

import (
	"os"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v2"
)

// ConfigEnvVar names the environment variable holding an optional YAML
// configuration file path.
const ConfigEnvVar = "SIAMESE_CONFIG"

// DefaultConfigFile is read when present and ConfigEnvVar is unset.
const DefaultConfigFile = "siamese.yaml"

// Config is built once at startup and passed by pointer to every component.
type Config struct {
	Architecture Architecture `yaml:"architecture"`

	Model  ModelConfig  `yaml:"model"`
	Train  TrainConfig  `yaml:"train"`
	Data   DataConfig   `yaml:"data"`
	Log    LogConfig    `yaml:"log"`
	Device DeviceConfig `yaml:"device"`

	// ModelsRoot is the directory checkpoints are written under.
	ModelsRoot string `yaml:"models_root"`

	// Set from the command line.
	OutputFolder string `yaml:"-"`
	ModelName    string `yaml:"-"`
}

// ModelConfig holds encoder and head hyperparameters.
type ModelConfig struct {
	EmbedDim  int `yaml:"embed_dim"`
	NumLayers int `yaml:"num_layers"`
	FFHidden  int `yaml:"ff_hidden"`

	// MaxLen is the base sequence length: sub-word tokens for the bert
	// variant, words per title for the scaled concat variant.
	MaxLen int `yaml:"max_len"`

	CharsPerWord int `yaml:"chars_per_word"`
	CharBuckets  int `yaml:"char_buckets"`
	VocabSize    int `yaml:"vocab_size"`

	InitScale float64 `yaml:"init_scale"`
	Seed      int64   `yaml:"seed"`

	// Pretrained optionally names a checkpoint whose encoder weights seed
	// the model.
	Pretrained string `yaml:"pretrained"`
}

// TrainConfig holds loop hyperparameters.
type TrainConfig struct {
	BatchSize    int     `yaml:"batch_size"`
	ValBatchSize int     `yaml:"val_batch_size"`
	TrainSize    int     `yaml:"train_size"`
	Period       int     `yaml:"period"`
	Epochs       int     `yaml:"epochs"`
	LearningRate float64 `yaml:"learning_rate"`
	WeightDecay  float64 `yaml:"weight_decay"`
	ClipNorm     float64 `yaml:"clip_norm"`
}

// TestSet names one held-out evaluation file.
type TestSet struct {
	Name string `yaml:"name"`
	File string `yaml:"file"`
}

// DataConfig locates the input files.
type DataConfig struct {
	Dir       string    `yaml:"dir"`
	TrainFile string    `yaml:"train_file"`
	TestSets  []TestSet `yaml:"test_sets"`

	// Normalize runs every title through Normalize on load.
	Normalize bool `yaml:"normalize"`

	// GenerateCommand is run once when input files are missing.
	GenerateCommand []string `yaml:"generate_command"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DeviceConfig bounds the memory a batch may use. Sizes are human readable
// ("512MB", "8 GiB"); empty means no limit.
type DeviceConfig struct {
	MemoryLimit   string `yaml:"memory_limit"`
	MinFreeMemory string `yaml:"min_free_memory"`
}

// DefaultConfig returns the settings the experiments were run with.
func DefaultConfig() *Config {
	return &Config{
		Architecture: CharacterBERT,
		Model: ModelConfig{
			EmbedDim:     64,
			NumLayers:    2,
			FFHidden:     128,
			MaxLen:       64,
			CharsPerWord: 50,
			CharBuckets:  512,
			VocabSize:    2000,
			InitScale:    0.02,
			Seed:         42,
		},
		Train: TrainConfig{
			BatchSize:    32,
			ValBatchSize: 8,
			TrainSize:    455000,
			Period:       50,
			Epochs:       10,
			LearningRate: 1e-5,
			WeightDecay:  0,
			ClipNorm:     0.01,
		},
		Data: DataConfig{
			Dir:       "data",
			TrainFile: "train/total_data.csv",
			TestSets: []TestSet{
				{Name: "Test Laptop (General)", File: "test/final_laptop_test_data.csv"},
				{Name: "Test Laptop (Same Title) (Space)", File: "test/final_gb_space_laptop_test.csv"},
				{Name: "Test Laptop (Same Title) (No Space)", File: "test/final_gb_no_space_laptop_test.csv"},
				{Name: "Test Laptop (Different Title) (Space)", File: "test/final_retailer_gb_space_test.csv"},
				{Name: "Test Laptop (Different Title) (No Space)", File: "test/final_retailer_gb_no_space_test.csv"},
			},
			Normalize: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Device: DeviceConfig{
			MinFreeMemory: "64MB",
		},
		ModelsRoot: "models",
	}
}

// LoadConfig returns DefaultConfig overlaid with the YAML file at path.
// An empty path means defaults only.
func LoadConfig(fs afero.Fs, path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	buf, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	if err := yaml.UnmarshalStrict(buf, cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}
	return cfg, nil
}

// configPath resolves the config file from the environment, falling back to
// DefaultConfigFile when it exists.
func configPath(fs afero.Fs) string {
	if p := os.Getenv(ConfigEnvVar); p != "" {
		return p
	}
	if ok, _ := afero.Exists(fs, DefaultConfigFile); ok {
		return DefaultConfigFile
	}
	return ""
}

// Validate rejects settings the loop cannot run with.
func (c *Config) Validate() error {
	if _, ok := architectureNames[c.Architecture]; !ok {
		return errors.Wrapf(ErrUnknownArchitecture, "architecture %d", int(c.Architecture))
	}
	m := c.Model
	switch {
	case m.EmbedDim <= 0:
		return errors.New("model.embed_dim must be positive")
	case m.NumLayers < 0:
		return errors.New("model.num_layers must not be negative")
	case m.FFHidden <= 0:
		return errors.New("model.ff_hidden must be positive")
	case m.MaxLen <= 0:
		return errors.New("model.max_len must be positive")
	case m.CharsPerWord < 3:
		return errors.New("model.chars_per_word must leave room for the word markers")
	case m.CharBuckets <= 0:
		return errors.New("model.char_buckets must be positive")
	case m.VocabSize <= len(subwordSpecials)+256:
		return errors.Errorf("model.vocab_size must exceed %d", len(subwordSpecials)+256)
	}
	t := c.Train
	switch {
	case t.BatchSize <= 0 || t.ValBatchSize <= 0:
		return errors.New("batch sizes must be positive")
	case t.TrainSize < 0:
		return errors.New("train.train_size must not be negative")
	case t.Period <= 0:
		return errors.New("train.period must be positive")
	case t.Epochs <= 0:
		return errors.New("train.epochs must be positive")
	case t.LearningRate <= 0:
		return errors.New("train.learning_rate must be positive")
	case t.WeightDecay < 0:
		return errors.New("train.weight_decay must not be negative")
	case t.ClipNorm <= 0:
		return errors.New("train.clip_norm must be positive")
	}
	if _, err := c.Device.memoryLimit(); err != nil {
		return err
	}
	if _, err := c.Device.minFreeMemory(); err != nil {
		return err
	}
	return nil
}

func (d DeviceConfig) memoryLimit() (uint64, error) {
	return parseSize("device.memory_limit", d.MemoryLimit)
}

func (d DeviceConfig) minFreeMemory() (uint64, error) {
	return parseSize("device.min_free_memory", d.MinFreeMemory)
}

func parseSize(field, s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, errors.Wrapf(err, "%s", field)
	}
	return n, nil
}
