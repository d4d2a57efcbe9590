package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

const (
	ModelConstruction = "Construction Equipment"
	ModelVehicle      = "Vehicle"
	ModelFruit        = "Fruit"

	DefaultConfigPath   string = "config.json"
	DefaultDetectorHost string = "localhost:8080"
	DefaultModelsDir    string = "models"

	MinConfidence     = 0.1
	MaxConfidence     = 1.0
	DefaultConfidence = 0.5
	DefaultIoU        = 0.5

	EnvDetectorHost = "SAFETY_DETECTOR_HOST"
	EnvModelsDir    = "SAFETY_MODELS_DIR"
)

// ModelsList is the selection order shown to the user.
var ModelsList = [...]string{
	ModelConstruction,
	ModelVehicle,
	ModelFruit,
}

var defaultModelFiles = map[string]string{
	ModelConstruction: "best_construction.pt",
	ModelVehicle:      "best_vehicle.pt",
	ModelFruit:        "best_fruit.pt",
}

type AnnotateConfig struct {
	LineWidth float64 `json:"line_width"`
	FontSize  float64 `json:"font_size"`
}

type WindowConfig struct {
	Width  float32 `json:"width"`
	Height float32 `json:"height"`
}

type Config struct {
	mu sync.RWMutex

	DetectorHost string            `json:"detector_host"`
	ModelsDir    string            `json:"models_dir"`
	Models       map[string]string `json:"models"`
	SafetyModel  string            `json:"safety_model"`
	ActiveModel  string            `json:"active_model"`
	Confidence   float64           `json:"confidence"`
	IoU          float64           `json:"iou"`

	Annotate AnnotateConfig `json:"annotate"`
	Window   WindowConfig   `json:"window"`
}

// ModelPath resolves the weights file for a model label. Relative entries
// are joined onto ModelsDir.
func (c *Config) ModelPath(label string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	file, ok := c.Models[label]
	if !ok {
		return "", false
	}
	if filepath.IsAbs(file) {
		return file, true
	}
	return filepath.Join(c.ModelsDir, file), true
}

// ModelPaths returns every model label resolved to its weights file.
func (c *Config) ModelPaths() map[string]string {
	c.mu.RLock()
	labels := make([]string, 0, len(c.Models))
	for label := range c.Models {
		labels = append(labels, label)
	}
	c.mu.RUnlock()

	paths := make(map[string]string, len(labels))
	for _, label := range labels {
		paths[label], _ = c.ModelPath(label)
	}
	return paths
}

func (c *Config) GetActiveModel() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ActiveModel
}

func (c *Config) SetActiveModel(label string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ActiveModel = label
}

func (c *Config) GetConfidence() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Confidence
}

func (c *Config) SetConfidence(conf float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Confidence = ClampConfidence(conf)
}

func (c *Config) GetDetectorHost() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.DetectorHost
}

func (c *Config) SetDetectorHost(host string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.DetectorHost = host
}

// IsSafetyModel reports whether compliance analysis applies to label.
func (c *Config) IsSafetyModel(label string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return label == c.SafetyModel
}

// ClampConfidence bounds conf to the range the slider allows.
func ClampConfidence(conf float64) float64 {
	if conf < MinConfidence {
		return MinConfidence
	}
	if conf > MaxConfidence {
		return MaxConfidence
	}
	return conf
}

func (c *Config) Save(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrap(err, "open config")
	}
	defer f.Close()

	c.mu.RLock()
	defer c.mu.RUnlock()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(c), "encode config")
}

func (c *Config) SaveByDefault() error {
	return c.Save(DefaultConfigPath)
}

// LoadConfigFile reads path over the defaults. A missing file is not an
// error. Values from a .env file and the environment win over the file.
func LoadConfigFile(path string) (*Config, error) {
	cfg := NewDefaultConfig()

	if f, err := os.Open(path); err == nil {
		defer f.Close()

		// a models table in the file replaces the defaults
		cfg.Models = nil
		if err := json.NewDecoder(f).Decode(cfg); err != nil {
			return nil, errors.Wrapf(err, "decode %s", path)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "open %s", path)
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(errors.Cause(err)) {
		return nil, errors.Wrap(err, "load .env")
	}
	cfg.applyEnv()
	cfg.normalize()

	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDetectorHost); v != "" {
		c.DetectorHost = v
	}
	if v := os.Getenv(EnvModelsDir); v != "" {
		c.ModelsDir = v
	}
}

func (c *Config) normalize() {
	if len(c.Models) == 0 {
		c.Models = cloneModels(defaultModelFiles)
	}
	if _, ok := c.Models[c.ActiveModel]; !ok {
		c.ActiveModel = c.firstModel()
	}
	if c.Confidence == 0 {
		c.Confidence = DefaultConfidence
	}
	c.Confidence = ClampConfidence(c.Confidence)
	if c.IoU <= 0 || c.IoU > 1 {
		c.IoU = DefaultIoU
	}
}

// firstModel is the earliest entry of ModelsList in the table, or the
// lexically smallest label when the table holds only custom models.
func (c *Config) firstModel() string {
	for _, label := range ModelsList {
		if _, ok := c.Models[label]; ok {
			return label
		}
	}
	labels := lo.Keys(c.Models)
	sort.Strings(labels)
	return labels[0]
}

func NewDefaultConfig() *Config {
	return &Config{
		DetectorHost: DefaultDetectorHost,
		ModelsDir:    DefaultModelsDir,
		Models:       cloneModels(defaultModelFiles),
		SafetyModel:  ModelConstruction,
		ActiveModel:  ModelConstruction,
		Confidence:   DefaultConfidence,
		IoU:          DefaultIoU,
		Annotate:     AnnotateConfig{LineWidth: 3, FontSize: 14},
		Window:       WindowConfig{Width: 1200, Height: 700},
	}
}

func cloneModels(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
