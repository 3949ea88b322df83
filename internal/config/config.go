package config

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

//go:embed models.yaml
var modelsYAML []byte

type Config struct {
	Embedding EmbeddingConfig
	Index     IndexConfig
	Dataset   DatasetConfig
	Database  DatabaseConfig
	Qdrant    QdrantConfig
	SQLite    SQLiteConfig
	Web       WebConfig
	Log       LogConfig
	Models    ModelsConfig
}

type EmbeddingConfig struct {
	URL   string // defaults to http://localhost:8000
	Model string // defaults to buffalo_l; must match the model the server reports
	Dim   int    // defaults to the model's dimension (512 for buffalo_l)
}

type IndexConfig struct {
	Backend    string  // flat, hnsw, sqlite, postgres or qdrant
	Path       string  // binary index file for the flat and hnsw backends
	LabelsPath string  // plain-text label list for the flat backend
	Threshold  float64 // minimum cosine similarity for a known identity, defaults to the model's
	Workers    int     // parallel embedding requests during a rebuild
}

type DatasetConfig struct {
	Path string // dataset/<identity>/<image files>
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
}

type SQLiteConfig struct {
	Path string
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json or pretty
}

type ModelsConfig struct {
	Models map[string]ModelSpec `yaml:"models"`
}

// ModelSpec describes a face embedding model served by the embedding server.
type ModelSpec struct {
	Dim       int     `yaml:"dim"`
	Threshold float64 `yaml:"threshold"`
	Detector  string  `yaml:"detector"`
}

// defaults are registered under viper keys; env vars use the same name upper-cased
// with dots replaced by underscores (index.backend -> INDEX_BACKEND).
var defaults = map[string]any{
	"embedding.url":            "http://localhost:8000",
	"embedding.model":          "buffalo_l",
	"embedding.dim":            0,
	"index.backend":            "flat",
	"index.path":               "database/faces.index",
	"labels.path":              "database/labels.txt",
	"index.workers":            1,
	"dataset.path":             "dataset",
	"database.url":             "",
	"database.max_open_conns":  25,
	"database.max_idle_conns":  5,
	"qdrant.host":              "localhost",
	"qdrant.port":              6334,
	"qdrant.api_key":           "",
	"qdrant.use_tls":           false,
	"qdrant.collection":        "faces",
	"sqlite.path":              "database/faces.db",
	"web.host":                 "0.0.0.0",
	"web.port":                 8080,
	"web.allowed_origins":      "",
	"log.level":                "info",
	"log.format":               "text",
}

// NewViper returns a viper instance with defaults registered, the optional config
// file read and environment variables bound.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("face-recognizer")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// A missing default file is fine, an explicitly requested one is not.
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// Load builds the configuration from defaults, the optional config file and the environment.
func Load(configFile string) (*Config, error) {
	v, err := NewViper(configFile)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper converts resolved viper settings into a Config.
func FromViper(v *viper.Viper) (*Config, error) {
	var models ModelsConfig
	if err := yaml.Unmarshal(modelsYAML, &models); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded models.yaml: " + err.Error())
	}

	cfg := &Config{
		Embedding: EmbeddingConfig{
			URL:   v.GetString("embedding.url"),
			Model: v.GetString("embedding.model"),
			Dim:   positiveInt(v.GetInt("embedding.dim"), 0),
		},
		Index: IndexConfig{
			Backend:    strings.ToLower(strings.TrimSpace(v.GetString("index.backend"))),
			Path:       v.GetString("index.path"),
			LabelsPath: v.GetString("labels.path"),
			Threshold:  v.GetFloat64("similarity.threshold"),
			Workers:    positiveInt(v.GetInt("index.workers"), 1),
		},
		Dataset: DatasetConfig{
			Path: v.GetString("dataset.path"),
		},
		Database: DatabaseConfig{
			URL:          v.GetString("database.url"),
			MaxOpenConns: positiveInt(v.GetInt("database.max_open_conns"), 25),
			MaxIdleConns: positiveInt(v.GetInt("database.max_idle_conns"), 5),
		},
		Qdrant: QdrantConfig{
			Host:       v.GetString("qdrant.host"),
			Port:       positiveInt(v.GetInt("qdrant.port"), 6334),
			APIKey:     v.GetString("qdrant.api_key"),
			UseTLS:     v.GetBool("qdrant.use_tls"),
			Collection: v.GetString("qdrant.collection"),
		},
		SQLite: SQLiteConfig{
			Path: v.GetString("sqlite.path"),
		},
		Web: WebConfig{
			Host:           v.GetString("web.host"),
			Port:           positiveInt(v.GetInt("web.port"), 8080),
			AllowedOrigins: splitList(v.GetString("web.allowed_origins")),
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("log.level")),
			Format: strings.ToLower(v.GetString("log.format")),
		},
		Models: models,
	}

	spec := cfg.GetModelSpec(cfg.Embedding.Model)
	if cfg.Embedding.Dim == 0 {
		cfg.Embedding.Dim = spec.Dim
	}
	// Without an explicit threshold the model's recommended one applies.
	if !v.IsSet("similarity.threshold") {
		cfg.Index.Threshold = spec.Threshold
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail much later.
func (c *Config) Validate() error {
	if c.Index.Threshold < -1 || c.Index.Threshold > 1 {
		return fmt.Errorf("similarity threshold must be within [-1, 1], got %v", c.Index.Threshold)
	}
	if c.Embedding.Dim <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", c.Embedding.Dim)
	}
	if c.Dataset.Path == "" {
		return errors.New("dataset path is required")
	}
	return nil
}

// GetModelSpec returns the catalog entry for a model, falling back to buffalo_l.
func (c *Config) GetModelSpec(name string) ModelSpec {
	if spec, ok := c.Models.Models[name]; ok {
		return spec
	}
	if spec, ok := c.Models.Models[DefaultModel]; ok {
		return spec
	}
	return ModelSpec{Dim: DefaultDim, Threshold: 0.5}
}

// DefaultModel is the InsightFace model pack used when none is configured.
const DefaultModel = "buffalo_l"

// DefaultDim is the embedding dimension of DefaultModel.
const DefaultDim = 512

func positiveInt(n, defaultVal int) int {
	if n > 0 {
		return n
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
