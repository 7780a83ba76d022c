package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/mcuadros/go-defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Engine      EngineConfig      `toml:"engine" yaml:"engine"`
	Thresholds  ThresholdConfig   `toml:"thresholds" yaml:"thresholds"`
	Cameras     CameraConfig      `toml:"cameras" yaml:"cameras"`
	Console     ConsoleConfig     `toml:"console" yaml:"console"`
	Recognition RecognitionConfig `toml:"recognition" yaml:"recognition"`
	Log         LogConfig         `toml:"log" yaml:"log"`
	Database    DatabaseConfig    `toml:"database" yaml:"database"`
	// Workers bounds how many recognition jobs run at once across all streams.
	Workers int `toml:"workers" yaml:"workers" default:"2"`
}

type EngineConfig struct {
	AppID     string `toml:"app_id" yaml:"app_id"`
	SDKKey    string `toml:"sdk_key" yaml:"sdk_key"`
	ActiveKey string `toml:"active_key" yaml:"active_key"`
	Python    string `toml:"python" yaml:"python" default:"python3"`
	Script    string `toml:"script" yaml:"script" default:"python/engine.py"`
	// DetectScale is the smallest face, as a fraction 1/n of the image's long side, the detector looks for.
	DetectScale int `toml:"detect_scale" yaml:"detect_scale" default:"16"`
	MaxFaces    int `toml:"max_faces" yaml:"max_faces" default:"5"`
}

type ThresholdConfig struct {
	Similarity  float32 `toml:"similarity" yaml:"similarity" default:"0.8"`
	RGBLiveness float32 `toml:"rgb_liveness" yaml:"rgb_liveness" default:"0.5"`
	IRLiveness  float32 `toml:"ir_liveness" yaml:"ir_liveness" default:"0.7"`
}

type CameraConfig struct {
	RGBIndex int `toml:"rgb_index" yaml:"rgb_index" default:"0"`
	IRIndex  int `toml:"ir_index" yaml:"ir_index" default:"1"`
	// RGBSource / IRSource replace the device with a video file (replayed in a loop).
	RGBSource string `toml:"rgb_source" yaml:"rgb_source"`
	IRSource  string `toml:"ir_source" yaml:"ir_source"`
	Width     int    `toml:"width" yaml:"width" default:"640"`
	Height    int    `toml:"height" yaml:"height" default:"480"`
	FPS       int    `toml:"fps" yaml:"fps" default:"25"`
}

type ConsoleConfig struct {
	Addr          string `toml:"addr" yaml:"addr" default:":8080"`
	SurfaceWidth  int    `toml:"surface_width" yaml:"surface_width" default:"640"`
	SurfaceHeight int    `toml:"surface_height" yaml:"surface_height" default:"480"`
}

type RecognitionConfig struct {
	TrustTrackIDs bool `toml:"trust_track_ids" yaml:"trust_track_ids" default:"true"`
}

type LogConfig struct {
	Level string `toml:"level" yaml:"level" default:"info"`
	// File enables a daily-rotated log file next to the console output.
	File    string `toml:"file" yaml:"file"`
	MaxDays int    `toml:"max_days" yaml:"max_days" default:"7"`
}

type DatabaseConfig struct {
	URL string `toml:"url" yaml:"url"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load builds the configuration: defaults, then the optional file (.toml, .yaml or .yml),
// then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config format %q (use .toml, .yaml or .yml)", filepath.Ext(path))
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Engine.AppID, "FACE_APP_ID")
	setString(&cfg.Engine.SDKKey, "FACE_SDK_KEY")
	setString(&cfg.Engine.ActiveKey, "FACE_ACTIVE_KEY")
	setString(&cfg.Log.Level, "FACEGUARD_LOG_LEVEL")
	if err := setInt(&cfg.Cameras.RGBIndex, "RGB_CAMERA_INDEX"); err != nil {
		return err
	}
	if err := setInt(&cfg.Cameras.IRIndex, "IR_CAMERA_INDEX"); err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		cfg.Database.URL = databaseURLFromEnv()
	}
	return nil
}

// databaseURLFromEnv builds the connection string from the POSTGRES_* variables, if present.
func databaseURLFromEnv() string {
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return ""
	}
	user := os.Getenv("POSTGRES_USER")
	pass := os.Getenv("POSTGRES_PASSWORD")
	name := os.Getenv("POSTGRES_DB")
	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("%s must be an integer, got %q", key, s)
	}
	*dst = n
	return nil
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	check := func(name string, v float32) {
		if v <= 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be in (0, 1], got %v", name, v))
		}
	}
	check("thresholds.similarity", c.Thresholds.Similarity)
	check("thresholds.rgb_liveness", c.Thresholds.RGBLiveness)
	check("thresholds.ir_liveness", c.Thresholds.IRLiveness)

	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.Console.SurfaceWidth <= 0 || c.Console.SurfaceHeight <= 0 {
		errs = append(errs, errors.New("console surface must have a positive size"))
	}
	if c.Cameras.RGBIndex < 0 || c.Cameras.IRIndex < 0 {
		errs = append(errs, errors.New("camera indices must not be negative"))
	}
	if c.Engine.DetectScale < 2 || c.Engine.DetectScale > 32 {
		errs = append(errs, fmt.Errorf("engine.detect_scale must be between 2 and 32, got %d", c.Engine.DetectScale))
	}
	if c.Engine.MaxFaces < 1 {
		errs = append(errs, fmt.Errorf("engine.max_faces must be at least 1, got %d", c.Engine.MaxFaces))
	}
	return errors.Join(errs...)
}

// HasCredentials reports whether activation keys are configured.
func (c *Config) HasCredentials() bool {
	return c.Engine.AppID != "" && c.Engine.SDKKey != "" && c.Engine.ActiveKey != ""
}
