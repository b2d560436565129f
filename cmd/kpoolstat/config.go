package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config holds the run settings. Values come from flags, KPOOLSTAT_*
// environment variables and an optional config file, in that order.
type Config struct {
	Workload string        `mapstructure:"workload"`
	Listen   string        `mapstructure:"listen"`
	Workers  int           `mapstructure:"workers"`
	Duration time.Duration `mapstructure:"duration"`
	LogLevel string        `mapstructure:"log-level"`
	Reclaim  ReclaimConfig `mapstructure:"reclaim"`
	Dump     DumpConfig    `mapstructure:"dump"`
}

// ReclaimConfig configures the background reclaimer.
type ReclaimConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	Wait        time.Duration `mapstructure:"wait"`
	PagesPerSec float64       `mapstructure:"pages-per-sec"`
}

// DumpConfig selects where statistics dumps go.
type DumpConfig struct {
	Sink        string        `mapstructure:"sink"` // none, local, s3 or minio
	Interval    time.Duration `mapstructure:"interval"`
	Keep        int           `mapstructure:"keep"`
	Compression string        `mapstructure:"compression"`
	Path        string        `mapstructure:"path"`
	Bucket      string        `mapstructure:"bucket"`
	Prefix      string        `mapstructure:"prefix"`
	Endpoint    string        `mapstructure:"endpoint"`
	AccessKey   string        `mapstructure:"access-key"`
	SecretKey   string        `mapstructure:"secret-key"`
	Secure      bool          `mapstructure:"secure"`
}

// flagKeys maps run flags to their config keys.
var flagKeys = map[string]string{
	"workload":         "workload",
	"listen":           "listen",
	"workers":          "workers",
	"duration":         "duration",
	"log-level":        "log-level",
	"reclaim-interval": "reclaim.interval",
	"reclaim-wait":     "reclaim.wait",
	"reclaim-rate":     "reclaim.pages-per-sec",
	"dump-sink":        "dump.sink",
	"dump-interval":    "dump.interval",
	"dump-keep":        "dump.keep",
	"dump-compression": "dump.compression",
	"dump-path":        "dump.path",
	"dump-bucket":      "dump.bucket",
	"dump-prefix":      "dump.prefix",
	"minio-endpoint":   "dump.endpoint",
	"minio-access-key": "dump.access-key",
	"minio-secret-key": "dump.secret-key",
	"minio-secure":     "dump.secure",
}

func addRunFlags(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.String("config", "", "Path to a config file (yaml, json or toml)")
	fs.StringP("workload", "w", "", "Path to the workload YAML file (required)")
	fs.String("listen", ":9090", "Address for the /metrics endpoint; empty disables it")
	fs.Int("workers", 4, "Number of worker goroutines")
	fs.Duration("duration", 0, "How long to run; 0 runs until interrupted")
	fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	fs.Duration("reclaim-interval", time.Second, "Reclaimer pass interval")
	fs.Duration("reclaim-wait", 8*time.Second, "Idle time before a page may be reclaimed")
	fs.Float64("reclaim-rate", 0, "Maximum pages reclaimed per second; 0 is unlimited")
	fs.String("dump-sink", "none", "Where to write stat dumps: none, local, s3 or minio")
	fs.Duration("dump-interval", 10*time.Second, "Stat dump interval")
	fs.Int("dump-keep", 0, "Number of dumps to keep; 0 keeps all")
	fs.String("dump-compression", "zstd", "Dump compression: none, zstd or lz4")
	fs.String("dump-path", "dumps", "Directory for the local sink")
	fs.String("dump-bucket", "", "Bucket for the s3 and minio sinks")
	fs.String("dump-prefix", "kpoolstat", "Key prefix for the s3 and minio sinks")
	fs.String("minio-endpoint", "localhost:9000", "MinIO endpoint")
	fs.String("minio-access-key", "", "MinIO access key")
	fs.String("minio-secret-key", "", "MinIO secret key")
	fs.Bool("minio-secure", false, "Use TLS for MinIO")
}

func loadConfig(cmd *cobra.Command) (*Config, error) {
	fs := cmd.Flags()
	v := viper.New()
	v.SetEnvPrefix("KPOOLSTAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for flag, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return nil, err
		}
	}

	if file, _ := fs.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Workload == "" {
		return nil, fmt.Errorf("a workload file is required")
	}
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("workers must be positive, got %d", cfg.Workers)
	}
	return &cfg, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(s))
	return level, err
}
