// Package config loads cosimkit settings.
//
// Settings come from four layers, highest precedence first: command-line
// flags, environment variables, the YAML config file and built-in defaults.
// The file is checked against an embedded CUE schema before it is decoded,
// so unknown keys and bad values are rejected with the offending path.
//
//	cosim_path: /opt/cosim/bin/cosim
//	work_root: /scratch/sims
//	database: ~/.cosimkit/history.db
//	log_level: info
//	keep_work_dir: true
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"
)

// Environment variables consulted by ApplyEnv.
const (
	EnvCosimPath = "COSIM_PATH"
	EnvDatabase  = "COSIMKIT_DB"
)

//go:embed schema.cue
var schemaCUE string

// Config holds cosimkit settings.
type Config struct {
	// CosimPath is the cosim executable. Empty means "cosim" on PATH.
	CosimPath string `yaml:"cosim_path" json:"cosim_path"`

	// WorkRoot holds the cosimkit_tmp working directories. Empty means the
	// OS temp directory.
	WorkRoot string `yaml:"work_root" json:"work_root"`

	// Database is the run history database path.
	Database string `yaml:"database" json:"database"`

	LogLevel    string `yaml:"log_level" json:"log_level"`
	KeepWorkDir bool   `yaml:"keep_work_dir" json:"keep_work_dir"`
}

// Dir returns $HOME/.cosimkit, or .cosimkit when the home directory is
// unknown.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cosimkit"
	}
	return filepath.Join(home, ".cosimkit")
}

// DefaultPath is the config file read when no --config flag is given.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Database:    filepath.Join(Dir(), "history.db"),
		LogLevel:    "warning",
		KeepWorkDir: true,
	}
}

// Load reads the config file at path on top of the defaults. An empty path
// reads DefaultPath and tolerates its absence; an explicit path must exist.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}

	if err := Validate(path, data); err != nil {
		return nil, err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	cfg.Database = expandHome(cfg.Database)
	cfg.WorkRoot = expandHome(cfg.WorkRoot)
	cfg.CosimPath = expandHome(cfg.CosimPath)
	return cfg, nil
}

// Validate checks YAML config content against the embedded schema.
func Validate(filename string, data []byte) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	f, err := cueyaml.Extract(filename, data)
	if err != nil {
		return fmt.Errorf("parse config %s: %w", filename, err)
	}
	value := ctx.BuildFile(f)
	if err := value.Err(); err != nil {
		return fmt.Errorf("parse config %s: %w", filename, err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config %s: %w", filename, err)
	}
	return nil
}

// ApplyEnv overrides settings from environment variables. lookup is
// usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvCosimPath); ok && v != "" {
		c.CosimPath = v
	}
	if v, ok := lookup(EnvDatabase); ok && v != "" {
		c.Database = expandHome(v)
	}
}

func expandHome(p string) string {
	if p == "~" {
		return filepath.Dir(Dir())
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(filepath.Dir(Dir()), p[2:])
	}
	return p
}
