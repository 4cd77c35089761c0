// Package config reads the optional reflinline.toml run configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// FileName is the configuration file looked up when no path is given.
const FileName = "reflinline.toml"

// Config holds the settings of one run. Command-line flags override the
// values read from a file.
type Config struct {
	// Program is the YAML program file to rewrite.
	Program string `toml:"program"`

	// Trace is the log of observed reflective calls.
	Trace string `toml:"trace"`

	// Caching marks checked handles so that known-call routines skip them
	// on later calls. Only environments that model the marker fields honour it.
	Caching bool `toml:"caching"`

	// Validate checks every rewritten body.
	Validate bool `toml:"validate"`

	// Output is where the rewritten program is written; empty means stdout.
	Output string `toml:"output"`

	// CFGDir receives one DOT file per rewritten method when set.
	CFGDir string `toml:"cfg_dir"`

	// PointsTo is the points-to file used by the trim command. When empty,
	// rapid type analysis answers instead.
	PointsTo string `toml:"points_to"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{Validate: true}
}

// Load reads the configuration at path over the defaults. A missing file at
// the default location is not an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = FileName
	}
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := Parse(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML data into cfg. Unknown keys are rejected.
func Parse(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(cfg)
}

// Check reports settings that make a rewrite impossible.
func (c *Config) Check() error {
	var errs []error
	if c.Program == "" {
		errs = append(errs, errors.New("no program file"))
	}
	if c.Trace == "" {
		errs = append(errs, errors.New("no trace file"))
	}
	return errors.Join(errs...)
}

// CheckTrim reports settings that make trimming impossible. Without a
// points-to file the trimmer computes its own.
func (c *Config) CheckTrim() error {
	if c.Program == "" {
		return errors.New("no program file")
	}
	return nil
}
