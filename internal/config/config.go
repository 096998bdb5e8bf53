// Package config loads the build configuration from TOML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// DefaultFile is looked up in the working directory when no --config flag
// is given.
const DefaultFile = "assetweaver.toml"

// Config is the full build configuration.
type Config struct {
	Paths  Paths  `toml:"paths"`
	Styles Styles `toml:"styles"`
	Images Images `toml:"images"`
	SVG    SVG    `toml:"svg"`
	Server Server `toml:"server"`
	Watch  Watch  `toml:"watch"`

	// Concurrency bounds parallel groups; zero means runtime.NumCPU().
	Concurrency int `toml:"concurrency"`

	// dir is the directory relative paths are resolved against.
	dir string
}

// Paths locates the source and output trees.
type Paths struct {
	Source string `toml:"source"`
	Output string `toml:"output"`
}

// Styles configures the stylesheet task.
type Styles struct {
	// Entry is the source-relative stylesheet entry point.
	Entry string `toml:"entry"`

	// Compiler is the argv of the LESS compiler; the entry path is appended.
	Compiler []string `toml:"compiler"`

	// Targets lists browser versions for prefixing, e.g. "safari13".
	Targets []string `toml:"targets"`

	SourceMap bool `toml:"sourcemap"`
}

// Images configures raster optimization.
type Images struct {
	JPEGQuality int `toml:"jpeg_quality"`

	// PNGCompression is one of "default", "none", "speed", "best".
	PNGCompression string `toml:"png_compression"`
}

// SVG configures the icon stack tasks.
type SVG struct {
	// StackOutput is the file name each stack document is written to.
	StackOutput string `toml:"stack_output"`
}

// Server configures the development server.
type Server struct {
	Addr string `toml:"addr"`
	CORS bool   `toml:"cors"`
}

// Watch configures the watch task.
type Watch struct {
	Debounce      Duration `toml:"debounce"`
	RetryAttempts int      `toml:"retry_attempts"`
}

// Duration is a time.Duration written as a string ("150ms") in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Error reports a configuration that could not be loaded or is invalid.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid configuration: %v", e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Default returns the built-in configuration, matching a source/ → build/
// project layout.
func Default() *Config {
	return &Config{
		Paths: Paths{Source: "source", Output: "build"},
		Styles: Styles{
			Entry:     "less/style.less",
			Compiler:  []string{"lessc"},
			Targets:   []string{"chrome80", "edge80", "firefox78", "safari13", "ios13"},
			SourceMap: true,
		},
		Images: Images{JPEGQuality: 80, PNGCompression: "best"},
		SVG:    SVG{StackOutput: "stak.svg"},
		Server: Server{Addr: "localhost:3000", CORS: true},
		Watch:  Watch{Debounce: Duration{100 * time.Millisecond}, RetryAttempts: 3},
	}
}

// Load reads path over the defaults. An empty path returns the defaults
// anchored at the working directory. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting working directory: %w", err)
		}
		cfg.dir = wd
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	if err := cfg.parse(data); err != nil {
		return nil, &Error{Path: path, Err: err}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	cfg.dir = filepath.Dir(abs)
	return cfg, nil
}

func (c *Config) parse(data []byte) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("unknown keys:\n%s", strict.String())
		}
		return err
	}
	return nil
}

// SetDir overrides the directory relative paths are resolved against.
func (c *Config) SetDir(dir string) { c.dir = dir }

// SourceDir returns the absolute source root.
func (c *Config) SourceDir() string { return c.abs(c.Paths.Source) }

// OutputDir returns the absolute output root.
func (c *Config) OutputDir() string { return c.abs(c.Paths.Output) }

func (c *Config) abs(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(c.dir, p)
}

// PNGLevel maps Images.PNGCompression to an encoder level.
func (c *Config) PNGLevel() (png.CompressionLevel, error) {
	switch c.Images.PNGCompression {
	case "", "default":
		return png.DefaultCompression, nil
	case "none":
		return png.NoCompression, nil
	case "speed":
		return png.BestSpeed, nil
	case "best":
		return png.BestCompression, nil
	default:
		return 0, fmt.Errorf("unknown png_compression %q", c.Images.PNGCompression)
	}
}

// Validate checks value ranges and path relationships.
func (c *Config) Validate() error {
	if c.Paths.Source == "" {
		return &Error{Err: errors.New("paths.source is required")}
	}
	if c.Paths.Output == "" {
		return &Error{Err: errors.New("paths.output is required")}
	}
	if c.SourceDir() == c.OutputDir() {
		return &Error{Err: errors.New("paths.source and paths.output must differ")}
	}
	if c.Styles.Entry == "" {
		return &Error{Err: errors.New("styles.entry is required")}
	}
	if q := c.Images.JPEGQuality; q < 1 || q > 100 {
		return &Error{Err: fmt.Errorf("images.jpeg_quality must be within 1-100, got %d", q)}
	}
	if _, err := c.PNGLevel(); err != nil {
		return &Error{Err: err}
	}
	if o := c.SVG.StackOutput; o == "" || o != filepath.Base(o) || filepath.Ext(o) != ".svg" {
		return &Error{Err: fmt.Errorf("svg.stack_output must be a plain .svg file name, got %q", o)}
	}
	if c.Server.Addr == "" {
		return &Error{Err: errors.New("server.addr is required")}
	}
	if c.Watch.Debounce.Duration < 0 {
		return &Error{Err: errors.New("watch.debounce must not be negative")}
	}
	if c.Watch.RetryAttempts < 0 {
		return &Error{Err: errors.New("watch.retry_attempts must not be negative")}
	}
	if c.Concurrency < 0 {
		return &Error{Err: errors.New("concurrency must not be negative")}
	}
	return nil
}
