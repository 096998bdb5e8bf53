package config

import (
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), DefaultFile)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestDefault_IsValid(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wd, "source"), cfg.SourceDir())
	assert.Equal(t, filepath.Join(wd, "build"), cfg.OutputDir())
	assert.Equal(t, "localhost:3000", cfg.Server.Addr)
	assert.Equal(t, "stak.svg", cfg.SVG.StackOutput)
}

func TestLoad_OverridesAndResolvesRelativeToFile(t *testing.T) {
	p := writeConfig(t, `
concurrency = 2

[paths]
source = "site"
output = "/tmp/out"

[styles]
entry = "css/main.css"
targets = ["safari12"]
sourcemap = false

[images]
jpeg_quality = 70
png_compression = "speed"

[svg]
stack_output = "stack.svg"

[watch]
debounce = "250ms"
`)

	cfg, err := Load(p)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, filepath.Join(filepath.Dir(p), "site"), cfg.SourceDir())
	assert.Equal(t, "/tmp/out", cfg.OutputDir())
	assert.Equal(t, "css/main.css", cfg.Styles.Entry)
	assert.Equal(t, []string{"lessc"}, cfg.Styles.Compiler, "unset keys keep defaults")
	assert.False(t, cfg.Styles.SourceMap)
	assert.Equal(t, 250*time.Millisecond, cfg.Watch.Debounce.Duration)
	assert.Equal(t, 3, cfg.Watch.RetryAttempts)
	assert.Equal(t, 2, cfg.Concurrency)
	assert.Equal(t, "stack.svg", cfg.SVG.StackOutput)

	level, err := cfg.PNGLevel()
	require.NoError(t, err)
	assert.Equal(t, png.BestSpeed, level)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	p := writeConfig(t, "[paths]\nsorce = \"x\"\n")

	_, err := Load(p)
	var cfgErr *Error
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, p, cfgErr.Path)
	assert.Contains(t, err.Error(), "sorce")
}

func TestLoad_SyntaxErrorAndMissingFile(t *testing.T) {
	_, err := Load(writeConfig(t, "[paths\n"))
	var cfgErr *Error
	assert.True(t, errors.As(err, &cfgErr))

	_, err = Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.True(t, errors.As(err, &cfgErr))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"same dirs":       func(c *Config) { c.Paths.Output = c.Paths.Source },
		"empty source":    func(c *Config) { c.Paths.Source = "" },
		"quality":         func(c *Config) { c.Images.JPEGQuality = 101 },
		"png level":       func(c *Config) { c.Images.PNGCompression = "max" },
		"negative retry":  func(c *Config) { c.Watch.RetryAttempts = -1 },
		"no entry":        func(c *Config) { c.Styles.Entry = "" },
		"no addr":         func(c *Config) { c.Server.Addr = "" },
		"bad concurrency": func(c *Config) { c.Concurrency = -4 },
		"stack dir":       func(c *Config) { c.SVG.StackOutput = "icons/stack.svg" },
		"stack ext":       func(c *Config) { c.SVG.StackOutput = "stack" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			cfg.SetDir(t.TempDir())
			mutate(cfg)
			var cfgErr *Error
			assert.True(t, errors.As(cfg.Validate(), &cfgErr))
		})
	}
}
