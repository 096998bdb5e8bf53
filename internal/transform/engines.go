package transform

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/evanw/esbuild/pkg/api"
)

// DefaultTargets are the browser versions styles and scripts are lowered
// and vendor-prefixed for.
var DefaultTargets = []string{"chrome80", "edge80", "firefox78", "safari13", "ios13"}

var engineNames = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"deno":    api.EngineDeno,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"hermes":  api.EngineHermes,
	"ie":      api.EngineIE,
	"ios":     api.EngineIOS,
	"node":    api.EngineNode,
	"opera":   api.EngineOpera,
	"rhino":   api.EngineRhino,
	"safari":  api.EngineSafari,
}

// ParseTargets converts targets such as "safari13" or "chrome80.1" to
// esbuild engines.
func ParseTargets(targets []string) ([]api.Engine, error) {
	engines := make([]api.Engine, 0, len(targets))
	for _, t := range targets {
		t = strings.ToLower(strings.TrimSpace(t))
		i := strings.IndexFunc(t, unicode.IsDigit)
		if i <= 0 {
			return nil, fmt.Errorf("invalid browser target %q", t)
		}
		name, ok := engineNames[t[:i]]
		if !ok {
			return nil, fmt.Errorf("unknown browser %q in target %q", t[:i], t)
		}
		engines = append(engines, api.Engine{Name: name, Version: t[i:]})
	}
	return engines, nil
}

// firstError converts the first esbuild message to a ProcessError.
func firstError(kind, path string, msgs []api.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	msg := msgs[0]
	pe := &ProcessError{Processor: kind, Path: path, Err: fmt.Errorf("%s", msg.Text)}
	if loc := msg.Location; loc != nil {
		pe.Line = loc.Line
		pe.Column = loc.Column + 1
		if loc.File != "" && loc.File != "<stdin>" {
			pe.Path = loc.File
		}
	}
	return pe
}
