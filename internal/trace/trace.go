// Package trace records what a pipeline run did as a canonical JSON
// document: one event per task, free of timings and error text, so two runs
// that did the same work produce the same bytes.
package trace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"assetweaver/internal/dag"
	"assetweaver/internal/outtree"
)

// ExecutionTrace is the canonical record of one pipeline run.
//
// Events are ordered by Canonicalize, never by execution timing, and the
// JSON encoding fixes field order and omits empty optional fields.
type ExecutionTrace struct {
	Pipeline  string
	GraphHash string

	// OutputHash identifies the output tree the run left behind.
	OutputHash string

	Events []TraceEvent
}

// TraceEventKind discriminates TraceEvent. The string values are part of
// the canonical bytes; do not rename.
type TraceEventKind string

const (
	EventTaskExecuted  TraceEventKind = "TaskExecuted"
	EventTaskRecovered TraceEventKind = "TaskRecovered"
	EventTaskFailed    TraceEventKind = "TaskFailed"
	EventTaskSkipped   TraceEventKind = "TaskSkipped"
)

// Reason codes.
const (
	ReasonUpstreamFailed = "UpstreamFailed"
	ReasonIsolated       = "Isolated"
)

// TraceEvent is the outcome of one task.
type TraceEvent struct {
	Kind TraceEventKind

	TaskID string

	// Reason is a stable reason code such as ReasonUpstreamFailed.
	Reason string

	// CauseTaskID names the failed upstream task of a skip.
	CauseTaskID string

	// Artifacts lists the output-relative paths the task wrote.
	Artifacts []string
}

// FromResult builds the trace of one executed graph.
func FromResult(pipeline string, g *dag.TaskGraph, res *dag.GraphResult) ExecutionTrace {
	tr := ExecutionTrace{
		Pipeline:   pipeline,
		GraphHash:  res.GraphHash.String(),
		OutputHash: res.OutputHash.String(),
	}
	failed := res.Failed()

	for name, st := range res.FinalState {
		ev := TraceEvent{TaskID: name}
		switch st {
		case dag.TaskCompleted:
			ev.Kind = EventTaskExecuted
			if r := res.Results[name]; r != nil {
				ev.Artifacts = r.Written
				if r.Recovered != nil {
					ev.Kind = EventTaskRecovered
					ev.Reason = ReasonIsolated
				}
			}
		case dag.TaskFailed:
			ev.Kind = EventTaskFailed
		case dag.TaskSkipped:
			ev.Kind = EventTaskSkipped
			ev.Reason = ReasonUpstreamFailed
			for _, f := range failed {
				if g.Ordered(f, name) {
					ev.CauseTaskID = f
					break
				}
			}
		default:
			continue
		}
		tr.Events = append(tr.Events, ev)
	}
	tr.Canonicalize()
	return tr
}

// Validate checks required fields.
func (t *ExecutionTrace) Validate() error {
	if t == nil {
		return errors.New("trace is nil")
	}
	if t.GraphHash == "" {
		return errors.New("graphHash is required")
	}
	for i, e := range t.Events {
		if e.Kind == "" {
			return fmt.Errorf("events[%d].kind is required", i)
		}
		if e.TaskID == "" {
			return fmt.Errorf("events[%d].taskId is required for kind %q", i, e.Kind)
		}
		for j, a := range e.Artifacts {
			if a == "" {
				return fmt.Errorf("events[%d].artifacts[%d] is empty", i, j)
			}
		}
	}
	return nil
}

// Canonicalize sorts artifacts and orders events by
// (taskId, kind, reason, causeTaskId, artifacts).
func (t *ExecutionTrace) Canonicalize() {
	if t == nil {
		return
	}
	for i := range t.Events {
		if len(t.Events[i].Artifacts) == 0 {
			t.Events[i].Artifacts = nil
			continue
		}
		art := make([]string, len(t.Events[i].Artifacts))
		copy(art, t.Events[i].Artifacts)
		sort.Strings(art)
		t.Events[i].Artifacts = art
	}

	sort.SliceStable(t.Events, func(i, j int) bool {
		a, b := t.Events[i], t.Events[j]
		if a.TaskID != b.TaskID {
			return a.TaskID < b.TaskID
		}
		if kindOrder(a.Kind) != kindOrder(b.Kind) {
			return kindOrder(a.Kind) < kindOrder(b.Kind)
		}
		if a.Reason != b.Reason {
			return a.Reason < b.Reason
		}
		if a.CauseTaskID != b.CauseTaskID {
			return a.CauseTaskID < b.CauseTaskID
		}
		return compareStringSlices(a.Artifacts, b.Artifacts)
	})
}

func kindOrder(k TraceEventKind) int {
	switch k {
	case EventTaskExecuted:
		return 10
	case EventTaskRecovered:
		return 20
	case EventTaskFailed:
		return 30
	case EventTaskSkipped:
		return 40
	default:
		return 1000
	}
}

func compareStringSlices(a, b []string) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// CanonicalJSON returns the canonical encoding without mutating t.
func (t ExecutionTrace) CanonicalJSON() ([]byte, error) {
	c := ExecutionTrace{Pipeline: t.Pipeline, GraphHash: t.GraphHash, OutputHash: t.OutputHash}
	c.Events = make([]TraceEvent, len(t.Events))
	copy(c.Events, t.Events)
	c.Canonicalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(&c)
}

// Hash returns the sha256 hex digest of the canonical encoding.
func (t ExecutionTrace) Hash() (string, error) {
	b, err := t.CanonicalJSON()
	if err != nil {
		return "", err
	}
	return ComputeTraceHash(b), nil
}

// WriteFile atomically writes the canonical encoding, newline-terminated,
// to path.
func (t ExecutionTrace) WriteFile(path string) error {
	b, err := t.CanonicalJSON()
	if err != nil {
		return fmt.Errorf("encoding trace: %w", err)
	}
	if err := outtree.WriteFileAtomic(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing trace: %w", err)
	}
	return nil
}

// MarshalJSON fixes field order.
func (t ExecutionTrace) MarshalJSON() ([]byte, error) {
	if t.GraphHash == "" {
		return nil, errors.New("graphHash is required")
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	if t.Pipeline != "" {
		writeKey(&buf, "pipeline", t.Pipeline)
		buf.WriteByte(',')
	}
	writeKey(&buf, "graphHash", t.GraphHash)
	if t.OutputHash != "" {
		buf.WriteByte(',')
		writeKey(&buf, "outputHash", t.OutputHash)
	}

	buf.WriteString(",\"events\":[")
	for i := range t.Events {
		if i > 0 {
			buf.WriteByte(',')
		}
		eb, err := json.Marshal(t.Events[i])
		if err != nil {
			return nil, err
		}
		buf.Write(eb)
	}
	buf.WriteString("]}")
	return buf.Bytes(), nil
}

// MarshalJSON fixes field order and omits empty optional fields.
func (e TraceEvent) MarshalJSON() ([]byte, error) {
	if e.Kind == "" {
		return nil, errors.New("kind is required")
	}
	var artifacts []string
	if len(e.Artifacts) > 0 {
		artifacts = make([]string, len(e.Artifacts))
		copy(artifacts, e.Artifacts)
		sort.Strings(artifacts)
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	writeKey(&buf, "kind", string(e.Kind))
	for _, f := range [...]struct{ key, val string }{
		{"taskId", e.TaskID},
		{"reason", e.Reason},
		{"causeTaskId", e.CauseTaskID},
	} {
		if f.val != "" {
			buf.WriteByte(',')
			writeKey(&buf, f.key, f.val)
		}
	}
	if len(artifacts) > 0 {
		buf.WriteString(",\"artifacts\":")
		ab, _ := json.Marshal(artifacts)
		buf.Write(ab)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeKey(buf *bytes.Buffer, key, val string) {
	kb, _ := json.Marshal(key)
	vb, _ := json.Marshal(val)
	buf.Write(kb)
	buf.WriteByte(':')
	buf.Write(vb)
}
