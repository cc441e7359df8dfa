package e2e

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/askql/askql/pkg/llm"
)

// ScriptEntry is one canned model response. Exactly one field is set.
type ScriptEntry struct {
	Text string
	Err  error
}

// ScriptedLLM implements llm.Completer with dual dispatch: entries routed by
// a system-prompt marker are consumed first, then a sequential script. The
// pipeline is strictly sequential within one turn, so most scenarios need
// only the sequential script; routing covers concurrent turns where call
// order is not deterministic.
type ScriptedLLM struct {
	mu         sync.Mutex
	sequential []ScriptEntry
	seqIndex   int
	routes     map[string][]ScriptEntry
	routeIndex map[string]int
	requests   []llm.Request
}

// NewScriptedLLM creates an empty scripted model.
func NewScriptedLLM() *ScriptedLLM {
	return &ScriptedLLM{
		routes:     make(map[string][]ScriptEntry),
		routeIndex: make(map[string]int),
	}
}

// AddSequential appends entries consumed in call order.
func (s *ScriptedLLM) AddSequential(entries ...ScriptEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequential = append(s.sequential, entries...)
}

// AddRouted appends an entry consumed by calls whose system prompt contains
// marker. Routed entries win over the sequential script.
func (s *ScriptedLLM) AddRouted(marker string, entries ...ScriptEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[marker] = append(s.routes[marker], entries...)
}

// Complete implements llm.Completer.
func (s *ScriptedLLM) Complete(_ context.Context, req llm.Request) (string, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	entry, err := s.next(req)
	s.mu.Unlock()

	if err != nil {
		return "", err
	}
	if entry.Err != nil {
		return "", entry.Err
	}
	return entry.Text, nil
}

// CallCount reports how many completions were requested.
func (s *ScriptedLLM) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Requests returns a copy of every captured request in call order.
func (s *ScriptedLLM) Requests() []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Request(nil), s.requests...)
}

// next picks the routed entry whose marker matches the system prompt,
// falling back to the sequential script. Markers are tried in sorted order
// so dispatch stays deterministic. Callers hold s.mu.
func (s *ScriptedLLM) next(req llm.Request) (ScriptEntry, error) {
	markers := make([]string, 0, len(s.routes))
	for marker := range s.routes {
		markers = append(markers, marker)
	}
	sort.Strings(markers)

	for _, marker := range markers {
		if !strings.Contains(req.System, marker) {
			continue
		}
		idx := s.routeIndex[marker]
		if idx < len(s.routes[marker]) {
			s.routeIndex[marker] = idx + 1
			return s.routes[marker][idx], nil
		}
	}

	if s.seqIndex < len(s.sequential) {
		entry := s.sequential[s.seqIndex]
		s.seqIndex++
		return entry, nil
	}
	return ScriptEntry{}, fmt.Errorf("scripted model exhausted after %d calls (system: %.60s)",
		len(s.requests), req.System)
}
