// Package profiler measures how long the nodes of a flow take.
//
// A Profiler is a flow.Observer; attach it with flow.WithObserver or
// step.WithObserver and read the Report afterwards.
package profiler

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/petrijr/flows/pkg/flow"
)

// Entry is one node execution.
type Entry struct {
	RunID    string
	Flow     string
	Node     string
	Next     string
	Duration time.Duration
	Err      error
}

// NodeStats aggregates the executions of one node.
type NodeStats struct {
	Flow    string
	Node    string
	Count   int
	Failed  int
	Total   time.Duration
	Average time.Duration
}

// Report is a snapshot of everything recorded so far.
type Report struct {
	entries []Entry
}

// RawList returns the entries in execution order.
func (r Report) RawList() []Entry {
	return slices.Clone(r.entries)
}

// Flat aggregates the entries per flow and node, sorted by total duration,
// longest first.
func (r Report) Flat() []NodeStats {
	type key struct{ flow, node string }

	byNode := make(map[key]*NodeStats)
	var order []key
	for _, e := range r.entries {
		k := key{e.Flow, e.Node}
		s, ok := byNode[k]
		if !ok {
			s = &NodeStats{Flow: e.Flow, Node: e.Node}
			byNode[k] = s
			order = append(order, k)
		}
		s.Count++
		s.Total += e.Duration
		if e.Err != nil {
			s.Failed++
		}
	}

	stats := make([]NodeStats, 0, len(order))
	for _, k := range order {
		s := byNode[k]
		s.Average = s.Total / time.Duration(s.Count)
		stats = append(stats, *s)
	}
	slices.SortStableFunc(stats, func(a, b NodeStats) int {
		return cmp.Compare(b.Total, a.Total)
	})
	return stats
}

// Profiler records node executions. It is safe for concurrent flows.
type Profiler struct {
	flow.NoopObserver

	mu      sync.Mutex
	entries []Entry
}

var _ flow.Observer = (*Profiler)(nil)

// New returns an empty Profiler.
func New() *Profiler {
	return &Profiler{}
}

func (p *Profiler) OnNodeCompleted(ctx context.Context, run flow.RunInfo, nodeID, next string, err error, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, Entry{
		RunID:    run.ID,
		Flow:     run.Flow,
		Node:     nodeID,
		Next:     next,
		Duration: d,
		Err:      err,
	})
}

// Report returns a snapshot of the recorded entries.
func (p *Profiler) Report() Report {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Report{entries: slices.Clone(p.entries)}
}

// Reset drops every recorded entry.
func (p *Profiler) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = nil
}
