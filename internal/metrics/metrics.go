// Package metrics collects per-stage counters for a srcpatch run.
package metrics

import (
	"sync"
	"time"
)

// Recorder receives stage measurements.
type Recorder interface {
	// RecordStage records one execution of a stage (extract, apply-patches,
	// rename, make-patches) over files, failed of which did not succeed.
	RecordStage(stage string, duration time.Duration, files, failed int)
	Snapshot() Snapshot
}

// StageStats aggregates the executions of one stage.
type StageStats struct {
	Name      string
	Runs      int64
	Files     int64
	Failed    int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
}

// Snapshot is a point-in-time copy of the collected stages, in the order
// they were first recorded.
type Snapshot struct {
	Stages []StageStats
}

// Totals sums every stage.
func (s Snapshot) Totals() StageStats {
	total := StageStats{Name: "total"}
	for _, st := range s.Stages {
		total.Runs += st.Runs
		total.Files += st.Files
		total.Failed += st.Failed
		total.TotalTime += st.TotalTime
	}
	return total
}

// InMemory is a thread-safe Recorder.
type InMemory struct {
	mu     sync.Mutex
	order  []string
	stages map[string]*StageStats
}

// NewInMemory returns an empty recorder.
func NewInMemory() *InMemory {
	return &InMemory{stages: make(map[string]*StageStats)}
}

func (m *InMemory) RecordStage(stage string, duration time.Duration, files, failed int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.stages[stage]
	if !ok {
		st = &StageStats{Name: stage, MinTime: duration}
		m.stages[stage] = st
		m.order = append(m.order, stage)
	}
	st.Runs++
	st.Files += int64(files)
	st.Failed += int64(failed)
	st.TotalTime += duration
	if duration < st.MinTime {
		st.MinTime = duration
	}
	if duration > st.MaxTime {
		st.MaxTime = duration
	}
}

func (m *InMemory) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{Stages: make([]StageStats, 0, len(m.order))}
	for _, name := range m.order {
		snap.Stages = append(snap.Stages, *m.stages[name])
	}
	return snap
}

// Timer measures one stage execution.
type Timer struct {
	rec   Recorder
	stage string
	start time.Time
}

// Start begins timing stage on rec.
func Start(rec Recorder, stage string) *Timer {
	return &Timer{rec: rec, stage: stage, start: time.Now()}
}

// Stop records the elapsed time and returns it.
func (t *Timer) Stop(files, failed int) time.Duration {
	elapsed := time.Since(t.start)
	if t.rec != nil {
		t.rec.RecordStage(t.stage, elapsed, files, failed)
	}
	return elapsed
}
