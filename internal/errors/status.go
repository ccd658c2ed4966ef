package errors

import (
	"sync"
	"time"
)

// StageStatus is the last known outcome of one pipeline stage.
type StageStatus struct {
	Stage     string    `json:"stage"`
	OK        bool      `json:"ok"`
	Kind      string    `json:"kind,omitempty"`
	Message   string    `json:"message,omitempty"`
	Path      string    `json:"path,omitempty"`
	Line      int       `json:"line,omitempty"`
	Runs      int64     `json:"runs"`
	Failures  int64     `json:"failures"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StatusBoard collects the latest result of every stage so a failed
// rebuild can be inspected without scrolling the console.
type StatusBoard struct {
	stages map[string]*StageStatus
	mutex  sync.RWMutex
}

// NewStatusBoard creates an empty status board
func NewStatusBoard() *StatusBoard {
	return &StatusBoard{
		stages: make(map[string]*StageStatus),
	}
}

// Record stores the outcome of a stage run. A nil err marks success.
func (sb *StatusBoard) Record(stage string, err error) {
	sb.mutex.Lock()
	defer sb.mutex.Unlock()

	st, ok := sb.stages[stage]
	if !ok {
		st = &StageStatus{Stage: stage}
		sb.stages[stage] = st
	}

	st.Runs++
	st.UpdatedAt = time.Now()
	st.OK = err == nil
	st.Kind, st.Message, st.Path, st.Line = "", "", "", 0

	if err == nil {
		return
	}

	st.Failures++
	st.Message = err.Error()
	st.Kind = KindOf(err).String()

	var e *Error
	if As(err, &e) {
		st.Path = e.Path
		st.Line = e.Line
	}
}

// Get returns a copy of the status for stage.
func (sb *StatusBoard) Get(stage string) (StageStatus, bool) {
	sb.mutex.RLock()
	defer sb.mutex.RUnlock()

	st, ok := sb.stages[stage]
	if !ok {
		return StageStatus{}, false
	}
	return *st, true
}

// Snapshot returns a copy of every recorded stage status.
func (sb *StatusBoard) Snapshot() map[string]StageStatus {
	sb.mutex.RLock()
	defer sb.mutex.RUnlock()

	result := make(map[string]StageStatus, len(sb.stages))
	for name, st := range sb.stages {
		result[name] = *st
	}
	return result
}

// HasErrors reports whether any stage's latest run failed.
func (sb *StatusBoard) HasErrors() bool {
	sb.mutex.RLock()
	defer sb.mutex.RUnlock()

	for _, st := range sb.stages {
		if !st.OK {
			return true
		}
	}
	return false
}
