package engine

import "time"

// Stats is a point-in-time view of the engine for the host and the debug
// surface.
type Stats struct {
	Remote              map[string]int    `json:"remote"`
	Local               map[string]int    `json:"local"`
	SyncToken           string            `json:"sync_token"`
	LastRun             time.Time         `json:"last_run"`
	LastFullSync        time.Time         `json:"last_full_sync"`
	LastIncrementalSync time.Time         `json:"last_incremental_sync"`
	LastScan            time.Time         `json:"last_scan"`
	Running             bool              `json:"running"`
	Pending             int               `json:"pending"`
	Duplicates          []ConflictAnomaly `json:"duplicates"`
	LastResult          *Result           `json:"last_result,omitempty"`
}

// Stats reports counts per entity kind for both mirrors. While a run holds
// the state the counts come from the last completed operation.
func (e *Engine) Stats() Stats {
	var s Stats
	if e.stateMu.TryLock() {
		s = e.snapshotLocked()
		e.stateMu.Unlock()
		e.statsMu.Lock()
		e.cached = s
		e.statsMu.Unlock()
	} else {
		e.statsMu.Lock()
		s = e.cached
		e.statsMu.Unlock()
	}

	e.statsMu.Lock()
	if e.lastResult != nil {
		res := *e.lastResult
		s.LastResult = &res
	}
	e.statsMu.Unlock()

	e.queueMu.Lock()
	s.Pending = len(e.pending)
	e.queueMu.Unlock()
	s.Running = e.running.Load()
	return s
}

func (e *Engine) snapshotLocked() Stats {
	s := Stats{
		Remote:              e.remote.Counts(),
		Local:               e.local.Counts(),
		SyncToken:           e.remote.SyncToken,
		LastRun:             e.remote.LastRun,
		LastFullSync:        e.remote.LastFullSync,
		LastIncrementalSync: e.remote.LastIncrementalSync,
		LastScan:            e.local.LastScan(),
	}
	for _, d := range e.local.Duplicates() {
		s.Duplicates = append(s.Duplicates, ConflictAnomaly{Kind: d.Kind, ID: d.ID, Kept: d.Kept, Dropped: d.Dropped})
	}
	return s
}
