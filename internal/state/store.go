// File: internal/state/store.go
// Package state is the agent's working memory: account and market facts
// seeded from configuration, the activity audit trail, and the registry of
// processes the agent has started. Everything lives in memory and is rebuilt
// at startup; nothing here persists.
package state

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xkilldash9x/deskpilot-cli/api/schemas"
	"github.com/xkilldash9x/deskpilot-cli/internal/config"
	"go.uber.org/zap"
)

const defaultHistoryLimit = 200

// Activity is one recorded unit of work, usually a recipe step.
type Activity struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Status     schemas.ActivityStatus `json:"status"`
	Metadata   map[string]any         `json:"metadata,omitempty"`
	Error      string                 `json:"error,omitempty"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at,omitempty"`
}

// ProcessRecord is one process the agent launched, keyed by instance id.
type ProcessRecord struct {
	InstanceID    string                 `json:"instance_id"`
	App           string                 `json:"app"`
	PID           int                    `json:"pid"`
	Windows       []schemas.WindowSnapshot `json:"windows,omitempty"`
	StartedAt     time.Time              `json:"started_at"`
	LastFocusedAt time.Time              `json:"last_focused_at,omitempty"`
}

// Store is the mutex-guarded state container.
type Store struct {
	mu           sync.Mutex
	logger       *zap.Logger
	accounts     map[string]map[string]any
	market       map[string]string
	history      []Activity
	historyLimit int
	current      *Activity
	processes    map[string]ProcessRecord
	// order preserves process insertion order for "first"/"latest" targeting.
	order []string
}

// NewStore builds a store seeded from the state section of the config.
func NewStore(cfg config.StateConfig, logger *zap.Logger) *Store {
	limit := cfg.HistoryLimit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	s := &Store{
		logger:       logger.Named("StateStore"),
		accounts:     map[string]map[string]any{},
		market:       map[string]string{},
		historyLimit: limit,
		processes:    map[string]ProcessRecord{},
	}
	for name, acct := range cfg.Accounts {
		s.accounts[name] = map[string]any{"cash_free": acct.CashFree}
	}
	for symbol, value := range cfg.Market {
		s.market[symbol] = value
	}
	return s
}

// SetAccountFact records one fact about an account.
func (s *Store) SetAccountFact(account, key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accounts[account] == nil {
		s.accounts[account] = map[string]any{}
	}
	s.accounts[account][key] = value
}

// SetMarketFact records one market observation.
func (s *Store) SetMarketFact(symbol, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.market[symbol] = value
}

// Track is the activity scope: it records the activity as running, executes
// fn, then marks it succeeded or failed. A failure propagates to the caller
// after the trail is updated.
func (s *Store) Track(name string, metadata map[string]any, fn func() error) error {
	act := Activity{
		ID:        uuid.NewString(),
		Name:      name,
		Status:    schemas.ActivityRunning,
		Metadata:  cloneMap(metadata),
		StartedAt: time.Now(),
	}

	s.mu.Lock()
	s.current = &act
	s.appendHistoryLocked(act)
	s.mu.Unlock()

	err := fn()

	s.mu.Lock()
	act.FinishedAt = time.Now()
	if err != nil {
		act.Status = schemas.ActivityFailed
		act.Error = err.Error()
	} else {
		act.Status = schemas.ActivitySucceeded
	}
	s.updateHistoryLocked(act)
	s.current = nil
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("Activity failed.",
			zap.String("activity", name), zap.Error(err))
		return err
	}
	return nil
}

func (s *Store) appendHistoryLocked(act Activity) {
	s.history = append(s.history, act)
	if len(s.history) > s.historyLimit {
		// Oldest-first eviction.
		s.history = s.history[len(s.history)-s.historyLimit:]
	}
}

func (s *Store) updateHistoryLocked(act Activity) {
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].ID == act.ID {
			s.history[i] = act
			return
		}
	}
	// Evicted while running; re-append so the terminal status survives.
	s.appendHistoryLocked(act)
}

// History returns a copy of the activity trail, oldest first.
func (s *Store) History() []Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Activity, len(s.history))
	for i, a := range s.history {
		a.Metadata = cloneMap(a.Metadata)
		out[i] = a
	}
	return out
}

// CurrentActivity returns the in-flight activity, if any.
func (s *Store) CurrentActivity() (Activity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Activity{}, false
	}
	act := *s.current
	act.Metadata = cloneMap(act.Metadata)
	return act, true
}

// PutProcess inserts or replaces a process record.
func (s *Store) PutProcess(rec ProcessRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.processes[rec.InstanceID]; !exists {
		s.order = append(s.order, rec.InstanceID)
	}
	s.processes[rec.InstanceID] = cloneProcess(rec)
}

// DropProcess removes a process record.
func (s *Store) DropProcess(instanceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.processes[instanceID]; !exists {
		return
	}
	delete(s.processes, instanceID)
	for i, id := range s.order {
		if id == instanceID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Process returns one record by instance id.
func (s *Store) Process(instanceID string) (ProcessRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.processes[instanceID]
	if !ok {
		return ProcessRecord{}, false
	}
	return cloneProcess(rec), true
}

// ProcessesFor returns all records for an app, in insertion order.
func (s *Store) ProcessesFor(app string) []ProcessRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ProcessRecord
	for _, id := range s.order {
		if rec, ok := s.processes[id]; ok && rec.App == app {
			out = append(out, cloneProcess(rec))
		}
	}
	return out
}

// LatestFor returns the most recently started record for an app.
func (s *Store) LatestFor(app string) (ProcessRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.order) - 1; i >= 0; i-- {
		if rec, ok := s.processes[s.order[i]]; ok && rec.App == app {
			return cloneProcess(rec), true
		}
	}
	return ProcessRecord{}, false
}

// Snapshot returns a deep, plain-data copy of the whole store. The result
// is safe to hand to the expression evaluator as the STATE namespace.
func (s *Store) Snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts := map[string]any{}
	for name, facts := range s.accounts {
		accounts[name] = cloneMap(facts)
	}
	market := map[string]any{}
	for symbol, value := range s.market {
		market[symbol] = value
	}

	processes := map[string]any{}
	for _, id := range s.order {
		rec, ok := s.processes[id]
		if !ok {
			continue
		}
		processes[id] = map[string]any{
			"app":        rec.App,
			"pid":        rec.PID,
			"started_at": rec.StartedAt.Format(time.RFC3339),
			"windows":    len(rec.Windows),
		}
	}

	history := make([]any, 0, len(s.history))
	for _, act := range s.history {
		entry := map[string]any{
			"id":     act.ID,
			"name":   act.Name,
			"status": string(act.Status),
		}
		if act.Error != "" {
			entry["error"] = act.Error
		}
		history = append(history, entry)
	}

	return map[string]any{
		"accounts":  accounts,
		"market":    market,
		"processes": processes,
		"history":   history,
	}
}

// DescribeProcesses renders a stable, sorted one-line summary per process
// for logs and the CLI.
func (s *Store) DescribeProcesses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.processes))
	for _, id := range s.order {
		if rec, ok := s.processes[id]; ok {
			out = append(out, fmt.Sprintf("%s app=%s pid=%d windows=%d",
				rec.InstanceID, rec.App, rec.PID, len(rec.Windows)))
		}
	}
	sort.Strings(out)
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneProcess(rec ProcessRecord) ProcessRecord {
	out := rec
	out.Windows = append([]schemas.WindowSnapshot(nil), rec.Windows...)
	return out
}
