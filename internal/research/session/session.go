// Package session implements the Research Session (C8): the
// single stateful record of one research run — scratchpad, plan, goals,
// and phase artifacts — with a cumulative-summary cache invalidated on
// every scratchpad mutation, and atomic save/load to the filesystem.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/codeready-toolchain/ingestor/internal/model"
)

// data is the serializable content of a Session. Kept separate from
// Session itself so the lock guarding it is never copied alongside it.
type data struct {
	SessionID string    `json:"session_id"`
	BatchID   string    `json:"batch_id"`
	CreatedAt time.Time `json:"created_at"`
	Cancelled bool      `json:"cancelled"`

	UserGuidance string `json:"user_guidance,omitempty"`
	UserContext  string `json:"user_context,omitempty"`

	Role         string               `json:"role,omitempty"`
	Goals        []model.ResearchGoal `json:"goals,omitempty"`
	SelectedGoal string               `json:"selected_goal,omitempty"`
	Plan         []model.PlanStep     `json:"plan,omitempty"`

	Scratchpad []model.ScratchpadEntry      `json:"scratchpad"`
	Prompts    map[string]*model.UserPrompt `json:"prompts"`

	Synthesis string `json:"synthesis,omitempty"`
}

// Session is owned exclusively by the Research Orchestrator (C12); every
// other component only sees values returned by its accessor methods.
type Session struct {
	mu sync.Mutex
	d  data

	cacheValid bool
	cache      string
}

func New(sessionID, batchID string) *Session {
	return &Session{
		d: data{
			SessionID: sessionID,
			BatchID:   batchID,
			CreatedAt: time.Now().UTC(),
			Prompts:   make(map[string]*model.UserPrompt),
		},
	}
}

func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.SessionID
}

func (s *Session) BatchID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.BatchID
}

// SetUserGuidance records the operator's guidance captured before Phase
// 0.5 runs.
func (s *Session) SetUserGuidance(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d.UserGuidance = text
}

func (s *Session) GetUserGuidance() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.UserGuidance
}

// SetUserContext records the operator's amendment text captured after
// Phase 1's goal-selection prompt.
func (s *Session) SetUserContext(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d.UserContext = text
}

func (s *Session) GetUserContext() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.UserContext
}

// SetRole records Phase 0.5's output.
func (s *Session) SetRole(role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d.Role = role
}

func (s *Session) GetRole() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.Role
}

// SetGoals records Phase 1's candidate goals and the one selected (by the
// operator's prompt response, or automatically if only one is feasible).
func (s *Session) SetGoals(goals []model.ResearchGoal, selected string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d.Goals = goals
	s.d.SelectedGoal = selected
}

func (s *Session) GetSelectedGoal() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.SelectedGoal
}

// SetPlan records Phase 2's output.
func (s *Session) SetPlan(plan []model.PlanStep) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d.Plan = plan
}

func (s *Session) GetPlan() []model.PlanStep {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.PlanStep, len(s.d.Plan))
	copy(out, s.d.Plan)
	return out
}

// AppendScratchpad records one step's findings. If an entry for
// entry.StepID already exists it is replaced in place; otherwise the
// entry is appended. Either way the cumulative summary cache is
// invalidated ("any scratchpad mutation invalidates the cached
// cumulative summary").
func (s *Session) AppendScratchpad(entry model.ScratchpadEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.d.Scratchpad {
		if existing.StepID == entry.StepID {
			s.d.Scratchpad[i] = entry
			s.cacheValid = false
			return
		}
	}
	s.d.Scratchpad = append(s.d.Scratchpad, entry)
	s.cacheValid = false
}

// ScratchpadSnapshot returns a copy of every entry recorded so far, in
// step order.
func (s *Session) ScratchpadSnapshot() []model.ScratchpadEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ScratchpadEntry, len(s.d.Scratchpad))
	copy(out, s.d.Scratchpad)
	return out
}

// CumulativeSummary returns the concatenation of every scratchpad entry's
// insights, rebuilding and caching it only when the scratchpad has
// mutated since the last call (cache semantics). This is plain
// text assembly, not an LLM call: phases that want an LLM-condensed
// summary ask C9 themselves, passing this as context.
func (s *Session) CumulativeSummary() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cacheValid {
		return s.cache
	}
	var sb strings.Builder
	for _, entry := range s.d.Scratchpad {
		fmt.Fprintf(&sb, "[step %d, confidence %.2f] %s\n", entry.StepID, entry.Confidence, entry.Insights)
	}
	s.cache = sb.String()
	s.cacheValid = true
	return s.cache
}

// RegisterPrompt records an outstanding UserPrompt. This method does not
// limit how many are recorded; Phase 1 is the only phase that registers
// one.
func (s *Session) RegisterPrompt(p model.UserPrompt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d.Prompts[p.PromptID] = &p
}

// ResolvePrompt records the operator's response against an already
// registered prompt.
func (s *Session) ResolvePrompt(promptID, response string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.d.Prompts[promptID]
	if !ok {
		return false
	}
	now := time.Now().UTC()
	p.Response = &response
	p.RespondedAt = &now
	return true
}

// SetSynthesis records Phase 4's final Markdown report.
func (s *Session) SetSynthesis(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d.Synthesis = text
}

func (s *Session) GetSynthesis() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.Synthesis
}

// SetCancelled flips the session-scoped cancellation flag checked by the
// orchestrator between phases and steps.
func (s *Session) SetCancelled(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d.Cancelled = v
}

func (s *Session) IsCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.Cancelled
}

// snapshot returns a deep copy of the serializable data, taken under the
// lock, so marshaling can happen without holding it across I/O.
func (s *Session) snapshot() data {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := s.d
	cp.Scratchpad = append([]model.ScratchpadEntry(nil), s.d.Scratchpad...)
	cp.Goals = append([]model.ResearchGoal(nil), s.d.Goals...)
	cp.Plan = append([]model.PlanStep(nil), s.d.Plan...)
	cp.Prompts = make(map[string]*model.UserPrompt, len(s.d.Prompts))
	for k, v := range s.d.Prompts {
		pv := *v
		cp.Prompts[k] = &pv
	}
	return cp
}

// Save writes the session as JSON to <root>/sessions/<session_id>.json
// using the same write-temp-then-rename-then-verify sequence as the
// Result Persister (C6), since session state is as precious as a
// scraping artifact and deserves the same durability guarantee.
func (s *Session) Save(root string) error {
	cp := s.snapshot()
	raw, err := json.MarshalIndent(&cp, "", "  ")
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}

	dir := filepath.Join(root, "sessions")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("session: mkdir: %w", err)
	}
	final := filepath.Join(dir, cp.SessionID+".json")

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("session: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("session: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("session: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("session: close: %w", err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		return fmt.Errorf("session: rename: %w", err)
	}

	readBack, err := os.ReadFile(final)
	if err != nil || len(readBack) != len(raw) {
		return fmt.Errorf("session: read-back verification failed: %w", err)
	}
	return nil
}

// Load reads a previously saved session back from disk.
func Load(root, sessionID string) (*Session, error) {
	path := filepath.Join(root, "sessions", sessionID+".json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("session: read: %w", err)
	}
	var d data
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("session: unmarshal: %w", err)
	}
	return &Session{d: d}, nil
}
