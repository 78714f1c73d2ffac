// Package model holds the data types shared across subsystems.
// Each type's owning component is noted in its doc comment; only the owner
// mutates it, other components hold copies.
package model

import "time"

// LinkKind identifies the kind of source a ScrapingTask targets.
type LinkKind string

const (
	LinkKindVideoTranscript LinkKind = "video-transcript"
	LinkKindVideoComments   LinkKind = "video-comments"
	LinkKindForumThread     LinkKind = "forum-thread"
	LinkKindArticle         LinkKind = "article"
)

// TaskStatus is a ScrapingTask's position in the status DAG:
// Pending → (Processing → (Completed | Failed)) | Cancelled.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskCancelled  TaskStatus = "cancelled"
)

// IsTerminal reports whether status is one of Completed/Failed/Cancelled.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// ScrapingTask is exclusively owned by the Task State Tracker (C2) once
// registered. Fields become immutable after a transition into a terminal
// status.
type ScrapingTask struct {
	TaskID           string
	BatchID          string
	LinkID           string
	URL              string
	LinkKind         LinkKind
	ScraperKind      string
	Priority         int
	CreatedAt        time.Time
	Status           TaskStatus
	AssignedWorkerID string
	StartedAt        *time.Time
	CompletedAt      *time.Time
	Result           string // opaque scrape result summary; full payload lives in the artifact
	Error            string
	ArtifactPath     string
}

// Clone returns a value copy safe to hand to callers outside C2's lock.
func (t *ScrapingTask) Clone() ScrapingTask {
	cp := *t
	if t.StartedAt != nil {
		v := *t.StartedAt
		cp.StartedAt = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		cp.CompletedAt = &v
	}
	return cp
}

// WorkerState is a worker's lifecycle state (scraping or summarization pool).
type WorkerState string

const (
	WorkerIdle       WorkerState = "idle"
	WorkerProcessing WorkerState = "processing"
	WorkerTerminated WorkerState = "terminated"
)

// WorkerHealth is a snapshot of a single worker, returned by pool Health()
// calls for cheap operational visibility.
type WorkerHealth struct {
	WorkerID        string
	State           WorkerState
	CurrentTaskID   string
	TasksCompleted  int
	TasksFailed     int
	LastActivity    time.Time
}

// BatchProgress is computed on read from the current ScrapingTask snapshot
//; no derived counters are stored.
type BatchProgress struct {
	ExpectedTotal    int
	RegisteredCount  int
	Completed        int
	Failed           int
	InProgress       int
	Pending          int
	Cancelled        int
	CompletionRate   float64
	IsComplete       bool
	CanProceed       bool
}

// ArtifactMetadata is the metadata block embedded in every Artifact JSON
// document.
type ArtifactMetadata struct {
	Source            string    `json:"source"`
	ExtractionTime    time.Time `json:"extraction_timestamp"`
	WordCount         int       `json:"word_count"`
	Language          string    `json:"language"`
}

// Artifact is the persisted JSON result of a single scraping task, written
// by the Result Persister (C6) to batches/<batch_id>/<link_id>_<kind>.json.
// Immutable once written.
type Artifact struct {
	BatchID  string           `json:"batch_id"`
	LinkID   string           `json:"link_id"`
	LinkKind LinkKind         `json:"link_kind"`
	URL      string           `json:"url"`
	Content  string           `json:"content"`
	Metadata ArtifactMetadata `json:"metadata"`
}

// Summary is the condensed per-link JSON produced by the Summarization
// Manager (C7), written as a sibling <link_id>_summary.json file.
type Summary struct {
	LinkID            string  `json:"link_id"`
	TranscriptSummary *string `json:"transcript_summary,omitempty"`
	CommentsSummary   *string `json:"comments_summary,omitempty"`
}

// Finding is one structured item inside a ScratchpadEntry's findings block.
type Finding struct {
	Summary          string   `json:"summary"`
	PointsOfInterest []string `json:"points_of_interest"`
	AnalysisDetails  string   `json:"analysis_details,omitempty"`
	Article          string   `json:"article,omitempty"`
}

// SourceRef references an artifact consulted while producing a finding.
type SourceRef struct {
	LinkID       string `json:"link_id"`
	ArtifactPath string `json:"artifact_path"`
}

// ScratchpadEntry is one step's accumulated findings, owned
// exclusively by the Research Session (C8).
type ScratchpadEntry struct {
	StepID     int         `json:"step_id"`
	Findings   Finding     `json:"findings"`
	Insights   string      `json:"insights"`
	Confidence float64     `json:"confidence"`
	Sources    []SourceRef `json:"sources"`
	CreatedAt  time.Time   `json:"created_at"`
}

// PlanStep is one step of the Phase 2 research plan.
type PlanStep struct {
	StepID       int    `json:"step_id"`
	Goal         string `json:"goal"`
	RequiredData string `json:"required_data"`
	Notes        string `json:"notes,omitempty"`
}

// ResearchGoal is one candidate goal surfaced by Phase 1 (Discover).
type ResearchGoal struct {
	GoalText    string `json:"goal_text"`
	Rationale   string `json:"rationale"`
	Feasibility string `json:"feasibility"`
}

// UserPrompt is the single outstanding interactive question a phase may
// pose to the operator. At most one per session.
type UserPrompt struct {
	PromptID    string
	PromptText  string
	Choices     []string
	CreatedAt   time.Time
	Response    *string
	RespondedAt *time.Time
}
