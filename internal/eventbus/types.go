package eventbus

import "time"

// Kind identifies an Event's payload shape.
type Kind string

const (
	KindScrapingStatus       Kind = "scraping_status"
	KindScrapeProgress       Kind = "scrape_progress"
	KindScrapeComplete       Kind = "scrape_complete"
	KindAllScrapingComplete  Kind = "all_scraping_complete"
	KindSummaryProgress      Kind = "summary_progress"
	KindSummaryComplete      Kind = "summary_complete"
	KindResearchPhaseChange  Kind = "research_phase_change"
	KindResearchStreamToken  Kind = "research_stream_token"
	KindResearchStructured   Kind = "research_stream_structured"
	KindUserInputRequired    Kind = "user_input_required"
	KindWorkflowProgress     Kind = "workflow_progress"
	KindError                Kind = "error"
)

// Event is the tagged union published on the bus. Payload is
// one of the Xxx structs below, matched against Kind by the receiver.
type Event struct {
	Type      Kind      `json:"type"`
	BatchID   string    `json:"batch_id"`
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

type ScrapingStatusPayload struct {
	ExpectedTotal  int     `json:"expected_total"`
	Registered     int     `json:"registered"`
	Completed      int     `json:"completed"`
	Failed         int     `json:"failed"`
	InProgress     int     `json:"in_progress"`
	Pending        int     `json:"pending"`
	CompletionRate float64 `json:"completion_rate"`
	IsComplete     bool    `json:"is_complete"`
	CanProceed     bool    `json:"can_proceed"`
}

type ScrapeProgressPayload struct {
	LinkID   string  `json:"link_id"`
	Stage    string  `json:"stage"`
	Progress float64 `json:"progress"`
	Message  string  `json:"message,omitempty"`
}

type ScrapeCompletePayload struct {
	LinkID       string `json:"link_id"`
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
	ArtifactPath string `json:"artifact_path,omitempty"`
}

type AllScrapingCompletePayload struct {
	CompletionRate float64 `json:"completion_rate"`
	Registered     int     `json:"registered"`
	ExpectedTotal  int     `json:"expected_total"`
}

type SummaryProgressPayload struct {
	LinkID   string  `json:"link_id"`
	Stage    string  `json:"stage"`
	Progress float64 `json:"progress"`
}

type SummaryCompletePayload struct {
	LinkID  string `json:"link_id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type ResearchPhaseChangePayload struct {
	Phase     string `json:"phase"` // "0.5".."4"
	PhaseName string `json:"phase_name"`
	Entering  bool   `json:"entering"`
}

type ResearchStreamTokenPayload struct {
	Phase    string `json:"phase"`
	Fragment string `json:"fragment"`
}

type ResearchStreamStructuredPayload struct {
	Phase  string `json:"phase"`
	Object any    `json:"object"`
}

type UserInputRequiredPayload struct {
	PromptID   string   `json:"prompt_id"`
	PromptText string   `json:"prompt_text"`
	Choices    []string `json:"choices,omitempty"`
}

type WorkflowProgressPayload struct {
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

type ErrorPayload struct {
	Where   string `json:"where"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
