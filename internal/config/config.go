// Package config assembles the immutable configuration surface once at
// startup and passes it by reference, following a single-struct-built-
// at-startup idiom.
package config

import (
	"os"
	"strconv"
	"time"
)

// ScrapingConfig controls the scraping worker pool (C5).
type ScrapingConfig struct {
	WorkerPoolSize        int           // scraping.worker_pool_size (8)
	QueueCheckInterval    time.Duration // scraping.queue_check_interval_ms (100ms)
	PersistenceAttempts   int           // scraping.retry.persistence_attempts (3)
	ConfirmCompleteWait   time.Duration // confirm_all_complete timeout (30s)
}

// SummarizationConfig controls the summarization worker pool (C7).
type SummarizationConfig struct {
	WorkerPoolSize   int           // summarization.worker_pool_size (3)
	SettleDelay      time.Duration // summarization.settle_delay_ms (200ms)
	CompletionWait   time.Duration // wait_for_completion default (60s)
}

// ResearchConfig controls the research orchestrator (C9-C12).
type ResearchConfig struct {
	PageWindowSizeChars int           // research.page_window_size_chars (~20000)
	NoveltyThreshold    float64       // research.novelty_threshold (0.85)
	HeartbeatSeconds    time.Duration // research.heartbeat_seconds (15s)
	StreamIncludeUsage  bool          // research.stream.include_usage (true)
}

// EventBusConfig controls the event bus (C1).
type EventBusConfig struct {
	SubscriberBuffer int // event_bus.subscriber_buffer (1024)
}

// Config is the umbrella, immutable configuration object built once at
// startup and threaded through every component by reference.
type Config struct {
	StateRoot      string // root directory for batches/ and sessions/
	Scraping       ScrapingConfig
	Summarization  SummarizationConfig
	Research       ResearchConfig
	EventBus       EventBusConfig
	AnthropicAPIKey string
	QdrantAddr      string // host:port, empty selects the in-memory novelty store instead of Qdrant
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		StateRoot: "./data",
		Scraping: ScrapingConfig{
			WorkerPoolSize:      8,
			QueueCheckInterval:  100 * time.Millisecond,
			PersistenceAttempts: 3,
			ConfirmCompleteWait: 30 * time.Second,
		},
		Summarization: SummarizationConfig{
			WorkerPoolSize: 3,
			SettleDelay:    200 * time.Millisecond,
			CompletionWait: 60 * time.Second,
		},
		Research: ResearchConfig{
			PageWindowSizeChars: 20000,
			NoveltyThreshold:    0.85,
			HeartbeatSeconds:    15 * time.Second,
			StreamIncludeUsage:  true,
		},
		EventBus: EventBusConfig{
			SubscriberBuffer: 1024,
		},
	}
}

// FromEnv overlays environment variables onto the defaults. Config-file
// parsing is explicitly out of scope; this follows a plain
// getEnv-with-default helper for the keys read below. ConfirmCompleteWait,
// CompletionWait, HeartbeatSeconds and StreamIncludeUsage are not read
// from the environment and keep their defaults.
func FromEnv() *Config {
	cfg := Default()

	if v := os.Getenv("STATE_ROOT"); v != "" {
		cfg.StateRoot = v
	}
	if v := envInt("SCRAPING_WORKER_POOL_SIZE"); v != 0 {
		cfg.Scraping.WorkerPoolSize = v
	}
	if v := envDuration("SCRAPING_QUEUE_CHECK_INTERVAL_MS"); v != 0 {
		cfg.Scraping.QueueCheckInterval = v
	}
	if v := envInt("SCRAPING_PERSISTENCE_ATTEMPTS"); v != 0 {
		cfg.Scraping.PersistenceAttempts = v
	}
	if v := envInt("SUMMARIZATION_WORKER_POOL_SIZE"); v != 0 {
		cfg.Summarization.WorkerPoolSize = v
	}
	if v := envDuration("SUMMARIZATION_SETTLE_DELAY_MS"); v != 0 {
		cfg.Summarization.SettleDelay = v
	}
	if v := envInt("RESEARCH_PAGE_WINDOW_SIZE_CHARS"); v != 0 {
		cfg.Research.PageWindowSizeChars = v
	}
	if v := envFloat("RESEARCH_NOVELTY_THRESHOLD"); v != 0 {
		cfg.Research.NoveltyThreshold = v
	}
	if v := envInt("EVENT_BUS_SUBSCRIBER_BUFFER"); v != 0 {
		cfg.EventBus.SubscriberBuffer = v
	}
	cfg.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	cfg.QdrantAddr = os.Getenv("QDRANT_ADDR")

	return cfg
}

func envInt(key string) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return 0
	}
	return v
}

func envFloat(key string) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return 0
	}
	return v
}

func envDuration(keyMillis string) time.Duration {
	v := envInt(keyMillis)
	if v == 0 {
		return 0
	}
	return time.Duration(v) * time.Millisecond
}
