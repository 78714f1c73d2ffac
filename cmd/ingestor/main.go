// Command ingestor runs the scraping, summarization, and research
// pipeline for one batch of links end to end: flag parsing, godotenv
// bootstrap, structured logging, and signal-driven graceful shutdown.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/codeready-toolchain/ingestor/internal/artifact"
	"github.com/codeready-toolchain/ingestor/internal/config"
	"github.com/codeready-toolchain/ingestor/internal/eventbus"
	"github.com/codeready-toolchain/ingestor/internal/llm"
	"github.com/codeready-toolchain/ingestor/internal/llm/providers/anthropic"
	"github.com/codeready-toolchain/ingestor/internal/model"
	"github.com/codeready-toolchain/ingestor/internal/novelty"
	"github.com/codeready-toolchain/ingestor/internal/research/orchestrator"
	"github.com/codeready-toolchain/ingestor/internal/research/session"
	"github.com/codeready-toolchain/ingestor/internal/scrapers"
	"github.com/codeready-toolchain/ingestor/internal/scraping"
	"github.com/codeready-toolchain/ingestor/internal/summarize"
	"github.com/codeready-toolchain/ingestor/internal/tasks"
)

// manifestLink is one entry of the input batch manifest (the
// caller registers N expected scraping tasks up front).
type manifestLink struct {
	LinkID   string         `json:"link_id"`
	URL      string         `json:"url"`
	LinkKind model.LinkKind `json:"link_kind"`
}

type manifest struct {
	BatchID      string         `json:"batch_id"`
	Links        []manifestLink `json:"links"`
	UserGuidance string         `json:"user_guidance"`
}

func main() {
	manifestPath := flag.String("manifest", "", "path to batch manifest JSON")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, continuing with process environment")
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	cfg := config.FromEnv()

	if *manifestPath == "" {
		log.Error("missing required -manifest flag")
		os.Exit(1)
	}
	raw, err := os.ReadFile(*manifestPath)
	if err != nil {
		log.Error("read manifest", "err", err)
		os.Exit(1)
	}
	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		log.Error("parse manifest", "err", err)
		os.Exit(1)
	}
	if m.BatchID == "" {
		m.BatchID = uuid.NewString()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, m); err != nil {
		log.Error("ingestor exited with error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger, m manifest) error {
	bus, err := eventbus.New(&cfg.EventBus, log)
	if err != nil {
		return err
	}
	defer bus.Close()

	tracker := tasks.NewTracker()
	queue := tasks.NewQueue()
	factory := scrapers.NewFactory()
	persister := artifact.NewPersister(cfg.StateRoot, cfg.Scraping.PersistenceAttempts)

	llmClient := anthropic.New(cfg.AnthropicAPIKey)

	summarizer := summarize.NewManager(&cfg.Summarization, log, bus, persister, summarize.NewLLMSummarizer(llmClient))

	scrapePool := scraping.NewPool(&cfg.Scraping, log, tracker, queue, factory, bus, persister)

	var noveltyStore novelty.Store
	if cfg.QdrantAddr != "" {
		qs, err := novelty.NewQdrantStore(cfg.QdrantAddr, "research_findings", 256)
		if err != nil {
			log.Warn("qdrant unavailable, falling back to in-memory novelty store", "err", err)
			noveltyStore = novelty.NewMemStore()
		} else if err := qs.EnsureCollection(ctx); err != nil {
			log.Warn("qdrant collection setup failed, falling back to in-memory novelty store", "err", err)
			noveltyStore = novelty.NewMemStore()
		} else {
			noveltyStore = qs
		}
	} else {
		noveltyStore = novelty.NewMemStore()
	}
	noveltyFilter := novelty.NewFilter(noveltyStore, novelty.NewHashEmbedder(256), cfg.Research.NoveltyThreshold, log)

	orch := orchestrator.New(cfg, log, bus, llmClient, noveltyFilter, persister)

	sub, err := bus.Subscribe(m.BatchID)
	if err != nil {
		return err
	}
	defer sub.Close()
	go forwardScrapeCompletions(sub, summarizer, persister, log)

	scrapePool.Start(ctx)
	summarizer.Start(ctx)
	defer scrapePool.Stop()
	defer summarizer.Stop()

	registerTasks(tracker, queue, m)

	bp, ok := scrapePool.ConfirmAllComplete(ctx, m.BatchID, len(m.Links))
	log.Info("scraping complete", "batch_id", m.BatchID, "completion_rate", bp.CompletionRate, "confirmed", ok)

	waitForSummarization(ctx, summarizer, m.BatchID, cfg.Summarization.CompletionWait)

	sess := session.New(uuid.NewString(), m.BatchID)
	sess.SetUserGuidance(m.UserGuidance)
	report, err := orch.RunSession(ctx, sess)
	if err != nil {
		return err
	}

	log.Info("research complete", "session_id", sess.SessionID(), "report_len", len(report))
	return nil
}

// forwardScrapeCompletions reads scrape_complete events off sub and hands
// each successful one to the Summarization Manager (C7), loading the
// persisted artifact by the path the event carries. Runs until sub is
// closed.
func forwardScrapeCompletions(sub *eventbus.Subscription, summarizer *summarize.Manager, persist *artifact.Persister, log *slog.Logger) {
	for ev := range sub.C {
		if ev.Type != eventbus.KindScrapeComplete {
			continue
		}
		var payload eventbus.ScrapeCompletePayload
		if err := decodeInto(ev.Payload, &payload); err != nil {
			log.Warn("summarization subscriber: decode scrape_complete", "err", err)
			continue
		}
		if !payload.Success || payload.ArtifactPath == "" {
			continue
		}
		art, err := persist.LoadArtifact(payload.ArtifactPath)
		if err != nil {
			log.Warn("summarization subscriber: load artifact", "path", payload.ArtifactPath, "err", err)
			continue
		}
		summarizer.OnScrapeComplete(ev.BatchID, payload.LinkID, art)
	}
}

// decodeInto round-trips an Event's generic Payload (decoded by the bus as
// a map[string]interface{}) back into a concrete payload struct.
func decodeInto(payload any, v any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func registerTasks(tracker *tasks.Tracker, queue *tasks.Queue, m manifest) {
	for i, link := range m.Links {
		taskID := uuid.NewString()
		task := model.ScrapingTask{
			TaskID:      taskID,
			BatchID:     m.BatchID,
			LinkID:      link.LinkID,
			URL:         link.URL,
			LinkKind:    link.LinkKind,
			ScraperKind: string(link.LinkKind),
			Priority:    i,
		}
		if err := tracker.Register(task); err != nil {
			continue
		}
		queue.Enqueue(taskID)
	}
}

func waitForSummarization(ctx context.Context, m *summarize.Manager, batchID string, wait time.Duration) {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if m.IsComplete(batchID) {
			return
		}
		if time.Now().After(deadline) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

var _ llm.Client = (*anthropic.Provider)(nil)
