package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/gordonmeng2021/Email-AI/internal/ai"
	"github.com/gordonmeng2021/Email-AI/internal/auth"
	"github.com/gordonmeng2021/Email-AI/internal/config"
	"github.com/gordonmeng2021/Email-AI/internal/dedup"
	"github.com/gordonmeng2021/Email-AI/internal/events"
	"github.com/gordonmeng2021/Email-AI/internal/mail"
	"github.com/gordonmeng2021/Email-AI/internal/pipeline"
	"github.com/gordonmeng2021/Email-AI/internal/providers/gmail"
	"github.com/gordonmeng2021/Email-AI/internal/providers/outlook"
	"github.com/gordonmeng2021/Email-AI/internal/state"
	"github.com/gordonmeng2021/Email-AI/internal/stats"
	emailsync "github.com/gordonmeng2021/Email-AI/internal/sync"
)

type LabelRequest struct {
	Name    string `json:"name" binding:"required"`
	Prompt  string `json:"prompt" binding:"required"`
	Enabled *bool  `json:"enabled"`
}

func main() {
	cfgPath := os.Getenv("EMAIL_AI_CONFIG")
	if cfgPath == "" {
		cfgPath = config.DefaultConfigPath()
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := state.Open(filepath.Join(cfg.DataDir, "state.db"))
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	mailbox, err := buildMailbox(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}

	aiClient := ai.NewClient(ctx, ai.Options{
		RemoteBaseURL: cfg.AI.RemoteBaseURL,
		APIKey:        cfg.AI.APIKey,
		Model:         cfg.AI.Model,
		MaxTokens:     cfg.AI.MaxTokens,
		LocalBaseURL:  cfg.AI.LocalBaseURL,
		LocalModel:    cfg.AI.LocalModel,
	})

	processedIDs, err := store.LoadProcessedIDs(ctx)
	if err != nil {
		log.Fatal(err)
	}
	dedupSet := dedup.New(cfg.Settings.DedupCapacity, store)
	dedupSet.Load(processedIDs)

	aggregator := stats.New(store)

	processor := &pipeline.Processor{
		Summarizer: aiClient,
		Classifier: aiClient,
		Matcher:    aiClient,
		Labels:     store,
		Mailbox:    mailbox,
		Drafts: &pipeline.DraftPipeline{
			Generator:         aiClient,
			Rewriter:          aiClient,
			Translator:        aiClient,
			Proofreader:       aiClient,
			Mailbox:           mailbox,
			Tone:              cfg.Settings.DefaultTone,
			EnableTranslation: cfg.Settings.EnableTranslation,
		},
		AutoApplyLabels: cfg.Settings.AutoApplyLabels,
		AutoDraft:       cfg.Settings.AutoDraft,
	}

	controller := &emailsync.Controller{
		Mailbox:     mailbox,
		Processor:   processor,
		Dedup:       dedupSet,
		Stats:       aggregator,
		Store:       store,
		AutoSync:    cfg.Settings.AutoSync,
		MaxMessages: cfg.Settings.MaxMessagesPerSync,
	}

	interval := time.Duration(cfg.Settings.SyncIntervalSec) * time.Second
	runner := &emailsync.Runner{
		Controller:   controller,
		InitialDelay: interval,
		Interval:     interval,
	}
	go runner.Run(ctx)

	// Events are written to the outbox regardless; the dispatcher only
	// runs when NATS is reachable, and catches up once it is restarted.
	if publisher, err := events.NewPublisher(cfg.NATSURL); err != nil {
		log.Printf("nats unavailable, events stay queued in outbox: %v", err)
	} else {
		defer publisher.Close()
		if err := publisher.EnsureStream(ctx); err != nil {
			log.Printf("ensure stream: %v", err)
		}
		dispatcher := &events.Dispatcher{Store: store, Publisher: publisher}
		go dispatcher.Run(ctx)
	}

	r := gin.Default()

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "ai_backend": aiClient.Backend()})
	})

	api := r.Group("/")
	if cfg.JWKSURL != "" {
		verifier, err := auth.NewJWTVerifier(cfg.JWKSURL)
		if err != nil {
			log.Fatal(err)
		}
		api.Use(authMiddleware(verifier))
	}

	api.POST("/sync", func(c *gin.Context) {
		report := controller.RunCycle(c.Request.Context())
		if report.Err != "" {
			c.JSON(http.StatusBadGateway, report)
			return
		}
		c.JSON(http.StatusOK, report)
	})

	api.POST("/sync/force", func(c *gin.Context) {
		report := controller.ForceSync(c.Request.Context())
		if report.Err != "" {
			c.JSON(http.StatusBadGateway, report)
			return
		}
		c.JSON(http.StatusOK, report)
	})

	api.POST("/messages/:id/process", func(c *gin.Context) {
		result, skipped, err := controller.ProcessOne(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		if skipped {
			c.JSON(http.StatusOK, gin.H{"skipped": "already_processed", "message_id": result.MessageID})
			return
		}
		c.JSON(http.StatusOK, result)
	})

	api.GET("/status", func(c *gin.Context) {
		status, err := controller.CurrentStatus(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, status)
	})

	api.GET("/stats", func(c *gin.Context) {
		snapshot, err := aggregator.Snapshot(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		lastSync, err := store.LastSyncAt(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"statistics": snapshot, "last_sync_at": lastSync})
	})

	api.GET("/labels", func(c *gin.Context) {
		labels, err := store.ListCustomLabels(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, labels)
	})

	api.POST("/labels", func(c *gin.Context) {
		var req LabelRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		label := ai.CustomLabel{
			ID:      uuid.NewString(),
			Name:    req.Name,
			Prompt:  req.Prompt,
			Enabled: req.Enabled == nil || *req.Enabled,
		}
		if err := store.UpsertCustomLabel(c.Request.Context(), label); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, label)
	})

	api.DELETE("/labels/:id", func(c *gin.Context) {
		if err := store.DeleteCustomLabel(c.Request.Context(), c.Param("id")); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	log.Fatal(r.Run(cfg.ListenAddr))
}

// buildMailbox selects the configured provider and authenticates it
// with a token fetched from the auth service.
func buildMailbox(ctx context.Context, cfg *config.Config) (mail.Mailbox, error) {
	tokens := auth.NewTokenClient(cfg.Provider.AuthBaseURL)

	switch cfg.Provider.Name {
	case "google":
		tok, err := tokens.GetToken(ctx, cfg.Provider.UserJWT, auth.ProviderGoogle)
		if err != nil {
			return nil, fmt.Errorf("get token: %w", err)
		}
		return gmail.New(ctx, tok)
	case "microsoft":
		tok, err := tokens.GetToken(ctx, cfg.Provider.UserJWT, auth.ProviderMicrosoft)
		if err != nil {
			return nil, fmt.Errorf("get token: %w", err)
		}
		return outlook.New(ctx, tok, cfg.Provider.UserID)
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider.Name)
	}
}

func authMiddleware(verifier *auth.JWTVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := verifier.UserFromRequest(c.Request)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			c.Abort()
			return
		}
		c.Set("user_id", user.ID)
		c.Set("user_email", user.Email)
		c.Next()
	}
}
