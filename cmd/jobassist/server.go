package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/jobassist/internal/api"
	"github.com/kalambet/jobassist/internal/config"
	"github.com/kalambet/jobassist/internal/conversation"
	"github.com/kalambet/jobassist/internal/engine"
	"github.com/kalambet/jobassist/internal/ingest"
	"github.com/kalambet/jobassist/internal/jobs"
	"github.com/kalambet/jobassist/internal/language"
	"github.com/kalambet/jobassist/internal/profile"
	"github.com/kalambet/jobassist/internal/retrieval"
	"github.com/kalambet/jobassist/internal/storage"
	"github.com/kalambet/jobassist/internal/storage/postgres"
	"github.com/kalambet/jobassist/internal/whatsapp"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the jobassist server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running jobassist server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show jobassist system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "jobassist.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func setupLogging(cfg config.Config) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()})))
}

// stack is the assembled application shared by the HTTP server and the
// stdio MCP server.
type stack struct {
	store      storage.Repository
	vectors    retrieval.VectorStore
	catalog    *jobs.Directory
	profiles   *profile.Manager
	conv       *conversation.Engine
	worker     *ingest.Worker
	langStatus string
}

func (s *stack) Close() error {
	return s.store.Close()
}

// openStore opens the configured backend along with its vector index.
func openStore(ctx context.Context, cfg config.Config) (storage.Repository, retrieval.VectorStore, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		pg, err := postgres.Open(ctx, cfg.Storage.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("opening postgres: %w", err)
		}
		return pg, pg.Vectors(), nil
	default:
		s, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("opening storage: %w", err)
		}
		return s, retrieval.NewSQLiteStore(s.DB()), nil
	}
}

// openLanguage connects the configured model backend. When it is disabled
// or unreachable the assistant runs on its rule-based fallbacks and a nil
// engine is returned.
func openLanguage(ctx context.Context, cfg config.Config, progress io.Writer) (engine.Engine, language.Capability, string) {
	lc := cfg.Language
	baseURL := cfg.Ollama.BaseURL
	if lc.BaseURL != "" && lc.Provider != engine.ProviderOpenAI {
		baseURL = lc.BaseURL
	}
	eng, err := engine.Detect(ctx, engine.DetectConfig{
		Provider:      lc.Provider,
		OllamaBaseURL: baseURL,
		OpenAIBaseURL: lc.BaseURL,
		OpenAIAPIKey:  lc.OpenAIAPIKey,
		GeminiAPIKey:  lc.GeminiAPIKey,
	})
	if errors.Is(err, engine.ErrDisabled) {
		slog.Info("language model disabled, using rule-based replies", "provider", lc.Provider)
		return nil, language.Unavailable{}, "disabled"
	}
	if err != nil {
		slog.Warn("language model unavailable, using rule-based replies", "error", err)
		return nil, language.Unavailable{}, "error: " + err.Error()
	}

	if err := engine.EnsureReady(ctx, eng, lc.ChatModel, lc.EmbedModel, progress); err != nil {
		slog.Warn("language model not ready, using rule-based replies", "provider", lc.Provider, "error", err)
		return nil, language.Unavailable{}, "not ready"
	}

	llm := language.NewLLM(eng, language.Config{
		ChatModel:  lc.ChatModel,
		EmbedModel: lc.EmbedModel,
		Timeout:    lc.Timeout(),
	})
	return eng, llm, fmt.Sprintf("%s (%s)", lc.Provider, lc.ChatModel)
}

func openStack(ctx context.Context, cfg config.Config, progress io.Writer) (*stack, error) {
	store, vectors, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	eng, lang, langStatus := openLanguage(ctx, cfg, progress)

	// matcher stays a nil interface when nothing can embed queries.
	var matcher jobs.Matcher
	var worker *ingest.Worker
	if eng != nil {
		matcher = retrieval.NewRetriever(vectors, store, cfg.Search.TopK, float32(cfg.Search.Threshold))
		indexer := retrieval.NewIndexer(eng, cfg.Language.EmbedModel, vectors, cfg.Ingest.Concurrency)
		worker = ingest.NewWorker(store, indexer, cfg.Ingest.PollInterval())
	}

	catalog := jobs.NewDirectory(store, matcher, 0)
	if cfg.Storage.SeedJobs {
		n, err := catalog.SeedIfEmpty(ctx)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("seeding jobs: %w", err)
		}
		if n > 0 {
			slog.Info("seeded job catalog", "count", n)
		}
	}

	profiles := profile.NewManager(store)
	conv := conversation.New(conversation.Deps{
		Profiles:     profiles,
		Messages:     store,
		Jobs:         catalog,
		Applications: store,
		Language:     lang,
	}, conversation.WithHistoryLimit(cfg.Search.HistoryLimit))

	return &stack{
		store:      store,
		vectors:    vectors,
		catalog:    catalog,
		profiles:   profiles,
		conv:       conv,
		worker:     worker,
		langStatus: langStatus,
	}, nil
}

// startIndexing runs the embedding worker and queues postings that have
// no vector yet. It is a no-op without a language backend.
func (s *stack) startIndexing(ctx context.Context) {
	if s.worker == nil {
		return
	}
	go s.worker.Run(ctx)
	go func() {
		n, err := s.worker.Backfill(ctx, s.vectors)
		if err != nil {
			slog.Warn("vector backfill failed", "error", err)
			return
		}
		if n > 0 {
			slog.Info("indexed postings missing vectors", "count", n)
		}
	}()
}

func newSender(cfg config.Config) api.Sender {
	wc := cfg.WhatsApp
	if wc.PhoneNumberID == "" || wc.AccessToken == "" {
		slog.Warn("WhatsApp delivery not configured; webhook replies are returned in the response body only")
		return nil
	}
	return whatsapp.NewClient(wc.APIBaseURL, wc.PhoneNumberID, wc.AccessToken)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "jobassist version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg)

	apiToken, err := config.GetAPIToken(config.NewSecretStore())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")
	if cfg.WhatsApp.VerifyToken == "" {
		slog.Warn("whatsapp.verify_token is not set; webhook verification will fail")
	}

	// Refuse to start twice.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get("http://" + cfg.Server.Addr() + "/health"); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("jobassist is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("jobassist is already running on %s", cfg.Server.Addr())
		return fmt.Errorf("server already running on %s", cfg.Server.Addr())
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStack(ctx, cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()
	st.startIndexing(ctx)

	handler := api.NewRouter(
		api.WebhookDeps{
			Conversation: st.conv,
			Profiles:     st.profiles,
			Sender:       newSender(cfg),
			VerifyToken:  cfg.WhatsApp.VerifyToken,
		},
		api.AppDeps{
			Conversation: st.conv,
			Profiles:     st.profiles,
			History:      st.store,
			Catalog:      st.catalog,
			Token:        apiToken,
		},
	)

	addr := cfg.Server.Addr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "jobassist listening on %s (language: %s)\n", addr, st.langStatus)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("jobassist is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop jobassist (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to jobassist (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := "http://" + cfg.Server.Addr()
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on %s", cfg.Server.Addr())
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Language", "%s", cfg.Language.Provider)
	printStatus("Chat model", "%s", cfg.Language.ChatModel)
	printStatus("Embed model", "%s", cfg.Language.EmbedModel)
	if cfg.Language.Provider == engine.ProviderOllama {
		if r, err := client.Get(cfg.Ollama.BaseURL + "/api/version"); err != nil {
			printStatus("Ollama", "not running")
		} else {
			r.Body.Close()
			printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
		}
	}

	whatsappState := "not configured"
	if cfg.WhatsApp.PhoneNumberID != "" && cfg.WhatsApp.AccessToken != "" {
		whatsappState = "phone number " + cfg.WhatsApp.PhoneNumberID
	}
	printStatus("WhatsApp", "%s", whatsappState)

	apiToken, tokenErr := config.GetAPIToken(config.NewSecretStore())
	if tokenErr == nil && running {
		jobsResp, err := apiGet(client, serverURL+"/v1/jobs?limit=1", apiToken)
		if err == nil {
			var list struct {
				Total int `json:"total"`
			}
			if decodeJSON(jobsResp, &list) == nil {
				printStatus("Jobs", "%d", list.Total)
			}
		}
	}

	printStatus("Storage", "%s", cfg.Storage.Driver)
	if cfg.Storage.Driver == "sqlite" {
		printStatus("Data dir", "%s", cfg.Storage.DataDir)
	}
	return nil
}

func apiGet(client *http.Client, url, token string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return client.Do(req)
}
