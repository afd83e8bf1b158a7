package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/libelia/libelia/internal/handler"
	appI18n "github.com/libelia/libelia/internal/i18n"
	"github.com/libelia/libelia/internal/jobs"
	"github.com/libelia/libelia/internal/llm"
	"github.com/libelia/libelia/internal/llm/prompts"
	"github.com/libelia/libelia/internal/model"
	"github.com/libelia/libelia/internal/ocr"
	"github.com/libelia/libelia/internal/omr"
	"github.com/libelia/libelia/internal/service"
	"github.com/libelia/libelia/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("error loading .env file", "error", err)
	}
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "libelia",
		Short: "Grades scanned student work with OCR and an LLM",
	}

	serve := serveCmd()
	root.AddCommand(serve, gradeCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `libelia --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLogFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func addDBFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db-driver", string(store.DriverSQLite), "Database driver (sqlite, postgres)")
	f.String("db", "libelia.db", "SQLite database path or Postgres DSN")
}

func addLLMFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("llm-provider", llm.ProviderOpenAI, "LLM provider (openai, mistral, ollama, gemini)")
	f.String("llm-url", "", "OpenAI-compatible API base URL (provider default when empty)")
	f.String("llm-key", "", "API key for the LLM provider (or set LIBELIA_LLM_KEY)")
	f.String("llm-model", "", "LLM model name (provider default when empty)")
	f.String("prompt-variant", string(prompts.PromptStandard), "Grading prompt variant (strict, standard, lenient)")
	f.Float64("approval-percent", model.DefaultApprovalPercent, "Default approval percent when a request declares none")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP grading server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.StringP("lang", "l", appI18n.DefaultLang, "Report language (es, en)")
	f.StringSlice("cors-origins", []string{"*"}, "Allowed CORS origins")
	f.Bool("skip-llm-check", false, "Do not ping the LLM at startup")

	f.String("google-project", "", "Google Cloud project id (Document AI)")
	f.String("google-location", "us", "Document AI location (us, eu)")
	f.String("documentai-processor", "", "Document AI form parser processor id (enables /api/omr)")
	f.String("google-credentials", "", "Path to a Google service account JSON file")
	f.Bool("vision", false, "Enable Google Cloud Vision OCR (/api/ocr)")
	f.Float64("omr-min-confidence", omr.DefaultMinConfidence, "Minimum selection mark confidence")

	f.String("redis-addr", "", "Redis address for the job store (in-memory when empty)")
	f.String("redis-password", "", "Redis password")
	f.Int("redis-db", 0, "Redis database number")
	f.Duration("job-ttl", jobs.DefaultTTL, "How long job results are kept")

	f.Int("batch-chunk-size", 45, "Items per batch chunk")
	f.Int("batch-concurrency", 3, "Chunks per batch wave")
	f.Duration("batch-timeout", 300*time.Second, "Maximum duration of a streamed batch")
	f.Int64("max-upload-bytes", ocr.MaxFileSizeBytes, "Maximum size of an OCR/OMR upload")

	addDBFlags(cmd)
	addLLMFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

func gradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grade",
		Short: "Grade one request file and print the response as JSON",
		RunE:  runGrade,
	}
	f := cmd.Flags()
	f.StringP("input", "i", "-", "Grading request JSON file (- for stdin)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.Bool("save", false, "Store the evaluation in the database")
	addDBFlags(cmd)
	addLLMFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored evaluations as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("subject", "", "Only export evaluations of this subject")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addDBFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("LIBELIA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("libelia")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/libelia")
	v.AddConfigPath("/etc/libelia")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func openStore(v *viper.Viper) (*store.Store, error) {
	db, err := store.Open(store.Driver(strings.ToLower(v.GetString("db-driver"))), v.GetString("db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func llmConfig(v *viper.Viper) llm.Config {
	variant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
	if !prompts.IsValidVariant(variant) {
		slog.Warn("invalid prompt-variant, using standard", "variant", variant)
		variant = string(prompts.PromptStandard)
	}
	return llm.Config{
		Provider: v.GetString("llm-provider"),
		BaseURL:  v.GetString("llm-url"),
		APIKey:   v.GetString("llm-key"),
		Model:    v.GetString("llm-model"),
		Variant:  variant,
	}
}

func closeIfCloser(name string, v any) {
	if c, ok := v.(io.Closer); ok {
		if err := c.Close(); err != nil {
			slog.Warn("close "+name, "error", err)
		}
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	// The LLM is required: without it no submission can be graded.
	llmCfg := llmConfig(v)
	grader, err := llm.NewGrader(ctx, llmCfg)
	if err != nil {
		return fmt.Errorf("create LLM grader: %w", err)
	}
	defer closeIfCloser("LLM client", grader)
	if !v.GetBool("skip-llm-check") {
		if err := grader.Ping(ctx); err != nil {
			return fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "provider", llmCfg.Provider, "model", llmCfg.Model)
	}
	for key, value := range map[string]string{
		store.SettingPromptVariant: llmCfg.Variant,
		store.SettingLLMModel:      llmCfg.Provider + "/" + llmCfg.Model,
	} {
		if err := db.SetSetting(key, value); err != nil {
			return fmt.Errorf("save setting %s: %w", key, err)
		}
	}

	opts := []service.Option{service.WithGrader(grader), service.WithStore(db)}

	if v.GetBool("vision") {
		vp, err := ocr.NewVisionProvider(ctx, v.GetString("google-credentials"))
		if err != nil {
			return fmt.Errorf("create Vision OCR provider: %w", err)
		}
		defer vp.Close()
		opts = append(opts, service.WithOCR(vp))
		slog.Info("Vision OCR enabled")
	} else {
		slog.Warn("Vision OCR disabled, /api/ocr will answer 500")
	}

	if processor := v.GetString("documentai-processor"); processor != "" {
		src, err := omr.NewDocumentAISource(ctx, omr.DocumentAIConfig{
			ProjectID:       v.GetString("google-project"),
			Location:        v.GetString("google-location"),
			ProcessorID:     processor,
			CredentialsFile: v.GetString("google-credentials"),
		})
		if err != nil {
			return fmt.Errorf("create Document AI source: %w", err)
		}
		defer src.Close()
		opts = append(opts, service.WithOMR(omr.NewExtractor(src, v.GetFloat64("omr-min-confidence"))))
		slog.Info("Document AI OMR enabled", "processor", processor)
	} else {
		slog.Warn("Document AI processor not set, /api/omr will answer 500")
	}

	jobStore, err := newJobStore(ctx, v)
	if err != nil {
		return err
	}
	batchTimeout := v.GetDuration("batch-timeout")
	opts = append(opts, service.WithJobs(jobs.NewRunner(jobStore, batchTimeout)))

	appCfg := model.AppConfig{
		Lang:                   lang,
		DefaultApprovalPercent: v.GetFloat64("approval-percent"),
		BatchChunkSize:         v.GetInt("batch-chunk-size"),
		BatchConcurrency:       v.GetInt("batch-concurrency"),
		BatchTimeout:           batchTimeout,
		MaxUploadBytes:         v.GetInt64("max-upload-bytes"),
	}
	svc := service.New(appCfg, opts...)
	h := handler.New(svc, db)
	router := handler.NewRouter(h, handler.RouterConfig{
		Lang:           lang,
		AllowedOrigins: v.GetStringSlice("cors-origins"),
	})

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	slog.Info("starting server",
		"addr", addr,
		"llm_provider", llmCfg.Provider,
		"model", llmCfg.Model,
		"prompt_variant", llmCfg.Variant,
		"db_driver", v.GetString("db-driver"),
		"lang", lang,
		"languages", appI18n.Languages(),
		"batch_max_items", svc.Batch().MaxItems(),
		"batch_timeout", batchTimeout,
	)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newJobStore(ctx context.Context, v *viper.Viper) (jobs.Store, error) {
	ttl := v.GetDuration("job-ttl")
	addr := v.GetString("redis-addr")
	if addr == "" {
		slog.Info("using in-memory job store")
		return jobs.NewMemoryStore(ttl), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: v.GetString("redis-password"),
		DB:       v.GetInt("redis-db"),
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	slog.Info("using redis job store", "addr", addr)
	return jobs.NewRedisStore(client, ttl), nil
}

func openOutput(path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output file: %w", err)
	}
	return f, f.Close, nil
}

func writeIndented(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	w, closeFn, err := openOutput(path)
	if err != nil {
		return err
	}
	defer closeFn()

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)
	return nil
}

func runGrade(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var in io.Reader = os.Stdin
	if p := v.GetString("input"); p != "" && p != "-" {
		f, err := os.Open(p)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		in = f
	}
	var req model.GradingRequest
	if err := json.NewDecoder(in).Decode(&req); err != nil {
		return fmt.Errorf("decode grading request: %w", err)
	}

	opts := []service.Option{}
	if req.LLMResult == nil {
		grader, err := llm.NewGrader(ctx, llmConfig(v))
		if err != nil {
			return fmt.Errorf("create LLM grader: %w", err)
		}
		defer closeIfCloser("LLM client", grader)
		opts = append(opts, service.WithGrader(grader))
	}
	if v.GetBool("save") {
		db, err := openStore(v)
		if err != nil {
			return err
		}
		defer db.Close()
		opts = append(opts, service.WithStore(db))
	}

	svc := service.New(model.AppConfig{DefaultApprovalPercent: v.GetFloat64("approval-percent")}, opts...)
	resp, err := svc.Grade(ctx, req)
	if err != nil {
		return fmt.Errorf("grade: %w", err)
	}
	return writeIndented(v.GetString("output"), resp)
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	export, err := db.ExportEvaluations(v.GetString("subject"))
	if err != nil {
		return fmt.Errorf("export evaluations: %w", err)
	}
	variant, err := db.GetSetting(store.SettingPromptVariant)
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}
	slog.Info("exporting evaluations", "count", export.Count, "subject", export.Subject, "prompt_variant", variant)

	return writeIndented(v.GetString("output"), export)
}
