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
	"text/tabwriter"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pavelanni/essayeval/internal/handler"
	appI18n "github.com/pavelanni/essayeval/internal/i18n"
	"github.com/pavelanni/essayeval/internal/model"
	"github.com/pavelanni/essayeval/internal/store"
)

func main() {
	// ESSAYEVAL_* variables may also come from a local .env file.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("error reading .env file", "error", err)
	}
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "essayeval",
		Short: "Multi-agent evaluation of written exam answers",
	}

	serve := serveCmd()
	root.AddCommand(serve, evaluateCmd(), exportCmd(), historyCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `essayeval --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLogFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	f.String("log-file", "", "Also write logs to this file, rotated by size")
	f.Int("log-max-size", 100, "Maximum log file size in megabytes before rotation")
}

func addStoreFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("store", "sqlite", "Result store (sqlite, mongo)")
	f.String("db", "essayeval.db", "SQLite database path")
	f.String("mongo-uri", "mongodb://localhost:27017", "MongoDB connection URI")
	f.String("mongo-db", "essayeval", "MongoDB database name")
}

func addPipelineFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("llm-kind", "openai", "Default backend kind (openai, gemini)")
	f.String("llm-url", "http://localhost:11434/v1", "Backend API base URL")
	f.String("llm-key", "ollama", "API key for the default backend")
	f.String("llm-model", "llama3.2", "Default model name")
	f.Float64("llm-rate-limit", 0, "Requests per second to the default backend (0 = unlimited)")
	f.Int("llm-burst", 3, "Rate limiter burst size")
	f.Int64("llm-max-in-flight", 0, "Concurrent calls to the default backend (0 = unbounded)")
	f.Duration("agent-timeout", 45*time.Second, "Per-agent call timeout")
	f.Float64("temperature", 0.3, "Sampling temperature for agent calls")
	f.Int("max-tokens", 1000, "Completion token limit for agent calls")
	f.Int("feedback-cap", 5, "Maximum items per feedback list (3-5)")
	f.Bool("skip-ping", false, "Do not check backend endpoints at startup")
	f.StringP("lang", "l", "en", "Message language (en, ru)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP evaluation server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("redis-addr", "", "Redis address for the result cache (empty = in-process cache)")
	f.String("redis-password", "", "Redis password")
	f.Int("redis-db", 0, "Redis database number")
	f.Duration("cache-ttl", 10*time.Minute, "Result cache TTL")
	f.Int("cache-size", 1000, "Maximum entries in the in-process cache")
	f.Duration("shutdown-timeout", 30*time.Second, "Time allowed for in-flight requests on shutdown")
	addPipelineFlags(cmd)
	addStoreFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

func evaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate [submission.json]",
		Short: "Evaluate one submission read from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runEvaluate,
	}
	cmd.Flags().Bool("save", true, "Store the result")
	addPipelineFlags(cmd)
	addStoreFlags(cmd)
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
	f.String("exam-type", "", "Only export this exam type")
	f.String("subject", "", "Only export this subject")
	f.Int("limit", store.MaxListLimit, "Maximum number of results")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.Bool("since-last", false, "Only export evaluations created after the previous export (sqlite store)")
	addStoreFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored evaluations, newest first",
		RunE:  runHistory,
	}
	f := cmd.Flags()
	f.String("exam-type", "", "Only list this exam type")
	f.String("subject", "", "Only list this subject")
	f.Int("limit", store.DefaultListLimit, "Maximum number of rows")
	f.StringP("lang", "l", "en", "Message language (en, ru)")
	addStoreFlags(cmd)
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

	var out io.Writer = os.Stderr
	if path := v.GetString("log-file"); path != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   path,
			MaxSize:    v.GetInt("log-max-size"),
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		})
	}

	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(out, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(out, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("ESSAYEVAL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("essayeval")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/essayeval")
	v.AddConfigPath("/etc/essayeval")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	repo, err := openRepository(ctx, v)
	if err != nil {
		return err
	}
	defer repo.Close()

	p, err := buildPipeline(ctx, v, repo)
	if err != nil {
		return err
	}

	resultCache, closeCache, err := openCache(ctx, v)
	if err != nil {
		return err
	}
	defer closeCache()

	h, err := handler.New(p.eval, repo, resultCache)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("starting server",
		"addr", addr,
		"store", v.GetString("store"),
		"backends", p.backendNames(),
		"lang", lang,
		"feedback_cap", p.engine.FeedbackCap(),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case sig := <-quit:
		slog.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), v.GetDuration("shutdown-timeout"))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	sub, err := readSubmission(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	var repo store.Repository
	if v.GetBool("save") {
		repo, err = openRepository(ctx, v)
		if err != nil {
			return err
		}
		defer repo.Close()
	}

	p, err := buildPipeline(ctx, v, repo)
	if err != nil {
		return err
	}

	res, err := p.eval.EvaluateWriting(ctx, sub)
	if err != nil {
		return err
	}
	return writeJSONOutput(cmd.OutOrStdout(), res)
}

func readSubmission(stdin io.Reader, args []string) (model.Submission, error) {
	var (
		data []byte
		err  error
	)
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return model.Submission{}, fmt.Errorf("read submission: %w", err)
	}

	var sub model.Submission
	if err := json.Unmarshal(data, &sub); err != nil {
		return model.Submission{}, fmt.Errorf("parse submission: %w", err)
	}
	return sub, nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	repo, err := openRepository(ctx, v)
	if err != nil {
		return err
	}
	defer repo.Close()

	export, err := store.Export(ctx, repo, historyFilter(v))
	if err != nil {
		return fmt.Errorf("export evaluations: %w", err)
	}

	db, isSQLite := repo.(*store.Store)
	if isSQLite {
		prev, err := db.LastExport(ctx)
		if err != nil {
			return fmt.Errorf("read previous export time: %w", err)
		}
		total, err := db.Count(ctx)
		if err != nil {
			return fmt.Errorf("count evaluations: %w", err)
		}
		slog.Info("exporting evaluations", "stored", total, "previous_export", prev)
		if v.GetBool("since-last") {
			export = exportedSince(export, prev)
		}
	} else if v.GetBool("since-last") {
		slog.Warn("--since-last needs the sqlite store, exporting everything")
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if err := writeJSONOutput(w, export); err != nil {
		return err
	}

	if isSQLite {
		if err := db.MarkExported(ctx, export.ExportedAt); err != nil {
			slog.Warn("failed to record export time", "error", err)
		}
	}
	slog.Info("exported evaluations", "count", export.Count)
	return nil
}

// exportedSince keeps the results created after prev. A zero prev keeps everything.
func exportedSince(export model.HistoryExport, prev time.Time) model.HistoryExport {
	if prev.IsZero() {
		return export
	}
	kept := make([]model.EvaluationResult, 0, len(export.Results))
	for _, r := range export.Results {
		if r.CreatedAt.After(prev) {
			kept = append(kept, r)
		}
	}
	export.Results = kept
	export.Count = len(kept)
	return export
}

func runHistory(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	ctx = appI18n.WithLocalizer(ctx, appI18n.NewLocalizer(lang))

	repo, err := openRepository(ctx, v)
	if err != nil {
		return err
	}
	defer repo.Close()

	list, err := repo.List(ctx, historyFilter(v))
	if err != nil {
		return fmt.Errorf("list evaluations: %w", err)
	}
	return writeHistory(ctx, cmd.OutOrStdout(), list)
}

func writeHistory(ctx context.Context, out io.Writer, list []model.EvaluationSummary) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEXAM TYPE\tSUBJECT\tSCORE\tCREATED")
	for _, s := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			s.ID, dash(s.ExamType), dash(s.Subject), s.OverallScore, s.CreatedAt.Local().Format(time.DateTime))
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	_, err := fmt.Fprintln(out, appI18n.Tp(ctx, "EvaluationsListed", len(list)))
	return err
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func historyFilter(v *viper.Viper) model.HistoryFilter {
	return model.HistoryFilter{
		ExamType: strings.TrimSpace(v.GetString("exam-type")),
		Subject:  strings.TrimSpace(v.GetString("subject")),
		Limit:    v.GetInt("limit"),
	}
}

func writeJSONOutput(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)
	return nil
}
