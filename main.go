package main

import (
	"bufio"
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for migrations
	"go.uber.org/zap"

	"github.com/askdb-inc/askdb-engine/pkg/adapters/datasource"
	_ "github.com/askdb-inc/askdb-engine/pkg/adapters/datasource/mssql"
	_ "github.com/askdb-inc/askdb-engine/pkg/adapters/datasource/postgres"
	"github.com/askdb-inc/askdb-engine/pkg/config"
	"github.com/askdb-inc/askdb-engine/pkg/corpus"
	"github.com/askdb-inc/askdb-engine/pkg/database"
	"github.com/askdb-inc/askdb-engine/pkg/execution"
	"github.com/askdb-inc/askdb-engine/pkg/feedback"
	"github.com/askdb-inc/askdb-engine/pkg/generation"
	"github.com/askdb-inc/askdb-engine/pkg/llm"
	"github.com/askdb-inc/askdb-engine/pkg/logging"
	"github.com/askdb-inc/askdb-engine/pkg/models"
	"github.com/askdb-inc/askdb-engine/pkg/pipeline"
	"github.com/askdb-inc/askdb-engine/pkg/prompt"
	"github.com/askdb-inc/askdb-engine/pkg/repositories"
	"github.com/askdb-inc/askdb-engine/pkg/retrieval"
	"github.com/askdb-inc/askdb-engine/pkg/schema"
	"github.com/askdb-inc/askdb-engine/pkg/sqlcheck"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	seed := flag.Bool("seed", false, "load the seed corpus into the training store and exit")
	question := flag.String("q", "", "ask a single question and exit")
	flag.Parse()

	cfg, err := config.Load(Version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *seed, *question); err != nil {
		logger.Fatal("askdb-engine failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, seed bool, question string) error {
	logger.Info("Starting askdb-engine",
		zap.String("version", cfg.Version),
		zap.String("env", cfg.Env),
		zap.String("target_type", cfg.Target.Type),
		zap.String("llm_provider", cfg.LLM.Provider))

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Store.ConnectionString(),
		MaxConnections: cfg.Store.MaxConnections,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to store database: %w", err)
	}
	defer db.Close()

	if err := migrate(cfg, logger); err != nil {
		return err
	}

	embedder, err := llm.NewClient(&llm.Config{
		Endpoint: cfg.Embedding.EffectiveEndpoint(&cfg.LLM),
		Model:    cfg.Embedding.Model,
		APIKey:   cfg.Embedding.EffectiveAPIKey(&cfg.LLM),
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create embedding client: %w", err)
	}

	repo := repositories.NewTrainingExampleRepository(db)
	store, err := corpus.NewStore(ctx, repo, embedder, cfg.Embedding.Model, logger)
	if err != nil {
		return fmt.Errorf("failed to load training corpus: %w", err)
	}

	if seed {
		seeded, err := corpus.NewSeeder(store, logger).SeedFromFile(ctx, cfg.SeedPath)
		if err != nil {
			return fmt.Errorf("seeding failed: %w", err)
		}
		logger.Info("Seeding complete", zap.Int("examples", seeded))
		return nil
	}

	genClient, err := buildGenerationClient(cfg, embedder, logger)
	if err != nil {
		return err
	}

	connector, err := datasource.Open(ctx, cfg.Target, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to target database: %w", err)
	}
	defer connector.Close() //nolint:errcheck

	catalog := schema.NewCatalog(connector, logger)
	if err := catalog.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to read target schema: %w", err)
	}

	policy := sqlcheck.NewPolicy(cfg.Policy.AllowedStatements)

	var dryRun generation.DryRunner
	if cfg.Generation.DryRun {
		dryRun = connector
	}

	retriever := retrieval.NewEngine(store, schema.NewFragmentSelector(cfg.Retrieval.MaxFragments), cfg.Retrieval, logger)
	composer := prompt.NewComposer(cfg.Generation.PromptBudget, logger)
	validator := generation.NewValidator(policy, dryRun, logger)
	executor := execution.NewAdapter(connector, policy, cfg.Execution, logger)
	engine := generation.NewEngine(genClient, composer, validator, executor,
		cfg.Generation.MaxAttempts, cfg.LLM.Temperature, logger)
	confirmer := feedback.NewService(store, policy, logger)
	summarizer := pipeline.NewSummarizer(genClient, logger)

	pipe := pipeline.New(catalog, retriever, engine, confirmer, summarizer, logger)

	if question != "" {
		session, err := pipe.Ask(ctx, question, nil)
		if err != nil {
			return err
		}
		printSession(session)
		return nil
	}

	return repl(ctx, pipe, logger)
}

// buildGenerationClient selects the provider and wraps it with the per-call
// timeout and the circuit breaker.
func buildGenerationClient(cfg *config.Config, embedder llm.LLMClient, logger *zap.Logger) (llm.LLMClient, error) {
	var client llm.LLMClient
	var err error

	switch cfg.LLM.Provider {
	case "anthropic":
		client, err = llm.NewAnthropicClient(&llm.AnthropicConfig{
			APIKey:    cfg.LLM.APIKey,
			Model:     cfg.LLM.Model,
			MaxTokens: cfg.LLM.MaxTokens,
		}, embedder, logger)
	default:
		client, err = llm.NewClient(&llm.Config{
			Endpoint:  cfg.LLM.Endpoint,
			Model:     cfg.LLM.Model,
			APIKey:    cfg.LLM.APIKey,
			MaxTokens: cfg.LLM.MaxTokens,
		}, logger)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}

	client = llm.NewTimeoutClient(client, cfg.LLM.Timeout())
	return llm.NewBreakerClient(client, llm.DefaultCircuitBreakerConfig()), nil
}

func migrate(cfg *config.Config, logger *zap.Logger) error {
	sqlDB, err := sql.Open("pgx", cfg.Store.ConnectionString())
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer sqlDB.Close() //nolint:errcheck

	if err := database.RunMigrations(sqlDB, cfg.Store.MigrationsPath, logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// repl reads questions from stdin until EOF or interrupt. After a successful
// answer, entering "y" confirms the statement into the training corpus.
func repl(ctx context.Context, pipe pipeline.Pipeline, logger *zap.Logger) error {
	scanner := bufio.NewScanner(os.Stdin)
	var history []prompt.Turn
	var lastSession *models.QuerySession

	fmt.Println("Ask a question about your database (Ctrl-D to quit).")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		if ctx.Err() != nil {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if line == "y" && lastSession != nil && lastSession.Status == models.SessionSucceeded {
			if _, err := pipe.Confirm(ctx, lastSession); err != nil {
				fmt.Printf("Could not save feedback: %v\n", err)
			} else {
				fmt.Println("Saved. Similar questions will use this query as an example.")
			}
			lastSession = nil
			continue
		}

		session, err := pipe.Ask(ctx, line, history)
		if err != nil {
			logger.Error("Pipeline error", zap.Error(err))
			fmt.Printf("Error: %v\n", err)
			continue
		}

		printSession(session)
		lastSession = session

		if session.Status == models.SessionSucceeded {
			history = append(history, prompt.Turn{Question: session.Question, SQL: session.FinalSQL})
			fmt.Println("Was this correct? Enter y to save it as a training example.")
		}
	}

	return scanner.Err()
}

func printSession(session *models.QuerySession) {
	switch session.Status {
	case models.SessionSucceeded:
		fmt.Printf("\nSQL: %s\n", session.FinalSQL)
		printResult(session.Result)
		if session.Summary != "" {
			fmt.Printf("\n%s\n", session.Summary)
		}
	case models.SessionRejected:
		failure := session.Failure
		if failure == nil {
			failure = session.LastFailure()
		}
		switch {
		case failure == nil:
			fmt.Println("Rejected.")
		case failure.Kind == models.FailurePolicyRejection:
			fmt.Printf("Rejected: %s\n", failure.Message)
		default:
			fmt.Printf("Failed: %s\n", failure.Message)
		}
	case models.SessionExhausted:
		fmt.Printf("Could not produce a valid query after %d attempts.\n", len(session.Attempts))
		if failure := session.LastFailure(); failure != nil {
			fmt.Printf("Last failure: %s\n", failure.Message)
		}
	}
}

func printResult(result *models.ResultSet) {
	if result == nil || result.RowCount == 0 {
		fmt.Println("(no rows)")
		return
	}

	names := make([]string, len(result.Columns))
	for i, col := range result.Columns {
		names[i] = col.Name
	}
	fmt.Println(strings.Join(names, " | "))

	const displayLimit = 20
	for i, row := range result.Rows {
		if i == displayLimit {
			fmt.Printf("... (%d more rows)\n", result.RowCount-displayLimit)
			break
		}
		values := make([]string, len(names))
		for j, name := range names {
			values[j] = fmt.Sprintf("%v", row[name])
		}
		fmt.Println(strings.Join(values, " | "))
	}
}
