// Package servecmder provides the serve command that runs the parlor HTTP
// server.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/parlor/api"
	"github.com/papercomputeco/parlor/pkg/agent"
	"github.com/papercomputeco/parlor/pkg/agent/factory"
	"github.com/papercomputeco/parlor/pkg/config"
	"github.com/papercomputeco/parlor/pkg/credentials"
	"github.com/papercomputeco/parlor/pkg/eventstream"
	"github.com/papercomputeco/parlor/pkg/eventstream/kafka"
	"github.com/papercomputeco/parlor/pkg/eventstream/nop"
	"github.com/papercomputeco/parlor/pkg/logger"
	"github.com/papercomputeco/parlor/pkg/pricing"
	"github.com/papercomputeco/parlor/pkg/session"
	"github.com/papercomputeco/parlor/pkg/storage"
	"github.com/papercomputeco/parlor/pkg/storage/inmemory"
	"github.com/papercomputeco/parlor/pkg/storage/postgres"
	"github.com/papercomputeco/parlor/pkg/storage/sqlite"
	"github.com/papercomputeco/parlor/pkg/template"
	"github.com/papercomputeco/parlor/pkg/turn"
	"github.com/papercomputeco/parlor/pkg/upload"
	"github.com/papercomputeco/parlor/pkg/worker"
)

type serveCommander struct {
	flags flagValues

	cfg       *config.Config
	configDir string
	debug     bool
	jsonLogs bool
	logFile  string
	noMCP    bool
	logger   *slog.Logger
}

// flagValues are the flag targets. Values are read back through viper so
// env and config file settings apply when a flag is not given.
type flagValues struct {
	listen       string
	provider     string
	upstream     string
	model        string
	apiKey       string
	agentName    string
	systemPrompt string
	maxTokens    uint
	sqlitePath   string
	postgresDSN  string
	numWorkers   uint
	queueSize    uint
	uploadDir    string
	templates    string
	pricing      string
	kafkaBrokers string
	kafkaTopic   string
}

var stringFlags = []string{
	config.FlagListen,
	config.FlagProvider,
	config.FlagUpstream,
	config.FlagModel,
	config.FlagAPIKey,
	config.FlagAgentName,
	config.FlagSystemPrompt,
	config.FlagSQLite,
	config.FlagPostgres,
	config.FlagUploadDir,
	config.FlagTemplates,
	config.FlagPricing,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
}

var uintFlags = []string{
	config.FlagMaxTokens,
	config.FlagNumWorkers,
	config.FlagQueueSize,
}

const serveLongDesc string = `Run the parlor server.

The server holds chat sessions, answers submitted questions with the
configured agent and streams every change as server-sent events. Finished
turns are persisted and optionally published to Kafka.

Flags override environment variables (PARLOR_*), which override config.toml
values in the .parlor/ directory.

Examples:
  parlor serve --provider ollama --model gemma3:latest
  parlor serve --provider openai --api-key $OPENAI_API_KEY --sqlite parlor.db
  parlor serve --provider echo`

const serveShortDesc string = "Run the parlor server"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.Flags, append(stringFlags, uintFlags...))

			cmder.cfg, err = config.Unmarshal(v)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return cmder.run(ctx)
		},
	}

	f := &cmder.flags
	targets := map[string]*string{
		config.FlagListen:       &f.listen,
		config.FlagProvider:     &f.provider,
		config.FlagUpstream:     &f.upstream,
		config.FlagModel:        &f.model,
		config.FlagAPIKey:       &f.apiKey,
		config.FlagAgentName:    &f.agentName,
		config.FlagSystemPrompt: &f.systemPrompt,
		config.FlagSQLite:       &f.sqlitePath,
		config.FlagPostgres:     &f.postgresDSN,
		config.FlagUploadDir:    &f.uploadDir,
		config.FlagTemplates:    &f.templates,
		config.FlagPricing:      &f.pricing,
		config.FlagKafkaBrokers: &f.kafkaBrokers,
		config.FlagKafkaTopic:   &f.kafkaTopic,
	}
	for _, key := range stringFlags {
		config.AddStringFlag(cmd, config.Flags, key, targets[key])
	}
	config.AddUintFlag(cmd, config.Flags, config.FlagMaxTokens, &f.maxTokens)
	config.AddUintFlag(cmd, config.Flags, config.FlagNumWorkers, &f.numWorkers)
	config.AddUintFlag(cmd, config.Flags, config.FlagQueueSize, &f.queueSize)

	cmd.Flags().BoolVar(&cmder.jsonLogs, "json-logs", false, "Write structured JSON logs")
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also append JSON logs to this file")
	cmd.Flags().BoolVar(&cmder.noMCP, "no-mcp", false, "Do not mount the MCP server at /mcp")

	return cmd
}

func (c *serveCommander) run(ctx context.Context) error {
	c.logger = logger.New(
		logger.WithDebug(c.debug),
		logger.WithJSON(c.jsonLogs),
		logger.WithPretty(!c.jsonLogs),
	)
	if c.logFile != "" {
		f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer f.Close()

		c.logger = logger.Multi(c.logger, logger.New(
			logger.WithDebug(c.debug),
			logger.WithJSON(true),
			logger.WithWriter(f),
		))
	}
	cfg := c.cfg

	driver, err := c.newStorageDriver(ctx)
	if err != nil {
		return err
	}
	defer driver.Close()

	table, err := pricing.Load(cfg.Pricing.Path)
	if err != nil {
		return err
	}

	apiKey, err := c.resolveAPIKey()
	if err != nil {
		return err
	}

	client, err := factory.New(cfg.Agent.Provider, agent.Options{
		BaseURL:      cfg.Agent.Upstream,
		APIKey:       apiKey,
		Model:        cfg.Agent.Model,
		SystemPrompt: cfg.Agent.SystemPrompt,
		MaxTokens:    int(cfg.Agent.MaxTokens),
		Name:         cfg.Agent.Name,
		Pricing:      table,
		Logger:       c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating agent: %w", err)
	}

	publisher, err := c.newPublisher()
	if err != nil {
		return err
	}
	defer publisher.Close()

	pool, err := worker.NewPool(&worker.Config{
		Driver:     driver,
		Publisher:  publisher,
		NumWorkers: cfg.Worker.NumWorkers,
		QueueSize:  cfg.Worker.QueueSize,
		Logger:     c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating worker pool: %w", err)
	}
	defer pool.Close()

	sessions := session.NewManager(driver, c.logger)
	defer sessions.Close()

	catalog, err := template.Load(cfg.Templates.Path, c.logger)
	if err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}

	var uploads *upload.Dir
	if cfg.Upload.Dir != "" {
		uploads, err = upload.New(cfg.Upload.Dir)
		if err != nil {
			return err
		}
	}

	server, err := api.NewServer(c.apiConfig(sessions, client, pool, catalog, uploads, table))
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	c.logger.Info("starting parlor",
		"listen", cfg.Server.Listen,
		"provider", client.Name(),
		"model", effectiveModel(cfg),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Run(); err != nil {
			return fmt.Errorf("API server error: %w", err)
		}
		return nil
	})

	if catalog.Path() != "" {
		g.Go(func() error {
			err := catalog.Watch(ctx, nil)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		c.logger.Info("shutting down")
		return server.Shutdown()
	})

	return g.Wait()
}

// resolveAPIKey falls back to the provider's environment variable and then
// to a key stored with parlor auth.
func (c *serveCommander) resolveAPIKey() (string, error) {
	store, err := credentials.Open(c.configDir)
	if err != nil {
		return "", fmt.Errorf("opening credentials: %w", err)
	}
	key, source, err := store.Resolve(c.cfg.Agent.Provider, c.cfg.Agent.APIKey)
	if err != nil {
		return "", fmt.Errorf("resolving API key: %w", err)
	}
	if source != credentials.SourceNone {
		c.logger.Debug("agent API key resolved", "provider", c.cfg.Agent.Provider, "source", string(source))
	}
	return key, nil
}

// apiConfig wires the serving dependencies into the API server config.
func (c *serveCommander) apiConfig(
	sessions *session.Manager,
	client agent.Client,
	recorder turn.Recorder,
	catalog *template.Catalog,
	uploads *upload.Dir,
	table pricing.Table,
) api.Config {
	return api.Config{
		ListenAddr: c.cfg.Server.Listen,
		Sessions:   sessions,
		Agent:      client,
		Model:      effectiveModel(c.cfg),
		Pricing:    table,
		Recorder:   recorder,
		Templates:  catalog,
		Uploads:    uploads,
		MCP:        !c.noMCP,
		Logger:     c.logger,
	}
}

func effectiveModel(cfg *config.Config) string {
	if cfg.Agent.Model != "" {
		return cfg.Agent.Model
	}
	return factory.DefaultModel(cfg.Agent.Provider)
}

func (c *serveCommander) newStorageDriver(ctx context.Context) (storage.Driver, error) {
	switch {
	case c.cfg.Storage.PostgresDSN != "":
		driver, err := postgres.NewDriver(ctx, c.cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL driver: %w", err)
		}
		c.logger.Info("using PostgreSQL storage")
		return driver, nil

	case c.cfg.Storage.SQLitePath != "":
		driver, err := sqlite.NewSQLiteDriver(c.cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite driver: %w", err)
		}
		c.logger.Info("using SQLite storage", "path", c.cfg.Storage.SQLitePath)
		return driver, nil

	default:
		c.logger.Info("using in-memory storage")
		return inmemory.NewDriver(), nil
	}
}

func (c *serveCommander) newPublisher() (eventstream.Publisher, error) {
	brokers := splitList(c.cfg.Kafka.Brokers)
	if len(brokers) == 0 {
		return nop.NewPublisher(), nil
	}

	publisher, err := kafka.NewPublisher(kafka.Config{
		Brokers: brokers,
		Topic:   c.cfg.Kafka.Topic,
		Logger:  c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating kafka publisher: %w", err)
	}
	c.logger.Info("publishing turns to kafka", "brokers", brokers, "topic", c.cfg.Kafka.Topic)
	return publisher, nil
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
