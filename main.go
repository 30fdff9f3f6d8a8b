package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nsqio/go-nsq"
	"github.com/urfave/cli/v2"

	"docvault/features/file"
	"docvault/internal/app"
	"docvault/internal/config"
	"docvault/internal/logger"
	"docvault/internal/middleware"
)

func main() {
	if err := newCLI().Run(os.Args); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newCLI() *cli.App {
	return &cli.App{
		Name:  "docvault",
		Usage: "Document ingestion pipeline and semantic search backend",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API and the ingestion worker",
				Action: serveCommand,
			},
			{
				Name:   "migrate",
				Usage:  "Apply database migrations and exit",
				Action: migrateCommand,
			},
			{
				Name:   "enqueue",
				Usage:  "Record a file and publish its ingestion trigger",
				Action: enqueueCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file-id", Usage: "Managed file id (generated when empty)"},
					&cli.StringFlag{Name: "owner", Usage: "Owning user id", Required: true},
					&cli.StringFlag{Name: "name", Usage: "Original file name", Required: true},
					&cli.StringFlag{Name: "blob-url", Usage: "http(s):// or s3:// location of the file", Required: true},
					&cli.StringFlag{Name: "download-url", Usage: "Signed download URL, preferred over blob-url when set"},
					&cli.StringFlag{Name: "mime", Usage: "Mime type of the file", Value: "application/pdf"},
					&cli.Int64Flag{Name: "size", Usage: "File size in bytes"},
				},
			},
			{
				Name:   "search",
				Usage:  "Run an owner-filtered semantic search",
				Action: searchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "owner", Usage: "Owning user id", Required: true},
					&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "Search text", Required: true},
					&cli.IntFlag{Name: "limit", Usage: "Maximum results", Value: 10},
				},
			},
		},
	}
}

// setup loads configuration and installs the process logger.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(log)
	return cfg, log, nil
}

func serveCommand(c *cli.Context) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, cfg, log)
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	slog.SetDefault(log)

	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}
	defer deps.Close(context.Background())

	application, err := app.New(cfg, deps)
	if err != nil {
		return fmt.Errorf("failed to initialize app: %w", err)
	}
	return application.Run(ctx)
}

func migrateCommand(c *cli.Context) error {
	cfg, _, err := setup()
	if err != nil {
		return err
	}
	db, err := app.OpenDB(c.Context, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := app.Migrate(db, cfg.MigrationPath); err != nil {
		return err
	}
	slog.Info("migrations applied successfully")
	return nil
}

func enqueueCommand(c *cli.Context) error {
	cfg, _, err := setup()
	if err != nil {
		return err
	}
	db, err := app.OpenDB(c.Context, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
	if err != nil {
		return fmt.Errorf("nsq producer error: %w", err)
	}
	defer producer.Stop()

	f := fileFromFlags(c)
	svc := file.NewService(file.NewPostgresRepo(db), producer, nil, nil, cfg.RecordUpdateAttempts)
	ctx := middleware.EnsureCorrelationID(c.Context, "")
	if err := svc.Enqueue(ctx, f); err != nil {
		return err
	}
	return printJSON(c, map[string]string{"id": f.ID, "correlationId": middleware.GetCorrelationID(ctx)})
}

func fileFromFlags(c *cli.Context) *file.ManagedFile {
	return &file.ManagedFile{
		ID:              c.String("file-id"),
		OwnerUserID:     c.String("owner"),
		FileName:        c.String("name"),
		BlobURL:         c.String("blob-url"),
		BlobDownloadURL: c.String("download-url"),
		MimeType:        c.String("mime"),
		SizeBytes:       c.Int64("size"),
	}
}

func searchCommand(c *cli.Context) error {
	cfg, _, err := setup()
	if err != nil {
		return err
	}
	deps, err := app.Bootstrap(c.Context, cfg)
	if err != nil {
		return err
	}
	defer deps.Close(context.Background())

	application, err := app.New(cfg, deps)
	if err != nil {
		return err
	}
	results, err := application.Retrieval.Search(c.Context, c.String("owner"), c.String("query"), c.Int("limit"))
	if err != nil {
		return err
	}
	return printJSON(c, results)
}

func printJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
