// Package main provides the book-manager command-line tool for keeping a
// personal library of books.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/drallgood/book-manager/internal/book"
	"github.com/drallgood/book-manager/internal/config"
	"github.com/drallgood/book-manager/internal/library"
	"github.com/drallgood/book-manager/internal/logger"
	"github.com/drallgood/book-manager/internal/metadata"
	"github.com/drallgood/book-manager/internal/store"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// metadataLookup fetches book metadata from a remote provider
type metadataLookup interface {
	Lookup(ctx context.Context, id int64) (*metadata.Metadata, error)
}

// application holds the state shared by all commands of one run
type application struct {
	out    io.Writer
	errOut io.Writer
	in     *bufio.Reader

	cfg *config.Config
	log *logger.Logger

	newLookup func(cfg *config.Config, log *logger.Logger) metadataLookup
}

func main() {
	app := newApp(os.Stdout, os.Stderr, os.Stdin)
	if err := app.Run(os.Args); err != nil {
		logger.Get().Error("Error running application", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(1)
	}
}

func newApp(out, errOut io.Writer, in io.Reader) *cli.App {
	return newApplication(out, errOut, in).cliApp()
}

func newApplication(out, errOut io.Writer, in io.Reader) *application {
	return &application{
		out:    out,
		errOut: errOut,
		in:     bufio.NewReader(in),
		newLookup: func(cfg *config.Config, log *logger.Logger) metadataLookup {
			return metadata.NewClient(metadata.Config{
				URL:       cfg.Hardcover.URL,
				Token:     cfg.Hardcover.Token,
				Timeout:   cfg.Hardcover.Timeout,
				CacheTTL:  cfg.Hardcover.CacheTTL,
				RateLimit: cfg.Hardcover.RateLimit,
				Burst:     cfg.Hardcover.Burst,
			}, log)
		},
	}
}

func (a *application) cliApp() *cli.App {
	return &cli.App{
		Name:      "book-manager",
		Usage:     "Keep track of the books in your personal library",
		Version:   fmt.Sprintf("%s (%s) %s", version, commit, date),
		Writer:    a.out,
		ErrWriter: a.errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				EnvVars: []string{"BOOK_MANAGER_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Read environment overrides from `FILE`",
				Value: config.DefaultEnvFile,
			},
			&cli.StringFlag{
				Name:  "store",
				Usage: "Use the library file at `PATH` (.json, .yaml or .yml)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
			},
		},
		Before:   a.setup,
		Commands: a.commands(),
	}
}

// setup loads configuration and builds the logger before any command runs
func (a *application) setup(c *cli.Context) error {
	cfg, err := config.LoadWithEnvFile(c.String("config"), c.String("env-file"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if c.IsSet("store") {
		cfg.Storage.Type = config.StorageTypeFile
		cfg.Storage.Path = c.String("store")
	}
	if c.IsSet("log-level") {
		cfg.Logging.Level = c.String("log-level")
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: logger.ParseLogFormat(cfg.Logging.Format),
		Output: a.errOut,
	}
	logger.Setup(logCfg)

	a.cfg = cfg
	a.log = logger.New(logCfg)
	return nil
}

// withLibrary loads the library, runs fn and saves the library afterwards if
// save is set, fn succeeded and the library changed
func (a *application) withLibrary(c *cli.Context, save bool, fn func(ctx context.Context, m *library.Manager) error) error {
	ctx := logger.NewContext(c.Context, a.log)

	st, err := store.Open(a.cfg.Storage, a.log)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			a.log.Warn("Failed to close store", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	m, err := store.LoadManager(ctx, st, library.WithLogger(a.log))
	if err != nil {
		return err
	}

	before := m.Snapshot()
	if err := fn(ctx, m); err != nil {
		return err
	}

	if save && changed(before, m.Snapshot()) {
		return store.SaveManager(ctx, st, m)
	}
	return nil
}

func parseBookID(raw string) (book.ID, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 1 {
		return 0, &book.ValidationError{Field: "id", Msg: fmt.Sprintf("must be a positive integer (got %q)", raw)}
	}
	return book.ID(n), nil
}

// idArg returns the single positional book id of a command
func idArg(c *cli.Context) (book.ID, error) {
	raw, err := singleArg(c, "book ID")
	if err != nil {
		return 0, err
	}
	return parseBookID(raw)
}

// singleArg returns the only positional argument of a command. Flags are
// only parsed before positional arguments, so trailing flags get a hint.
func singleArg(c *cli.Context, what string) (string, error) {
	if c.NArg() > 1 {
		for _, arg := range c.Args().Tail() {
			if strings.HasPrefix(arg, "-") {
				return "", fmt.Errorf("options must come before the %s: %s %s", what, c.Command.HelpName, c.Command.ArgsUsage)
			}
		}
	}
	if c.NArg() != 1 {
		return "", fmt.Errorf("expected exactly one %s argument, got %d", what, c.NArg())
	}
	return c.Args().First(), nil
}

// changed reports whether a library differs from an earlier snapshot
func changed(before, after library.Snapshot) bool {
	return before.NextID != after.NextID || !slices.Equal(before.Books, after.Books)
}

// ginMode keeps gin's route dump and debug warnings out of non-debug runs
func ginMode(log *logger.Logger) string {
	if log.GetLevel() == zerolog.DebugLevel || log.GetLevel() == zerolog.TraceLevel {
		return gin.DebugMode
	}
	return gin.ReleaseMode
}
