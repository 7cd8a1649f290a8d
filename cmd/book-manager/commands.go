package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"

	"github.com/drallgood/book-manager/internal/book"
	"github.com/drallgood/book-manager/internal/config"
	"github.com/drallgood/book-manager/internal/library"
	"github.com/drallgood/book-manager/internal/metadata"
	"github.com/drallgood/book-manager/internal/server"
	"github.com/drallgood/book-manager/internal/store"
)

func (a *application) commands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "add",
			Usage: "Add a book to the library",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Book title", Required: true},
				&cli.StringFlag{Name: "author", Aliases: []string{"a"}, Usage: "Book author", Required: true},
				&cli.StringFlag{Name: "status", Aliases: []string{"s"}, Usage: "Reading status (" + book.StatusNames() + ")", Value: string(book.StatusUnread)},
			},
			Action: a.addBook,
		},
		{
			Name:      "remove",
			Aliases:   []string{"rm"},
			Usage:     "Remove a book from the library",
			ArgsUsage: "<id>",
			Action:    a.removeBook,
		},
		{
			Name:      "update",
			Usage:     "Change the title, author or status of a book",
			ArgsUsage: "[options] <id>",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "New title"},
				&cli.StringFlag{Name: "author", Aliases: []string{"a"}, Usage: "New author"},
				&cli.StringFlag{Name: "status", Aliases: []string{"s"}, Usage: "New reading status (" + book.StatusNames() + ")"},
			},
			Action: a.updateBook,
		},
		{
			Name:      "get",
			Usage:     "Show a single book",
			ArgsUsage: "[options] <id>",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "json", Usage: "Print as JSON"},
			},
			Action: a.getBook,
		},
		{
			Name:    "list",
			Aliases: []string{"ls"},
			Usage:   "List books in insertion order",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "status", Aliases: []string{"s"}, Usage: "Only books with this status (" + book.StatusNames() + ")"},
				&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "Only books whose title or author contains this text"},
				&cli.BoolFlag{Name: "json", Usage: "Print as JSON"},
			},
			Action: a.listBooks,
		},
		{
			Name:   "count",
			Usage:  "Print the number of books in the library",
			Action: a.countBooks,
		},
		{
			Name:      "import",
			Usage:     "Look up a book on Hardcover and add it to the library",
			ArgsUsage: "[options] <hardcover-id>",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Do not ask for confirmation"},
				&cli.StringFlag{Name: "status", Aliases: []string{"s"}, Usage: "Reading status (" + book.StatusNames() + ")", Value: string(book.StatusUnread)},
			},
			Action: a.importBook,
		},
		{
			Name:  "serve",
			Usage: "Serve the library over HTTP",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "port", Aliases: []string{"p"}, Usage: "Port to listen on", EnvVars: []string{"PORT"}},
			},
			Action: a.serve,
		},
		{
			Name:  "config",
			Usage: "Manage configuration",
			Subcommands: []*cli.Command{
				{
					Name:  "init",
					Usage: "Write credentials and the library location to a .env file",
					Flags: []cli.Flag{
						&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "dotenv `FILE` to write", Value: config.DefaultEnvFile},
					},
					Action: a.configInit,
				},
			},
		},
	}
}

func (a *application) addBook(c *cli.Context) error {
	status, err := book.ParseStatus(c.String("status"))
	if err != nil {
		return err
	}

	return a.withLibrary(c, true, func(_ context.Context, m *library.Manager) error {
		id, err := m.Add(c.String("title"), c.String("author"), status)
		if err != nil {
			return fmt.Errorf("failed to add book: %w", err)
		}
		b, _ := m.Get(id)
		fmt.Fprintf(a.out, "Added %s\n", b)
		return nil
	})
}

func (a *application) removeBook(c *cli.Context) error {
	id, err := idArg(c)
	if err != nil {
		return err
	}

	return a.withLibrary(c, true, func(_ context.Context, m *library.Manager) error {
		if err := m.Remove(id); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Removed book %d\n", id)
		return nil
	})
}

func (a *application) updateBook(c *cli.Context) error {
	id, err := idArg(c)
	if err != nil {
		return err
	}

	var patch book.Patch
	if c.IsSet("title") {
		title := c.String("title")
		patch.Title = &title
	}
	if c.IsSet("author") {
		author := c.String("author")
		patch.Author = &author
	}
	if c.IsSet("status") {
		status, err := book.ParseStatusStrict(c.String("status"))
		if err != nil {
			return err
		}
		patch.Status = &status
	}
	if patch.Empty() {
		return errors.New("nothing to update: pass --title, --author or --status")
	}

	return a.withLibrary(c, true, func(_ context.Context, m *library.Manager) error {
		b, err := m.Update(id, patch)
		if err != nil {
			return fmt.Errorf("failed to update book: %w", err)
		}
		fmt.Fprintf(a.out, "Updated %s\n", b)
		return nil
	})
}

func (a *application) getBook(c *cli.Context) error {
	id, err := idArg(c)
	if err != nil {
		return err
	}

	return a.withLibrary(c, false, func(_ context.Context, m *library.Manager) error {
		b, err := m.Get(id)
		if err != nil {
			return err
		}
		if c.Bool("json") {
			return a.printJSON(b)
		}
		return a.printTable([]book.Book{b})
	})
}

func (a *application) listBooks(c *cli.Context) error {
	filter := library.Filter{Query: c.String("query")}
	if c.IsSet("status") {
		status, err := book.ParseStatus(c.String("status"))
		if err != nil {
			return err
		}
		filter.Status = status
	}

	return a.withLibrary(c, false, func(_ context.Context, m *library.Manager) error {
		books := []book.Book{}
		for b := range m.List(filter) {
			books = append(books, b)
		}
		if c.Bool("json") {
			return a.printJSON(books)
		}
		if len(books) == 0 {
			fmt.Fprintln(a.out, "No books found")
			return nil
		}
		return a.printTable(books)
	})
}

func (a *application) countBooks(c *cli.Context) error {
	return a.withLibrary(c, false, func(_ context.Context, m *library.Manager) error {
		fmt.Fprintln(a.out, m.Count())
		return nil
	})
}

func (a *application) importBook(c *cli.Context) error {
	raw, err := singleArg(c, "Hardcover book ID")
	if err != nil {
		return err
	}
	hardcoverID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid Hardcover book ID %q: %w", raw, err)
	}
	status, err := book.ParseStatus(c.String("status"))
	if err != nil {
		return err
	}

	if a.cfg.Hardcover.Token == "" {
		a.log.Warn("No Hardcover token configured, run 'book-manager config init' to set one")
	}

	return a.withLibrary(c, true, func(ctx context.Context, m *library.Manager) error {
		meta, err := a.newLookup(a.cfg, a.log).Lookup(ctx, hardcoverID)
		if err != nil {
			if metadata.IsProviderError(err) && a.cfg.Hardcover.Token == "" {
				return fmt.Errorf("failed to look up book %d (is HARDCOVER_TOKEN set?): %w", hardcoverID, err)
			}
			return fmt.Errorf("failed to look up book %d: %w", hardcoverID, err)
		}

		if !c.Bool("yes") {
			ok, err := a.confirm(fmt.Sprintf("Do you want to add %q by %s?", meta.Title, meta.Author))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(a.out, "Aborted")
				return nil
			}
		}

		id, err := m.Add(meta.Title, meta.Author, status)
		if err != nil {
			return fmt.Errorf("failed to add book: %w", err)
		}
		b, _ := m.Get(id)
		fmt.Fprintf(a.out, "Added %s\n", b)
		return nil
	})
}

func (a *application) serve(c *cli.Context) error {
	port := a.cfg.Server.Port
	if c.IsSet("port") {
		port = c.String("port")
	}

	st, err := store.Open(a.cfg.Storage, a.log)
	if err != nil {
		return err
	}
	defer st.Close()

	m, err := store.LoadManager(c.Context, st, library.WithLogger(a.log))
	if err != nil {
		return err
	}

	gin.SetMode(ginMode(a.log))
	srv := server.New(":"+port, m, st, a.log)

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return <-errCh
}

func (a *application) configInit(c *cli.Context) error {
	path := c.String("output")

	token, err := a.prompt("Hardcover API token", a.cfg.Hardcover.Token)
	if err != nil {
		return err
	}
	libraryFile, err := a.prompt("Library file", a.cfg.Storage.Path)
	if err != nil {
		return err
	}

	values := map[string]string{
		"LIBRARY_FILE": libraryFile,
	}
	if token != "" {
		values["HARDCOVER_TOKEN"] = strings.TrimPrefix(token, "Bearer ")
	}

	ok, err := a.confirm(fmt.Sprintf("Save settings to %s?", path))
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(a.out, "Aborted")
		return nil
	}

	if err := config.WriteDotEnv(path, values); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Settings written to %s\n", path)
	return nil
}

// prompt asks for a value, returning def if the answer is empty
func (a *application) prompt(label, def string) (string, error) {
	if def != "" && !strings.Contains(strings.ToLower(label), "token") {
		fmt.Fprintf(a.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(a.out, "%s: ", label)
	}

	line, err := a.in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
	}
	if v := strings.TrimSpace(line); v != "" {
		return v, nil
	}
	return def, nil
}

// confirm asks a yes/no question; anything but y or yes means no
func (a *application) confirm(question string) (bool, error) {
	fmt.Fprintf(a.out, "%s [y/N]: ", question)

	line, err := a.in.ReadString('\n')
	if err != nil && line == "" {
		return false, fmt.Errorf("failed to read answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func (a *application) printJSON(v interface{}) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *application) printTable(books []book.Book) error {
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tAUTHOR\tSTATUS")
	for _, b := range books {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", b.ID, b.Title, b.Author, b.Status)
	}
	return w.Flush()
}
