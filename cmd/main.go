package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"book-reader/internal/config"
	"book-reader/internal/export"
	"book-reader/internal/helper"
	"book-reader/internal/models"
	"book-reader/internal/rag"
	"book-reader/internal/tui"
	"book-reader/internal/web"
)

const configFilePath = "./configs/config.yaml"

type options struct {
	add     string
	ask     string
	topK    int
	replace bool
	dryRun  bool
	list    bool
	remove  string
	reset   bool
	export  string
	backup  string
	restore string
	asJSON  bool
	serve   bool
	tui     bool
}

func main() {
	var opts options
	configPath := flag.String("config", configFilePath, "Path to the YAML config file")
	flag.StringVar(&opts.add, "add", "", "Path to book file to add (PDF, TXT, DOCX)")
	flag.StringVar(&opts.ask, "ask", "", "Question to ask the system")
	flag.IntVar(&opts.topK, "top_k", 0, "Number of context chunks to retrieve (default from config)")
	flag.BoolVar(&opts.replace, "replace", false, "With --add, replace a book that is already indexed")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "With --add, print the chunks and store nothing")
	flag.BoolVar(&opts.list, "list", false, "List indexed books")
	flag.StringVar(&opts.remove, "remove", "", "Remove an indexed book by id")
	flag.BoolVar(&opts.reset, "reset", false, "Remove every indexed book")
	flag.StringVar(&opts.export, "export", "", "Write the book catalog to an .xlsx file")
	flag.StringVar(&opts.backup, "backup", "", "Write an encrypted backup of the chromem index")
	flag.StringVar(&opts.restore, "restore", "", "Replace the chromem index with a backup")
	flag.BoolVar(&opts.asJSON, "json", false, "Print results as JSON")
	flag.BoolVar(&opts.serve, "serve", false, "Start the web UI")
	flag.BoolVar(&opts.tui, "tui", false, "Start the terminal UI")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		helper.SetupLogger("info", true)
		log.Fatal().Err(err).Msg("Error loading config")
	}
	helper.SetupLogger(cfg.Log.Level, cfg.Log.Pretty)
	gin.SetMode(gin.ReleaseMode)
	log.Debug().Interface("config", cfg).Msg("Loaded config")

	if !opts.any() {
		flag.Usage()
		return
	}
	if opts.topK < 0 {
		log.Fatal().Int("top_k", opts.topK).Msg("top_k must be at least 1")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := rag.New(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("Error initializing book reader")
		os.Exit(exitCode(err))
	}

	err = run(ctx, r, opts, os.Stdout)
	if cerr := r.Close(); cerr != nil {
		log.Warn().Err(cerr).Msg("Error closing book reader")
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

func (o options) any() bool {
	return o.add != "" || o.ask != "" || o.list || o.remove != "" || o.reset ||
		o.export != "" || o.backup != "" || o.restore != "" || o.serve || o.tui
}

// run executes the requested commands in a fixed order so "--add x --ask y"
// indexes before it asks.
func run(ctx context.Context, r *rag.RAG, opts options, out io.Writer) error {
	if opts.restore != "" {
		if err := r.Restore(opts.restore); err != nil {
			return err
		}
		fmt.Fprintf(out, "Restored index from %s\n", opts.restore)
	}
	if opts.reset {
		if err := r.Reset(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "Index cleared.")
	}
	if opts.remove != "" {
		if err := r.RemoveBook(ctx, opts.remove); err != nil {
			return err
		}
		fmt.Fprintf(out, "Removed %s.\n", opts.remove)
	}
	if opts.add != "" {
		if err := addBook(ctx, r, opts, out); err != nil {
			return err
		}
	}
	if opts.list {
		books, err := r.Books(ctx)
		if err != nil {
			return err
		}
		printBooks(out, books, opts.asJSON)
	}
	if opts.ask != "" {
		ans, err := r.Ask(ctx, models.Query{Question: opts.ask, TopK: opts.topK})
		if err != nil {
			return err
		}
		printAnswer(out, ans, opts.asJSON)
	}
	if opts.export != "" {
		books, err := r.Books(ctx)
		if err != nil {
			return err
		}
		if err := export.Books(opts.export, books); err != nil {
			return err
		}
		fmt.Fprintf(out, "Exported %d books to %s\n", len(books), opts.export)
	}
	if opts.backup != "" {
		if err := r.Backup(opts.backup); err != nil {
			return err
		}
		fmt.Fprintf(out, "Backup written to %s\n", opts.backup)
	}
	if opts.tui {
		return runTUI(ctx, r, opts.topK)
	}
	if opts.serve {
		return web.NewServer(r, r.Config().Web).Run(ctx)
	}
	return nil
}

func addBook(ctx context.Context, r *rag.RAG, opts options, out io.Writer) error {
	fmt.Fprintf(out, "Loading and processing: %s\n", opts.add)
	res, err := r.AddBook(ctx, opts.add, rag.AddOptions{Replace: opts.replace, DryRun: opts.dryRun})
	if err != nil {
		return err
	}
	switch {
	case opts.dryRun:
		helper.FprettyPrint(out, res.Chunks)
		fmt.Fprintf(out, "Dry run: %d chunks, nothing stored.\n", len(res.Chunks))
	case res.Replaced:
		fmt.Fprintf(out, "Replaced %s with %d chunks.\n", res.Book.ID, res.Book.Chunks)
	default:
		fmt.Fprintf(out, "Added %d chunks to vector store.\n", res.Book.Chunks)
	}
	return nil
}

func printAnswer(out io.Writer, ans *models.Answer, asJSON bool) {
	if asJSON {
		helper.FprettyPrint(out, ans)
		return
	}
	fmt.Fprintf(out, "\nAnswer: %s\nConfidence: %.4f\n", ans.Text, ans.Confidence)
	fmt.Fprintf(out, "\nReference context (source: %s, chunk %d):\n%s\n",
		ans.Citation.Chunk.BookID, ans.Citation.Chunk.Position, ans.Citation.Chunk.Text)
}

func printBooks(out io.Writer, books []models.Book, asJSON bool) {
	if asJSON {
		if books == nil {
			books = []models.Book{}
		}
		helper.FprettyPrint(out, books)
		return
	}
	if len(books) == 0 {
		fmt.Fprintln(out, "No books indexed.")
		return
	}
	rows := [][]string{{"ID", "TITLE", "FORMAT", "CHUNKS", "ADDED"}}
	for _, b := range books {
		rows = append(rows, []string{b.ID, b.Title, string(b.Format), strconv.Itoa(b.Chunks), b.AddedAt.Format("2006-01-02 15:04")})
	}
	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}
	for r, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			style := lipgloss.NewStyle().Width(widths[i] + 2)
			if r == 0 {
				style = style.Bold(true)
			}
			cells[i] = style.Render(cell)
		}
		fmt.Fprintln(out, strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, cells...), " "))
	}
}

func runTUI(ctx context.Context, r *rag.RAG, topK int) error {
	books, err := r.Books(ctx)
	if err != nil {
		return err
	}
	chunks := 0
	for _, b := range books {
		chunks += b.Chunks
	}
	summary := fmt.Sprintf("%d books, %d chunks indexed", len(books), chunks)
	p := tea.NewProgram(tui.New(ctx, r, topK, summary), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// exitCode maps the error taxonomy onto process exit codes.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, models.ErrUnsupportedFormat):
		return 2
	case errors.Is(err, models.ErrRead):
		return 3
	case errors.Is(err, models.ErrEmbedding):
		return 4
	case errors.Is(err, models.ErrEmptyIndex):
		return 5
	case errors.Is(err, models.ErrNoAnswerFound):
		return 6
	case errors.Is(err, models.ErrDuplicateBook):
		return 7
	case errors.Is(err, models.ErrBookNotFound):
		return 8
	}
	return 1
}
