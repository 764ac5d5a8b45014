package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	appconfig "github.com/fyerfyer/anki-importer/config"
	"github.com/fyerfyer/anki-importer/internal/ankiconnect"
	"github.com/fyerfyer/anki-importer/internal/flashcard"
	"github.com/fyerfyer/anki-importer/internal/services"
	"github.com/sirupsen/logrus"
)

// options 命令行参数
type options struct {
	configPath string
	file       string
	deck       string
	model      string
	tags       string
	endpoint   string
	dryRun     bool
	verbose    bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "config.yaml", "Path to config file")
	flag.StringVar(&opts.file, "file", "", "Flashcard source file (.txt, .md, .pdf); reads stdin when empty")
	flag.StringVar(&opts.deck, "deck", "", "Target deck, overrides config and file header")
	flag.StringVar(&opts.model, "model", "", "Note type, overrides config and file header")
	flag.StringVar(&opts.tags, "tags", "", "Comma separated tags")
	flag.StringVar(&opts.endpoint, "endpoint", "", "AnkiConnect endpoint")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "Print parsed cards without contacting Anki")
	flag.BoolVar(&opts.verbose, "v", false, "Verbose logging")
	flag.Parse()

	if err := run(opts, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options, stdin io.Reader, stdout io.Writer) error {
	cfg, err := appconfig.Load(opts.configPath)
	if err != nil {
		return err
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)
	if opts.verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	endpoint := cfg.Anki.Endpoint
	if opts.endpoint != "" {
		endpoint = opts.endpoint
	}
	client := ankiconnect.NewClient(
		ankiconnect.WithEndpoint(endpoint),
		ankiconnect.WithVersion(cfg.Anki.Version),
		ankiconnect.WithTimeout(cfg.Anki.Timeout),
	)

	svc := services.NewImportService(client,
		services.WithLogger(logger),
		services.WithConcurrency(cfg.Import.Concurrency),
		services.WithDefaults(services.ImportDefaults{
			Deck:           cfg.Anki.Deck,
			Model:          cfg.Anki.Model,
			Fields:         cfg.Import.Fields,
			FieldMap:       cfg.Import.Aliases(),
			LeadingField:   cfg.Import.LeadingField,
			Tags:           cfg.Import.Tags,
			AllowDuplicate: cfg.Anki.AllowDuplicate,
		}),
	)

	name := opts.file
	var src io.Reader = stdin
	if name == "" {
		name = "stdin.txt"
	} else {
		f, err := os.Open(opts.file)
		if err != nil {
			return err
		}
		defer f.Close()
		src = f
	}

	req := services.FileImportRequest{
		FileName: name,
		Deck:     opts.deck,
		Model:    opts.model,
		Tags:     splitTags(opts.tags),
	}

	if opts.dryRun {
		return preview(svc, src, req, stdout)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	summary, err := svc.ImportReader(ctx, src, req)
	if err != nil {
		return err
	}

	printSummary(stdout, summary)
	return nil
}

// preview 按导入时的设置解析输入并打印卡片
func preview(svc *services.ImportService, src io.Reader, req services.FileImportRequest, out io.Writer) error {
	p, err := svc.PreviewReader(src, req)
	if err != nil {
		return err
	}
	if len(p.Records) == 0 {
		fmt.Fprintln(out, "No flashcards found.")
		return nil
	}

	fmt.Fprint(out, flashcard.FormatAll(p.Records, p.Fields))
	fmt.Fprintf(out, "\n%d flashcards parsed for deck '%s' (%s).\n", len(p.Records), p.Deck, p.Model)
	return nil
}

func printSummary(out io.Writer, summary *services.ImportSummary) {
	fmt.Fprintln(out, summary.Message)
	for _, e := range summary.Errors {
		fmt.Fprintf(out, "  #%d %q: %s\n", e.Position+1, e.Front, e.Error)
	}
}

func splitTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
