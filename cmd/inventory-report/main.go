package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/mail"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	reportapp "github.com/erp/inventoryreport/internal/application/report"
	"github.com/erp/inventoryreport/internal/bootstrap"
	"github.com/erp/inventoryreport/internal/domain/inventory"
	"github.com/erp/inventoryreport/internal/domain/shared/valueobject"
	"github.com/erp/inventoryreport/internal/infrastructure/auth"
	"github.com/erp/inventoryreport/internal/infrastructure/config"
	csvimport "github.com/erp/inventoryreport/internal/infrastructure/import"
	"github.com/erp/inventoryreport/internal/infrastructure/logger"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// repList collects repeated -rep flags of the form "Name <email>"
type repList []reportapp.Rep

func (r *repList) String() string {
	parts := make([]string, 0, len(*r))
	for _, rep := range *r {
		parts = append(parts, fmt.Sprintf("%s <%s>", rep.Name, rep.Email))
	}
	return strings.Join(parts, ", ")
}

func (r *repList) Set(value string) error {
	rep, err := parseRep(value)
	if err != nil {
		return err
	}
	*r = append(*r, rep)
	return nil
}

// stringList collects repeated string flags
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}

// parseRep reads "Name <email>"
func parseRep(value string) (reportapp.Rep, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(value))
	if err != nil {
		return reportapp.Rep{}, fmt.Errorf("invalid rep %q, expected \"Name <email>\": %w", value, err)
	}
	if strings.TrimSpace(addr.Name) == "" {
		return reportapp.Rep{}, fmt.Errorf("invalid rep %q: name is required", value)
	}
	return reportapp.Rep{Name: addr.Name, Email: addr.Address}, nil
}

type options struct {
	configPath string
	itemsPath  string
	source     string
	asOf       string
	logLevel   string
	reps       repList
	recipients stringList
	dryRun     bool
	key        string
	issueToken string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("inventory-report", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "path to a config file (env vars still override)")
	fs.StringVar(&opts.itemsPath, "items", "", "inventory file to report on (.csv or .json)")
	fs.StringVar(&opts.source, "source", "", `set to "api" to fetch items from the inventory API`)
	fs.StringVar(&opts.asOf, "as-of", "", "report date YYYY-MM-DD (default: today in the configured time zone)")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	fs.Var(&opts.reps, "rep", `rep to send to, "Name <email>" (repeatable, default: configured reps)`)
	fs.Var(&opts.recipients, "recipient", "additional cc address (repeatable)")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "print the messages instead of writing them to the outbox")
	fs.StringVar(&opts.key, "idempotency-key", "", "refuse to deliver if a run with this key was already delivered")
	fs.StringVar(&opts.issueToken, "issue-token", "", "print a bearer token for the run endpoint with this subject and exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	switch {
	case opts.issueToken != "" && (opts.itemsPath != "" || opts.source != ""):
		return nil, errors.New("-issue-token cannot be combined with -items or -source")
	case opts.issueToken != "":
		return opts, nil
	case opts.itemsPath == "" && opts.source == "":
		return nil, errors.New("one of -items or -source api is required")
	case opts.itemsPath != "" && opts.source != "":
		return nil, errors.New("-items and -source are mutually exclusive")
	case opts.source != "" && opts.source != "api":
		return nil, fmt.Errorf("unknown source %q", opts.source)
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(stderr, "error:", err)
		}
		return 2
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return 1
	}
	if opts.issueToken != "" {
		return issueToken(cfg, opts.issueToken, stdout, stderr)
	}

	level := cfg.Log.Level
	if opts.logLevel != "" {
		level = opts.logLevel
	}

	log, err := logger.New(&logger.Config{
		Level:      level,
		Format:     "console",
		Output:     "stderr",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		fmt.Fprintf(stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	app, err := bootstrap.New(ctx, cfg, log)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if app != nil {
			_ = app.Shutdown(shutdownCtx)
		}
	}()
	if err != nil {
		log.Error("Failed to initialize", zap.Error(err))
		return 1
	}
	log = app.Logger

	items, err := loadItems(ctx, opts, app)
	if err != nil {
		log.Error("Failed to load inventory items", zap.Error(err))
		return 1
	}

	var asOf time.Time
	if opts.asOf != "" {
		d, err := valueobject.ParseDate(opts.asOf)
		if err != nil {
			log.Error("Invalid -as-of date", zap.String("as_of", opts.asOf), zap.Error(err))
			return 2
		}
		asOf = d.Time()
	}

	result, err := app.Service.Run(ctx, reportapp.RunRequest{
		Items:           items,
		AsOf:            asOf,
		Reps:            opts.reps,
		AddedRecipients: opts.recipients,
		DryRun:          opts.dryRun,
		IdempotencyKey:  opts.key,
	})
	if errors.Is(err, reportapp.ErrDuplicateRun) {
		fmt.Fprintf(stdout, "run with key %q was already delivered, nothing sent\n", opts.key)
		return 0
	}
	if err != nil {
		log.Error("Inventory report failed", zap.Error(err))
		return 1
	}
	if result.Skipped {
		fmt.Fprintln(stdout, "inventory report is disabled, nothing sent")
		return 0
	}

	if opts.dryRun {
		printMessages(stdout, result.Messages)
		return 0
	}
	fmt.Fprintf(stdout, "run %s: %d message(s) for %s written to the outbox\n",
		result.RunID, len(result.Messages), result.AsOfDate)
	for _, msg := range result.Messages {
		fmt.Fprintf(stdout, "  %s -> %s\n", msg.To, msg.Key)
	}
	return 0
}

func issueToken(cfg *config.Config, subject string, stdout, stderr io.Writer) int {
	if !cfg.JWT.Enabled() {
		fmt.Fprintln(stderr, "error: jwt.secret is not configured")
		return 1
	}
	issued, err := auth.NewJWTService(cfg.JWT).GenerateToken(subject, auth.ScopeRunReports)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to issue token: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, issued.Token)
	fmt.Fprintf(stderr, "token for %s expires %s\n", subject, issued.ExpiresAt.UTC().Format(time.RFC3339))
	return 0
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFile(path)
}

func loadItems(ctx context.Context, opts *options, app *bootstrap.App) ([]inventory.RawItem, error) {
	if opts.source == "api" {
		return app.ItemSource.FetchItems(ctx)
	}
	return csvimport.ReadInventoryFile(opts.itemsPath)
}

func printMessages(w io.Writer, messages []reportapp.Message) {
	for i, msg := range messages {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "To: %s\n", msg.To)
		if len(msg.Cc) > 0 {
			fmt.Fprintf(w, "Cc: %s\n", strings.Join(msg.Cc, ", "))
		}
		fmt.Fprintf(w, "Subject: %s\n\n%s\n", msg.Subject, msg.Body)
	}
}
