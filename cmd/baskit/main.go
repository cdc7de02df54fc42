// BaskIt is a conversational shopping-list assistant for Hebrew and
// English.
//
// Usage:
//
//	baskit [--verbose] [--quiet] [--config file] [--db path] [--no-ai]
//	baskit say "תוסיף 2 חלב"
//	baskit lists
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hammamikhairi/baskit/internal/assistant"
	"github.com/hammamikhairi/baskit/internal/config"
	"github.com/hammamikhairi/baskit/internal/domain"
	"github.com/hammamikhairi/baskit/internal/lines"
	"github.com/hammamikhairi/baskit/internal/logger"
	"github.com/hammamikhairi/baskit/internal/storage"
	"github.com/hammamikhairi/baskit/internal/undo"
)

var version = "0.1.0"

// errRejected marks a one-shot utterance that was answered but not applied.
var errRejected = errors.New("rejected")

type options struct {
	verbose bool
	quiet   bool
	logFile string
	cfgFile string
	dbPath  string
	noAI    bool
	owner   string
}

func main() {
	var opts options

	rootCmd := &cobra.Command{
		Use:   "baskit",
		Short: "Conversational shopping lists in Hebrew and English",
		Long: `BaskIt turns short Hebrew or English commands into shopping-list changes.
Run without arguments for an interactive prompt.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runREPL(cmd.Context(), opts)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.BoolVar(&opts.verbose, "verbose", false, "enable verbose/debug logging")
	flags.BoolVar(&opts.quiet, "quiet", false, "disable all logging")
	flags.StringVar(&opts.logFile, "log-file", "", "file to write logs to (\"stderr\" for the console; default from config)")
	flags.StringVar(&opts.cfgFile, "config", "", "YAML config file (default $BASKIT_CONFIG)")
	flags.StringVar(&opts.dbPath, "db", "", "SQLite database path (\":memory:\" keeps nothing; default from config)")
	flags.BoolVar(&opts.noAI, "no-ai", false, "use the rule parser only, even when an API key is set")
	flags.StringVar(&opts.owner, "owner", defaultOwner(), "user the lists belong to")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "say <text>",
			Short: "Run one utterance against the active list",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runSay(cmd.Context(), opts, strings.Join(args, " "), cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "lists",
			Short: "Print every list and its items",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runLists(cmd.Context(), opts, cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "baskit version %s\n", version)
			},
		},
	)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		if !errors.Is(err, errRejected) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func defaultOwner() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "local"
}

// app holds everything a command needs.
type app struct {
	cfg       *config.Config
	log       *logger.Logger
	assistant *assistant.Assistant
	stacks    *undo.Manager
	offline   bool
	session   string
	closers   []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("shutdown: %v", err)
		}
	}
}

// setup loads config, opens logs and storage, and wires the assistant.
func setup(ctx context.Context, opts options) (*app, error) {
	cfg, err := config.Load(opts.cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if opts.dbPath != "" {
		cfg.DBPath = opts.dbPath
	}
	if opts.logFile != "" {
		cfg.LogFile = opts.logFile
	}
	if opts.noAI {
		cfg.NLUProvider = config.ProviderNone
	}

	a := &app{cfg: cfg, session: opts.owner}

	level := logger.ParseLevel(cfg.LogLevel)
	if opts.verbose {
		level = logger.LevelVerbose
	}
	if opts.quiet {
		level = logger.LevelOff
	}
	logOut, closeLog := openLog(cfg.LogFile)
	a.closers = append(a.closers, closeLog)

	// Third-party packages using the standard logger go to the same place.
	stdlog.SetOutput(logOut)
	stdlog.SetFlags(stdlog.Ltime)

	a.log = logger.New(level, logOut)
	a.closers = append(a.closers, func() error {
		_ = a.log.Sync()
		return nil
	})

	repo, closeRepo, err := openRepo(cfg.DBPath, a.log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, closeRepo)

	gw, err := assistant.NewGateway(ctx, cfg, a.log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.offline = gw == nil

	a.assistant, a.stacks = assistant.FromConfig(cfg, repo, gw, a.log)
	a.assistant.Open(a.session, opts.owner)
	a.log.Info("baskit %s started (owner=%s, db=%s, nlu=%s)", version, opts.owner, cfg.DBPath, providerName(gw))
	return a, nil
}

func providerName(gw domain.Interpreter) string {
	if gw == nil {
		return "rules"
	}
	return gw.Name()
}

// openLog directs logs to a file so the REPL stays clean. It falls back
// to stderr when the file cannot be opened.
func openLog(path string) (io.Writer, func() error) {
	if path == "" || path == "stderr" {
		return os.Stderr, func() error { return nil }
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		_ = os.MkdirAll(dir, 0o755)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not open log file %s: %v (falling back to stderr)\n", path, err)
		return os.Stderr, func() error { return nil }
	}
	return f, f.Close
}

func openRepo(path string, log *logger.Logger) (domain.Repository, func() error, error) {
	if path == ":memory:" {
		return storage.NewMemoryStore(log), func() error { return nil }, nil
	}
	store, err := storage.OpenSQLite(path, log)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	return store, store.Close, nil
}

// ── One-shot commands ────────────────────────────────────────────

func runSay(ctx context.Context, opts options, text string, out io.Writer) error {
	a, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	res := a.assistant.HandleUtterance(ctx, "", text, a.session)
	fmt.Fprintln(out, res.Message)
	if res.Kind == assistant.Rejected {
		return errRejected
	}
	return nil
}

func runLists(ctx context.Context, opts options, out io.Writer) error {
	a, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	lists, err := a.assistant.Lists(ctx, a.session)
	if err != nil {
		return err
	}
	lang := lines.ParseLang(a.cfg.DefaultLanguage)
	if len(lists) == 0 {
		fmt.Fprintln(out, lines.NoLists(lang))
		return nil
	}
	for _, l := range lists {
		fmt.Fprintln(out, lines.ListSummary(lang, l))
	}
	return nil
}
