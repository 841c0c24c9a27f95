// Package cli implements the courtside command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/courtside/internal/config"
	"github.com/mesh-intelligence/courtside/internal/federation"
	"github.com/mesh-intelligence/courtside/internal/logging"
	"github.com/mesh-intelligence/courtside/internal/paths"
	"github.com/mesh-intelligence/courtside/internal/rest"
	"github.com/mesh-intelligence/courtside/internal/storage"
	"github.com/mesh-intelligence/courtside/internal/tablesync"
	"github.com/mesh-intelligence/courtside/pkg/courtside"
	"github.com/mesh-intelligence/courtside/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func userErrorf(format string, args ...any) error {
	return &exitError{code: exitUserError, err: fmt.Errorf(format, args...)}
}

func sysErrorf(format string, args ...any) error {
	return &exitError{code: exitSysError, err: fmt.Errorf(format, args...)}
}

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	jsonMode  bool
	logLevel  string
}

// app is the per-invocation state shared by subcommands.
type app struct {
	flags rootFlags

	cfg           types.Config
	configPath    string
	configCreated bool
	dataDir       string

	log       zerolog.Logger
	logCloser io.Closer
	notifier  *logging.Notifier
	store     storage.Store
}

// NewRootCmd creates the top-level "courtside" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&app{log: zerolog.Nop()})
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "courtside",
		Short: "Basketball federation admin client",
		Long: "courtside reads and edits the teams, players, games and tournaments of a\n" +
			"basketball federation backend, keeping a local cache for offline use.",
		Version:       courtside.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.setup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.flags.configDir, "config-dir", "", "configuration directory (default: platform config dir)")
	root.PersistentFlags().StringVar(&a.flags.dataDir, "data-dir", "", "data directory for cache and logs (default: platform data dir)")
	root.PersistentFlags().BoolVar(&a.flags.jsonMode, "json", false, "output in JSON format")
	root.PersistentFlags().StringVar(&a.flags.logLevel, "log-level", "", "log to stderr at this level (debug, info, warn, error)")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd(a))
	root.AddCommand(newListCmd(a))
	root.AddCommand(newCreateCmd(a))
	root.AddCommand(newUpdateCmd(a))
	root.AddCommand(newDeleteCmd(a))
	root.AddCommand(newExportCmd(a))
	root.AddCommand(newWatchCmd(a))
	root.AddCommand(newCacheCmd(a))
	return root
}

// Execute runs the CLI with the process arguments and exits.
func Execute() {
	os.Exit(Run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// Run executes the CLI and returns the process exit code. Interrupts cancel
// the command context.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{log: zerolog.Nop()}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if cerr := a.close(); cerr != nil && err == nil {
		err = sysErrorf("close: %w", cerr)
	}
	if err == nil {
		return exitSuccess
	}
	fmt.Fprintln(stderr, "Error:", err)
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitUserError
}

// setup loads configuration and builds the logger and notifier.
func (a *app) setup(cmd *cobra.Command) error {
	configDir, err := paths.ResolveConfigDir(a.flags.configDir)
	if err != nil {
		return sysErrorf("resolve config dir: %w", err)
	}
	configPath, created, err := config.EnsureDefaultFile(configDir)
	if err != nil {
		return sysErrorf("%w", err)
	}
	cfg, err := config.Load(configDir)
	if err != nil {
		if errors.Is(err, config.ErrInvalid) {
			return userErrorf("%w", err)
		}
		return sysErrorf("%w", err)
	}
	dataDir, err := paths.ResolveDataDir(a.flags.dataDir, cfg.DataDir)
	if err != nil {
		return sysErrorf("resolve data dir: %w", err)
	}
	if a.flags.logLevel != "" {
		cfg.LogLevel = a.flags.logLevel
	}
	logFile := cfg.LogFile
	if logFile == "" {
		logFile = paths.LogFile(dataDir)
	}

	a.cfg = cfg
	a.configPath = configPath
	a.configCreated = created
	a.dataDir = dataDir
	a.log, a.logCloser = logging.New(logging.Config{
		Level:   cfg.LogLevel,
		File:    logFile,
		Console: true,
		Out:     cmd.ErrOrStderr(),
		Quiet:   a.flags.logLevel == "",
	})
	a.notifier = logging.NewNotifier(cmd.ErrOrStderr(), a.log)
	a.log.Debug().Str("config_dir", configDir).Str("data_dir", dataDir).Str("command", cmd.Name()).Msg("starting")
	return nil
}

func (a *app) close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
		a.store = nil
	}
	if a.logCloser != nil {
		errs = append(errs, a.logCloser.Close())
		a.logCloser = nil
	}
	return errors.Join(errs...)
}

// openStore opens the cache store once per invocation.
func (a *app) openStore() (storage.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	s, err := storage.Open(a.cfg.CacheBackend, a.dataDir)
	if err != nil {
		return nil, sysErrorf("open cache: %w", err)
	}
	a.store = s
	return s, nil
}

func (a *app) client() (*rest.Client, error) {
	c, err := rest.New(a.cfg.APIBaseURL,
		rest.WithToken(a.cfg.Token),
		rest.WithTimeout(a.cfg.RequestTimeout),
		rest.WithRateLimit(a.cfg.RateLimit, a.cfg.RateBurst),
		rest.WithLogger(a.log),
	)
	if err != nil {
		return nil, userErrorf("api client: %w", err)
	}
	return c, nil
}

// collection builds a Collection for res backed by the cache store. tweak,
// when set, adjusts the options before construction.
func (a *app) collection(res federation.Resource, tweak func(*tablesync.Options)) (*tablesync.Collection, error) {
	client, err := a.client()
	if err != nil {
		return nil, err
	}
	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	opts := tablesync.Options{
		Resource: res.Name,
		Endpoint: res.Endpoint,
		CacheKey: res.CacheKey,
		Storage:  store,
		PageSize: a.cfg.PageSize,
		Notifier: a.notifier,
		Logger:   &a.log,
	}
	if tweak != nil {
		tweak(&opts)
	}
	c, err := tablesync.New(client, opts)
	if err != nil {
		return nil, sysErrorf("collection %s: %w", res.Name, err)
	}
	return c, nil
}

func lookupResource(name string) (federation.Resource, error) {
	res, err := federation.Lookup(name)
	if err != nil {
		return federation.Resource{}, userErrorf("%w", err)
	}
	return res, nil
}

// resourceArg completes positional resource names.
func resourceArg(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return federation.Names(), cobra.ShellCompDirectiveNoFileComp
}
