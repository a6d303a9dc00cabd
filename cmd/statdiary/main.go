package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/freeeve/statdiary/internal/config"
	"github.com/freeeve/statdiary/internal/dberr"
	"github.com/freeeve/statdiary/internal/ledger"
	"github.com/freeeve/statdiary/internal/logx"
	"github.com/freeeve/statdiary/internal/maint"
)

// app carries the settings resolved before any subcommand runs.
type app struct {
	configPath string
	root       string
	logLevel   string
	logJSON    bool

	cfg    config.Config
	logger zerolog.Logger
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("root") {
		cfg.Root = a.root
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = a.logLevel
	}
	if flags.Changed("log-json") {
		cfg.Log.JSON = a.logJSON
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", dberr.ErrInvalidArgument, err)
	}
	lvl, _ := cfg.LogLevel()

	a.cfg = cfg
	a.logger = logx.New(logx.Options{Level: lvl, JSON: cfg.Log.JSON}).With().Str("root", cfg.Root).Logger()
	return nil
}

func (a *app) runner() *maint.Runner {
	return maint.New(a.cfg.Root, a.logger)
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:   "statdiary",
		Short: "Maintain a mental/physical wellbeing diary database",
		Long: `statdiary keeps the derived caches of a diary database in sync with its
day files, renames and merges tags, imports legacy text diaries and
resumes maintenance interrupted by a crash.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (default ~/.config/statdiary/config.yaml)")
	pf.StringVar(&a.root, "root", ".", "database root directory (env "+config.EnvRoot+")")
	pf.StringVar(&a.logLevel, "log-level", "info", "log level (env "+config.EnvLogLevel+")")
	pf.BoolVar(&a.logJSON, "log-json", false, "log JSON lines instead of console output")

	rootCmd.AddCommand(
		rebuildCmd(a),
		resumeCmd(a),
		renameCmd(a),
		mergeCmd(a),
		migrateCmd(a),
		addCmd(a),
		statusCmd(a),
		summaryCmd(a),
		tagStatsCmd(a),
		backupCmd(a),
		restoreCmd(a),
	)
	return rootCmd, a
}

func main() {
	rootCmd, a := newRootCmd()
	err := rootCmd.Execute()
	if err == nil {
		return
	}

	var busy *ledger.BusyError
	if errors.As(err, &busy) {
		fmt.Fprintf(os.Stderr, "database busy with %s task %q; run `statdiary resume` to finish it\n",
			busy.Task.Kind, busy.Task.String())
	} else {
		fmt.Fprintln(os.Stderr, "error:", err)
		if dberr.IsStructural(err) {
			fmt.Fprintln(os.Stderr, "move the offending entry out of the data folder and run `statdiary rebuild`")
		}
	}
	code := dberr.Code(err)
	a.logger.Debug().Err(err).Int("code", code).Msg("exit")
	os.Exit(code)
}
