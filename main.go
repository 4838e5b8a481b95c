package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/distantorigin/modpack-installer/internal/app"
	"github.com/distantorigin/modpack-installer/internal/audio"
	"github.com/distantorigin/modpack-installer/internal/config"
	"github.com/distantorigin/modpack-installer/internal/console"
	"github.com/distantorigin/modpack-installer/internal/events"
	"github.com/distantorigin/modpack-installer/internal/logging"
	"github.com/distantorigin/modpack-installer/internal/paths"
	"github.com/distantorigin/modpack-installer/internal/state"
	"github.com/distantorigin/modpack-installer/internal/version"
)

// installerVersion is stamped at build time with -ldflags "-X main.installerVersion=..."
var installerVersion = "2.0.0"

// errReported marks failures whose message was already printed
var errReported = errors.New("reported")

type globalFlags struct {
	configFile string
	installDir string
	quiet      bool
	verbose    bool
	json       bool
}

// session is everything a command needs once flags and config are resolved
type session struct {
	app     *app.App
	stdout  io.Writer
	json    bool
	quiet   bool
	logFile *os.File
}

func (s *session) close() {
	audio.StopAll()
	if s.logFile != nil {
		s.logFile.Close()
	}
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "modpack-installer",
		Short: "Install and update the modpack described by config.yaml",
		Long: `Install and update the modpack described by config.yaml.

Without a subcommand the installer updates an existing installation when the
manifest carries a newer pack version, installs the pack when it is missing or
an install was interrupted, and otherwise reports that nothing needs doing.`,
		Version:       installerVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd, flags)
			if err != nil {
				return err
			}
			defer s.close()

			mode, err := s.app.AutoMode()
			switch {
			case errors.Is(err, app.ErrUpToDate):
				err = reportUpToDate(s)
			case err == nil:
				err = runMode(cmd.Context(), s, mode)
			}
			console.WaitForKey("\nPress Enter to exit...", s.json || s.quiet)
			return err
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configFile, "config", "", "settings file (default: installer.yaml next to the executable)")
	pf.StringVar(&flags.installDir, "install-dir", "", "install root (default: the executable's directory)")
	pf.BoolVarP(&flags.quiet, "quiet", "q", false, "no console output or sounds")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "mirror the log to stderr")
	pf.BoolVar(&flags.json, "json", false, "write lifecycle events and results as JSON lines")

	root.AddCommand(
		newStatusCommand(flags),
		newSelectCommand(flags),
		newRunCommand(flags, state.ModeInstall, "Install the pack, resuming an interrupted install"),
		newRunCommand(flags, state.ModeUpdate, "Update an installed pack to the manifest's version"),
		newLogsCommand(flags),
	)
	return root
}

func newStatusCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report which modes can start",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd, flags)
			if err != nil {
				return err
			}
			defer s.close()

			status := s.app.Status()
			if s.json {
				return writeJSON(s.stdout, status)
			}
			fmt.Fprintf(s.stdout, "install: %s\nupdate:  %s\n", availability(status.CanInstall), availability(status.CanUpdate))
			return nil
		},
	}
}

func availability(ok bool) string {
	if ok {
		return "available"
	}
	return "unavailable"
}

func newSelectCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:       "select <install|update>",
		Short:     "Check whether a mode may start",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(state.ModeInstall), string(state.ModeUpdate)},
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := app.ParseMode(args[0])
			if err != nil {
				return err
			}
			s, err := openSession(cmd, flags)
			if err != nil {
				return err
			}
			defer s.close()

			sel := s.app.SelectMode(mode)
			if s.json {
				if err := writeJSON(s.stdout, sel); err != nil {
					return err
				}
				if !sel.IsAccept {
					return errReported
				}
				return nil
			}
			if !sel.IsAccept {
				return errors.New(sel.Error)
			}
			audio.Play(audio.SelectSound)
			fmt.Fprintf(s.stdout, "%s can start\n", mode)
			return nil
		},
	}
}

func newRunCommand(flags *globalFlags, mode state.Mode, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(mode),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd, flags)
			if err != nil {
				return err
			}
			defer s.close()
			return runMode(cmd.Context(), s, mode)
		},
	}
}

func newLogsCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logs",
		Short: "Open the log folder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd, flags)
			if err != nil {
				return err
			}
			defer s.close()
			return s.app.OpenLogFolder()
		},
	}
}

func reportUpToDate(s *session) error {
	if s.json {
		return writeJSON(s.stdout, struct {
			UpToDate bool `json:"upToDate"`
		}{UpToDate: true})
	}
	if !s.quiet {
		fmt.Fprintln(s.stdout, "The modpack is already installed and up to date.")
	}
	return nil
}

func runMode(ctx context.Context, s *session, mode state.Mode) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	err := s.app.Run(ctx, mode)
	if s.json {
		result := struct {
			Mode  state.Mode `json:"mode"`
			OK    bool       `json:"ok"`
			Error string     `json:"error,omitempty"`
		}{Mode: mode, OK: err == nil}
		if err != nil {
			result.Error = err.Error()
		}
		if werr := writeJSON(s.stdout, result); werr != nil {
			return werr
		}
		if err != nil {
			return errReported
		}
		return nil
	}

	if err != nil {
		audio.Play(audio.ErrorSound)
		return err
	}
	console.Log("\nDone. The %s finished successfully.", mode)
	return nil
}

// openSession resolves settings, opens the run's log file and wires the event sinks
func openSession(cmd *cobra.Command, flags *globalFlags) (*session, error) {
	exeDir, err := paths.ExecutableDir()
	if err != nil {
		return nil, err
	}

	cfg, used, err := config.Load(flags.configFile, exeDir)
	if err != nil {
		return nil, err
	}
	pf := cmd.Flags()
	if pf.Changed("install-dir") {
		cfg.InstallDir = flags.installDir
	}
	if pf.Changed("quiet") {
		cfg.Quiet = flags.quiet
	}
	if pf.Changed("verbose") {
		cfg.Verbose = flags.verbose
	}
	if flags.json {
		cfg.Quiet = true
	}

	layout := cfg.Layout(exeDir)
	logFile, err := logging.Setup(layout.LogDir(), cfg.Log.Level, cfg.Verbose)
	if err != nil {
		logging.Discard()
		fmt.Fprintf(os.Stderr, "Warning: logging is disabled: %v\n", err)
	}
	if used != "" {
		log.Info("loaded settings", "file", used)
	}

	console.Init(cfg.Quiet)
	audio.Init(cfg.Quiet)

	stdout := cmd.OutOrStdout()
	var sink events.Sink
	if flags.json {
		sink = events.NewJSONSink(stdout)
	} else {
		sink = events.Multi(console.NewRenderer(stdout), audio.NewCues())
	}

	v, err := version.Parse(installerVersion)
	if err != nil {
		log.Warn("installer version is not a semantic version", "version", installerVersion, "err", err)
	}

	return &session{
		app:     app.FromConfig(cfg, layout, v, sink),
		stdout:  stdout,
		json:    flags.json,
		quiet:   cfg.Quiet,
		logFile: logFile,
	}, nil
}

func writeJSON(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}
