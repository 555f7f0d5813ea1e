package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/pflag"
	"github.com/vk/chainrun/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
// Flags must precede the pipeline so that inputs such as "-2" reach it
// untouched.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := pflag.NewFlagSet("chainrun", pflag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.SetInterspersed(false)
	flagSet.Usage = func() { printUsage(output, flagSet) }

	var cfg app.Config
	flagSet.StringVarP(&cfg.Workdir, "workdir", "C", "", "Working directory for shell commands and relative paths (default: current directory).")
	flagSet.IntVarP(&cfg.Verbose, "verbose", "v", 0, "Trace level 0-3, overrides the pipeline's own verbose setting.")
	flagSet.IntVar(&cfg.HealthcheckPort, "healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")
	flagSet.StringVar(&cfg.LogFormat, "log-format", "text", "Log output format. Options: 'text' or 'json'.")
	flagSet.StringVar(&cfg.LogLevel, "log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	flagSet.BoolP("help", "h", false, "Show this help.")

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	if help, _ := flagSet.GetBool("help"); help {
		flagSet.Usage()
		return nil, true, nil
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		slog.Debug("No pipeline provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}
	cfg.Pipeline = rest[0]
	cfg.Inputs = rest[1:]
	slog.Debug("Pipeline determined.", "pipeline", cfg.Pipeline, "inputs", len(cfg.Inputs))

	config, err := app.NewConfig(cfg)
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}

func printUsage(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprint(w, `
chainrun - Runs chain pipelines of shell commands and registered functions.

Usage:
  chainrun [options] PIPELINE [INPUT...]

Arguments:
  PIPELINE
    Path to a .yaml or .json description file, or inline description text.
  INPUT
    Positional inputs bound to the pipeline's ins. JSON text is decoded.

Options:
`)
	fmt.Fprint(w, flagSet.FlagUsages())
}
