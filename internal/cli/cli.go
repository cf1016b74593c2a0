package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	bionic "github.com/simp-lee/bionic-epub"
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

// Options is the parsed command line.
type Options struct {
	Input     string
	Config    bionic.Config
	LogLevel  string
	LogFormat string
}

// usageNoInput is printed when no ePub path is given.
const usageNoInput = "Please provide the path to the EPUB file as an argument."

// Parse processes command-line arguments. It returns the parsed Options, a
// boolean indicating if the program should exit cleanly (help was shown),
// or an ExitError. Flags may appear before or after the ePub path.
func Parse(args []string, output io.Writer) (*Options, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("bionic-epub", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
bionic-epub - rewrite an ePub in bionic reading style.

Usage:
  bionic-epub [options] BOOK.epub

Arguments:
  BOOK.epub
    The ePub to transform. The result is written beside it as
    BionicC_BOOK.epub (colour) or BionicB_BOOK.epub (black).

Options:
`)
		flagSet.PrintDefaults()
	}

	blackFlag := flagSet.Bool("black", false, "Monochrome mode: bold without colour.")
	colorFlag := flagSet.Bool("color", false, "Polychrome mode: bold with cycling colours (default).")
	modeFlag := flagSet.String("mode", "", "Style mode: 'polychrome' or 'monochrome'.")
	configFlag := flagSet.String("config", "", "Path to an HCL configuration file.")
	elementsFlag := flagSet.String("elements", "all", "Elements to rewrite: 'all', 'prose', or a comma separated tag list.")
	opacityFlag := flagSet.Float64("opacity", bionic.DefaultOpacity, "Opacity of the trailing half of each word (0-1).")
	workersFlag := flagSet.Int("workers", 0, "Number of documents rewritten concurrently. 0 uses all CPUs.")
	continueFlag := flagSet.Bool("continue-on-error", false, "Log and skip documents that fail to rewrite instead of aborting.")
	unicodeFlag := flagSet.Bool("unicode-words", false, "Treat letters and digits of every script as word characters.")
	outputDirFlag := flagSet.String("output-dir", "", "Directory for the output ePub. Defaults to the input's directory.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	var positional []string
	rest := args
	for {
		if err := flagSet.Parse(rest); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				return nil, true, nil
			}
			return nil, false, &ExitError{Code: 2, Message: err.Error()}
		}
		if flagSet.NArg() == 0 {
			break
		}
		positional = append(positional, flagSet.Arg(0))
		rest = flagSet.Args()[1:]
	}
	slog.Debug("Arguments parsed successfully.", "positional", positional)

	if len(positional) == 0 || strings.TrimSpace(positional[0]) == "" {
		return nil, false, &ExitError{Code: 2, Message: usageNoInput}
	}
	if len(positional) > 1 {
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("expected one ePub path, got %d", len(positional))}
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}
	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	if *blackFlag && *colorFlag {
		return nil, false, &ExitError{Code: 2, Message: "-black and -color are mutually exclusive"}
	}

	cfg := bionic.DefaultConfig()
	if *configFlag != "" {
		loaded, err := bionic.LoadConfigFile(*configFlag, cfg)
		if err != nil {
			return nil, false, &ExitError{Code: 2, Message: err.Error()}
		}
		cfg = loaded
	}

	// Flags given explicitly override the config file.
	var flagErr error
	flagSet.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "black":
			if *blackFlag {
				cfg.Mode = bionic.Monochrome
			}
		case "color":
			if *colorFlag {
				cfg.Mode = bionic.Polychrome
			}
		case "mode":
			m, err := bionic.ParseMode(*modeFlag)
			if err != nil {
				flagErr = err
				return
			}
			cfg.Mode = m
		case "elements":
			cfg.Elements = bionic.ParseElements(*elementsFlag)
		case "opacity":
			cfg.Opacity = *opacityFlag
		case "workers":
			cfg.Workers = *workersFlag
		case "continue-on-error":
			cfg.ContinueOnError = *continueFlag
		case "unicode-words":
			cfg.UnicodeWords = *unicodeFlag
		case "output-dir":
			cfg.OutputDir = *outputDirFlag
		}
	})
	if flagErr != nil {
		return nil, false, &ExitError{Code: 2, Message: flagErr.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	opts := &Options{
		Input:     positional[0],
		Config:    cfg,
		LogLevel:  logLevel,
		LogFormat: logFormat,
	}
	slog.Debug("CLI parser finished successfully.", "input", opts.Input, "mode", cfg.Mode.String())
	return opts, false, nil
}
