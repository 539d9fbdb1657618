// stubgen converts the classes of dex files and APKs into a jar of
// compile-only stubs, merges prebuilt archives into it and appends missing
// AIDL interface declarations.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"stubgen/internal/config"
	"stubgen/internal/convert"
)

// options holds the parsed command line.
type options struct {
	dexFiles     listFlag
	zipFiles     listFlag
	outputFile   string
	aidlFile     string
	configFile   string
	include      string
	exclude      string
	showProgress bool
	verbose      bool
	showHelp     bool
}

// listFlag is a repeatable flag; each value may also be comma-separated.
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(v string) error {
	*l = append(*l, parseCommaSeparated(v)...)
	return nil
}

func newFlagSet(o *options, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("stubgen", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.Var(&o.dexFiles, "dex", "Input .dex, .apk or .jar file (repeatable)")
	fs.Var(&o.dexFiles, "d", "Input dex file (shorthand)")

	fs.Var(&o.zipFiles, "zip", "Prebuilt archive to merge into the output (repeatable)")
	fs.Var(&o.zipFiles, "z", "Prebuilt archive (shorthand)")

	fs.StringVar(&o.outputFile, "out", "", "Output jar (required)")
	fs.StringVar(&o.outputFile, "o", "", "Output jar (shorthand)")

	fs.StringVar(&o.aidlFile, "aidl", "", "AIDL declaration file to append missing interfaces to")
	fs.StringVar(&o.aidlFile, "a", "", "AIDL declaration file (shorthand)")

	fs.StringVar(&o.configFile, "config", "", "Config file (YAML/JSON/TOML)")
	fs.StringVar(&o.configFile, "c", "", "Config file (shorthand)")

	fs.StringVar(&o.include, "include", "", "Only convert these packages (comma-separated)")
	fs.StringVar(&o.include, "I", "", "Only convert these packages (shorthand)")
	fs.StringVar(&o.exclude, "exclude", "", "Skip these packages (comma-separated)")
	fs.StringVar(&o.exclude, "X", "", "Skip these packages (shorthand)")

	fs.BoolVar(&o.showProgress, "progress", false, "Show progress bars")
	fs.BoolVar(&o.showProgress, "p", false, "Show progress bars (shorthand)")
	fs.BoolVar(&o.verbose, "v", false, "Verbose output")
	fs.BoolVar(&o.showHelp, "h", false, "Show help")
	fs.BoolVar(&o.showHelp, "help", false, "Show help")

	fs.Usage = func() { usage(fs, stderr) }
	return fs
}

func usage(fs *flag.FlagSet, w io.Writer) {
	fmt.Fprintf(w, `stubgen - dex to stub jar converter

Usage:
    stubgen -d <classes.dex> -o <stubs.jar> [options]

Options:
`)
	fs.PrintDefaults()
	fmt.Fprintf(w, `
Examples:
    # Convert an APK into a stub jar
    stubgen -d app.apk -o stubs.jar

    # Convert a multidex build and merge prebuilt resources
    stubgen -d classes.dex -d classes2.dex -z res.jar -o stubs.jar

    # Append missing AIDL interfaces to framework.aidl
    stubgen -d framework.jar -o android.jar -a framework.aidl

    # Only convert the public SDK packages
    stubgen -d framework.jar -o android.jar -I android,java -X android.internal

`)
}

func main() {
	if err := run(os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stderr io.Writer) error {
	var o options
	fs := newFlagSet(&o, stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	if o.showHelp {
		fs.Usage()
		return nil
	}

	// Validate required flags
	if len(o.dexFiles) == 0 {
		return fmt.Errorf("at least one dex input is required (-d or --dex)")
	}
	if o.outputFile == "" {
		return fmt.Errorf("output file is required (-o or --out)")
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}
	for _, in := range append(append([]string(nil), o.dexFiles...), o.zipFiles...) {
		if _, err := os.Stat(in); err != nil {
			return fmt.Errorf("input file not found: %s", in)
		}
	}

	// Load configuration
	cfg := config.New()
	if o.configFile != "" {
		if err := cfg.LoadFile(o.configFile); err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
	}

	// Apply CLI overrides
	if o.include != "" {
		cfg.Options.IncludePackages = parseCommaSeparated(o.include)
	}
	if o.exclude != "" {
		cfg.Options.ExcludePackages = parseCommaSeparated(o.exclude)
	}

	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	var progress convert.Progress = convert.NopProgress{}
	if o.showProgress {
		progress = newBarProgress(stderr)
	}

	res, err := convert.Run(convert.Options{
		Inputs:   o.dexFiles,
		Archives: o.zipFiles,
		Output:   o.outputFile,
		Aidl:     o.aidlFile,
		Config:   cfg,
		Logger:   logger,
		Progress: progress,
	})
	if err != nil {
		return err
	}

	if o.verbose {
		fmt.Fprintf(stderr, "Generated %d stubs (%d entries) to %s\n", len(res.Stubs), res.Entries, o.outputFile)
		for _, name := range res.Declared {
			fmt.Fprintf(stderr, "  + interface %s\n", name)
		}
	}

	return nil
}

// parseCommaSeparated splits a comma-separated string into a slice of trimmed strings.
func parseCommaSeparated(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
