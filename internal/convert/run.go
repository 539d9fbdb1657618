package convert

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"stubgen/internal/aidl"
	"stubgen/internal/archive"
	"stubgen/internal/config"
	"stubgen/internal/generator"
	"stubgen/internal/model"
	"stubgen/internal/parser"
)

// DefaultCreatedBy is the Created-By value of the jar manifest.
const DefaultCreatedBy = "stubgen"

// Options describes one conversion run.
type Options struct {
	Inputs    []string       // .dex files or .apk/.jar/.zip containers
	Archives  []string       // Supplementary archives merged after the stubs
	Output    string         // Output jar path
	Aidl      string         // Optional AIDL declaration file
	Config    *config.Config // Defaults to config.New()
	Logger    *slog.Logger   // Defaults to a discarding logger
	Progress  Progress       // Defaults to NopProgress
	CreatedBy string         // Manifest Created-By, defaults to DefaultCreatedBy
}

// Result summarizes a completed run.
type Result struct {
	RunID      uuid.UUID
	BuildID    uuid.UUID // uuid.Nil when no manifest was written
	Classes    int       // Classes selected for conversion
	Stubs      []string  // Stub entries written
	Merged     int       // Entries copied from supplementary archives
	Entries    int       // Total entries in the output
	Interfaces []string  // AIDL interfaces discovered, first-discovered order
	Declared   []string  // Declarations appended to the AIDL file
}

// Run executes a conversion run. The output archive only appears at
// opts.Output when every stub and every supplementary entry was written.
// AIDL reconciliation runs after the archive is committed; its failure is
// returned as a *ReconcileError together with the result.
func Run(opts Options) (*Result, error) {
	if opts.Output == "" {
		return nil, errors.New("no output archive given")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.New()
	}
	progress := opts.Progress
	if progress == nil {
		progress = NopProgress{}
	}
	createdBy := opts.CreatedBy
	if createdBy == "" {
		createdBy = DefaultCreatedBy
	}
	res := &Result{RunID: uuid.New()}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("run", res.RunID.String())

	classes, err := readInputs(parser.New(), opts.Inputs, cfg, logger)
	if err != nil {
		return nil, err
	}
	res.Classes = len(classes)

	asm, err := archive.Create(opts.Output,
		archive.WithLogger(logger),
		archive.WithMergeProgress(mergeProgress(progress)),
	)
	if err != nil {
		return nil, err
	}
	defer asm.Close()

	marker := cfg.Marker()
	seen := make(map[string]bool)
	discover := func(c *model.Class) {
		if !aidl.IsAidlInterface(c, marker) {
			return
		}
		name := model.SourceName(c.Name)
		if !seen[name] {
			seen[name] = true
			res.Interfaces = append(res.Interfaces, name)
		}
	}

	gen := generator.New(cfg, logger)
	if res.Stubs, err = Convert(classes, gen, asm, discover, progress); err != nil {
		return nil, err
	}
	logger.Info("stubs written", "count", len(res.Stubs), "aidl_interfaces", len(res.Interfaces))

	if res.Merged, err = Merge(asm, opts.Archives); err != nil {
		return nil, err
	}

	// A manifest from a supplementary archive takes precedence.
	if cfg.ManifestEnabled() {
		if res.BuildID, err = asm.WriteManifest(createdBy); err != nil {
			return nil, fmt.Errorf("writing manifest: %w", err)
		}
	}
	res.Entries = len(asm.Names())
	if err := asm.Commit(); err != nil {
		return nil, err
	}
	logger.Info("archive written", "path", opts.Output, "entries", res.Entries, "merged", res.Merged)

	if opts.Aidl == "" {
		return res, nil
	}
	if _, err := os.Stat(opts.Aidl); errors.Is(err, os.ErrNotExist) {
		logger.Warn("declaration file not found, skipping", "path", opts.Aidl)
		return res, nil
	}
	res.Declared, err = ReconcileInterfaces(opts.Aidl, res.Interfaces, cfg.Aidl.Keyword)
	if err != nil {
		return res, err
	}
	logger.Info("declarations reconciled", "path", opts.Aidl, "appended", len(res.Declared))
	return res, nil
}

// readInputs parses every input in order and keeps the classes selected by
// the package filters.
func readInputs(p *parser.Parser, inputs []string, cfg *config.Config, logger *slog.Logger) ([]model.Class, error) {
	var classes []model.Class
	for _, in := range inputs {
		cs, err := p.ParseFile(in)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", in, err)
		}
		kept := 0
		for _, c := range cs {
			if cfg.ShouldIncludeClass(c.Name) {
				classes = append(classes, c)
				kept++
			}
		}
		logger.Debug("parsed input", "input", in, "classes", len(cs), "selected", kept)
	}
	return classes, nil
}
