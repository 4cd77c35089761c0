// Package main implements the CLI driver for the reflective call inliner.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/zboralski/lattice/render"

	"github.com/715d/reflinline/internal/config"
	"github.com/715d/reflinline/internal/scene"
	"github.com/715d/reflinline/internal/trace"
	"github.com/715d/reflinline/pkg/inliner"
	"github.com/715d/reflinline/pkg/trimmer"
)

// Flags holds the command-line options shared by every command.
type Flags struct {
	ConfigPath     string // the TOML configuration file
	Verbose        bool   // enables detailed output and statistics
	JSON           bool   // enables JSON output format
	Profile        bool   // enables CPU and memory profiling
	FailUnexpected bool   // exit 1 when a traced group matched no call site
	Graph          string // the DOT file the trim command writes
}

const (
	exitDiagnostics = 1
	exitError       = 2
)

var (
	// Set via ldflags during build.
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

var (
	flags Flags
	cfg   = config.Default()
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "reflinline",
		Short: "Inline traced reflective calls",
		Long: `reflinline rewrites the reflective calls of a program into guarded direct calls.

Each Class.forName, Class.newInstance, Constructor.newInstance and Method.invoke
site that a trace shows reaching known targets is preceded by one attempt per
target. An attempt runs only when the decision routine says so, and the original
call stays in place as the fallback. The targets seen in the trace are recorded
in a registry so that calls reaching anything else can be reported at run time.`,
		Example: `  reflinline -p program.yaml -t refl.log -o out.yaml     # Rewrite a program
  reflinline rewrite --config reflinline.toml            # Take settings from a file
  reflinline rewrite -p program.yaml -t refl.log --json  # JSON report
  reflinline trim -p program.yaml --points-to pts.yaml   # Trim the call graph
  reflinline trim -p program.yaml --graph cg.dot         # Trim with rapid type analysis`,
		Args:               cobra.NoArgs,
		RunE:               runRewrite,
		PersistentPreRunE:  setup,
		PersistentPostRunE: teardown,
		SilenceUsage:       true,
		SilenceErrors:      true,
		Version:            version,
	}

	// Set custom version template to include build info.
	rootCmd.SetVersionTemplate(fmt.Sprintf("reflinline version %s\n  commit: %s\n  built:  %s\n", version, gitCommit, buildTime))

	// Define flags.
	rootCmd.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "Read settings from a TOML file (default "+config.FileName+" if present)")
	rootCmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&flags.JSON, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&flags.Profile, "profile", false, "Enable CPU and memory profiling (writes cpu.prof and mem.prof to current directory)")
	rootCmd.PersistentFlags().StringVarP(&cfg.Program, "program", "p", "", "Program file (YAML)")
	addRewriteFlags(rootCmd.Flags())

	rewriteCmd := &cobra.Command{
		Use:   "rewrite",
		Short: "Rewrite the reflective calls of a program (default command)",
		Args:  cobra.NoArgs,
		RunE:  runRewrite,
	}
	addRewriteFlags(rewriteCmd.Flags())

	trimCmd := &cobra.Command{
		Use:   "trim",
		Short: "Trim the call graph of a program with points-to facts",
		Args:  cobra.NoArgs,
		RunE:  runTrim,
	}
	trimCmd.Flags().StringVar(&cfg.PointsTo, "points-to", "", "Points-to file (YAML); rapid type analysis is used when absent")
	trimCmd.Flags().StringVar(&flags.Graph, "graph", "", "Write the trimmed call graph as DOT to this file")

	rootCmd.AddCommand(rewriteCmd, trimCmd)

	if err := rootCmd.Execute(); err != nil {
		_ = teardown(nil, nil)
		if err.Error() != "" {
			fmt.Fprintln(os.Stderr, err.Error())
		}
		var cErr codedError
		if errors.As(err, &cErr) {
			os.Exit(cErr.code)
		}
		os.Exit(exitError)
	}
}

func addRewriteFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&cfg.Trace, "trace", "t", "", "Trace of observed reflective calls")
	fs.BoolVar(&cfg.Caching, "caching", false, "Skip the registry check for handles already checked")
	fs.BoolVar(&cfg.Validate, "validate", true, "Validate every rewritten body")
	fs.StringVarP(&cfg.Output, "output", "o", "", "Write the rewritten program here instead of stdout")
	fs.StringVar(&cfg.CFGDir, "cfg-dir", "", "Write the control flow graph of each rewritten method to this directory")
	fs.BoolVar(&flags.FailUnexpected, "fail-unexpected", false, "Exit with status 1 when a traced group matched no call site")
}

// loadConfig reads the configuration file and lets every flag set on the
// command line override it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	fileCfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return nil, err
	}
	return overlay(fileCfg, cfg, cmd.Flags()), nil
}

// overlay returns base with the fields of flagCfg whose flag was changed.
func overlay(base, flagCfg *config.Config, fs *pflag.FlagSet) *config.Config {
	out := *base
	for name, apply := range map[string]func(){
		"program":   func() { out.Program = flagCfg.Program },
		"trace":     func() { out.Trace = flagCfg.Trace },
		"caching":   func() { out.Caching = flagCfg.Caching },
		"validate":  func() { out.Validate = flagCfg.Validate },
		"output":    func() { out.Output = flagCfg.Output },
		"cfg-dir":   func() { out.CFGDir = flagCfg.CFGDir },
		"points-to": func() { out.PointsTo = flagCfg.PointsTo },
	} {
		if fs.Changed(name) {
			apply()
		}
	}
	return &out
}

// Report is the rewrite output.
type Report struct {
	Groups   []inliner.GroupReport `json:"groups"`
	Registry map[string][]string   `json:"registry"`
	Stats    struct {
		Methods         int           `json:"methods"`
		Groups          int           `json:"groups"`
		Sites           int           `json:"sites"`
		UnmatchedGroups int           `json:"unmatched_groups"`
		Duration        time.Duration `json:"duration"`
	} `json:"stats"`
}

func runRewrite(cmd *cobra.Command, _ []string) error {
	c, err := loadConfig(cmd)
	if err != nil {
		return errWithCode(err, exitError)
	}
	if err := c.Check(); err != nil {
		return errWithCode(fmt.Errorf("rewrite: %w", err), exitError)
	}

	slog.Info("starting rewrite", "program", c.Program, "trace", c.Trace)
	report, s, err := rewrite(c)
	if err != nil {
		return errWithCode(fmt.Errorf("rewrite: %w", err), exitError)
	}

	// Step 1: write the rewritten program.
	reportOut := io.Writer(os.Stderr)
	if c.Output != "" {
		if err := writeProgramFile(s, c.Output); err != nil {
			return errWithCode(err, exitError)
		}
		reportOut = os.Stdout
	} else if err := s.Write(os.Stdout); err != nil {
		return errWithCode(fmt.Errorf("write program: %w", err), exitError)
	}

	// Step 2: export control flow graphs.
	if c.CFGDir != "" {
		if err := writeCFGs(s, report, c.CFGDir); err != nil {
			return errWithCode(fmt.Errorf("write cfgs: %w", err), exitError)
		}
	}

	// Step 3: report.
	if err := writeReport(reportOut, report); err != nil {
		return errWithCode(fmt.Errorf("format results: %w", err), exitError)
	}
	if flags.FailUnexpected && report.Stats.UnmatchedGroups > 0 {
		return errWithCode(nil, exitDiagnostics)
	}
	return nil
}

func rewrite(c *config.Config) (*Report, *scene.Scene, error) {
	start := time.Now()

	s, err := scene.LoadFile(c.Program)
	if err != nil {
		return nil, nil, err
	}
	o, err := trace.ReadFile(c.Trace, s)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("read trace", "methods", len(o.Methods()))

	res, err := inliner.New(s, inliner.Options{Caching: c.Caching, Validate: c.Validate}).Run(o)
	if err != nil {
		return nil, nil, err
	}
	duration := time.Since(start)
	slog.Info("rewrite completed", "dur", duration)

	r := &Report{Groups: res.Groups, Registry: res.Registry}
	r.Stats.Methods = len(res.Methods())
	r.Stats.Groups = len(res.Groups)
	r.Stats.Sites = res.Sites()
	r.Stats.Duration = duration
	for _, g := range res.Groups {
		if g.Sites == 0 {
			r.Stats.UnmatchedGroups++
			slog.Warn("traced group matched no call site", "method", g.Method, "kind", g.Kind.LogName(), "id", g.ID)
		}
	}
	return r, s, nil
}

// writeProgramFile writes the application classes of s to path. The error
// from closing the file is reported like a write error.
func writeProgramFile(s *scene.Scene, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output: %w", err)
	}
	if err := s.Write(f); err != nil {
		f.Close()
		return fmt.Errorf("write program: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing output: %w", err)
	}
	return nil
}

// dotFileName turns a method signature into a file name.
func dotFileName(sig string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			return r
		}
		return '_'
	}, strings.Trim(sig, "<>"))
	return name + ".dot"
}

func writeCFGs(s *scene.Scene, r *Report, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	seen := make(map[string]bool)
	for _, g := range r.Groups {
		if seen[g.Method] {
			continue
		}
		seen[g.Method] = true
		m, err := s.Method(g.Method)
		if err != nil {
			return err
		}
		body, err := m.RetrieveBody()
		if err != nil {
			return err
		}
		path := filepath.Join(dir, dotFileName(g.Method))
		if err := os.WriteFile(path, []byte(body.DOT(g.Method)), 0o644); err != nil {
			return err
		}
		slog.Debug("wrote cfg", "method", g.Method, "file", path)
	}
	return nil
}

func writeReport(w io.Writer, r *Report) error {
	if flags.JSON {
		data, err := json.MarshalIndent(jOutput{
			Report:    r,
			Version:   version,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling json output: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	if flags.Verbose {
		slog.Info("",
			"methods", r.Stats.Methods,
			"groups", r.Stats.Groups,
			"sites", r.Stats.Sites,
			"unmatched_groups", r.Stats.UnmatchedGroups,
			"duration", r.Stats.Duration.String())
	}

	var output strings.Builder
	for _, g := range r.Groups {
		// Format: method kind#id sites (targets)
		output.WriteString(fmt.Sprintf("%s %s#%d %d site(s) [%s]\n",
			g.Method, g.Kind.LogName(), g.ID, g.Sites, strings.Join(g.Targets, ", ")))
	}
	_, err := io.WriteString(w, output.String())
	return err
}

type jOutput struct {
	*Report
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

func runTrim(cmd *cobra.Command, _ []string) error {
	c, err := loadConfig(cmd)
	if err != nil {
		return errWithCode(err, exitError)
	}
	if err := c.CheckTrim(); err != nil {
		return errWithCode(fmt.Errorf("trim: %w", err), exitError)
	}

	s, err := scene.LoadFile(c.Program)
	if err != nil {
		return errWithCode(fmt.Errorf("trim: %w", err), exitError)
	}
	cg, err := trimmer.Build(s)
	if err != nil {
		return errWithCode(fmt.Errorf("trim: %w", err), exitError)
	}
	var pts trimmer.PointsTo
	if c.PointsTo != "" {
		pts, err = trimmer.LoadPointsTo(c.PointsTo)
	} else {
		slog.Info("no points-to file, running rapid type analysis")
		pts, err = trimmer.AnalyzeRTA(cg)
	}
	if err != nil {
		return errWithCode(fmt.Errorf("trim: %w", err), exitError)
	}
	report, err := trimmer.Trim(cg, pts)
	if err != nil {
		return errWithCode(fmt.Errorf("trim: %w", err), exitError)
	}

	if flags.Graph != "" {
		dot := render.DOT(cg.Graph(), "call graph")
		if err := os.WriteFile(flags.Graph, []byte(dot), 0o644); err != nil {
			return errWithCode(fmt.Errorf("write graph: %w", err), exitError)
		}
	}

	if flags.JSON {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return errWithCode(fmt.Errorf("marshaling json output: %w", err), exitError)
		}
		fmt.Println(string(data))
	} else {
		fmt.Printf("removed %d call site(s), retargeted %d\n", report.Removed, report.Retargeted)
		for _, d := range report.Diagnostics {
			fmt.Println(d.String())
		}
	}

	if len(report.Diagnostics) > 0 {
		return errWithCode(nil, exitDiagnostics)
	}
	return nil
}

var cpuProfile *os.File

func setup(_ *cobra.Command, _ []string) error {
	// Disable logger unless verbose flag is set.
	slog.SetDefault(slog.New(slog.DiscardHandler))
	if flags.Verbose {
		opts := &slog.HandlerOptions{Level: slog.LevelDebug}
		var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
		if flags.JSON {
			handler = slog.NewJSONHandler(os.Stderr, opts)
		}
		logger := slog.New(handler)
		slog.SetDefault(logger)
	}

	if !flags.Profile {
		return nil
	}

	// Start CPU profiling.
	var err error
	cpuProfile, err = os.Create("cpu.prof")
	if err != nil {
		return fmt.Errorf("creating cpu.prof: %w", err)
	}
	if err := pprof.StartCPUProfile(cpuProfile); err != nil {
		_ = cpuProfile.Close()
		return fmt.Errorf("starting CPU profile: %w", err)
	}
	slog.Info("cpu profiling started", "file", "cpu.prof")
	return nil
}

func teardown(_ *cobra.Command, _ []string) error {
	if !flags.Profile || cpuProfile == nil {
		return nil
	}

	// Stop CPU profiling and close file.
	pprof.StopCPUProfile()
	defer cpuProfile.Close()
	cpuProfile = nil
	slog.Info("cpu profiling stopped", "file", "cpu.prof")

	// Write memory profile.
	memFile, err := os.Create("mem.prof")
	if err != nil {
		return fmt.Errorf("creating mem.prof: %w", err)
	}
	defer memFile.Close()
	runtime.GC() // Get up-to-date statistics
	if err := pprof.WriteHeapProfile(memFile); err != nil {
		return fmt.Errorf("writing memory profile: %w", err)
	}
	slog.Info("memory profiling completed", "file", "mem.prof")
	return nil
}

func errWithCode(err error, code int) error {
	return codedError{err: err, code: code}
}

type codedError struct {
	err  error
	code int
}

func (e codedError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return ""
}

func (e codedError) Unwrap() error { return e.err }
