// Package api is the public, embeddable surface of tsb: a single Bundle
// call that walks one entry point's transitive local imports and produces
// a self-contained output script, following the same "small public
// façade over a larger internal engine" shape as the teacher's own
// pkg/api (api.Transform/api.Build), trimmed to this system's single
// Bundle operation (spec §1, §6.1).
package api

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tsbundle/tsb/internal/api_helpers"
	"github.com/tsbundle/tsb/internal/assemble"
	"github.com/tsbundle/tsb/internal/compiler"
	"github.com/tsbundle/tsb/internal/config"
	"github.com/tsbundle/tsb/internal/fs"
	"github.com/tsbundle/tsb/internal/graph"
	"github.com/tsbundle/tsb/internal/helpers"
	"github.com/tsbundle/tsb/internal/logger"
	"github.com/tsbundle/tsb/internal/maincontext"
	"github.com/tsbundle/tsb/internal/queue"
	"github.com/tsbundle/tsb/internal/refine"
	"github.com/tsbundle/tsb/internal/resolver"
)

// Options is the public configuration object of spec §6.1.
type Options struct {
	EntryPaths []string
	Output     string // output path template; see ExpandOutputTemplate

	GlobalModuleVarName         string
	Module                      string
	ExportLib                   bool
	BundleExternals             bool
	BundleExternalsWhitelist    []string
	Browser                     bool
	Externals                   []string
	Preimport                   []string
	SuppressDynamicImportErrors bool
	SuppressModuleNotFoundError bool
	CheckCircularDependency     bool
	Verbose                     bool
	CacheMemory                 string
	WatchWaitingMS              int
	NoSourceMapWorker           bool
	EmitDeclaration             bool
	Target                      string // forwarded compiler target, e.g. "es2020"
	CompilerOptions             map[string]interface{}

	Concurrency int // 0 selects queue.DefaultConcurrency()
}

// moduleModeTypos flags a misspelled bundlerOptions.module value, the
// same "did you mean" treatment the teacher's own CLI gives unknown flag
// values via internal/helpers.TypoDetector.
var moduleModeTypos = helpers.MakeTypoDetector([]string{
	"none", "commonjs", "es2015", "this", "window", "self", "var", "let", "const",
})

// Diagnostic mirrors one collected logger.Msg for callers who embed tsb
// as a library rather than driving it through the CLI.
type Diagnostic struct {
	Code    int
	Text    string
	IsError bool
}

// BundleResult is returned per entry point.
type BundleResult struct {
	EntryPath      string
	OutputPath     string
	JS             string
	SourceMap      string
	Declaration    string
	Diagnostics    []Diagnostic
	RefinementCount int
}

// Bundle runs one build across every entry in opts.EntryPaths, sharing
// mc's registry, caches, and error counter across all of them (spec §3's
// Ownership: the IdRegistry is process-wide; each Bundler owns its own
// moduleByName graph). It returns one BundleResult per successfully
// configured entry; entries sharing an output path with an earlier one
// are skipped and reported as spec §7's Duplicated.
func Bundle(ctx context.Context, mc *maincontext.MainContext, opts Options) ([]BundleResult, error) {
	if len(opts.EntryPaths) == 0 {
		return nil, fmt.Errorf("no entry paths given")
	}

	vfs, err := fs.RealFS(fs.RealFSOptions{})
	if err != nil {
		return nil, err
	}

	var results []BundleResult
	var claimed []string
	defer func() {
		for _, p := range claimed {
			mc.ReleaseOutput(p)
		}
	}()
	for _, entry := range opts.EntryPaths {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}

		outputPath := ExpandOutputTemplate(opts.Output, entry)
		if err := mc.ClaimOutput(outputPath); err != nil {
			results = append(results, BundleResult{
				EntryPath: entry, OutputPath: outputPath,
				Diagnostics: []Diagnostic{{Code: logger.Code(logger.MsgID_Duplicated), Text: err.Error(), IsError: true}},
			})
			continue
		}

		claimed = append(claimed, outputPath)
		res, err := bundleOne(ctx, mc, vfs, entry, outputPath, opts)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}

	mc.Flush(makeLog(nil))
	return results, nil
}

func bundleOne(ctx context.Context, mc *maincontext.MainContext, vfs fs.FS, entryPath, outputPath string, opts Options) (BundleResult, error) {
	var collected []logger.Msg
	log := makeLog(&collected)

	var timer *helpers.Timer
	if api_helpers.UseTimer {
		timer = &helpers.Timer{}
	}

	bopts := toBundlerOptions(opts)
	reg := mc.RegistryFor(outputPath)

	res1 := resolver.New(vfs, bopts)
	fe := compiler.NewESBuildFrontEnd(opts.Target, opts.CompilerOptions)

	r := &refine.Refiner{
		FS: vfs, Resolver: res1, FrontEnd: fe,
		DiskCache: mc.DiskCache, MemCache: mc.MemCache, Registry: reg,
		Log: log, Options: bopts,
	}

	q := queue.New(opts.Concurrency)
	driver := graph.NewDriver(r, q, opts.CheckCircularDependency)

	absEntry := entryPath
	if !filepath.IsAbs(absEntry) {
		absEntry = filepath.Join(vfs.Cwd(), absEntry)
	}

	timer.Begin("Graph discovery and refinement")
	runErr := driver.Run(absEntry, nil, opts.EmitDeclaration)
	timer.End("Graph discovery and refinement")
	if runErr != nil {
		log.AddID(logger.MsgID_CircularDependency, logger.Error, nil, logger.Range{}, runErr.Error())
	}

	items := driver.Drain()

	exportRule, varName, ok := config.ParseModuleMode(bopts.Module)
	if !ok {
		exportRule, varName = config.ExportNone, ""
		if bopts.Module != "" {
			msg := fmt.Sprintf("Invalid bundlerOptions.module value %q", bopts.Module)
			if corrected, found := moduleModeTypos.MaybeCorrectTypo(bopts.Module); found {
				msg += fmt.Sprintf("; did you mean %q?", corrected)
			}
			log.AddID(logger.MsgID_WrongUsage, logger.Warning, nil, logger.Range{}, msg)
		}
	}

	var entryModule *graph.BundlerModule
	for _, it := range items {
		if it.Module.IsEntry {
			entryModule = it.Module
		}
	}

	asmOpts := assemble.Options{
		GlobalModuleVarName: firstNonEmpty(bopts.GlobalModuleVarName, "__tsb"),
		ExportRule:          exportRule,
		ExportVarName:       varName,
		ExportLib:           bopts.ExportLib,
		Browser:             bopts.Browser,
		OutputPath:          outputPath,
		InlineSourceMap:     bopts.NoSourceMapWorker,
		EmitDeclaration:     opts.EmitDeclaration,
	}
	timer.Begin("Output assembly")
	assembled := assemble.Assemble(entryModule, items, asmOpts)
	timer.End("Output assembly")

	timer.Log(log)
	mc.IncrementErrors(driver.ErrorCount())

	var diags []Diagnostic
	for _, m := range collected {
		diags = append(diags, Diagnostic{Code: logger.Code(m.ID), Text: m.Data.Text, IsError: m.Kind == logger.Error})
	}

	return BundleResult{
		EntryPath: entryPath, OutputPath: outputPath,
		JS: assembled.JS, SourceMap: assembled.SourceMapJSON, Declaration: assembled.Declaration,
		Diagnostics: diags, RefinementCount: len(items),
	}, nil
}

func makeLog(sink *[]logger.Msg) logger.Log {
	return logger.Log{
		AddMsg: func(m logger.Msg) {
			if sink != nil {
				*sink = append(*sink, m)
			}
		},
		HasErrors: func() bool { return false },
		AlmostDone: func() {},
		Done:       func() []logger.Msg { return nil },
	}
}

func toBundlerOptions(opts Options) config.BundlerOptions {
	return config.BundlerOptions{
		GlobalModuleVarName:         opts.GlobalModuleVarName,
		Module:                      opts.Module,
		ExportLib:                   opts.ExportLib,
		BundleExternals:             opts.BundleExternals,
		BundleExternalsWhitelist:    opts.BundleExternalsWhitelist,
		Browser:                     opts.Browser,
		Externals:                   opts.Externals,
		Preimport:                   opts.Preimport,
		SuppressDynamicImportErrors: opts.SuppressDynamicImportErrors,
		SuppressModuleNotFoundError: opts.SuppressModuleNotFoundError,
		CheckCircularDependency:     opts.CheckCircularDependency,
		Verbose:                     opts.Verbose,
		CacheMemory:                 opts.CacheMemory,
		WatchWaitingMS:              opts.WatchWaitingMS,
		NoSourceMapWorker:           opts.NoSourceMapWorker,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ExpandOutputTemplate implements spec §6.1's output template expansion:
// "[name]" and "[dirname]" expand to the entry's basename-without-extension
// and dirname; "[FOO]" expands from the process environment. The default
// template is "<entry_dir>/<entry_name>.bundle.js".
func ExpandOutputTemplate(template, entryPath string) string {
	dir := filepath.Dir(entryPath)
	base := filepath.Base(entryPath)
	name := strings.TrimSuffix(base, filepath.Ext(base))

	if template == "" {
		return filepath.Join(dir, name+".bundle.js")
	}

	out := template
	out = strings.ReplaceAll(out, "[name]", name)
	out = strings.ReplaceAll(out, "[dirname]", dir)
	out = expandEnvBrackets(out)
	return out
}

func expandEnvBrackets(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '[' {
			if j := strings.IndexByte(s[i:], ']'); j > 0 {
				name := s[i+1 : i+j]
				if isEnvName(name) {
					sb.WriteString(envLookup(name))
					i += j
					continue
				}
			}
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

func envLookup(name string) string {
	return os.Getenv(name)
}

func isEnvName(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if !(c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_') {
			return false
		}
	}
	return true
}
