// Command tsb is the CLI surface of spec §6.4, built on
// github.com/spf13/cobra the way bennypowers-cem/cmd and
// salmanmkc-gh-aw/cmd/gh-aw build their own subcommand trees, in place of
// the teacher's own hand-rolled flag scanner (cmd/esbuild/main.go in the
// original tree).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tsbundle/tsb/internal/api_helpers"
	"github.com/tsbundle/tsb/internal/exitcode"
	"github.com/tsbundle/tsb/internal/maincontext"
	"github.com/tsbundle/tsb/internal/tsbconfig"
	"github.com/tsbundle/tsb/pkg/api"
)

var (
	flagOutput      string
	flagWatch       bool
	flagClearCache  bool
	flagConfig      string
	flagVerbose     bool
	flagDeclaration bool
	flagMetricsAddr string
	flagCacheMemory string
	flagModule      string
	flagCheckCircular bool
	flagTiming      bool
)

var rootCmd = &cobra.Command{
	Use:   "tsb [entries...]",
	Short: "Bundle a TypeScript/JavaScript entry point into one self-contained script",
	Long: `tsb bundles a TypeScript/JavaScript project - an entry source file plus its
transitive local imports - into a single self-contained output script and,
optionally, a single aggregated type-declaration file and a combined source map.`,
	RunE: runBundle,
}

func init() {
	rootCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "output path template; [name]/[dirname]/[ENV] expand")
	rootCmd.Flags().BoolVarP(&flagWatch, "watch", "w", false, "watch entry files and rebuild on change")
	rootCmd.Flags().BoolVar(&flagClearCache, "clear-cache", false, "wipe the on-disk cache directory and exit")
	rootCmd.Flags().StringVarP(&flagConfig, "config", "c", "", "path to a tsb.config.yaml/.json file")
	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "log per-module progress")
	rootCmd.Flags().BoolVar(&flagDeclaration, "declaration", false, "also emit an aggregated .d.ts file")
	rootCmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "serve Prometheus metrics at this address while bundling")
	rootCmd.Flags().StringVar(&flagCacheMemory, "cache-memory", "", "memory-cache byte budget, e.g. 512M")
	rootCmd.Flags().StringVar(&flagModule, "module", "", "output module wrapping: none|commonjs|es2015|this|window|self|var NAME|let NAME|const NAME")
	rootCmd.Flags().BoolVar(&flagCheckCircular, "check-circular", false, "run the circular-dependency detection pass")
	rootCmd.Flags().BoolVar(&flagTiming, "timing", false, "report phase timing as a diagnostic note")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitcode.Failure)
	}
}

func runBundle(cmd *cobra.Command, args []string) error {
	if flagClearCache {
		mc := maincontext.New(maincontext.Config{})
		if err := mc.DiskCache.Clear(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "cache cleared:", maincontext.CacheDir())
		return nil
	}

	opts := api.Options{}
	if flagConfig != "" {
		fileOpts, err := tsbconfig.Load(flagConfig)
		if err != nil {
			return err
		}
		opts.GlobalModuleVarName = fileOpts.GlobalModuleVarName
		opts.Module = fileOpts.Module
		opts.ExportLib = fileOpts.ExportLib
		opts.BundleExternals = fileOpts.BundleExternals
		opts.Browser = fileOpts.Browser
		opts.Externals = fileOpts.Externals
		opts.Preimport = fileOpts.Preimport
		opts.SuppressDynamicImportErrors = fileOpts.SuppressDynamicImportErrors
		opts.SuppressModuleNotFoundError = fileOpts.SuppressModuleNotFoundError
		opts.CheckCircularDependency = fileOpts.CheckCircularDependency
		opts.Verbose = fileOpts.Verbose
		opts.CacheMemory = fileOpts.CacheMemory
		opts.WatchWaitingMS = fileOpts.WatchWaitingMS
		opts.NoSourceMapWorker = fileOpts.NoSourceMapWorker
		opts.CompilerOptions = fileOpts.CompilerOptions
	}

	if len(args) == 0 {
		return fmt.Errorf("no entry paths given")
	}
	opts.EntryPaths = args
	if flagOutput != "" {
		opts.Output = flagOutput
	}
	if flagVerbose {
		opts.Verbose = true
	}
	if flagDeclaration {
		opts.EmitDeclaration = true
	}
	if flagCacheMemory != "" {
		opts.CacheMemory = flagCacheMemory
	}
	if flagModule != "" {
		opts.Module = flagModule
	}
	if flagCheckCircular {
		opts.CheckCircularDependency = true
	}

	api_helpers.UseTimer = flagTiming

	mcCfg := maincontext.Config{EnableMetrics: flagMetricsAddr != ""}
	mc := maincontext.New(mcCfg)

	if flagMetricsAddr != "" && mc.Metrics != nil {
		go mc.Metrics.Serve(flagMetricsAddr)
	}

	if flagWatch {
		return runWatch(cmd, mc, opts)
	}

	hadError, err := runOnce(cmd, mc, opts)
	if err != nil {
		return err
	}
	if hadError {
		os.Exit(exitcode.Failure)
	}
	return nil
}

// runOnce runs a single bundle pass, reporting diagnostics to stderr and
// writing every entry's output. It returns whether any diagnostic was an
// error (spec §6.4's exit-code contract), leaving the exit decision to
// the caller so that watch mode can keep looping after a failed rebuild.
func runOnce(cmd *cobra.Command, mc *maincontext.MainContext, opts api.Options) (hadError bool, err error) {
	results, err := api.Bundle(context.Background(), mc, opts)
	if err != nil {
		return false, err
	}

	bar := newProgressBar(len(results), opts.Verbose)
	for _, r := range results {
		for _, d := range r.Diagnostics {
			kind := "warning"
			if d.IsError {
				kind = "error"
				hadError = true
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: [%d] %s\n", kind, d.Code, d.Text)
		}
		if err := writeResult(r); err != nil {
			return hadError, err
		}
		bar.Add(1)
	}
	bar.Finish()
	return hadError, nil
}

func writeResult(r api.BundleResult) error {
	if err := os.WriteFile(r.OutputPath, []byte(r.JS), 0o644); err != nil {
		return err
	}
	if r.SourceMap != "" {
		if err := os.WriteFile(r.OutputPath+".map", []byte(r.SourceMap), 0o644); err != nil {
			return err
		}
	}
	if r.Declaration != "" {
		if err := os.WriteFile(r.OutputPath+".d.ts", []byte(r.Declaration), 0o644); err != nil {
			return err
		}
	}
	return nil
}
