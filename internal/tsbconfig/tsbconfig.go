// Package tsbconfig loads a tsb.config.yaml/.json file into config.Options,
// the minimal config-file story SPEC_FULL.md's ambient-stack section adds
// on top of spec §6.1's literal options table. Grounded on vjache-cie's own
// pipeline-config loader, which reads gopkg.in/yaml.v3 into a typed struct
// rather than hand-rolling a parser.
package tsbconfig

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/tsbundle/tsb/internal/config"
	"gopkg.in/yaml.v3"
)

// fileShape mirrors config.Options/BundlerOptions field-for-field so that
// both YAML and JSON config files use the same key names as the §6.1
// options table (dotted `bundlerOptions.foo` keys become a nested map).
type fileShape struct {
	Entry  interface{}            `yaml:"entry" json:"entry"`
	Output string                 `yaml:"output" json:"output"`

	BundlerOptions struct {
		GlobalModuleVarName         string   `yaml:"globalModuleVarName" json:"globalModuleVarName"`
		Module                      string   `yaml:"module" json:"module"`
		ExportLib                   bool     `yaml:"exportLib" json:"exportLib"`
		BundleExternals             bool     `yaml:"bundleExternals" json:"bundleExternals"`
		Browser                     bool     `yaml:"browser" json:"browser"`
		Externals                   []string `yaml:"externals" json:"externals"`
		Preimport                   []string `yaml:"preimport" json:"preimport"`
		SuppressDynamicImportErrors bool     `yaml:"suppressDynamicImportErrors" json:"suppressDynamicImportErrors"`
		SuppressModuleNotFoundErrors bool    `yaml:"suppressModuleNotFoundErrors" json:"suppressModuleNotFoundErrors"`
		CheckCircularDependency     bool     `yaml:"checkCircularDependency" json:"checkCircularDependency"`
		Verbose                     bool     `yaml:"verbose" json:"verbose"`
		CacheMemory                 string   `yaml:"cacheMemory" json:"cacheMemory"`
		WatchWaiting                int      `yaml:"watchWaiting" json:"watchWaiting"`
		NoSourceMapWorker           bool     `yaml:"noSourceMapWorker" json:"noSourceMapWorker"`
	} `yaml:"bundlerOptions" json:"bundlerOptions"`

	CompilerOptions map[string]interface{} `yaml:"compilerOptions" json:"compilerOptions"`
}

// Load reads path (a .yaml/.yml/.json file) into a config.Options value.
// entry is left to the CLI layer to populate from positional arguments
// when the file's own `entry` key is empty, per spec §6.1's precedence
// (CLI positionals are the primary entry mechanism; config-file entry is
// this tool's own addition).
func Load(path string) (config.Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return config.Options{}, err
	}

	var fs fileShape
	if strings.HasSuffix(path, ".json") {
		err = json.Unmarshal(data, &fs)
	} else {
		err = yaml.Unmarshal(data, &fs)
	}
	if err != nil {
		return config.Options{}, err
	}

	opts := config.Options{
		BundlerOptions:  config.DefaultBundlerOptions(),
		CompilerOptions: fs.CompilerOptions,
	}
	if fs.BundlerOptions.GlobalModuleVarName != "" {
		opts.GlobalModuleVarName = fs.BundlerOptions.GlobalModuleVarName
	}
	if fs.BundlerOptions.Module != "" {
		opts.Module = fs.BundlerOptions.Module
	}
	opts.ExportLib = fs.BundlerOptions.ExportLib
	opts.BundleExternals = fs.BundlerOptions.BundleExternals
	opts.Browser = fs.BundlerOptions.Browser
	opts.Externals = fs.BundlerOptions.Externals
	opts.Preimport = fs.BundlerOptions.Preimport
	opts.SuppressDynamicImportErrors = fs.BundlerOptions.SuppressDynamicImportErrors
	opts.SuppressModuleNotFoundError = fs.BundlerOptions.SuppressModuleNotFoundErrors
	opts.CheckCircularDependency = fs.BundlerOptions.CheckCircularDependency
	opts.Verbose = fs.BundlerOptions.Verbose
	if fs.BundlerOptions.CacheMemory != "" {
		opts.CacheMemory = fs.BundlerOptions.CacheMemory
	}
	opts.WatchWaitingMS = fs.BundlerOptions.WatchWaiting
	opts.NoSourceMapWorker = fs.BundlerOptions.NoSourceMapWorker

	switch e := fs.Entry.(type) {
	case string:
		opts.Entries = append(opts.Entries, config.EntryOptions{Output: fs.Output})
		opts.Entries[0].BundlerOptions = &opts.BundlerOptions
		_ = e // the entry path itself is attached by the CLI layer, which knows the source file's absolute path
	case []interface{}:
		for range e {
			opts.Entries = append(opts.Entries, config.EntryOptions{BundlerOptions: &opts.BundlerOptions})
		}
	}

	return opts, nil
}
