// Package config holds the bundler's configuration types: the options table
// of spec §6.1, the export-rule table of §6.3, and the small enums shared by
// every other internal package (ScriptKind, ExternalMode).
package config

import "strings"

// ScriptKind classifies a module by its filename extension. Derived once,
// at ModuleId allocation time, and never recomputed.
type ScriptKind uint8

const (
	TS ScriptKind = iota
	TSX
	JS
	JSX
	JSON
	DTS
	Unknown
)

func (k ScriptKind) String() string {
	switch k {
	case TS:
		return "ts"
	case TSX:
		return "tsx"
	case JS:
		return "js"
	case JSX:
		return "jsx"
	case JSON:
		return "json"
	case DTS:
		return "d.ts"
	default:
		return "unknown"
	}
}

// ScriptKindFromPath derives a ScriptKind from a file path's extension.
func ScriptKindFromPath(path string) ScriptKind {
	switch {
	case strings.HasSuffix(path, ".d.ts"):
		return DTS
	case strings.HasSuffix(path, ".tsx"):
		return TSX
	case strings.HasSuffix(path, ".ts"):
		return TS
	case strings.HasSuffix(path, ".jsx"):
		return JSX
	case strings.HasSuffix(path, ".js") || strings.HasSuffix(path, ".mjs") || strings.HasSuffix(path, ".cjs"):
		return JS
	case strings.HasSuffix(path, ".json"):
		return JSON
	default:
		return Unknown
	}
}

// ExternalMode tags how an import is handled in the assembled output.
type ExternalMode uint8

const (
	// NoExternal means: bundle this module's source into the output.
	NoExternal ExternalMode = iota
	// Manual means some other mechanism (e.g. __dirname rewriting) handles it.
	Manual
	// Preimport means: emit a host-runtime require() in the prologue and
	// expose the result as a registry property.
	Preimport
)

// ExportRule selects the output wrapping shape of §6.3.
type ExportRule uint8

const (
	ExportNone ExportRule = iota
	ExportCommonJS
	ExportES2015
	ExportThis
	ExportWindow
	ExportSelf
	ExportVar
	ExportLet
	ExportConst
)

// ParseModuleMode parses the bundlerOptions.module string of §6.1 into an
// ExportRule plus, for the Var/Let/Const forms, the declared identifier.
func ParseModuleMode(text string) (rule ExportRule, varName string, ok bool) {
	switch text {
	case "", "none":
		return ExportNone, "", true
	case "commonjs":
		return ExportCommonJS, "", true
	case "es2015":
		return ExportES2015, "", true
	case "this":
		return ExportThis, "", true
	case "window":
		return ExportWindow, "", true
	case "self":
		return ExportSelf, "", true
	}
	for _, prefix := range []struct {
		kw   string
		rule ExportRule
	}{
		{"var ", ExportVar},
		{"let ", ExportLet},
		{"const ", ExportConst},
	} {
		if strings.HasPrefix(text, prefix.kw) {
			name := strings.TrimSpace(text[len(prefix.kw):])
			if name == "" {
				return 0, "", false
			}
			return prefix.rule, name, true
		}
	}
	return 0, "", false
}

// ByteSize parses the bundlerOptions.cacheMemory option: "N", "NK", "NM",
// "NG", "NT" (binary multiples). The empty string returns def.
func ByteSize(text string, def int64) (int64, bool) {
	if text == "" {
		return def, true
	}
	mult := int64(1)
	suffix := text[len(text)-1]
	switch suffix {
	case 'K', 'k':
		mult = 1 << 10
	case 'M', 'm':
		mult = 1 << 20
	case 'G', 'g':
		mult = 1 << 30
	case 'T', 't':
		mult = 1 << 40
	}
	numText := text
	if mult != 1 {
		numText = text[:len(text)-1]
	}
	n := int64(0)
	if numText == "" {
		return 0, false
	}
	for _, c := range numText {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int64(c-'0')
	}
	return n * mult, true
}

// EntryOptions is the per-entry option object allowed by the `entry` option
// when it is a map from entry path to a full option object (§6.1).
type EntryOptions struct {
	Output string
	*BundlerOptions
}

// BundlerOptions mirrors the `bundlerOptions.*` table of §6.1.
type BundlerOptions struct {
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
	WrapBegin, WrapEnd          string
	DeclWrapBegin, DeclWrapEnd  string
}

// DefaultBundlerOptions returns the zero-value defaults named throughout §6.1.
func DefaultBundlerOptions() BundlerOptions {
	return BundlerOptions{
		GlobalModuleVarName: "__tsb",
		Module:              "none",
		CacheMemory:         "1G",
	}
}

// Options is the top-level configuration object of §6.1.
type Options struct {
	// Entry is one of: a single path, a slice of paths (populated into
	// Entries with a derived output), or a map populated into Entries with
	// explicit per-entry options.
	Entries []EntryOptions

	BundlerOptions
	CompilerOptions map[string]interface{}
}
