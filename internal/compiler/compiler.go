// Package compiler implements the §6.2 "external compiler" contract over
// github.com/evanw/esbuild's public pkg/api.Transform, the same call
// bennypowers-cem/serve/middleware/transform/engine.go wraps for its own
// live TypeScript-transform server. esbuild's bare Transform call parses,
// type-strips, and emits one file's JS and source map but performs no
// module resolution of its own, so this package also owns a lightweight
// import-site scanner (ScanImports) that the module refiner (internal/refine)
// uses to find and classify every import/require/dynamic-import expression
// before rewriting it.
package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/tsbundle/tsb/internal/config"
)

// TransformResult is the engine's narrowed view of an esbuild Transform
// result: the emitted JS body, an optional source map, and any compiler
// diagnostics (spec §7's JsError).
type TransformResult struct {
	Code          string
	SourceMapText string
	Errors        []Diagnostic
}

// Diagnostic is one compiler-reported problem, carrying enough position
// information for the logger to render a clang-style caret (spec §7).
type Diagnostic struct {
	Text   string
	Line   int
	Column int
	Length int
}

// FrontEnd is the external compiler contract of spec §6.2, narrowed to
// the single operation the module refiner actually drives: transform one
// file's text, given its script kind, into emitted JS plus an optional
// map. Declaration emission is a second, independent call (TransformDTS)
// since not every build requests declarations.
type FrontEnd interface {
	Transform(sourceText string, kind config.ScriptKind, sourcePath string, inlineSourceMap bool) TransformResult
	TransformDTS(sourceText string, kind config.ScriptKind, sourcePath string) DTSResult
}

// ESBuildFrontEnd is the FrontEnd backed by github.com/evanw/esbuild.
type ESBuildFrontEnd struct {
	Target          api.Target
	TsconfigRaw     string
	CompilerOptions map[string]interface{}
}

func NewESBuildFrontEnd(target string, compilerOptions map[string]interface{}) *ESBuildFrontEnd {
	return &ESBuildFrontEnd{
		Target:          parseTarget(target),
		TsconfigRaw:     tsconfigRawFrom(compilerOptions),
		CompilerOptions: compilerOptions,
	}
}

func parseTarget(text string) api.Target {
	switch strings.ToLower(text) {
	case "es2015":
		return api.ES2015
	case "es2016":
		return api.ES2016
	case "es2017":
		return api.ES2017
	case "es2018":
		return api.ES2018
	case "es2019":
		return api.ES2019
	case "es2020":
		return api.ES2020
	case "es2021":
		return api.ES2021
	case "es2022":
		return api.ES2022
	case "esnext", "":
		return api.ESNext
	default:
		return api.ESNext
	}
}

// tsconfigRawFrom forwards the subset of compilerOptions (spec §6.1's
// forwarded `compilerOptions`) that esbuild's single-file Transform call
// understands, as a raw tsconfig.json-shaped string.
func tsconfigRawFrom(opts map[string]interface{}) string {
	if len(opts) == 0 {
		return `{"compilerOptions":{"importHelpers":false}}`
	}
	var sb strings.Builder
	sb.WriteString(`{"compilerOptions":{`)
	first := true
	for k, v := range opts {
		if !first {
			sb.WriteString(",")
		}
		first = false
		fmt.Fprintf(&sb, "%q:%v", k, formatJSONValue(v))
	}
	sb.WriteString("}}")
	return sb.String()
}

func formatJSONValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return fmt.Sprintf("%q", t)
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", t)
	}
}

func loaderFor(kind config.ScriptKind) api.Loader {
	switch kind {
	case config.TS, config.DTS:
		return api.LoaderTS
	case config.TSX:
		return api.LoaderTSX
	case config.JSX:
		return api.LoaderJSX
	default:
		return api.LoaderJS
	}
}

// Transform implements FrontEnd.
func (e *ESBuildFrontEnd) Transform(sourceText string, kind config.ScriptKind, sourcePath string, inlineSourceMap bool) TransformResult {
	sourcemap := api.SourceMapExternal
	if inlineSourceMap {
		sourcemap = api.SourceMapInline
	}

	result := api.Transform(sourceText, api.TransformOptions{
		Loader:      loaderFor(kind),
		Target:      e.Target,
		Format:      api.FormatDefault,
		Sourcemap:   sourcemap,
		Sourcefile:  sourcePath,
		TsconfigRaw: e.TsconfigRaw,
	})

	out := TransformResult{Code: string(result.Code)}
	if len(result.Map) > 0 {
		out.SourceMapText = string(result.Map)
	}
	for _, msg := range result.Errors {
		d := Diagnostic{Text: msg.Text}
		if msg.Location != nil {
			d.Line = msg.Location.Line
			d.Column = msg.Location.Column
			d.Length = msg.Location.Length
		}
		out.Errors = append(out.Errors, d)
	}
	return out
}

// importSiteRe matches every syntactic form spec §4.C step 4 names:
// import ... from 'm', import 'm', import * as x from 'm', import {a}
// from 'm', import x = require('m'), import('m'), and require('m'). It is
// intentionally line-based and string-literal-anchored rather than a full
// AST walk, since by the time ScanImports runs, esbuild has already
// stripped TypeScript syntax down to plain JS import/require forms.
var importSiteRe = regexp.MustCompile(
	`(?:\bimport\s*\(\s*|\brequire\s*\(\s*|\bimport\b[^'"()]*?\bfrom\s*|\bimport\s+)(['"])((?:[^'"\\]|\\.)*)\1`)

// ImportSite is one discovered import/require expression, with its byte
// offsets in the source text (so the refiner can splice a replacement)
// and its module path as written.
type ImportSite struct {
	ModulePath  string
	Start, End  int // byte offsets of the full matched expression
	IsDynamic   bool
	IsRequire   bool
	Line        int
	Column      int
}

// ScanImports finds every import-like expression in already-transformed
// (TypeScript-stripped) JS text.
func ScanImports(jsText string) []ImportSite {
	var sites []ImportSite
	for _, m := range importSiteRe.FindAllStringSubmatchIndex(jsText, -1) {
		start, end := m[0], m[1]
		pathStart, pathEnd := m[4], m[5]
		modulePath := jsText[pathStart:pathEnd]
		matched := jsText[start:end]
		line, col := lineCol(jsText, start)
		sites = append(sites, ImportSite{
			ModulePath: modulePath,
			Start:      start,
			End:        end,
			IsDynamic:  strings.HasPrefix(strings.TrimSpace(matched), "import("),
			IsRequire:  strings.HasPrefix(strings.TrimSpace(matched), "require("),
			Line:       line,
			Column:     col,
		})
	}
	return sites
}

func lineCol(text string, offset int) (line, col int) {
	line = 1
	lastNL := -1
	for i := 0; i < offset; i++ {
		if text[i] == '\n' {
			line++
			lastNL = i
		}
	}
	return line, offset - lastNL - 1
}
