// Package assemble implements the Output Assembler (spec component E): it
// streams the prologue, each refined module's payload in writer-queue
// arrival order, then the epilogue, appending remapped source-map segments
// at the correct line offset, and writes the parallel declaration file.
// Grounded on the teacher's own internal/helpers.Joiner (used verbatim
// below) for efficient buffer assembly, and on the same package's linker
// output-writing idiom for the prologue/epilogue shape.
package assemble

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tsbundle/tsb/internal/config"
	"github.com/tsbundle/tsb/internal/graph"
	"github.com/tsbundle/tsb/internal/helpers"
	"github.com/tsbundle/tsb/internal/sourcemap"
)

// Options configures one assembly pass; it narrows config.Options/BundlerOptions
// down to what the assembler itself consumes.
type Options struct {
	GlobalModuleVarName string
	ExportRule          config.ExportRule
	ExportVarName       string // for Var/Let/Const/This(custom) rules
	ExportLib           bool
	Browser             bool
	OutputPath          string
	InlineSourceMap     bool
	EmitDeclaration     bool
}

// Result is the assembled output: the JS bundle text, an optional
// separate source-map JSON document, and an optional declaration file.
type Result struct {
	JS            string
	SourceMapJSON string
	Declaration   string
}

// preimportEntry is one prologue preimport, in first-discovery order.
type preimportEntry struct {
	varName string
	mpath   string
}

// Assemble implements spec §4.E. items must already be in writer-commit
// order (graph.Driver.Drain's contract).
func Assemble(entry *graph.BundlerModule, items []graph.WriteItem, opts Options) Result {
	var j helpers.Joiner

	writeOpen(&j, opts)

	preimports := collectPreimports(items)
	for _, p := range preimports {
		fmt.Fprintf(&j2buf{&j}, "%s: require(%s),\n", p.varName, quoteJS(p.mpath))
	}

	if usesManualHelpers(items) {
		writeResolveHelpers(&j, opts)
	}

	linesSoFar := countJoinerLines(&j)
	var allSegments []sourcemap.Segment
	var sources []string

	var entryFirstLineComment string
	var entryVarName string

	for _, item := range items {
		if item.Refined == nil {
			varName := moduleVarName(item.Module)
			j.AddString(stubFor(varName, item.Module.ModulePath))
			linesSoFar += strings.Count(stubFor(varName, item.Module.ModulePath), "\n")
			continue
		}
		rm := item.Refined
		if rm.IsEntry {
			entryFirstLineComment = rm.FirstLineComment
			entryVarName = rm.VarName
		}

		startLine := linesSoFar + rm.SourceMapOutputLineOffset
		if rm.SourceMapText != "" {
			segs := remapSourceMap(rm.SourceMapText, int32(startLine))
			allSegments = append(allSegments, segs...)
			sources = append(sources, relOutputPath(opts.OutputPath, item.Module.AbsolutePath))
		}

		j.AddString(rm.Content)
		linesSoFar += rm.OutputLineCount
	}

	writeClose(&j, opts, entryVarName)

	js := string(j.Done())
	if entryFirstLineComment != "" {
		js = entryFirstLineComment + "\n" + js
		for i := range allSegments {
			allSegments[i].GeneratedLine++
		}
	}

	result := Result{JS: js}

	if len(allSegments) > 0 {
		m := sourcemap.Map{Sources: sources}
		mappings := sourcemap.EncodeMappings(allSegments)
		smap := struct {
			Version  int      `json:"version"`
			Sources  []string `json:"sources"`
			Mappings string   `json:"mappings"`
		}{Version: 3, Sources: m.Sources, Mappings: mappings}
		data, _ := json.Marshal(smap)
		if opts.InlineSourceMap {
			result.JS += "\n//# sourceMappingURL=data:application/json;base64," + base64.StdEncoding.EncodeToString(data)
		} else {
			result.SourceMapJSON = string(data)
			result.JS += "\n//# sourceMappingURL=" + filepath.Base(opts.OutputPath) + ".map\n"
		}
	}

	if opts.EmitDeclaration {
		result.Declaration = assembleDeclarations(items, opts, entryVarName)
	}

	return result
}

// j2buf adapts helpers.Joiner to fmt.Fprintf's io.Writer interface.
type j2buf struct{ j *helpers.Joiner }

func (b *j2buf) Write(p []byte) (int, error) {
	b.j.AddBytes(append([]byte(nil), p...))
	return len(p), nil
}

func countJoinerLines(j *helpers.Joiner) int {
	return strings.Count(string(j.Done()), "\n")
}

func writeOpen(j *helpers.Joiner, opts Options) {
	switch opts.ExportRule {
	case config.ExportES2015:
		fmt.Fprintf(&j2buf{j}, "export const %s = {\n", opts.GlobalModuleVarName)
	case config.ExportVar:
		fmt.Fprintf(&j2buf{j}, "var %s = (()=>{\nconst %s = {\n", opts.ExportVarName, opts.GlobalModuleVarName)
	case config.ExportLet:
		fmt.Fprintf(&j2buf{j}, "let %s = (()=>{\nconst %s = {\n", opts.ExportVarName, opts.GlobalModuleVarName)
	case config.ExportConst:
		fmt.Fprintf(&j2buf{j}, "const %s = (()=>{\nconst %s = {\n", opts.ExportVarName, opts.GlobalModuleVarName)
	case config.ExportThis, config.ExportWindow, config.ExportSelf:
		target := exportThisTarget(opts)
		fmt.Fprintf(&j2buf{j}, "%s.%s = {\n", target, opts.GlobalModuleVarName)
	default: // ExportNone, ExportCommonJS
		fmt.Fprintf(&j2buf{j}, "const %s = {\n", opts.GlobalModuleVarName)
	}
}

func exportThisTarget(opts Options) string {
	switch opts.ExportRule {
	case config.ExportWindow:
		return "window"
	case config.ExportSelf:
		return "self"
	default:
		return "this"
	}
}

func writeClose(j *helpers.Joiner, opts Options, entryVarName string) {
	j.AddString("};\n")
	switch opts.ExportRule {
	case config.ExportVar, config.ExportLet, config.ExportConst:
		fmt.Fprintf(&j2buf{j}, "return %s.%s();\n})();\n", opts.GlobalModuleVarName, entryVarName)
	case config.ExportES2015:
		// nothing further; the registry itself is the named export.
	case config.ExportCommonJS:
		if opts.ExportLib {
			fmt.Fprintf(&j2buf{j}, "module.exports = %s;\n", opts.GlobalModuleVarName)
		} else {
			fmt.Fprintf(&j2buf{j}, "module.exports = %s.%s();\n", opts.GlobalModuleVarName, entryVarName)
		}
	default:
		if !opts.ExportLib {
			fmt.Fprintf(&j2buf{j}, "module.exports = %s.%s();\n", opts.GlobalModuleVarName, entryVarName)
		}
	}
}

// writeResolveHelpers emits the __resolve/__global prologue members that
// back the __filename/__dirname/global/import.meta.url rewrites
// internal/refine performs (config.Manual's "some other mechanism handles
// it" case).
func writeResolveHelpers(j *helpers.Joiner, opts Options) {
	if opts.Browser {
		j.AddString("__resolve(p){ return new URL(p, location.href).href; },\n")
		j.AddString("__global: (typeof globalThis !== \"undefined\" ? globalThis : self),\n")
	} else {
		j.AddString("__resolve(p){ return require('path').resolve(__dirname, p); },\n")
		j.AddString("__global: (typeof global !== \"undefined\" ? global : globalThis),\n")
	}
}

// usesManualHelpers reports whether any refined module recorded a
// config.Manual import, meaning the refiner spliced in an __tsb.__resolve
// or __tsb.__global reference that needs a prologue definition.
func usesManualHelpers(items []graph.WriteItem) bool {
	for _, item := range items {
		if item.Refined == nil {
			continue
		}
		for _, imp := range item.Refined.Imports {
			if imp.ExternalMode == config.Manual {
				return true
			}
		}
	}
	return false
}

func collectPreimports(items []graph.WriteItem) []preimportEntry {
	var out []preimportEntry
	seen := make(map[string]bool)
	for _, item := range items {
		if item.Refined == nil {
			continue
		}
		for _, imp := range item.Refined.Imports {
			if imp.ExternalMode != config.Preimport || seen[imp.ModulePath] {
				continue
			}
			seen[imp.ModulePath] = true
			out = append(out, preimportEntry{varName: sanitizePreimportVar(imp.ModulePath), mpath: imp.ModulePath})
		}
	}
	return out
}

func sanitizePreimportVar(mpath string) string {
	base := filepath.Base(mpath)
	var sb strings.Builder
	for _, r := range base {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '$' {
			sb.WriteRune(r)
		} else {
			sb.WriteRune('_')
		}
	}
	s := sb.String()
	if s == "" || (s[0] >= '0' && s[0] <= '9') {
		s = "_" + s
	}
	return s
}

func moduleVarName(m *graph.BundlerModule) string {
	return sanitizePreimportVar(m.ModulePath)
}

func stubFor(varName, modulePath string) string {
	return varName + "(){ throw new Error(\"Cannot find module '" + modulePath + "'\"); },\n"
}

func quoteJS(s string) string {
	return string(helpers.QuoteForJSON(s, false))
}

func relOutputPath(outputPath, modulePath string) string {
	rel, err := filepath.Rel(filepath.Dir(outputPath), modulePath)
	if err != nil {
		return modulePath
	}
	return filepath.ToSlash(rel)
}

// remapSourceMap implements spec §4.E's per-module source-map remap: every
// mapping's generated line is shifted by startLine; original line/column
// and name are carried through unchanged.
func remapSourceMap(rawJSON string, startLine int32) []sourcemap.Segment {
	var doc struct {
		Mappings string `json:"mappings"`
	}
	if err := json.Unmarshal([]byte(rawJSON), &doc); err != nil {
		return nil
	}
	segs := sourcemap.DecodeMappings(doc.Mappings)
	for i := range segs {
		segs[i].GeneratedLine += startLine
	}
	return segs
}

// assembleDeclarations implements spec §4.E's parallel .d.ts output.
func assembleDeclarations(items []graph.WriteItem, opts Options, entryVarName string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "declare namespace %s {\n", opts.GlobalModuleVarName)
	var globals []string
	for _, item := range items {
		if item.Refined == nil || item.Refined.Declaration == "" {
			continue
		}
		sb.WriteString(item.Refined.Declaration)
		if item.Refined.GlobalDeclaration != "" {
			globals = append(globals, item.Refined.GlobalDeclaration)
		}
	}
	sb.WriteString("}\n")
	for _, g := range globals {
		sb.WriteString(g)
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "export = %s.%s;\n", opts.GlobalModuleVarName, entryVarName)
	return sb.String()
}
