package compiler

import (
	"regexp"
	"strings"

	"github.com/tsbundle/tsb/internal/config"
)

// DTSResult is FrontEnd.TransformDTS's output: the declaration-shaped
// fragments extracted from one module's top-level `export` statements,
// import specifiers left untouched (the refiner resolves those, exactly
// as it does for ScanImports's value-import sites).
type DTSResult struct {
	// TypeDecls holds verbatim interface/type/enum declarations, destined
	// for a `namespace <varName> { ... }` block.
	TypeDecls []string
	// ValueMembers holds one object-type member per value export, e.g.
	// "foo(x: number): string;", destined for the return type of the
	// module's `function <varName>(): { ... }` ambient signature.
	ValueMembers []string
	// GlobalBlocks holds verbatim `declare module "..." { ... }` bodies.
	GlobalBlocks []string
	HasDefault   bool
}

// exportDeclRe finds one top-level exported declaration's keyword and
// name. It intentionally ignores nested/non-top-level exports (export
// statements inside a namespace or function body), matching this engine's
// general "string splice, not full parse" approach to everything else in
// the compiler package.
var exportDeclRe = regexp.MustCompile(`(?m)^export\s+(default\s+)?(declare\s+)?(abstract\s+)?(async\s+)?(function\*?|class|interface|type|enum|const|let|var)\s+([A-Za-z_$][A-Za-z0-9_$]*)`)

var exportDefaultRe = regexp.MustCompile(`(?m)^export\s+default\b`)

var declareModuleRe = regexp.MustCompile(`(?m)^declare\s+module\s+(['"])((?:[^'"\\]|\\.)*)\1\s*\{`)

// ExtractDeclaration implements ESBuildFrontEnd.TransformDTS's extraction
// pass. Since esbuild's Transform only strips types and never type-checks
// or emits declarations, this walks the original TypeScript text directly
// instead of invoking esbuild a second time: interfaces/types/enums are
// copied verbatim (they are already declaration-shaped), function bodies
// are replaced by their signature, and classes/bare default exports fall
// back to `any` since reconstructing their real shape from text alone
// isn't attempted here.
func ExtractDeclaration(sourceText string) DTSResult {
	var out DTSResult

	for _, m := range declareModuleRe.FindAllStringSubmatchIndex(sourceText, -1) {
		braceIdx := m[1] - 1
		closeIdx := matchBrace(sourceText, braceIdx)
		if closeIdx < 0 {
			continue
		}
		out.GlobalBlocks = append(out.GlobalBlocks, sourceText[m[0]:closeIdx+1])
	}

	if exportDefaultRe.MatchString(sourceText) {
		out.HasDefault = true
	}

	for _, m := range exportDeclRe.FindAllStringSubmatchIndex(sourceText, -1) {
		keyword := sourceText[m[10]:m[11]]
		name := sourceText[m[12]:m[13]]
		kwStart := m[10]

		switch {
		case keyword == "interface" || keyword == "enum":
			closeIdx := findBraceAfter(sourceText, kwStart)
			if closeIdx < 0 {
				continue
			}
			out.TypeDecls = append(out.TypeDecls, strings.TrimSpace(sourceText[kwStart:closeIdx+1])+"\n")
		case keyword == "type":
			end := statementEnd(sourceText, kwStart)
			decl := strings.TrimSpace(sourceText[kwStart:end])
			if !strings.HasSuffix(decl, ";") {
				decl += ";"
			}
			out.TypeDecls = append(out.TypeDecls, decl+"\n")
		case strings.HasPrefix(keyword, "function"):
			sig, ok := functionSignatureFrom(sourceText, kwStart, name)
			if !ok {
				continue
			}
			out.ValueMembers = append(out.ValueMembers, sig+";")
		case keyword == "class":
			out.ValueMembers = append(out.ValueMembers, name+": any;")
		default: // const, let, var
			out.ValueMembers = append(out.ValueMembers, valueSignatureFrom(sourceText, kwStart, name))
		}
	}

	return out
}

// functionSignatureFrom builds an object-type member signature for a
// top-level exported function, e.g. "greet(name: string): string" — the
// method-shorthand form a type member needs, not a function declaration,
// so the "function"/"function*" keyword itself is dropped in favor of name.
func functionSignatureFrom(s string, kwStart int, name string) (string, bool) {
	rel := strings.IndexByte(s[kwStart:], '(')
	if rel < 0 {
		return "", false
	}
	parenIdx := kwStart + rel
	closeParen := matchParen(s, parenIdx)
	if closeParen < 0 {
		return "", false
	}

	var tail string
	if braceRel := strings.IndexByte(s[closeParen:], '{'); braceRel >= 0 {
		tail = strings.TrimSpace(s[parenIdx : closeParen+braceRel])
	} else {
		tail = strings.TrimSpace(s[parenIdx : closeParen+1])
	}
	return name + tail, true
}

func valueSignatureFrom(s string, start int, name string) string {
	end := statementEnd(s, start)
	stmt := strings.TrimSpace(s[start:end])
	typ := "any"
	colonIdx := topLevelIndex(stmt, ':')
	eqIdx := topLevelIndex(stmt, '=')
	if colonIdx >= 0 && (eqIdx < 0 || colonIdx < eqIdx) {
		stop := len(stmt)
		if eqIdx >= 0 {
			stop = eqIdx
		}
		typ = strings.TrimSpace(strings.TrimRight(stmt[colonIdx+1:stop], "; \t\n"))
	}
	return name + ": " + typ + ";"
}

func topLevelIndex(s string, target byte) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{', '(', '[':
			depth++
		case '}', ')', ']':
			depth--
		default:
			if depth == 0 && s[i] == target {
				return i
			}
		}
	}
	return -1
}

func matchBrace(s string, openIdx int) int {
	depth := 0
	for i := openIdx; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func matchParen(s string, openIdx int) int {
	depth := 0
	for i := openIdx; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func findBraceAfter(s string, from int) int {
	rel := strings.IndexByte(s[from:], '{')
	if rel < 0 {
		return -1
	}
	return matchBrace(s, from+rel)
}

// statementEnd finds the end of a `;`-terminated statement starting at
// start, respecting nested braces/parens/brackets so a semicolon inside a
// type literal doesn't terminate the statement early. Falls back to the
// end of the text for a final statement with no trailing semicolon.
func statementEnd(s string, start int) int {
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{', '(', '[':
			depth++
		case '}', ')', ']':
			depth--
		case ';':
			if depth == 0 {
				return i + 1
			}
		}
	}
	return len(s)
}

// TransformDTS implements FrontEnd.TransformDTS for the esbuild-backed
// front end.
func (e *ESBuildFrontEnd) TransformDTS(sourceText string, kind config.ScriptKind, sourcePath string) DTSResult {
	if kind == config.JSON {
		return DTSResult{}
	}
	return ExtractDeclaration(sourceText)
}
