package assemble_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsbundle/tsb/internal/assemble"
	"github.com/tsbundle/tsb/internal/config"
	"github.com/tsbundle/tsb/internal/graph"
	"github.com/tsbundle/tsb/internal/refine"
)

func entryItem(content string) graph.WriteItem {
	m := &graph.BundlerModule{AbsolutePath: "/project/src/entry.js", ModulePath: "/project/src/entry.js", IsEntry: true}
	rm := &refine.RefinedModule{
		Content:         content,
		OutputLineCount: 1,
		IsEntry:         true,
		VarName:         "entry",
	}
	return graph.WriteItem{Module: m, Refined: rm}
}

func childItem(absPath, varName, content string) graph.WriteItem {
	m := &graph.BundlerModule{AbsolutePath: absPath, ModulePath: absPath}
	rm := &refine.RefinedModule{
		Content:         content,
		OutputLineCount: 1,
		VarName:         varName,
	}
	return graph.WriteItem{Module: m, Refined: rm}
}

func TestAssembleCommonJSWrapsEntryCall(t *testing.T) {
	items := []graph.WriteItem{entryItem("entry(){ return 1; },\n")}
	result := assemble.Assemble(nil, items, assemble.Options{
		GlobalModuleVarName: "__tsb",
		ExportRule:          config.ExportCommonJS,
		OutputPath:          "/project/dist/out.js",
	})
	assert.Contains(t, result.JS, "const __tsb = {")
	assert.Contains(t, result.JS, "module.exports = __tsb.entry();")
}

func TestAssembleExportLibSkipsEntryInvocation(t *testing.T) {
	items := []graph.WriteItem{entryItem("entry(){ return 1; },\n")}
	result := assemble.Assemble(nil, items, assemble.Options{
		GlobalModuleVarName: "__tsb",
		ExportRule:          config.ExportCommonJS,
		ExportLib:           true,
		OutputPath:          "/project/dist/out.js",
	})
	assert.Contains(t, result.JS, "module.exports = __tsb;")
	assert.NotContains(t, result.JS, "__tsb.entry()")
}

func TestAssembleVarExportWrapsInIIFE(t *testing.T) {
	items := []graph.WriteItem{entryItem("entry(){ return 1; },\n")}
	result := assemble.Assemble(nil, items, assemble.Options{
		GlobalModuleVarName: "__tsb",
		ExportRule:          config.ExportVar,
		ExportVarName:       "MyLib",
		OutputPath:          "/project/dist/out.js",
	})
	assert.Contains(t, result.JS, "var MyLib = (()=>{")
	assert.Contains(t, result.JS, "return __tsb.entry();")
	assert.Contains(t, result.JS, "})();")
}

func TestAssembleMissingModuleEmitsThrowingStub(t *testing.T) {
	m := &graph.BundlerModule{AbsolutePath: "/project/src/missing.js", ModulePath: "./missing"}
	items := []graph.WriteItem{
		{Module: m, Refined: nil},
		entryItem("entry(){ return 1; },\n"),
	}
	result := assemble.Assemble(nil, items, assemble.Options{
		GlobalModuleVarName: "__tsb",
		ExportRule:          config.ExportCommonJS,
		OutputPath:          "/project/dist/out.js",
	})
	assert.Contains(t, result.JS, "throw new Error")
	assert.Contains(t, result.JS, "./missing")
}

func TestAssembleCollectsPreimports(t *testing.T) {
	m := &graph.BundlerModule{AbsolutePath: "/project/src/b.js", ModulePath: "/project/src/b.js"}
	rm := &refine.RefinedModule{
		Content:         "b(){ return __tsb.fs; },\n",
		OutputLineCount: 1,
		Imports: []refine.ImportInfo{
			{ModulePath: "fs", ExternalMode: config.Preimport},
		},
	}
	items := []graph.WriteItem{
		{Module: m, Refined: rm},
		entryItem("entry(){ return 1; },\n"),
	}
	result := assemble.Assemble(nil, items, assemble.Options{
		GlobalModuleVarName: "__tsb",
		ExportRule:          config.ExportCommonJS,
		OutputPath:          "/project/dist/out.js",
	})
	assert.Contains(t, result.JS, `fs: require("fs"),`)
}

func TestAssembleEmitsDeclarationWhenRequested(t *testing.T) {
	m := &graph.BundlerModule{AbsolutePath: "/project/src/a.js", ModulePath: "/project/src/a.js"}
	rm := &refine.RefinedModule{
		Content:         childItem("/project/src/a.js", "a", "a(){},\n").Refined.Content,
		OutputLineCount: 1,
		VarName:         "a",
		Declaration:     "export const a: number;\n",
	}
	items := []graph.WriteItem{
		{Module: m, Refined: rm},
		entryItem("entry(){ return 1; },\n"),
	}
	result := assemble.Assemble(nil, items, assemble.Options{
		GlobalModuleVarName: "__tsb",
		ExportRule:          config.ExportCommonJS,
		OutputPath:          "/project/dist/out.js",
		EmitDeclaration:     true,
	})
	assert.Contains(t, result.Declaration, "declare namespace __tsb {")
	assert.Contains(t, result.Declaration, "export const a: number;")
	assert.Contains(t, result.Declaration, "export = __tsb.entry;")
}
