package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsbundle/tsb/internal/compiler"
)

func TestScanImportsFindsStaticImport(t *testing.T) {
	sites := compiler.ScanImports(`import { a } from './a';` + "\n")
	require.Len(t, sites, 1)
	assert.Equal(t, "./a", sites[0].ModulePath)
	assert.False(t, sites[0].IsDynamic)
	assert.False(t, sites[0].IsRequire)
}

func TestScanImportsFindsBareImport(t *testing.T) {
	sites := compiler.ScanImports(`import './polyfill';` + "\n")
	require.Len(t, sites, 1)
	assert.Equal(t, "./polyfill", sites[0].ModulePath)
}

func TestScanImportsFindsRequire(t *testing.T) {
	sites := compiler.ScanImports(`const x = require("./x");` + "\n")
	require.Len(t, sites, 1)
	assert.Equal(t, "./x", sites[0].ModulePath)
	assert.True(t, sites[0].IsRequire)
}

func TestScanImportsFindsDynamicImport(t *testing.T) {
	sites := compiler.ScanImports(`async function f() { return import('./lazy'); }` + "\n")
	require.Len(t, sites, 1)
	assert.Equal(t, "./lazy", sites[0].ModulePath)
	assert.True(t, sites[0].IsDynamic)
}

func TestScanImportsFindsMultipleOnSeparateLines(t *testing.T) {
	src := "import { a } from './a';\nimport { b } from './b';\n"
	sites := compiler.ScanImports(src)
	require.Len(t, sites, 2)
	assert.Equal(t, "./a", sites[0].ModulePath)
	assert.Equal(t, "./b", sites[1].ModulePath)
	assert.Equal(t, 1, sites[0].Line)
	assert.Equal(t, 2, sites[1].Line)
}

func TestScanImportsIgnoresPlainCode(t *testing.T) {
	sites := compiler.ScanImports(`const x = 1 + 2;` + "\n")
	assert.Empty(t, sites)
}

func TestScanImportsReportsColumn(t *testing.T) {
	src := `const x = require('./y');` + "\n"
	sites := compiler.ScanImports(src)
	require.Len(t, sites, 1)
	assert.Equal(t, 1, sites[0].Line)
	assert.Equal(t, 10, sites[0].Column)
}
