package api_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsbundle/tsb/pkg/api"
)

func TestExpandOutputTemplateDefault(t *testing.T) {
	got := api.ExpandOutputTemplate("", "src/widget.ts")
	assert.Equal(t, "src/widget.bundle.js", got)
}

func TestExpandOutputTemplateNameAndDirname(t *testing.T) {
	got := api.ExpandOutputTemplate("[dirname]/out/[name].js", "src/widget.ts")
	assert.Equal(t, "src/out/widget.js", got)
}

func TestExpandOutputTemplateEnv(t *testing.T) {
	os.Setenv("TSB_TEST_TARGET", "prod")
	defer os.Unsetenv("TSB_TEST_TARGET")

	got := api.ExpandOutputTemplate("dist/[TSB_TEST_TARGET]/[name].js", "src/widget.ts")
	assert.Equal(t, "dist/prod/widget.js", got)
}

func TestExpandOutputTemplateLeavesUnknownBracketsAlone(t *testing.T) {
	got := api.ExpandOutputTemplate("dist/[not-an-env-name]/[name].js", "src/widget.ts")
	assert.Equal(t, "dist/[not-an-env-name]/widget.js", got)
}

func TestBundleRejectsEmptyEntryPaths(t *testing.T) {
	_, err := api.Bundle(nil, nil, api.Options{})
	assert.Error(t, err)
}
