package util_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/buildbarn/gpucache/pkg/util"
)

func TestEvaluateJsonnetFileEvaluatesSnippet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonnet")
	require.NoError(t, os.WriteFile(path, []byte(`{ hashValidation: true, versionTagHex: "ab" }`), 0o644))

	output, err := util.EvaluateJsonnetFile(path)
	require.NoError(t, err)
	require.JSONEq(t, `{"hashValidation": true, "versionTagHex": "ab"}`, output)
}

func TestEvaluateJsonnetFileExposesEnvironmentVariables(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonnet")
	require.NoError(t, os.WriteFile(path, []byte(`{ value: std.extVar("GPUCACHE_TEST_VALUE") }`), 0o644))

	t.Setenv("GPUCACHE_TEST_VALUE", "from-env")
	output, err := util.EvaluateJsonnetFile(path)
	require.NoError(t, err)
	require.JSONEq(t, `{"value": "from-env"}`, output)
}

func TestEvaluateJsonnetFilePropagatesEvaluationErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.jsonnet")
	require.NoError(t, os.WriteFile(path, []byte(`{ x: 1 +`), 0o644))

	_, err := util.EvaluateJsonnetFile(path)
	require.Error(t, err)
}
