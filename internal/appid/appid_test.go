package appid

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fulmenhq/gofulmen/appidentity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appidentityassets "github.com/moltpilot/moltpilot/internal/assets/appidentity"
)

func prepareIdentityForTest(t *testing.T) {
	t.Helper()

	// gofulmen caches identity per process; Reset clears the cache and the
	// embedded registration.
	appidentity.Reset()
	require.NoError(t, appidentity.RegisterEmbeddedIdentityYAML(appidentityassets.YAML))
	t.Cleanup(func() { appidentity.Reset() })
}

func TestDescribeOutsideRepo(t *testing.T) {
	prepareIdentityForTest(t)
	t.Setenv(appidentity.EnvIdentityPath, "")

	oldWD, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(oldWD) })
	require.NoError(t, os.Chdir(t.TempDir()))

	summary := Describe(context.Background())
	assert.Equal(t, "moltpilot", summary.BinaryName)
	assert.True(t, strings.HasSuffix(summary.EnvPrefix, "_"), "env prefix %q", summary.EnvPrefix)
	assert.NotEmpty(t, summary.Description)
}

func TestEnvVarRemainsAuthoritative(t *testing.T) {
	prepareIdentityForTest(t)

	missing := filepath.Join(t.TempDir(), "missing-app.yaml")
	t.Setenv(appidentity.EnvIdentityPath, missing)

	_, err := Get(context.Background())
	require.Error(t, err)

	var notFound *appidentity.NotFoundError
	assert.True(t, errors.As(err, &notFound), "expected NotFoundError, got %T", err)

	summary := Describe(context.Background())
	assert.Error(t, summary.Err)
	assert.Equal(t, DefaultBinaryName, summary.BinaryName)
	assert.Equal(t, DefaultEnvPrefix, summary.EnvPrefix)
}
