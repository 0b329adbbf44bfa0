// Package app_test contains unit tests for the app package.
package app_test

import (
	"context"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paleoapi/compositegw/internal/app"
	"github.com/paleoapi/compositegw/internal/config"
	"github.com/paleoapi/compositegw/internal/diagnostics"
	storememory "github.com/paleoapi/compositegw/internal/store/memory"
)

func resetViper() {
	viper.Reset()
}

func TestNewApp_DefaultsToMemoryProviders(t *testing.T) {
	resetViper()
	defer resetViper()

	cfg := config.Config{
		Logging: config.LoggingConfig{Development: true},
	}

	a, err := app.NewApp(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, a)
	defer a.Close()

	assert.NotNil(t, a.GetLogger())
	assert.IsType(t, &storememory.RulesetStore{}, a.GetRulesets())
	assert.IsType(t, diagnostics.NopArchiver{}, a.GetArchiver())
	assert.NotNil(t, a.GetRateLimiter())
	assert.NotNil(t, a.GetProgress())
}

func TestNewApp_MemoryArchiverAndDiagnostics(t *testing.T) {
	resetViper()
	defer resetViper()
	viper.Set("diagnostics.archiver_provider", "memory")
	viper.Set("diagnostics.publisher_provider", "memory")

	a, err := app.NewApp(context.Background(), config.Config{})
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.GetArchiver())
	assert.NotNil(t, a.GetProgress())
}

func TestNewApp_UnknownArchiverProvider(t *testing.T) {
	resetViper()
	defer resetViper()
	viper.Set("diagnostics.archiver_provider", "bogus")

	_, err := app.NewApp(context.Background(), config.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown diagnostics.archiver_provider")
}

func TestNewApp_GCSArchiverMissingBucket(t *testing.T) {
	resetViper()
	defer resetViper()
	viper.Set("diagnostics.archiver_provider", "gcs")

	_, err := app.NewApp(context.Background(), config.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "diagnostics.gcs_bucket is not set")
}

func TestNewApp_PubSubMissingTopic(t *testing.T) {
	resetViper()
	defer resetViper()
	viper.Set("diagnostics.publisher_provider", "pubsub")

	_, err := app.NewApp(context.Background(), config.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project_id or topic_name is not set")
}

func TestNewApp_UnknownPublisherProvider(t *testing.T) {
	resetViper()
	defer resetViper()
	viper.Set("diagnostics.publisher_provider", "bogus")

	_, err := app.NewApp(context.Background(), config.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown diagnostics.publisher_provider")
}

func TestApp_CloseIsIdempotent(t *testing.T) {
	resetViper()
	defer resetViper()

	a, err := app.NewApp(context.Background(), config.Config{})
	require.NoError(t, err)
	a.Close()
	a.Close()
}
