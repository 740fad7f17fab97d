package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvSecretManager_GetSecret(t *testing.T) {
	manager := &EnvSecretManager{}

	t.Setenv("PLOTVAULT_TEST_SECRET", "s3cret-value")

	value, err := manager.GetSecret("test_secret")
	require.NoError(t, err)
	assert.Equal(t, "s3cret-value", value)
}

func TestEnvSecretManager_MongoCredentials(t *testing.T) {
	manager := &EnvSecretManager{}

	t.Setenv("PLOTVAULT_MONGODB_USERNAME", "app")
	t.Setenv("PLOTVAULT_MONGODB_PASSWORD", "hunter2")

	username, err := manager.GetMongoUsername()
	require.NoError(t, err)
	assert.Equal(t, "app", username)

	password, err := manager.GetMongoPassword()
	require.NoError(t, err)
	assert.Equal(t, "hunter2", password)
}

func TestEnvSecretManager_RedisPassword(t *testing.T) {
	manager := &EnvSecretManager{}

	t.Setenv("PLOTVAULT_REDIS_PASSWORD", "redis-pass")

	password, err := manager.GetRedisPassword()
	require.NoError(t, err)
	assert.Equal(t, "redis-pass", password)
}

func TestEnvSecretManager_MissingSecret(t *testing.T) {
	manager := &EnvSecretManager{}

	// Empty is the same as unset
	t.Setenv("PLOTVAULT_NONEXISTENT_SECRET", "")

	value, err := manager.GetSecret("nonexistent_secret")
	assert.Error(t, err)
	assert.Empty(t, value)
	assert.Contains(t, err.Error(), "not set")
}

func TestNewSecretManager_EnvProvider(t *testing.T) {
	cfg := &Config{}
	cfg.Secrets.Provider = "env"

	manager, err := NewSecretManager(cfg)
	require.NoError(t, err)

	_, ok := manager.(*EnvSecretManager)
	assert.True(t, ok, "Should return EnvSecretManager instance")
}

func TestNewSecretManager_DefaultProvider(t *testing.T) {
	cfg := &Config{}
	cfg.Secrets.Provider = ""

	manager, err := NewSecretManager(cfg)
	require.NoError(t, err)

	_, ok := manager.(*EnvSecretManager)
	assert.True(t, ok, "Empty provider should default to EnvSecretManager")
}

func TestNewSecretManager_UnsupportedProvider(t *testing.T) {
	cfg := &Config{}
	cfg.Secrets.Provider = "etcd"

	manager, err := NewSecretManager(cfg)
	assert.Error(t, err)
	assert.Nil(t, manager)
	assert.Contains(t, err.Error(), "unsupported secret provider")
}

func TestLoadSecrets_EnvOverlay(t *testing.T) {
	cfg := &Config{}
	cfg.Secrets.Provider = "env"

	t.Setenv("PLOTVAULT_MONGODB_USERNAME", "app")
	t.Setenv("PLOTVAULT_MONGODB_PASSWORD", "hunter2")
	t.Setenv("PLOTVAULT_REDIS_PASSWORD", "redis-pass")

	err := LoadSecrets(cfg)
	require.NoError(t, err)
	assert.Equal(t, "app", cfg.MongoDB.Username)
	assert.Equal(t, "hunter2", cfg.MongoDB.Password)
	assert.Equal(t, "redis-pass", cfg.Redis.Password)
}

func TestLoadSecrets_EnvAbsent(t *testing.T) {
	cfg := &Config{}
	cfg.Secrets.Provider = "env"

	t.Setenv("PLOTVAULT_MONGODB_USERNAME", "")
	t.Setenv("PLOTVAULT_MONGODB_PASSWORD", "")
	t.Setenv("PLOTVAULT_REDIS_PASSWORD", "")

	// Local MongoDB and Redis commonly run without credentials, so
	// missing env secrets must not fail startup.
	err := LoadSecrets(cfg)
	require.NoError(t, err)
	assert.Empty(t, cfg.MongoDB.Username)
	assert.Empty(t, cfg.MongoDB.Password)
	assert.Empty(t, cfg.Redis.Password)
}

func TestLoadSecrets_PartialOverlay(t *testing.T) {
	cfg := &Config{}
	cfg.Secrets.Provider = "env"

	t.Setenv("PLOTVAULT_MONGODB_USERNAME", "app")
	t.Setenv("PLOTVAULT_MONGODB_PASSWORD", "hunter2")
	t.Setenv("PLOTVAULT_REDIS_PASSWORD", "")

	err := LoadSecrets(cfg)
	require.NoError(t, err)
	assert.Equal(t, "app", cfg.MongoDB.Username)
	assert.Equal(t, "hunter2", cfg.MongoDB.Password)
	assert.Empty(t, cfg.Redis.Password)
}

func TestLoadSecrets_UnsupportedProvider(t *testing.T) {
	cfg := &Config{}
	cfg.Secrets.Provider = "gcp"

	err := LoadSecrets(cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create secret manager")
}
