package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/hashicorp/vault/api"
)

// SecretManager interface for retrieving secrets
type SecretManager interface {
	GetSecret(key string) (string, error)
	GetMongoUsername() (string, error)
	GetMongoPassword() (string, error)
	GetRedisPassword() (string, error)
}

// EnvSecretManager uses environment variables (default)
type EnvSecretManager struct{}

func (e *EnvSecretManager) GetSecret(key string) (string, error) {
	envKey := "PLOTVAULT_" + strings.ToUpper(key)
	value := os.Getenv(envKey)
	if value == "" {
		return "", fmt.Errorf("environment variable %s not set", envKey)
	}
	return value, nil
}

func (e *EnvSecretManager) GetMongoUsername() (string, error) {
	return e.GetSecret("MONGODB_USERNAME")
}

func (e *EnvSecretManager) GetMongoPassword() (string, error) {
	return e.GetSecret("MONGODB_PASSWORD")
}

func (e *EnvSecretManager) GetRedisPassword() (string, error) {
	return e.GetSecret("REDIS_PASSWORD")
}

// VaultSecretManager retrieves secrets from HashiCorp Vault
type VaultSecretManager struct {
	config *Config
	client *api.Client
}

func NewVaultSecretManager(config *Config) (*VaultSecretManager, error) {
	client, err := api.NewClient(&api.Config{
		Address: config.Secrets.Vault.Address,
		Timeout: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	if config.Secrets.Vault.Token != "" {
		client.SetToken(config.Secrets.Vault.Token)
	} else {
		// Try to get token from environment
		token := os.Getenv("VAULT_TOKEN")
		if token != "" {
			client.SetToken(token)
		}
	}

	return &VaultSecretManager{
		config: config,
		client: client,
	}, nil
}

func (v *VaultSecretManager) GetSecret(key string) (string, error) {
	path := v.config.Secrets.Vault.Path
	if path == "" {
		path = "secret/plotvault"
	}

	secret, err := v.client.Logical().Read(path)
	if err != nil {
		return "", fmt.Errorf("failed to read from Vault: %w", err)
	}

	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("secret not found at path %s", path)
	}

	value, ok := secret.Data[key]
	if !ok {
		return "", fmt.Errorf("key %s not found in Vault secret", key)
	}

	strValue, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("secret value for key %s is not a string", key)
	}

	return strValue, nil
}

func (v *VaultSecretManager) GetMongoUsername() (string, error) {
	return v.GetSecret("mongodb_username")
}

func (v *VaultSecretManager) GetMongoPassword() (string, error) {
	return v.GetSecret("mongodb_password")
}

func (v *VaultSecretManager) GetRedisPassword() (string, error) {
	return v.GetSecret("redis_password")
}

// AWSSecretManager retrieves secrets from AWS Secrets Manager
type AWSSecretManager struct {
	config *Config
	client *secretsmanager.SecretsManager
}

func NewAWSSecretManager(config *Config) (*AWSSecretManager, error) {
	var sess *session.Session
	var err error

	if config.Secrets.AWS.AccessKey != "" && config.Secrets.AWS.SecretKey != "" {
		sess, err = session.NewSession(&aws.Config{
			Region: aws.String(config.Secrets.AWS.Region),
			Credentials: credentials.NewStaticCredentials(
				config.Secrets.AWS.AccessKey,
				config.Secrets.AWS.SecretKey,
				"",
			),
		})
	} else {
		sess, err = session.NewSession(&aws.Config{
			Region: aws.String(config.Secrets.AWS.Region),
		})
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	client := secretsmanager.New(sess)
	return &AWSSecretManager{
		config: config,
		client: client,
	}, nil
}

func (a *AWSSecretManager) GetSecret(key string) (string, error) {
	secretID := a.config.Secrets.AWS.SecretID
	if secretID == "" {
		secretID = "plotvault/secrets"
	}

	input := &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	}

	result, err := a.client.GetSecretValue(input)
	if err != nil {
		return "", fmt.Errorf("failed to get secret from AWS: %w", err)
	}

	var secrets map[string]string
	if err := json.Unmarshal([]byte(*result.SecretString), &secrets); err != nil {
		return "", fmt.Errorf("failed to parse AWS secret JSON: %w", err)
	}

	value, ok := secrets[key]
	if !ok {
		return "", fmt.Errorf("key %s not found in AWS secret", key)
	}

	return value, nil
}

func (a *AWSSecretManager) GetMongoUsername() (string, error) {
	return a.GetSecret("mongodb_username")
}

func (a *AWSSecretManager) GetMongoPassword() (string, error) {
	return a.GetSecret("mongodb_password")
}

func (a *AWSSecretManager) GetRedisPassword() (string, error) {
	return a.GetSecret("redis_password")
}

// NewSecretManager creates the appropriate secret manager based on configuration
func NewSecretManager(config *Config) (SecretManager, error) {
	provider := config.Secrets.Provider
	if provider == "" {
		provider = "env" // default to environment variables
	}

	switch provider {
	case "env":
		return &EnvSecretManager{}, nil
	case "vault":
		return NewVaultSecretManager(config)
	case "aws":
		return NewAWSSecretManager(config)
	default:
		return nil, fmt.Errorf("unsupported secret provider: %s", provider)
	}
}

// LoadSecrets overlays secret material onto the config. With the env provider
// absent secrets are fine (local MongoDB and Redis commonly run without
// credentials); with an external provider every lookup must resolve.
func LoadSecrets(config *Config) error {
	manager, err := NewSecretManager(config)
	if err != nil {
		return fmt.Errorf("failed to create secret manager: %w", err)
	}

	optional := config.Secrets.Provider == "" || config.Secrets.Provider == "env"

	load := func(name string, get func() (string, error), dst *string) error {
		value, err := get()
		if err != nil {
			if optional {
				return nil
			}
			return fmt.Errorf("failed to load %s: %w", name, err)
		}
		*dst = value
		return nil
	}

	if err := load("mongodb username", manager.GetMongoUsername, &config.MongoDB.Username); err != nil {
		return err
	}
	if err := load("mongodb password", manager.GetMongoPassword, &config.MongoDB.Password); err != nil {
		return err
	}
	if err := load("redis password", manager.GetRedisPassword, &config.Redis.Password); err != nil {
		return err
	}

	return nil
}

// MongoURIWithCredentials injects loaded credentials into the connection URI.
// A URI that already carries userinfo wins over separately configured
// credentials.
func (c *Config) MongoURIWithCredentials() string {
	if c.MongoDB.Username == "" {
		return c.MongoDB.URI
	}

	parsed, err := url.Parse(c.MongoDB.URI)
	if err != nil {
		return c.MongoDB.URI
	}
	if parsed.User != nil {
		return c.MongoDB.URI
	}

	parsed.User = url.UserPassword(c.MongoDB.Username, c.MongoDB.Password)
	return parsed.String()
}
