package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Keys of the shared env file. The provisioning tooling owns most of this
// file; the linker only reads its inputs and writes back the resolved
// environment id after a successful run.
const (
	KeyEnterprisePolicyName = "ENTERPRISE_POLICY_NAME"
	KeyEnvironmentID        = "POWER_PLATFORM_ENVIRONMENT_ID"
	KeyEnvironmentName      = "POWER_PLATFORM_ENVIRONMENT_NAME"
	KeyResourceGroup        = "RESOURCE_GROUP"
	KeySubscriptionID       = "SUBSCRIPTION_ID"
	KeyAdminBaseURL         = "ADMIN_BASE_URL"
	KeyTokenScope           = "TOKEN_SCOPE"
)

const (
	DefaultAdminBaseURL = "https://api.bap.microsoft.com/providers/Microsoft.BusinessAppPlatform/scopes/admin"
	DefaultTokenScope   = "https://service.powerapps.com/.default"
)

// Config is the explicit configuration object passed into the locator and
// clients. There are no process-wide mutable globals; a run receives one of
// these and hands it back for persistence.
type Config struct {
	EnterprisePolicyName string
	EnvironmentID        string
	EnvironmentName      string
	ResourceGroup        string
	SubscriptionID       string
	AdminBaseURL         string
	TokenScope           string
}

type IStore interface {
	Load() (*Config, error)
	Save(cfg *Config) error
}

type Store struct {
	EnvFilePath string
	Logger      *logrus.Logger
}

func NewStore(envFilePath string, logger *logrus.Logger) (*Store, error) {
	parsedPath, err := parsePath(envFilePath)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing env file path %s", envFilePath)
	}
	return &Store{
		EnvFilePath: parsedPath,
		Logger:      logger,
	}, nil
}

// Load reads the flat key=value env file. A missing file is not an error:
// first runs are expected to supply everything via flags.
func (store *Store) Load() (*Config, error) {
	cfg := &Config{
		AdminBaseURL: DefaultAdminBaseURL,
		TokenScope:   DefaultTokenScope,
	}

	v := viper.New()
	v.SetConfigFile(store.EnvFilePath)
	v.SetConfigType("dotenv")

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(errors.Cause(err)) {
			store.Logger.Debugf("Env file %s does not exist, using defaults", store.EnvFilePath)
			return cfg, nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			store.Logger.Debugf("Env file %s not found, using defaults", store.EnvFilePath)
			return cfg, nil
		}
		return nil, errors.Wrapf(err, "reading env file %s", store.EnvFilePath)
	}

	cfg.EnterprisePolicyName = v.GetString(KeyEnterprisePolicyName)
	cfg.EnvironmentID = v.GetString(KeyEnvironmentID)
	cfg.EnvironmentName = v.GetString(KeyEnvironmentName)
	cfg.ResourceGroup = v.GetString(KeyResourceGroup)
	cfg.SubscriptionID = v.GetString(KeySubscriptionID)
	if value := v.GetString(KeyAdminBaseURL); value != "" {
		cfg.AdminBaseURL = value
	}
	if value := v.GetString(KeyTokenScope); value != "" {
		cfg.TokenScope = value
	}

	store.Logger.Debugf("Loaded configuration from %s", store.EnvFilePath)
	return cfg, nil
}

// Save rewrites the env file with the run's resolved values. Called only
// after a successful run so a failed run never clobbers operator input.
func (store *Store) Save(cfg *Config) error {
	v := viper.New()
	v.SetConfigFile(store.EnvFilePath)
	v.SetConfigType("dotenv")

	v.Set(KeyEnterprisePolicyName, cfg.EnterprisePolicyName)
	v.Set(KeyEnvironmentID, cfg.EnvironmentID)
	v.Set(KeyEnvironmentName, cfg.EnvironmentName)
	v.Set(KeyResourceGroup, cfg.ResourceGroup)
	v.Set(KeySubscriptionID, cfg.SubscriptionID)
	v.Set(KeyAdminBaseURL, cfg.AdminBaseURL)
	v.Set(KeyTokenScope, cfg.TokenScope)

	if err := v.WriteConfigAs(store.EnvFilePath); err != nil {
		return errors.Wrapf(err, "writing env file %s", store.EnvFilePath)
	}
	store.Logger.Infof("Configuration written to %s", store.EnvFilePath)
	return nil
}

func parsePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		dirname, _ := os.UserHomeDir()
		path = filepath.Join(dirname, path[2:])
	}

	return filepath.Abs(path)
}
