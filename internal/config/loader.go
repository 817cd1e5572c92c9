package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	configName = "warehouse"
	envPrefix  = "WAREHOUSE"
)

// Load builds the configuration in three layers: the retail defaults, an
// optional warehouse.yaml found under configPath, and WAREHOUSE_* environment
// variables (WAREHOUSE_DATABASE_HOST and friends). A missing file is fine;
// a malformed one is not.
func Load(configPath string) (Config, error) {
	cfg := Default()

	if configPath == "" {
		configPath = "."
	}

	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for _, key := range []string{
		"database.host", "database.port", "database.user",
		"database.password", "database.dbname", "database.sslmode",
		"lake.root", "calendar.from", "calendar.to",
	} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read %s.yaml: %w", configName, err)
		}
	}

	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("lake.root") {
		cfg.Lake.Root = v.GetString("lake.root")
	}
	if v.IsSet("calendar.from") {
		cfg.Calendar.From = v.GetString("calendar.from")
	}
	if v.IsSet("calendar.to") {
		cfg.Calendar.To = v.GetString("calendar.to")
	}

	// Stream lists replace the defaults wholesale when configured, so a
	// warehouse.yaml states the complete stream set it wants.
	if v.IsSet("dimensions") {
		cfg.Dimensions = nil
		if err := v.UnmarshalKey("dimensions", &cfg.Dimensions); err != nil {
			return Config{}, fmt.Errorf("failed to parse dimension streams: %w", err)
		}
	}
	if v.IsSet("facts") {
		cfg.Facts = nil
		if err := v.UnmarshalKey("facts", &cfg.Facts); err != nil {
			return Config{}, fmt.Errorf("failed to parse fact streams: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
