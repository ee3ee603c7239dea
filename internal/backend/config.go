package backend

import (
	"fmt"

	"expenses/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	t := Type(appConfig.DataBackend)
	if !t.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s (valid: %v)", appConfig.DataBackend, TypeStrings())
	}

	return Config{
		Type:            t,
		DataDir:         appConfig.DataDir,
		DefaultCurrency: appConfig.Currency(),
		SQLiteDBPath:    appConfig.SQLiteDBPath,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s (valid: %v)", c.Type, TypeStrings())
	}

	switch c.Type {
	case CSVBackend:
		if c.DataDir == "" {
			return fmt.Errorf("data directory is required for csv backend")
		}
		if !c.DefaultCurrency.Valid() {
			return fmt.Errorf("default currency is required for csv backend")
		}
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case MemoryBackend:
	}

	return nil
}

// Types returns all valid backend types
func Types() []Type {
	return []Type{CSVBackend, SQLiteBackend, MemoryBackend}
}

// TypeStrings returns all valid backend type strings
func TypeStrings() []string {
	types := Types()
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}
