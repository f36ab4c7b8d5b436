// Package config resolves takod settings. Precedence: command-line flags,
// then TAKOD_* environment variables, then an optional config file, then the
// conventional fixed paths.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/lilienblum/tako/internal/server"
)

var v *viper.Viper

// Initialize sets up the viper configuration singleton.
// Should be called once at application startup.
func Initialize() error {
	v = viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Config file search paths: system location first, then the working
	// directory for harnesses that ship their own.
	v.AddConfigPath("/etc/tako")
	if cwd, err := os.Getwd(); err == nil {
		v.AddConfigPath(cwd)
	}

	// Environment variables: TAKOD_SOCKET, TAKOD_STATE_DIR, TAKOD_LOG_FILE,
	// TAKOD_DEBUG.
	v.SetEnvPrefix("TAKOD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Defaults are the paths the emulated agent conventionally lives at.
	v.SetDefault("socket", server.DefaultSocketPath)
	v.SetDefault("state-dir", server.DefaultStateDir)
	v.SetDefault("log-file", "")
	v.SetDefault("debug", false)

	// Read config file if it exists (don't error if not found).
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// GetString retrieves a string configuration value.
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool retrieves a boolean configuration value.
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// Set sets a configuration value, overriding every other source.
func Set(key string, value interface{}) {
	if v != nil {
		v.Set(key, value)
	}
}
