package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validatePathsConfig(&config.Paths); err != nil {
		return fmt.Errorf("paths config: %w", err)
	}

	if err := validateEntry("style.entry", config.Style.Entry); err != nil {
		return fmt.Errorf("style config: %w", err)
	}
	if err := validateExtensions("style.extensions", config.Style.Extensions); err != nil {
		return fmt.Errorf("style config: %w", err)
	}

	if err := validateEntry("render.entry", config.Render.Entry); err != nil {
		return fmt.Errorf("render config: %w", err)
	}
	if err := validateExtensions("render.extensions", config.Render.Extensions); err != nil {
		return fmt.Errorf("render config: %w", err)
	}

	for _, ext := range config.Style.Extensions {
		for _, other := range config.Render.Extensions {
			if strings.EqualFold(ext, other) {
				return &ValidationError{Field: "render.extensions", Value: other, Message: "extension is also claimed by style.extensions"}
			}
		}
	}

	if config.Watcher.Debounce < 0 {
		return &ValidationError{Field: "watcher.debounce", Value: config.Watcher.Debounce, Message: "must not be negative"}
	}
	if config.Reload.ReconnectDelay < 0 || config.Reload.ReconnectDelay > time.Minute {
		return &ValidationError{Field: "reload.reconnect_delay", Value: config.Reload.ReconnectDelay, Message: "must be between 0 and 1m"}
	}

	switch config.Log.Format {
	case "text", "json":
	default:
		return &ValidationError{Field: "log.format", Value: config.Log.Format, Message: "must be text or json"}
	}

	return nil
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	// Validate port range (allow 0 for system-assigned ports in testing)
	if config.Port < 0 || config.Port > 65535 {
		return &ValidationError{Field: "server.port", Value: config.Port, Message: fmt.Sprintf("port %d is not in valid range 0-65535", config.Port)}
	}

	if config.Host != "" {
		dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\", "/"}
		for _, char := range dangerousChars {
			if strings.Contains(config.Host, char) {
				return &ValidationError{Field: "server.host", Value: config.Host, Message: "host contains dangerous character: " + char}
			}
		}
	}

	if config.ShutdownTimeout < 0 {
		return &ValidationError{Field: "server.shutdown_timeout", Value: config.ShutdownTimeout, Message: "must not be negative"}
	}

	return nil
}

func validatePathsConfig(config *PathsConfig) error {
	if err := validatePath(config.Source); err != nil {
		return &ValidationError{Field: "paths.source", Value: config.Source, Message: err.Error()}
	}
	if err := validatePath(config.Output); err != nil {
		return &ValidationError{Field: "paths.output", Value: config.Output, Message: err.Error()}
	}

	src, _ := filepath.Abs(config.Source)
	out, _ := filepath.Abs(config.Output)
	if src == out {
		return &ValidationError{Field: "paths.output", Value: config.Output, Message: "output directory must differ from the source directory"}
	}
	if rel, err := filepath.Rel(src, out); err == nil && !strings.HasPrefix(rel, "..") {
		// the watcher would see every artifact write as a source change
		return &ValidationError{Field: "paths.output", Value: config.Output, Message: "output directory must not be inside the source directory"}
	}

	return nil
}

// validateEntry checks an entry file name relative to the source root.
func validateEntry(field, entry string) error {
	if strings.TrimSpace(entry) == "" {
		return &ValidationError{Field: field, Value: entry, Message: "entry must not be empty"}
	}
	if filepath.IsAbs(entry) {
		return &ValidationError{Field: field, Value: entry, Message: "entry must be relative to paths.source"}
	}
	if err := validatePath(entry); err != nil {
		return &ValidationError{Field: field, Value: entry, Message: err.Error()}
	}
	return nil
}

func validateExtensions(field string, exts []string) error {
	for _, ext := range exts {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return &ValidationError{Field: field, Value: ext, Message: "extension must start with '.'"}
		}
	}
	return nil
}

// validatePath validates a file path for security
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)

	// Reject path traversal attempts
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path contains traversal: %s", path)
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}
