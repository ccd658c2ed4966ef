package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// bindFlags binds each named flag in fs to its configuration key.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet, bindings map[string]string) error {
	for flagName, key := range bindings {
		flag := fs.Lookup(flagName)
		if flag == nil {
			return fmt.Errorf("unknown flag %q", flagName)
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind --%s to %s: %w", flagName, key, err)
		}
	}
	return nil
}

func mustBind(v *viper.Viper, fs *pflag.FlagSet, bindings map[string]string) {
	if err := bindFlags(v, fs, bindings); err != nil {
		panic(err)
	}
}

// parseProps parses component props given inline as JSON or as @file.json.
// An empty value yields nil.
func parseProps(value string) (map[string]interface{}, error) {
	if value == "" {
		return nil, nil
	}

	data := []byte(value)
	source := "props"
	if strings.HasPrefix(value, "@") {
		filename := strings.TrimPrefix(value, "@")
		var err error
		data, err = os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to read props file %s: %w", filename, err)
		}
		source = "props file " + filename
	}

	var props map[string]interface{}
	if err := json.Unmarshal(data, &props); err != nil {
		return nil, fmt.Errorf("invalid JSON in %s: %w", source, err)
	}
	return props, nil
}
