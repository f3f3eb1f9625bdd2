package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/zoobzio/plumbz"
)

// envPrefix scopes environment overrides, e.g. PLUMBZ_HANDLER=off.
const envPrefix = "PLUMBZ"

// loadConfig resolves the Sentinel configuration. Precedence, highest
// first: flags set on the command line, environment, config file, defaults.
func loadConfig(cmd *cobra.Command) (plumbz.Config, error) {
	v := viper.New()

	defaults := plumbz.DefaultConfig()
	v.SetDefault("name", defaults.Name)
	v.SetDefault("handler", defaults.Handler)
	v.SetDefault("propagate", defaults.Propagate)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return plumbz.Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	for _, key := range []string{"name", "handler", "propagate"} {
		flag := cmd.Flags().Lookup(key)
		if flag == nil || !flag.Changed {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return plumbz.Config{}, fmt.Errorf("failed to bind flag %s: %w", key, err)
		}
	}

	var cfg plumbz.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return plumbz.Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return plumbz.Config{}, err
	}
	return cfg, nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long:  "Resolve flags, PLUMBZ_ environment variables and the config file, then print the result as YAML.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to render config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
