// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bodaay/shardfetch/pkg/shardfetch"
)

const configName = "shardfetch"

// DefaultConfig returns the default configuration. Keys match flag names.
// base-url and output are also accepted; they rank below a manifest, so
// they are left out here.
func DefaultConfig() map[string]any {
	def := shardfetch.DefaultSettings()
	return map[string]any{
		"manifest":            "",
		"retries":             def.Retries,
		"retry-delay":         def.RetryDelay,
		"timeout":             def.Timeout,
		"user-agent":          def.UserAgent,
		"s3-region":           "",
		"s3-profile":          "",
		"s3-endpoint":         "",
		"s3-credentials-file": "",
	}
}

// defaultConfigPaths lists the candidate config files in lookup order.
func defaultConfigPaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	dir := filepath.Join(home, ".config")
	return []string{
		filepath.Join(dir, configName+".json"),
		filepath.Join(dir, configName+".yaml"),
		filepath.Join(dir, configName+".yml"),
	}
}

// findConfig returns the explicit path, or the first existing default one.
func findConfig(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, p := range defaultConfigPaths() {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func readConfig(path string) (map[string]any, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("invalid YAML config file: %w", err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("invalid JSON config file: %w", err)
		}
	}
	return cfg, nil
}

// applySettingsDefaults fills fetch options from the config file for every
// flag not set on the command line. base-url and output are kept apart so a
// manifest can still override them.
func applySettingsDefaults(cmd *cobra.Command, ro *RootOpts, dst *fetchOpts) error {
	path := findConfig(ro.Config)
	if path == "" {
		return nil
	}
	cfg, err := readConfig(path)
	if err != nil {
		return err
	}

	setStr := func(flagName string, set func(string)) {
		if cmd.Flags().Changed(flagName) {
			return
		}
		if v, ok := cfg[flagName]; ok && v != nil {
			set(fmt.Sprint(v))
		}
	}
	setInt := func(flagName string, set func(int)) error {
		if cmd.Flags().Changed(flagName) {
			return nil
		}
		v, ok := cfg[flagName]
		if !ok || v == nil {
			return nil
		}
		var x int
		if _, err := fmt.Sscan(fmt.Sprint(v), &x); err != nil {
			return fmt.Errorf("config %s: %q is not an integer", flagName, fmt.Sprint(v))
		}
		set(x)
		return nil
	}

	setStr("base-url", func(v string) { dst.cfgBaseURL = v })
	setStr("output", func(v string) { dst.cfgOutput = v })
	setStr("manifest", func(v string) { dst.Manifest = v })
	setStr("retry-delay", func(v string) { dst.RetryDelay = v })
	setStr("timeout", func(v string) { dst.Timeout = v })
	setStr("user-agent", func(v string) { dst.UserAgent = v })
	setStr("s3-region", func(v string) { dst.S3Region = v })
	setStr("s3-profile", func(v string) { dst.S3Profile = v })
	setStr("s3-endpoint", func(v string) { dst.S3Endpoint = v })
	setStr("s3-credentials-file", func(v string) { dst.S3CredFile = v })
	return setInt("retries", func(v int) { dst.Retries = v })
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var (
		force   bool
		useYAML bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default configuration file",
		Long: `Creates a default configuration file at ~/.config/shardfetch.json (or .yaml)

The configuration file sets default values for the fetch flags.
CLI flags always override config file values.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("could not find home directory: %w", err)
			}

			configDir := filepath.Join(home, ".config")
			ext := ".json"
			if useYAML {
				ext = ".yaml"
			}
			configPath := filepath.Join(configDir, configName+ext)

			if _, err := os.Stat(configPath); err == nil && !force {
				return fmt.Errorf("config file already exists: %s\nUse --force to overwrite", configPath)
			}

			if err := os.MkdirAll(configDir, 0o755); err != nil {
				return fmt.Errorf("could not create config directory: %w", err)
			}

			cfg := DefaultConfig()
			var data []byte
			if useYAML {
				data, err = yaml.Marshal(cfg)
			} else {
				data, err = json.MarshalIndent(cfg, "", "  ")
			}
			if err != nil {
				return err
			}

			if err := os.WriteFile(configPath, data, 0o644); err != nil {
				return fmt.Errorf("could not write config file: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Created config file: %s\n", configPath)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Edit this file to set your defaults, for example the mirror")
			fmt.Fprintln(out, "base-url, the output directory or the retry settings.")

			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing config file")
	cmd.Flags().BoolVar(&useYAML, "yaml", false, "Create YAML config instead of JSON")

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			explicit, _ := cmd.Flags().GetString("config")
			configPath := findConfig(explicit)
			if configPath == "" {
				fmt.Fprintln(out, "No config file found.")
				if paths := defaultConfigPaths(); len(paths) > 0 {
					fmt.Fprintf(out, "Run 'shardfetch config init' to create one at:\n  %s\n", paths[0])
				}
				return nil
			}

			data, err := os.ReadFile(configPath)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Config file: %s\n\n", configPath)
			fmt.Fprintln(out, string(data))
			return nil
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Run: func(cmd *cobra.Command, args []string) {
			explicit, _ := cmd.Flags().GetString("config")
			if p := findConfig(explicit); p != "" {
				fmt.Fprintln(cmd.OutOrStdout(), p)
				return
			}
			if paths := defaultConfigPaths(); len(paths) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), paths[0])
			}
		},
	}
}
