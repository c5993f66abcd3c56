package cmd

import (
	"fmt"
	"io"
	"net/url"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/nnww-gis/gisops/internal/config"
	"github.com/nnww-gis/gisops/internal/style"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: GroupConfig,
	Short:   "Inspect gisops.toml",
	RunE:    requireSubcommand,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults and environment overrides are
applied. Passwords and secret keys are masked.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return writeConfig(cmd.OutOrStdout(), cfg)
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration for errors",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.ResolvePath(configPath)
		if _, err := config.Load(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s is valid\n", style.SuccessPrefix, path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}

const masked = "********"

// writeConfig encodes cfg as TOML with secrets masked.
func writeConfig(w io.Writer, cfg *config.Config) error {
	c := *cfg
	if c.Postgres.URL != "" {
		if u, err := url.Parse(c.Postgres.URL); err == nil {
			c.Postgres.URL = u.Redacted()
		} else {
			c.Postgres.URL = masked
		}
	}
	if c.Archive.AccessKey != "" {
		c.Archive.AccessKey = masked
	}
	if c.Archive.SecretKey != "" {
		c.Archive.SecretKey = masked
	}
	return toml.NewEncoder(w).Encode(c)
}
