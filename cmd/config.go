package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var flagConfigWrite bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration with every option documented",
	Args:  cobra.NoArgs,
	RunE:  runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&flagConfigWrite, "write", false, "write the documented config to the --config path if it does not exist")
}

func runConfig(cmd *cobra.Command, args []string) error {
	content := cfg.GenerateDocumentedConfig()
	if !flagConfigWrite {
		fmt.Fprint(cmd.OutOrStdout(), content)
		return nil
	}
	if _, err := os.Stat(flagConfig); err == nil {
		return fmt.Errorf("%s already exists", flagConfig)
	}
	if err := os.WriteFile(flagConfig, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", flagConfig)
	return nil
}
