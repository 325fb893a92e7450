package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"mercator-hq/ganymede/pkg/cli"
	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/credentials"
)

var validateFlags struct {
	credentialFile string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and credential files",
	Long: `Check the configuration file and the model credential file without
starting the broker.

The command loads and validates the configuration the same way "ganymede run"
does, then parses the credential file and reports the per-model session
pools it found.

Examples:
  # Validate the default config and its credential file
  ganymede validate

  # Validate a specific config
  ganymede validate --config /etc/ganymede/config.yaml

  # Validate a credential file on its own
  ganymede validate --credentials models.yaml`,
	RunE: validateFiles,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateFlags.credentialFile, "credentials", "", "credential file to validate (defaults to the one named in config)")
}

func validateFiles(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	fmt.Printf("✓ Configuration valid: %s\n", cfgFile)

	credPath := validateFlags.credentialFile
	if credPath == "" {
		credPath = cfg.Models.CredentialFile
	}
	if credPath == "" {
		fmt.Println("  (no credential file configured, skipping)")
		return nil
	}

	file, err := credentials.LoadFile(credPath)
	if err != nil {
		return cli.NewConfigError("models.credential_file", fmt.Sprintf("%s: %v", credPath, err))
	}

	fmt.Printf("✓ Credential file valid: %s\n", credPath)
	fmt.Printf("  Models: %d\n", len(file.Models))
	for model, creds := range file.Models {
		fmt.Printf("    %s: %d credential(s)\n", model, len(creds))
	}
	if file.Fallback != nil {
		fmt.Printf("  Default credential: mode %s\n", file.Fallback.Mode)
	}
	return nil
}
