package cli

import (
	"context"
	"os"
	"time"

	"github.com/beam-cloud/bucketmount/pkg/common"
	"github.com/beam-cloud/bucketmount/pkg/rclone"
	"github.com/spf13/cobra"
)

const probeTimeout = 10 * time.Second

type CheckInfo struct {
	Rclone     string `json:"rclone"`
	Binary     string `json:"binary"`
	RemoteMode string `json:"remote_mode"`
	Config     string `json:"config,omitempty"`
	Profiles   string `json:"profiles"`
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify rclone is installed",
	Long:  `Run the configured rclone binary with --version and show where configuration is read from.`,
	Args:  cobra.NoArgs,
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	backend := rclone.NewBackend(appConfig.Rclone)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, probeTimeout)
	defer cancel()

	version, err := backend.Probe(ctx)
	if err != nil {
		return err
	}

	store, err := openProfiles()
	if err != nil {
		return err
	}

	info := CheckInfo{
		Rclone:     version,
		Binary:     backend.Config().Binary,
		RemoteMode: backend.Config().RemoteMode,
		Config:     os.Getenv(common.ConfigPathEnv),
		Profiles:   store.Path(),
	}
	if PrintJSON(info) {
		return nil
	}

	PrintSuccessf("Found %s", info.Rclone)
	PrintKeyValue("Binary", info.Binary)
	PrintKeyValue("Remotes", info.RemoteMode)
	if info.Config != "" {
		PrintKeyValue("Config", info.Config)
	} else {
		PrintKeyValueStyled("Config", "built-in defaults", DimStyle)
	}
	PrintKeyValue("Profiles", info.Profiles)
	return nil
}
