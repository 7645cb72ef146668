package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/beam-cloud/bucketmount/pkg/common"
	"github.com/beam-cloud/bucketmount/pkg/profiles"
	"github.com/beam-cloud/bucketmount/pkg/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Build information (injected at compile time via ldflags)
var (
	Version = "dev"
)

var (
	configFile string
	jsonOutput bool
	debugLogs  bool
	noColor    bool

	appConfig types.AppConfig
)

// Custom help template with styled output
var helpTemplate = `{{with .Long}}{{. | trim}}

{{end}}{{if .HasAvailableSubCommands}}` + `{{.CommandPath}}` + ` ` + `<command>` + `

{{end}}{{if .HasAvailableSubCommands}}Commands:
{{range .Commands}}{{if .IsAvailableCommand}}  {{rpad .Name .NamePadding }}  {{.Short}}
{{end}}{{end}}{{end}}{{if .HasAvailableLocalFlags}}
Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableInheritedFlags}}

Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasExample}}

Examples:
{{.Example}}{{end}}
`

var rootCmd = &cobra.Command{
	Use:   "bucketmount",
	Short: "Mount S3-compatible buckets with rclone",
	Long: BrandStyle.Render("bucketmount") + ` - Mount S3-compatible buckets with rclone

Save endpoint credentials as named profiles, then mount a bucket onto a local
directory. The rclone process is supervised: a failed mount is reported with
its output, and unmounting always goes through a graceful shutdown.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		SetJSONOutput(jsonOutput)
		if noColor || jsonOutput {
			disableColor()
		}

		if configFile != "" {
			os.Setenv(common.ConfigPathEnv, configFile)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		appConfig = cfg
		setupLogging(cfg, debugLogs)
		return nil
	},
}

func init() {
	rootCmd.SetHelpTemplate(helpTemplate)
	rootCmd.SetVersionTemplate(fmt.Sprintf("  %s version %s\n", BrandStyle.Render("bucketmount"), Version))

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", getEnv(common.ConfigPathEnv, ""), "Path to config file (YAML or JSON)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&debugLogs, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
}

// errMountFailed ends a foreground mount whose failure was already reported.
var errMountFailed = errors.New("mount failed")

// Execute runs the CLI
func Execute() error {
	err := rootCmd.Execute()
	if err != nil && !errors.Is(err, errMountFailed) {
		if IsJSONOutput() {
			PrintJSONError(err)
		} else {
			PrintFormattedError("Command failed", err)
		}
	}
	return err
}

func loadConfig() (types.AppConfig, error) {
	configManager, err := common.NewConfigManager[types.AppConfig]()
	if err != nil {
		return types.AppConfig{}, fmt.Errorf("load config: %w", err)
	}
	return configManager.GetConfig(), nil
}

// setupLogging routes zerolog to stderr so it never mixes with command output.
func setupLogging(cfg types.AppConfig, debug bool) {
	level := zerolog.WarnLevel
	if cfg.DebugMode || debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.PrettyLogs || !jsonOutput {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: noColor})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

func openProfiles() (*profiles.Store, error) {
	return profiles.NewStore(appConfig.Profiles.Path)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
