package cli

import (
	"fmt"

	"github.com/beam-cloud/bucketmount/pkg/types"
	"github.com/spf13/cobra"
)

// secretKeyEnv supplies the secret key without putting it on the command line.
const secretKeyEnv = "BUCKETMOUNT_SECRET_KEY"

var profileFlags types.MountConfig

var profileCmd = &cobra.Command{
	Use:     "profile",
	Aliases: []string{"profiles"},
	Short:   "Manage mount profiles",
	Long:    `Create, inspect and remove the named profiles mounts are started from.`,
}

var profileAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create or update a profile",
	Long: `Create a profile, or update the given fields of an existing one.

The secret key can be passed with --secret-key or through ` + secretKeyEnv + `.
Profile names may contain letters, digits and underscores.`,
	Example: `  bucketmount profile add ceph --endpoint https://s3.example.com \
    --access-key AK --bucket data --mount-point ~/mnt/data
  ` + secretKeyEnv + `=... bucketmount profile add ceph --bucket archive`,
	Args: cobra.ExactArgs(1),
	RunE: runProfileAdd,
}

var profileListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List profiles",
	Args:    cobra.NoArgs,
	RunE:    runProfileList,
}

var profileShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileShow,
}

var profileRemoveCmd = &cobra.Command{
	Use:     "remove <name>",
	Aliases: []string{"rm", "delete"},
	Short:   "Remove a profile",
	Args:    cobra.ExactArgs(1),
	RunE:    runProfileRemove,
}

func init() {
	f := profileAddCmd.Flags()
	f.StringVar(&profileFlags.Endpoint, "endpoint", "", "Endpoint URL")
	f.StringVar(&profileFlags.AccessKey, "access-key", "", "Access key")
	f.StringVar(&profileFlags.SecretKey, "secret-key", "", "Secret key (or "+secretKeyEnv+")")
	f.StringVar(&profileFlags.BucketName, "bucket", "", "Bucket to mount")
	f.StringVar(&profileFlags.MountPoint, "mount-point", "", "Local directory to mount onto")
	f.StringVar(&profileFlags.ConfigPassword, "config-password", "", "rclone config password, if the rclone config is encrypted")

	profileCmd.AddCommand(profileAddCmd)
	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileRemoveCmd)
	rootCmd.AddCommand(profileCmd)
}

// mergeProfile applies the non-empty fields of update over base.
func mergeProfile(base, update types.MountConfig) types.MountConfig {
	if update.Endpoint != "" {
		base.Endpoint = update.Endpoint
	}
	if update.AccessKey != "" {
		base.AccessKey = update.AccessKey
	}
	if update.SecretKey != "" {
		base.SecretKey = update.SecretKey
	}
	if update.BucketName != "" {
		base.BucketName = update.BucketName
	}
	if update.MountPoint != "" {
		base.MountPoint = update.MountPoint
	}
	if update.ConfigPassword != "" {
		base.ConfigPassword = update.ConfigPassword
	}
	return base
}

func runProfileAdd(cmd *cobra.Command, args []string) error {
	name := args[0]
	if err := types.ValidateProfileName(name); err != nil {
		return err
	}

	store, err := openProfiles()
	if err != nil {
		return err
	}

	existing, err := store.Get(name)
	created := types.IsProfileNotFound(err)
	if err != nil && !created {
		return err
	}

	update := profileFlags
	if update.SecretKey == "" {
		update.SecretKey = getEnv(secretKeyEnv, "")
	}
	profile := mergeProfile(existing, update)
	profile.ProfileName = name

	if err := store.Put(profile); err != nil {
		return err
	}

	if PrintJSON(profile.Redact()) {
		return nil
	}
	if created {
		PrintSuccessf("Profile %s created", CodeStyle.Render(name))
	} else {
		PrintSuccessf("Profile %s updated", CodeStyle.Render(name))
	}
	return nil
}

func runProfileList(cmd *cobra.Command, args []string) error {
	store, err := openProfiles()
	if err != nil {
		return err
	}
	list, err := store.List()
	if err != nil {
		return err
	}

	if outputJSON {
		redacted := make([]types.MountConfig, 0, len(list))
		for _, p := range list {
			redacted = append(redacted, p.Redact())
		}
		PrintJSON(redacted)
		return nil
	}

	if len(list) == 0 {
		PrintWarning("No profiles")
		PrintHint("Run 'bucketmount profile add <name>' to create one")
		return nil
	}

	fmt.Fprintln(stdout)
	table := NewTable("NAME", "ENDPOINT", "BUCKET", "MOUNT POINT")
	for _, p := range list {
		table.AddRow(p.ProfileName, Truncate(p.Endpoint, 48), p.BucketName, p.MountPoint)
	}
	table.Print()
	fmt.Fprintln(stdout)
	return nil
}

func runProfileShow(cmd *cobra.Command, args []string) error {
	store, err := openProfiles()
	if err != nil {
		return err
	}
	profile, err := store.Get(args[0])
	if err != nil {
		return err
	}
	profile = profile.Redact()

	if PrintJSON(profile) {
		return nil
	}
	fmt.Fprintln(stdout)
	PrintKeyValue("Name", profile.ProfileName)
	PrintKeyValue("Endpoint", profile.Endpoint)
	PrintKeyValue("Access key", profile.AccessKey)
	PrintKeyValue("Secret key", profile.SecretKey)
	PrintKeyValue("Bucket", profile.BucketName)
	PrintKeyValue("Mount", profile.MountPoint)
	if profile.ConfigPassword != "" {
		PrintKeyValue("Config pass", profile.ConfigPassword)
	}
	fmt.Fprintln(stdout)
	return nil
}

func runProfileRemove(cmd *cobra.Command, args []string) error {
	store, err := openProfiles()
	if err != nil {
		return err
	}
	if err := store.Delete(args[0]); err != nil {
		return err
	}
	if PrintJSON(map[string]string{"removed": args[0]}) {
		return nil
	}
	PrintSuccessf("Profile %s removed", CodeStyle.Render(args[0]))
	return nil
}
