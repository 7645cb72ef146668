package cli

import (
	"context"
	"time"

	"github.com/beam-cloud/bucketmount/pkg/buckets"
	"github.com/beam-cloud/bucketmount/pkg/rclone"
	"github.com/beam-cloud/bucketmount/pkg/types"
	"github.com/spf13/cobra"
)

const listTimeout = 30 * time.Second

var bucketCreds types.Credentials

var bucketsCmd = &cobra.Command{
	Use:   "buckets [profile]",
	Short: "List the buckets visible to a profile",
	Long: `List the buckets visible with a profile's credentials, or with credentials
given as flags. Listing uses rclone or the S3 API depending on buckets.lister.`,
	Example: `  bucketmount buckets ceph
  bucketmount buckets --endpoint https://s3.example.com --access-key AK --secret-key SK`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBuckets,
}

func init() {
	bucketsCmd.Flags().StringVar(&bucketCreds.Endpoint, "endpoint", "", "Endpoint URL")
	bucketsCmd.Flags().StringVar(&bucketCreds.AccessKey, "access-key", "", "Access key")
	bucketsCmd.Flags().StringVar(&bucketCreds.SecretKey, "secret-key", "", "Secret key (or "+secretKeyEnv+")")
	rootCmd.AddCommand(bucketsCmd)
}

func runBuckets(cmd *cobra.Command, args []string) error {
	creds := bucketCreds
	if len(args) == 1 {
		store, err := openProfiles()
		if err != nil {
			return err
		}
		profile, err := store.Get(args[0])
		if err != nil {
			return err
		}
		creds = profile.Credentials()
	} else if creds.SecretKey == "" {
		creds.SecretKey = getEnv(secretKeyEnv, "")
	}
	if err := creds.Validate(); err != nil {
		return err
	}

	lister, err := buckets.NewLister(appConfig.Buckets, rclone.NewBackend(appConfig.Rclone))
	if err != nil {
		return err
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, listTimeout)
	defer cancel()

	names, err := lister.ListBuckets(ctx, creds)
	if err != nil {
		return err
	}

	if PrintJSON(map[string]any{"endpoint": creds.Endpoint, "buckets": names}) {
		return nil
	}
	if len(names) == 0 {
		PrintWarning("No buckets found")
		return nil
	}
	PrintHeader("Buckets at " + creds.Endpoint)
	for _, name := range names {
		PrintBullet(name)
	}
	PrintNewline()
	return nil
}
