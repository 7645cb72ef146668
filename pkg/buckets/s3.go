package buckets

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/beam-cloud/bucketmount/pkg/types"
	"github.com/rs/zerolog/log"
)

const DefaultRegion = "us-east-1"

// S3Lister lists buckets by calling ListBuckets on the endpoint directly,
// without going through rclone.
type S3Lister struct {
	region string
}

func NewS3Lister(region string) *S3Lister {
	if region == "" {
		region = DefaultRegion
	}
	return &S3Lister{region: region}
}

func (l *S3Lister) ListBuckets(ctx context.Context, creds types.Credentials) ([]string, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	client, err := l.client(ctx, creds)
	if err != nil {
		return nil, err
	}

	out, err := client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}

	names := make([]string, 0, len(out.Buckets))
	for _, b := range out.Buckets {
		names = append(names, aws.ToString(b.Name))
	}

	log.Debug().Str("endpoint", creds.Endpoint).Int("count", len(names)).Msg("listed buckets via s3 api")
	return names, nil
}

func (l *S3Lister) client(ctx context.Context, creds types.Credentials) (*s3.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(l.region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKey, creds.SecretKey, ""),
		),
		config.WithEndpointResolverWithOptions(
			aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				return aws.Endpoint{
					URL:               creds.Endpoint,
					HostnameImmutable: true,
				}, nil
			}),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	// S3-compatible endpoints (Ceph, MinIO) rarely support virtual-hosted buckets.
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	}), nil
}
