package mainconfig

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	appconfig "github.com/shliew97/frappe-whatsapp/internal/config"
)

// NeedsAWS reports whether any configured component talks to AWS: the SQS
// inbound queue, the DynamoDB draft store or Bedrock.
func NeedsAWS(cfg *appconfig.Config) bool {
	if cfg == nil {
		return false
	}
	return (!cfg.UseMemoryQueue && strings.TrimSpace(cfg.InboundQueueURL) != "") ||
		cfg.DraftStore == "dynamodb" ||
		cfg.LLMProvider == "bedrock"
}

// LoadAWSConfig centralizes AWS SDK initialization so every binary shares the
// same LocalStack/production wiring. The endpoint override only applies to
// SQS and DynamoDB; Bedrock always resolves to the regional endpoint.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return aws.Config{}, err
	}

	if endpoint := strings.TrimSpace(cfg.AWSEndpointOverride); endpoint != "" {
		awsCfg.EndpointResolverWithOptions = aws.EndpointResolverWithOptionsFunc(
			func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
				switch service {
				case sqs.ServiceID, dynamodb.ServiceID:
					return aws.Endpoint{
						URL:           endpoint,
						PartitionID:   "aws",
						SigningRegion: cfg.AWSRegion,
					}, nil
				default:
					return aws.Endpoint{}, &aws.EndpointNotFoundError{}
				}
			},
		)
	}

	return awsCfg, nil
}

// MaybeLoadAWSConfig loads AWS config only when NeedsAWS; otherwise it returns nil.
func MaybeLoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (*aws.Config, error) {
	if !NeedsAWS(cfg) {
		return nil, nil
	}
	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &awsCfg, nil
}
