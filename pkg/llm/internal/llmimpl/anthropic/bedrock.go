package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"fortuneteller/pkg/llm"
)

// BedrockOptions configures Claude served through Amazon Bedrock. Empty credentials fall
// back to the AWS default chain (environment, shared config, instance role).
type BedrockOptions struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	BearerToken     string
	BaseURL         string
}

// NewBedrockClientWithModel creates a raw Claude client whose requests are rewritten and
// signed for the Bedrock runtime. model is a Bedrock model id or inference profile ARN.
func NewBedrockClientWithModel(ctx context.Context, model string, o BedrockOptions) (llm.LLMClient, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(o.Region)}
	if o.AccessKeyID != "" && o.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(o.AccessKeyID, o.SecretAccessKey, o.SessionToken)))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	if o.BearerToken != "" {
		cfg.BearerAuthTokenProvider = bedrock.NewStaticBearerTokenProvider(o.BearerToken)
	}

	opts := []option.RequestOption{bedrock.WithConfig(cfg), option.WithMaxRetries(0)}
	if o.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(o.BaseURL))
	}
	return &ClaudeClient{
		client: anthropic.NewClient(opts...),
		model:  anthropic.Model(model),
	}, nil
}
