package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// AWSCredentials are static Bedrock credentials from the secrets file or environment.
type AWSCredentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	BearerToken     string
}

// Static reports whether a complete key pair is present.
func (c AWSCredentials) Static() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// BedrockCredentials reads the AWS key pair and the Bedrock bearer token, secrets first.
func BedrockCredentials() AWSCredentials {
	get := func(name string) string {
		v, _ := GetSecret(name)
		return v
	}
	return AWSCredentials{
		AccessKeyID:     get(EnvAWSAccessKeyID),
		SecretAccessKey: get(EnvAWSSecretAccessKey),
		SessionToken:    get(EnvAWSSessionToken),
		BearerToken:     get(EnvBedrockBearerToken),
	}
}

// CheckBedrockCredentials fails when no AWS credential source is visible: no key pair, no
// bearer token, no AWS_PROFILE and no shared credentials file. Instance roles are not
// probed.
func CheckBedrockCredentials() error {
	c := BedrockCredentials()
	if c.Static() || c.BearerToken != "" || os.Getenv(EnvAWSProfile) != "" {
		return nil
	}
	path := os.Getenv("AWS_SHARED_CREDENTIALS_FILE")
	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, ".aws", "credentials")
		}
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
	}
	return fmt.Errorf("AWS credentials not found: set %s and %s, %s, or %s",
		EnvAWSAccessKeyID, EnvAWSSecretAccessKey, EnvBedrockBearerToken, EnvAWSProfile)
}
