package mainconfig

import (
	"context"
	"testing"

	appconfig "github.com/shliew97/frappe-whatsapp/internal/config"
)

func TestNeedsAWS(t *testing.T) {
	cases := []struct {
		name string
		cfg  *appconfig.Config
		want bool
	}{
		{name: "nil", cfg: nil, want: false},
		{name: "memory everything", cfg: &appconfig.Config{UseMemoryQueue: true, DraftStore: "memory", LLMProvider: "none"}, want: false},
		{name: "sqs queue", cfg: &appconfig.Config{InboundQueueURL: "http://localhost:4566/000/inbound"}, want: true},
		{name: "memory queue ignores url", cfg: &appconfig.Config{UseMemoryQueue: true, InboundQueueURL: "http://q"}, want: false},
		{name: "dynamodb", cfg: &appconfig.Config{UseMemoryQueue: true, DraftStore: "dynamodb"}, want: true},
		{name: "bedrock", cfg: &appconfig.Config{UseMemoryQueue: true, LLMProvider: "bedrock"}, want: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NeedsAWS(tc.cfg); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestMaybeLoadAWSConfigSkipsWhenUnused(t *testing.T) {
	cfg := &appconfig.Config{UseMemoryQueue: true, DraftStore: "redis", LLMProvider: "none"}
	awsCfg, err := MaybeLoadAWSConfig(context.Background(), cfg)
	if err != nil || awsCfg != nil {
		t.Fatalf("expected nil config, got %v, %v", awsCfg, err)
	}
}

func TestLoadAWSConfigStaticCredentials(t *testing.T) {
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	cfg := &appconfig.Config{
		AWSRegion:           "ap-southeast-1",
		AWSAccessKeyID:      "test",
		AWSSecretAccessKey:  "secret",
		AWSEndpointOverride: "http://localhost:4566",
	}
	awsCfg, err := LoadAWSConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if awsCfg.Region != "ap-southeast-1" {
		t.Fatalf("expected region, got %q", awsCfg.Region)
	}
	creds, err := awsCfg.Credentials.Retrieve(context.Background())
	if err != nil {
		t.Fatalf("retrieve credentials: %v", err)
	}
	if creds.AccessKeyID != "test" {
		t.Fatalf("expected static credentials, got %q", creds.AccessKeyID)
	}
	if awsCfg.EndpointResolverWithOptions == nil {
		t.Fatalf("expected endpoint override resolver")
	}
}
