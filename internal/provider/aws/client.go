// Package aws implements the sample provider.Provider backing the
// "aws.vpc", "aws.subnet" and "aws.security_group" resource types. The
// Client loads default SDK config and holds the service clients; the EC2
// calls implement the create/read/update/delete contract the interpreter
// dispatches against.
package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// Client holds the AWS SDK clients the provider dispatches against.
type Client struct {
	Config awssdk.Config
	EC2    *ec2.Client
	STS    *sts.Client
}

// NewClient initializes a Client with the default SDK credential chain
// pinned to region.
func NewClient(ctx context.Context, region string) (*Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	return &Client{
		Config: cfg,
		EC2:    ec2.NewFromConfig(cfg),
		STS:    sts.NewFromConfig(cfg),
	}, nil
}

// VerifyIdentity confirms the configured credentials resolve to a caller
// identity and returns its account id. No command calls it before
// planning.
func (c *Client) VerifyIdentity(ctx context.Context) (string, error) {
	result, err := c.STS.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("failed to get caller identity: %w", err)
	}
	return awssdk.ToString(result.Account), nil
}
