// Package aws adapts the vendor SDKs to the policy authority interfaces
// of the share package. Every client call runs in the target account
// through an assumed delegation role.
package aws

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// SessionProvider hands out per-account SDK configurations whose
// credentials come from assuming the delegation role in that account.
// Configurations are cached per account and region.
type SessionProvider struct {
	base               aws.Config
	delegationRoleName string

	mu    sync.Mutex
	cache map[string]aws.Config
}

// NewSessionProvider loads the default credential chain in the home
// region and prepares role delegation into other accounts.
func NewSessionProvider(ctx context.Context, region string, delegationRoleName string) (*SessionProvider, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading default config: %w", err)
	}

	return &SessionProvider{
		base:               cfg,
		delegationRoleName: delegationRoleName,
		cache:              make(map[string]aws.Config),
	}, nil
}

// Config returns an SDK configuration scoped to the given account and
// region, assuming the account's delegation role.
func (p *SessionProvider) Config(ctx context.Context, account string, region string) (aws.Config, error) {
	key := account + "/" + region

	p.mu.Lock()
	defer p.mu.Unlock()

	if cfg, ok := p.cache[key]; ok {
		return cfg, nil
	}

	roleArn := fmt.Sprintf("arn:aws:iam::%s:role/%s", account, p.delegationRoleName)
	provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(p.base), roleArn)

	cfg := p.base.Copy()
	cfg.Region = region
	cfg.Credentials = aws.NewCredentialsCache(provider)

	p.cache[key] = cfg

	return cfg, nil
}
