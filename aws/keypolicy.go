package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
)

// KeyPolicies implements share.KeyPolicyStore on KMS.
type KeyPolicies struct {
	sessions *SessionProvider
}

func NewKeyPolicies(sessions *SessionProvider) *KeyPolicies {
	return &KeyPolicies{sessions: sessions}
}

func (k *KeyPolicies) GetKeyID(ctx context.Context, account string, region string, alias string) (string, error) {
	cfg, err := k.sessions.Config(ctx, account, region)
	if err != nil {
		return "", err
	}

	client := kms.NewFromConfig(cfg)

	out, err := client.DescribeKey(ctx, &kms.DescribeKeyInput{KeyId: aws.String(alias)})
	if err != nil {
		return "", fmt.Errorf("describing key %s: %w", alias, err)
	}

	return aws.ToString(out.KeyMetadata.KeyId), nil
}

func (k *KeyPolicies) GetKeyPolicy(ctx context.Context, account string, region string, keyID string, policyName string) (string, error) {
	cfg, err := k.sessions.Config(ctx, account, region)
	if err != nil {
		return "", err
	}

	client := kms.NewFromConfig(cfg)

	out, err := client.GetKeyPolicy(ctx, &kms.GetKeyPolicyInput{
		KeyId:      aws.String(keyID),
		PolicyName: aws.String(policyName),
	})
	if err != nil {
		return "", fmt.Errorf("reading policy %s of key %s: %w", policyName, keyID, err)
	}

	return aws.ToString(out.Policy), nil
}

func (k *KeyPolicies) PutKeyPolicy(ctx context.Context, account string, region string, keyID string, policyName string, policy string) error {
	cfg, err := k.sessions.Config(ctx, account, region)
	if err != nil {
		return err
	}

	client := kms.NewFromConfig(cfg)

	err = withRetry(ctx, func() error {
		_, putErr := client.PutKeyPolicy(ctx, &kms.PutKeyPolicyInput{
			KeyId:      aws.String(keyID),
			PolicyName: aws.String(policyName),
			Policy:     aws.String(policy),
		})

		return putErr
	})
	if err != nil {
		return fmt.Errorf("writing policy %s on key %s: %w", policyName, keyID, err)
	}

	return nil
}
