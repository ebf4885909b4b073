package aws

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
)

// RolePolicies implements share.RolePolicyStore on IAM inline role
// policies. Roles may be referenced by name or by ARN.
type RolePolicies struct {
	sessions *SessionProvider
	region   string
}

func NewRolePolicies(sessions *SessionProvider, region string) *RolePolicies {
	return &RolePolicies{sessions: sessions, region: region}
}

func (r *RolePolicies) client(ctx context.Context, account string) (*iam.Client, error) {
	cfg, err := r.sessions.Config(ctx, account, r.region)
	if err != nil {
		return nil, err
	}

	return iam.NewFromConfig(cfg), nil
}

func (r *RolePolicies) GetRolePolicy(ctx context.Context, account string, role string, policyName string) (string, error) {
	client, err := r.client(ctx, account)
	if err != nil {
		return "", err
	}

	out, err := client.GetRolePolicy(ctx, &iam.GetRolePolicyInput{
		RoleName:   aws.String(roleName(role)),
		PolicyName: aws.String(policyName),
	})
	if err != nil {
		if isNoSuchEntity(err) {
			return "", nil
		}

		return "", fmt.Errorf("reading policy %s of role %s: %w", policyName, role, err)
	}

	// Inline policy documents come back URL-encoded.
	document, err := url.QueryUnescape(aws.ToString(out.PolicyDocument))
	if err != nil {
		return "", fmt.Errorf("decoding policy %s of role %s: %w", policyName, role, err)
	}

	return document, nil
}

func (r *RolePolicies) PutRolePolicy(ctx context.Context, account string, role string, policyName string, policy string) error {
	client, err := r.client(ctx, account)
	if err != nil {
		return err
	}

	err = withRetry(ctx, func() error {
		_, putErr := client.PutRolePolicy(ctx, &iam.PutRolePolicyInput{
			RoleName:       aws.String(roleName(role)),
			PolicyName:     aws.String(policyName),
			PolicyDocument: aws.String(policy),
		})

		return putErr
	})
	if err != nil {
		return fmt.Errorf("writing policy %s on role %s: %w", policyName, role, err)
	}

	return nil
}

func (r *RolePolicies) DeleteRolePolicy(ctx context.Context, account string, role string, policyName string) error {
	client, err := r.client(ctx, account)
	if err != nil {
		return err
	}

	_, err = client.DeleteRolePolicy(ctx, &iam.DeleteRolePolicyInput{
		RoleName:   aws.String(roleName(role)),
		PolicyName: aws.String(policyName),
	})
	if err != nil {
		if isNoSuchEntity(err) {
			return nil
		}

		return fmt.Errorf("deleting policy %s of role %s: %w", policyName, role, err)
	}

	return nil
}

func (r *RolePolicies) GetRoleNumericID(ctx context.Context, account string, role string) (string, error) {
	client, err := r.client(ctx, account)
	if err != nil {
		return "", err
	}

	out, err := client.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(roleName(role))})
	if err != nil {
		return "", fmt.Errorf("describing role %s: %w", role, err)
	}

	return aws.ToString(out.Role.RoleId), nil
}

func (r *RolePolicies) GetRoleNumericIDs(ctx context.Context, account string, roles []string) ([]string, error) {
	ids := make([]string, 0, len(roles))

	for _, role := range roles {
		id, err := r.GetRoleNumericID(ctx, account, role)
		if err != nil {
			return nil, err
		}

		ids = append(ids, id)
	}

	return ids, nil
}

func isNoSuchEntity(err error) bool {
	var noSuchEntity *iamtypes.NoSuchEntityException
	return errors.As(err, &noSuchEntity)
}

// roleName accepts either a bare role name or a full role ARN.
func roleName(role string) string {
	if idx := strings.LastIndex(role, "/"); idx >= 0 {
		return role[idx+1:]
	}

	return role
}
