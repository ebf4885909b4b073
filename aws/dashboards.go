package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/quicksight"
	qstypes "github.com/aws/aws-sdk-go-v2/service/quicksight/types"
)

const defaultDashboardNamespace = "default"

// Dashboards implements share.DashboardGroups on QuickSight. The group
// holds every dashboard user of an account; its ARN is a grant principal
// when the target environment has dashboards enabled.
type Dashboards struct {
	sessions  *SessionProvider
	region    string
	groupName string
}

func NewDashboards(sessions *SessionProvider, region string, groupName string) *Dashboards {
	return &Dashboards{sessions: sessions, region: region, groupName: groupName}
}

// GroupArn returns "" when the account has no dashboard group.
func (d *Dashboards) GroupArn(ctx context.Context, account string) (string, error) {
	cfg, err := d.sessions.Config(ctx, account, d.region)
	if err != nil {
		return "", err
	}

	client := quicksight.NewFromConfig(cfg)

	out, err := client.DescribeGroup(ctx, &quicksight.DescribeGroupInput{
		AwsAccountId: aws.String(account),
		Namespace:    aws.String(defaultDashboardNamespace),
		GroupName:    aws.String(d.groupName),
	})
	if err != nil {
		var notFound *qstypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return "", nil
		}

		return "", fmt.Errorf("describing dashboard group %s in account %s: %w", d.groupName, account, err)
	}

	return aws.ToString(out.Group.Arn), nil
}
