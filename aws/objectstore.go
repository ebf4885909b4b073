package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3control"
)

// ObjectStore implements share.ObjectStoreAccessControl on S3 bucket
// policies and S3 access points.
type ObjectStore struct {
	sessions *SessionProvider
}

func NewObjectStore(sessions *SessionProvider) *ObjectStore {
	return &ObjectStore{sessions: sessions}
}

func (o *ObjectStore) GetBucketPolicy(ctx context.Context, account string, region string, bucket string) (string, error) {
	cfg, err := o.sessions.Config(ctx, account, region)
	if err != nil {
		return "", err
	}

	client := s3.NewFromConfig(cfg)

	out, err := client.GetBucketPolicy(ctx, &s3.GetBucketPolicyInput{Bucket: aws.String(bucket)})
	if err != nil {
		if errorCode(err) == "NoSuchBucketPolicy" {
			return "", nil
		}

		return "", fmt.Errorf("reading policy of bucket %s: %w", bucket, err)
	}

	return aws.ToString(out.Policy), nil
}

func (o *ObjectStore) PutBucketPolicy(ctx context.Context, account string, region string, bucket string, policy string) error {
	cfg, err := o.sessions.Config(ctx, account, region)
	if err != nil {
		return err
	}

	client := s3.NewFromConfig(cfg)

	err = withRetry(ctx, func() error {
		_, putErr := client.PutBucketPolicy(ctx, &s3.PutBucketPolicyInput{
			Bucket: aws.String(bucket),
			Policy: aws.String(policy),
		})

		return putErr
	})
	if err != nil {
		return fmt.Errorf("writing policy of bucket %s: %w", bucket, err)
	}

	return nil
}

func (o *ObjectStore) GetAccessPointArn(ctx context.Context, account string, region string, name string) (string, error) {
	cfg, err := o.sessions.Config(ctx, account, region)
	if err != nil {
		return "", err
	}

	client := s3control.NewFromConfig(cfg)

	_, err = client.GetAccessPoint(ctx, &s3control.GetAccessPointInput{
		AccountId: aws.String(account),
		Name:      aws.String(name),
	})
	if err != nil {
		if errorCode(err) == "NoSuchAccessPoint" {
			return "", nil
		}

		return "", fmt.Errorf("describing access point %s: %w", name, err)
	}

	return accessPointArn(region, account, name), nil
}

func (o *ObjectStore) CreateAccessPoint(ctx context.Context, account string, region string, bucket string, name string) (string, error) {
	cfg, err := o.sessions.Config(ctx, account, region)
	if err != nil {
		return "", err
	}

	client := s3control.NewFromConfig(cfg)

	out, err := client.CreateAccessPoint(ctx, &s3control.CreateAccessPointInput{
		AccountId: aws.String(account),
		Bucket:    aws.String(bucket),
		Name:      aws.String(name),
	})
	if err != nil {
		return "", fmt.Errorf("creating access point %s on bucket %s: %w", name, bucket, err)
	}

	arn := aws.ToString(out.AccessPointArn)
	if arn == "" {
		arn = accessPointArn(region, account, name)
	}

	return arn, nil
}

func (o *ObjectStore) DeleteAccessPoint(ctx context.Context, account string, region string, name string) error {
	cfg, err := o.sessions.Config(ctx, account, region)
	if err != nil {
		return err
	}

	client := s3control.NewFromConfig(cfg)

	_, err = client.DeleteAccessPoint(ctx, &s3control.DeleteAccessPointInput{
		AccountId: aws.String(account),
		Name:      aws.String(name),
	})
	if err != nil {
		if errorCode(err) == "NoSuchAccessPoint" {
			return nil
		}

		return fmt.Errorf("deleting access point %s: %w", name, err)
	}

	return nil
}

func (o *ObjectStore) GetAccessPointPolicy(ctx context.Context, account string, region string, name string) (string, error) {
	cfg, err := o.sessions.Config(ctx, account, region)
	if err != nil {
		return "", err
	}

	client := s3control.NewFromConfig(cfg)

	out, err := client.GetAccessPointPolicy(ctx, &s3control.GetAccessPointPolicyInput{
		AccountId: aws.String(account),
		Name:      aws.String(name),
	})
	if err != nil {
		switch errorCode(err) {
		case "NoSuchAccessPointPolicy", "NoSuchAccessPoint":
			return "", nil
		}

		return "", fmt.Errorf("reading policy of access point %s: %w", name, err)
	}

	return aws.ToString(out.Policy), nil
}

func (o *ObjectStore) PutAccessPointPolicy(ctx context.Context, account string, region string, name string, policy string) error {
	cfg, err := o.sessions.Config(ctx, account, region)
	if err != nil {
		return err
	}

	client := s3control.NewFromConfig(cfg)

	err = withRetry(ctx, func() error {
		_, putErr := client.PutAccessPointPolicy(ctx, &s3control.PutAccessPointPolicyInput{
			AccountId: aws.String(account),
			Name:      aws.String(name),
			Policy:    aws.String(policy),
		})

		return putErr
	})
	if err != nil {
		return fmt.Errorf("writing policy of access point %s: %w", name, err)
	}

	return nil
}

func accessPointArn(region string, account string, name string) string {
	return fmt.Sprintf("arn:aws:s3:%s:%s:accesspoint/%s", region, account, name)
}
