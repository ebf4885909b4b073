// Package alarm publishes share processing failures to an SNS topic as
// structured JSON events.
package alarm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/dataplane-io/datashare/share"
)

// Event types published to the topic.
const (
	EventTableShareFailure   = "table_share_failure"
	EventFolderShareFailure  = "folder_share_failure"
	EventTableRevokeFailure  = "table_revoke_failure"
	EventFolderRevokeFailure = "folder_revoke_failure"
)

// Event is the message body of one alarm.
type Event struct {
	Type          string    `json:"type"`
	ShareID       string    `json:"share_id"`
	ItemID        string    `json:"item_id"`
	ItemName      string    `json:"item_name"`
	TargetEnvID   string    `json:"target_environment_id"`
	TargetAccount string    `json:"target_account"`
	TargetRegion  string    `json:"target_region"`
	Timestamp     time.Time `json:"timestamp"`
}

type publisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Service implements share.Alarms on an SNS topic.
type Service struct {
	client   publisher
	topicArn string
}

// New builds a Service publishing to topicArn with the default credential
// chain.
func New(ctx context.Context, region string, topicArn string) (*Service, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading default config: %w", err)
	}

	return &Service{client: sns.NewFromConfig(cfg), topicArn: topicArn}, nil
}

// NewWithClient builds a Service on an existing SNS client.
func NewWithClient(client publisher, topicArn string) *Service {
	return &Service{client: client, topicArn: topicArn}
}

func (s *Service) TableShareFailure(ctx context.Context, table *share.Table, shareID string, target *share.Environment) error {
	return s.publish(ctx, tableEvent(EventTableShareFailure, table, shareID, target))
}

func (s *Service) FolderShareFailure(ctx context.Context, folder *share.StorageLocation, shareID string, target *share.Environment) error {
	return s.publish(ctx, folderEvent(EventFolderShareFailure, folder, shareID, target))
}

func (s *Service) TableRevokeFailure(ctx context.Context, table *share.Table, shareID string, target *share.Environment) error {
	return s.publish(ctx, tableEvent(EventTableRevokeFailure, table, shareID, target))
}

func (s *Service) FolderRevokeFailure(ctx context.Context, folder *share.StorageLocation, shareID string, target *share.Environment) error {
	return s.publish(ctx, folderEvent(EventFolderRevokeFailure, folder, shareID, target))
}

func tableEvent(eventType string, table *share.Table, shareID string, target *share.Environment) Event {
	return Event{
		Type:          eventType,
		ShareID:       shareID,
		ItemID:        table.ID,
		ItemName:      fmt.Sprintf("%s.%s", table.GlueDatabase, table.Name),
		TargetEnvID:   target.ID,
		TargetAccount: target.AccountID,
		TargetRegion:  target.Region,
		Timestamp:     time.Now().UTC(),
	}
}

func folderEvent(eventType string, folder *share.StorageLocation, shareID string, target *share.Environment) Event {
	return Event{
		Type:          eventType,
		ShareID:       shareID,
		ItemID:        folder.ID,
		ItemName:      fmt.Sprintf("s3://%s/%s", folder.Bucket, folder.Prefix),
		TargetEnvID:   target.ID,
		TargetAccount: target.AccountID,
		TargetRegion:  target.Region,
		Timestamp:     time.Now().UTC(),
	}
}

func (s *Service) publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding alarm event: %w", err)
	}

	_, err = s.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(s.topicArn),
		Subject:  aws.String(fmt.Sprintf("Data share alert: %s", event.Type)),
		Message:  aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("publishing %s alarm for share %s: %w", event.Type, event.ShareID, err)
	}

	return nil
}
