package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/blockloop/scan"

	"github.com/dataplane-io/datashare/share"
)

type shareRow struct {
	ID            string `db:"id"`
	DatasetID     string `db:"dataset_id"`
	EnvironmentID string `db:"environment_id"`
	PrincipalID   string `db:"principal_id"`
	Status        string `db:"status"`
}

type itemRow struct {
	ID              string `db:"id"`
	ShareID         string `db:"share_id"`
	ItemID          string `db:"item_id"`
	ItemType        string `db:"item_type"`
	Status          string `db:"status"`
	AccessPointName string `db:"access_point_name"`
}

type datasetRow struct {
	ID             string `db:"id"`
	EnvironmentID  string `db:"environment_id"`
	AccountID      string `db:"account_id"`
	Region         string `db:"region"`
	GlueDatabase   string `db:"glue_database"`
	BucketName     string `db:"bucket_name"`
	KMSAlias       string `db:"kms_alias"`
	AdminRoleArn   string `db:"admin_role_arn"`
	AdminGroupName string `db:"admin_group_name"`
}

type tableRow struct {
	ID           string `db:"id"`
	DatasetID    string `db:"dataset_id"`
	GlueDatabase string `db:"glue_database"`
	Name         string `db:"name"`
}

type locationRow struct {
	ID        string `db:"id"`
	DatasetID string `db:"dataset_id"`
	AccountID string `db:"account_id"`
	Region    string `db:"region"`
	Bucket    string `db:"bucket"`
	Prefix    string `db:"prefix"`
}

type environmentRow struct {
	ID                string `db:"id"`
	Name              string `db:"name"`
	AccountID         string `db:"account_id"`
	Region            string `db:"region"`
	DashboardsEnabled bool   `db:"dashboards_enabled"`
}

type groupRow struct {
	EnvironmentID string `db:"environment_id"`
	GroupName     string `db:"group_name"`
	RoleArn       string `db:"role_arn"`
	RoleName      string `db:"role_name"`
}

// GetShareData resolves the full processing context of a share: the share
// itself (which must be in one of the given statuses), its dataset, both
// environments, both environment groups, and the shared tables and
// folders. Any missing record is reported as a NotFoundError.
func (s *Store) GetShareData(ctx context.Context, shareID string, statuses []string) (*share.Data, error) {
	sh, err := s.getShare(ctx, shareID, statuses)
	if err != nil {
		return nil, err
	}

	dataset, err := s.getDataset(ctx, sh.DatasetID)
	if err != nil {
		return nil, err
	}

	sourceEnv, err := s.getEnvironment(ctx, dataset.EnvironmentID)
	if err != nil {
		return nil, err
	}

	targetEnv, err := s.getEnvironment(ctx, sh.EnvironmentID)
	if err != nil {
		return nil, err
	}

	sourceGroup, err := s.getEnvironmentGroup(ctx, dataset.EnvironmentID, dataset.AdminGroupName)
	if err != nil {
		return nil, err
	}

	targetGroup, err := s.getEnvironmentGroup(ctx, sh.EnvironmentID, sh.PrincipalID)
	if err != nil {
		return nil, err
	}

	tables, err := s.getSharedTables(ctx, shareID)
	if err != nil {
		return nil, err
	}

	folders, err := s.getSharedFolders(ctx, shareID)
	if err != nil {
		return nil, err
	}

	return &share.Data{
		Share:       sh,
		Dataset:     dataset,
		SourceEnv:   sourceEnv,
		TargetEnv:   targetEnv,
		SourceGroup: sourceGroup,
		TargetGroup: targetGroup,
		Tables:      tables,
		Folders:     folders,
	}, nil
}

func (s *Store) getShare(ctx context.Context, shareID string, statuses []string) (*share.Share, error) {
	query := `SELECT id, dataset_id, environment_id, principal_id, status FROM shares WHERE id = ?`
	args := []any{shareID}

	if len(statuses) > 0 {
		query += fmt.Sprintf(" AND status IN (%s)", placeholders(len(statuses)))
		for _, status := range statuses {
			args = append(args, status)
		}
	}

	rows, err := s.read.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying share %s: %w", shareID, err)
	}

	var row shareRow
	if err = scan.Row(&row, rows); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, share.NewNotFoundError("share", shareID)
		}

		return nil, fmt.Errorf("scanning share %s: %w", shareID, err)
	}

	return &share.Share{
		ID:            row.ID,
		DatasetID:     row.DatasetID,
		EnvironmentID: row.EnvironmentID,
		PrincipalID:   row.PrincipalID,
		Status:        share.ShareStatus(row.Status),
	}, nil
}

func (s *Store) getDataset(ctx context.Context, datasetID string) (*share.Dataset, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT id, environment_id, account_id, region, glue_database, bucket_name, kms_alias, admin_role_arn, admin_group_name
		 FROM datasets WHERE id = ?`, datasetID)
	if err != nil {
		return nil, fmt.Errorf("querying dataset %s: %w", datasetID, err)
	}

	var row datasetRow
	if err = scan.Row(&row, rows); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, share.NewNotFoundError("dataset", datasetID)
		}

		return nil, fmt.Errorf("scanning dataset %s: %w", datasetID, err)
	}

	return &share.Dataset{
		ID:             row.ID,
		EnvironmentID:  row.EnvironmentID,
		AccountID:      row.AccountID,
		Region:         row.Region,
		GlueDatabase:   row.GlueDatabase,
		BucketName:     row.BucketName,
		KMSAlias:       row.KMSAlias,
		AdminRoleArn:   row.AdminRoleArn,
		AdminGroupName: row.AdminGroupName,
	}, nil
}

func (s *Store) getEnvironment(ctx context.Context, environmentID string) (*share.Environment, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT id, name, account_id, region, dashboards_enabled FROM environments WHERE id = ?`, environmentID)
	if err != nil {
		return nil, fmt.Errorf("querying environment %s: %w", environmentID, err)
	}

	var row environmentRow
	if err = scan.Row(&row, rows); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, share.NewNotFoundError("environment", environmentID)
		}

		return nil, fmt.Errorf("scanning environment %s: %w", environmentID, err)
	}

	return &share.Environment{
		ID:                row.ID,
		Name:              row.Name,
		AccountID:         row.AccountID,
		Region:            row.Region,
		DashboardsEnabled: row.DashboardsEnabled,
	}, nil
}

func (s *Store) getEnvironmentGroup(ctx context.Context, environmentID string, groupName string) (*share.EnvironmentGroup, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT environment_id, group_name, role_arn, role_name
		 FROM environment_groups WHERE environment_id = ? AND group_name = ?`, environmentID, groupName)
	if err != nil {
		return nil, fmt.Errorf("querying group %s of environment %s: %w", groupName, environmentID, err)
	}

	var row groupRow
	if err = scan.Row(&row, rows); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, share.NewNotFoundError("environment group", fmt.Sprintf("%s/%s", environmentID, groupName))
		}

		return nil, fmt.Errorf("scanning group %s of environment %s: %w", groupName, environmentID, err)
	}

	return &share.EnvironmentGroup{
		EnvironmentID: row.EnvironmentID,
		GroupName:     row.GroupName,
		RoleArn:       row.RoleArn,
		RoleName:      row.RoleName,
	}, nil
}

func (s *Store) getSharedTables(ctx context.Context, shareID string) ([]*share.Table, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT t.id, t.dataset_id, t.glue_database, t.name
		 FROM dataset_tables t
		 JOIN share_items si ON si.item_id = t.id AND si.share_id = ?
		 WHERE si.item_type = ?
		 ORDER BY t.name`, shareID, string(share.ItemTypeTable))
	if err != nil {
		return nil, fmt.Errorf("querying tables of share %s: %w", shareID, err)
	}

	var tableRows []tableRow
	if err = scan.Rows(&tableRows, rows); err != nil {
		return nil, fmt.Errorf("scanning tables of share %s: %w", shareID, err)
	}

	tables := make([]*share.Table, 0, len(tableRows))
	for _, row := range tableRows {
		tables = append(tables, &share.Table{
			ID:           row.ID,
			DatasetID:    row.DatasetID,
			GlueDatabase: row.GlueDatabase,
			Name:         row.Name,
		})
	}

	return tables, nil
}

func (s *Store) getSharedFolders(ctx context.Context, shareID string) ([]*share.StorageLocation, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT l.id, l.dataset_id, l.account_id, l.region, l.bucket, l.prefix
		 FROM dataset_locations l
		 JOIN share_items si ON si.item_id = l.id AND si.share_id = ?
		 WHERE si.item_type = ?
		 ORDER BY l.prefix`, shareID, string(share.ItemTypeFolder))
	if err != nil {
		return nil, fmt.Errorf("querying folders of share %s: %w", shareID, err)
	}

	var locationRows []locationRow
	if err = scan.Rows(&locationRows, rows); err != nil {
		return nil, fmt.Errorf("scanning folders of share %s: %w", shareID, err)
	}

	folders := make([]*share.StorageLocation, 0, len(locationRows))
	for _, row := range locationRows {
		folders = append(folders, &share.StorageLocation{
			ID:        row.ID,
			DatasetID: row.DatasetID,
			AccountID: row.AccountID,
			Region:    row.Region,
			Bucket:    row.Bucket,
			Prefix:    row.Prefix,
		})
	}

	return folders, nil
}

// GetShareItem returns the share item tracking a table or folder within a
// share.
func (s *Store) GetShareItem(ctx context.Context, shareID string, itemID string) (*share.Item, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT id, share_id, item_id, item_type, status, access_point_name
		 FROM share_items WHERE share_id = ? AND item_id = ?`, shareID, itemID)
	if err != nil {
		return nil, fmt.Errorf("querying item %s of share %s: %w", itemID, shareID, err)
	}

	var row itemRow
	if err = scan.Row(&row, rows); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, share.NewNotFoundError("share item", itemID)
		}

		return nil, fmt.Errorf("scanning item %s of share %s: %w", itemID, shareID, err)
	}

	return &share.Item{
		ID:              row.ID,
		ShareID:         row.ShareID,
		ItemID:          row.ItemID,
		ItemType:        share.ItemType(row.ItemType),
		Status:          share.ItemStatus(row.Status),
		AccessPointName: row.AccessPointName,
	}, nil
}

// UpdateShareItemStatus persists a status transition of a share item.
func (s *Store) UpdateShareItemStatus(ctx context.Context, itemID string, status share.ItemStatus) error {
	res, err := s.write.ExecContext(ctx,
		`UPDATE share_items SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, string(status), itemID)
	if err != nil {
		return fmt.Errorf("updating status of item %s: %w", itemID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating status of item %s: %w", itemID, err)
	}

	if affected == 0 {
		return share.NewNotFoundError("share item", itemID)
	}

	return nil
}

// OtherApprovedShareExists reports whether a different share in Approved
// state targets the same environment.
func (s *Store) OtherApprovedShareExists(ctx context.Context, environmentID string, excludeShareID string) (bool, error) {
	var exists bool

	err := s.read.QueryRowContext(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM shares WHERE environment_id = ? AND status = ? AND id != ?
		 )`, environmentID, string(share.ShareStatusApproved), excludeShareID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking sibling shares of environment %s: %w", environmentID, err)
	}

	return exists, nil
}

// TableStillShared reports whether a table of the dataset is still granted
// to the environment through a share item in a live shared state.
func (s *Store) TableStillShared(ctx context.Context, datasetID string, environmentID string, tableName string) (bool, error) {
	var exists bool

	err := s.read.QueryRowContext(ctx,
		`SELECT EXISTS (
		   SELECT 1
		   FROM shares s
		   JOIN share_items si ON si.share_id = s.id
		   JOIN dataset_tables t ON t.id = si.item_id
		   WHERE s.dataset_id = ? AND s.environment_id = ? AND s.status = ?
		     AND t.name = ? AND si.status IN (?, ?)
		 )`,
		datasetID, environmentID, string(share.ShareStatusApproved),
		tableName, string(share.ItemStatusShareSucceeded), string(share.ItemStatusShareInProgress)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking other shares of table %s: %w", tableName, err)
	}

	return exists, nil
}

// GetLocationByPrefix resolves a storage location record by its bucket
// account, region and folder prefix.
func (s *Store) GetLocationByPrefix(ctx context.Context, accountID string, region string, prefix string) (*share.StorageLocation, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT id, dataset_id, account_id, region, bucket, prefix
		 FROM dataset_locations WHERE account_id = ? AND region = ? AND prefix = ?`, accountID, region, prefix)
	if err != nil {
		return nil, fmt.Errorf("querying location %s: %w", prefix, err)
	}

	var row locationRow
	if err = scan.Row(&row, rows); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, share.NewNotFoundError("storage location", prefix)
		}

		return nil, fmt.Errorf("scanning location %s: %w", prefix, err)
	}

	return &share.StorageLocation{
		ID:        row.ID,
		DatasetID: row.DatasetID,
		AccountID: row.AccountID,
		Region:    row.Region,
		Bucket:    row.Bucket,
		Prefix:    row.Prefix,
	}, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
