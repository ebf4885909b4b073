package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataplane-io/datashare/share"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	st, err := Open(filepath.Join(t.TempDir(), "test.sqlite"))
	require.NoError(t, err)

	t.Cleanup(func() { _ = st.Close() })

	return st
}

func seedShare(t *testing.T, st *Store) {
	t.Helper()

	stmts := []string{
		`INSERT INTO environments (id, name, account_id, region, dashboards_enabled) VALUES
		 ('env-src', 'production', '111111111111', 'eu-west-1', 0),
		 ('env-tgt', 'research', '222222222222', 'eu-west-1', 1)`,
		`INSERT INTO environment_groups (environment_id, group_name, role_arn, role_name) VALUES
		 ('env-src', 'sales-admins', 'arn:aws:iam::111111111111:role/source-admin', 'source-admin'),
		 ('env-tgt', 'analysts', 'arn:aws:iam::222222222222:role/analysts', 'analysts')`,
		`INSERT INTO datasets (id, environment_id, account_id, region, glue_database, bucket_name, kms_alias, admin_role_arn, admin_group_name) VALUES
		 ('ds1', 'env-src', '111111111111', 'eu-west-1', 'sales', 'sales-bucket', 'sales-key', 'arn:aws:iam::111111111111:role/dataset-admin', 'sales-admins')`,
		`INSERT INTO dataset_tables (id, dataset_id, glue_database, name) VALUES
		 ('t1', 'ds1', 'sales', 'orders'),
		 ('t2', 'ds1', 'sales', 'customers')`,
		`INSERT INTO dataset_locations (id, dataset_id, account_id, region, bucket, prefix) VALUES
		 ('f1', 'ds1', '111111111111', 'eu-west-1', 'sales-bucket', 'orders')`,
		`INSERT INTO shares (id, dataset_id, environment_id, principal_id, status) VALUES
		 ('share1', 'ds1', 'env-tgt', 'analysts', 'Approved')`,
		`INSERT INTO share_items (id, share_id, item_id, item_type, status) VALUES
		 ('i1', 'share1', 't1', 'table', 'PendingApproval'),
		 ('i2', 'share1', 'f1', 'folder', 'PendingApproval')`,
	}

	for _, stmt := range stmts {
		_, err := st.write.Exec(stmt)
		require.NoError(t, err)
	}
}

func TestGetShareData_ResolvesFullContext(t *testing.T) {
	st := openTestStore(t)
	seedShare(t, st)
	ctx := context.Background()

	data, err := st.GetShareData(ctx, "share1", []string{"Approved"})
	require.NoError(t, err)

	assert.Equal(t, "share1", data.Share.ID)
	assert.Equal(t, share.ShareStatusApproved, data.Share.Status)
	assert.Equal(t, "sales", data.Dataset.GlueDatabase)
	assert.Equal(t, "111111111111", data.SourceEnv.AccountID)
	assert.Equal(t, "222222222222", data.TargetEnv.AccountID)
	assert.True(t, data.TargetEnv.DashboardsEnabled)
	assert.Equal(t, "source-admin", data.SourceGroup.RoleName)
	assert.Equal(t, "analysts", data.TargetGroup.RoleName)

	// Only t1 is a share item; t2 belongs to the dataset but not the share.
	require.Len(t, data.Tables, 1)
	assert.Equal(t, "orders", data.Tables[0].Name)

	require.Len(t, data.Folders, 1)
	assert.Equal(t, "orders", data.Folders[0].Prefix)
}

func TestGetShareData_StatusFilter(t *testing.T) {
	st := openTestStore(t)
	seedShare(t, st)

	_, err := st.GetShareData(context.Background(), "share1", []string{"Rejected"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, share.ErrNotFound))
}

func TestGetShareData_MissingGroupIsNotFound(t *testing.T) {
	st := openTestStore(t)
	seedShare(t, st)

	_, err := st.write.Exec(`DELETE FROM environment_groups WHERE group_name = 'analysts'`)
	require.NoError(t, err)

	_, err = st.GetShareData(context.Background(), "share1", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, share.ErrNotFound))

	var notFound *share.NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "environment group", notFound.Kind)
}

func TestShareItemStatusLifecycle(t *testing.T) {
	st := openTestStore(t)
	seedShare(t, st)
	ctx := context.Background()

	item, err := st.GetShareItem(ctx, "share1", "t1")
	require.NoError(t, err)
	assert.Equal(t, share.ItemStatusPendingApproval, item.Status)
	assert.Equal(t, share.ItemTypeTable, item.ItemType)

	require.NoError(t, st.UpdateShareItemStatus(ctx, item.ID, share.ItemStatusShareInProgress))
	require.NoError(t, st.UpdateShareItemStatus(ctx, item.ID, share.ItemStatusShareSucceeded))

	item, err = st.GetShareItem(ctx, "share1", "t1")
	require.NoError(t, err)
	assert.Equal(t, share.ItemStatusShareSucceeded, item.Status)

	err = st.UpdateShareItemStatus(ctx, "missing", share.ItemStatusShareFailed)
	assert.True(t, errors.Is(err, share.ErrNotFound))
}

func TestOtherApprovedShareExists(t *testing.T) {
	st := openTestStore(t)
	seedShare(t, st)
	ctx := context.Background()

	exists, err := st.OtherApprovedShareExists(ctx, "env-tgt", "share1")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = st.write.Exec(`INSERT INTO shares (id, dataset_id, environment_id, principal_id, status) VALUES
		('share2', 'ds1', 'env-tgt', 'analysts', 'Approved')`)
	require.NoError(t, err)

	exists, err = st.OtherApprovedShareExists(ctx, "env-tgt", "share1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestTableStillShared(t *testing.T) {
	st := openTestStore(t)
	seedShare(t, st)
	ctx := context.Background()

	still, err := st.TableStillShared(ctx, "ds1", "env-tgt", "orders")
	require.NoError(t, err)
	assert.False(t, still)

	require.NoError(t, st.UpdateShareItemStatus(ctx, "i1", share.ItemStatusShareSucceeded))

	still, err = st.TableStillShared(ctx, "ds1", "env-tgt", "orders")
	require.NoError(t, err)
	assert.True(t, still)
}

func TestGetLocationByPrefix(t *testing.T) {
	st := openTestStore(t)
	seedShare(t, st)
	ctx := context.Background()

	location, err := st.GetLocationByPrefix(ctx, "111111111111", "eu-west-1", "orders")
	require.NoError(t, err)
	assert.Equal(t, "f1", location.ID)
	assert.Equal(t, "sales-bucket", location.Bucket)

	_, err = st.GetLocationByPrefix(ctx, "111111111111", "eu-west-1", "missing")
	assert.True(t, errors.Is(err, share.ErrNotFound))
}

func TestTaskQueue(t *testing.T) {
	st := openTestStore(t)
	seedShare(t, st)
	ctx := context.Background()

	taskID, err := st.EnqueueTask(ctx, "share1", TaskActionApprove)
	require.NoError(t, err)
	require.NotEmpty(t, taskID)

	_, err = st.EnqueueTask(ctx, "share1", "promote")
	require.Error(t, err)

	tasks, err := st.DequeueTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, taskID, tasks[0].ID)
	assert.Equal(t, TaskStatusRunning, tasks[0].Status)

	// A claimed task is not handed out twice.
	tasks, err = st.DequeueTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	require.NoError(t, st.CompleteTask(ctx, taskID, nil))

	task, err := st.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusSucceeded, task.Status)

	failedID, err := st.EnqueueTask(ctx, "share1", TaskActionReject)
	require.NoError(t, err)
	require.NoError(t, st.CompleteTask(ctx, failedID, errors.New("context resolution failed")))

	task, err = st.GetTask(ctx, failedID)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusFailed, task.Status)
	assert.Equal(t, "context resolution failed", task.Error)
}

func TestRequeueStaleTasks(t *testing.T) {
	st := openTestStore(t)
	seedShare(t, st)
	ctx := context.Background()

	staleID, err := st.EnqueueTask(ctx, "share1", TaskActionApprove)
	require.NoError(t, err)
	freshID, err := st.EnqueueTask(ctx, "share1", TaskActionReject)
	require.NoError(t, err)

	tasks, err := st.DequeueTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	// Backdate one claim as if its worker died an hour ago.
	_, err = st.write.ExecContext(ctx,
		`UPDATE share_tasks SET started_at = datetime('now', '-1 hour') WHERE id = ?`, staleID)
	require.NoError(t, err)

	requeued, err := st.RequeueStaleTasks(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, requeued)

	task, err := st.GetTask(ctx, staleID)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusPending, task.Status)

	// The freshly claimed task stays with its owner.
	task, err = st.GetTask(ctx, freshID)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusRunning, task.Status)

	tasks, err = st.DequeueTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, staleID, tasks[0].ID)
}
