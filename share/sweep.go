package share

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/raito-io/golang-set/set"

	"github.com/dataplane-io/datashare/policydoc"
)

// cleanSharedDatabase removes resource links that no longer correspond to
// a shared table of this share. A stale link whose source table is still
// shared through another share keeps its cross-account grant; otherwise
// the grant is revoked before the link is dropped.
func (r *Reconciler) cleanSharedDatabase(ctx context.Context, data *Data) error {
	sharedDB := sharedDatabaseName(data.Dataset.GlueDatabase)

	existing, err := r.catalog.ListDatabaseObjects(ctx, data.TargetEnv.AccountID, data.TargetEnv.Region, sharedDB)
	if err != nil {
		return fmt.Errorf("listing objects in %s: %w", sharedDB, err)
	}

	authorized := set.NewSet[string]()
	for _, table := range data.Tables {
		authorized.Add(table.Name)
	}

	var stale []string

	for _, name := range existing {
		if authorized.Contains(name) {
			continue
		}

		stillShared, err := r.store.TableStillShared(ctx, data.Dataset.ID, data.TargetEnv.ID, name)
		if err != nil {
			return fmt.Errorf("checking other shares of table %s: %w", name, err)
		}

		if stillShared {
			Logger.Info(fmt.Sprintf("Keeping cross-account grant on %s, still shared with environment %s", name, data.TargetEnv.ID))
		} else if err = r.revokeStaleSourceGrant(ctx, data, name); err != nil {
			return err
		}

		stale = append(stale, name)
	}

	if len(stale) == 0 {
		return nil
	}

	if err = r.catalog.BatchDeleteObjects(ctx, data.TargetEnv.AccountID, data.TargetEnv.Region, sharedDB, stale); err != nil {
		return fmt.Errorf("deleting stale resource links in %s: %w", sharedDB, err)
	}

	Logger.Info(fmt.Sprintf("Cleaned %d stale resource links from %s in account %s", len(stale), sharedDB, data.TargetEnv.AccountID))

	return nil
}

func (r *Reconciler) revokeStaleSourceGrant(ctx context.Context, data *Data, table string) error {
	exists, err := r.catalog.ObjectExists(ctx, data.SourceEnv.AccountID, data.SourceEnv.Region, data.Dataset.GlueDatabase, table)
	if err != nil {
		return fmt.Errorf("checking source table %s: %w", table, err)
	}

	if !exists {
		return nil
	}

	entry := RevokeEntry{
		ID:        uuid.NewString(),
		Principal: data.TargetEnv.AccountID,
		Resource: CatalogResource{
			CatalogID:   data.SourceEnv.AccountID,
			Database:    data.Dataset.GlueDatabase,
			Table:       table,
			WithColumns: true,
		},
		Permissions: sourceRevokePermissions,
		GrantOption: sourceRevokePermissions,
	}

	if err = r.batchRevokePermissions(ctx, data.SourceEnv.AccountID, data.SourceEnv.Region, data.SourceEnv.AccountID, []RevokeEntry{entry}); err != nil {
		return fmt.Errorf("revoking stale cross-account grant on %s: %w", table, err)
	}

	return nil
}

// cleanSharedFolders removes access point prefixes granted to the target
// role that no longer correspond to a shared folder of this share. Each
// stale prefix is revoked independently; failures alarm and are collected
// without stopping the sweep.
func (r *Reconciler) cleanSharedFolders(ctx context.Context, data *Data) error {
	accessPointName := accessPointNameFor(data.Dataset.ID, data.Share.PrincipalID)

	raw, err := r.objects.GetAccessPointPolicy(ctx, data.SourceEnv.AccountID, data.SourceEnv.Region, accessPointName)
	if err != nil {
		return fmt.Errorf("reading access point policy of %s: %w", accessPointName, err)
	}

	if raw == "" {
		return nil
	}

	doc, err := policydoc.Parse(raw)
	if err != nil {
		return fmt.Errorf("access point policy of %s: %w", accessPointName, err)
	}

	roleID, err := r.roles.GetRoleNumericID(ctx, data.TargetEnv.AccountID, data.TargetGroup.RoleName)
	if err != nil {
		return fmt.Errorf("resolving numeric id of role %s: %w", data.TargetGroup.RoleName, err)
	}

	stmt, found := doc.FindStatement(prefixStatementSid(roleID))
	if !found {
		return nil
	}

	authorized := set.NewSet[string]()
	for _, folder := range data.Folders {
		authorized.Add(folder.Prefix)
	}

	var merr *multierror.Error

	for _, condition := range stmt.ConditionValues("StringLike", "s3:prefix") {
		prefix := trimPrefixCondition(condition)
		if authorized.Contains(prefix) {
			continue
		}

		fc := folderContext{
			sourceAccount:    data.SourceEnv.AccountID,
			sourceRegion:     data.SourceEnv.Region,
			bucket:           data.Dataset.BucketName,
			prefix:           prefix,
			targetAccount:    data.TargetEnv.AccountID,
			targetRegion:     data.TargetEnv.Region,
			accessPointName:  accessPointName,
			datasetAdminRole: data.Dataset.AdminRoleArn,
			sourceAdminRole:  data.SourceGroup.RoleArn,
			targetRoleName:   data.TargetGroup.RoleName,
		}

		if err = r.revokeFolder(ctx, fc, data.Dataset); err != nil {
			Logger.Error(fmt.Sprintf("Failed to clean stale prefix %s from access point %s: %s", prefix, accessPointName, err.Error()))

			merr = multierror.Append(merr, fmt.Errorf("cleaning stale prefix %s: %w", prefix, err))

			r.alarmStaleFolder(ctx, data, prefix)
		}
	}

	return merr.ErrorOrNil()
}

// alarmStaleFolder resolves the stale prefix back to its storage location
// record so the alarm carries the folder's identity, falling back to a log
// line when the record is gone.
func (r *Reconciler) alarmStaleFolder(ctx context.Context, data *Data, prefix string) {
	folder, err := r.store.GetLocationByPrefix(ctx, data.SourceEnv.AccountID, data.SourceEnv.Region, prefix)
	if err != nil {
		Logger.Warn(fmt.Sprintf("No storage location found for stale prefix %s, skipping alarm: %s", prefix, err.Error()))
		return
	}

	emitAlarm("folder revoke failure", r.alarms.FolderRevokeFailure(ctx, folder, data.Share.ID, data.TargetEnv))
}
