package share

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// revokeResourceLinkAccess withdraws the target principals' permissions on
// every resource link in the shared database. One table's failure marks
// its item Revoke_Share_Failed, alarms, and continues.
func (r *Reconciler) revokeResourceLinkAccess(ctx context.Context, data *Data) error {
	sharedDB := sharedDatabaseName(data.Dataset.GlueDatabase)

	for _, table := range data.Tables {
		item, err := r.tracker.tableItem(ctx, data.Share, table)
		if err != nil {
			return err
		}

		if err = r.tracker.transition(ctx, item, ItemStatusRevokeInProgress); err != nil {
			return err
		}

		if err = r.revokeResourceLink(ctx, data, sharedDB, table); err != nil {
			Logger.Error(fmt.Sprintf("Failed to revoke access to resource link %s.%s in account %s: %s",
				sharedDB, table.Name, data.TargetEnv.AccountID, err.Error()))

			if terr := r.tracker.transition(ctx, item, ItemStatusRevokeFailed); terr != nil {
				return terr
			}

			emitAlarm("table revoke failure", r.alarms.TableRevokeFailure(ctx, table, data.Share.ID, data.TargetEnv))

			continue
		}

		if err = r.tracker.transition(ctx, item, ItemStatusRevokeSucceeded); err != nil {
			return err
		}
	}

	return nil
}

func (r *Reconciler) revokeResourceLink(ctx context.Context, data *Data, sharedDB string, table *Table) error {
	exists, err := r.catalog.ObjectExists(ctx, data.TargetEnv.AccountID, data.TargetEnv.Region, sharedDB, table.Name)
	if err != nil {
		return fmt.Errorf("checking resource link %s.%s: %w", sharedDB, table.Name, err)
	}

	if !exists {
		Logger.Info(fmt.Sprintf("Resource link %s.%s no longer exists, nothing to revoke", sharedDB, table.Name))
		return nil
	}

	entry := RevokeEntry{
		ID:        uuid.NewString(),
		Principal: data.TargetGroup.RoleArn,
		Resource: CatalogResource{
			CatalogID: data.TargetEnv.AccountID,
			Database:  sharedDB,
			Table:     table.Name,
		},
		Permissions: resourceLinkPermissions,
		GrantOption: []string{},
	}

	return r.batchRevokePermissions(ctx, data.TargetEnv.AccountID, data.TargetEnv.Region, data.TargetEnv.AccountID, []RevokeEntry{entry})
}

// deleteResourceLinks drops the resource links themselves from the shared
// database in the target account.
func (r *Reconciler) deleteResourceLinks(ctx context.Context, data *Data) error {
	if len(data.Tables) == 0 {
		return nil
	}

	sharedDB := sharedDatabaseName(data.Dataset.GlueDatabase)

	names := make([]string, 0, len(data.Tables))
	for _, table := range data.Tables {
		names = append(names, table.Name)
	}

	if err := r.catalog.BatchDeleteObjects(ctx, data.TargetEnv.AccountID, data.TargetEnv.Region, sharedDB, names); err != nil {
		return fmt.Errorf("deleting resource links in %s: %w", sharedDB, err)
	}

	Logger.Info(fmt.Sprintf("Deleted %d resource links from %s in account %s", len(names), sharedDB, data.TargetEnv.AccountID))

	return nil
}

// revokeSourceAccountAccess withdraws the cross-account grants issued on
// the source tables to the target account. The caller decides whether the
// target environment still holds other approved shares before invoking
// this; the revocation covers every table of the share.
func (r *Reconciler) revokeSourceAccountAccess(ctx context.Context, data *Data) error {
	if len(data.Tables) == 0 {
		return nil
	}

	entries := make([]RevokeEntry, 0, len(data.Tables))
	for _, table := range data.Tables {
		entries = append(entries, RevokeEntry{
			ID:        uuid.NewString(),
			Principal: data.TargetEnv.AccountID,
			Resource: CatalogResource{
				CatalogID:   data.SourceEnv.AccountID,
				Database:    table.GlueDatabase,
				Table:       table.Name,
				WithColumns: true,
			},
			Permissions: sourceRevokePermissions,
			GrantOption: sourceRevokePermissions,
		})
	}

	if err := r.batchRevokePermissions(ctx, data.SourceEnv.AccountID, data.SourceEnv.Region, data.SourceEnv.AccountID, entries); err != nil {
		return fmt.Errorf("revoking cross-account grants from account %s: %w", data.TargetEnv.AccountID, err)
	}

	Logger.Info(fmt.Sprintf("Revoked cross-account access on %d tables from account %s", len(entries), data.TargetEnv.AccountID))

	return nil
}
