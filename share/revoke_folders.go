package share

import (
	"context"
	"fmt"

	"github.com/dataplane-io/datashare/policydoc"
)

// revokeFolders runs the per-folder revoke sequence for every shared
// folder. One folder's failure marks its item Revoke_Share_Failed, alarms,
// and continues.
func (r *Reconciler) revokeFolders(ctx context.Context, data *Data) error {
	for _, folder := range data.Folders {
		item, err := r.tracker.folderItem(ctx, data.Share, folder)
		if err != nil {
			return err
		}

		if err = r.tracker.transition(ctx, item, ItemStatusRevokeInProgress); err != nil {
			return err
		}

		fc := newFolderContext(data, folder, item)

		if err = r.revokeFolder(ctx, fc, data.Dataset); err != nil {
			Logger.Error(fmt.Sprintf("Failed to revoke folder %q from account %s/%s: %s",
				fc.prefix, fc.targetAccount, fc.targetRegion, err.Error()))

			if terr := r.tracker.transition(ctx, item, ItemStatusRevokeFailed); terr != nil {
				return terr
			}

			emitAlarm("folder revoke failure", r.alarms.FolderRevokeFailure(ctx, folder, data.Share.ID, data.TargetEnv))

			continue
		}

		if err = r.tracker.transition(ctx, item, ItemStatusRevokeSucceeded); err != nil {
			return err
		}
	}

	return nil
}

// revokeFolder removes the folder's prefix from the access point policy.
// When that leaves the access point with no delegated prefixes, the access
// point itself, the target role policy entries, and the key policy
// statement are removed too.
func (r *Reconciler) revokeFolder(ctx context.Context, fc folderContext, dataset *Dataset) error {
	emptied, err := r.deleteAccessPointPolicy(ctx, fc)
	if err != nil {
		return fmt.Errorf("removing prefix from access point policy: %w", err)
	}

	if !emptied {
		return nil
	}

	if err = r.deleteTargetRolePolicy(ctx, fc, dataset); err != nil {
		return fmt.Errorf("removing target role access policy: %w", err)
	}

	if err = r.deleteKeyPolicy(ctx, fc, dataset); err != nil {
		return fmt.Errorf("removing key policy statement: %w", err)
	}

	return nil
}

// deleteAccessPointPolicy removes the folder's prefix from the target
// role's statement pair, dropping the pair entirely when it was the last
// prefix. When no delegated statements remain the access point is deleted
// and true is returned.
func (r *Reconciler) deleteAccessPointPolicy(ctx context.Context, fc folderContext) (bool, error) {
	unlock := r.locks.lock(fc.sourceAccount, fc.accessPointName)
	defer unlock()

	raw, err := r.objects.GetAccessPointPolicy(ctx, fc.sourceAccount, fc.sourceRegion, fc.accessPointName)
	if err != nil {
		return false, fmt.Errorf("reading access point policy of %s: %w", fc.accessPointName, err)
	}

	if raw == "" {
		Logger.Info(fmt.Sprintf("Access point %s carries no policy, nothing to revoke", fc.accessPointName))
		return true, nil
	}

	doc, err := policydoc.Parse(raw)
	if err != nil {
		return false, fmt.Errorf("access point policy of %s: %w", fc.accessPointName, err)
	}

	roleID, err := r.roles.GetRoleNumericID(ctx, fc.targetAccount, fc.targetRoleName)
	if err != nil {
		return false, fmt.Errorf("resolving numeric id of role %s: %w", fc.targetRoleName, err)
	}

	apArn := accessPointArn(fc.sourceRegion, fc.sourceAccount, fc.accessPointName)

	if stmt, found := doc.FindStatement(prefixStatementSid(roleID)); found {
		prefixes := stmt.ConditionValues("StringLike", "s3:prefix")

		if len(prefixes) > 1 {
			stmt.RemoveConditionValue("StringLike", "s3:prefix", prefixCondition(fc.prefix))
			doc.RemoveResources(resourceStatementSid(roleID), accessPointObjectArn(apArn, fc.prefix))
		} else {
			doc.RemoveStatement(prefixStatementSid(roleID))
			doc.RemoveStatement(resourceStatementSid(roleID))
		}
	}

	// With only the admin statement left, nothing is delegated anymore.
	if doc.StatementCount() <= 1 {
		if err = r.objects.DeleteAccessPoint(ctx, fc.sourceAccount, fc.sourceRegion, fc.accessPointName); err != nil {
			return false, fmt.Errorf("deleting access point %s: %w", fc.accessPointName, err)
		}

		Logger.Info(fmt.Sprintf("Deleted access point %s, no delegated prefixes remain", fc.accessPointName))

		return true, nil
	}

	updated, err := doc.Marshal()
	if err != nil {
		return false, err
	}

	if err = r.objects.PutAccessPointPolicy(ctx, fc.sourceAccount, fc.sourceRegion, fc.accessPointName, updated); err != nil {
		return false, fmt.Errorf("writing access point policy of %s: %w", fc.accessPointName, err)
	}

	Logger.Info(fmt.Sprintf("Removed prefix %s for role id %s from access point %s", fc.prefix, roleID, fc.accessPointName))

	return false, nil
}

// deleteTargetRolePolicy withdraws the dataset's ARNs from the target
// role's inline policy, deleting the policy when no resources remain.
func (r *Reconciler) deleteTargetRolePolicy(ctx context.Context, fc folderContext, dataset *Dataset) error {
	raw, err := r.roles.GetRolePolicy(ctx, fc.targetAccount, fc.targetRoleName, TargetRolePolicyName)
	if err != nil {
		return fmt.Errorf("reading policy %s of role %s: %w", TargetRolePolicyName, fc.targetRoleName, err)
	}

	if raw == "" {
		return nil
	}

	doc, err := policydoc.Parse(raw)
	if err != nil {
		return fmt.Errorf("policy %s of role %s: %w", TargetRolePolicyName, fc.targetRoleName, err)
	}

	if len(doc.Statement) == 0 {
		return nil
	}

	stmt := doc.Statement[0]
	for _, resource := range targetRoleResources(fc, dataset) {
		stmt.Resource = removeString(stmt.Resource, resource)
	}

	if len(stmt.Resource) == 0 {
		if err = r.roles.DeleteRolePolicy(ctx, fc.targetAccount, fc.targetRoleName, TargetRolePolicyName); err != nil {
			return fmt.Errorf("deleting policy %s of role %s: %w", TargetRolePolicyName, fc.targetRoleName, err)
		}

		Logger.Info(fmt.Sprintf("Deleted policy %s from role %s, no resources remain", TargetRolePolicyName, fc.targetRoleName))

		return nil
	}

	updated, err := doc.Marshal()
	if err != nil {
		return err
	}

	if err = r.roles.PutRolePolicy(ctx, fc.targetAccount, fc.targetRoleName, TargetRolePolicyName, updated); err != nil {
		return fmt.Errorf("writing policy %s on role %s: %w", TargetRolePolicyName, fc.targetRoleName, err)
	}

	Logger.Info(fmt.Sprintf("Removed access to bucket %s from role %s", fc.bucket, fc.targetRoleName))

	return nil
}

func removeString(values []string, value string) []string {
	out := values[:0]
	for _, v := range values {
		if v != value {
			out = append(out, v)
		}
	}

	return out
}

// deleteKeyPolicy removes the target role's decrypt statement from the
// dataset's key policy.
func (r *Reconciler) deleteKeyPolicy(ctx context.Context, fc folderContext, dataset *Dataset) error {
	if dataset.KMSAlias == "" {
		return nil
	}

	unlock := r.locks.lock(fc.sourceAccount, keyAlias(dataset.KMSAlias))
	defer unlock()

	keyID, err := r.keys.GetKeyID(ctx, fc.sourceAccount, fc.sourceRegion, keyAlias(dataset.KMSAlias))
	if err != nil {
		return fmt.Errorf("resolving key %s: %w", keyAlias(dataset.KMSAlias), err)
	}

	raw, err := r.keys.GetKeyPolicy(ctx, fc.sourceAccount, fc.sourceRegion, keyID, KeyPolicyName)
	if err != nil {
		return fmt.Errorf("reading policy of key %s: %w", keyID, err)
	}

	doc, err := policydoc.Parse(raw)
	if err != nil {
		return fmt.Errorf("policy of key %s: %w", keyID, err)
	}

	roleID, err := r.roles.GetRoleNumericID(ctx, fc.targetAccount, fc.targetRoleName)
	if err != nil {
		return fmt.Errorf("resolving numeric id of role %s: %w", fc.targetRoleName, err)
	}

	if !doc.HasStatement(roleID) {
		return nil
	}

	doc.RemoveStatement(roleID)

	updated, err := doc.Marshal()
	if err != nil {
		return err
	}

	if err = r.keys.PutKeyPolicy(ctx, fc.sourceAccount, fc.sourceRegion, keyID, KeyPolicyName, updated); err != nil {
		return fmt.Errorf("writing policy of key %s: %w", keyID, err)
	}

	Logger.Info(fmt.Sprintf("Removed decrypt statement for role id %s from key %s", roleID, keyID))

	return nil
}
