package share

import (
	"context"
	"fmt"
)

// Dependencies bundles the injected collaborators of a Reconciler: the
// metadata store, the five policy authorities, and the optional dashboard
// group resolver, alarm sink and clock.
type Dependencies struct {
	Store       MetadataStore
	Catalog     CatalogPermissions
	Invitations ResourceShareInvitations
	ObjectStore ObjectStoreAccessControl
	RolePolicy  RolePolicyStore
	KeyPolicy   KeyPolicyStore
	Dashboards  DashboardGroups
	Alarms      Alarms
	Clock       Clock
}

// Options are the deployment-level settings of a Reconciler.
type Options struct {
	// DelegationRoleName is the per-account role the service assumes for
	// resource-policy edits; its numeric id is always on the exception
	// list of admin statements.
	DelegationRoleName string
}

// Reconciler turns a share's desired state into idempotent policy
// mutations across the five authorities. It is stateless between runs;
// one Approve or Reject call processes one share end to end.
type Reconciler struct {
	store       MetadataStore
	catalog     CatalogPermissions
	invitations ResourceShareInvitations
	objects     ObjectStoreAccessControl
	roles       RolePolicyStore
	keys        KeyPolicyStore
	dashboards  DashboardGroups
	alarms      Alarms
	clock       Clock
	tracker     *itemTracker
	locks       *resourceLocks
	opts        Options
}

func NewReconciler(deps Dependencies, opts Options) *Reconciler {
	clock := deps.Clock
	if clock == nil {
		clock = NewSettleClock()
	}

	alarms := deps.Alarms
	if alarms == nil {
		alarms = logAlarms{}
	}

	return &Reconciler{
		store:       deps.Store,
		catalog:     deps.Catalog,
		invitations: deps.Invitations,
		objects:     deps.ObjectStore,
		roles:       deps.RolePolicy,
		keys:        deps.KeyPolicy,
		dashboards:  deps.Dashboards,
		alarms:      alarms,
		clock:       clock,
		tracker:     &itemTracker{store: deps.Store},
		locks:       newResourceLocks(),
		opts:        opts,
	}
}

// delegationRoleArn builds the ARN of the delegation role in an account.
func (r *Reconciler) delegationRoleArn(account string) string {
	return fmt.Sprintf("arn:aws:iam::%s:role/%s", account, r.opts.DelegationRoleName)
}

// Approve grants every table and folder of the share to the target
// principal, then sweeps grants no longer backed by a share item. A
// failure resolving the share context is fatal; per-item failures are
// recorded on the item and never abort siblings.
func (r *Reconciler) Approve(ctx context.Context, shareID string) error {
	data, err := r.store.GetShareData(ctx, shareID, []string{string(ShareStatusApproved)})
	if err != nil {
		return fmt.Errorf("resolving context for share %s: %w", shareID, err)
	}

	Logger.Info(fmt.Sprintf("Approving share %s: %d tables, %d folders, source %s/%s, target %s/%s",
		shareID, len(data.Tables), len(data.Folders),
		data.SourceEnv.AccountID, data.SourceEnv.Region,
		data.TargetEnv.AccountID, data.TargetEnv.Region))

	principals := r.grantPrincipals(ctx, data)

	if err = r.shareTables(ctx, data, principals); err != nil {
		return fmt.Errorf("processing shared tables: %w", err)
	}

	if err = r.cleanSharedDatabase(ctx, data); err != nil {
		Logger.Error(fmt.Sprintf("Sweep of shared database failed for share %s: %s", shareID, err.Error()))
	}

	if err = r.shareFolders(ctx, data); err != nil {
		return fmt.Errorf("processing shared folders: %w", err)
	}

	if err = r.cleanSharedFolders(ctx, data); err != nil {
		Logger.Error(fmt.Sprintf("Sweep of shared folders failed for share %s: %s", shareID, err.Error()))
	}

	return nil
}

// Reject revokes the share's grants: resource links and their permissions
// in the target account, the source-account cross-account grant when no
// sibling Approved share still needs it, and the folder-level policy
// statements.
func (r *Reconciler) Reject(ctx context.Context, shareID string) error {
	data, err := r.store.GetShareData(ctx, shareID, []string{string(ShareStatusRejected)})
	if err != nil {
		return fmt.Errorf("resolving context for share %s: %w", shareID, err)
	}

	Logger.Info(fmt.Sprintf("Rejecting share %s: revoking %d tables and %d folders from %s/%s",
		shareID, len(data.Tables), len(data.Folders), data.TargetEnv.AccountID, data.TargetEnv.Region))

	if err = r.revokeResourceLinkAccess(ctx, data); err != nil {
		return fmt.Errorf("revoking resource link access: %w", err)
	}

	if err = r.deleteResourceLinks(ctx, data); err != nil {
		Logger.Error(fmt.Sprintf("Deleting resource links failed for share %s: %s", shareID, err.Error()))
	}

	if err = r.cleanSharedDatabase(ctx, data); err != nil {
		Logger.Error(fmt.Sprintf("Sweep of shared database failed for share %s: %s", shareID, err.Error()))
	}

	stillNeeded, err := r.store.OtherApprovedShareExists(ctx, data.TargetEnv.ID, data.Share.ID)
	if err != nil {
		return fmt.Errorf("checking sibling shares for environment %s: %w", data.TargetEnv.ID, err)
	}

	if !stillNeeded {
		if err = r.revokeSourceAccountAccess(ctx, data); err != nil {
			Logger.Error(fmt.Sprintf("Revoking source account access failed for share %s: %s", shareID, err.Error()))
		}
	} else {
		Logger.Info(fmt.Sprintf("Keeping source account grant: another approved share targets environment %s", data.TargetEnv.ID))
	}

	if err = r.revokeFolders(ctx, data); err != nil {
		return fmt.Errorf("revoking shared folders: %w", err)
	}

	return nil
}

// grantPrincipals assembles the principal list for catalog grants: the
// target role, plus the target account's dashboard group when dashboards
// are enabled. A failed dashboard group lookup degrades to a warning.
func (r *Reconciler) grantPrincipals(ctx context.Context, data *Data) []string {
	principals := []string{data.TargetGroup.RoleArn}

	if !data.TargetEnv.DashboardsEnabled || r.dashboards == nil {
		return principals
	}

	groupArn, err := r.dashboards.GroupArn(ctx, data.TargetEnv.AccountID)
	if err != nil {
		Logger.Warn(fmt.Sprintf("Failed to resolve dashboard group for account %s: %s", data.TargetEnv.AccountID, err.Error()))
		return principals
	}

	if groupArn != "" {
		principals = append(principals, groupArn)
	}

	return principals
}

// batchRevokePermissions chunks entries, collects the per-entry failures
// of every chunk, and raises only when a failure is not benign ("nothing
// to revoke" means the desired state already holds).
func (r *Reconciler) batchRevokePermissions(ctx context.Context, account string, region string, catalogID string, entries []RevokeEntry) error {
	failures := make([]RevokeFailure, 0)

	for _, chunk := range chunkEntries(entries, maxRevokeBatchSize) {
		chunkFailures, err := r.catalog.BatchRevoke(ctx, account, region, catalogID, chunk)
		if err != nil {
			return fmt.Errorf("batch revoke of %d entries: %w", len(chunk), err)
		}

		failures = append(failures, chunkFailures...)
	}

	nonBenign := make([]RevokeFailure, 0, len(failures))

	for _, failure := range failures {
		if isBenignRevokeFailure(failure) {
			Logger.Info(fmt.Sprintf("Nothing to revoke for entry %s: %s", failure.EntryID, failure.Message))
			continue
		}

		nonBenign = append(nonBenign, failure)
	}

	if len(nonBenign) > 0 {
		return &BatchRevokeError{Failures: nonBenign}
	}

	return nil
}
