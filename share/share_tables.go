package share

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// shareTables runs the per-table grant sequence for every shared table.
// One table's step failure marks that item Share_Failed, emits an alarm
// and moves on to the next table. A missing item row or an unreachable
// store is a context violation and aborts the run.
func (r *Reconciler) shareTables(ctx context.Context, data *Data, principals []string) error {
	for _, table := range data.Tables {
		item, err := r.tracker.tableItem(ctx, data.Share, table)
		if err != nil {
			return err
		}

		if err = r.tracker.transition(ctx, item, ItemStatusShareInProgress); err != nil {
			return err
		}

		tc := newTableContext(data, table, principals)

		if err = r.shareTable(ctx, tc); err != nil {
			Logger.Error(fmt.Sprintf("Failed to share table %q from account %s/%s with account %s/%s: %s",
				table.Name, tc.sourceAccount, tc.sourceRegion, tc.targetAccount, tc.targetRegion, err.Error()))

			if terr := r.tracker.transition(ctx, item, ItemStatusShareFailed); terr != nil {
				return terr
			}

			emitAlarm("table sharing failure", r.alarms.TableShareFailure(ctx, table, data.Share.ID, data.TargetEnv))

			continue
		}

		if err = r.tracker.transition(ctx, item, ItemStatusShareSucceeded); err != nil {
			return err
		}
	}

	return nil
}

// shareTable executes the five grant steps for one table in order. Every
// step is best-effort idempotent so an interrupted run can simply be
// re-invoked.
func (r *Reconciler) shareTable(ctx context.Context, tc tableContext) error {
	if err := r.shareTableWithTargetAccount(ctx, tc); err != nil {
		return err
	}

	if err := r.acceptShareInvitations(ctx, tc); err != nil {
		return fmt.Errorf("accepting resource share invitations: %w", err)
	}

	if err := r.createResourceLink(ctx, tc); err != nil {
		return fmt.Errorf("creating resource link: %w", err)
	}

	return nil
}

// shareTableWithTargetAccount clears the legacy blanket grant and issues
// the cross-account grant, settling after each because grant propagation
// is asynchronous with no completion signal.
func (r *Reconciler) shareTableWithTargetAccount(ctx context.Context, tc tableContext) error {
	r.revokeLegacyTablePermission(ctx, tc)

	if err := r.clock.AwaitPropagation(ctx, PropagationLegacyRevoke); err != nil {
		return err
	}

	err := r.catalog.Grant(ctx, tc.sourceAccount, tc.sourceRegion, tc.targetAccount, CatalogResource{
		Database: tc.database,
		Table:    tc.table,
	}, tablePermissions, tablePermissions)
	if err != nil {
		return fmt.Errorf("granting table %s.%s to account %s: %w", tc.database, tc.table, tc.targetAccount, err)
	}

	if err = r.clock.AwaitPropagation(ctx, PropagationCrossAccountGrant); err != nil {
		return err
	}

	Logger.Info(fmt.Sprintf("Granted access to table %s.%s to external account %s", tc.database, tc.table, tc.targetAccount))

	return nil
}

// revokeLegacyTablePermission removes the blanket "everyone" ALL grant
// left behind by pre-migration catalogs. Without this the fine-grained
// cross-account grant is meaningless. Absence of the grant is success and
// any other failure is only a warning, matching the catalog's advisory
// behavior here.
func (r *Reconciler) revokeLegacyTablePermission(ctx context.Context, tc tableContext) {
	Logger.Info(fmt.Sprintf("Revoking legacy blanket permission on table %s.%s", tc.database, tc.table))

	err := r.batchRevokePermissions(ctx, tc.sourceAccount, tc.sourceRegion, tc.sourceAccount, []RevokeEntry{
		{
			ID:        uuid.NewString(),
			Principal: EveryonePrincipal,
			Resource: CatalogResource{
				CatalogID: tc.sourceAccount,
				Database:  tc.database,
				Table:     tc.table,
			},
			Permissions: legacyAllPermissions,
			GrantOption: []string{},
		},
	})
	if err != nil {
		Logger.Warn(fmt.Sprintf("Could not revoke legacy blanket permission on table %s.%s: %s", tc.database, tc.table, err.Error()))
	}
}

// acceptShareInvitations accepts every pending resource-share invitation
// on the target account, settling after each acceptance. Already-accepted
// invitations are success, not failure.
func (r *Reconciler) acceptShareInvitations(ctx context.Context, tc tableContext) error {
	invitations, err := r.invitations.ListPending(ctx, tc.targetAccount, tc.targetRegion)
	if err != nil {
		return fmt.Errorf("listing pending invitations on account %s: %w", tc.targetAccount, err)
	}

	for _, invitation := range invitations {
		if err = r.invitations.Accept(ctx, tc.targetAccount, tc.targetRegion, invitation.ID); err != nil {
			return fmt.Errorf("accepting invitation %s: %w", invitation.ID, err)
		}

		Logger.Info(fmt.Sprintf("Accepted resource share invitation %s", invitation.ID))

		if err = r.clock.AwaitPropagation(ctx, PropagationInvitationAccept); err != nil {
			return err
		}
	}

	return nil
}

// createResourceLink creates the resource-link object in the target
// account's shadow database and grants the target principals read access
// on the shadow database, the link, and the source table's column view.
func (r *Reconciler) createResourceLink(ctx context.Context, tc tableContext) error {
	sharedDatabase := tc.sharedDatabase()

	err := r.catalog.CreateShadowObject(ctx, tc.targetAccount, tc.targetRegion, sharedDatabase, tc.table, CatalogObjectRef{
		CatalogID: tc.sourceAccount,
		Database:  tc.database,
		Table:     tc.table,
	})
	if err != nil {
		return fmt.Errorf("creating resource link %s in database %s: %w", tc.table, sharedDatabase, err)
	}

	for _, principal := range tc.principals {
		err = r.catalog.Grant(ctx, tc.targetAccount, tc.targetRegion, principal, CatalogResource{
			Database: sharedDatabase,
		}, databasePermissions, nil)
		if err != nil {
			return fmt.Errorf("granting %v on database %s to %s: %w", databasePermissions, sharedDatabase, principal, err)
		}

		err = r.catalog.Grant(ctx, tc.targetAccount, tc.targetRegion, principal, CatalogResource{
			CatalogID: tc.targetAccount,
			Database:  sharedDatabase,
			Table:     tc.table,
		}, resourceLinkPermissions, nil)
		if err != nil {
			return fmt.Errorf("granting %v on resource link %s to %s: %w", resourceLinkPermissions, tc.table, principal, err)
		}

		err = r.catalog.Grant(ctx, tc.targetAccount, tc.targetRegion, principal, CatalogResource{
			CatalogID:   tc.sourceAccount,
			Database:    tc.database,
			Table:       tc.table,
			WithColumns: true,
		}, tablePermissions, nil)
		if err != nil {
			return fmt.Errorf("granting %v on source table %s.%s to %s: %w", tablePermissions, tc.database, tc.table, principal, err)
		}
	}

	Logger.Info(fmt.Sprintf("Granted resource link read access on %s.%s to principals %v", sharedDatabase, tc.table, tc.principals))

	return nil
}
