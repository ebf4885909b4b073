package share

import (
	"context"
	"fmt"
)

// itemTracker maps a (share, catalog object) pair to its item row and
// performs status transitions. Transitions are persisted before dependent
// workflow steps run; the sweeper reads the persisted statuses later.
type itemTracker struct {
	store MetadataStore
}

// tableItem resolves the item row declaring the table as part of the
// share. A missing row is a hard precondition violation: the orchestrator
// must never process a catalog object the share does not declare.
func (t *itemTracker) tableItem(ctx context.Context, sh *Share, table *Table) (*Item, error) {
	item, err := t.store.GetShareItem(ctx, sh.ID, table.ID)
	if err != nil {
		return nil, fmt.Errorf("resolving share item for table %q: %w", table.Name, err)
	}

	return item, nil
}

func (t *itemTracker) folderItem(ctx context.Context, sh *Share, folder *StorageLocation) (*Item, error) {
	item, err := t.store.GetShareItem(ctx, sh.ID, folder.ID)
	if err != nil {
		return nil, fmt.Errorf("resolving share item for folder %q: %w", folder.Prefix, err)
	}

	return item, nil
}

// transition durably records the new status. Prior statuses are not
// retained, only current state.
func (t *itemTracker) transition(ctx context.Context, item *Item, status ItemStatus) error {
	Logger.Info(fmt.Sprintf("Updating share item %s status to %s", item.ID, status))

	if err := t.store.UpdateShareItemStatus(ctx, item.ID, status); err != nil {
		return fmt.Errorf("persisting status %q on item %s: %w", status, item.ID, err)
	}

	item.Status = status

	return nil
}
