package share

import (
	"context"
	"fmt"
)

// logAlarms is the fallback alarm sink when none is injected: failures are
// logged but not delivered anywhere.
type logAlarms struct{}

func (logAlarms) TableShareFailure(_ context.Context, table *Table, shareID string, target *Environment) error {
	Logger.Error(fmt.Sprintf("ALARM share %s: sharing table %s.%s with account %s failed", shareID, table.GlueDatabase, table.Name, target.AccountID))
	return nil
}

func (logAlarms) FolderShareFailure(_ context.Context, folder *StorageLocation, shareID string, target *Environment) error {
	Logger.Error(fmt.Sprintf("ALARM share %s: sharing folder %s/%s with account %s failed", shareID, folder.Bucket, folder.Prefix, target.AccountID))
	return nil
}

func (logAlarms) TableRevokeFailure(_ context.Context, table *Table, shareID string, target *Environment) error {
	Logger.Error(fmt.Sprintf("ALARM share %s: revoking table %s.%s from account %s failed", shareID, table.GlueDatabase, table.Name, target.AccountID))
	return nil
}

func (logAlarms) FolderRevokeFailure(_ context.Context, folder *StorageLocation, shareID string, target *Environment) error {
	Logger.Error(fmt.Sprintf("ALARM share %s: revoking folder %s/%s from account %s failed", shareID, folder.Bucket, folder.Prefix, target.AccountID))
	return nil
}

// emitAlarm fires an alarm callback and downgrades its own failure to a
// warning; alarm delivery is best effort.
func emitAlarm(what string, err error) {
	if err != nil {
		Logger.Warn(fmt.Sprintf("Failed to emit %s alarm: %s", what, err.Error()))
	}
}
