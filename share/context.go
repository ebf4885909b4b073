package share

// tableContext carries everything one table's grant or revoke sequence
// needs, assembled once per item instead of threading loose arguments
// through the steps.
type tableContext struct {
	sourceAccount string
	sourceRegion  string
	database      string
	table         string

	targetAccount string
	targetRegion  string
	principals    []string
}

func newTableContext(data *Data, table *Table, principals []string) tableContext {
	return tableContext{
		sourceAccount: data.SourceEnv.AccountID,
		sourceRegion:  data.SourceEnv.Region,
		database:      table.GlueDatabase,
		table:         table.Name,
		targetAccount: data.TargetEnv.AccountID,
		targetRegion:  data.TargetEnv.Region,
		principals:    principals,
	}
}

func (c tableContext) sharedDatabase() string {
	return sharedDatabaseName(c.database)
}

// folderContext is the per-folder equivalent: accounts, bucket, prefix,
// the derived access point name, and the three exception principals whose
// numeric ids key the admin statements.
type folderContext struct {
	sourceAccount string
	sourceRegion  string
	bucket        string
	prefix        string

	targetAccount   string
	targetRegion    string
	accessPointName string

	datasetAdminRole string
	sourceAdminRole  string
	targetRoleName   string
}

func newFolderContext(data *Data, folder *StorageLocation, item *Item) folderContext {
	accessPointName := item.AccessPointName
	if accessPointName == "" {
		accessPointName = accessPointNameFor(data.Dataset.ID, data.Share.PrincipalID)
	}

	return folderContext{
		sourceAccount:    folder.AccountID,
		sourceRegion:     folder.Region,
		bucket:           folder.Bucket,
		prefix:           folder.Prefix,
		targetAccount:    data.TargetEnv.AccountID,
		targetRegion:     data.TargetEnv.Region,
		accessPointName:  accessPointName,
		datasetAdminRole: data.Dataset.AdminRoleArn,
		sourceAdminRole:  data.SourceGroup.RoleArn,
		targetRoleName:   data.TargetGroup.RoleName,
	}
}
