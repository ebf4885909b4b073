package share

// Share is a request to expose a dataset's tables and folders from a source
// account to a target environment and team.
type Share struct {
	ID            string
	DatasetID     string
	EnvironmentID string
	PrincipalID   string
	Status        ShareStatus
}

// Item is one (share, catalog object) pair with its workflow status. For
// folders it also carries the derived access point name.
type Item struct {
	ID              string
	ShareID         string
	ItemID          string
	ItemType        ItemType
	Status          ItemStatus
	AccessPointName string
}

// Dataset is a data asset in a source account and region. It owns tables
// and folders and carries the resource identifiers the workflows edit.
type Dataset struct {
	ID             string
	EnvironmentID  string
	AccountID      string
	Region         string
	GlueDatabase   string
	BucketName     string
	KMSAlias       string
	AdminRoleArn   string
	AdminGroupName string
}

// Table is a catalog table of a dataset.
type Table struct {
	ID           string
	DatasetID    string
	GlueDatabase string
	Name         string
}

// StorageLocation is a folder of a dataset: a bucket plus a prefix.
type StorageLocation struct {
	ID        string
	DatasetID string
	AccountID string
	Region    string
	Bucket    string
	Prefix    string
}

// Environment identifies an AWS account and region. A dataset's source
// environment and a share's target environment may be different accounts.
type Environment struct {
	ID                string
	Name              string
	AccountID         string
	Region            string
	DashboardsEnabled bool
}

// EnvironmentGroup is a team's membership in an environment together with
// the IAM role used as principal for grants on its behalf.
type EnvironmentGroup struct {
	EnvironmentID string
	GroupName     string
	RoleArn       string
	RoleName      string
}

// Data is the resolved context of one share run: the share, its dataset,
// both environments, both team memberships, and the item lists with the
// status filter applied.
type Data struct {
	Share       *Share
	Dataset     *Dataset
	SourceEnv   *Environment
	TargetEnv   *Environment
	SourceGroup *EnvironmentGroup
	TargetGroup *EnvironmentGroup
	Tables      []*Table
	Folders     []*StorageLocation
}
