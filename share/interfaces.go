package share

import (
	"context"
)

// The reconciler composes five independent policy authorities. Each is
// consumed through a narrow capability interface so tests can substitute
// stateful fakes and so no workflow ever talks to a vendor SDK directly.

// CatalogResource identifies a catalog object for a grant or revoke. An
// empty Table means the database itself; WithColumns selects the
// column-wildcard view of the table.
type CatalogResource struct {
	CatalogID   string
	Database    string
	Table       string
	WithColumns bool
}

// CatalogObjectRef points a shadow object (resource link) at the table it
// mirrors in the owning account.
type CatalogObjectRef struct {
	CatalogID string
	Database  string
	Table     string
}

// RevokeEntry is one entry of a batch revoke call.
type RevokeEntry struct {
	ID          string
	Principal   string
	Resource    CatalogResource
	Permissions []string
	GrantOption []string
}

// RevokeFailure is a per-entry failure reported by the catalog authority.
// Callers decide which failures are benign; see isBenignRevokeFailure.
type RevokeFailure struct {
	EntryID   string
	ErrorCode string
	Message   string
}

//go:generate go run github.com/vektra/mockery/v2 --name=CatalogPermissions --with-expecter --inpackage
type CatalogPermissions interface {
	// Grant issues a catalog permission grant in the given account. An
	// empty grantable slice grants without the grant option.
	Grant(ctx context.Context, account string, region string, principal string, resource CatalogResource, permissions []string, grantable []string) error
	// BatchRevoke revokes up to maxRevokeBatchSize entries in one call and
	// returns the per-entry failures the authority reported.
	BatchRevoke(ctx context.Context, account string, region string, catalogID string, entries []RevokeEntry) ([]RevokeFailure, error)
	ListDatabaseObjects(ctx context.Context, account string, region string, database string) ([]string, error)
	ObjectExists(ctx context.Context, account string, region string, database string, name string) (bool, error)
	BatchDeleteObjects(ctx context.Context, account string, region string, database string, names []string) error
	// CreateShadowObject creates the shadow database when absent and a
	// resource-link object in it pointing at source.
	CreateShadowObject(ctx context.Context, account string, region string, database string, name string, source CatalogObjectRef) error
}

// Invitation is a pending resource-share invitation on the target account.
type Invitation struct {
	ID       string
	ShareArn string
}

//go:generate go run github.com/vektra/mockery/v2 --name=ResourceShareInvitations --with-expecter --inpackage
type ResourceShareInvitations interface {
	ListPending(ctx context.Context, account string, region string) ([]Invitation, error)
	// Accept is idempotent: accepting an already-accepted invitation
	// returns nil.
	Accept(ctx context.Context, account string, region string, invitationID string) error
}

//go:generate go run github.com/vektra/mockery/v2 --name=ObjectStoreAccessControl --with-expecter --inpackage
type ObjectStoreAccessControl interface {
	// GetBucketPolicy returns "" when the bucket has no policy.
	GetBucketPolicy(ctx context.Context, account string, region string, bucket string) (string, error)
	PutBucketPolicy(ctx context.Context, account string, region string, bucket string, policy string) error
	// GetAccessPointArn returns "" when no access point with that name exists.
	GetAccessPointArn(ctx context.Context, account string, region string, name string) (string, error)
	CreateAccessPoint(ctx context.Context, account string, region string, bucket string, name string) (string, error)
	DeleteAccessPoint(ctx context.Context, account string, region string, name string) error
	// GetAccessPointPolicy returns "" when the access point has no policy.
	GetAccessPointPolicy(ctx context.Context, account string, region string, name string) (string, error)
	PutAccessPointPolicy(ctx context.Context, account string, region string, name string, policy string) error
}

//go:generate go run github.com/vektra/mockery/v2 --name=RolePolicyStore --with-expecter --inpackage
type RolePolicyStore interface {
	// GetRolePolicy returns "" when the role has no inline policy with
	// that name.
	GetRolePolicy(ctx context.Context, account string, role string, policyName string) (string, error)
	PutRolePolicy(ctx context.Context, account string, role string, policyName string, policy string) error
	DeleteRolePolicy(ctx context.Context, account string, role string, policyName string) error
	// GetRoleNumericID returns the stable numeric identity of the role.
	// Policy conditions match on this id, never on the mutable ARN.
	GetRoleNumericID(ctx context.Context, account string, role string) (string, error)
	GetRoleNumericIDs(ctx context.Context, account string, roles []string) ([]string, error)
}

//go:generate go run github.com/vektra/mockery/v2 --name=KeyPolicyStore --with-expecter --inpackage
type KeyPolicyStore interface {
	GetKeyID(ctx context.Context, account string, region string, alias string) (string, error)
	GetKeyPolicy(ctx context.Context, account string, region string, keyID string, policyName string) (string, error)
	PutKeyPolicy(ctx context.Context, account string, region string, keyID string, policyName string, policy string) error
}

// DashboardGroups resolves the dashboard-user group principal of a target
// account, when dashboards are enabled for the environment.
type DashboardGroups interface {
	GroupArn(ctx context.Context, account string) (string, error)
}

// MetadataStore is the authoritative relational store of shares, datasets
// and environments. Status updates must be durable before they return.
type MetadataStore interface {
	GetShareData(ctx context.Context, shareID string, statuses []string) (*Data, error)
	GetShareItem(ctx context.Context, shareID string, itemID string) (*Item, error)
	UpdateShareItemStatus(ctx context.Context, itemID string, status ItemStatus) error
	// OtherApprovedShareExists reports whether any Approved share other
	// than excludeShareID still targets the environment.
	OtherApprovedShareExists(ctx context.Context, environmentID string, excludeShareID string) (bool, error)
	// TableStillShared reports whether any Approved share still exposes
	// the named table of the dataset to the environment.
	TableStillShared(ctx context.Context, datasetID string, environmentID string, tableName string) (bool, error)
	GetLocationByPrefix(ctx context.Context, accountID string, region string, prefix string) (*StorageLocation, error)
}

// Alarms receives structured per-item failure notifications. Emission is
// best effort; the reconciler logs and continues when publishing fails.
type Alarms interface {
	TableShareFailure(ctx context.Context, table *Table, shareID string, target *Environment) error
	FolderShareFailure(ctx context.Context, folder *StorageLocation, shareID string, target *Environment) error
	TableRevokeFailure(ctx context.Context, table *Table, shareID string, target *Environment) error
	FolderRevokeFailure(ctx context.Context, folder *StorageLocation, shareID string, target *Environment) error
}
