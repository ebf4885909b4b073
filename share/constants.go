package share

const (
	// SidAllowAllToAdmin keys the bucket / access point statement granting
	// the admin and delegation roles unconditional access.
	SidAllowAllToAdmin = "AllowAllToAdmin"
	// SidDelegateAccessToAccessPoint keys the bucket statement delegating
	// authorization to the bucket's access points.
	SidDelegateAccessToAccessPoint = "DelegateAccessToAccessPoint"

	// TargetRolePolicyName is the inline policy on the target role that
	// accumulates the bucket and access point ARNs of shared datasets.
	TargetRolePolicyName = "targetDatasetAccessControlPolicy"

	// KeyPolicyName is the key policy document edited on the dataset's
	// encryption key.
	KeyPolicyName = "default"

	// SharedDatabaseSuffix is appended to the source database name to form
	// the shadow database in the target account.
	SharedDatabaseSuffix = "shared"

	// EveryonePrincipal is the legacy blanket principal whose grant must be
	// cleared before fine-grained cross-account grants take effect.
	EveryonePrincipal = "EVERYONE"

	// maxRevokeBatchSize bounds one batch revoke call; larger entry sets
	// are chunked.
	maxRevokeBatchSize = 20
)

var (
	tablePermissions        = []string{"DESCRIBE", "SELECT"}
	resourceLinkPermissions = []string{"DESCRIBE", "DROP", "ALL"}
	databasePermissions     = []string{"ALL"}
	legacyAllPermissions    = []string{"ALL"}
	sourceRevokePermissions = []string{"SELECT"}
)
