package share

// ShareStatus is the status of a share as a whole, set by the approver.
type ShareStatus string

const (
	ShareStatusPendingApproval ShareStatus = "PendingApproval"
	ShareStatusApproved        ShareStatus = "Approved"
	ShareStatusRejected        ShareStatus = "Rejected"
)

// ItemStatus tracks one catalog object through a workflow run. Exactly one
// terminal status is written per run; history is not retained.
type ItemStatus string

const (
	ItemStatusPendingApproval ItemStatus = "PendingApproval"

	ItemStatusShareInProgress ItemStatus = "Share_In_Progress"
	ItemStatusShareSucceeded  ItemStatus = "Share_Succeeded"
	ItemStatusShareFailed     ItemStatus = "Share_Failed"

	ItemStatusRevokeInProgress ItemStatus = "Revoke_In_Progress"
	ItemStatusRevokeSucceeded  ItemStatus = "Revoke_Share_Succeeded"
	ItemStatusRevokeFailed     ItemStatus = "Revoke_Share_Failed"
)

// ItemType discriminates the two catalog object kinds a share item can
// reference.
type ItemType string

const (
	ItemTypeTable  ItemType = "table"
	ItemTypeFolder ItemType = "folder"
)
