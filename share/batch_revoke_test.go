package share

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeRevokeEntries(n int) []RevokeEntry {
	entries := make([]RevokeEntry, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, RevokeEntry{
			ID:        fmt.Sprintf("e%d", i),
			Principal: testTargetAccount,
			Resource: CatalogResource{
				CatalogID: testSourceAccount,
				Database:  "sales",
				Table:     fmt.Sprintf("table%d", i),
			},
			Permissions: []string{"SELECT"},
		})
	}

	return entries
}

func TestBatchRevokePermissions_ChunksLargeBatches(t *testing.T) {
	h := newTestHarness(newTestData())

	err := h.reconciler.batchRevokePermissions(context.Background(), testSourceAccount, testRegion, testSourceAccount, makeRevokeEntries(45))
	require.NoError(t, err)

	assert.Equal(t, []int{20, 20, 5}, h.catalog.batchSizes)
	assert.Len(t, h.catalog.revoked, 45)
}

func TestBatchRevokePermissions_BenignFailuresAreSuccess(t *testing.T) {
	h := newTestHarness(newTestData())
	h.catalog.failures = func(entries []RevokeEntry) []RevokeFailure {
		return []RevokeFailure{
			{EntryID: entries[0].ID, ErrorCode: "InvalidInputException", Message: "Grantee has no permissions on the resource"},
			{EntryID: entries[1].ID, ErrorCode: "InvalidInputException", Message: "No permissions revoked"},
		}
	}

	err := h.reconciler.batchRevokePermissions(context.Background(), testSourceAccount, testRegion, testSourceAccount, makeRevokeEntries(5))
	assert.NoError(t, err)
}

func TestBatchRevokePermissions_NonBenignFailuresRaise(t *testing.T) {
	h := newTestHarness(newTestData())
	h.catalog.failures = func(entries []RevokeEntry) []RevokeFailure {
		return []RevokeFailure{
			{EntryID: entries[0].ID, ErrorCode: "InvalidInputException", Message: "Grantee has no permissions on the resource"},
			{EntryID: entries[1].ID, ErrorCode: "AccessDeniedException", Message: "not authorized"},
		}
	}

	err := h.reconciler.batchRevokePermissions(context.Background(), testSourceAccount, testRegion, testSourceAccount, makeRevokeEntries(5))
	require.Error(t, err)

	var batchErr *BatchRevokeError
	require.True(t, errors.As(err, &batchErr))
	require.Len(t, batchErr.Failures, 1)
	assert.Equal(t, "AccessDeniedException", batchErr.Failures[0].ErrorCode)
}
