package share

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataplane-io/datashare/policydoc"
)

func TestApprove_SweepsOrphanedResourceLinks(t *testing.T) {
	h := newTestHarness(newTestData())
	h.catalog.listing[testTargetAccount+"/salesshared"] = []string{"orders", "legacy_table"}
	h.catalog.objects[objectKey(testSourceAccount, "sales", "legacy_table")] = true

	err := h.reconciler.Approve(context.Background(), "share1")
	require.NoError(t, err)

	// The orphan is removed and its cross-account grant revoked; the
	// still-declared table survives.
	assert.Equal(t, []string{"legacy_table"}, h.catalog.deleted[testTargetAccount+"/salesshared"])

	var orphanRevokes []RevokeEntry

	for _, entry := range h.catalog.revoked {
		if entry.Principal == testTargetAccount {
			orphanRevokes = append(orphanRevokes, entry)
		}
	}

	require.Len(t, orphanRevokes, 1)
	assert.Equal(t, "legacy_table", orphanRevokes[0].Resource.Table)
	assert.True(t, orphanRevokes[0].Resource.WithColumns)
	assert.Equal(t, []string{"SELECT"}, orphanRevokes[0].Permissions)
}

func TestApprove_SweepKeepsGrantOfSiblingShare(t *testing.T) {
	h := newTestHarness(newTestData())
	h.catalog.listing[testTargetAccount+"/salesshared"] = []string{"orders", "legacy_table"}
	h.catalog.objects[objectKey(testSourceAccount, "sales", "legacy_table")] = true
	h.store.stillShared["legacy_table"] = true

	err := h.reconciler.Approve(context.Background(), "share1")
	require.NoError(t, err)

	// The stale link is still dropped, but the source grant is kept for
	// the sibling share.
	assert.Equal(t, []string{"legacy_table"}, h.catalog.deleted[testTargetAccount+"/salesshared"])

	for _, entry := range h.catalog.revoked {
		if entry.Principal == testTargetAccount {
			t.Fatalf("source grant revoked despite sibling share: %+v", entry)
		}
	}
}

func TestApprove_SweepsStaleFolderPrefixes(t *testing.T) {
	h := newTestHarness(newTestData())

	// Seed the access point with a prefix no folder of the share declares
	// anymore.
	apArn := accessPointArn(testRegion, testSourceAccount, "ds1-analysts")
	h.objects.accessPoints[testSourceAccount+"/ds1-analysts"] = apArn

	stale := accessPointPolicyTemplate("AROAANALYSTS", apArn, "oldfolder")
	doc := policydoc.New(stale...)
	raw, err := doc.Marshal()
	require.NoError(t, err)
	h.objects.apPolicies[testSourceAccount+"/ds1-analysts"] = raw

	require.NoError(t, h.reconciler.Approve(context.Background(), "share1"))

	apDoc, err := policydoc.Parse(h.objects.apPolicies[testSourceAccount+"/ds1-analysts"])
	require.NoError(t, err)

	listStmt, found := apDoc.FindStatement("AROAANALYSTS0")
	require.True(t, found)
	assert.Equal(t, []string{"orders/*"}, asStrings(listStmt.ConditionValues("StringLike", "s3:prefix")))

	objectStmt, found := apDoc.FindStatement("AROAANALYSTS1")
	require.True(t, found)
	assert.Equal(t, []string{apArn + "/object/orders/*"}, asStrings(objectStmt.Resource))
}
