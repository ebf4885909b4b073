package share

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// Logger is the package logger. The worker entry point replaces it with the
// process-wide logger before any reconciliation runs.
var Logger = hclog.New(&hclog.LoggerOptions{Name: "datashare"})

func bucketArn(bucket string) string {
	return fmt.Sprintf("arn:aws:s3:::%s", bucket)
}

func bucketObjectsArn(bucket string) string {
	return fmt.Sprintf("arn:aws:s3:::%s/*", bucket)
}

func accessPointArn(region string, account string, name string) string {
	return fmt.Sprintf("arn:aws:s3:%s:%s:accesspoint/%s", region, account, name)
}

// accessPointObjectArn scopes an access point ARN down to the objects under
// one folder prefix.
func accessPointObjectArn(apArn string, prefix string) string {
	return fmt.Sprintf("%s/object/%s/*", apArn, prefix)
}

func sharedDatabaseName(sourceDatabase string) string {
	return sourceDatabase + SharedDatabaseSuffix
}

// accessPointNameFor derives the deterministic access point name for a
// (dataset, requesting team) pair. The name is the idempotency key shared
// by every folder of the dataset granted to that team.
func accessPointNameFor(datasetID string, principalID string) string {
	return strings.ToLower(fmt.Sprintf("%s-%s", datasetID, principalID))
}

// prefixCondition is the wildcard form a folder prefix takes in an access
// point policy condition.
func prefixCondition(prefix string) string {
	return prefix + "/*"
}

// trimPrefixCondition recovers the bare folder prefix from its wildcard
// condition form.
func trimPrefixCondition(condition string) string {
	return strings.TrimSuffix(condition, "/*")
}

// userIDPattern is the aws:userId form matched against a role's numeric
// identity: any session of the role.
func userIDPattern(roleID string) string {
	return roleID + ":*"
}

// prefixStatementSid and resourceStatementSid key the conditional statement
// pair a target role holds on an access point. The numeric role identity is
// the only stable value policy engines compare against caller identity.
func prefixStatementSid(roleID string) string {
	return roleID + "0"
}

func resourceStatementSid(roleID string) string {
	return roleID + "1"
}

func keyAlias(alias string) string {
	return "alias/" + alias
}

// chunkEntries splits revoke entries into batches the catalog authority
// accepts in one call.
func chunkEntries(entries []RevokeEntry, size int) [][]RevokeEntry {
	if size <= 0 {
		size = maxRevokeBatchSize
	}

	chunks := make([][]RevokeEntry, 0, (len(entries)+size-1)/size)
	for start := 0; start < len(entries); start += size {
		end := start + size
		if end > len(entries) {
			end = len(entries)
		}

		chunks = append(chunks, entries[start:end])
	}

	return chunks
}
