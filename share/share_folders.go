package share

import (
	"context"
	"fmt"

	"github.com/dataplane-io/datashare/policydoc"
)

// shareFolders runs the per-folder grant sequence for every shared folder.
// The four steps are read-modify-write cycles on policy documents shared
// across shares, so each runs under the per-resource lock. One folder's
// failure marks its item Share_Failed, alarms, and continues.
func (r *Reconciler) shareFolders(ctx context.Context, data *Data) error {
	for _, folder := range data.Folders {
		item, err := r.tracker.folderItem(ctx, data.Share, folder)
		if err != nil {
			return err
		}

		if err = r.tracker.transition(ctx, item, ItemStatusShareInProgress); err != nil {
			return err
		}

		fc := newFolderContext(data, folder, item)

		if err = r.shareFolder(ctx, fc, data.Dataset); err != nil {
			Logger.Error(fmt.Sprintf("Failed to share folder %q from account %s/%s with account %s/%s: %s",
				fc.prefix, fc.sourceAccount, fc.sourceRegion, fc.targetAccount, fc.targetRegion, err.Error()))

			if terr := r.tracker.transition(ctx, item, ItemStatusShareFailed); terr != nil {
				return terr
			}

			emitAlarm("folder sharing failure", r.alarms.FolderShareFailure(ctx, folder, data.Share.ID, data.TargetEnv))

			continue
		}

		if err = r.tracker.transition(ctx, item, ItemStatusShareSucceeded); err != nil {
			return err
		}
	}

	return nil
}

func (r *Reconciler) shareFolder(ctx context.Context, fc folderContext, dataset *Dataset) error {
	if err := r.manageBucketPolicy(ctx, fc); err != nil {
		return fmt.Errorf("managing bucket policy: %w", err)
	}

	if err := r.grantTargetRolePolicy(ctx, fc, dataset); err != nil {
		return fmt.Errorf("granting target role access policy: %w", err)
	}

	if err := r.manageAccessPointAndPolicy(ctx, fc); err != nil {
		return fmt.Errorf("managing access point policy: %w", err)
	}

	if err := r.updateKeyPolicy(ctx, fc, dataset); err != nil {
		return fmt.Errorf("updating key policy: %w", err)
	}

	return nil
}

// exceptionUserIDs resolves the numeric identities of the three roles that
// bypass the delegation statements: the dataset admin, the source
// environment admin, and the delegation role itself.
func (r *Reconciler) exceptionUserIDs(ctx context.Context, account string, datasetAdmin string, sourceAdmin string) ([]string, error) {
	roleIDs, err := r.roles.GetRoleNumericIDs(ctx, account, []string{
		datasetAdmin,
		sourceAdmin,
		r.delegationRoleArn(account),
	})
	if err != nil {
		return nil, fmt.Errorf("resolving admin role ids in account %s: %w", account, err)
	}

	patterns := make([]string, 0, len(roleIDs))
	for _, roleID := range roleIDs {
		patterns = append(patterns, userIDPattern(roleID))
	}

	return patterns, nil
}

// manageBucketPolicy ensures the source bucket carries the admin bypass
// statement and the statement delegating authorization to access points.
// Both are keyed by fixed Sids and added at most once.
func (r *Reconciler) manageBucketPolicy(ctx context.Context, fc folderContext) error {
	unlock := r.locks.lock(fc.sourceAccount, fc.bucket)
	defer unlock()

	raw, err := r.objects.GetBucketPolicy(ctx, fc.sourceAccount, fc.sourceRegion, fc.bucket)
	if err != nil {
		return fmt.Errorf("reading bucket policy of %s: %w", fc.bucket, err)
	}

	doc, err := policydoc.Parse(raw)
	if err != nil {
		return fmt.Errorf("bucket policy of %s: %w", fc.bucket, err)
	}

	if doc.HasStatement(SidAllowAllToAdmin) && doc.HasStatement(SidDelegateAccessToAccessPoint) {
		Logger.Info(fmt.Sprintf("Bucket %s already carries the delegation statements", fc.bucket))
		return nil
	}

	exceptions, err := r.exceptionUserIDs(ctx, fc.sourceAccount, fc.datasetAdminRole, fc.sourceAdminRole)
	if err != nil {
		return err
	}

	adminStatement := &policydoc.Statement{
		Sid:       SidAllowAllToAdmin,
		Effect:    "Allow",
		Principal: policydoc.AnyPrincipal(),
		Action:    policydoc.StringOrList{"s3:*"},
		Resource:  policydoc.StringOrList{bucketArn(fc.bucket), bucketObjectsArn(fc.bucket)},
	}
	adminStatement.SetConditionValues("StringLike", "aws:userId", exceptions)

	delegation := &policydoc.Statement{
		Sid:       SidDelegateAccessToAccessPoint,
		Effect:    "Allow",
		Principal: policydoc.AnyPrincipal(),
		Action:    policydoc.StringOrList{"s3:*"},
		Resource:  policydoc.StringOrList{bucketArn(fc.bucket), bucketObjectsArn(fc.bucket)},
	}
	delegation.SetConditionValues("StringEquals", "s3:DataAccessPointAccount", []string{fc.sourceAccount})

	doc.UpsertStatement(adminStatement)
	doc.UpsertStatement(delegation)

	updated, err := doc.Marshal()
	if err != nil {
		return err
	}

	if err = r.objects.PutBucketPolicy(ctx, fc.sourceAccount, fc.sourceRegion, fc.bucket, updated); err != nil {
		return fmt.Errorf("writing bucket policy of %s: %w", fc.bucket, err)
	}

	Logger.Info(fmt.Sprintf("Installed delegation statements on bucket %s", fc.bucket))

	return nil
}

// targetRoleResources are the four ARNs a shared dataset contributes to
// the target role's inline access policy.
func targetRoleResources(fc folderContext, dataset *Dataset) []string {
	apArn := accessPointArn(dataset.Region, dataset.AccountID, fc.accessPointName)

	return []string{
		bucketArn(fc.bucket),
		bucketObjectsArn(fc.bucket),
		apArn,
		apArn + "/*",
	}
}

// grantTargetRolePolicy ensures the target role's inline policy references
// the dataset's bucket and access point. An existing policy has the
// resources merged into its first statement; a missing policy is created
// fresh.
func (r *Reconciler) grantTargetRolePolicy(ctx context.Context, fc folderContext, dataset *Dataset) error {
	raw, err := r.roles.GetRolePolicy(ctx, fc.targetAccount, fc.targetRoleName, TargetRolePolicyName)
	if err != nil {
		return fmt.Errorf("reading policy %s of role %s: %w", TargetRolePolicyName, fc.targetRoleName, err)
	}

	resources := targetRoleResources(fc, dataset)

	var doc *policydoc.Document

	if raw != "" {
		doc, err = policydoc.Parse(raw)
		if err != nil {
			return fmt.Errorf("policy %s of role %s: %w", TargetRolePolicyName, fc.targetRoleName, err)
		}

		if len(doc.Statement) == 0 {
			return fmt.Errorf("policy %s of role %s has no statements", TargetRolePolicyName, fc.targetRoleName)
		}

		stmt := doc.Statement[0]
		if containsResource(stmt.Resource, bucketArn(fc.bucket)) {
			Logger.Info(fmt.Sprintf("Role %s already references bucket %s", fc.targetRoleName, fc.bucket))
			return nil
		}

		stmt.Resource = append(stmt.Resource, resources...)
	} else {
		doc = policydoc.New(&policydoc.Statement{
			Effect:   "Allow",
			Action:   policydoc.StringOrList{"s3:*"},
			Resource: resources,
		})
	}

	updated, err := doc.Marshal()
	if err != nil {
		return err
	}

	if err = r.roles.PutRolePolicy(ctx, fc.targetAccount, fc.targetRoleName, TargetRolePolicyName, updated); err != nil {
		return fmt.Errorf("writing policy %s on role %s: %w", TargetRolePolicyName, fc.targetRoleName, err)
	}

	Logger.Info(fmt.Sprintf("Granted role %s access to bucket %s and access point %s", fc.targetRoleName, fc.bucket, fc.accessPointName))

	return nil
}

func containsResource(resources []string, resource string) bool {
	for _, r := range resources {
		if r == resource {
			return true
		}
	}

	return false
}

// accessPointPolicyTemplate is the conditional statement pair granting a
// target role access to one folder prefix through the access point: a
// ListBucket statement conditioned on the prefix, and a GetObject
// statement scoped to the prefix's object ARNs. Both are keyed by the
// role's numeric identity.
func accessPointPolicyTemplate(roleID string, apArn string, prefix string) []*policydoc.Statement {
	listStatement := &policydoc.Statement{
		Sid:       prefixStatementSid(roleID),
		Effect:    "Allow",
		Principal: policydoc.AnyPrincipal(),
		Action:    policydoc.StringOrList{"s3:ListBucket"},
		Resource:  policydoc.StringOrList{apArn},
	}
	listStatement.SetConditionValues("StringLike", "s3:prefix", []string{prefixCondition(prefix)})
	listStatement.SetConditionValues("StringLike", "aws:userId", []string{userIDPattern(roleID)})

	objectStatement := &policydoc.Statement{
		Sid:       resourceStatementSid(roleID),
		Effect:    "Allow",
		Principal: policydoc.AnyPrincipal(),
		Action:    policydoc.StringOrList{"s3:GetObject"},
		Resource:  policydoc.StringOrList{accessPointObjectArn(apArn, prefix)},
	}
	objectStatement.SetConditionValues("StringLike", "aws:userId", []string{userIDPattern(roleID)})

	return []*policydoc.Statement{listStatement, objectStatement}
}

// manageAccessPointAndPolicy gets or creates the folder's access point and
// extends its policy with the target role's statement pair, or with the
// new prefix when the pair already exists. On first creation the policy is
// stamped with the admin bypass statement.
func (r *Reconciler) manageAccessPointAndPolicy(ctx context.Context, fc folderContext) error {
	unlock := r.locks.lock(fc.sourceAccount, fc.accessPointName)
	defer unlock()

	apArn, err := r.objects.GetAccessPointArn(ctx, fc.sourceAccount, fc.sourceRegion, fc.accessPointName)
	if err != nil {
		return fmt.Errorf("looking up access point %s: %w", fc.accessPointName, err)
	}

	if apArn == "" {
		apArn, err = r.objects.CreateAccessPoint(ctx, fc.sourceAccount, fc.sourceRegion, fc.bucket, fc.accessPointName)
		if err != nil {
			return fmt.Errorf("creating access point %s on bucket %s: %w", fc.accessPointName, fc.bucket, err)
		}

		Logger.Info(fmt.Sprintf("Created access point %s on bucket %s", fc.accessPointName, fc.bucket))
	}

	roleID, err := r.roles.GetRoleNumericID(ctx, fc.targetAccount, fc.targetRoleName)
	if err != nil {
		return fmt.Errorf("resolving numeric id of role %s: %w", fc.targetRoleName, err)
	}

	raw, err := r.objects.GetAccessPointPolicy(ctx, fc.sourceAccount, fc.sourceRegion, fc.accessPointName)
	if err != nil {
		return fmt.Errorf("reading access point policy of %s: %w", fc.accessPointName, err)
	}

	var doc *policydoc.Document

	if raw != "" {
		doc, err = policydoc.Parse(raw)
		if err != nil {
			return fmt.Errorf("access point policy of %s: %w", fc.accessPointName, err)
		}

		if stmt, found := doc.FindStatement(prefixStatementSid(roleID)); found {
			stmt.AddConditionValue("StringLike", "s3:prefix", prefixCondition(fc.prefix))
			doc.MergeResources(resourceStatementSid(roleID), accessPointObjectArn(apArn, fc.prefix))
		} else {
			for _, s := range accessPointPolicyTemplate(roleID, apArn, fc.prefix) {
				doc.UpsertStatement(s)
			}
		}
	} else {
		doc = policydoc.New(accessPointPolicyTemplate(roleID, apArn, fc.prefix)...)

		exceptions, exErr := r.exceptionUserIDs(ctx, fc.sourceAccount, fc.datasetAdminRole, fc.sourceAdminRole)
		if exErr != nil {
			return exErr
		}

		adminStatement := &policydoc.Statement{
			Sid:       SidAllowAllToAdmin,
			Effect:    "Allow",
			Principal: policydoc.AnyPrincipal(),
			Action:    policydoc.StringOrList{"s3:*"},
			Resource:  policydoc.StringOrList{apArn},
		}
		adminStatement.SetConditionValues("StringLike", "aws:userId", exceptions)

		doc.UpsertStatement(adminStatement)
	}

	updated, err := doc.Marshal()
	if err != nil {
		return err
	}

	if err = r.objects.PutAccessPointPolicy(ctx, fc.sourceAccount, fc.sourceRegion, fc.accessPointName, updated); err != nil {
		return fmt.Errorf("writing access point policy of %s: %w", fc.accessPointName, err)
	}

	Logger.Info(fmt.Sprintf("Access point %s grants role id %s prefix %s", fc.accessPointName, roleID, fc.prefix))

	return nil
}

// updateKeyPolicy ensures the dataset's encryption key allows the target
// role to decrypt. The statement is keyed by the role's numeric identity
// and added at most once.
func (r *Reconciler) updateKeyPolicy(ctx context.Context, fc folderContext, dataset *Dataset) error {
	if dataset.KMSAlias == "" {
		return nil
	}

	unlock := r.locks.lock(fc.sourceAccount, keyAlias(dataset.KMSAlias))
	defer unlock()

	keyID, err := r.keys.GetKeyID(ctx, fc.sourceAccount, fc.sourceRegion, keyAlias(dataset.KMSAlias))
	if err != nil {
		return fmt.Errorf("resolving key %s: %w", keyAlias(dataset.KMSAlias), err)
	}

	raw, err := r.keys.GetKeyPolicy(ctx, fc.sourceAccount, fc.sourceRegion, keyID, KeyPolicyName)
	if err != nil {
		return fmt.Errorf("reading policy of key %s: %w", keyID, err)
	}

	doc, err := policydoc.Parse(raw)
	if err != nil {
		return fmt.Errorf("policy of key %s: %w", keyID, err)
	}

	roleID, err := r.roles.GetRoleNumericID(ctx, fc.targetAccount, fc.targetRoleName)
	if err != nil {
		return fmt.Errorf("resolving numeric id of role %s: %w", fc.targetRoleName, err)
	}

	if doc.HasStatement(roleID) {
		Logger.Info(fmt.Sprintf("Key %s already allows role id %s to decrypt", keyID, roleID))
		return nil
	}

	decrypt := &policydoc.Statement{
		Sid:       roleID,
		Effect:    "Allow",
		Principal: policydoc.AWSPrincipal("*"),
		Action:    policydoc.StringOrList{"kms:Decrypt"},
		Resource:  policydoc.StringOrList{"*"},
	}
	decrypt.SetConditionValues("StringLike", "aws:userId", []string{userIDPattern(roleID)})

	doc.UpsertStatement(decrypt)

	updated, err := doc.Marshal()
	if err != nil {
		return err
	}

	if err = r.keys.PutKeyPolicy(ctx, fc.sourceAccount, fc.sourceRegion, keyID, KeyPolicyName, updated); err != nil {
		return fmt.Errorf("writing policy of key %s: %w", keyID, err)
	}

	Logger.Info(fmt.Sprintf("Key %s now allows role id %s to decrypt", keyID, roleID))

	return nil
}
