package share

import (
	"context"
	"fmt"
	"strings"
)

// The fakes below are stateful in-memory stand-ins for the five policy
// authorities and the metadata store. They record every mutation so tests
// can assert on the exact sequence of policy edits a run produced.

type fakeStore struct {
	data        map[string]*Data
	items       map[string]*Item // keyed by object id (table or folder)
	statuses    map[string]ItemStatus
	otherShares bool
	stillShared map[string]bool
	locations   map[string]*StorageLocation

	failItemLookup   bool
	failStatusUpdate map[string]bool
}

func newFakeStore(data *Data) *fakeStore {
	s := &fakeStore{
		data:             map[string]*Data{data.Share.ID: data},
		items:            map[string]*Item{},
		statuses:         map[string]ItemStatus{},
		stillShared:      map[string]bool{},
		locations:        map[string]*StorageLocation{},
		failStatusUpdate: map[string]bool{},
	}

	for _, table := range data.Tables {
		s.items[table.ID] = &Item{
			ID:       "item-" + table.ID,
			ShareID:  data.Share.ID,
			ItemID:   table.ID,
			ItemType: ItemTypeTable,
			Status:   ItemStatusPendingApproval,
		}
	}

	for _, folder := range data.Folders {
		s.items[folder.ID] = &Item{
			ID:       "item-" + folder.ID,
			ShareID:  data.Share.ID,
			ItemID:   folder.ID,
			ItemType: ItemTypeFolder,
			Status:   ItemStatusPendingApproval,
		}
		s.locations[folder.Prefix] = folder
	}

	return s
}

func (s *fakeStore) GetShareData(_ context.Context, shareID string, _ []string) (*Data, error) {
	data, ok := s.data[shareID]
	if !ok {
		return nil, NewNotFoundError("share", shareID)
	}

	return data, nil
}

func (s *fakeStore) GetShareItem(_ context.Context, shareID string, itemID string) (*Item, error) {
	if s.failItemLookup {
		return nil, NewNotFoundError("share item", itemID)
	}

	item, ok := s.items[itemID]
	if !ok || item.ShareID != shareID {
		return nil, NewNotFoundError("share item", itemID)
	}

	copied := *item

	return &copied, nil
}

func (s *fakeStore) UpdateShareItemStatus(_ context.Context, itemID string, status ItemStatus) error {
	if s.failStatusUpdate[itemID] {
		return fmt.Errorf("store unavailable")
	}

	for _, item := range s.items {
		if item.ID == itemID {
			item.Status = status
			s.statuses[itemID] = status

			return nil
		}
	}

	return NewNotFoundError("share item", itemID)
}

func (s *fakeStore) OtherApprovedShareExists(_ context.Context, _ string, _ string) (bool, error) {
	return s.otherShares, nil
}

func (s *fakeStore) TableStillShared(_ context.Context, _ string, _ string, tableName string) (bool, error) {
	return s.stillShared[tableName], nil
}

func (s *fakeStore) GetLocationByPrefix(_ context.Context, _ string, _ string, prefix string) (*StorageLocation, error) {
	location, ok := s.locations[prefix]
	if !ok {
		return nil, NewNotFoundError("storage location", prefix)
	}

	return location, nil
}

func (s *fakeStore) itemStatus(objectID string) ItemStatus {
	return s.items[objectID].Status
}

type grantRecord struct {
	account     string
	principal   string
	resource    CatalogResource
	permissions []string
	grantable   []string
}

type shadowRecord struct {
	account  string
	database string
	name     string
	source   CatalogObjectRef
}

type fakeCatalog struct {
	grants      []grantRecord
	revoked     []RevokeEntry
	batchSizes  []int
	shadows     []shadowRecord
	deleted     map[string][]string // account/database -> names
	objects     map[string]bool     // account/database/name -> exists
	listing     map[string][]string // account/database -> names
	failures    func(entries []RevokeEntry) []RevokeFailure
	grantErr    error
	grantErrFor string // table name triggering grantErr, "" for all
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		deleted: map[string][]string{},
		objects: map[string]bool{},
		listing: map[string][]string{},
	}
}

func objectKey(account string, database string, name string) string {
	return account + "/" + database + "/" + name
}

func (c *fakeCatalog) Grant(_ context.Context, account string, _ string, principal string, resource CatalogResource, permissions []string, grantable []string) error {
	if c.grantErr != nil && (c.grantErrFor == "" || c.grantErrFor == resource.Table) {
		return c.grantErr
	}

	c.grants = append(c.grants, grantRecord{
		account:     account,
		principal:   principal,
		resource:    resource,
		permissions: permissions,
		grantable:   grantable,
	})

	return nil
}

func (c *fakeCatalog) BatchRevoke(_ context.Context, _ string, _ string, _ string, entries []RevokeEntry) ([]RevokeFailure, error) {
	c.revoked = append(c.revoked, entries...)
	c.batchSizes = append(c.batchSizes, len(entries))

	if c.failures != nil {
		return c.failures(entries), nil
	}

	return nil, nil
}

func (c *fakeCatalog) ListDatabaseObjects(_ context.Context, account string, _ string, database string) ([]string, error) {
	return c.listing[account+"/"+database], nil
}

func (c *fakeCatalog) ObjectExists(_ context.Context, account string, _ string, database string, name string) (bool, error) {
	return c.objects[objectKey(account, database, name)], nil
}

func (c *fakeCatalog) BatchDeleteObjects(_ context.Context, account string, _ string, database string, names []string) error {
	key := account + "/" + database
	c.deleted[key] = append(c.deleted[key], names...)

	for _, name := range names {
		delete(c.objects, objectKey(account, database, name))
	}

	return nil
}

func (c *fakeCatalog) CreateShadowObject(_ context.Context, account string, _ string, database string, name string, source CatalogObjectRef) error {
	c.shadows = append(c.shadows, shadowRecord{account: account, database: database, name: name, source: source})
	c.objects[objectKey(account, database, name)] = true

	return nil
}

func (c *fakeCatalog) grantsTo(principal string) []grantRecord {
	var out []grantRecord

	for _, grant := range c.grants {
		if grant.principal == principal {
			out = append(out, grant)
		}
	}

	return out
}

type fakeInvitations struct {
	pending  []Invitation
	accepted []string
}

func (i *fakeInvitations) ListPending(_ context.Context, _ string, _ string) ([]Invitation, error) {
	return i.pending, nil
}

func (i *fakeInvitations) Accept(_ context.Context, _ string, _ string, invitationID string) error {
	i.accepted = append(i.accepted, invitationID)
	return nil
}

type fakeObjectStore struct {
	bucketPolicies map[string]string // account/bucket -> policy
	accessPoints   map[string]string // account/name -> arn
	apPolicies     map[string]string // account/name -> policy
	deletedAPs     []string
	createErr      error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{
		bucketPolicies: map[string]string{},
		accessPoints:   map[string]string{},
		apPolicies:     map[string]string{},
	}
}

func (o *fakeObjectStore) GetBucketPolicy(_ context.Context, account string, _ string, bucket string) (string, error) {
	return o.bucketPolicies[account+"/"+bucket], nil
}

func (o *fakeObjectStore) PutBucketPolicy(_ context.Context, account string, _ string, bucket string, policy string) error {
	o.bucketPolicies[account+"/"+bucket] = policy
	return nil
}

func (o *fakeObjectStore) GetAccessPointArn(_ context.Context, account string, _ string, name string) (string, error) {
	return o.accessPoints[account+"/"+name], nil
}

func (o *fakeObjectStore) CreateAccessPoint(_ context.Context, account string, region string, _ string, name string) (string, error) {
	if o.createErr != nil {
		return "", o.createErr
	}

	arn := fmt.Sprintf("arn:aws:s3:%s:%s:accesspoint/%s", region, account, name)
	o.accessPoints[account+"/"+name] = arn

	return arn, nil
}

func (o *fakeObjectStore) DeleteAccessPoint(_ context.Context, account string, _ string, name string) error {
	delete(o.accessPoints, account+"/"+name)
	delete(o.apPolicies, account+"/"+name)
	o.deletedAPs = append(o.deletedAPs, name)

	return nil
}

func (o *fakeObjectStore) GetAccessPointPolicy(_ context.Context, account string, _ string, name string) (string, error) {
	return o.apPolicies[account+"/"+name], nil
}

func (o *fakeObjectStore) PutAccessPointPolicy(_ context.Context, account string, _ string, name string, policy string) error {
	o.apPolicies[account+"/"+name] = policy
	return nil
}

type fakeRoles struct {
	policies map[string]string // account/role/policyName -> document
	roleIDs  map[string]string // role name or arn -> numeric id
	deleted  []string
}

func newFakeRoles() *fakeRoles {
	return &fakeRoles{
		policies: map[string]string{},
		roleIDs:  map[string]string{},
	}
}

func policyKey(account string, role string, policyName string) string {
	return account + "/" + role + "/" + policyName
}

func (r *fakeRoles) GetRolePolicy(_ context.Context, account string, role string, policyName string) (string, error) {
	return r.policies[policyKey(account, role, policyName)], nil
}

func (r *fakeRoles) PutRolePolicy(_ context.Context, account string, role string, policyName string, policy string) error {
	r.policies[policyKey(account, role, policyName)] = policy
	return nil
}

func (r *fakeRoles) DeleteRolePolicy(_ context.Context, account string, role string, policyName string) error {
	key := policyKey(account, role, policyName)
	delete(r.policies, key)
	r.deleted = append(r.deleted, key)

	return nil
}

func (r *fakeRoles) GetRoleNumericID(_ context.Context, _ string, role string) (string, error) {
	if id, ok := r.roleIDs[role]; ok {
		return id, nil
	}

	// Derive a stable id from the role name so tests need not register
	// every role explicitly.
	name := role
	if idx := strings.LastIndex(role, "/"); idx >= 0 {
		name = role[idx+1:]
	}

	return "AROA" + strings.ToUpper(name), nil
}

func (r *fakeRoles) GetRoleNumericIDs(ctx context.Context, account string, roles []string) ([]string, error) {
	ids := make([]string, 0, len(roles))

	for _, role := range roles {
		id, err := r.GetRoleNumericID(ctx, account, role)
		if err != nil {
			return nil, err
		}

		ids = append(ids, id)
	}

	return ids, nil
}

type fakeKeys struct {
	keyIDs   map[string]string // alias -> key id
	policies map[string]string // keyID/policyName -> document
}

func newFakeKeys() *fakeKeys {
	return &fakeKeys{
		keyIDs:   map[string]string{},
		policies: map[string]string{},
	}
}

func (k *fakeKeys) GetKeyID(_ context.Context, _ string, _ string, alias string) (string, error) {
	id, ok := k.keyIDs[alias]
	if !ok {
		return "", fmt.Errorf("key %s not found", alias)
	}

	return id, nil
}

func (k *fakeKeys) GetKeyPolicy(_ context.Context, _ string, _ string, keyID string, policyName string) (string, error) {
	return k.policies[keyID+"/"+policyName], nil
}

func (k *fakeKeys) PutKeyPolicy(_ context.Context, _ string, _ string, keyID string, policyName string, policy string) error {
	k.policies[keyID+"/"+policyName] = policy
	return nil
}

type fakeDashboards struct {
	arn string
	err error
}

func (d *fakeDashboards) GroupArn(_ context.Context, _ string) (string, error) {
	return d.arn, d.err
}

type fakeAlarms struct {
	tableShare   int
	folderShare  int
	tableRevoke  int
	folderRevoke int
}

func (a *fakeAlarms) TableShareFailure(_ context.Context, _ *Table, _ string, _ *Environment) error {
	a.tableShare++
	return nil
}

func (a *fakeAlarms) FolderShareFailure(_ context.Context, _ *StorageLocation, _ string, _ *Environment) error {
	a.folderShare++
	return nil
}

func (a *fakeAlarms) TableRevokeFailure(_ context.Context, _ *Table, _ string, _ *Environment) error {
	a.tableRevoke++
	return nil
}

func (a *fakeAlarms) FolderRevokeFailure(_ context.Context, _ *StorageLocation, _ string, _ *Environment) error {
	a.folderRevoke++
	return nil
}

// testHarness wires a Reconciler against a full set of fakes.
type testHarness struct {
	data        *Data
	store       *fakeStore
	catalog     *fakeCatalog
	invitations *fakeInvitations
	objects     *fakeObjectStore
	roles       *fakeRoles
	keys        *fakeKeys
	alarms      *fakeAlarms
	reconciler  *Reconciler
}

const (
	testSourceAccount = "111111111111"
	testTargetAccount = "222222222222"
	testRegion        = "eu-west-1"
)

func newTestData() *Data {
	dataset := &Dataset{
		ID:             "ds1",
		EnvironmentID:  "env-src",
		AccountID:      testSourceAccount,
		Region:         testRegion,
		GlueDatabase:   "sales",
		BucketName:     "sales-bucket",
		KMSAlias:       "sales-key",
		AdminRoleArn:   "arn:aws:iam::111111111111:role/dataset-admin",
		AdminGroupName: "sales-admins",
	}

	return &Data{
		Share: &Share{
			ID:            "share1",
			DatasetID:     dataset.ID,
			EnvironmentID: "env-tgt",
			PrincipalID:   "analysts",
			Status:        ShareStatusApproved,
		},
		Dataset: dataset,
		SourceEnv: &Environment{
			ID:        "env-src",
			Name:      "production",
			AccountID: testSourceAccount,
			Region:    testRegion,
		},
		TargetEnv: &Environment{
			ID:        "env-tgt",
			Name:      "research",
			AccountID: testTargetAccount,
			Region:    testRegion,
		},
		SourceGroup: &EnvironmentGroup{
			EnvironmentID: "env-src",
			GroupName:     "sales-admins",
			RoleArn:       "arn:aws:iam::111111111111:role/source-admin",
			RoleName:      "source-admin",
		},
		TargetGroup: &EnvironmentGroup{
			EnvironmentID: "env-tgt",
			GroupName:     "analysts",
			RoleArn:       "arn:aws:iam::222222222222:role/analysts",
			RoleName:      "analysts",
		},
		Tables: []*Table{
			{ID: "t1", DatasetID: dataset.ID, GlueDatabase: "sales", Name: "orders"},
		},
		Folders: []*StorageLocation{
			{ID: "f1", DatasetID: dataset.ID, AccountID: testSourceAccount, Region: testRegion, Bucket: "sales-bucket", Prefix: "orders"},
		},
	}
}

func newTestHarness(data *Data) *testHarness {
	h := &testHarness{
		data:        data,
		store:       newFakeStore(data),
		catalog:     newFakeCatalog(),
		invitations: &fakeInvitations{},
		objects:     newFakeObjectStore(),
		roles:       newFakeRoles(),
		keys:        newFakeKeys(),
		alarms:      &fakeAlarms{},
	}

	h.keys.keyIDs["alias/"+data.Dataset.KMSAlias] = "key-123"

	h.reconciler = NewReconciler(Dependencies{
		Store:       h.store,
		Catalog:     h.catalog,
		Invitations: h.invitations,
		ObjectStore: h.objects,
		RolePolicy:  h.roles,
		KeyPolicy:   h.keys,
		Dashboards:  &fakeDashboards{},
		Alarms:      h.alarms,
		Clock:       NewImmediateClock(),
	}, Options{
		DelegationRoleName: "dataplane-delegation",
	})

	return h
}
