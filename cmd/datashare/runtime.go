package main

import (
	"context"
	"fmt"

	"github.com/dataplane-io/datashare/alarm"
	"github.com/dataplane-io/datashare/aws"
	"github.com/dataplane-io/datashare/share"
	"github.com/dataplane-io/datashare/store"
)

type options struct {
	metastorePath  string
	region         string
	delegationRole string
	alarmTopicArn  string
	dashboardGroup string
	logLevel       string
}

// runtime bundles the wired service graph of one command invocation.
type runtime struct {
	store      *store.Store
	reconciler *share.Reconciler
}

func newRuntime(ctx context.Context, opts *options) (*runtime, error) {
	st, err := store.Open(opts.metastorePath)
	if err != nil {
		return nil, fmt.Errorf("opening metastore %s: %w", opts.metastorePath, err)
	}

	sessions, err := aws.NewSessionProvider(ctx, opts.region, opts.delegationRole)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	var alarms share.Alarms

	if opts.alarmTopicArn != "" {
		alarms, err = alarm.New(ctx, opts.region, opts.alarmTopicArn)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
	}

	reconciler := share.NewReconciler(share.Dependencies{
		Store:       st,
		Catalog:     aws.NewCatalog(sessions),
		Invitations: aws.NewInvitations(sessions),
		ObjectStore: aws.NewObjectStore(sessions),
		RolePolicy:  aws.NewRolePolicies(sessions, opts.region),
		KeyPolicy:   aws.NewKeyPolicies(sessions),
		Dashboards:  aws.NewDashboards(sessions, opts.region, opts.dashboardGroup),
		Alarms:      alarms,
	}, share.Options{
		DelegationRoleName: opts.delegationRole,
	})

	return &runtime{store: st, reconciler: reconciler}, nil
}

func (r *runtime) Close() error {
	return r.store.Close()
}
