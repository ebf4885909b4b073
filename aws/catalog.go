package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	gluetypes "github.com/aws/aws-sdk-go-v2/service/glue/types"
	"github.com/aws/aws-sdk-go-v2/service/lakeformation"
	lftypes "github.com/aws/aws-sdk-go-v2/service/lakeformation/types"

	"github.com/dataplane-io/datashare/share"
)

// Catalog implements share.CatalogPermissions on Lake Formation and Glue.
type Catalog struct {
	sessions *SessionProvider
}

func NewCatalog(sessions *SessionProvider) *Catalog {
	return &Catalog{sessions: sessions}
}

func (c *Catalog) Grant(ctx context.Context, account string, region string, principal string, resource share.CatalogResource, permissions []string, grantable []string) error {
	cfg, err := c.sessions.Config(ctx, account, region)
	if err != nil {
		return err
	}

	client := lakeformation.NewFromConfig(cfg)

	input := &lakeformation.GrantPermissionsInput{
		Principal:   &lftypes.DataLakePrincipal{DataLakePrincipalIdentifier: aws.String(principal)},
		Resource:    catalogResource(resource),
		Permissions: lakeFormationPermissions(permissions),
	}

	if len(grantable) > 0 {
		input.PermissionsWithGrantOption = lakeFormationPermissions(grantable)
	}

	if resource.CatalogID != "" {
		input.CatalogId = aws.String(resource.CatalogID)
	}

	err = withRetry(ctx, func() error {
		_, grantErr := client.GrantPermissions(ctx, input)
		return grantErr
	})
	if err != nil {
		return fmt.Errorf("granting %v to %s on %s.%s: %w", permissions, principal, resource.Database, resource.Table, err)
	}

	return nil
}

func (c *Catalog) BatchRevoke(ctx context.Context, account string, region string, catalogID string, entries []share.RevokeEntry) ([]share.RevokeFailure, error) {
	cfg, err := c.sessions.Config(ctx, account, region)
	if err != nil {
		return nil, err
	}

	client := lakeformation.NewFromConfig(cfg)

	batch := make([]lftypes.BatchPermissionsRequestEntry, 0, len(entries))
	for _, entry := range entries {
		requestEntry := lftypes.BatchPermissionsRequestEntry{
			Id:          aws.String(entry.ID),
			Principal:   &lftypes.DataLakePrincipal{DataLakePrincipalIdentifier: aws.String(entry.Principal)},
			Resource:    catalogResource(entry.Resource),
			Permissions: lakeFormationPermissions(entry.Permissions),
		}

		if len(entry.GrantOption) > 0 {
			requestEntry.PermissionsWithGrantOption = lakeFormationPermissions(entry.GrantOption)
		}

		batch = append(batch, requestEntry)
	}

	input := &lakeformation.BatchRevokePermissionsInput{Entries: batch}
	if catalogID != "" {
		input.CatalogId = aws.String(catalogID)
	}

	var out *lakeformation.BatchRevokePermissionsOutput

	err = withRetry(ctx, func() error {
		var revokeErr error
		out, revokeErr = client.BatchRevokePermissions(ctx, input)

		return revokeErr
	})
	if err != nil {
		return nil, fmt.Errorf("batch revoking %d entries: %w", len(entries), err)
	}

	failures := make([]share.RevokeFailure, 0, len(out.Failures))

	for _, failure := range out.Failures {
		entryID := ""
		if failure.RequestEntry != nil {
			entryID = aws.ToString(failure.RequestEntry.Id)
		}

		code, message := "", ""
		if failure.Error != nil {
			code = aws.ToString(failure.Error.ErrorCode)
			message = aws.ToString(failure.Error.ErrorMessage)
		}

		failures = append(failures, share.RevokeFailure{EntryID: entryID, ErrorCode: code, Message: message})
	}

	return failures, nil
}

func (c *Catalog) ListDatabaseObjects(ctx context.Context, account string, region string, database string) ([]string, error) {
	cfg, err := c.sessions.Config(ctx, account, region)
	if err != nil {
		return nil, err
	}

	client := glue.NewFromConfig(cfg)
	paginator := glue.NewGetTablesPaginator(client, &glue.GetTablesInput{DatabaseName: aws.String(database)})

	var names []string

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			var notFound *gluetypes.EntityNotFoundException
			if errors.As(err, &notFound) {
				return nil, nil
			}

			return nil, fmt.Errorf("listing tables of %s: %w", database, err)
		}

		for _, table := range page.TableList {
			names = append(names, aws.ToString(table.Name))
		}
	}

	return names, nil
}

func (c *Catalog) ObjectExists(ctx context.Context, account string, region string, database string, name string) (bool, error) {
	cfg, err := c.sessions.Config(ctx, account, region)
	if err != nil {
		return false, err
	}

	client := glue.NewFromConfig(cfg)

	_, err = client.GetTable(ctx, &glue.GetTableInput{
		DatabaseName: aws.String(database),
		Name:         aws.String(name),
	})
	if err != nil {
		var notFound *gluetypes.EntityNotFoundException
		if errors.As(err, &notFound) {
			return false, nil
		}

		return false, fmt.Errorf("describing table %s.%s: %w", database, name, err)
	}

	return true, nil
}

func (c *Catalog) BatchDeleteObjects(ctx context.Context, account string, region string, database string, names []string) error {
	if len(names) == 0 {
		return nil
	}

	cfg, err := c.sessions.Config(ctx, account, region)
	if err != nil {
		return err
	}

	client := glue.NewFromConfig(cfg)

	_, err = client.BatchDeleteTable(ctx, &glue.BatchDeleteTableInput{
		DatabaseName:   aws.String(database),
		TablesToDelete: names,
	})
	if err != nil {
		var notFound *gluetypes.EntityNotFoundException
		if errors.As(err, &notFound) {
			return nil
		}

		return fmt.Errorf("deleting %d tables from %s: %w", len(names), database, err)
	}

	return nil
}

// CreateShadowObject ensures the shadow database exists and creates a
// resource link in it pointing at the source table. Both creations
// tolerate the object already existing.
func (c *Catalog) CreateShadowObject(ctx context.Context, account string, region string, database string, name string, source share.CatalogObjectRef) error {
	cfg, err := c.sessions.Config(ctx, account, region)
	if err != nil {
		return err
	}

	client := glue.NewFromConfig(cfg)

	_, err = client.CreateDatabase(ctx, &glue.CreateDatabaseInput{
		DatabaseInput: &gluetypes.DatabaseInput{Name: aws.String(database)},
	})
	if err != nil && !alreadyExists(err) {
		return fmt.Errorf("creating database %s: %w", database, err)
	}

	_, err = client.CreateTable(ctx, &glue.CreateTableInput{
		DatabaseName: aws.String(database),
		TableInput: &gluetypes.TableInput{
			Name: aws.String(name),
			TargetTable: &gluetypes.TableIdentifier{
				CatalogId:    aws.String(source.CatalogID),
				DatabaseName: aws.String(source.Database),
				Name:         aws.String(source.Table),
			},
		},
	})
	if err != nil && !alreadyExists(err) {
		return fmt.Errorf("creating resource link %s.%s: %w", database, name, err)
	}

	return nil
}

func alreadyExists(err error) bool {
	var exists *gluetypes.AlreadyExistsException
	return errors.As(err, &exists)
}

func catalogResource(resource share.CatalogResource) *lftypes.Resource {
	catalogID := aws.String(resource.CatalogID)

	if resource.Table == "" {
		return &lftypes.Resource{
			Database: &lftypes.DatabaseResource{
				CatalogId: catalogID,
				Name:      aws.String(resource.Database),
			},
		}
	}

	if resource.WithColumns {
		return &lftypes.Resource{
			TableWithColumns: &lftypes.TableWithColumnsResource{
				CatalogId:      catalogID,
				DatabaseName:   aws.String(resource.Database),
				Name:           aws.String(resource.Table),
				ColumnWildcard: &lftypes.ColumnWildcard{},
			},
		}
	}

	return &lftypes.Resource{
		Table: &lftypes.TableResource{
			CatalogId:    catalogID,
			DatabaseName: aws.String(resource.Database),
			Name:         aws.String(resource.Table),
		},
	}
}

func lakeFormationPermissions(permissions []string) []lftypes.Permission {
	out := make([]lftypes.Permission, 0, len(permissions))
	for _, permission := range permissions {
		out = append(out, lftypes.Permission(permission))
	}

	return out
}
