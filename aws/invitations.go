package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ram"
	ramtypes "github.com/aws/aws-sdk-go-v2/service/ram/types"

	"github.com/dataplane-io/datashare/share"
)

// Invitations implements share.ResourceShareInvitations on RAM.
type Invitations struct {
	sessions *SessionProvider
}

func NewInvitations(sessions *SessionProvider) *Invitations {
	return &Invitations{sessions: sessions}
}

func (i *Invitations) ListPending(ctx context.Context, account string, region string) ([]share.Invitation, error) {
	cfg, err := i.sessions.Config(ctx, account, region)
	if err != nil {
		return nil, err
	}

	client := ram.NewFromConfig(cfg)
	paginator := ram.NewGetResourceShareInvitationsPaginator(client, &ram.GetResourceShareInvitationsInput{})

	var pending []share.Invitation

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing resource share invitations in account %s: %w", account, err)
		}

		for _, invitation := range page.ResourceShareInvitations {
			if invitation.Status != ramtypes.ResourceShareInvitationStatusPending {
				continue
			}

			pending = append(pending, share.Invitation{
				ID:       aws.ToString(invitation.ResourceShareInvitationArn),
				ShareArn: aws.ToString(invitation.ResourceShareArn),
			})
		}
	}

	return pending, nil
}

func (i *Invitations) Accept(ctx context.Context, account string, region string, invitationID string) error {
	cfg, err := i.sessions.Config(ctx, account, region)
	if err != nil {
		return err
	}

	client := ram.NewFromConfig(cfg)

	_, err = client.AcceptResourceShareInvitation(ctx, &ram.AcceptResourceShareInvitationInput{
		ResourceShareInvitationArn: aws.String(invitationID),
	})
	if err != nil {
		// Racing acceptors are fine, the invitation landed either way.
		var accepted *ramtypes.ResourceShareInvitationAlreadyAcceptedException
		if errors.As(err, &accepted) {
			return nil
		}

		return fmt.Errorf("accepting invitation %s: %w", invitationID, err)
	}

	return nil
}
