package email

import (
	"context"
	"fmt"

	"github.com/smallbiznis/recouply/internal/outreach/domain"
)

// Dispatcher delivers outreach drafts over email.
type Dispatcher struct {
	provider Provider
}

func NewDispatcher(provider Provider) *Dispatcher {
	return &Dispatcher{provider: provider}
}

func (d *Dispatcher) Dispatch(ctx context.Context, req domain.DispatchRequest) error {
	if req.Channel != domain.ChannelEmail {
		return fmt.Errorf("email: unsupported channel %q", req.Channel)
	}
	return d.provider.Send(ctx, []string{req.Recipient}, req.Subject, req.Body)
}
