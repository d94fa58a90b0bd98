package domain

import (
	"context"
	"errors"
)

type CreateDebtorRequest struct {
	Name               string
	CompanyName        string
	Email              string
	ExternalCustomerID string
}

type Service interface {
	Create(context.Context, CreateDebtorRequest) (Debtor, error)
	List(context.Context) ([]Debtor, error)
	SetOutreachPaused(ctx context.Context, id string, paused bool) (Debtor, error)
}

var (
	ErrInvalidAccount = errors.New("invalid_account")
	ErrInvalidName    = errors.New("invalid_name")
	ErrInvalidID      = errors.New("invalid_id")
	ErrNotFound       = errors.New("debtor_not_found")
)
