package domain

import (
	"context"
	"errors"
)

type CreateProjectRequest struct {
	CustomerID string
	Code       string
	Name       string
	Active     *bool
}

type GetProjectRequest struct {
	ID string
}

type Service interface {
	Create(context.Context, CreateProjectRequest) (Project, error)
	GetByID(context.Context, GetProjectRequest) (Project, error)
	ListByCustomer(ctx context.Context, customerID string) ([]Project, error)
}

var (
	ErrInvalidCustomer = errors.New("invalid_customer")
	ErrInvalidCode     = errors.New("invalid_code")
	ErrInvalidName     = errors.New("invalid_name")
	ErrInvalidID       = errors.New("invalid_id")
	ErrDuplicateCode   = errors.New("duplicate_code")
	ErrNotFound        = errors.New("not_found")
)
