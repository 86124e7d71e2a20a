package domain

import (
	"context"
	"errors"
)

type CreateCustomerRequest struct {
	Name        string
	ExternalRef string
}

type GetCustomerRequest struct {
	ID string
}

type Service interface {
	Create(context.Context, CreateCustomerRequest) (Customer, error)
	GetByID(context.Context, GetCustomerRequest) (Customer, error)
	List(context.Context) ([]Customer, error)
}

var (
	ErrInvalidName = errors.New("invalid_name")
	ErrInvalidID   = errors.New("invalid_id")
	ErrDuplicate   = errors.New("duplicate_name")
	ErrNotFound    = errors.New("not_found")
)
