// Package seed bootstraps demo rows for local development.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	customerdomain "github.com/smallbiznis/travelmate/internal/customer/domain"
	projectdomain "github.com/smallbiznis/travelmate/internal/project/domain"
	"gorm.io/gorm"
)

const (
	demoCustomerName = "Acme GmbH"
	demoProjectCode  = "ACME-CONSULTING"
	demoProjectName  = "Consulting Engagement"
)

// EnsureDemoData seeds a demo customer and project when they do not exist.
func EnsureDemoData(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		customer, err := ensureDemoCustomer(ctx, tx, node)
		if err != nil {
			return err
		}
		return ensureDemoProject(ctx, tx, node, customer.ID)
	})
}

func ensureDemoCustomer(ctx context.Context, tx *gorm.DB, node *snowflake.Node) (customerdomain.Customer, error) {
	var customer customerdomain.Customer
	err := tx.WithContext(ctx).
		Where("name = ?", demoCustomerName).
		First(&customer).Error
	if err == nil {
		return customer, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return customerdomain.Customer{}, err
	}

	now := time.Now().UTC()
	customer = customerdomain.Customer{
		ID:        node.Generate(),
		Name:      demoCustomerName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&customer).Error; err != nil {
		return customerdomain.Customer{}, err
	}
	return customer, nil
}

func ensureDemoProject(ctx context.Context, tx *gorm.DB, node *snowflake.Node, customerID snowflake.ID) error {
	var project projectdomain.Project
	err := tx.WithContext(ctx).
		Where("code = ?", demoProjectCode).
		First(&project).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	now := time.Now().UTC()
	project = projectdomain.Project{
		ID:         node.Generate(),
		CustomerID: customerID,
		Code:       demoProjectCode,
		Name:       demoProjectName,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return tx.WithContext(ctx).Create(&project).Error
}
