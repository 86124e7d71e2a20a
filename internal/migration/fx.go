package migration

import (
	"github.com/smallbiznis/travelmate/internal/config"
	customerdomain "github.com/smallbiznis/travelmate/internal/customer/domain"
	ownershipdomain "github.com/smallbiznis/travelmate/internal/ownership/domain"
	projectdomain "github.com/smallbiznis/travelmate/internal/project/domain"
	receiptdomain "github.com/smallbiznis/travelmate/internal/receipt/domain"
	"github.com/smallbiznis/travelmate/internal/seed"
	snapshotdomain "github.com/smallbiznis/travelmate/internal/snapshot/domain"
	tripdomain "github.com/smallbiznis/travelmate/internal/trip/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// sqlite has no golang-migrate driver wired; local development
			// relies on the model definitions instead.
			if err := conn.AutoMigrate(
				&customerdomain.Customer{},
				&projectdomain.Project{},
				&tripdomain.Trip{},
				&receiptdomain.Receipt{},
				&tripdomain.ExpenseItem{},
				&tripdomain.AllowanceCalculation{},
				&tripdomain.Reimbursement{},
				&ownershipdomain.Entry{},
				&snapshotdomain.Snapshot{},
			); err != nil {
				return err
			}
		}

		if cfg.SeedDemoData {
			return seed.EnsureDemoData(conn)
		}
		return nil
	}),
)
