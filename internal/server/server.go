// Package server exposes the HTTP API: trips, expenses, receipt ingestion
// and correction, validation reports, snapshots and export downloads.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/travelmate/internal/allowance"
	"github.com/smallbiznis/travelmate/internal/config"
	customerdomain "github.com/smallbiznis/travelmate/internal/customer/domain"
	"github.com/smallbiznis/travelmate/internal/metrics"
	projectdomain "github.com/smallbiznis/travelmate/internal/project/domain"
	receiptdomain "github.com/smallbiznis/travelmate/internal/receipt/domain"
	snapshotservice "github.com/smallbiznis/travelmate/internal/snapshot/service"
	tripdomain "github.com/smallbiznis/travelmate/internal/trip/domain"
	"github.com/smallbiznis/travelmate/internal/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(m *metrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware(m))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})))

	return r
}

func registerGin(m *metrics.Metrics) *gin.Engine {
	return NewEngine(m)
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	customerSvc   customerdomain.Service
	projectSvc    projectdomain.Service
	tripSvc       tripdomain.Service
	receiptSvc    receiptdomain.Service
	validationSvc *validation.Service
	snapshotSvc   *snapshotservice.Service
	allowanceSvc  *allowance.Service
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	CustomerSvc   customerdomain.Service
	ProjectSvc    projectdomain.Service
	TripSvc       tripdomain.Service
	ReceiptSvc    receiptdomain.Service
	ValidationSvc *validation.Service
	SnapshotSvc   *snapshotservice.Service
	AllowanceSvc  *allowance.Service
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		customerSvc:   p.CustomerSvc,
		projectSvc:    p.ProjectSvc,
		tripSvc:       p.TripSvc,
		receiptSvc:    p.ReceiptSvc,
		validationSvc: p.ValidationSvc,
		snapshotSvc:   p.SnapshotSvc,
		allowanceSvc:  p.AllowanceSvc,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	api := s.engine.Group("/api/v1")

	api.POST("/customers", s.CreateCustomer)
	api.GET("/customers", s.ListCustomers)
	api.GET("/customers/:id", s.GetCustomerByID)

	api.POST("/projects", s.CreateProject)
	api.GET("/projects", s.ListProjects)
	api.GET("/projects/:id", s.GetProjectByID)

	api.POST("/trips", s.CreateTrip)
	api.GET("/trips", s.ListTrips)
	api.GET("/trips/:id", s.GetTripByID)
	api.PATCH("/trips/:id/status", s.UpdateTripStatus)

	api.POST("/trips/:id/expenses", s.AddExpense)
	api.GET("/trips/:id/expenses", s.ListExpenses)
	api.PATCH("/expenses/:id", s.UpdateExpense)

	api.POST("/trips/:id/receipts", s.UploadReceipt)
	api.GET("/trips/:id/receipts", s.ListReceipts)
	api.GET("/receipts/:id", s.GetReceiptByID)
	api.POST("/receipts/:id/process", s.ProcessReceipt)
	api.POST("/receipts/:id/ocr", s.ApplyOCRUpdate)
	api.POST("/receipts/:id/corrections", s.ApplyManualCorrection)

	api.GET("/trips/:id/validation", s.ValidateTrip)
	api.POST("/trips/:id/allowance", s.ComputeAllowance)
	api.POST("/trips/:id/reimbursement", s.EnsureReimbursement)
	api.POST("/trips/:id/payments", s.RecordPayment)

	api.POST("/trips/:id/snapshots", s.SaveSnapshot)
	api.GET("/trips/:id/snapshots", s.ListSnapshots)
	api.GET("/snapshots/:id", s.GetSnapshot)
	api.GET("/snapshots/:id/export", s.DownloadExport)
}
