// @title           Facility Services API
// @version         1.0
// @description     API for recurring facility-service contracts: customers file service requests, admins approve them into contracts, and the system schedules visits and payment obligations automatically.
// @BasePath        /api
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in              header
// @name            Authorization
// @description     Format: Bearer <token>
package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"

	"github.com/aldoetobex/facility-services-backend/internal/auth"
	"github.com/aldoetobex/facility-services-backend/internal/contracts"
	"github.com/aldoetobex/facility-services-backend/internal/documents"
	"github.com/aldoetobex/facility-services-backend/internal/notify"
	"github.com/aldoetobex/facility-services-backend/internal/payments"
	"github.com/aldoetobex/facility-services-backend/internal/requests"
	"github.com/aldoetobex/facility-services-backend/internal/storage"
	"github.com/aldoetobex/facility-services-backend/internal/visits"
	"github.com/aldoetobex/facility-services-backend/pkg/config"
	"github.com/aldoetobex/facility-services-backend/pkg/database"
	"github.com/aldoetobex/facility-services-backend/pkg/models"
)

func main() {
	_ = godotenv.Load()

	db := database.Init()
	if err := database.Migrate(db); err != nil {
		log.Fatal("migration failed:", err)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: auth.ErrorHandler,
	})

	app.Get("/health", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"status": "ok"}) })

	api := app.Group("/api")

	// Shared collaborators
	sb := storage.NewSupabase() // SUPABASE_URL / SUPABASE_SERVICE_KEY / SUPABASE_BUCKET
	mailer := notify.NewMailer()
	docs := documents.NewRenderer(sb)

	admin := string(models.RoleAdmin)
	client := string(models.RoleClient)
	staff := string(models.RoleStaff)

	// Auth
	authH := auth.NewHandler(db)
	api.Post("/signup", authH.Signup)
	api.Post("/login", authH.Login)
	api.Get("/me", auth.RequireAuth(), authH.Me)

	// Service requests
	reqH := requests.NewHandler(db)
	approveH := requests.NewApprovalWorkflow(db, mailer, docs)
	api.Post("/requests", auth.RequireAuth(), auth.RequireRole(client), reqH.Create)
	api.Get("/requests", auth.RequireAuth(), auth.RequireRole(client), reqH.ListMine)
	api.Get("/requests/pending", auth.RequireAuth(), auth.RequireAnyRole(admin, staff), reqH.Pending)
	api.Get("/requests/:id", auth.RequireAuth(), reqH.Get)
	api.Post("/requests/:id/approve", auth.RequireAuth(), auth.RequireRole(admin), approveH.Approve)
	api.Post("/requests/:id/cancel", auth.RequireAuth(), reqH.Cancel)
	api.Post("/requests/:id/complete", auth.RequireAuth(), auth.RequireAnyRole(admin, staff), reqH.Complete)

	// Contracts
	ctH := contracts.NewHandler(db, docs)
	api.Get("/contracts", auth.RequireAuth(), ctH.List)
	api.Get("/contracts/upcoming-payments", auth.RequireAuth(), auth.RequireRole(admin), ctH.UpcomingPayments)
	api.Get("/contracts/overdue", auth.RequireAuth(), auth.RequireRole(admin), ctH.Overdue)
	api.Get("/contracts/expiring", auth.RequireAuth(), auth.RequireRole(admin), ctH.Expiring)
	api.Get("/contracts/:id", auth.RequireAuth(), ctH.Get)
	api.Get("/contracts/:id/history", auth.RequireAuth(), ctH.History)
	api.Get("/contracts/:id/document", auth.RequireAuth(), ctH.Document)
	api.Post("/contracts/:id/activate", auth.RequireAuth(), auth.RequireRole(admin), ctH.Activate)
	api.Post("/contracts/:id/pause", auth.RequireAuth(), auth.RequireRole(admin), ctH.Pause)
	api.Post("/contracts/:id/cancel", auth.RequireAuth(), auth.RequireRole(admin), ctH.Cancel)
	api.Post("/contracts/:id/complete", auth.RequireAuth(), auth.RequireRole(admin), ctH.Complete)

	// Visits
	visitH := visits.NewHandler(db)
	api.Get("/contracts/:id/visits", auth.RequireAuth(), visitH.ListForContract)
	api.Post("/visits/:id/complete", auth.RequireAuth(), auth.RequireAnyRole(admin, staff), visitH.Complete)
	api.Post("/visits/:id/skip", auth.RequireAuth(), auth.RequireAnyRole(admin, staff), visitH.Skip)

	// Payments
	payH := payments.NewHandler(db, mailer)
	api.Get("/payments", auth.RequireAuth(), payH.List)
	api.Get("/payments/:id", auth.RequireAuth(), payH.Get)

	// Only in dev mode with mock payment provider
	if os.Getenv("APP_ENV") == "dev" && os.Getenv("PAYMENT_PROVIDER") == "mock" {
		api.Post("/payments/:id/mock-complete", payH.MockComplete) // Protected by X-Dev-Secret
		api.Post("/payments/:id/mock-fail", payH.MockFail)         // Protected by X-Dev-Secret
	}

	// Background workers
	sched := config.LoadSchedule()
	visitWorker := visits.NewScheduler(db, sched)
	visitWorker.Start()
	monitor := payments.NewMonitor(db, sched, mailer)
	monitor.Start()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		visitWorker.Stop()
		monitor.Stop()
		_ = app.Shutdown()
	}()

	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}
	log.Println("Server running on :" + port)
	if err := app.Listen(":" + port); err != nil {
		log.Fatal(err)
	}
}
