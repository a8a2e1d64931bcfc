package server

import (
	"github.com/cyverse-de/echo-middleware/v2/redoc"
	"github.com/cyverse/compute-qms/internal/controllers"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	echolog "github.com/spirosoik/echo-logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
)

func InitRouter() *echo.Echo {
	log := log.WithFields(logrus.Fields{"context": "router"})

	// Create the web server.
	e := echo.New()

	// Set a custom logger.
	echoLogger := echolog.NewLoggerMiddleware(log)
	e.Logger = echoLogger

	// Add middleware.
	e.Use(otelecho.Middleware("compute-qms"))
	e.Use(echoLogger.Hook())
	e.Use(middleware.Recover())
	e.Use(redoc.Serve(redoc.Opts{Title: "CyVerse Compute Quota Management System"}))

	return e
}

func registerUserEndpoints(users *echo.Group, s *controllers.Server) {
	// Lists the quota records of all users.
	users.GET("", s.ListQuotas)

	// Gets, sets or deletes the quota record of a single user.
	users.GET("/:user_id/quota", s.GetUserQuota)
	users.PUT("/:user_id/quota", s.SetUserQuota)
	users.DELETE("/:user_id/quota", s.DeleteUserQuota)

	// Suspends or reinstates a user.
	users.PUT("/:user_id/suspended", s.SetUserSuspended)

	// Lists the dimensions in which the user's usage has reached the ceiling.
	users.GET("/:user_id/overages", s.GetUserOverages)

	// Admission checks. Nothing is reserved.
	users.POST("/:user_id/admission/vm", s.CheckVMQuota)
	users.POST("/:user_id/admission/container", s.CheckContainerQuota)

	// Token balances and the ledger.
	users.GET("/:user_id/tokens", s.GetTokenBalance)
	users.PUT("/:user_id/tokens", s.SetTokenBalance)
	users.POST("/:user_id/tokens/credits", s.AddTokens)
	users.POST("/:user_id/tokens/debits", s.RemoveTokens)
	users.GET("/:user_id/transactions", s.GetTokenTransactions)

	// Changes the user's current plan.
	users.PUT("/:user_id/plan", s.ChangePlan)

	// Requests more tokens.
	users.POST("/:user_id/token-requests", s.CreateTokenRequest)
}

func registerContractEndpoints(contracts *echo.Group, s *controllers.Server) {
	contracts.GET("", s.ListContracts)
	contracts.POST("", s.CreateContract)

	// Contracts that the sweep would act on.
	contracts.GET("/due", s.GetContractsDueForRefill)
	contracts.GET("/expired", s.GetExpiredContracts)

	contracts.GET("/:contract_id", s.GetContract)
	contracts.PUT("/:contract_id/status", s.UpdateContractStatus)
	contracts.POST("/:contract_id/refills", s.RecordRefill)
}

func registerTokenRequestEndpoints(requests *echo.Group, s *controllers.Server) {
	requests.GET("", s.GetPendingRequests)
	requests.GET("/:request_id", s.GetTokenRequest)
	requests.POST("/:request_id/approval", s.ApproveRequest)
	requests.POST("/:request_id/denial", s.DenyRequest)
}

func registerResourceEndpoints(resources, ownership *echo.Group, s *controllers.Server) {
	resources.GET("/:resource_type", s.ListResources)
	resources.POST("/:resource_type", s.CreateResource)
	resources.DELETE("/:resource_type/:resource_id", s.DeleteResource)

	ownership.GET("/:resource_type", s.ListOwnershipRecords)
	ownership.GET("/:resource_type/:resource_id", s.GetOwnershipRecord)
	ownership.PUT("/:resource_type/:resource_id", s.AddOwnershipRecord)
	ownership.DELETE("/:resource_type/:resource_id", s.RemoveOwnershipRecord)
}

func RegisterHandlers(s controllers.Server) {

	// The base URL acts as a health check endpoint.
	s.Router.GET("/", s.RootHandler)

	// Prometheus metrics.
	s.Router.GET("/metrics", echo.WrapHandler(s.Metrics.Handler()))

	// API version 1 endpoints.
	v1 := s.Router.Group("/v1")
	v1.GET("", s.V1RootHandler)

	plans := v1.Group("/plans")
	plans.GET("", s.GetAllPlans)
	plans.GET("/:plan_id", s.GetPlanByID)

	users := v1.Group("/users")
	registerUserEndpoints(users, &s)

	usernames := v1.Group("/usernames")
	usernames.GET("/:username/quota", s.GetUserQuotaByUsername)

	contracts := v1.Group("/contracts")
	registerContractEndpoints(contracts, &s)

	requests := v1.Group("/token-requests")
	registerTokenRequestEndpoints(requests, &s)

	registerResourceEndpoints(v1.Group("/resources"), v1.Group("/ownership"), &s)

	admin := v1.Group("/admin")
	admin.POST("/reconciliation", s.Reconcile)
	admin.POST("/contract-sweep", s.SweepContracts)
	admin.POST("/plan-expiry", s.ExpirePlans)
}
