package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/susu3304/tablesplit/internal/config"
	"github.com/susu3304/tablesplit/internal/events"
	"github.com/susu3304/tablesplit/internal/payments"
	"github.com/susu3304/tablesplit/internal/split"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"golang.org/x/oauth2"
)

type API struct {
	router      *mux.Router
	svc         *split.Service
	dir         split.Directory
	gateway     payments.Gateway
	broker      *events.Broker
	config      *config.Config
	oauthConfig *oauth2.Config
	jwtSecret   []byte
	validate    *validator.Validate
}

func New(cfg *config.Config, svc *split.Service, dir split.Directory, gateway payments.Gateway, broker *events.Broker) *API {
	if gateway == nil {
		gateway = payments.Manual{}
	}
	if broker == nil {
		broker = events.NewBroker()
	}
	api := &API{
		router:    mux.NewRouter(),
		svc:       svc,
		dir:       dir,
		gateway:   gateway,
		broker:    broker,
		config:    cfg,
		jwtSecret: []byte(cfg.JWTSecret),
		validate:  validator.New(),
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.DiscordClientID,
			ClientSecret: cfg.DiscordClientSecret,
			RedirectURL:  cfg.DiscordRedirectURI,
			Scopes:       []string{"identify"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://discord.com/api/oauth2/authorize",
				TokenURL: "https://discord.com/api/oauth2/token",
			},
		},
	}

	api.setupRoutes()
	return api
}

func (a *API) setupRoutes() {
	// Auth endpoints
	a.router.HandleFunc("/api/auth/login", a.handleLogin).Methods("GET")
	a.router.HandleFunc("/api/auth/callback", a.handleCallback).Methods("GET")
	a.router.HandleFunc("/api/auth/logout", a.handleLogout).Methods("POST")
	a.router.HandleFunc("/auth/callback", a.handleAuthCallback).Methods("GET")

	// Gateway webhook
	a.router.HandleFunc("/api/payments/notify", a.handlePaymentNotify).Methods("POST")

	// Guest page behind the share link
	a.router.HandleFunc("/split/{token}", a.handleWebInterface).Methods("GET")

	// Guest endpoints
	guest := a.router.PathPrefix("/api").Subrouter()
	guest.Use(a.rateLimit())

	guest.HandleFunc("/sessions", a.handleOpenSession).Methods("POST")
	guest.HandleFunc("/sessions/{id}", a.handleGetSession).Methods("GET")
	guest.HandleFunc("/share/{token}", a.handleResolveShare).Methods("GET")
	guest.HandleFunc("/sessions/{id}/share-link", a.handleShareLink).Methods("GET")
	guest.HandleFunc("/sessions/{id}/share-link/qr", a.handleShareQR).Methods("GET")
	guest.HandleFunc("/restaurants/{id}/menu", a.handleMenu).Methods("GET")
	guest.HandleFunc("/sessions/{id}/orders", a.handleListOrders).Methods("GET")
	guest.HandleFunc("/sessions/{id}/orders", a.handlePlaceOrder).Methods("POST")
	guest.HandleFunc("/sessions/{id}/bill", a.handleBill).Methods("GET")
	guest.HandleFunc("/sessions/{id}/payment-status", a.handlePaymentStatus).Methods("GET")
	guest.HandleFunc("/sessions/{id}/divisions", a.handleProposeDivision).Methods("POST")
	guest.HandleFunc("/sessions/{id}/close", a.handleCloseIfComplete).Methods("POST")
	guest.HandleFunc("/sessions/{id}/ws", a.handleStatusSocket).Methods("GET")

	// Protected endpoints
	if len(a.jwtSecret) == 0 {
		log.Println("api: JWT_SECRET not set, staff endpoints disabled")
		return
	}
	protected := a.router.PathPrefix("/api").Subrouter()
	protected.Use(a.authMiddleware)

	protected.HandleFunc("/user/restaurants", a.handleUserRestaurants).Methods("GET")
	protected.HandleFunc("/divisions/{id}/confirm", a.handleConfirmDivision).Methods("POST")
	protected.HandleFunc("/line-items/{id}/status", a.handleLineItemStatus).Methods("PUT")
	protected.HandleFunc("/sessions/{id}/end", a.handleEndSession).Methods("POST")
	protected.HandleFunc("/sessions/{id}/export.xlsx", a.handleExport).Methods("GET")
}

// rateLimit limits guest traffic per client IP.
func (a *API) rateLimit() mux.MiddlewareFunc {
	rate := limiter.Rate{
		Period: 1 * time.Minute,
		Limit:  a.config.RateLimitPerMinute,
	}
	instance := limiter.New(memory.NewStore(), rate)
	return stdlib.NewMiddleware(instance).Handler
}

// Handler is the router wrapped with CORS.
func (a *API) Handler() http.Handler {
	// Guests open the share link from any origin; staff send a bearer token,
	// so credentials stay off.
	corsOptions := cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	}
	return cors.New(corsOptions).Handler(a.router)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (a *API) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.config.WebBind,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("API server listening on http://%s", a.config.WebBind)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
