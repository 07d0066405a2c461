package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/stanstork/safeme-sync/internal/authz"
	"github.com/stanstork/safeme-sync/internal/handlers"
	"github.com/stanstork/safeme-sync/internal/middleware"
)

type Handlers struct {
	Alerts        *handlers.AlertHandler
	Sync          *handlers.SyncHandler
	Contacts      *handlers.ContactHandler
	PushTokens    *handlers.PushTokenHandler
	Notifications *handlers.NotificationHandler
}

// NewRouter sets up the API routes
func NewRouter(hs Handlers, jwtSecret string, logger zerolog.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.LoggingMiddleware(logger))

	router.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(authz.JWTMiddleware(jwtSecret))

	api.HandleFunc("/alerts", hs.Alerts.Create).Methods(http.MethodPost)
	api.HandleFunc("/alerts", hs.Alerts.List).Methods(http.MethodGet)
	api.HandleFunc("/alerts/pending", hs.Alerts.ListPending).Methods(http.MethodGet)
	api.HandleFunc("/alerts/pending/count", hs.Alerts.CountPending).Methods(http.MethodGet)
	api.HandleFunc("/alerts/history", hs.Alerts.History).Methods(http.MethodGet)
	api.HandleFunc("/alerts/{id:[0-9]+}", hs.Alerts.Delete).Methods(http.MethodDelete)

	api.HandleFunc("/sync", hs.Sync.SyncNow).Methods(http.MethodPost)
	api.HandleFunc("/connectivity", hs.Sync.ConnectivityChanged).Methods(http.MethodPost)
	api.HandleFunc("/connectivity", hs.Sync.Connectivity).Methods(http.MethodGet)

	api.HandleFunc("/contacts", hs.Contacts.List).Methods(http.MethodGet)
	api.HandleFunc("/contacts", hs.Contacts.Create).Methods(http.MethodPost)
	api.HandleFunc("/contacts/{id}", hs.Contacts.Delete).Methods(http.MethodDelete)

	api.HandleFunc("/push-token", hs.PushTokens.Set).Methods(http.MethodPut)
	api.HandleFunc("/push-token", hs.PushTokens.Delete).Methods(http.MethodDelete)

	api.HandleFunc("/notifications", hs.Notifications.List).Methods(http.MethodGet)
	api.HandleFunc("/notifications/unread", hs.Notifications.UnreadCounts).Methods(http.MethodGet)
	api.HandleFunc("/notifications/{notificationID}/read", hs.Notifications.MarkRead).Methods(http.MethodPatch)

	return router
}
