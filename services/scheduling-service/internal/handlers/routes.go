package handlers

import (
	"net/http"

	"github.com/workgate/agenda/libs/httpx"
)

// Register mounts the API. public guards the unauthenticated routes (rate
// limiting); owner guards the tenant routes (token and subscription).
func Register(mux *http.ServeMux, pub *PublicHandler, own *OwnerHandler, public, owner httpx.Middleware) {
	wrap := func(h http.Handler, m httpx.Middleware) http.Handler {
		return httpx.Chain(h, m)
	}

	mux.Handle("/api/v1/public/slots", wrap(httpx.MethodHandlers{http.MethodGet: pub.Slots}, public))
	mux.Handle("/api/v1/public/bookings", wrap(httpx.MethodHandlers{http.MethodPost: pub.Book}, public))
	mux.Handle("/api/v1/public/profile", wrap(httpx.MethodHandlers{http.MethodGet: pub.Profile}, public))

	mux.Handle("/api/v1/appointments", wrap(httpx.MethodHandlers{http.MethodGet: own.ListAppointments}, owner))
	mux.Handle("/api/v1/appointments/status", wrap(httpx.MethodHandlers{http.MethodPost: own.UpdateStatus}, owner))
	mux.Handle("/api/v1/work-hours", wrap(httpx.MethodHandlers{
		http.MethodGet: own.GetWorkHours,
		http.MethodPut: own.PutWorkHours,
	}, owner))
	mux.Handle("/api/v1/push-token", wrap(httpx.MethodHandlers{http.MethodPut: own.PutPushToken}, owner))
	mux.Handle("/api/v1/reports/weekly", wrap(httpx.MethodHandlers{http.MethodGet: own.WeeklyReport}, owner))
}
