// Package api exposes accounts, events and the reservation engine over
// HTTP with chi.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"ms-reservation/internal/accounts"
	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/auth"
	"ms-reservation/internal/events"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/metrics"
	"ms-reservation/internal/models"
	"ms-reservation/internal/reservation"
	"ms-reservation/internal/tickets/qr"
)

type Deps struct {
	Accounts *accounts.Service
	Events   *events.Service
	Engine   *reservation.Engine
	Tokens   *auth.Tokens
	Tickets  *qr.Generator
	Metrics  *metrics.Metrics
	Logger   *logger.Logger
	// Ping reports whether the database is reachable for /healthz.
	Ping func(ctx context.Context) error
}

type Server struct {
	accounts *accounts.Service
	events   *events.Service
	engine   *reservation.Engine
	tokens   *auth.Tokens
	tickets  *qr.Generator
	metrics  *metrics.Metrics
	log      *logger.Logger
	ping     func(ctx context.Context) error
	validate *validator.Validate
}

func NewServer(d Deps) *Server {
	s := &Server{
		accounts: d.Accounts,
		events:   d.Events,
		engine:   d.Engine,
		tokens:   d.Tokens,
		tickets:  d.Tickets,
		metrics:  d.Metrics,
		log:      d.Logger,
		ping:     d.Ping,
		validate: validator.New(),
	}
	if s.log == nil {
		s.log = logger.Discard()
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.register)
		r.Post("/auth/login", s.login)

		r.Get("/events", s.listEvents)
		r.Get("/events/{id}", s.getEvent)
		r.Get("/events/{id}/seats", s.eventSeats)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(s.tokens))

			r.Get("/me", s.me)
			r.Patch("/me", s.updateMe)

			r.Get("/bookings/{code}", s.getBooking)
			r.Delete("/bookings/{code}", s.cancelBooking)
			r.Post("/bookings/{code}/payments", s.payBooking)
			r.Get("/bookings/{code}/qr", s.bookingQR)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(models.RoleCustomer))
				r.Post("/bookings", s.createBooking)
				r.Get("/me/bookings", s.myBookings)
			})

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(models.RoleAdmin))
				r.Post("/events", s.createEvent)
				r.Put("/events/{id}", s.updateEvent)
				r.Delete("/events/{id}", s.deleteEvent)
				r.Post("/events/{id}/seats", s.generateSeats)
				r.Get("/events/{id}/bookings", s.eventBookings)
				r.Get("/payments/{id}", s.getPayment)
				r.Post("/payments/{id}/refund", s.refundPayment)
				r.Post("/tickets/verify", s.verifyTicket)
				r.Delete("/users/{id}", s.deleteUser)
			})
		})
	})
	return r
}

// requestLogger logs and counts every request by its matched route.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(started)
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		s.log.LogAPI(r.Method, r.URL.Path, status, elapsed)
		s.metrics.ObserveRequest(r.Method, route, status, elapsed)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.ping != nil {
		if err := s.ping(r.Context()); err != nil {
			s.log.Error("API", fmt.Sprintf("health check failed: %v", err))
			writeJSON(w, http.StatusServiceUnavailable, ErrorResponse("database unreachable", string(apperrors.KindInternal)))
			return
		}
	}
	respond(w, http.StatusOK, "ok", nil)
}

// decode reads a JSON body into dst and runs its validate tags.
func (s *Server) decode(r *http.Request, op string, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperrors.Validation(op, "invalid request body: %v", err)
	}
	if err := s.validate.Struct(dst); err != nil {
		return apperrors.Validation(op, "%v", err)
	}
	return nil
}

func pathID(r *http.Request, op, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.Validation(op, "%s must be a positive integer, got %q", name, raw)
	}
	return id, nil
}
