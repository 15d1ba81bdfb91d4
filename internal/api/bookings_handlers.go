package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/auth"
	"ms-reservation/internal/models"
)

func (s *Server) createBooking(w http.ResponseWriter, r *http.Request) {
	const op = "api.createBooking"
	var req createBookingRequest
	if err := s.decode(r, op, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	b, err := s.engine.CreateBooking(r.Context(), auth.UserID(r.Context()), req.EventID, req.Quantity)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, "booking created", b)
}

func (s *Server) myBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := s.engine.BookingsOf(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "bookings", bookings)
}

// visibleBooking loads the booking named in the path. Customers only see
// their own; anyone else's booking is reported as missing.
func (s *Server) visibleBooking(r *http.Request, op string) (*models.Booking, error) {
	code := chi.URLParam(r, "code")
	b, err := s.engine.Booking(r.Context(), code)
	if err != nil {
		return nil, err
	}
	id, _ := auth.FromContext(r.Context())
	if id.Role != models.RoleAdmin && b.CustomerID != id.UserID {
		return nil, apperrors.NotFound(op, "booking %s not found", code)
	}
	return b, nil
}

func (s *Server) getBooking(w http.ResponseWriter, r *http.Request) {
	b, err := s.visibleBooking(r, "api.getBooking")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	view := bookingView{Booking: b}
	if b.Status != models.BookingPending {
		p, err := s.engine.PaymentFor(r.Context(), b.ID)
		switch {
		case err == nil:
			view.Payment = p
		case apperrors.KindOf(err) != apperrors.KindNotFound:
			s.respondError(w, r, err)
			return
		}
	}
	respond(w, http.StatusOK, "booking", view)
}

func (s *Server) cancelBooking(w http.ResponseWriter, r *http.Request) {
	b, err := s.visibleBooking(r, "api.cancelBooking")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	b, err = s.engine.Cancel(r.Context(), b.Code)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "booking cancelled", b)
}

func (s *Server) payBooking(w http.ResponseWriter, r *http.Request) {
	const op = "api.payBooking"
	b, err := s.visibleBooking(r, op)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var req payRequest
	if err := s.decode(r, op, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	method, err := models.ParsePaymentMethod(req.Method)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	p, b, err := s.engine.Pay(r.Context(), b.Code, req.Amount, method)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, "payment recorded", paymentResult{Payment: p, Booking: b})
}

func (s *Server) bookingQR(w http.ResponseWriter, r *http.Request) {
	b, err := s.visibleBooking(r, "api.bookingQR")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	png, err := s.tickets.PNG(b)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", "inline; filename=\""+b.Code+".png\"")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (s *Server) getPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "api.getPayment", "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	p, err := s.engine.Payment(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "payment", p)
}

func (s *Server) refundPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "api.refundPayment", "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	p, b, err := s.engine.Refund(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "payment refunded", paymentResult{Payment: p, Booking: b})
}

// verifyTicket checks a scanned QR token and that its booking still stands.
func (s *Server) verifyTicket(w http.ResponseWriter, r *http.Request) {
	const op = "api.verifyTicket"
	var req verifyTicketRequest
	if err := s.decode(r, op, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	ticket, err := s.tickets.Open(req.Token)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	b, err := s.engine.Booking(r.Context(), ticket.Code)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if b.Status != models.BookingConfirmed {
		s.respondError(w, r, apperrors.InvalidState(op, "booking %s is %s", b.Code, b.Status))
		return
	}
	respond(w, http.StatusOK, "ticket valid", ticket)
}
