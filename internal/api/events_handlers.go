package api

import (
	"net/http"

	"ms-reservation/internal/auth"
	"ms-reservation/internal/events"
)

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	evs, err := s.events.List(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "events", evs)
}

func (s *Server) getEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "api.getEvent", "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	ev, err := s.events.Get(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	avail, err := s.events.Availability(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "event", eventView{Event: ev, Free: avail.Free, Held: avail.Held})
}

func (s *Server) eventSeats(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "api.eventSeats", "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	seats, err := s.events.Seats(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "seats", seats)
}

func (s *Server) createEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.createEvent"
	var req createEventRequest
	if err := s.decode(r, op, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	ev, err := s.events.Create(r.Context(), auth.UserID(r.Context()), events.Draft{
		Name:        req.Name,
		Description: req.Description,
		Date:        req.Date,
		Venue:       req.Venue,
		Capacity:    req.Capacity,
		TicketPrice: req.TicketPrice,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, "event created", ev)
}

func (s *Server) updateEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.updateEvent"
	id, err := pathID(r, op, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var req updateEventRequest
	if err := s.decode(r, op, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	ev, err := s.events.Update(r.Context(), id, events.Changes{
		Name:        req.Name,
		Description: req.Description,
		Date:        req.Date,
		Venue:       req.Venue,
		TicketPrice: req.TicketPrice,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "event updated", ev)
}

func (s *Server) deleteEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "api.deleteEvent", "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.events.Delete(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "event deleted", nil)
}

func (s *Server) generateSeats(w http.ResponseWriter, r *http.Request) {
	const op = "api.generateSeats"
	id, err := pathID(r, op, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var req generateSeatsRequest
	if err := s.decode(r, op, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	seats, err := s.engine.GenerateSeats(r.Context(), id, req.Count)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, "seats generated", seats)
}

func (s *Server) eventBookings(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "api.eventBookings", "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if _, err := s.events.Get(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	bookings, err := s.engine.EventBookings(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "bookings", bookings)
}
