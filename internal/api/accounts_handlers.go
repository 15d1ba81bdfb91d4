package api

import (
	"net/http"

	"ms-reservation/internal/accounts"
	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/auth"
	"ms-reservation/internal/models"
)

// register creates a Customer. Creating an Admin requires an Admin token.
func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	const op = "api.register"
	var req registerRequest
	if err := s.decode(r, op, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if req.Role == "" {
		req.Role = models.RoleCustomer.String()
	}
	if req.Role == models.RoleAdmin.String() && !s.callerIsAdmin(r) {
		writeJSON(w, http.StatusForbidden, ErrorResponse("only admins can register admins", "FORBIDDEN"))
		return
	}

	u, err := s.accounts.Register(r.Context(), accounts.Registration{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
		Phone:    req.Phone,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, "user registered", u)
}

func (s *Server) callerIsAdmin(r *http.Request) bool {
	raw, err := auth.ExtractTokenFromRequest(r)
	if err != nil {
		return false
	}
	id, err := s.tokens.Verify(raw)
	return err == nil && id.Role == models.RoleAdmin
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	const op = "api.login"
	var req loginRequest
	if err := s.decode(r, op, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	u, err := s.accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		switch apperrors.KindOf(err) {
		case apperrors.KindNotFound, apperrors.KindValidation:
			writeJSON(w, http.StatusUnauthorized, ErrorResponse("invalid email or password", "UNAUTHORIZED"))
		default:
			s.respondError(w, r, err)
		}
		return
	}

	token, err := s.tokens.Issue(u)
	if err != nil {
		s.respondError(w, r, apperrors.Internal(op, err))
		return
	}
	s.log.LogSecurity("LOGIN", "user "+u.Email+" signed in")
	respond(w, http.StatusOK, "login successful", loginResponse{Token: token, User: u})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	u, err := s.accounts.Get(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "profile", u)
}

func (s *Server) updateMe(w http.ResponseWriter, r *http.Request) {
	const op = "api.updateMe"
	var req updateMeRequest
	if err := s.decode(r, op, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	u, err := s.accounts.Update(r.Context(), auth.UserID(r.Context()), accounts.Update{
		Name:     req.Name,
		Phone:    req.Phone,
		Password: req.Password,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "profile updated", u)
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "api.deleteUser", "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.accounts.Delete(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "user deleted", nil)
}
