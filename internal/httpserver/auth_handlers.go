package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/salescope/salescope/internal/auth"
	"github.com/salescope/salescope/internal/model"
	"github.com/salescope/salescope/internal/warehouse"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	user, err := s.users.FindUserByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, warehouse.ErrUserNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid username or password")
			return
		}
		s.log.Error().Err(err).Msg("login lookup failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}
	token, _, err := s.auth.IssueToken(*user)
	if err != nil {
		s.log.Error().Err(err).Msg("token issuance failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := s.users.TouchLastLogin(r.Context(), user.ID); err != nil {
		s.log.Warn().Err(err).Int64("user", user.ID).Msg("failed to record login time")
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: *user})
}

type registerRequest struct {
	Username string     `json:"username"`
	Email    string     `json:"email"`
	Password string     `json:"password"`
	FullName string     `json:"fullName"`
	Role     model.Role `json:"role"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(r)
	if claims.Role != model.RoleAdmin {
		writeError(w, http.StatusForbidden, "only administrators can register new users")
		return
	}
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username, email and password are required")
		return
	}
	switch req.Role {
	case "":
		req.Role = model.RoleViewer
	case model.RoleAdmin, model.RoleAnalyst, model.RoleViewer:
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown role %q", req.Role))
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.log.Error().Err(err).Msg("password hashing failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	user, err := s.users.InsertUser(r.Context(), req.Username, req.Email, hash, req.FullName, req.Role)
	if err != nil {
		if errors.Is(err, warehouse.ErrDuplicateUser) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.log.Error().Err(err).Msg("user insert failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(r)
	user, err := s.users.FindUserByID(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, warehouse.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		s.log.Error().Err(err).Msg("profile lookup failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(r)
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CurrentPassword == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "current password and new password are required")
		return
	}
	user, err := s.users.FindUserByID(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.CurrentPassword) {
		writeError(w, http.StatusUnauthorized, "invalid current password")
		return
	}
	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		s.log.Error().Err(err).Msg("password hashing failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := s.users.UpdatePassword(r.Context(), claims.UserID, hash); err != nil {
		s.log.Error().Err(err).Msg("password update failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "password changed successfully"})
}
