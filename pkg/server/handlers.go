package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dsbridge/dsbridge/pkg/auth"
	"github.com/dsbridge/dsbridge/pkg/synology"
)

const administratorsGroup = "administrators"

type loginResponse struct {
	Success  bool   `json:"success"`
	Username string `json:"username,omitempty"`
}

type userResponse struct {
	Username string   `json:"username"`
	UID      int      `json:"uid"`
	Groups   []string `json:"groups"`
	GIDs     []int    `json:"gids"`
	Admin    bool     `json:"admin"`
}

func newUserResponse(u *synology.User) userResponse {
	return userResponse{
		Username: u.Name,
		UID:      u.UID,
		Groups:   u.GroupNames,
		GIDs:     u.GroupIDs,
		Admin:    u.IsAdministrator(),
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	username := strings.TrimSpace(r.PostForm.Get("username"))
	password := r.PostForm.Get("password")
	if username == "" || password == "" {
		http.Error(w, "username and password are required", http.StatusBadRequest)
		return
	}

	sess := synology.HTTPSession(w, r)
	ok, err := s.bridge.Login(r.Context(), sess, username, password, s.cfg.RelayHeaders)
	if err != nil {
		s.logger.Error("login failed", slog.String("username", username), slog.String("error", err.Error()))
		http.Error(w, "login failed", http.StatusBadGateway)
		return
	}
	if !ok {
		s.writeJSON(w, http.StatusUnauthorized, loginResponse{Success: false})
		return
	}
	s.writeJSON(w, http.StatusOK, loginResponse{Success: true, Username: username})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := synology.HTTPSession(w, r)
	if err := s.bridge.Logout(r.Context(), sess, s.cfg.RelayHeaders); err != nil {
		s.logger.Error("logout failed", slog.String("error", err.Error()))
		http.Error(w, "logout failed", http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWhoami(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	if id == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	s.writeUser(w, r, id.Subject)
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	name := r.PathValue("name")
	if s.cfg.RequireAdmin && id.Subject != name && !id.InGroup(administratorsGroup) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	s.writeUser(w, r, name)
}

func (s *Server) writeUser(w http.ResponseWriter, r *http.Request, name string) {
	u, err := s.bridge.Lookup(r.Context(), name)
	if err != nil {
		s.logger.Error("user lookup failed", slog.String("username", name), slog.String("error", err.Error()))
		http.Error(w, "user lookup failed", http.StatusBadGateway)
		return
	}
	if u == nil {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, newUserResponse(u))
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write response", slog.String("error", err.Error()))
	}
}
