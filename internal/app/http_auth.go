package app

import (
	"net/http"
)

func sessionJSON(session Session) map[string]any {
	return map[string]any{
		"accessToken":  session.Token,
		"refreshToken": session.RefreshToken,
		"expiresAt":    session.ExpiresAt.Unix(),
	}
}

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, "register", err)
		return
	}
	user, err := s.service.Register(r.Context(), body.Email, body.Name, body.Password)
	if err != nil {
		s.fail(w, r, "register", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "User registered successfully",
		"user":    userJSON(user),
	})
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, "login", err)
		return
	}
	session, user, err := s.service.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		s.fail(w, r, "login", err)
		return
	}
	payload := sessionJSON(session)
	payload["message"] = "Login successful"
	payload["user"] = userJSON(user)
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, "refresh", err)
		return
	}
	session, err := s.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		s.fail(w, r, "refresh", err)
		return
	}
	writeJSON(w, http.StatusOK, sessionJSON(session))
}

// handleLogout always succeeds; an unknown refresh token is already logged out.
func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	session := s.optionalSession(r)
	var body struct {
		RefreshToken string `json:"refreshToken"`
		All          bool   `json:"all"`
	}
	_ = decodeBody(r, &body)
	if err := s.service.Logout(r.Context(), session, body.RefreshToken, body.All); err != nil {
		s.fail(w, r, "logout", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Logged out successfully"})
}

func (s *HTTPServer) handleMe(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	user, err := s.service.Me(r.Context(), session.UserID)
	if err != nil {
		s.fail(w, r, "me", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": userJSON(user)})
}

func (s *HTTPServer) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	var body ProfileInput
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, "update profile", err)
		return
	}
	user, err := s.service.UpdateProfile(r.Context(), session.UserID, body)
	if err != nil {
		s.fail(w, r, "update profile", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": userJSON(user)})
}
