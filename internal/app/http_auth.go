package app

import (
	"net/http"
)

const authPrefix = "/api/auth/"

type credentialsBody struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type tokenBody struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// handleAuth serves the email/password routes. None of them need a session
// and all of them are POST.
func (s *HTTPServer) handleAuth(w http.ResponseWriter, r *http.Request) {
	var handler func(http.ResponseWriter, *http.Request)
	switch r.URL.Path[len(authPrefix):] {
	case "signup":
		handler = s.authSignUp
	case "signin":
		handler = s.authSignIn
	case "verify-email":
		handler = s.authVerifyEmail
	case "reset-password/request":
		handler = s.authRequestReset
	case "reset-password":
		handler = s.authResetPassword
	default:
		writeError(w, http.StatusNotFound, CodeNotFound, "Route not found", nil)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	handler(w, r)
}

func (s *HTTPServer) authSignUp(w http.ResponseWriter, r *http.Request) {
	var body credentialsBody
	if !readJSON(w, r, &body) {
		return
	}
	result, err := s.service.SignUp(r.Context(), body.Email, body.Password, body.DisplayName)
	if err != nil {
		writeMappedError(w, err)
		return
	}

	response := map[string]any{
		"userId":  result.AccountID,
		"message": "Check your inbox to verify your email",
	}
	// Without a working mailer the token is handed back so the flow can finish.
	if !result.EmailSent {
		response["devVerificationToken"] = result.VerificationToken
		response["message"] = "Account created. Verify your email to continue."
	}
	writeJSON(w, http.StatusCreated, response)
}

func (s *HTTPServer) authSignIn(w http.ResponseWriter, r *http.Request) {
	var body credentialsBody
	if !readJSON(w, r, &body) {
		return
	}
	current, err := s.service.SignIn(r.Context(), body.Email, body.Password)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(current))
}

func (s *HTTPServer) authVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var body tokenBody
	if !readJSON(w, r, &body) {
		return
	}
	if err := s.service.VerifyEmail(r.Context(), body.Token); err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Email verified"})
}

func (s *HTTPServer) authRequestReset(w http.ResponseWriter, r *http.Request) {
	var body credentialsBody
	if !readJSON(w, r, &body) {
		return
	}
	token, err := s.service.RequestPasswordReset(r.Context(), body.Email)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	// Same answer whether or not the account exists.
	response := map[string]any{"message": "If the account exists, a reset link is on its way"}
	if token != "" {
		response["devResetToken"] = token
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) authResetPassword(w http.ResponseWriter, r *http.Request) {
	var body tokenBody
	if !readJSON(w, r, &body) {
		return
	}
	if err := s.service.ResetPassword(r.Context(), body.Token, body.NewPassword); err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password updated"})
}
