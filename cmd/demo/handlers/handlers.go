package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/KanavDutta/signalfence/middleware"
)

// Response is a generic JSON response structure
type Response struct {
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	Warning   string `json:"warning,omitempty"`
	Timestamp string `json:"timestamp"`
}

func respond(w http.ResponseWriter, r *http.Request, status int, resp Response) {
	// In DRY_RUN mode a flagged request still gets here; surface what would have happened
	if d, ok := middleware.DecisionFromContext(r.Context()); ok && d.Primary() != nil {
		resp.Warning = "would be blocked: " + d.Primary().Reason
	}
	resp.Timestamp = time.Now().Format(time.RFC3339)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// Health returns a health check endpoint
func Health(w http.ResponseWriter, r *http.Request) {
	respond(w, r, http.StatusOK, Response{Message: "SignalFence demo server is healthy"})
}

// Search handles search requests (lenient rate limit)
func Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		query = "all"
	}

	respond(w, r, http.StatusOK, Response{
		Message: "Search endpoint - lenient rate limit (100 req/min)",
		Data: map[string]any{
			"query":   query,
			"results": []string{"result1", "result2", "result3"},
		},
	})
}

// Login handles authentication. Every POST counts toward the lockout, so repeated
// attempts from one IP are locked out after the configured number of tries.
func Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.FormValue("username") != "demo" || r.FormValue("password") != "demo" {
		respond(w, r, http.StatusUnauthorized, Response{Message: "Invalid credentials"})
		return
	}

	respond(w, r, http.StatusOK, Response{
		Message: "Login endpoint - locked out after 5 attempts",
		Data: map[string]any{
			"token": "mock-jwt-token",
			"user":  "demo-user",
		},
	})
}

const signupForm = `<!DOCTYPE html>
<html>
<head><title>Sign up</title>
<style>.hp { position: absolute; left: -10000px; }</style>
</head>
<body>
<form method="POST" action="/signup">
  <label>Email <input name="email" type="email"></label>
  <div class="hp" aria-hidden="true">
    <label>Website <input name="website" tabindex="-1" autocomplete="off"></label>
  </div>
  <button type="submit">Sign up</button>
</form>
</body>
</html>`

// Signup serves a form with a hidden honeypot field on GET and accepts it on POST.
// Bots that fill in every field are stopped by the middleware before reaching here.
func Signup(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(signupForm))
	case http.MethodPost:
		respond(w, r, http.StatusCreated, Response{
			Message: "Signed up",
			Data:    map[string]any{"email": r.FormValue("email")},
		})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Update handles resource updates (moderate rate limit)
func Update(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut && r.Method != http.MethodPatch {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	respond(w, r, http.StatusOK, Response{
		Message: "Update endpoint - moderate rate limit (30 req/min)",
		Data: map[string]any{
			"id":      "12345",
			"updated": true,
		},
	})
}
