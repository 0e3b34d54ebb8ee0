package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/BRAVO68WEB/devworld/internal/registration"
)

const pathRegister = "/api/register"

// maxRegisterBody bounds a registration request body.
const maxRegisterBody = 64 << 10

// RegisterHandler accepts setProxy messages. The caller identity comes only
// from the bearer token, looked up in callers (token -> identity); anything
// identity-like in the body is ignored.
func RegisterHandler(svc *registration.Service, callers map[string]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var identity string
		if token := bearerToken(r); token != "" {
			identity = callers[token]
		}

		var msg registration.Message
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRegisterBody)).Decode(&msg); err != nil {
			writeReply(w, http.StatusBadRequest, registration.Reply{
				Type:  registration.TypeSetProxyResponse,
				Error: "invalid JSON",
			})
			return
		}
		if _, err := msg.Validate(); err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, registration.ErrUnknownMessage) {
				status = http.StatusUnprocessableEntity
			}
			writeReply(w, status, registration.Reply{Type: registration.TypeSetProxyResponse, Error: err.Error()})
			return
		}

		reply := svc.HandleMessage(r.Context(), msg, identity)
		switch {
		case reply.OK:
			writeReply(w, http.StatusOK, reply)
		case identity == "":
			writeReply(w, http.StatusUnauthorized, reply)
		default:
			writeReply(w, http.StatusBadRequest, reply)
		}
	}
}

func writeReply(w http.ResponseWriter, status int, reply registration.Reply) {
	writeJSON(w, status, reply)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) < len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}
