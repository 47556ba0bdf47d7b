// Package testserver runs an in-process stand-in for hepdata-converter-ws in tests.
package testserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/hepdata/hepdata-converter-ws-client/internal/transport"
)

// Responder decides the status and body returned for a decoded envelope.
type Responder func(env transport.Envelope) (int, []byte)

// Echo answers with the request archive itself, as if the conversion were the identity.
func Echo() Responder {
	return func(env transport.Envelope) (int, []byte) {
		return http.StatusOK, env.Input
	}
}

// Fixed answers every request with the same status and body.
func Fixed(status int, body []byte) Responder {
	return func(transport.Envelope) (int, []byte) {
		return status, body
	}
}

type Server struct {
	*httptest.Server

	respond  Responder
	mu       sync.Mutex
	requests []transport.Envelope
}

// New starts a server that is closed when the test ends.
func New(t testing.TB, respond Responder) *Server {
	t.Helper()

	s := &Server{respond: respond}

	router := mux.NewRouter()
	router.HandleFunc("/convert", s.handleConvert).
		Methods(http.MethodGet).
		Headers("Content-Type", "application/json")

	s.Server = httptest.NewServer(router)
	t.Cleanup(s.Close)

	return s
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	var env transport.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, env)
	s.mu.Unlock()

	status, body := s.respond(env)
	w.Header().Set("Content-Type", "application/x-gzip")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Requests returns the envelopes received so far.
func (s *Server) Requests() []transport.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]transport.Envelope(nil), s.requests...)
}
