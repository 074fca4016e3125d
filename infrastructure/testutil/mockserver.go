// Package testutil provides a mock Keeper backend for end-to-end tests: it
// unwraps real transmission keys, decrypts request payloads and encrypts
// responses, so client tests exercise the full envelope crypto.
package testutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/mux"

	"github.com/keeper-security/secrets-manager-go/infrastructure/crypto"
)

// RequestRecord is one decrypted request the mock server observed.
type RequestRecord struct {
	Path        string
	PublicKeyID string
	Payload     []byte
}

// Handler produces a reply for one decrypted request. A 200 status gets its
// body JSON-marshaled and encrypted under the transmission key; any other
// status is sent as plain JSON.
type Handler func(req *RequestRecord) (status int, body interface{})

// MockKeeperServer is a TLS httptest server speaking the Secrets Manager
// envelope protocol.
type MockKeeperServer struct {
	t      *testing.T
	server *httptest.Server
	key    *ecdsa.PrivateKey

	mu       sync.Mutex
	handlers map[string]Handler
	requests []RequestRecord
}

// NewMockKeeperServer starts the server. It skips the test when the sandbox
// forbids opening a listener.
func NewMockKeeperServer(t *testing.T) *MockKeeperServer {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate server key: %v", err)
	}
	s := &MockKeeperServer{
		t:        t,
		key:      key,
		handlers: map[string]Handler{},
	}

	router := mux.NewRouter()
	router.HandleFunc("/api/rest/sm/v1/{path}", s.serve).Methods(http.MethodPost)

	s.server = newTLSServer(t, router)
	t.Cleanup(s.server.Close)
	return s
}

// newTLSServer skips the test if the sandbox blocks opening a local
// listener.
func newTLSServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprint(r)
			if strings.Contains(msg, "operation not permitted") || strings.Contains(msg, "permission denied") {
				t.Skipf("skipping HTTP server test due to sandbox restrictions: %v", r)
			}
			panic(r)
		}
	}()
	return httptest.NewTLSServer(handler)
}

// Hostname returns host:port, suitable as the client's hostname.
func (s *MockKeeperServer) Hostname() string {
	return strings.TrimPrefix(s.server.URL, "https://")
}

// Client returns an HTTP client trusting the server certificate.
func (s *MockKeeperServer) Client() *http.Client {
	return s.server.Client()
}

// PublicKeyB64 returns the server public key in the URL-safe base64 SEC1
// form the client's key table uses.
func (s *MockKeeperServer) PublicKeyB64() string {
	pub, err := s.key.PublicKey.ECDH()
	if err != nil {
		s.t.Fatalf("convert server public key: %v", err)
	}
	return crypto.BytesToURLSafeStr(pub.Bytes())
}

// Handle installs the handler for one endpoint path (e.g. "get_secret").
func (s *MockKeeperServer) Handle(path string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[path] = h
}

// Requests returns every decrypted request seen so far.
func (s *MockKeeperServer) Requests() []RequestRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RequestRecord(nil), s.requests...)
}

// RequestCount returns how many calls hit the given path.
func (s *MockKeeperServer) RequestCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r.Path == path {
			n++
		}
	}
	return n
}

func (s *MockKeeperServer) serve(w http.ResponseWriter, r *http.Request) {
	path := mux.Vars(r)["path"]

	wrappedKey, err := crypto.Base64ToBytes(r.Header.Get("TransmissionKey"))
	if err != nil {
		http.Error(w, "bad transmission key header", http.StatusBadRequest)
		return
	}
	transmissionKey, err := crypto.PublicDecrypt(wrappedKey, s.key, nil)
	if err != nil {
		http.Error(w, "cannot unwrap transmission key", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "cannot read body", http.StatusBadRequest)
		return
	}
	payload, err := crypto.DecryptAESGCM(transmissionKey, body)
	if err != nil {
		http.Error(w, "cannot decrypt payload", http.StatusBadRequest)
		return
	}

	record := RequestRecord{
		Path:        path,
		PublicKeyID: r.Header.Get("PublicKeyId"),
		Payload:     payload,
	}

	s.mu.Lock()
	s.requests = append(s.requests, record)
	handler := s.handlers[path]
	s.mu.Unlock()

	if handler == nil {
		// Default: empty encrypted object.
		s.writeEncrypted(w, transmissionKey, map[string]interface{}{})
		return
	}

	status, reply := handler(&record)
	if status == http.StatusOK {
		s.writeEncrypted(w, transmissionKey, reply)
		return
	}
	raw, err := json.Marshal(reply)
	if err != nil {
		http.Error(w, "marshal error reply", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(raw)
}

func (s *MockKeeperServer) writeEncrypted(w http.ResponseWriter, transmissionKey []byte, reply interface{}) {
	if reply == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	raw, err := json.Marshal(reply)
	if err != nil {
		http.Error(w, "marshal reply", http.StatusInternalServerError)
		return
	}
	encrypted, err := crypto.EncryptAESGCM(transmissionKey, raw)
	if err != nil {
		http.Error(w, "encrypt reply", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(encrypted)
}
