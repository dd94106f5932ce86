// Package server implements gapd's admin HTTP API: peer listing and
// connection/pairing operations against PeerCache and LeConnectionManager.
//
// Unlike the teacher's ConnectRPC/protobuf service, this API is plain
// net/http + encoding/json: no .proto schema was retrieved for this
// core, and the admin surface is small enough that hand-written request/
// response structs carry their weight without codegen.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dantte-lp/gapcore/internal/gap"
	"github.com/dantte-lp/gapcore/internal/gap/lecm"
	"github.com/dantte-lp/gapcore/internal/gap/peercache"
	"github.com/dantte-lp/gapcore/internal/gap/security"
)

// Sentinel errors for request decoding, mirrored onto HTTP 400s.
var (
	// ErrInvalidPeerID indicates the {id} path value did not parse.
	ErrInvalidPeerID = errors.New("invalid peer id")

	// ErrInvalidSecurityLevel indicates an unrecognized "level" field.
	ErrInvalidSecurityLevel = errors.New("invalid security level")
)

// Server is a thin adapter between the admin HTTP API and the GAP core's
// domain types. Each handler delegates to PeerCache or LeConnectionManager;
// no business logic lives here.
type Server struct {
	cache  *peercache.Cache
	lecm   *lecm.Manager
	logger *slog.Logger
	mux    *http.ServeMux
}

// New builds a Server and registers its routes.
func New(cache *peercache.Cache, manager *lecm.Manager, logger *slog.Logger) *Server {
	s := &Server{
		cache:  cache,
		lecm:   manager,
		logger: logger.With(slog.String("component", "server")),
	}

	s.mux = http.NewServeMux()
	s.mux.HandleFunc("GET /peers", s.handleListPeers)
	s.mux.HandleFunc("GET /peers/{id}", s.handleGetPeer)
	s.mux.HandleFunc("POST /peers/{id}/connect", s.handleConnect)
	s.mux.HandleFunc("POST /peers/{id}/disconnect", s.handleDisconnect)
	s.mux.HandleFunc("POST /peers/{id}/pair", s.handlePair)
	s.mux.HandleFunc("GET /connections", s.handleListConnections)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// -------------------------------------------------------------------------
// Wire types
// -------------------------------------------------------------------------

// peerDTO is the JSON projection of a gap.Peer: enough for an operator to
// identify and act on a peer, without exposing bond key material.
type peerDTO struct {
	ID                string `json:"id"`
	Address           string `json:"address"`
	Name              string `json:"name,omitempty"`
	Technology        string `json:"technology"`
	Bonded            bool   `json:"bonded"`
	Connected         bool   `json:"connected"`
	Temporary         bool   `json:"temporary"`
	ShouldAutoConnect bool   `json:"should_auto_connect,omitempty"`
}

func peerToDTO(p gap.Peer) peerDTO {
	dto := peerDTO{
		ID:         p.ID.String(),
		Address:    p.Address.String(),
		Name:       p.Name,
		Technology: p.Technology().String(),
		Bonded:     p.Bonded(),
		Connected:  p.Connected(),
		Temporary:  p.Temporary,
	}
	if p.LE != nil {
		dto.ShouldAutoConnect = p.LE.ShouldAutoConnect
	}
	return dto
}

type connectRequest struct {
	AutoConnect bool `json:"auto_connect"`
}

type pairRequest struct {
	Level    string `json:"level"`
	Bondable bool   `json:"bondable"`
}

// -------------------------------------------------------------------------
// Peers
// -------------------------------------------------------------------------

func (s *Server) handleListPeers(w http.ResponseWriter, r *http.Request) {
	peers := s.cache.Snapshot()
	out := make([]peerDTO, 0, len(peers))
	for _, p := range peers {
		out = append(out, peerToDTO(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetPeer(w http.ResponseWriter, r *http.Request) {
	id, err := parsePeerIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	p := s.cache.FindById(id)
	if p == nil {
		writeError(w, http.StatusNotFound, gap.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, peerToDTO(*p))
}

// -------------------------------------------------------------------------
// Connections
// -------------------------------------------------------------------------

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	ids := s.lecm.Snapshot()
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	id, err := parsePeerIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var req connectRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	done := make(chan error, 1)
	s.lecm.Connect(r.Context(), id, lecm.ConnectOptions{AutoConnect: req.AutoConnect}, func(_ *lecm.ConnectionHandle, err error) {
		done <- err
	})

	select {
	case err := <-done:
		if err != nil {
			s.logger.InfoContext(r.Context(), "connect failed", slog.String("peer_id", id.String()), slog.String("error", err.Error()))
			writeError(w, statusForConnError(err), err)
			return
		}
		w.WriteHeader(http.StatusOK)
	case <-r.Context().Done():
		writeError(w, http.StatusRequestTimeout, r.Context().Err())
	}
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	id, err := parsePeerIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	done := make(chan bool, 1)
	s.lecm.Disconnect(id, func(ok bool) { done <- ok })

	select {
	case ok := <-done:
		if !ok {
			writeError(w, http.StatusNotFound, gap.ErrNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case <-r.Context().Done():
		writeError(w, http.StatusRequestTimeout, r.Context().Err())
	}
}

func (s *Server) handlePair(w http.ResponseWriter, r *http.Request) {
	id, err := parsePeerIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var req pairRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	level, err := parseSecurityLevel(req.Level)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	bondable := security.Bondable
	if !req.Bondable {
		bondable = security.NonBondable
	}

	done := make(chan error, 1)
	s.lecm.Pair(r.Context(), id, level, bondable, func(_ gap.SecurityLevel, err error) {
		done <- err
	})

	select {
	case err := <-done:
		if err != nil {
			writeError(w, statusForConnError(err), err)
			return
		}
		w.WriteHeader(http.StatusOK)
	case <-r.Context().Done():
		writeError(w, http.StatusRequestTimeout, r.Context().Err())
	}
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

func parsePeerIDParam(r *http.Request) (gap.PeerId, error) {
	id, err := gap.ParsePeerId(r.PathValue("id"))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidPeerID, err)
	}
	return id, nil
}

func parseSecurityLevel(s string) (gap.SecurityLevel, error) {
	switch s {
	case "", "encrypted":
		return gap.SecurityLevelEncrypted, nil
	case "authenticated":
		return gap.SecurityLevelAuthenticated, nil
	case "secure_authenticated":
		return gap.SecurityLevelSecureAuthenticated, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidSecurityLevel, s)
	}
}

// decodeJSONBody decodes an optional JSON body into v. An empty body is not
// an error: every request struct's zero value is a valid default.
func decodeJSONBody(r *http.Request, v any) error {
	if r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusForConnError maps the spec's Connect/Pair/Disconnect error
// taxonomy (gap.ErrNotFound etc.) onto HTTP status codes, the same
// switch-on-errors.Is shape the teacher's mapManagerError uses for
// ConnectRPC codes.
func statusForConnError(err error) int {
	switch {
	case errors.Is(err, gap.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, gap.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, gap.ErrCanceled):
		return http.StatusConflict
	case errors.Is(err, gap.ErrTimedOut):
		return http.StatusGatewayTimeout
	case errors.Is(err, gap.ErrInsufficientSecurity):
		return http.StatusForbidden
	case errors.Is(err, gap.ErrLinkDisconnected):
		return http.StatusGone
	case errors.Is(err, gap.ErrFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
