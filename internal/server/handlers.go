package server

import (
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/unklstewy/vatscope/internal/admin"
	"github.com/unklstewy/vatscope/internal/auth"
	"github.com/unklstewy/vatscope/internal/tracker"
	"github.com/unklstewy/vatscope/pkg/vatsim"
)

// aircraftSummary is the list view of a pilot.
type aircraftSummary struct {
	Callsign    string  `json:"callsign"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Altitude    string  `json:"altitude"`
	GroundSpeed float64 `json:"groundspeed"`
	Heading     float64 `json:"heading"`
	Aircraft    string  `json:"aircraft,omitempty"`
	Size        string  `json:"size"`
	Departure   string  `json:"departure,omitempty"`
	Arrival     string  `json:"arrival,omitempty"`
}

func summarize(p vatsim.Pilot) aircraftSummary {
	a := aircraftSummary{
		Callsign:    p.Callsign,
		Latitude:    p.Latitude,
		Longitude:   p.Longitude,
		Altitude:    vatsim.FormatAltitude(p.Altitude),
		GroundSpeed: p.GroundSpeed,
		Heading:     p.Heading,
		Size:        vatsim.SizeClass(p.AircraftType()),
	}
	if fp := p.FlightPlan; fp != nil {
		a.Aircraft = vatsim.BasicAircraftType(fp.Aircraft)
		a.Departure = fp.Departure
		a.Arrival = fp.Arrival
	}
	return a
}

// handleHealth reports 503 when the airport database is configured but
// unreachable. The feed itself never fails the check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.tracker.Stats()
	body := map[string]any{
		"status":     "ok",
		"poll_state": st.State,
		"updated_at": st.UpdatedAt,
	}
	status := http.StatusOK
	if s.airports != nil {
		body["database"] = "ok"
		if err := s.airports.Health(r.Context()); err != nil {
			s.log.Warn().Err(err).Msg("Database health check failed")
			body["status"] = "degraded"
			body["database"] = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}
	respondJSON(w, status, body)
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.mapCfg)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.tracker.Stats())
}

// handleNotice returns the active notice or 204.
func (s *Server) handleNotice(w http.ResponseWriter, r *http.Request) {
	n, ok := s.tracker.Notices().Current()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondJSON(w, http.StatusOK, n)
}

func (s *Server) handleAircraftList(w http.ResponseWriter, r *http.Request) {
	pilots := s.tracker.Pilots()
	out := make([]aircraftSummary, 0, len(pilots))
	for _, p := range pilots {
		out = append(out, summarize(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Callsign < out[j].Callsign })
	respondJSON(w, http.StatusOK, map[string]any{
		"count":    len(out),
		"aircraft": out,
	})
}

func (s *Server) handleAircraft(w http.ResponseWriter, r *http.Request) {
	p, err := s.tracker.Pilot(chi.URLParam(r, "callsign"))
	if err != nil {
		s.respondLookupError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// handleSelect searches for the callsign, projects its route and centers
// every client on it.
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	res, err := s.tracker.Search(r.Context(), chi.URLParam(r, "callsign"))
	if err != nil {
		s.respondLookupError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleAirport(w http.ResponseWriter, r *http.Request) {
	info, err := s.tracker.AirportInfo(r.Context(), chi.URLParam(r, "icao"))
	if err != nil {
		s.respondLookupError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

type airportMatch struct {
	ICAO      string  `json:"icao"`
	IATA      string  `json:"iata,omitempty"`
	Name      string  `json:"name"`
	City      string  `json:"city,omitempty"`
	Country   string  `json:"country,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// handleAirportSearch completes airport codes and names for the airport box.
func (s *Server) handleAirportSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if len(q) < 2 {
		respondError(w, http.StatusBadRequest, "query must be at least 2 characters")
		return
	}
	found, err := s.airports.Search(r.Context(), q, 10)
	if err != nil {
		s.log.Warn().Err(err).Str("query", q).Msg("Airport search failed")
		respondError(w, http.StatusServiceUnavailable, "airport database unavailable")
		return
	}
	out := make([]airportMatch, 0, len(found))
	for _, a := range found {
		out = append(out, airportMatch{
			ICAO:      a.ICAO,
			IATA:      a.IATA,
			Name:      a.Name,
			City:      a.City,
			Country:   a.Country,
			Latitude:  a.Latitude,
			Longitude: a.Longitude,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) respondLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, tracker.ErrNotFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	s.log.Warn().Err(err).Msg("Lookup failed")
	respondError(w, http.StatusBadGateway, "feed unavailable")
}

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, expires, err := s.auth.Login(req.Password)
	if err != nil {
		s.activity.Add("login_failed", r.RemoteAddr)
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("Admin login failed")
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	s.activity.Add("login", r.RemoteAddr)
	respondJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expires})
}

// AdminStats is the admin dashboard payload.
type AdminStats struct {
	Visitors admin.Stats      `json:"visitors"`
	Feed     tracker.Stats    `json:"feed"`
	Activity []admin.Activity `json:"activity"`
	Database map[string]any   `json:"database,omitempty"`
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	out := AdminStats{
		Feed:     s.tracker.Stats(),
		Activity: s.activity.Entries(),
	}
	if s.visitors != nil {
		out.Visitors = s.visitors.Stats()
	}
	if s.airports != nil {
		dbStats, err := s.airports.Stats(r.Context())
		if err != nil {
			s.log.Warn().Err(err).Msg("Failed to read database stats")
		}
		out.Database = dbStats
	}
	respondJSON(w, http.StatusOK, out)
}

// requireRole rejects requests without a valid Bearer token carrying role.
func (s *Server) requireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				respondError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			claims, err := s.auth.ValidateToken(token)
			if err != nil {
				respondError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			if !auth.HasRole(claims.Role, role) {
				respondError(w, http.StatusForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
