// Package api provides the HTTP API for observing the city.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/talgya/gridcity/internal/city"
	"github.com/talgya/gridcity/internal/economy"
	"github.com/talgya/gridcity/internal/engine"
	"github.com/talgya/gridcity/internal/persistence"
	"github.com/talgya/gridcity/internal/power"
)

// Server serves the city state over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine
	DB       *persistence.DB
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	// Hub fans hourly reports out to websocket clients.
	Hub *Hub

	// Limiter throttles admin requests per client address.
	Limiter *RateLimiter

	srv *http.Server
}

// NewServer wires a server over sim and eng with a fresh report hub.
func NewServer(sim *engine.Simulation, eng *engine.Engine, db *persistence.DB, port int, adminKey string) *Server {
	return &Server{
		Sim:      sim,
		Eng:      eng,
		DB:       db,
		Port:     port,
		AdminKey: adminKey,
		Hub:      NewHub(),
		Limiter:  NewRateLimiter(60, time.Minute),
	}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	v1 := r.PathPrefix("/api/v1").Subrouter()

	// Public endpoints.
	v1.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	v1.HandleFunc("/census", s.handleCensus).Methods(http.MethodGet)
	v1.HandleFunc("/report", s.handleReport).Methods(http.MethodGet)
	v1.HandleFunc("/buildings", s.handleBuildings).Methods(http.MethodGet)
	v1.HandleFunc("/buildings/{id}", s.handleBuilding).Methods(http.MethodGet)
	v1.HandleFunc("/buildings/{id}/contracts", s.handleContracts).Methods(http.MethodGet)
	v1.HandleFunc("/power", s.handlePower).Methods(http.MethodGet)
	v1.HandleFunc("/layers/{name}", s.handleLayer).Methods(http.MethodGet)
	v1.HandleFunc("/stream", s.Hub.ServeWS).Methods(http.MethodGet)

	// Admin endpoints.
	v1.HandleFunc("/speed", s.adminOnly(s.handleSpeed)).Methods(http.MethodGet, http.MethodPost)
	v1.HandleFunc("/snapshot", s.adminOnly(s.handleSnapshot)).Methods(http.MethodPost)
	v1.HandleFunc("/hour", s.adminOnly(s.handleHour)).Methods(http.MethodPost)
	return r
}

// Handler returns the router wrapped in CORS and access logging.
func (s *Server) Handler() http.Handler {
	cors := handlers.CORS(
		handlers.AllowedOrigins(allowedOrigins()),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)
	return handlers.LoggingHandler(os.Stdout, cors(s.Router()))
}

// allowedOrigins reads CORS_ORIGINS (comma-separated); localhost dev servers
// are always allowed.
func allowedOrigins() []string {
	origins := []string{"http://localhost:5173", "http://localhost:4173", "http://localhost:3000"}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				origins = append(origins, origin)
			}
		}
	}
	return origins
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start(ctx context.Context) {
	go s.Hub.Run(ctx)
	s.Sim.OnReport = s.Hub.Publish

	addr := fmt.Sprintf(":%d", s.Port)
	s.srv = &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Shutdown stops the listener, waiting up to the context deadline for
// in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through (for endpoints that support both GET and POST).
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	limited := RateLimitMiddleware(s.Limiter, next)
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			next(w, r)
			return
		}
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no admin key set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		limited(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	tick := s.Sim.CurrentTick()
	st := s.Sim.Stats()
	status := map[string]any{
		"name":          s.Sim.City.Name,
		"width":         s.Sim.City.Width,
		"height":        s.Sim.City.Height,
		"tick":          tick,
		"sim_time":      engine.SimTime(tick),
		"speed":         s.Eng.Speed(),
		"running":       s.Eng.Running(),
		"busy":          s.Sim.Busy(),
		"dropped_ticks": s.Sim.Dropped(),
		"population":    st.Population,
		"buildings":     st.Buildings,
		"contracts":     st.Contracts,
		"powered":       st.Powered,
		"total_money":   st.TotalMoney,
		"connected":     s.Sim.City.HasOutsideConnection(),
	}
	writeJSON(w, status)
}

func (s *Server) handleCensus(w http.ResponseWriter, r *http.Request) {
	st := s.Sim.Stats()
	balance := make(map[string]int, len(economy.AllTradeables))
	for _, t := range economy.AllTradeables {
		balance[t.String()] = st.TradeBalance(t)
	}
	exported, imported := s.Sim.City.Nation.TradeTotals()
	writeJSON(w, map[string]any{
		"stats":     st,
		"balance":   balance,
		"exported":  exported,
		"imported":  imported,
		"bulldozed": zoneCounts(s.Sim.City.BulldozedCounts()),
	})
}

func zoneCounts(in map[city.Zone]int) map[string]int {
	out := make(map[string]int, len(in))
	for z, n := range in {
		out[z.String()] = n
	}
	return out
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.LastReport())
}

type buildingSummary struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Name      string `json:"name"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Zone      string `json:"zone,omitempty"`
	Powered   bool   `json:"powered"`
	Money     int    `json:"money"`
	Goodwill  int64  `json:"goodwill"`
	Contracts int    `json:"contracts"`
}

func summarize(loc city.Location) buildingSummary {
	b := loc.Building
	sum := buildingSummary{
		ID:        b.ID,
		Kind:      b.Kind.String(),
		Name:      b.Name,
		X:         loc.Coord.X,
		Y:         loc.Coord.Y,
		Width:     b.Width,
		Height:    b.Height,
		Powered:   b.Powered(),
		Money:     b.Balance(),
		Goodwill:  b.Goodwill(),
		Contracts: b.Ledger.Len(),
	}
	if z := b.Zone(); z != city.ZoneNone {
		sum.Zone = z.String()
	}
	if sum.Name == "" {
		sum.Name = b.Description
	}
	return sum
}

// handleBuildings lists buildings, optionally filtered by ?kind=.
func (s *Server) handleBuildings(w http.ResponseWriter, r *http.Request) {
	var filter *city.Kind
	if raw := r.URL.Query().Get("kind"); raw != "" {
		k, err := city.ParseKind(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		filter = &k
	}

	result := []buildingSummary{}
	for _, loc := range s.Sim.City.Locations() {
		if filter != nil && loc.Building.Kind != *filter {
			continue
		}
		result = append(result, summarize(loc))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Y != result[j].Y {
			return result[i].Y < result[j].Y
		}
		return result[i].X < result[j].X
	})
	writeJSON(w, result)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (city.Location, bool) {
	id := mux.Vars(r)["id"]
	loc, ok := s.Sim.City.FindBuilding(id)
	if !ok {
		http.Error(w, "building not found", http.StatusNotFound)
	}
	return loc, ok
}

func (s *Server) handleBuilding(w http.ResponseWriter, r *http.Request) {
	loc, ok := s.lookup(w, r)
	if !ok {
		return
	}
	b := loc.Building
	writeJSON(w, map[string]any{
		"building":      summarize(loc),
		"description":   b.Description,
		"level":         b.Level,
		"consumes":      b.Consumes,
		"produces":      b.Produces,
		"inventory":     b.Inventory.Snapshot(),
		"demand_buffer": b.DemandBuffer,
		"pollution":     s.Sim.City.Pollution.Get(loc.Coord),
		"land_value":    s.Sim.City.LandValue.Get(loc.Coord),
		"summary":       b.SummarizeContracts(),
	})
}

type contractView struct {
	ID        string `json:"id"`
	Tradeable string `json:"tradeable"`
	Quantity  int    `json:"quantity"`
	Direction string `json:"direction"` // "in" or "out" from the building's side
	With      string `json:"with"`
	WithID    string `json:"with_id"`
	Distance  int    `json:"distance"`
}

func (s *Server) handleContracts(w http.ResponseWriter, r *http.Request) {
	loc, ok := s.lookup(w, r)
	if !ok {
		return
	}
	self := loc.Building.ID
	result := []contractView{}
	for _, c := range loc.Building.Ledger.Snapshot() {
		other := c.Counterparty(self)
		v := contractView{
			ID:        c.ID,
			Tradeable: c.Tradeable.String(),
			Quantity:  c.Quantity,
			Direction: "in",
			With:      other.Description(),
			WithID:    other.Key(),
		}
		if c.FromKey() == self {
			v.Direction = "out"
		}
		if c.Path != nil {
			v.Distance = c.Path.Distance()
		}
		result = append(result, v)
	}
	writeJSON(w, result)
}

func (s *Server) handlePower(w http.ResponseWriter, r *http.Request) {
	type plant struct {
		ID       string `json:"id"`
		Variety  string `json:"variety"`
		X        int    `json:"x"`
		Y        int    `json:"y"`
		Capacity int    `json:"capacity"`
	}
	plants := []plant{}
	total := 0
	for _, loc := range s.Sim.City.Locations() {
		b := loc.Building
		if b.Kind.Drivable() {
			continue
		}
		total++
		if b.PowerPlant != nil {
			plants = append(plants, plant{ID: b.ID, Variety: b.Variety, X: loc.Coord.X, Y: loc.Coord.Y, Capacity: b.PowerPlant.Capacity})
		}
	}
	sort.Slice(plants, func(i, j int) bool { return plants[i].ID < plants[j].ID })

	ids := power.PoweredIDs(s.Sim.City)
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, map[string]any{
		"plants":    plants,
		"buildings": total,
		"powered":   len(ids),
		"ids":       ids,
	})
}

type cellValue struct {
	X     int     `json:"x"`
	Y     int     `json:"y"`
	Value float64 `json:"value"`
}

// handleLayer dumps a scalar layer: traffic, pollution, land_value, or the
// desirability of a zone (desirability_residential etc.).
func (s *Server) handleLayer(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	m := s.Sim.City
	var layer *city.Layer
	switch name {
	case "traffic":
		layer = m.Traffic
	case "pollution":
		layer = m.Pollution
	case "land_value":
		layer = m.LandValue
	default:
		if zs, ok := strings.CutPrefix(name, "desirability_"); ok {
			if z, err := city.ParseZone(zs); err == nil {
				layer = m.Desirability[z]
			}
		}
	}
	if layer == nil {
		http.Error(w, "unknown layer "+name, http.StatusNotFound)
		return
	}

	values := layer.Snapshot()
	cells := make([]cellValue, 0, len(values))
	for c, v := range values {
		cells = append(cells, cellValue{X: c.X, Y: c.Y, Value: v})
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Y != cells[j].Y {
			return cells[i].Y < cells[j].Y
		}
		return cells[i].X < cells[j].X
	})
	writeJSON(w, map[string]any{
		"layer": name,
		"max":   layer.Max(),
		"cells": cells,
	})
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > 1000 {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
		slog.Info("speed changed", "speed", req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "no database configured", http.StatusServiceUnavailable)
		return
	}
	if err := s.DB.SaveSimulation(s.Sim); err != nil {
		slog.Error("snapshot failed", "error", err)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"success": true, "tick": s.Sim.CurrentTick()})
}

// handleHour runs the hourly step at the next hour boundary right away.
func (s *Server) handleHour(w http.ResponseWriter, r *http.Request) {
	now := max(s.Eng.Tick(), s.Sim.CurrentTick())
	tick := (now/engine.TicksPerSimHour + 1) * engine.TicksPerSimHour
	rep, err := s.Sim.RunHour(r.Context(), tick)
	if errors.Is(err, engine.ErrTickInProgress) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, rep)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
