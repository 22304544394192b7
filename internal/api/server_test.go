package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/gridcity/internal/city"
	"github.com/talgya/gridcity/internal/config"
	"github.com/talgya/gridcity/internal/economy"
	"github.com/talgya/gridcity/internal/engine"
	"github.com/talgya/gridcity/internal/entropy"
	"github.com/talgya/gridcity/internal/persistence"
	"github.com/talgya/gridcity/internal/power"
	"github.com/talgya/gridcity/internal/world"
)

type fixture struct {
	srv     *Server
	house   *city.Building
	factory *city.Building
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	m := city.NewCityMap(30, 20, nil)
	m.Name = "Testville"
	m.BuildLine(city.KindRoad, world.Coord{X: 0, Y: 10}, world.Coord{X: 29, Y: 10})

	house := city.NewBuilding(city.KindResidential)
	house.Consumes[economy.Goods] = 2
	if err := m.Build(house, world.Coord{X: 4, Y: 11}); err != nil {
		t.Fatal(err)
	}
	factory := city.NewBuilding(city.KindIndustrial)
	factory.Produces[economy.Goods] = 6
	if err := m.Build(factory, world.Coord{X: 8, Y: 11}); err != nil {
		t.Fatal(err)
	}
	plant, err := city.NewPowerPlant(city.VarietyCoal)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Build(plant, world.Coord{X: 4, Y: 4}); err != nil {
		t.Fatal(err)
	}

	sim := engine.NewSimulation(m, config.Default(), nil, entropy.New(1))
	return fixture{
		srv:     NewServer(sim, engine.NewEngine(0), nil, 0, "secret"),
		house:   house,
		factory: factory,
	}
}

func (f fixture) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.srv.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/v1/status", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	got := decode[map[string]any](t, rec)
	if got["name"] != "Testville" {
		t.Errorf("name = %v", got["name"])
	}
	if got["connected"] != true {
		t.Errorf("a road touching the edge should connect the city")
	}
}

func TestBuildings(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		query string
		code  int
		count int
	}{
		{"", http.StatusOK, 33}, // 30 road tiles + house + factory + plant
		{"?kind=residential", http.StatusOK, 1},
		{"?kind=PowerPlant", http.StatusOK, 1},
		{"?kind=castle", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, "/api/v1/buildings"+tt.query, "", "")
			if rec.Code != tt.code {
				t.Fatalf("status %d, want %d", rec.Code, tt.code)
			}
			if tt.code != http.StatusOK {
				return
			}
			if got := decode[[]buildingSummary](t, rec); len(got) != tt.count {
				t.Errorf("got %d buildings, want %d", len(got), tt.count)
			}
		})
	}
}

func TestBuildingDetailAndContracts(t *testing.T) {
	f := newFixture(t)
	buyer := city.Entity(world.Coord{X: 4, Y: 11}, f.house)
	seller := city.Entity(world.Coord{X: 8, Y: 11}, f.factory)
	if _, err := city.Sign(buyer, seller, economy.Goods, 2, nil); err != nil {
		t.Fatal(err)
	}

	rec := f.do(t, http.MethodGet, "/api/v1/buildings/"+f.house.ID, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	detail := decode[map[string]any](t, rec)
	if _, ok := detail["inventory"]; !ok {
		t.Errorf("detail without inventory: %v", detail)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/buildings/"+f.house.ID+"/contracts", "", "")
	contracts := decode[[]contractView](t, rec)
	if len(contracts) != 1 {
		t.Fatalf("expected 1 contract, got %d", len(contracts))
	}
	c := contracts[0]
	if c.Direction != "in" || c.WithID != f.factory.ID || c.Quantity != 2 || c.Tradeable != "GOODS" {
		t.Errorf("unexpected contract view %+v", c)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/buildings/nope/contracts", "", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown building: status %d", rec.Code)
	}
}

func TestPower(t *testing.T) {
	f := newFixture(t)
	power.Update(f.srv.Sim.City, 0)
	rec := f.do(t, http.MethodGet, "/api/v1/power", "", "")
	got := decode[struct {
		Plants    []map[string]any `json:"plants"`
		Buildings int              `json:"buildings"`
		Powered   int              `json:"powered"`
	}](t, rec)
	if len(got.Plants) != 1 || got.Buildings != 3 {
		t.Errorf("plants %d buildings %d", len(got.Plants), got.Buildings)
	}
	if got.Powered == 0 {
		t.Errorf("the plant should at least power itself")
	}
}

func TestLayers(t *testing.T) {
	f := newFixture(t)
	f.srv.Sim.City.Traffic.Set(world.Coord{X: 3, Y: 10}, 4)

	rec := f.do(t, http.MethodGet, "/api/v1/layers/traffic", "", "")
	got := decode[struct {
		Max   float64     `json:"max"`
		Cells []cellValue `json:"cells"`
	}](t, rec)
	if got.Max != 4 || len(got.Cells) != 1 {
		t.Errorf("traffic layer = %+v", got)
	}

	for path, want := range map[string]int{
		"/api/v1/layers/desirability_residential": http.StatusOK,
		"/api/v1/layers/desirability_castle":      http.StatusNotFound,
		"/api/v1/layers/smog":                     http.StatusNotFound,
	} {
		if rec := f.do(t, http.MethodGet, path, "", ""); rec.Code != want {
			t.Errorf("%s: status %d, want %d", path, rec.Code, want)
		}
	}
}

func TestAdminAuth(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name  string
		key   string
		token string
		code  int
	}{
		{"disabled", "", "secret", http.StatusForbidden},
		{"missing token", "secret", "", http.StatusUnauthorized},
		{"wrong token", "secret", "guess", http.StatusUnauthorized},
		{"ok", "secret", "secret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.srv.AdminKey = tt.key
			rec := f.do(t, http.MethodPost, "/api/v1/speed", tt.token, `{"speed": 4}`)
			if rec.Code != tt.code {
				t.Errorf("status %d, want %d", rec.Code, tt.code)
			}
		})
	}
	if f.srv.Eng.Speed() != 4 {
		t.Errorf("speed = %v, want 4", f.srv.Eng.Speed())
	}
	if rec := f.do(t, http.MethodGet, "/api/v1/speed", "", ""); rec.Code != http.StatusOK {
		t.Errorf("GET speed should be public, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/v1/speed", "secret", `{"speed": -1}`); rec.Code != http.StatusBadRequest {
		t.Errorf("negative speed accepted: %d", rec.Code)
	}
}

func TestRunHourEndpoint(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/hour", "secret", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	rep := decode[engine.Report](t, rec)
	if rep.Tick != engine.TicksPerSimHour || rep.Hour != 1 {
		t.Errorf("ran tick %d hour %d, want the next hour boundary", rep.Tick, rep.Hour)
	}
	if f.srv.Sim.CurrentTick() != engine.TicksPerSimHour {
		t.Errorf("clock at %d", f.srv.Sim.CurrentTick())
	}
}

func TestRunHourFollowsEngineClock(t *testing.T) {
	f := newFixture(t)
	f.srv.Eng = engine.NewEngine(3*engine.TicksPerSimHour + 20)
	f.srv.Sim.SetTick(engine.TicksPerSimHour)

	rec := f.do(t, http.MethodPost, "/api/v1/hour", "secret", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	want := uint64(4 * engine.TicksPerSimHour)
	if rep := decode[engine.Report](t, rec); rep.Tick != want {
		t.Errorf("ran tick %d, want %d", rep.Tick, want)
	}
	if got := f.srv.Sim.CurrentTick(); got != want {
		t.Errorf("clock at %d, want %d", got, want)
	}
}

func TestSnapshot(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(t, http.MethodPost, "/api/v1/snapshot", "secret", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("without a db: status %d", rec.Code)
	}

	db, err := persistence.Open(filepath.Join(t.TempDir(), "city.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	f.srv.DB = db
	if rec := f.do(t, http.MethodPost, "/api/v1/snapshot", "secret", ""); rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	m, _, err := db.LoadCity()
	if err != nil {
		t.Fatal(err)
	}
	if m.BuildingCount() != f.srv.Sim.City.BuildingCount() {
		t.Errorf("saved %d buildings, city has %d", m.BuildingCount(), f.srv.Sim.City.BuildingCount())
	}
}

func TestStreamDeliversReports(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.srv.Hub.Run(ctx)

	ts := httptest.NewServer(f.srv.Router())
	defer ts.Close()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for f.srv.Hub.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	f.srv.Hub.Publish(engine.Report{Tick: 120, Hour: 2, Time: engine.SimTime(120)})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type    string        `json:"type"`
		Payload engine.Report `json:"payload"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != "report" || msg.Payload.Tick != 120 || msg.Payload.Hour != 2 {
		t.Errorf("unexpected message %+v", msg)
	}

	cancel()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("stream should close when the hub stops")
	}
}
