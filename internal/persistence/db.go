// Package persistence provides SQLite-based city storage. Only the static
// city is saved: buildings, ground, zones, and the clock. Contracts and
// power coverage are recomputed after a load.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/gridcity/internal/city"
	"github.com/talgya/gridcity/internal/economy"
	"github.com/talgya/gridcity/internal/engine"
	"github.com/talgya/gridcity/internal/world"
)

// ErrNoCity is returned by LoadCity when the database holds no saved city.
var ErrNoCity = errors.New("no saved city")

// DB wraps a SQLite connection for city persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS buildings (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL,
		variety TEXT NOT NULL,
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		level INTEGER NOT NULL,
		demand_buffer REAL NOT NULL,
		pollution REAL NOT NULL,
		upkeep INTEGER NOT NULL,
		capacity INTEGER NOT NULL,
		goodwill INTEGER NOT NULL,
		consumes_json TEXT NOT NULL,
		produces_json TEXT NOT NULL,
		inventory_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ground (
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		type INTEGER NOT NULL,
		elevation REAL NOT NULL,
		PRIMARY KEY (x, y)
	);

	CREATE TABLE IF NOT EXISTS zones (
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		zone TEXT NOT NULL,
		PRIMARY KEY (x, y)
	);

	CREATE TABLE IF NOT EXISTS city_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := db.conn.Exec(schema)
	return err
}

type buildingRow struct {
	ID           string  `db:"id"`
	Kind         string  `db:"kind"`
	Name         string  `db:"name"`
	Description  string  `db:"description"`
	Variety      string  `db:"variety"`
	X            int     `db:"x"`
	Y            int     `db:"y"`
	Width        int     `db:"width"`
	Height       int     `db:"height"`
	Level        int     `db:"level"`
	DemandBuffer float64 `db:"demand_buffer"`
	Pollution    float64 `db:"pollution"`
	Upkeep       int     `db:"upkeep"`
	Capacity     int     `db:"capacity"`
	Goodwill     int64   `db:"goodwill"`
	Consumes     string  `db:"consumes_json"`
	Produces     string  `db:"produces_json"`
	Inventory    string  `db:"inventory_json"`
}

type groundRow struct {
	X         int     `db:"x"`
	Y         int     `db:"y"`
	Type      uint8   `db:"type"`
	Elevation float64 `db:"elevation"`
}

type zoneRow struct {
	X    int    `db:"x"`
	Y    int    `db:"y"`
	Zone string `db:"zone"`
}

// saveBuildings writes every standing building (full replace).
func saveBuildings(tx *sqlx.Tx, locs []city.Location) error {
	if _, err := tx.Exec("DELETE FROM buildings"); err != nil {
		return err
	}

	stmt, err := tx.PrepareNamed(`INSERT INTO buildings
		(id, kind, name, description, variety, x, y, width, height, level,
		 demand_buffer, pollution, upkeep, capacity, goodwill,
		 consumes_json, produces_json, inventory_json)
		VALUES (:id, :kind, :name, :description, :variety, :x, :y, :width, :height, :level,
		 :demand_buffer, :pollution, :upkeep, :capacity, :goodwill,
		 :consumes_json, :produces_json, :inventory_json)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, loc := range locs {
		row, err := toRow(loc)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(row); err != nil {
			return fmt.Errorf("insert building %s: %w", row.ID, err)
		}
	}
	return nil
}

func toRow(loc city.Location) (buildingRow, error) {
	b := loc.Building
	consumes, err := json.Marshal(b.Consumes)
	if err != nil {
		return buildingRow{}, err
	}
	produces, err := json.Marshal(b.Produces)
	if err != nil {
		return buildingRow{}, err
	}
	inventory, err := json.Marshal(b.Inventory.Snapshot())
	if err != nil {
		return buildingRow{}, err
	}
	row := buildingRow{
		ID:           b.ID,
		Kind:         b.Kind.String(),
		Name:         b.Name,
		Description:  b.Description,
		Variety:      b.Variety,
		X:            loc.Coord.X,
		Y:            loc.Coord.Y,
		Width:        b.Width,
		Height:       b.Height,
		Level:        b.Level,
		DemandBuffer: b.DemandBuffer,
		Pollution:    b.Pollution,
		Upkeep:       b.Upkeep,
		Goodwill:     b.Goodwill(),
		Consumes:     string(consumes),
		Produces:     string(produces),
		Inventory:    string(inventory),
	}
	if b.PowerPlant != nil {
		row.Capacity = b.PowerPlant.Capacity
	}
	return row, nil
}

func fromRow(r buildingRow) (city.Location, error) {
	kind, err := city.ParseKind(r.Kind)
	if err != nil {
		return city.Location{}, err
	}
	b := city.NewBuilding(kind)
	b.ID = r.ID
	b.Name = r.Name
	b.Description = r.Description
	b.Variety = r.Variety
	b.Width, b.Height = r.Width, r.Height
	b.Level = r.Level
	b.DemandBuffer = r.DemandBuffer
	b.Pollution = r.Pollution
	b.Upkeep = r.Upkeep
	b.AdjustGoodwill(r.Goodwill)
	if kind == city.KindPowerPlant {
		b.PowerPlant = &city.PowerPlantInfo{Capacity: r.Capacity}
	}
	if err := json.Unmarshal([]byte(r.Consumes), &b.Consumes); err != nil {
		return city.Location{}, fmt.Errorf("consumes: %w", err)
	}
	if err := json.Unmarshal([]byte(r.Produces), &b.Produces); err != nil {
		return city.Location{}, fmt.Errorf("produces: %w", err)
	}
	var inv map[economy.Tradeable]int
	if err := json.Unmarshal([]byte(r.Inventory), &inv); err != nil {
		return city.Location{}, fmt.Errorf("inventory: %w", err)
	}
	b.Inventory = economy.NewInventory(inv)
	return city.Location{Coord: world.Coord{X: r.X, Y: r.Y}, Building: b}, nil
}

// saveGround writes the ground layer (full replace).
func saveGround(tx *sqlx.Tx, g world.GroundLayer) error {
	if _, err := tx.Exec("DELETE FROM ground"); err != nil {
		return err
	}
	stmt, err := tx.Preparex("INSERT INTO ground (x, y, type, elevation) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for c, t := range g {
		if _, err := stmt.Exec(c.X, c.Y, uint8(t.Type), t.Elevation); err != nil {
			return fmt.Errorf("insert ground %s: %w", c, err)
		}
	}
	return nil
}

// saveZones writes the zone layer (full replace).
func saveZones(tx *sqlx.Tx, zones map[world.Coord]city.Zone) error {
	if _, err := tx.Exec("DELETE FROM zones"); err != nil {
		return err
	}
	for c, z := range zones {
		if _, err := tx.Exec("INSERT INTO zones (x, y, zone) VALUES (?, ?, ?)", c.X, c.Y, z.String()); err != nil {
			return fmt.Errorf("insert zone %s: %w", c, err)
		}
	}
	return nil
}

const upsertMeta = "INSERT OR REPLACE INTO city_meta (key, value) VALUES (?, ?)"

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM city_meta WHERE key = ?", key)
	return value, err
}

// SaveCity performs a full save of the city and the clock in a single
// transaction; a failed save leaves the previous one intact.
func (db *DB) SaveCity(m *city.CityMap, tick uint64) error {
	locs := m.Locations()
	slog.Info("saving city", "name", m.Name, "buildings", len(locs), "tick", tick)

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := saveGround(tx, m.Ground); err != nil {
		return fmt.Errorf("save ground: %w", err)
	}
	if err := saveZones(tx, m.ZoneLayer()); err != nil {
		return fmt.Errorf("save zones: %w", err)
	}
	meta := map[string]string{
		"name":      m.Name,
		"width":     strconv.Itoa(m.Width),
		"height":    strconv.Itoa(m.Height),
		"last_tick": strconv.FormatUint(tick, 10),
	}
	for k, v := range meta {
		if _, err := tx.Exec(upsertMeta, k, v); err != nil {
			return fmt.Errorf("save meta %s: %w", k, err)
		}
	}
	if err := saveBuildings(tx, locs); err != nil {
		return fmt.Errorf("save buildings: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}

	slog.Info("city saved")
	return nil
}

// SaveSimulation saves the simulation's city at its current tick.
func (db *DB) SaveSimulation(sim *engine.Simulation) error {
	return db.SaveCity(sim.City, sim.CurrentTick())
}

// LoadCity restores the saved city and the tick it was saved at. It returns
// ErrNoCity when nothing has been saved yet.
func (db *DB) LoadCity() (*city.CityMap, uint64, error) {
	width, err := db.metaInt("width")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrNoCity
	}
	if err != nil {
		return nil, 0, err
	}
	height, err := db.metaInt("height")
	if err != nil {
		return nil, 0, err
	}
	tickStr, err := db.GetMeta("last_tick")
	if err != nil {
		return nil, 0, err
	}
	tick, err := strconv.ParseUint(tickStr, 10, 64)
	if err != nil {
		return nil, 0, fmt.Errorf("last_tick: %w", err)
	}

	var grows []groundRow
	if err := db.conn.Select(&grows, "SELECT x, y, type, elevation FROM ground"); err != nil {
		return nil, 0, fmt.Errorf("load ground: %w", err)
	}
	ground := make(world.GroundLayer, len(grows))
	for _, r := range grows {
		ground[world.Coord{X: r.X, Y: r.Y}] = world.Tile{Type: world.TileType(r.Type), Elevation: r.Elevation}
	}

	m := city.NewCityMap(width, height, ground)
	if name, err := db.GetMeta("name"); err == nil {
		m.Name = name
	}

	var zrows []zoneRow
	if err := db.conn.Select(&zrows, "SELECT x, y, zone FROM zones"); err != nil {
		return nil, 0, fmt.Errorf("load zones: %w", err)
	}
	for _, r := range zrows {
		z, err := city.ParseZone(r.Zone)
		if err != nil {
			return nil, 0, err
		}
		c := world.Coord{X: r.X, Y: r.Y}
		m.SetZone(c, c, z)
	}

	var brows []buildingRow
	if err := db.conn.Select(&brows, "SELECT * FROM buildings ORDER BY y, x"); err != nil {
		return nil, 0, fmt.Errorf("load buildings: %w", err)
	}
	locs := make([]city.Location, 0, len(brows))
	for _, r := range brows {
		loc, err := fromRow(r)
		if err != nil {
			return nil, 0, fmt.Errorf("building %s: %w", r.ID, err)
		}
		locs = append(locs, loc)
	}
	if err := m.Restore(locs); err != nil {
		return nil, 0, fmt.Errorf("restore buildings: %w", err)
	}

	slog.Info("city loaded", "name", m.Name, "buildings", len(locs), "tick", tick)
	return m, tick, nil
}

func (db *DB) metaInt(key string) (int, error) {
	v, err := db.GetMeta(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
