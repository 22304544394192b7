// Command citysim runs the city economy simulation.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/gridcity/internal/api"
	"github.com/talgya/gridcity/internal/catalog"
	"github.com/talgya/gridcity/internal/city"
	"github.com/talgya/gridcity/internal/config"
	"github.com/talgya/gridcity/internal/engine"
	"github.com/talgya/gridcity/internal/entropy"
	"github.com/talgya/gridcity/internal/persistence"
	"github.com/talgya/gridcity/internal/power"
	"github.com/talgya/gridcity/internal/world"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults apply when empty)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, "config:", err)
			os.Exit(1)
		}
	}
	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	slog.Info("gridcity: city economy simulation")

	// ── Database ──────────────────────────────────────────────────────
	os.MkdirAll(filepath.Dir(cfg.DBPath), 0755)
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.DBPath)

	// ── Building catalog ──────────────────────────────────────────────
	cat := catalog.Default()
	if cfg.CatalogPath != "" {
		if cat, err = catalog.Load(cfg.CatalogPath); err != nil {
			slog.Error("failed to load catalog", "path", cfg.CatalogPath, "error", err)
			os.Exit(1)
		}
	}
	slog.Info("catalog ready", "templates", cat.Len())

	// ── Load or Generate City ─────────────────────────────────────────
	m, startTick, err := db.LoadCity()
	switch {
	case errors.Is(err, persistence.ErrNoCity):
		slog.Info("no saved city found, generating a new one...")
		m, err = newCity(cfg.Map)
		if err != nil {
			slog.Error("failed to generate city", "error", err)
			os.Exit(1)
		}
	case err != nil:
		slog.Error("failed to load city", "error", err)
		os.Exit(1)
	default:
		slog.Info("city restored",
			"name", m.Name,
			"buildings", m.BuildingCount(),
			"tick", startTick,
			"sim_time", engine.SimTime(startTick),
		)
	}

	// ── Simulation ────────────────────────────────────────────────────
	sim := engine.NewSimulation(m, cfg, cat, entropy.New(cfg.Simulation.Seed))
	sim.SetTick(startTick)
	power.Update(m, cfg.Power.Radius)
	m.Nation.Reset(sim.Stats().Population, cfg.Economy.NationalRate)

	// Save on fresh generation only (loaded cities are already saved).
	if startTick == 0 {
		if err := db.SaveSimulation(sim); err != nil {
			slog.Error("initial save failed", "error", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng := engine.NewEngine(startTick)
	eng.SetSpeed(cfg.Simulation.Speed)
	eng.Interval = cfg.Simulation.Interval

	// Hourly steps run off the clock goroutine; auto-save every sim-day.
	eng.OnHour = func(tick uint64) { sim.TickHour(ctx, tick) }
	eng.OnDay = func(tick uint64) {
		if err := db.SaveCity(m, tick); err != nil {
			slog.Error("daily save failed", "error", err)
		}
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	adminKey := os.Getenv("GRIDCITY_ADMIN_KEY")
	if adminKey == "" {
		slog.Warn("GRIDCITY_ADMIN_KEY not set, admin POST endpoints will be disabled")
	}
	apiServer := api.NewServer(sim, eng, db, cfg.APIPort, adminKey)
	apiServer.Start(ctx)

	// ── Start ─────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		eng.Stop()
	}()

	st := sim.Stats()
	fmt.Printf("\n%s is open: %s buildings, %s residents on a %dx%d grid.\n",
		m.Name, humanize.Comma(int64(st.Buildings)), humanize.Comma(int64(st.Population)), m.Width, m.Height)
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.APIPort)
	if startTick > 0 {
		fmt.Printf("Resuming from tick %d (%s)\n", startTick, engine.SimTime(startTick))
	}
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	eng.Run()

	// Let an in-flight hourly step finish, then stop serving.
	cancel()
	sim.Wait()
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown", "error", err)
	}

	slog.Info("final save...")
	if err := db.SaveSimulation(sim); err != nil {
		slog.Error("final save failed", "error", err)
	}

	fmt.Println("Simulation stopped. City saved.")
}

// newCity generates terrain and lays out the starter city on it.
func newCity(mc config.MapConfig) (*city.CityMap, error) {
	slog.Info("generating terrain...", "width", mc.Width, "height", mc.Height, "seed", mc.Seed)
	ground := world.GenerateTerrain(world.GenConfig{
		Width:     mc.Width,
		Height:    mc.Height,
		Seed:      mc.Seed,
		WaterLine: mc.WaterLine,
	})
	for t, c := range world.TileCounts(ground) {
		slog.Info("terrain", "type", t, "count", c)
	}
	return city.NewStarterCity(mc.Width, mc.Height, ground)
}
