package catalog

import (
	"testing"

	"github.com/talgya/gridcity/internal/city"
	"github.com/talgya/gridcity/internal/economy"
)

func TestDefaultCatalogCoversEveryZone(t *testing.T) {
	c := Default()
	for _, z := range city.Zones {
		b := c.Find(z, 1, nil)
		if b == nil {
			t.Fatalf("no level-1 %s building", z)
		}
		if b.Zone() != z {
			t.Errorf("found %s for zone %s", b, z)
		}
	}
}

func TestFindReturnsFreshInstances(t *testing.T) {
	c := Default()
	a := c.Find(city.ZoneResidential, 1, nil)
	b := c.Find(city.ZoneResidential, 1, nil)
	if a == b || a.ID == b.ID {
		t.Fatal("each find should return a new building")
	}
	a.Consumes[economy.Goods] = 99
	if b.Consumes[economy.Goods] == 99 {
		t.Error("instances share their consumption map")
	}
	if a.DemandBuffer != city.DefaultResidentialBuffer {
		t.Errorf("homes should carry the residential buffer, got %v", a.DemandBuffer)
	}
}

func TestResidentialBufferOverride(t *testing.T) {
	c := Default()
	c.ResidentialBuffer = 2
	if b := c.Find(city.ZoneResidential, 1, nil); b.DemandBuffer != 2 {
		t.Errorf("buffer = %v, want 2", b.DemandBuffer)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"ok", "buildings:\n  - {name: Hut, kind: residential, consumes: {GOODS: 1}}\n", false},
		{"unknown kind", "buildings:\n  - {name: Tower, kind: skyscraper}\n", true},
		{"unknown tradeable", "buildings:\n  - {name: Hut, kind: residential, consumes: {BEER: 1}}\n", true},
		{"negative", "buildings:\n  - {name: Hut, kind: residential, produces: {LABOR: -1}}\n", true},
		{"power plant", "buildings:\n  - {name: Plant, kind: powerplant}\n", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.body))
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseDefaultsFootprintAndLevel(t *testing.T) {
	c, err := Parse([]byte("buildings:\n  - {name: Hut, kind: residential}\n"))
	if err != nil {
		t.Fatal(err)
	}
	b, ok := c.Named("Hut")
	if !ok {
		t.Fatal("Hut not found")
	}
	if b.Width != 1 || b.Height != 1 || b.Level != 1 {
		t.Errorf("got %dx%d level %d", b.Width, b.Height, b.Level)
	}
}
