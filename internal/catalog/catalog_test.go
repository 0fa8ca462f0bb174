package catalog

import (
	"testing"

	"github.com/gymbrocolombia/gymbot/internal/models"
)

func TestForLocation(t *testing.T) {
	julio := ForLocation(models.LocationJulio)
	if len(julio) != 5 {
		t.Errorf("20 de Julio has %d plans, want 5", len(julio))
	}
	venecia := ForLocation(models.LocationVenecia)
	if len(venecia) != 6 {
		t.Errorf("Venecia has %d plans, want 6", len(venecia))
	}
	if got := ForLocation(models.LocationNone); got != nil {
		t.Errorf("no location should have no plans, got %d", len(got))
	}
}

func TestFind(t *testing.T) {
	p, ok := Find(models.LocationVenecia, "flash")
	if !ok {
		t.Fatal("flash should exist in Venecia")
	}
	if p.Price != 70 || !p.Monthly {
		t.Errorf("unexpected flash plan: %+v", p)
	}
	if _, ok := Find(models.LocationJulio, "flash"); ok {
		t.Error("flash must not exist in 20 de Julio")
	}
	if _, ok := Find(models.LocationVenecia, "nope"); ok {
		t.Error("unknown id should not be found")
	}
}

func TestExists(t *testing.T) {
	for _, id := range []string{"motivado", "pro", "flash", "semestre"} {
		if !Exists(id) {
			t.Errorf("plan %q should exist", id)
		}
	}
	if Exists("platino") {
		t.Error("unknown plan reported as existing")
	}
}

func TestDurationDays(t *testing.T) {
	cases := map[string]int{
		"motivado":   30,
		"firme":      60,
		"superfitt":  180,
		"pro":        365,
		"trimestre":  90,
		"desconocido": 0,
	}
	for id, want := range cases {
		if got := DurationDays(id); got != want {
			t.Errorf("DurationDays(%q) = %d, want %d", id, got, want)
		}
	}
}
