// Package catalog holds the static membership plan data for each gym site.
//
// The catalog is read-only at runtime. The conversation engine depends on it
// to validate that a selected plan belongs to the current location and to
// render plan detail messages.
package catalog

import "github.com/gymbrocolombia/gymbot/internal/models"

// Plan is a named membership tier offered at a specific site.
type Plan struct {
	ID    string
	Title string
	// Price is in thousands of COP, rendered as "NNN,000".
	Price int
	// Monthly is true for per-month pricing, false for a fixed-term total.
	Monthly bool
	// DurationDays is the contract length, used for renewal reminders.
	DurationDays int
	Benefits     []string
}

var julioPlans = []Plan{
	{
		ID: "motivado", Title: "Mes 30 días motivad@", Price: 66, Monthly: true, DurationDays: 30,
		Benefits: []string{
			"✅ 30 días de acceso",
			"✅ 1 invitado por 1 día",
			"✅ Acceso a la app",
		},
	},
	{
		ID: "firme", Title: "Bimestre firme", Price: 125, Monthly: false, DurationDays: 60,
		Benefits: []string{
			"✅ 2 meses de acceso",
			"✅ 1 invitado por 3 días",
			"✅ Acceso a la app",
		},
	},
	{
		ID: "disciplinado", Title: "Trimestre disciplinad@", Price: 177, Monthly: false, DurationDays: 90,
		Benefits: []string{
			"✅ 3 meses de acceso",
			"✅ 5 días de invitado gratis",
			"✅ Acceso a la app",
		},
	},
	{
		ID: "superfitt", Title: "Semestre super fitt", Price: 336, Monthly: false, DurationDays: 180,
		Benefits: []string{
			"✅ 6 meses de acceso",
			"✅ 10 días para invitado gratis",
			"✅ Acceso a la app",
		},
	},
	{
		ID: "pro", Title: "Anualidad pro", Price: 630, Monthly: false, DurationDays: 365,
		Benefits: []string{
			"✅ 12 meses de acceso",
			"✅ 30 días de invitado gratis",
			"✅ Acceso a la app",
			"✅ Acceso completo a todos los servicios",
			"✅ Clases grupales",
			"✅ Aplicación de rutinas",
			"✅ Servicio de profesionales del deporte",
			"✅ ¡Y mucho más!",
		},
	},
}

var veneciaPlans = []Plan{
	{
		ID: "flash", Title: "Plan GYMBRO Flash", Price: 70, Monthly: true, DurationDays: 30,
		Benefits: []string{
			"✅ Acceso ilimitado a la sede",
			"✅ 1 invitado/1 día al mes",
			"✅ Servicio de duchas",
			"✅ Parqueadero para motos y bicicletas gratis",
			"✅ Aplicación de rutina",
			"✅ Clases grupales",
			"✅ Entrenadores profesionales",
		},
	},
	{
		ID: "class", Title: "Plan GYMBRO Class", Price: 55, Monthly: true, DurationDays: 30,
		Benefits: []string{
			"✅ Para estudiantes de 13 a 17 años",
			"✅ Acceso ilimitado a la sede",
			"✅ Servicio de duchas",
			"✅ Aplicación de rutina",
			"✅ Clases grupales especiales para jóvenes",
			"✅ Entrenadores profesionales",
		},
	},
	{
		ID: "elite", Title: "Plan GYMBRO Elite", Price: 55, Monthly: true, DurationDays: 30,
		Benefits: []string{
			"✅ Exclusivo para servidores de fuerza pública",
			"✅ Acceso ilimitado a la sede",
			"✅ Servicio de duchas",
			"✅ Aplicación de rutina",
			"✅ Clases grupales especiales para jóvenes",
			"✅ Entrenadores profesionales",
		},
	},
	{
		ID: "bro", Title: "Plan Entrena con tu Bro", Price: 130, Monthly: true, DurationDays: 30,
		Benefits: []string{
			"✅ Plan para 2 personas (X2 PERSONAS)",
			"✅ Acceso ilimitado a la sede",
			"✅ Servicio de duchas",
			"✅ Parqueadero para motos y bicicletas gratis",
			"✅ Aplicación de rutina",
			"✅ Clases grupales",
			"✅ Entrenadores profesionales",
		},
	},
	{
		ID: "trimestre", Title: "Plan Bro Trimestre", Price: 185, Monthly: false, DurationDays: 90,
		Benefits: []string{
			"✅ Plan trimestral con descuento",
			"✅ Matrícula gratis",
			"✅ 1 semana gratis adicional",
			"✅ Servicio de duchas",
			"✅ Parqueadero para motos y bicicletas gratis",
			"✅ Aplicación de rutina",
			"✅ Clases grupales",
			"✅ Entrenadores profesionales",
		},
	},
	{
		ID: "semestre", Title: "Plan Semestre Bro", Price: 340, Monthly: false, DurationDays: 180,
		Benefits: []string{
			"✅ Plan semestral con descuento",
			"✅ +15 días por invitado gratis",
			"✅ Servicio de duchas",
			"✅ Parqueadero para motos y bicicletas gratis",
			"✅ Aplicación de rutina",
			"✅ Clases grupales",
			"✅ Entrenadores profesionales",
		},
	},
}

// ForLocation returns the plans offered at the given site in catalog order.
// LocationNone returns nil.
func ForLocation(loc models.Location) []Plan {
	switch loc {
	case models.LocationJulio:
		return julioPlans
	case models.LocationVenecia:
		return veneciaPlans
	default:
		return nil
	}
}

// Find looks up a plan by identifier within the given site's catalog.
func Find(loc models.Location, id string) (Plan, bool) {
	for _, p := range ForLocation(loc) {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}

// Exists reports whether any site offers a plan with the given identifier.
func Exists(id string) bool {
	for _, loc := range []models.Location{models.LocationJulio, models.LocationVenecia} {
		if _, ok := Find(loc, id); ok {
			return true
		}
	}
	return false
}

// DurationDays returns the contract length for a plan identifier, searching
// all sites. Unknown plans report zero.
func DurationDays(id string) int {
	for _, loc := range []models.Location{models.LocationJulio, models.LocationVenecia} {
		if p, ok := Find(loc, id); ok {
			return p.DurationDays
		}
	}
	return 0
}
