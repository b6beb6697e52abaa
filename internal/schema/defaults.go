package schema

import "time"

// DefaultProjects returns the demo projects of a fresh installation.
func DefaultProjects() []Project {
	return []Project{
		{ID: "p1", Name: "Résidence Lacroix", Address: "12 Chemin du Lac", Status: StatusActive},
		{ID: "p2", Name: "Condos Centre-Ville", Address: "450 Blvd Urbain", Status: StatusPlanning},
	}
}

// DefaultSuppliers returns the demo suppliers of a fresh installation.
func DefaultSuppliers() []Supplier {
	return []Supplier{
		{ID: "s1", Name: "ÉlecTout Inc.", Trade: "Électricien", Color: Colors[0], Email: "contact@electout.demo"},
		{ID: "s2", Name: "Plomberie Pro", Trade: "Plombier", Color: Colors[7], Email: "info@plomberie.demo"},
		{ID: "s3", Name: "Charpentes du Nord", Trade: "Charpentier", Color: Colors[2]},
	}
}

// DefaultTasks returns the demo task, scheduled 08:00-16:00 on now's day.
func DefaultTasks(now time.Time) []Task {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return []Task{
		{
			ID:         "t1",
			ProjectID:  "p1",
			SupplierID: "s1",
			Title:      "Câblage initial",
			Start:      day.Add(8 * time.Hour).UTC(),
			End:        day.Add(16 * time.Hour).UTC(),
		},
	}
}
