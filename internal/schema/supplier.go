package schema

import (
	"fmt"
	"net/mail"
	"strings"
)

// Trades is the vocabulary offered when registering a supplier.
var Trades = []string{
	"Électricien",
	"Plombier",
	"Ventilation",
	"Charpentier",
	"Peintre",
	"Maçon",
	"Couvreur",
	"Paysagiste",
	"Cuisiniste",
	"Général",
}

// Colors is the palette of calendar color tags, one per supplier.
var Colors = []string{
	"red", "orange", "amber", "green", "emerald", "teal", "cyan",
	"blue", "indigo", "violet", "purple", "fuchsia", "pink", "rose",
}

// Supplier is a subcontractor that tasks are assigned to.
type Supplier struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Trade string `json:"trade" yaml:"trade"`
	Color string `json:"color" yaml:"color"`
	// Email holds zero or more comma-separated addresses.
	Email string `json:"email,omitempty" yaml:"email,omitempty"`
}

// Validate checks if the Supplier has valid field values.
func (s *Supplier) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("name is required")
	}
	for _, addr := range s.Emails() {
		if _, err := mail.ParseAddress(addr); err != nil {
			return fmt.Errorf("invalid email %q: %w", addr, err)
		}
	}
	return nil
}

// Emails splits the comma-separated Email field, dropping blanks.
func (s *Supplier) Emails() []string {
	var out []string
	for _, part := range strings.Split(s.Email, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// KnownTrade reports whether trade is part of Trades.
func KnownTrade(trade string) bool {
	for _, t := range Trades {
		if strings.EqualFold(t, trade) {
			return true
		}
	}
	return false
}

// ColorFor picks a palette color for the n-th supplier.
func ColorFor(n int) string {
	if n < 0 {
		n = -n
	}
	return Colors[n%len(Colors)]
}

// FindSupplier returns the supplier with the given id, or nil.
func FindSupplier(suppliers []Supplier, id string) *Supplier {
	for i := range suppliers {
		if suppliers[i].ID == id {
			return &suppliers[i]
		}
	}
	return nil
}
