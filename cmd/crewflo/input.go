package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"golang.org/x/term"

	"github.com/crewflo/crewflo/internal/schema"
)

// Layouts accepted before falling back to natural language.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

var timeParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// parseTime reads an absolute time ("2026-03-02 08:00") or a phrase such as
// "next monday 8am", relative to base in base's location.
func parseTime(s string, base time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time")
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, base.Location()); err == nil {
			return t, nil
		}
	}
	r, err := timeParser.Parse(s, base)
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot parse time %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("cannot parse time %q", s)
	}
	return r.Time, nil
}

// parseSpan resolves --start and --end. An end given as a duration ("4h")
// is relative to the start.
func parseSpan(start, end string, base time.Time) (time.Time, time.Time, error) {
	from, err := parseTime(start, base)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if d, err := time.ParseDuration(strings.TrimSpace(end)); err == nil {
		return from, from.Add(d), nil
	}
	to, err := parseTime(end, from)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}

// confirm asks a yes/no question on the terminal. Without a terminal the
// answer is --yes.
func confirm(title string) bool {
	if yesFlag {
		return true
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintf(os.Stderr, "%s (pass --yes to confirm non-interactively)\n", title)
		return false
	}
	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	if err != nil {
		return false
	}
	return ok
}

// findProject matches a project by id, then by case-insensitive name.
func findProject(projects []schema.Project, ref string) (*schema.Project, error) {
	if p := schema.FindProject(projects, ref); p != nil {
		return p, nil
	}
	return matchName(projects, ref, "project", func(p *schema.Project) string { return p.Name })
}

// findSupplier matches a supplier by id, then by case-insensitive name.
func findSupplier(suppliers []schema.Supplier, ref string) (*schema.Supplier, error) {
	if s := schema.FindSupplier(suppliers, ref); s != nil {
		return s, nil
	}
	return matchName(suppliers, ref, "supplier", func(s *schema.Supplier) string { return s.Name })
}

func matchName[T any](items []T, ref, kind string, nameOf func(*T) string) (*T, error) {
	var found *T
	for i := range items {
		if strings.EqualFold(nameOf(&items[i]), strings.TrimSpace(ref)) {
			if found != nil {
				return nil, fmt.Errorf("%s name %q is ambiguous, use the id", kind, ref)
			}
			found = &items[i]
		}
	}
	if found == nil {
		return nil, fmt.Errorf("no %s matches %q", kind, ref)
	}
	return found, nil
}
