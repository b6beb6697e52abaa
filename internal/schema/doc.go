// Package schema defines the documents CrewFlo synchronizes.
//
// Three collections exist: projects, suppliers and tasks. Each collection is
// persisted as a single JSON array under one key and every mutation replaces
// the whole array. There is no per-record versioning:
//
//	crewflo_projects   → []Project
//	crewflo_suppliers  → []Supplier
//	crewflo_tasks      → []Task
//
// Conflicts are derived from the task list on demand and are never stored.
//
// Validation
//
// Validate methods check required fields and enumerations. They are meant for
// the edges of the system (CLI input, backup import); the sync layer itself
// stores whatever value it is handed.
//
// Seed data
//
// DefaultProjects, DefaultSuppliers and DefaultTasks return the demo data a
// fresh installation starts with, matching what a new user sees before any
// collection has been persisted.
package schema
