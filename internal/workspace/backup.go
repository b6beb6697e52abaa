package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/crewflo/crewflo/internal/schema"
)

// BackupVersion is written into every exported backup.
const BackupVersion = "2.1.0"

// ErrInvalidBackup is returned when a backup lacks one of the collections.
var ErrInvalidBackup = errors.New("workspace: invalid backup format")

// Backup is a full export of one tenant.
type Backup struct {
	Version   string            `json:"version" yaml:"version"`
	CompanyID string            `json:"companyId" yaml:"companyId"`
	Timestamp time.Time         `json:"timestamp" yaml:"timestamp"`
	Projects  []schema.Project  `json:"projects" yaml:"projects"`
	Suppliers []schema.Supplier `json:"suppliers" yaml:"suppliers"`
	Tasks     []schema.Task     `json:"tasks" yaml:"tasks"`
}

// Validate checks that all three collections are present. Empty arrays are
// fine; missing or null ones are not.
func (b *Backup) Validate() error {
	var missing []string
	if b.Projects == nil {
		missing = append(missing, "projects")
	}
	if b.Suppliers == nil {
		missing = append(missing, "suppliers")
	}
	if b.Tasks == nil {
		missing = append(missing, "tasks")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidBackup, strings.Join(missing, ", "))
	}
	return nil
}

// Format selects the backup encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks YAML for .yaml/.yml files and JSON otherwise.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Export snapshots the current collections.
func (w *Workspace) Export() *Backup {
	return &Backup{
		Version:   BackupVersion,
		CompanyID: w.companyID,
		Timestamp: w.now().UTC(),
		Projects:  nonNil(w.Projects.Read()),
		Suppliers: nonNil(w.Suppliers.Read()),
		Tasks:     nonNil(w.Tasks.Read()),
	}
}

// Import replaces every collection with the backup contents. Each
// replacement is a local mutation and can be undone.
func (w *Workspace) Import(b *Backup) error {
	if err := w.checkWritable(); err != nil {
		return err
	}
	if b == nil {
		return fmt.Errorf("%w: empty backup", ErrInvalidBackup)
	}
	if err := b.Validate(); err != nil {
		return err
	}

	w.Projects.Set(b.Projects)
	w.Suppliers.Set(b.Suppliers)
	w.Tasks.Set(b.Tasks)

	w.logger.Printf("restored backup of %s from %s (%d projects, %d suppliers, %d tasks)",
		displayCompany(b.CompanyID), b.Timestamp.Format(time.RFC3339),
		len(b.Projects), len(b.Suppliers), len(b.Tasks))
	return nil
}

// EncodeBackup writes b in the given format.
func EncodeBackup(out io.Writer, b *Backup, format Format) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(b); err != nil {
			return fmt.Errorf("failed to encode backup: %w", err)
		}
		return enc.Close()
	case FormatJSON, "":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(b); err != nil {
			return fmt.Errorf("failed to encode backup: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown backup format %q", format)
	}
}

// DecodeBackup reads and validates a backup.
func DecodeBackup(in io.Reader, format Format) (*Backup, error) {
	var b Backup
	switch format {
	case FormatYAML:
		if err := yaml.NewDecoder(in).Decode(&b); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidBackup, err)
		}
	case FormatJSON, "":
		if err := json.NewDecoder(in).Decode(&b); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidBackup, err)
		}
	default:
		return nil, fmt.Errorf("unknown backup format %q", format)
	}

	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// BackupFilename names an export file, e.g.
// CrewFlo_Backup_Acme-X1Y2Z3_2026-05-04.json.
func BackupFilename(companyID string, now time.Time) string {
	return fmt.Sprintf("CrewFlo_Backup_%s_%s.json", displayCompany(companyID), now.UTC().Format("2006-01-02"))
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
