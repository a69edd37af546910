// Package directory supplies the read-only contact list. The surrounding
// application maintains the file; the messaging engine only resolves ids to
// display metadata and never writes back.
package directory

import (
	"fmt"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"campuschat/internal/domain"
)

// Directory is an immutable snapshot of the contact list.
type Directory struct {
	byID    map[int64]domain.Contact
	ordered []domain.Contact
}

type contactsFile struct {
	Contacts []domain.Contact `yaml:"contacts"`
}

// Load reads the contacts YAML file. Entries without a positive id or a name
// are skipped with a warning rather than failing the whole load.
func Load(path string, logger *slog.Logger) (*Directory, error) {
	if logger == nil {
		logger = slog.Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read contacts file: %w", err)
	}

	var file contactsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse contacts file: %w", err)
	}

	d := &Directory{byID: make(map[int64]domain.Contact, len(file.Contacts))}
	for _, c := range file.Contacts {
		if c.ID <= 0 || c.Name == "" {
			logger.Warn("skipping malformed contact entry", "id", c.ID, "name", c.Name)
			continue
		}
		if _, dup := d.byID[c.ID]; dup {
			logger.Warn("skipping duplicate contact id", "id", c.ID)
			continue
		}
		d.byID[c.ID] = c
		d.ordered = append(d.ordered, c)
	}

	logger.Info("directory loaded", "path", path, "contacts", len(d.ordered))
	return d, nil
}

// FromContacts builds a directory from an in-memory list; used by tests and
// by hosts that resolve contacts themselves.
func FromContacts(contacts []domain.Contact) *Directory {
	d := &Directory{byID: make(map[int64]domain.Contact, len(contacts))}
	for _, c := range contacts {
		if _, dup := d.byID[c.ID]; dup {
			continue
		}
		d.byID[c.ID] = c
		d.ordered = append(d.ordered, c)
	}
	return d
}

func (d *Directory) Resolve(id int64) (domain.Contact, bool) {
	c, ok := d.byID[id]
	return c, ok
}

// List returns the contacts in file order.
func (d *Directory) List() []domain.Contact {
	return slices.Clone(d.ordered)
}
