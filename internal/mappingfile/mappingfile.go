// Package mappingfile reads YAML documents that declare a connection and the
// mappings bound to it, and upserts them into the database.
//
//	connection:
//	  name: prod
//	  url: https://instance.example.com
//	  auth_kind: basic
//	  credentials:
//	    username: admin
//	    password: ${REMOTE_PASSWORD}
//	mappings:
//	  - name: applications
//	    card_type: application
//	    remote_table: cmdb_ci_appl
//	    schedule: "0 * * * *"
//	    fields:
//	      - remote: name
//	        local: name
//	        identity: true
//
// Credential values are expanded from the environment.
package mappingfile

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mrlokans/cardsync/internal/crypto"
	"github.com/mrlokans/cardsync/internal/entities"
	"github.com/mrlokans/cardsync/internal/scheduler"
)

// Document is one mapping file.
type Document struct {
	Connection Connection `yaml:"connection"`
	Mappings   []Mapping  `yaml:"mappings"`
}

type Connection struct {
	Name        string            `yaml:"name"`
	URL         string            `yaml:"url"`
	AuthKind    entities.AuthKind `yaml:"auth_kind"`
	Credentials map[string]string `yaml:"credentials,omitempty"`
	IsActive    *bool             `yaml:"is_active,omitempty"`
}

type Mapping struct {
	Name             string                 `yaml:"name"`
	CardType         string                 `yaml:"card_type"`
	RemoteTable      string                 `yaml:"remote_table"`
	SyncDirection    entities.SyncDirection `yaml:"sync_direction,omitempty"`
	SyncMode         entities.SyncMode      `yaml:"sync_mode,omitempty"`
	MaxDeletionRatio *float64               `yaml:"max_deletion_ratio,omitempty"`
	RemoteFilter     string                 `yaml:"remote_filter,omitempty"`
	SkipStaging      bool                   `yaml:"skip_staging,omitempty"`
	AutoApply        bool                   `yaml:"auto_apply,omitempty"`
	Schedule         string                 `yaml:"schedule,omitempty"`
	IsActive         *bool                  `yaml:"is_active,omitempty"`
	Fields           []Field                `yaml:"fields"`
}

type Field struct {
	Remote          string                  `yaml:"remote"`
	Local           string                  `yaml:"local"`
	Direction       entities.FieldDirection `yaml:"direction,omitempty"`
	Transform       entities.TransformType  `yaml:"transform,omitempty"`
	TransformConfig map[string]any          `yaml:"transform_config,omitempty"`
	Identity        bool                    `yaml:"identity,omitempty"`
}

// Load reads and validates a mapping file.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is operator supplied
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a mapping document. Unknown keys are rejected.
func Parse(data []byte) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse mapping file: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate reports every problem in the document at once.
func (d *Document) Validate() error {
	var errs []error

	c := d.Connection
	if c.Name == "" {
		errs = append(errs, errors.New("connection.name is required"))
	}
	if !strings.HasPrefix(c.URL, "https://") && !strings.HasPrefix(c.URL, "http://") {
		errs = append(errs, fmt.Errorf("connection.url %q must be an http(s) URL", c.URL))
	}
	switch c.AuthKind {
	case entities.AuthKindBasic, entities.AuthKindOAuth2:
	default:
		errs = append(errs, fmt.Errorf("connection.auth_kind %q must be basic or oauth2", c.AuthKind))
	}

	seen := make(map[string]bool, len(d.Mappings))
	for i, m := range d.Mappings {
		prefix := fmt.Sprintf("mappings[%d]", i)
		if m.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else if seen[m.Name] {
			errs = append(errs, fmt.Errorf("%s.name %q is duplicated", prefix, m.Name))
		}
		seen[m.Name] = true

		errs = append(errs, m.validate(prefix)...)
	}

	return errors.Join(errs...)
}

func (m *Mapping) validate(prefix string) []error {
	var errs []error
	if m.CardType == "" {
		errs = append(errs, fmt.Errorf("%s.card_type is required", prefix))
	}
	if m.RemoteTable == "" {
		errs = append(errs, fmt.Errorf("%s.remote_table is required", prefix))
	}
	switch m.SyncDirection {
	case "", entities.SyncDirectionPull, entities.SyncDirectionPush, entities.SyncDirectionBidirectional:
	default:
		errs = append(errs, fmt.Errorf("%s.sync_direction %q is invalid", prefix, m.SyncDirection))
	}
	switch m.SyncMode {
	case "", entities.SyncModeAdditive, entities.SyncModeConservative, entities.SyncModeStrict:
	default:
		errs = append(errs, fmt.Errorf("%s.sync_mode %q is invalid", prefix, m.SyncMode))
	}
	if r := m.MaxDeletionRatio; r != nil && (*r < 0 || *r > 1) {
		errs = append(errs, fmt.Errorf("%s.max_deletion_ratio must be within [0, 1]", prefix))
	}
	if m.Schedule != "" {
		if err := scheduler.ValidateCronSchedule(m.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("%s.schedule: %w", prefix, err))
		}
	}
	if len(m.Fields) == 0 {
		errs = append(errs, fmt.Errorf("%s.fields must not be empty", prefix))
	}
	for j, f := range m.Fields {
		fp := fmt.Sprintf("%s.fields[%d]", prefix, j)
		if f.Remote == "" || f.Local == "" {
			errs = append(errs, fmt.Errorf("%s needs both remote and local", fp))
		}
		switch f.Direction {
		case "", entities.FieldDirectionRemoteLeads, entities.FieldDirectionLocalLeads:
		default:
			errs = append(errs, fmt.Errorf("%s.direction %q is invalid", fp, f.Direction))
		}
		switch f.Transform {
		case "", entities.TransformDirect, entities.TransformValueMap, entities.TransformDateFormat, entities.TransformBoolean:
		default:
			errs = append(errs, fmt.Errorf("%s.transform %q is invalid", fp, f.Transform))
		}
	}
	return errs
}

// credentials expands environment references in credential values.
func (c *Connection) credentials() crypto.Credentials {
	if len(c.Credentials) == 0 {
		return nil
	}
	creds := make(crypto.Credentials, len(c.Credentials))
	for k, v := range c.Credentials {
		creds[k] = os.ExpandEnv(v)
	}
	return creds
}

func (c *Connection) entity() *entities.Connection {
	return &entities.Connection{
		Name:     c.Name,
		URL:      strings.TrimRight(c.URL, "/"),
		AuthKind: c.AuthKind,
		IsActive: c.IsActive == nil || *c.IsActive,
	}
}

// entity converts the declaration into a mapping with defaults filled in.
func (m *Mapping) entity(connectionID uint) *entities.Mapping {
	mapping := &entities.Mapping{
		Name:             m.Name,
		ConnectionID:     connectionID,
		CardType:         m.CardType,
		RemoteTable:      m.RemoteTable,
		SyncDirection:    m.SyncDirection,
		SyncMode:         m.SyncMode,
		MaxDeletionRatio: entities.DefaultMaxDeletionRatio,
		RemoteFilter:     m.RemoteFilter,
		SkipStaging:      m.SkipStaging,
		AutoApply:        m.AutoApply,
		Schedule:         m.Schedule,
		IsActive:         m.IsActive == nil || *m.IsActive,
	}
	if mapping.SyncDirection == "" {
		mapping.SyncDirection = entities.SyncDirectionPull
	}
	if mapping.SyncMode == "" {
		mapping.SyncMode = entities.SyncModeAdditive
	}
	if m.MaxDeletionRatio != nil {
		mapping.MaxDeletionRatio = *m.MaxDeletionRatio
	}

	for _, f := range m.Fields {
		fm := entities.FieldMapping{
			RemoteField:     f.Remote,
			LocalFieldPath:  f.Local,
			Direction:       f.Direction,
			TransformType:   f.Transform,
			TransformConfig: f.TransformConfig,
			IsIdentity:      f.Identity,
		}
		if fm.Direction == "" {
			fm.Direction = entities.FieldDirectionRemoteLeads
		}
		mapping.FieldMappings = append(mapping.FieldMappings, fm)
	}
	return mapping
}
