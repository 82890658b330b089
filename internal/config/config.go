// Package config loads the migration mapping table and connection
// settings from a TOML file.
package config

import (
	"fmt"
	"net/url"

	"github.com/BurntSushi/toml"
)

// Config is the root of the TOML document.
type Config struct {
	Rally   Rally   `toml:"rally"`
	Jira    Jira    `toml:"jira"`
	AWS     AWS     `toml:"aws"`
	Zendesk Zendesk `toml:"zendesk"`
}

// Rally holds source-system connection settings and the cache root.
type Rally struct {
	OutputRoot string   `toml:"output_root"`
	SDK        RallySDK `toml:"sdk"`
}

// RallySDK mirrors the WSAPI connection block.
type RallySDK struct {
	Server    string `toml:"server"`
	APIKey    string `toml:"api_key"`
	Workspace string `toml:"workspace"`
	Project   string `toml:"project"`
}

// Jira holds the target project seed, the output path and the mapping table.
type Jira struct {
	OutputFile string      `toml:"output_file"`
	Project    JiraProject `toml:"project"`
	Mappings   Mappings    `toml:"mappings"`
}

// JiraProject seeds the project object of the import document.
type JiraProject struct {
	Key         string `toml:"key" json:"key"`
	Name        string `toml:"name" json:"name"`
	Type        string `toml:"type" json:"type,omitempty"`
	Description string `toml:"description" json:"description,omitempty"`
}

// Mappings is the static translation table between the two schemas.
type Mappings struct {
	// Artifacts maps a Rally artifact type tag to a Jira issue type.
	// A missing entry is a configuration error and aborts the run.
	Artifacts map[string]string `toml:"artifacts"`

	// Priority maps Rally priority values; unmapped values degrade to none.
	Priority map[string]string `toml:"priority"`

	// Status holds per-issuetype-category state tables keyed "issue",
	// "epic" and "bug". Epics and Bugs fall back to the "issue" table
	// when their category table is absent.
	Status map[string]map[string]string `toml:"status"`

	// Resolution is keyed by the already-mapped Jira status.
	Resolution map[string]string `toml:"resolution"`

	Labels       Labels        `toml:"labels"`
	CustomFields []CustomField `toml:"custom_fields"`
	Links        Links         `toml:"links"`
}

// Labels lists artifact field names whose values become issue labels.
type Labels struct {
	Fields []string `toml:"fields"`
}

// CustomField maps one artifact field onto a Jira custom field.
type CustomField struct {
	Field string `toml:"field"` // artifact field name, e.g. "environment"
	Name  string `toml:"name"`  // Jira custom field name
	Type  string `toml:"type"`  // Jira custom field type identifier
}

// Links selects the issue-link type used for parent/child edges.
// The default "sub-task-link" points child to parent; any other named
// type (e.g. "Dependent") points parent to child.
type Links struct {
	Type string `toml:"type"`
}

// AWS configures the attachment blob store.
type AWS struct {
	Bucket               string `toml:"bucket"`
	Region               string `toml:"region"`
	Endpoint             string `toml:"endpoint"`
	AccessKey            string `toml:"access_key"`
	SecretKey            string `toml:"secret_key"`
	PresignExpirySeconds int    `toml:"presign_expiry_seconds"`
}

// Zendesk identifies the external ticketing system whose links are
// harvested from translated text.
type Zendesk struct {
	Server string `toml:"server"`
}

// Load reads and validates a Config from path.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Jira.Mappings.Artifacts) == 0 {
		return fmt.Errorf("jira.mappings.artifacts must not be empty")
	}
	if c.Jira.OutputFile == "" {
		return fmt.Errorf("jira.output_file is required")
	}
	if c.Rally.OutputRoot == "" {
		return fmt.Errorf("rally.output_root is required")
	}
	return nil
}

// Links returns the link mapping with the default type applied.
func (c *Config) Links() Links {
	l := c.Jira.Mappings.Links
	if l.Type == "" {
		l.Type = "sub-task-link"
	}
	return l
}

// ZendeskDomain returns the host part of the configured Zendesk server,
// or "" when no server is configured.
func (c *Config) ZendeskDomain() string {
	if c.Zendesk.Server == "" {
		return ""
	}
	u, err := url.Parse(c.Zendesk.Server)
	if err != nil {
		return ""
	}
	return u.Host
}
