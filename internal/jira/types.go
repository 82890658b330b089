// Package jira builds a Jira bulk-import document from cached Rally
// artifacts: per-artifact translation, user deduplication, attachment
// resolution and cross-issue linking.
package jira

import "time"

// Issue is one issue entry in the bulk-import document. ExternalID
// carries the Rally formatted id and must be unique within one run.
type Issue struct {
	ExternalID        string        `json:"externalId"`
	Priority          string        `json:"priority,omitempty"`
	Created           string        `json:"created,omitempty"`
	IssueType         string        `json:"issueType"`
	Status            string        `json:"status,omitempty"`
	Resolution        string        `json:"resolution,omitempty"`
	Summary           string        `json:"summary"`
	Description       string        `json:"description,omitempty"`
	Environment       string        `json:"environment,omitempty"`
	Reporter          string        `json:"reporter,omitempty"`
	Assignee          string        `json:"assignee,omitempty"`
	Comments          []Comment     `json:"comments"`
	Attachments       []Attachment  `json:"attachments"`
	Labels            []string      `json:"labels"`
	Components        []Component   `json:"components,omitempty"`
	FixedVersions     []string      `json:"fixedVersions,omitempty"`
	CustomFieldValues []CustomField `json:"customFieldValues"`
}

// Comment is one translated discussion entry.
type Comment struct {
	Body    string `json:"body"`
	Author  string `json:"author,omitempty"`
	Created string `json:"created,omitempty"`
}

// Attachment describes an uploaded blob by retrieval URI.
type Attachment struct {
	Name        string `json:"name"`
	Attacher    string `json:"attacher,omitempty"`
	Created     string `json:"created,omitempty"`
	Description string `json:"description,omitempty"`
	URI         string `json:"uri"`
}

// Component is a named project component.
type Component struct {
	Name string `json:"name"`
}

// CustomField is one tagged custom-field entry on an issue.
type CustomField struct {
	FieldName string `json:"fieldName"`
	FieldType string `json:"fieldType"`
	Value     any    `json:"value"`
}

// Custom field type identifiers understood by the Jira importer.
const (
	fieldTypeFloat      = "com.atlassian.jira.plugin.system.customfieldtypes:float"
	fieldTypeText       = "com.atlassian.jira.plugin.system.customfieldtypes:textfield"
	fieldTypeEpicLabel  = "com.pyxis.greenhopper.jira:gh-epic-label"
	fieldTypeEpicStatus = "com.pyxis.greenhopper.jira:gh-epic-status"
	fieldTypeEpicLink   = "com.pyxis.greenhopper.jira:gh-epic-link"
	fieldTypeSprint     = "com.pyxis.greenhopper.jira:gh-sprint"
)

// SprintValue is the value of a derived Sprint custom field.
type SprintValue struct {
	Name      string     `json:"name"`
	State     string     `json:"state"`
	StartDate *time.Time `json:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`
}

// Sprint states derived from the iteration window.
const (
	SprintFuture = "FUTURE"
	SprintActive = "ACTIVE"
	SprintClosed = "CLOSED"
)

// Version is one project version discovered from artifact releases.
type Version struct {
	Name        string     `json:"name"`
	Released    bool       `json:"released"`
	StartDate   *time.Time `json:"startDate,omitempty"`
	ReleaseDate *time.Time `json:"releaseDate,omitempty"`
}

// Link is a directed edge between two issues, by external id.
type Link struct {
	Name          string `json:"name"`
	SourceID      string `json:"sourceId"`
	DestinationID string `json:"destinationId"`
}

// User is one deduplicated user record in the import document.
type User struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Fullname string `json:"fullname"`
}

// Project is the single project object of the import document.
type Project struct {
	Key         string    `json:"key"`
	Name        string    `json:"name"`
	Type        string    `json:"type,omitempty"`
	Description string    `json:"description,omitempty"`
	Issues      []*Issue  `json:"issues"`
	Versions    []Version `json:"versions"`
}

// ImportDocument is the root of the bulk-import JSON written once per run.
type ImportDocument struct {
	Users    []User     `json:"users"`
	Links    []Link     `json:"links"`
	Projects []*Project `json:"projects"`
}
