// Package rally models Rally work items, fetches them over the WSAPI
// and caches them as JSON documents on disk.
package rally

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Artifact is one Rally work item as cached on disk. Every field the
// migration consumes is modeled explicitly; attributes the source API
// exposes but this struct does not name are unsupported.
type Artifact struct {
	ObjectID      int64      `json:"objectId"`
	FormattedID   string     `json:"formattedId"`
	Type          string     `json:"type"`
	Name          string     `json:"name"`
	Project       string     `json:"project,omitempty"`
	Description   string     `json:"description,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	State         string     `json:"state,omitempty"`
	ScheduleState string     `json:"scheduleState,omitempty"`
	Priority      string     `json:"priority,omitempty"`
	Component     StringList `json:"component,omitempty"`
	Environment   string     `json:"environment,omitempty"`
	Blocked       bool       `json:"blocked,omitempty"`
	BlockedReason string     `json:"blockedReason,omitempty"`
	CreationDate  string     `json:"creationDate,omitempty"`
	PlanEstimate  *float64   `json:"planEstimate,omitempty"`

	AcceptanceCriteria string     `json:"acceptanceCriteria,omitempty"`
	Milestones         StringList `json:"milestones,omitempty"`
	ClientNames        StringList `json:"clientNames,omitempty"`

	CreatedBy *User      `json:"createdBy,omitempty"`
	Owner     *User      `json:"owner,omitempty"`
	Release   *Release   `json:"release,omitempty"`
	Iteration *Iteration `json:"iteration,omitempty"`

	// Defect carries the defect-specific detail block; nil for other types.
	Defect *DefectDetails `json:"defect,omitempty"`

	Discussion  []DiscussionEntry `json:"discussion,omitempty"`
	Attachments []AttachmentRef   `json:"attachments,omitempty"`

	Parent *Artifact `json:"parent,omitempty"`

	// Rally exposes child work items under one of three relationship
	// names depending on the artifact type.
	Children []*Artifact `json:"children,omitempty"`
	Stories  []*Artifact `json:"stories,omitempty"`
	Tasks    []*Artifact `json:"tasks,omitempty"`
}

// User is a Rally user reference.
type User struct {
	FirstName    string `json:"firstName,omitempty"`
	LastName     string `json:"lastName,omitempty"`
	Name         string `json:"name,omitempty"`
	EmailAddress string `json:"emailAddress,omitempty"`
}

// Release is the release an artifact is scheduled into.
type Release struct {
	Name             string     `json:"name"`
	ReleaseStartDate *time.Time `json:"releaseStartDate,omitempty"`
	ReleaseDate      *time.Time `json:"releaseDate,omitempty"`
}

// Iteration is the sprint an artifact is scheduled into.
type Iteration struct {
	Name      string     `json:"name"`
	StartDate *time.Time `json:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`
}

// DefectDetails holds the defect-only extension fields.
type DefectDetails struct {
	ExpectedResults  string `json:"expectedResults,omitempty"`
	ActualResults    string `json:"actualResults,omitempty"`
	RootCause        string `json:"rootCause,omitempty"`
	SiteURL          string `json:"siteUrl,omitempty"`
	StepsToReproduce string `json:"stepsToReproduce,omitempty"`
}

// DiscussionEntry is one comment on an artifact.
type DiscussionEntry struct {
	User         *User  `json:"user,omitempty"`
	Text         string `json:"text,omitempty"`
	CreationDate string `json:"creationDate,omitempty"`
}

// AttachmentRef points at an attachment blob cached on disk.
type AttachmentRef struct {
	ObjectID     int64  `json:"objectId"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	CreationDate string `json:"creationDate,omitempty"`
	User         *User  `json:"user,omitempty"`
}

// AllChildren flattens the three relationship lists, in a stable order.
func (a *Artifact) AllChildren() []*Artifact {
	out := make([]*Artifact, 0, len(a.Children)+len(a.Stories)+len(a.Tasks))
	out = append(out, a.Children...)
	out = append(out, a.Stories...)
	out = append(out, a.Tasks...)
	return out
}

// portfolioTypes are the Rally portfolio item type names that map onto
// epic-like groupings rather than plain work items.
var portfolioTypes = map[string]bool{
	"Feature":    true,
	"Initiative": true,
	"Theme":      true,
}

// IsPortfolioItem reports whether the artifact is an epic-like
// portfolio item (Feature, Initiative, Theme, or any PortfolioItem/*).
func (a *Artifact) IsPortfolioItem() bool {
	if strings.HasPrefix(a.Type, "PortfolioItem") {
		return true
	}
	return portfolioTypes[a.Type]
}

// FieldValue looks up an artifact field by its configured name, for
// label and custom-field mappings. The boolean is false when the field
// is unknown or empty.
func (a *Artifact) FieldValue(name string) (any, bool) {
	switch name {
	case "component":
		return a.Component, len(a.Component) > 0
	case "environment":
		return a.Environment, a.Environment != ""
	case "acceptanceCriteria":
		return a.AcceptanceCriteria, a.AcceptanceCriteria != ""
	case "milestones":
		return a.Milestones, len(a.Milestones) > 0
	case "clientNames":
		return a.ClientNames, len(a.ClientNames) > 0
	case "blockedReason":
		return a.BlockedReason, a.BlockedReason != ""
	case "project":
		return a.Project, a.Project != ""
	case "state":
		return a.State, a.State != ""
	case "priority":
		return a.Priority, a.Priority != ""
	case "planEstimate":
		if a.PlanEstimate == nil {
			return nil, false
		}
		return *a.PlanEstimate, true
	}
	return nil, false
}

// StringList accepts the scalar-or-list shapes Rally uses for fields
// like component and milestones: a bare string, an object with a name,
// or a list of either. It always normalizes to a flat list of names.
type StringList []string

func (s *StringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*s = nil
		return nil
	}

	switch data[0] {
	case '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = StringList{v}
		return nil
	case '{':
		v, err := nameOf(data)
		if err != nil {
			return err
		}
		*s = StringList{v}
		return nil
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		out := make(StringList, 0, len(raw))
		for _, el := range raw {
			el = bytes.TrimSpace(el)
			if len(el) == 0 {
				continue
			}
			if el[0] == '{' {
				v, err := nameOf(el)
				if err != nil {
					return err
				}
				out = append(out, v)
				continue
			}
			var v string
			if err := json.Unmarshal(el, &v); err != nil {
				return err
			}
			out = append(out, v)
		}
		*s = out
		return nil
	}
	return fmt.Errorf("string list: unsupported value %s", string(data))
}

func nameOf(data []byte) (string, error) {
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", err
	}
	return obj.Name, nil
}
