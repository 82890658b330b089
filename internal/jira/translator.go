package jira

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/trellis-eng/rally2jira/internal/config"
	"github.com/trellis-eng/rally2jira/internal/rally"
)

// Translator maps one Rally artifact onto one Jira import issue. It is
// deterministic for a fixed mapping table and reference clock; the user
// registry and version list are the only mutable side tables, shared
// across the whole run.
type Translator struct {
	mappings    config.Mappings
	text        *TextTranslator
	users       *UserRegistry
	attachments *AttachmentResolver
	now         func() time.Time
	logger      *slog.Logger

	versions []Version
}

// NewTranslator creates a Translator sharing users and attachments with
// the run. now supplies the reference clock for sprint-state and
// version-released derivation.
func NewTranslator(
	mappings config.Mappings,
	text *TextTranslator,
	users *UserRegistry,
	attachments *AttachmentResolver,
	now func() time.Time,
	logger *slog.Logger,
) *Translator {
	if now == nil {
		now = time.Now
	}
	return &Translator{
		mappings:    mappings,
		text:        text,
		users:       users,
		attachments: attachments,
		now:         now,
		logger:      logger,
	}
}

// CreateIssue translates one artifact. An artifact type with no issue
// type mapping is a configuration error and aborts the run; every other
// unmapped or absent field degrades to an omitted value.
func (t *Translator) CreateIssue(ctx context.Context, a *rally.Artifact) (*Issue, error) {
	issueType, ok := t.mappings.Artifacts[a.Type]
	if !ok {
		return nil, fmt.Errorf("no issue type mapping for artifact type %q (%s)", a.Type, a.FormattedID)
	}

	priority := t.mappings.Priority[a.Priority]
	if a.Priority != "" && priority == "" {
		t.logger.Debug("unmapped priority", "artifact", a.FormattedID, "priority", a.Priority)
	}

	status := t.status(a, issueType)
	resolution := ""
	if status != "" {
		resolution = t.mappings.Resolution[status]
	}

	description, tickets := t.text.Translate(t.describe(a))

	issue := &Issue{
		ExternalID:        a.FormattedID,
		Priority:          priority,
		Created:           a.CreationDate,
		IssueType:         issueType,
		Status:            status,
		Resolution:        resolution,
		Summary:           a.Name,
		Description:       description,
		Environment:       a.Environment,
		Reporter:          t.users.Resolve(a.CreatedBy),
		Comments:          []Comment{},
		Attachments:       []Attachment{},
		Labels:            t.labels(a),
		CustomFieldValues: []CustomField{},
	}

	for _, d := range a.Discussion {
		if d.Text == "" {
			continue
		}
		body, newTickets := t.text.Translate(d.Text)
		tickets = append(tickets, newTickets...)
		issue.Comments = append(issue.Comments, Comment{
			Body:    body,
			Author:  t.users.Resolve(d.User),
			Created: d.CreationDate,
		})
	}

	issue.Attachments = t.resolveAttachments(ctx, a)

	if issueType != "Epic" {
		issue.Components = t.components(a)
	}

	if a.Owner != nil {
		issue.Assignee = t.users.Resolve(a.Owner)
	}

	t.customFields(a, issue, tickets)

	if a.Release != nil {
		v := Version{
			Name:        a.Release.Name,
			Released:    a.Release.ReleaseDate != nil && a.Release.ReleaseDate.Before(t.now()),
			StartDate:   a.Release.ReleaseStartDate,
			ReleaseDate: a.Release.ReleaseDate,
		}
		t.registerVersion(v)
		issue.FixedVersions = []string{v.Name}
	}

	return issue, nil
}

// Versions returns the run-wide version list accumulated so far.
func (t *Translator) Versions() []Version {
	return t.versions
}

// status resolves the Jira status with the type-specific lookup order:
// a category table for Epics and Bugs when configured, otherwise the
// generic issue table keyed by schedule state, falling back to state.
func (t *Translator) status(a *rally.Artifact, issueType string) string {
	if issueType == "Epic" {
		if table, ok := t.mappings.Status["epic"]; ok {
			return t.lookupStatus(a, table, a.State)
		}
	}
	if issueType == "Bug" {
		if table, ok := t.mappings.Status["bug"]; ok {
			return t.lookupStatus(a, table, a.State)
		}
	}
	key := a.ScheduleState
	if key == "" {
		key = a.State
	}
	return t.lookupStatus(a, t.mappings.Status["issue"], key)
}

func (t *Translator) lookupStatus(a *rally.Artifact, table map[string]string, key string) string {
	if key == "" {
		return ""
	}
	status, ok := table[key]
	if !ok {
		t.logger.Debug("unmapped status", "artifact", a.FormattedID, "state", key)
	}
	return status
}

// describe concatenates description and notes, then appends each
// non-empty defect detail as its own labeled section, in a fixed order.
// The result still carries Rally HTML; the caller translates it.
func (t *Translator) describe(a *rally.Artifact) string {
	var sb strings.Builder
	sb.WriteString(a.Description)
	sb.WriteString("\n")
	sb.WriteString(a.Notes)

	if a.Defect != nil {
		sections := []struct {
			title string
			body  string
		}{
			{"Expected Results", a.Defect.ExpectedResults},
			{"Actual Results", a.Defect.ActualResults},
			{"Root Cause", a.Defect.RootCause},
			{"Site URL", a.Defect.SiteURL},
			{"Steps To Reproduce", a.Defect.StepsToReproduce},
		}
		for _, s := range sections {
			if s.body == "" {
				continue
			}
			sb.WriteString("<h3>")
			sb.WriteString(s.title)
			sb.WriteString("</h3>")
			sb.WriteString(s.body)
		}
	}

	return sb.String()
}

func (t *Translator) resolveAttachments(ctx context.Context, a *rally.Artifact) []Attachment {
	attachments := []Attachment{}
	for _, ref := range a.Attachments {
		blobPath, found := t.attachments.Locate(ref)
		if !found {
			t.logger.Warn("attachment blob missing, skipping",
				"artifact", a.FormattedID, "attachment", ref.ObjectID, "name", ref.Name)
			continue
		}
		uri, err := t.attachments.RetrievalURL(ctx, ref, blobPath)
		if err != nil {
			t.logger.Warn("attachment upload failed, skipping",
				"artifact", a.FormattedID, "attachment", ref.ObjectID, "error", err)
			continue
		}
		attachments = append(attachments, Attachment{
			Name:        ref.Name,
			Attacher:    t.users.Resolve(ref.User),
			Created:     ref.CreationDate,
			Description: ref.Description,
			URI:         uri,
		})
	}
	return attachments
}

func (t *Translator) labels(a *rally.Artifact) []string {
	labels := []string{}
	for _, field := range t.mappings.Labels.Fields {
		value, ok := a.FieldValue(field)
		if !ok {
			continue
		}
		switch v := value.(type) {
		case rally.StringList:
			labels = append(labels, v...)
		case string:
			labels = append(labels, v)
		case float64:
			labels = append(labels, strconv.FormatFloat(v, 'f', -1, 64))
		default:
			labels = append(labels, fmt.Sprint(v))
		}
	}
	if a.Blocked {
		labels = append(labels, "Blocked")
	}
	return labels
}

func (t *Translator) components(a *rally.Artifact) []Component {
	if len(a.Component) == 0 {
		return nil
	}
	components := make([]Component, 0, len(a.Component))
	for _, name := range a.Component {
		components = append(components, Component{Name: name})
	}
	return components
}

// customFields attaches the derived and configured custom fields, in a
// fixed order: story points, sprint, foreign tickets, epic fields, then
// every remaining configured mapping.
func (t *Translator) customFields(a *rally.Artifact, issue *Issue, tickets []string) {
	if a.PlanEstimate != nil {
		issue.CustomFieldValues = append(issue.CustomFieldValues, CustomField{
			FieldName: "Story Points",
			FieldType: fieldTypeFloat,
			Value:     *a.PlanEstimate,
		})
	}

	if a.Iteration != nil {
		issue.CustomFieldValues = append(issue.CustomFieldValues, CustomField{
			FieldName: "Sprint",
			FieldType: fieldTypeSprint,
			Value: SprintValue{
				Name:      a.Iteration.Name,
				State:     sprintState(a.Iteration, t.now()),
				StartDate: a.Iteration.StartDate,
				EndDate:   a.Iteration.EndDate,
			},
		})
	}

	if len(tickets) > 0 {
		issue.CustomFieldValues = append(issue.CustomFieldValues, CustomField{
			FieldName: "Zendesk Tickets",
			FieldType: fieldTypeText,
			Value:     strings.Join(tickets, ","),
		})
	}

	if issue.IssueType == "Epic" {
		issue.CustomFieldValues = append(issue.CustomFieldValues,
			CustomField{
				FieldName: "Epic Name",
				FieldType: fieldTypeEpicLabel,
				Value:     issue.Summary,
			},
			CustomField{
				FieldName: "Epic Status",
				FieldType: fieldTypeEpicStatus,
				Value:     issue.Status,
			},
		)
	}

	for _, cf := range t.mappings.CustomFields {
		value, ok := a.FieldValue(cf.Field)
		if !ok {
			continue
		}
		if list, isList := value.(rally.StringList); isList {
			value = strings.Join(list, ",")
		}
		issue.CustomFieldValues = append(issue.CustomFieldValues, CustomField{
			FieldName: cf.Name,
			FieldType: cf.Type,
			Value:     value,
		})
	}
}

// sprintState classifies the iteration window against the reference
// clock.
func sprintState(it *rally.Iteration, now time.Time) string {
	if it.StartDate != nil && now.Before(*it.StartDate) {
		return SprintFuture
	}
	if it.EndDate != nil && now.After(*it.EndDate) {
		return SprintClosed
	}
	return SprintActive
}

// registerVersion adds v to the run-wide version list unless a version
// of the same name is already registered.
func (t *Translator) registerVersion(v Version) {
	for _, existing := range t.versions {
		if existing.Name == v.Name {
			return
		}
	}
	t.versions = append(t.versions, v)
}
