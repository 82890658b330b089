package jira

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trellis-eng/rally2jira/internal/config"
	"github.com/trellis-eng/rally2jira/internal/rally"
)

var refNow = time.Date(2021, 6, 15, 12, 0, 0, 0, time.UTC)

func testMappings() config.Mappings {
	return config.Mappings{
		Artifacts: map[string]string{
			"HierarchicalRequirement": "Story",
			"Defect":                  "Bug",
			"Task":                    "Task",
			"Feature":                 "Epic",
		},
		Priority: map[string]string{
			"High Attention": "High",
		},
		Status: map[string]map[string]string{
			"issue": {
				"Completed":   "Done",
				"Accepted":    "Done",
				"In-Progress": "In Progress",
				"Defined":     "To Do",
			},
		},
		Resolution: map[string]string{
			"Done": "Done",
		},
		Labels: config.Labels{Fields: []string{}},
	}
}

func newTestTranslator(t *testing.T, m config.Mappings) (*Translator, *UserRegistry) {
	t.Helper()
	cache := rally.NewCache(t.TempDir(), discardLogger())
	users := NewUserRegistry()
	resolver := NewAttachmentResolver(cache, &fakeStore{}, 0, false, discardLogger())
	tr := NewTranslator(m, NewTextTranslator(ticketDomain), users, resolver,
		func() time.Time { return refNow }, discardLogger())
	return tr, users
}

func TestCreateIssueStory(t *testing.T) {
	tr, users := newTestTranslator(t, testMappings())

	artifact := &rally.Artifact{
		ObjectID:    1001,
		FormattedID: "US123",
		Type:        "HierarchicalRequirement",
		Name:        "Add login",
		State:       "Completed",
		Component:   rally.StringList{"Auth"},
		Owner:       &rally.User{FirstName: "A", LastName: "B", EmailAddress: "a@x.com"},
	}

	issue, err := tr.CreateIssue(context.Background(), artifact)
	require.NoError(t, err)

	assert.Equal(t, "US123", issue.ExternalID)
	assert.Equal(t, "Story", issue.IssueType)
	assert.Equal(t, "Done", issue.Status)
	assert.Equal(t, "Done", issue.Resolution)
	assert.Equal(t, "Add login", issue.Summary)
	assert.Equal(t, "A B", issue.Assignee)
	assert.Equal(t, []Component{{Name: "Auth"}}, issue.Components)

	snapshot := users.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, "a@x.com", snapshot[0].Email)
}

func TestCreateIssueIsDeterministic(t *testing.T) {
	tr, _ := newTestTranslator(t, testMappings())

	estimate := 3.0
	artifact := &rally.Artifact{
		FormattedID:  "US1",
		Type:         "HierarchicalRequirement",
		Name:         "Stable",
		State:        "Completed",
		PlanEstimate: &estimate,
		Owner:        &rally.User{Name: "o", EmailAddress: "o@x.com"},
		Discussion: []rally.DiscussionEntry{
			{Text: "<p>first</p>", User: &rally.User{Name: "c", EmailAddress: "c@x.com"}},
		},
	}

	first, err := tr.CreateIssue(context.Background(), artifact)
	require.NoError(t, err)
	second, err := tr.CreateIssue(context.Background(), artifact)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCreateIssueUnmappedTypeIsFatal(t *testing.T) {
	tr, _ := newTestTranslator(t, testMappings())

	_, err := tr.CreateIssue(context.Background(), &rally.Artifact{
		FormattedID: "XX1",
		Type:        "TestCase",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TestCase")
}

func TestCreateIssueGracefulNulls(t *testing.T) {
	tr, _ := newTestTranslator(t, testMappings())

	issue, err := tr.CreateIssue(context.Background(), &rally.Artifact{
		FormattedID: "DE9",
		Type:        "Defect",
		Name:        "Mystery",
		State:       "Uncharted",  // unmapped
		Priority:    "Whenever",   // unmapped
	})
	require.NoError(t, err)

	assert.Empty(t, issue.Status)
	assert.Empty(t, issue.Resolution)
	assert.Empty(t, issue.Priority)
	assert.Empty(t, issue.Assignee)
}

func TestEpicCustomFields(t *testing.T) {
	m := testMappings()
	m.Status["issue"]["Done"] = "Done"
	tr, _ := newTestTranslator(t, m)

	issue, err := tr.CreateIssue(context.Background(), &rally.Artifact{
		FormattedID: "F42",
		Type:        "Feature",
		Name:        "Payments revamp",
		State:       "Done",
		Component:   rally.StringList{"Billing"},
	})
	require.NoError(t, err)

	require.Len(t, issue.CustomFieldValues, 2)
	assert.Equal(t, "Epic Name", issue.CustomFieldValues[0].FieldName)
	assert.Equal(t, "Payments revamp", issue.CustomFieldValues[0].Value)
	assert.Equal(t, "Epic Status", issue.CustomFieldValues[1].FieldName)
	assert.Equal(t, "Done", issue.CustomFieldValues[1].Value)

	// Epics never carry components, not even an empty list.
	data, err := json.Marshal(issue)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"components"`)
}

func TestStatusLookupOrder(t *testing.T) {
	t.Run("epic table wins over generic", func(t *testing.T) {
		m := testMappings()
		m.Status["epic"] = map[string]string{"Discovering": "In Discovery"}
		tr, _ := newTestTranslator(t, m)

		issue, err := tr.CreateIssue(context.Background(), &rally.Artifact{
			FormattedID:   "F1",
			Type:          "Feature",
			State:         "Discovering",
			ScheduleState: "Completed", // ignored for epics with an epic table
		})
		require.NoError(t, err)
		assert.Equal(t, "In Discovery", issue.Status)
	})

	t.Run("bug table wins over generic", func(t *testing.T) {
		m := testMappings()
		m.Status["bug"] = map[string]string{"Submitted": "Triage"}
		tr, _ := newTestTranslator(t, m)

		issue, err := tr.CreateIssue(context.Background(), &rally.Artifact{
			FormattedID: "DE1",
			Type:        "Defect",
			State:       "Submitted",
		})
		require.NoError(t, err)
		assert.Equal(t, "Triage", issue.Status)
	})

	t.Run("schedule state preferred in generic table", func(t *testing.T) {
		tr, _ := newTestTranslator(t, testMappings())

		issue, err := tr.CreateIssue(context.Background(), &rally.Artifact{
			FormattedID:   "US2",
			Type:          "HierarchicalRequirement",
			State:         "Defined",
			ScheduleState: "In-Progress",
		})
		require.NoError(t, err)
		assert.Equal(t, "In Progress", issue.Status)
	})

	t.Run("state fallback without schedule state", func(t *testing.T) {
		tr, _ := newTestTranslator(t, testMappings())

		issue, err := tr.CreateIssue(context.Background(), &rally.Artifact{
			FormattedID: "US3",
			Type:        "HierarchicalRequirement",
			State:       "Defined",
		})
		require.NoError(t, err)
		assert.Equal(t, "To Do", issue.Status)
	})
}

func TestSprintStates(t *testing.T) {
	day := 24 * time.Hour
	tests := []struct {
		name  string
		start time.Time
		end   time.Time
		want  string
	}{
		{"future", refNow.Add(day), refNow.Add(15 * day), SprintFuture},
		{"active", refNow.Add(-day), refNow.Add(day), SprintActive},
		{"closed", refNow.Add(-15 * day), refNow.Add(-day), SprintClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, _ := newTestTranslator(t, testMappings())

			issue, err := tr.CreateIssue(context.Background(), &rally.Artifact{
				FormattedID: "US7",
				Type:        "HierarchicalRequirement",
				Iteration: &rally.Iteration{
					Name:      "Sprint 9",
					StartDate: &tt.start,
					EndDate:   &tt.end,
				},
			})
			require.NoError(t, err)

			sprint := findCustomField(t, issue, "Sprint")
			value, ok := sprint.Value.(SprintValue)
			require.True(t, ok, "sprint value type: %T", sprint.Value)
			assert.Equal(t, "Sprint 9", value.Name)
			assert.Equal(t, tt.want, value.State)
		})
	}
}

func TestDefectDetailSections(t *testing.T) {
	tr, _ := newTestTranslator(t, testMappings())

	issue, err := tr.CreateIssue(context.Background(), &rally.Artifact{
		FormattedID: "DE5",
		Type:        "Defect",
		Description: "<p>Login fails.</p>",
		Defect: &rally.DefectDetails{
			ExpectedResults:  "Session starts",
			ActualResults:    "HTTP 500",
			SiteURL:          "https://stage.example.com",
			StepsToReproduce: "Click login",
		},
	})
	require.NoError(t, err)

	d := issue.Description
	assert.Contains(t, d, "Login fails.")

	// Sections appear in their fixed order; the empty root cause is skipped.
	expected := strings.Index(d, "h3. Expected Results")
	actual := strings.Index(d, "h3. Actual Results")
	site := strings.Index(d, "h3. Site URL")
	steps := strings.Index(d, "h3. Steps To Reproduce")
	require.True(t, expected >= 0 && actual >= 0 && site >= 0 && steps >= 0, "missing section in %q", d)
	assert.True(t, expected < actual && actual < site && site < steps)
	assert.NotContains(t, d, "Root Cause")
}

func TestLabels(t *testing.T) {
	m := testMappings()
	m.Labels.Fields = []string{"clientNames", "environment"}
	tr, _ := newTestTranslator(t, m)

	issue, err := tr.CreateIssue(context.Background(), &rally.Artifact{
		FormattedID: "US8",
		Type:        "HierarchicalRequirement",
		ClientNames: rally.StringList{"acme", "globex"},
		Environment: "Production",
		Blocked:     true,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"acme", "globex", "Production", "Blocked"}, issue.Labels)
}

func TestStoryPointsCustomField(t *testing.T) {
	tr, _ := newTestTranslator(t, testMappings())

	estimate := 8.0
	issue, err := tr.CreateIssue(context.Background(), &rally.Artifact{
		FormattedID:  "US9",
		Type:         "HierarchicalRequirement",
		PlanEstimate: &estimate,
	})
	require.NoError(t, err)

	points := findCustomField(t, issue, "Story Points")
	assert.Equal(t, fieldTypeFloat, points.FieldType)
	assert.Equal(t, 8.0, points.Value)
}

func TestForeignTicketsCustomField(t *testing.T) {
	tr, _ := newTestTranslator(t, testMappings())

	issue, err := tr.CreateIssue(context.Background(), &rally.Artifact{
		FormattedID: "DE6",
		Type:        "Defect",
		Description: "See https://support.example.zendesk.com/tickets/100",
		Discussion: []rally.DiscussionEntry{
			{Text: "also https://support.example.zendesk.com/tickets/200"},
			{Text: ""}, // empty bodies never become comments
			{Text: "dup https://support.example.zendesk.com/tickets/100"},
		},
	})
	require.NoError(t, err)

	require.Len(t, issue.Comments, 2)

	tickets := findCustomField(t, issue, "Zendesk Tickets")
	assert.Equal(t, "100,200,100", tickets.Value)
}

func TestConfiguredCustomFields(t *testing.T) {
	m := testMappings()
	m.CustomFields = []config.CustomField{
		{Field: "acceptanceCriteria", Name: "Acceptance Criteria", Type: fieldTypeText},
		{Field: "milestones", Name: "Milestones", Type: fieldTypeText},
	}
	tr, _ := newTestTranslator(t, m)

	issue, err := tr.CreateIssue(context.Background(), &rally.Artifact{
		FormattedID:        "US10",
		Type:               "HierarchicalRequirement",
		AcceptanceCriteria: "<p>Must work</p>",
		// milestones left empty, so that mapping is skipped
	})
	require.NoError(t, err)

	ac := findCustomField(t, issue, "Acceptance Criteria")
	assert.Equal(t, "<p>Must work</p>", ac.Value)

	for _, cf := range issue.CustomFieldValues {
		assert.NotEqual(t, "Milestones", cf.FieldName)
	}
}

func TestVersionRegistration(t *testing.T) {
	tr, _ := newTestTranslator(t, testMappings())

	past := refNow.Add(-30 * 24 * time.Hour)
	future := refNow.Add(30 * 24 * time.Hour)
	release := &rally.Release{Name: "2021.2", ReleaseStartDate: &past, ReleaseDate: &future}

	first, err := tr.CreateIssue(context.Background(), &rally.Artifact{
		FormattedID: "US11", Type: "HierarchicalRequirement", Release: release,
	})
	require.NoError(t, err)
	_, err = tr.CreateIssue(context.Background(), &rally.Artifact{
		FormattedID: "US12", Type: "HierarchicalRequirement", Release: release,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"2021.2"}, first.FixedVersions)

	versions := tr.Versions()
	require.Len(t, versions, 1)
	assert.Equal(t, "2021.2", versions[0].Name)
	assert.False(t, versions[0].Released, "future release date must not be marked released")

	shipped := &rally.Release{Name: "2021.1", ReleaseDate: &past}
	_, err = tr.CreateIssue(context.Background(), &rally.Artifact{
		FormattedID: "US13", Type: "HierarchicalRequirement", Release: shipped,
	})
	require.NoError(t, err)

	versions = tr.Versions()
	require.Len(t, versions, 2)
	assert.True(t, versions[1].Released)
}

func TestMissingAttachmentSkipped(t *testing.T) {
	tr, _ := newTestTranslator(t, testMappings())

	issue, err := tr.CreateIssue(context.Background(), &rally.Artifact{
		FormattedID: "DE7",
		Type:        "Defect",
		Attachments: []rally.AttachmentRef{
			{ObjectID: 404, Name: "lost.png"},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, issue.Attachments)
}

func findCustomField(t *testing.T, issue *Issue, name string) CustomField {
	t.Helper()
	for _, cf := range issue.CustomFieldValues {
		if cf.FieldName == name {
			return cf
		}
	}
	t.Fatalf("custom field %q not found in %+v", name, issue.CustomFieldValues)
	return CustomField{}
}
