package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"log/slog"

	"github.com/trellis-eng/rally2jira/internal/config"
	"github.com/trellis-eng/rally2jira/internal/rally"
)

// Migrator walks the cached artifact set and assembles the full
// bulk-import document: issues, cross-issue links, deduplicated users
// and discovered versions. One Migrator drives one run.
type Migrator struct {
	cache      *rally.Cache
	translator *Translator
	users      *UserRegistry
	project    config.JiraProject
	outputFile string
	linkType   string
	logger     *slog.Logger
}

// NewMigrator creates a Migrator writing its import document to
// outputFile. linkType selects the parent/child link edge: the default
// "sub-task-link" points child to parent, any other named type points
// parent to child.
func NewMigrator(
	cache *rally.Cache,
	translator *Translator,
	users *UserRegistry,
	project config.JiraProject,
	outputFile string,
	linkType string,
	logger *slog.Logger,
) *Migrator {
	if linkType == "" {
		linkType = "sub-task-link"
	}
	return &Migrator{
		cache:      cache,
		translator: translator,
		users:      users,
		project:    project,
		outputFile: outputFile,
		linkType:   linkType,
		logger:     logger,
	}
}

// Run loads every cached artifact (optionally filtered to the given
// object ids), translates the full hierarchy and writes the import
// document. A mapping error aborts the run; the output file is only
// written on success.
func (m *Migrator) Run(ctx context.Context, ids map[int64]bool) (*ImportDocument, error) {
	artifacts, err := m.cache.LoadArtifacts(ids)
	if err != nil {
		return nil, err
	}

	doc, err := m.Build(ctx, artifacts)
	if err != nil {
		return nil, err
	}

	if err := m.write(doc); err != nil {
		return nil, err
	}

	m.logger.Info("migration complete",
		"artifacts", len(artifacts),
		"issues", len(doc.Projects[0].Issues),
		"links", len(doc.Links),
		"users", len(doc.Users),
	)
	return doc, nil
}

// Build assembles the import document for the given top-level
// artifacts without touching the filesystem.
func (m *Migrator) Build(ctx context.Context, artifacts []*rally.Artifact) (*ImportDocument, error) {
	project := &Project{
		Key:         m.project.Key,
		Name:        m.project.Name,
		Type:        m.project.Type,
		Description: m.project.Description,
		Issues:      []*Issue{},
		Versions:    []Version{},
	}
	doc := &ImportDocument{
		Users:    []User{},
		Links:    []Link{},
		Projects: []*Project{project},
	}

	for _, artifact := range artifacts {
		issue, err := m.translator.CreateIssue(ctx, artifact)
		if err != nil {
			return nil, err
		}

		if artifact.Parent != nil {
			if artifact.Parent.IsPortfolioItem() {
				// Portfolio parents are referenced by name only,
				// never materialized as issues of their own.
				issue.Labels = append(issue.Labels, artifact.Parent.Name)
			} else {
				parentIssue, err := m.findOrCreateParent(ctx, project, artifact.Parent)
				if err != nil {
					return nil, err
				}
				if parentIssue.IssueType == "Epic" {
					addEpicLink(issue, parentIssue)
				}
			}
		}

		project.Issues = append(project.Issues, issue)

		// The top-level issue is the ancestor for its whole subtree.
		if err := m.walkChildren(ctx, artifact, issue, issue, doc, project); err != nil {
			return nil, err
		}
	}

	project.Versions = m.translator.Versions()
	doc.Users = m.users.Snapshot()
	return doc, nil
}

// walkChildren recurses over the flattened child lists of node,
// carrying the immediate parent issue and the top-level ancestor.
func (m *Migrator) walkChildren(ctx context.Context, node *rally.Artifact, parentIssue, ancestorIssue *Issue, doc *ImportDocument, project *Project) error {
	for _, child := range node.AllChildren() {
		childIssue, err := m.translator.CreateIssue(ctx, child)
		if err != nil {
			return err
		}
		project.Issues = append(project.Issues, childIssue)

		if parentIssue.IssueType == "Epic" {
			addEpicLink(childIssue, parentIssue)
		} else {
			doc.Links = append(doc.Links, m.link(childIssue, parentIssue))
			if ancestorIssue != parentIssue {
				// Keep deep descendants reachable from the top of
				// the hierarchy.
				doc.Links = append(doc.Links, Link{
					Name:          m.linkType,
					SourceID:      ancestorIssue.ExternalID,
					DestinationID: childIssue.ExternalID,
				})
			}
		}

		if err := m.walkChildren(ctx, child, childIssue, ancestorIssue, doc, project); err != nil {
			return err
		}
	}
	return nil
}

// findOrCreateParent materializes a parent reference at most once per
// run: a parent already present in the issue list (matched by external
// id) is reused, never re-translated.
func (m *Migrator) findOrCreateParent(ctx context.Context, project *Project, parent *rally.Artifact) (*Issue, error) {
	for _, issue := range project.Issues {
		if issue.ExternalID == parent.FormattedID {
			return issue, nil
		}
	}
	issue, err := m.translator.CreateIssue(ctx, parent)
	if err != nil {
		return nil, err
	}
	project.Issues = append(project.Issues, issue)
	return issue, nil
}

// link builds the parent/child edge for the configured link type.
func (m *Migrator) link(childIssue, parentIssue *Issue) Link {
	if m.linkType == "sub-task-link" {
		return Link{
			Name:          m.linkType,
			SourceID:      childIssue.ExternalID,
			DestinationID: parentIssue.ExternalID,
		}
	}
	return Link{
		Name:          m.linkType,
		SourceID:      parentIssue.ExternalID,
		DestinationID: childIssue.ExternalID,
	}
}

func addEpicLink(issue, epic *Issue) {
	issue.CustomFieldValues = append(issue.CustomFieldValues, CustomField{
		FieldName: "Epic Link",
		FieldType: fieldTypeEpicLink,
		Value:     epic.Summary,
	})
}

// write serializes the document to the configured output path,
// creating parent directories as needed.
func (m *Migrator) write(doc *ImportDocument) error {
	if err := os.MkdirAll(filepath.Dir(m.outputFile), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode import document: %w", err)
	}
	if err := os.WriteFile(m.outputFile, data, 0o644); err != nil {
		return fmt.Errorf("write import document: %w", err)
	}
	return nil
}
