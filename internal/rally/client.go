package rally

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"log/slog"
)

// ClientConfig holds Rally WSAPI connection settings.
type ClientConfig struct {
	Server    string // e.g. https://rally1.rallydev.com
	APIKey    string
	Workspace string
	Project   string
}

// Client is a Rally WSAPI v2.0 client.
type Client struct {
	server     string
	apiKey     string
	workspace  string
	project    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Rally client.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	return &Client{
		server:    strings.TrimRight(cfg.Server, "/"),
		apiKey:    cfg.APIKey,
		workspace: cfg.Workspace,
		project:   cfg.Project,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}
}

type queryResult struct {
	QueryResult struct {
		TotalResultCount int               `json:"TotalResultCount"`
		StartIndex       int               `json:"StartIndex"`
		PageSize         int               `json:"PageSize"`
		Results          []json.RawMessage `json:"Results"`
		Errors           []string          `json:"Errors"`
	} `json:"QueryResult"`
}

// Artifacts queries every work item in the configured workspace,
// following WSAPI pagination, and converts each result into an
// Artifact with its discussion and attachment collections hydrated.
func (c *Client) Artifacts(ctx context.Context) ([]*Artifact, error) {
	raw, err := c.query(ctx, c.server+"/slm/webservice/v2.0/artifact", url.Values{
		"fetch":            {"true"},
		"projectScopeDown": {"true"},
	})
	if err != nil {
		return nil, fmt.Errorf("query artifacts: %w", err)
	}

	artifacts := make([]*Artifact, 0, len(raw))
	for _, msg := range raw {
		var w wireArtifact
		if err := json.Unmarshal(msg, &w); err != nil {
			return nil, fmt.Errorf("decode artifact: %w", err)
		}
		a, err := c.hydrate(ctx, &w)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}

	c.logger.Info("fetched artifacts", "count", len(artifacts))
	return artifacts, nil
}

// AttachmentContent fetches and decodes the blob for one attachment.
func (c *Client) AttachmentContent(ctx context.Context, ref AttachmentRef) ([]byte, error) {
	reqURL := fmt.Sprintf("%s/slm/webservice/v2.0/attachment/%d?fetch=Content", c.server, ref.ObjectID)
	body, err := c.doGet(ctx, reqURL)
	if err != nil {
		return nil, fmt.Errorf("get attachment %d: %w", ref.ObjectID, err)
	}

	var meta struct {
		Attachment struct {
			Content struct {
				Ref string `json:"_ref"`
			} `json:"Content"`
		} `json:"Attachment"`
	}
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, fmt.Errorf("decode attachment %d: %w", ref.ObjectID, err)
	}
	if meta.Attachment.Content.Ref == "" {
		return nil, fmt.Errorf("attachment %d has no content", ref.ObjectID)
	}

	body, err = c.doGet(ctx, meta.Attachment.Content.Ref+"?fetch=Content")
	if err != nil {
		return nil, fmt.Errorf("get attachment content %d: %w", ref.ObjectID, err)
	}
	var content struct {
		AttachmentContent struct {
			Content string `json:"Content"`
		} `json:"AttachmentContent"`
	}
	if err := json.Unmarshal(body, &content); err != nil {
		return nil, fmt.Errorf("decode attachment content %d: %w", ref.ObjectID, err)
	}
	return base64.StdEncoding.DecodeString(content.AttachmentContent.Content)
}

// query pages through a WSAPI collection endpoint and returns the raw
// result documents.
func (c *Client) query(ctx context.Context, endpoint string, params url.Values) ([]json.RawMessage, error) {
	if c.workspace != "" {
		params.Set("workspace", c.workspace)
	}
	if c.project != "" {
		params.Set("project", c.project)
	}

	var results []json.RawMessage
	start := 1
	pageSize := 200

	for {
		params.Set("start", strconv.Itoa(start))
		params.Set("pagesize", strconv.Itoa(pageSize))

		body, err := c.doGet(ctx, endpoint+"?"+params.Encode())
		if err != nil {
			return nil, err
		}

		var resp queryResult
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("decode query result: %w", err)
		}
		if len(resp.QueryResult.Errors) > 0 {
			return nil, fmt.Errorf("WSAPI error: %s", strings.Join(resp.QueryResult.Errors, "; "))
		}

		results = append(results, resp.QueryResult.Results...)

		if start+len(resp.QueryResult.Results) > resp.QueryResult.TotalResultCount ||
			len(resp.QueryResult.Results) == 0 {
			break
		}
		start += len(resp.QueryResult.Results)
	}

	return results, nil
}

func (c *Client) doGet(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("zsessionid", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("WSAPI returned %d: %s", resp.StatusCode, string(body[:min(len(body), 200)]))
	}

	return body, nil
}

// hydrate converts a wire artifact and fetches its discussion,
// attachment and child collections.
func (c *Client) hydrate(ctx context.Context, w *wireArtifact) (*Artifact, error) {
	a := w.convert()

	if w.Discussion.Count > 0 && w.Discussion.Ref != "" {
		raw, err := c.query(ctx, w.Discussion.Ref, url.Values{"fetch": {"true"}})
		if err != nil {
			return nil, fmt.Errorf("hydrate discussion %s: %w", a.FormattedID, err)
		}
		for _, msg := range raw {
			var d wireDiscussion
			if err := json.Unmarshal(msg, &d); err != nil {
				return nil, fmt.Errorf("decode discussion %s: %w", a.FormattedID, err)
			}
			a.Discussion = append(a.Discussion, DiscussionEntry{
				User:         d.User.convert(),
				Text:         d.Text,
				CreationDate: d.CreationDate,
			})
		}
	}

	if w.Attachments.Count > 0 && w.Attachments.Ref != "" {
		raw, err := c.query(ctx, w.Attachments.Ref, url.Values{"fetch": {"true"}})
		if err != nil {
			return nil, fmt.Errorf("hydrate attachments %s: %w", a.FormattedID, err)
		}
		for _, msg := range raw {
			var att wireAttachment
			if err := json.Unmarshal(msg, &att); err != nil {
				return nil, fmt.Errorf("decode attachment %s: %w", a.FormattedID, err)
			}
			a.Attachments = append(a.Attachments, AttachmentRef{
				ObjectID:     att.ObjectID,
				Name:         att.Name,
				Description:  att.Description,
				CreationDate: att.CreationDate,
				User:         att.User.convert(),
			})
		}
	}

	for _, coll := range []struct {
		ref  wireCollection
		dest *[]*Artifact
	}{
		{w.ChildrenRef, &a.Children},
		{w.UserStories, &a.Stories},
		{w.Tasks, &a.Tasks},
	} {
		if coll.ref.Count == 0 || coll.ref.Ref == "" {
			continue
		}
		raw, err := c.query(ctx, coll.ref.Ref, url.Values{"fetch": {"true"}})
		if err != nil {
			return nil, fmt.Errorf("hydrate children %s: %w", a.FormattedID, err)
		}
		for _, msg := range raw {
			var cw wireArtifact
			if err := json.Unmarshal(msg, &cw); err != nil {
				return nil, fmt.Errorf("decode child %s: %w", a.FormattedID, err)
			}
			*coll.dest = append(*coll.dest, cw.convert())
		}
	}

	return a, nil
}
