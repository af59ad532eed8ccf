package osmapi

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"osm-revert/core/httpx"
	"osm-revert/core/osm"
)

const (
	tagMaxLength = 255
	tagPrefix    = "revert"
)

// noTagPrefix lists the submission tag keys written as-is; all other keys
// get the tool prefix so reverts are recognizable in changeset metadata.
var noTagPrefix = map[string]struct{}{
	"comment":          {},
	"changesets_count": {},
	"created_by":       {},
	"host":             {},
	"website":          {},
}

// ErrUploadConflict signals that the server rejected the submission because
// an element changed between reconstruction and upload.
var ErrUploadConflict = errors.New("upload conflict, the reconstructed data is outdated")

// Client talks to the authoritative editing API on behalf of one
// authorized user.
type Client struct {
	http *httpx.Client
	log  *zap.Logger
}

// NewClient creates a Client authenticated with the configured token.
func NewClient(cfg Config, log *zap.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	headers := map[string]string{"Authorization": "Bearer " + cfg.AccessToken}
	return &Client{
		http: httpx.New(cfg.APIURL+"/api", timeout, headers),
		log:  log,
	}
}

// AuthorizedUser returns the details of the authenticated user.
func (c *Client) AuthorizedUser(ctx context.Context) (*User, error) {
	resp, err := c.http.DoRetry(ctx, http.MethodGet, "/0.6/user/details.json")
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}

	var parsed struct {
		User User `json:"user"`
	}
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse user details: %w", err)
	}
	return &parsed.User, nil
}

// User returns the details of any user, or nil when the account no longer
// exists.
func (c *Client) User(ctx context.Context, uid int64) (*User, error) {
	resp, err := c.http.DoRetry(ctx, http.MethodGet, fmt.Sprintf("/0.6/user/%d.json", uid))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return nil, nil
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}

	var parsed struct {
		User User `json:"user"`
	}
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse user details: %w", err)
	}
	return &parsed.User, nil
}

// ChangesetMaxSize returns the server's element limit per changeset.
func (c *Client) ChangesetMaxSize(ctx context.Context) (int, error) {
	resp, err := c.http.DoRetry(ctx, http.MethodGet, "/capabilities")
	if err != nil {
		return 0, err
	}
	if err := resp.Err(); err != nil {
		return 0, err
	}

	var caps struct {
		API struct {
			Changesets struct {
				MaximumElements int `xml:"maximum_elements,attr"`
			} `xml:"changesets"`
		} `xml:"api"`
	}
	if err := xml.Unmarshal(resp.Body, &caps); err != nil {
		return 0, fmt.Errorf("failed to parse capabilities: %w", err)
	}
	return caps.API.Changesets.MaximumElements, nil
}

type changesetInfoXML struct {
	Changeset struct {
		ID     int64  `xml:"id,attr"`
		UID    int64  `xml:"uid,attr"`
		MinLat string `xml:"min_lat,attr"`
		MinLon string `xml:"min_lon,attr"`
		MaxLat string `xml:"max_lat,attr"`
		MaxLon string `xml:"max_lon,attr"`
	} `xml:"changeset"`
}

type changeDownloadXML struct {
	Actions []struct {
		Nodes     []*osm.Element `xml:"node"`
		Ways      []*osm.Element `xml:"way"`
		Relations []*osm.Element `xml:"relation"`
	} `xml:",any"`
}

// Changeset downloads a change set's metadata and content, partitioning
// the affected element ids by edit timestamp. Elements written in one
// atomic upload share a timestamp and therefore a partition.
func (c *Client) Changeset(ctx context.Context, id int64) (*osm.Changeset, error) {
	infoResp, err := c.http.DoRetry(ctx, http.MethodGet, fmt.Sprintf("/0.6/changeset/%d", id))
	if err != nil {
		return nil, err
	}
	if err := infoResp.Err(); err != nil {
		return nil, err
	}

	diffResp, err := c.http.DoRetry(ctx, http.MethodGet, fmt.Sprintf("/0.6/changeset/%d/download", id))
	if err != nil {
		return nil, err
	}
	if err := diffResp.Err(); err != nil {
		return nil, err
	}

	var info changesetInfoXML
	if err := xml.Unmarshal(infoResp.Body, &info); err != nil {
		return nil, fmt.Errorf("failed to parse changeset %d: %w", id, err)
	}

	var download changeDownloadXML
	if err := xml.Unmarshal(diffResp.Body, &download); err != nil {
		return nil, fmt.Errorf("failed to parse changeset %d content: %w", id, err)
	}

	cs := &osm.Changeset{
		ID:         id,
		UID:        info.Changeset.UID,
		Partitions: make(map[string]osm.IDSet),
	}

	// some change sets have no bbox
	if info.Changeset.MinLat != "" {
		cs.BBox = fmt.Sprintf("[bbox:%s,%s,%s,%s]",
			info.Changeset.MinLat, info.Changeset.MinLon,
			info.Changeset.MaxLat, info.Changeset.MaxLon,
		)
	}

	add := func(e *osm.Element) {
		partition, ok := cs.Partitions[e.Timestamp]
		if !ok {
			partition = osm.NewIDSet()
			cs.Partitions[e.Timestamp] = partition
		}
		partition[e.Type] = append(partition[e.Type], e.ID)
	}
	for _, action := range download.Actions {
		for _, e := range action.Nodes {
			add(e)
		}
		for _, e := range action.Ways {
			add(e)
		}
		for _, e := range action.Relations {
			add(e)
		}
	}

	return cs, nil
}

type changesetCreateXML struct {
	XMLName   xml.Name `xml:"osm"`
	Changeset struct {
		Tags []tagXML `xml:"tag"`
	} `xml:"changeset"`
}

type tagXML struct {
	K string `xml:"k,attr"`
	V string `xml:"v,attr"`
}

// Upload submits the inverted elements as a new change set: create,
// upload, close. The change set is always closed, even when the upload
// itself fails. Returns the new change set id.
func (c *Client) Upload(ctx context.Context, set *osm.ElementSet, comment string, extra map[string]string) (int64, error) {
	tags, err := c.prepareTags(comment, extra)
	if err != nil {
		return 0, err
	}

	var create changesetCreateXML
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		create.Changeset.Tags = append(create.Changeset.Tags, tagXML{K: k, V: tags[k]})
	}

	createBody, err := xml.Marshal(create)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal changeset: %w", err)
	}

	createResp, err := c.http.Do(ctx, http.MethodPut, "/0.6/changeset/create",
		httpx.WithBody("text/xml; charset=utf-8", createBody))
	if err != nil {
		return 0, err
	}
	if err := createResp.Err(); err != nil {
		return 0, fmt.Errorf("failed to create changeset: %w", err)
	}

	changesetID, err := strconv.ParseInt(strings.TrimSpace(string(createResp.Body)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected changeset create response %q: %w", createResp.Body, err)
	}

	change, warnings := osm.BuildChange(set, changesetID)
	for _, w := range warnings {
		c.log.Warn(w)
	}

	changeBody, err := change.XML()
	if err != nil {
		return 0, err
	}

	uploadResp, uploadErr := c.http.Do(ctx, http.MethodPost, fmt.Sprintf("/0.6/changeset/%d/upload", changesetID),
		httpx.WithBody("text/xml; charset=utf-8", changeBody))

	closeResp, closeErr := c.http.Do(ctx, http.MethodPut, fmt.Sprintf("/0.6/changeset/%d/close", changesetID))
	if closeErr == nil {
		closeErr = closeResp.Err()
	}
	if closeErr != nil {
		c.log.Warn("failed to close changeset", zap.Int64("changeset", changesetID), zap.Error(closeErr))
	}

	if uploadErr != nil {
		return 0, uploadErr
	}
	if uploadResp.StatusCode == http.StatusConflict {
		return 0, fmt.Errorf("%w: %s", ErrUploadConflict, strings.TrimSpace(string(uploadResp.Body)))
	}
	if err := uploadResp.Err(); err != nil {
		return 0, fmt.Errorf("failed to upload the changes: %w", err)
	}

	return changesetID, nil
}

// prepareTags normalizes the submission tags: the comment is added, empty
// values are dropped, non-standard keys get the tool prefix, and overlong
// values are trimmed to the server limit.
func (c *Client) prepareTags(comment string, extra map[string]string) (map[string]string, error) {
	if _, ok := extra["comment"]; ok {
		return nil, errors.New("comment is a reserved tag")
	}

	tags := make(map[string]string, len(extra)+1)
	tags["comment"] = comment

	for key, value := range extra {
		if strings.HasPrefix(key, tagPrefix) {
			return nil, fmt.Errorf("%q is a reserved tag", key)
		}
		if value == "" {
			continue
		}

		if _, plain := noTagPrefix[key]; !plain {
			key = tagPrefix + ":" + key
		}

		if runes := []rune(value); len(runes) > tagMaxLength {
			c.log.Warn("trimming overlong tag value",
				zap.String("key", key),
				zap.Int("limit", tagMaxLength),
			)
			value = string(runes[:252]) + "…"
		}

		tags[key] = value
	}

	return tags, nil
}

// PostDiscussionComment leaves a comment in the change set's discussion.
// The returned status is "OK", "RATE_LIMITED", or the HTTP status code.
func (c *Client) PostDiscussionComment(ctx context.Context, changesetID int64, text string) (string, error) {
	form := url.Values{"text": []string{text}}

	resp, err := c.http.Do(ctx, http.MethodPost, fmt.Sprintf("/0.6/changeset/%d/comment", changesetID),
		httpx.WithForm(form))
	if err != nil {
		return "", err
	}

	switch {
	case resp.Success():
		return "OK", nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return "RATE_LIMITED", nil
	default:
		return strconv.Itoa(resp.StatusCode), nil
	}
}
