// Package couchkit is the one real adapter for the store.Client contract: a
// thin HTTP/JSON client for a CouchDB-wire-compatible document store (plain
// CouchDB or IBM Cloudant, per original_source/dirscan.py's use of
// cloudant.account.Cloudant). No CouchDB/Cloudant client ships in the
// example corpus this module was grounded on, so this adapter is
// necessarily hand-rolled against net/http and encoding/json rather than a
// pack library (see DESIGN.md).
package couchkit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/dirscansync/dirscansync/internal/store"
)

// Client is an HTTP-backed store.Client.
type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
}

// New creates a couchkit Client. baseURL should be the store's root URL
// (scheme, host, optional port), without a trailing slash.
func New(baseURL, username, password string) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		http:     &http.Client{},
	}
}

func (c *Client) docURL(db, id string) string {
	return fmt.Sprintf("%s/%s/%s", c.baseURL, url.PathEscape(db), url.PathEscape(id))
}

func (c *Client) dbURL(db string) string {
	return fmt.Sprintf("%s/%s", c.baseURL, url.PathEscape(db))
}

func (c *Client) do(ctx context.Context, method, target string, body interface{}, out interface{}) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, errors.Wrap(err, "unable to marshal request body")
		}
		reader = bytes.NewReader(data)
	}

	request, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, errors.Wrap(err, "unable to construct request")
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	if c.username != "" {
		request.SetBasicAuth(c.username, c.password)
	}

	response, err := c.http.Do(request)
	if err != nil {
		return 0, errors.Wrap(err, "unable to perform request")
	}
	defer response.Body.Close()

	if out != nil && response.StatusCode < 300 {
		if err := json.NewDecoder(response.Body).Decode(out); err != nil && err != io.EOF {
			return response.StatusCode, errors.Wrap(err, "unable to decode response body")
		}
	}

	return response.StatusCode, nil
}

// Get implements store.Client.Get.
func (c *Client) Get(ctx context.Context, db, id string, out interface{}) error {
	status, err := c.do(ctx, http.MethodGet, c.docURL(db, id), nil, out)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return store.ErrNotFound
	}
	if status >= 300 {
		return fmt.Errorf("get failed with status %d", status)
	}
	return nil
}

// idSetter and revSetter are implemented by document types so Put can
// populate the assigned id and revision after a successful write. Bulk does
// not use them; it reports ids and revisions in its BulkResults.
type idSetter interface{ SetID(string) }
type revSetter interface{ SetRev(string) }

// Put implements store.Client.Put.
func (c *Client) Put(ctx context.Context, db string, doc interface{}) (string, error) {
	var result struct {
		ID  string `json:"id"`
		Rev string `json:"rev"`
		OK  bool   `json:"ok"`
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return "", errors.Wrap(err, "unable to marshal document")
	}
	var asMap map[string]interface{}
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return "", errors.Wrap(err, "unable to inspect document")
	}

	var status int
	if id, ok := asMap["_id"].(string); ok && id != "" {
		status, err = c.do(ctx, http.MethodPut, c.docURL(db, id), doc, &result)
	} else {
		status, err = c.do(ctx, http.MethodPost, c.dbURL(db), doc, &result)
	}
	if err != nil {
		return "", err
	}
	if status >= 300 {
		return "", fmt.Errorf("put failed with status %d", status)
	}

	if s, ok := doc.(idSetter); ok && result.ID != "" {
		s.SetID(result.ID)
	}
	if s, ok := doc.(revSetter); ok {
		s.SetRev(result.Rev)
	}
	return result.Rev, nil
}

// Bulk implements store.Client.Bulk.
func (c *Client) Bulk(ctx context.Context, db string, docs []interface{}) ([]store.BulkResult, error) {
	var response []struct {
		ID     string `json:"id"`
		Rev    string `json:"rev"`
		Error  string `json:"error"`
		Reason string `json:"reason"`
	}

	body := map[string]interface{}{"docs": docs}
	status, err := c.do(ctx, http.MethodPost, c.dbURL(db)+"/_bulk_docs", body, &response)
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, fmt.Errorf("bulk insert failed with status %d", status)
	}

	results := make([]store.BulkResult, len(response))
	for i, r := range response {
		results[i] = store.BulkResult{
			ID:    r.ID,
			Rev:   r.Rev,
			OK:    r.Error == "",
			Error: r.Reason,
		}
	}
	return results, nil
}

// AllByIDs implements store.Client.AllByIDs.
func (c *Client) AllByIDs(ctx context.Context, db string, ids []string) (map[string]map[string]interface{}, error) {
	var response struct {
		Rows []struct {
			ID  string                 `json:"id"`
			Doc map[string]interface{} `json:"doc"`
		} `json:"rows"`
	}

	body := map[string]interface{}{"keys": ids}
	status, err := c.do(ctx, http.MethodPost, c.dbURL(db)+"/_all_docs?include_docs=true", body, &response)
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, fmt.Errorf("all_docs failed with status %d", status)
	}

	result := make(map[string]map[string]interface{})
	for _, row := range response.Rows {
		if row.Doc != nil {
			result[row.ID] = row.Doc
		}
	}
	return result, nil
}

// View implements store.Client.View.
func (c *Client) View(ctx context.Context, db, designDoc, view string, query store.ViewQuery) ([]store.ViewRow, error) {
	params := url.Values{}
	if query.StartKey != nil {
		if encoded, err := json.Marshal(query.StartKey); err == nil {
			params.Set("startkey", string(encoded))
		}
	}
	if query.EndKey != nil {
		if encoded, err := json.Marshal(query.EndKey); err == nil {
			params.Set("endkey", string(encoded))
		}
	}
	if query.Reduce {
		params.Set("reduce", "true")
		if query.GroupLevel > 0 {
			params.Set("group_level", fmt.Sprintf("%d", query.GroupLevel))
		} else {
			params.Set("group", "true")
		}
	} else {
		params.Set("reduce", "false")
	}
	if query.Limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", query.Limit))
	}
	if query.Descending {
		params.Set("descending", "true")
	}
	if query.IncludeDocs {
		params.Set("include_docs", "true")
	}

	target := fmt.Sprintf("%s/_design/%s/_view/%s?%s", c.dbURL(db), url.PathEscape(designDoc), url.PathEscape(view), params.Encode())

	var response struct {
		Rows []struct {
			Key   interface{}            `json:"key"`
			Value interface{}            `json:"value"`
			ID    string                 `json:"id"`
			Doc   map[string]interface{} `json:"doc"`
		} `json:"rows"`
	}

	status, err := c.do(ctx, http.MethodGet, target, nil, &response)
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, fmt.Errorf("view query failed with status %d", status)
	}

	rows := make([]store.ViewRow, len(response.Rows))
	for i, r := range response.Rows {
		rows[i] = store.ViewRow{Key: r.Key, Value: r.Value, ID: r.ID, Doc: r.Doc}
	}
	return rows, nil
}

// CreateDB implements store.Client.CreateDB. Per spec §4.8/housekeeping
// notes, attempting to create an already-existing database is treated as a
// success (reuse).
func (c *Client) CreateDB(ctx context.Context, name string) error {
	status, err := c.do(ctx, http.MethodPut, c.dbURL(name), nil, nil)
	if err != nil {
		return err
	}
	if status == http.StatusPreconditionFailed || status < 300 {
		return nil
	}
	return fmt.Errorf("create database failed with status %d", status)
}

// DeleteDB implements store.Client.DeleteDB.
func (c *Client) DeleteDB(ctx context.Context, name string) error {
	status, err := c.do(ctx, http.MethodDelete, c.dbURL(name), nil, nil)
	if err != nil {
		return err
	}
	if status >= 300 && status != http.StatusNotFound {
		return fmt.Errorf("delete database failed with status %d", status)
	}
	return nil
}

// ListDBs implements store.Client.ListDBs.
func (c *Client) ListDBs(ctx context.Context) ([]string, error) {
	var names []string
	status, err := c.do(ctx, http.MethodGet, c.baseURL+"/_all_dbs", nil, &names)
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, fmt.Errorf("list databases failed with status %d", status)
	}
	return names, nil
}

// Exists implements store.Client.Exists.
func (c *Client) Exists(ctx context.Context, db string) (bool, error) {
	status, err := c.do(ctx, http.MethodHead, c.dbURL(db), nil, nil)
	if err != nil {
		return false, err
	}
	return status < 300, nil
}

// Count implements store.Client.Count.
func (c *Client) Count(ctx context.Context, db string) (int, error) {
	var info struct {
		DocCount int `json:"doc_count"`
	}
	status, err := c.do(ctx, http.MethodGet, c.dbURL(db), nil, &info)
	if err != nil {
		return 0, err
	}
	if status >= 300 {
		return 0, fmt.Errorf("database info failed with status %d", status)
	}
	return info.DocCount, nil
}

var _ store.Client = (*Client)(nil)
