package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/huanchen1107/TawinCWA/app/fetch"
	"github.com/huanchen1107/TawinCWA/app/table"
)

// CatalogAdapter talks to a CKAN-style open data catalog such as catalog.data.gov.
type CatalogAdapter struct {
	config  *Config
	fetcher *fetch.Fetcher
}

func NewCatalogAdapter(config *Config, fetcher *fetch.Fetcher) *CatalogAdapter {
	return &CatalogAdapter{config: config, fetcher: fetcher}
}

type ckanPackage struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Title        string `json:"title"`
	Notes        string `json:"notes"`
	Organization *struct {
		Title string `json:"title"`
	} `json:"organization"`
	Tags []struct {
		Name string `json:"name"`
	} `json:"tags"`
	Groups []struct {
		Name  string `json:"name"`
		Title string `json:"title"`
	} `json:"groups"`
	MetadataModified string         `json:"metadata_modified"`
	Resources        []ckanResource `json:"resources"`
}

type ckanResource struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Format      string `json:"format"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

type ckanError struct {
	Message string `json:"message"`
}

type ckanSearchResponse struct {
	Success *bool      `json:"success"`
	Error   *ckanError `json:"error"`
	Result  *struct {
		Count   int            `json:"count"`
		Results *[]ckanPackage `json:"results"`
	} `json:"result"`
}

type ckanShowResponse struct {
	Success *bool        `json:"success"`
	Error   *ckanError   `json:"error"`
	Result  *ckanPackage `json:"result"`
}

type ckanListResponse struct {
	Success *bool      `json:"success"`
	Error   *ckanError `json:"error"`
	Result  *[]string  `json:"result"`
}

func (a *CatalogAdapter) Name() string {
	return a.config.Name
}

func (a *CatalogAdapter) Search(ctx context.Context, query, category string, limit int) ([]Descriptor, error) {
	params := url.Values{
		"q":    {query},
		"rows": {strconv.Itoa(a.clampLimit(limit))},
		"sort": {"score desc, metadata_modified desc"},
	}
	if category != "" {
		params.Set("fq", "groups:"+strings.ToLower(category))
	}

	resp, err := a.fetcher.Get(ctx, a.config.APIURL+"/action/package_search", params)
	if err != nil {
		return nil, err
	}

	var payload ckanSearchResponse
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, parseError(a.Name(), "", err, "invalid search response")
	}
	if err := checkSuccess(payload.Success, payload.Error); err != nil {
		return nil, parseError(a.Name(), "", err, "search rejected")
	}
	if payload.Result == nil || payload.Result.Results == nil {
		return nil, parseError(a.Name(), "", nil, "missing result.results")
	}

	descriptors := make([]Descriptor, 0, len(*payload.Result.Results))
	for _, pkg := range *payload.Result.Results {
		descriptors = append(descriptors, a.describe(pkg, category))
	}
	return descriptors, nil
}

// Fetch downloads a dataset in two steps: package metadata first, then the
// resource that best matches the configured format.
func (a *CatalogAdapter) Fetch(ctx context.Context, datasetID string) (*RawResponse, error) {
	return a.FetchFormat(ctx, datasetID, "")
}

func (a *CatalogAdapter) FetchFormat(ctx context.Context, datasetID, format string) (*RawResponse, error) {
	if format == "" {
		format = a.config.Format
	}

	pkg, err := a.metadata(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	resource, ok := selectResource(pkg.Resources, format)
	if !ok {
		return nil, parseError(a.Name(), datasetID, nil, "dataset has no resources")
	}
	if resource.URL == "" {
		return nil, parseError(a.Name(), datasetID, nil, "resource %s has no URL", resource.ID)
	}

	resp, err := a.fetcher.Get(ctx, resource.URL, nil)
	if err != nil {
		return nil, err
	}

	return &RawResponse{
		Source:    a.Name(),
		DatasetID: datasetID,
		Endpoint:  resp.URL,
		Format:    resourceFormat(resource.Format, resp.Body),
		Body:      resp.Body,
		FetchedAt: resp.FetchedAt,
		Latency:   resp.Latency,
	}, nil
}

func (a *CatalogAdapter) Parse(raw *RawResponse) (*table.Table, error) {
	if raw == nil {
		return nil, parseError(a.Name(), "", nil, "no response")
	}

	var (
		t   *table.Table
		err error
	)
	switch raw.Format {
	case "csv":
		t, err = tableFromCSV(raw.Body)
	case "json":
		t, err = tableFromJSON(raw.Body)
	default:
		return nil, parseError(a.Name(), raw.DatasetID, nil, "unsupported resource format %q", raw.Format)
	}
	if err != nil {
		return nil, parseError(a.Name(), raw.DatasetID, err, "invalid %s resource", raw.Format)
	}
	return t, nil
}

func (a *CatalogAdapter) Categories(ctx context.Context) ([]string, error) {
	resp, err := a.fetcher.Get(ctx, a.config.APIURL+"/action/group_list", nil)
	if err != nil {
		return nil, err
	}

	var payload ckanListResponse
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, parseError(a.Name(), "", err, "invalid group list")
	}
	if err := checkSuccess(payload.Success, payload.Error); err != nil {
		return nil, parseError(a.Name(), "", err, "group list rejected")
	}
	if payload.Result == nil {
		return nil, parseError(a.Name(), "", nil, "missing result")
	}
	return *payload.Result, nil
}

func (a *CatalogAdapter) Ping(ctx context.Context) error {
	_, err := a.Search(ctx, "", "", 1)
	return err
}

func (a *CatalogAdapter) metadata(ctx context.Context, datasetID string) (*ckanPackage, error) {
	resp, err := a.fetcher.Get(ctx, a.config.APIURL+"/action/package_show", url.Values{"id": {datasetID}})
	if err != nil {
		return nil, err
	}

	var payload ckanShowResponse
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, parseError(a.Name(), datasetID, err, "invalid package metadata")
	}
	if err := checkSuccess(payload.Success, payload.Error); err != nil {
		return nil, parseError(a.Name(), datasetID, err, "package lookup rejected")
	}
	if payload.Result == nil {
		return nil, parseError(a.Name(), datasetID, nil, "missing result")
	}
	return payload.Result, nil
}

func (a *CatalogAdapter) describe(pkg ckanPackage, category string) Descriptor {
	d := Descriptor{
		ID:            pkg.ID,
		Title:         pkg.Title,
		Description:   pkg.Notes,
		Tags:          make([]string, 0, len(pkg.Tags)),
		Category:      category,
		Source:        a.Name(),
		LastModified:  pkg.MetadataModified,
		ResourceCount: len(pkg.Resources),
		URL:           a.datasetURL(pkg.Name),
	}
	if pkg.Organization != nil {
		d.Organization = pkg.Organization.Title
	}
	for _, tag := range pkg.Tags {
		d.Tags = append(d.Tags, tag.Name)
	}
	if d.Category == "" && len(pkg.Groups) > 0 {
		d.Category = pkg.Groups[0].Title
	}
	return d
}

func (a *CatalogAdapter) datasetURL(name string) string {
	base := strings.TrimRight(a.config.BaseURL, "/")
	if base == "" {
		base = strings.TrimSuffix(a.config.APIURL, "/api/3")
	}
	return base + "/dataset/" + name
}

func (a *CatalogAdapter) clampLimit(limit int) int {
	if limit <= 0 || limit > a.config.MaxResults {
		return a.config.MaxResults
	}
	return limit
}

// selectResource prefers a resource in the requested format and falls back to
// the first one.
func selectResource(resources []ckanResource, format string) (ckanResource, bool) {
	if len(resources) == 0 {
		return ckanResource{}, false
	}
	for _, r := range resources {
		if strings.EqualFold(r.Format, format) {
			return r, true
		}
	}
	return resources[0], true
}

func resourceFormat(declared string, body []byte) string {
	switch strings.ToLower(strings.TrimSpace(declared)) {
	case "csv":
		return "csv"
	case "json", "geojson":
		return "json"
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return "json"
	}
	return strings.ToLower(strings.TrimSpace(declared))
}

func checkSuccess(success *bool, apiErr *ckanError) error {
	if success == nil {
		return fmt.Errorf("missing success flag")
	}
	if !*success {
		if apiErr != nil && apiErr.Message != "" {
			return fmt.Errorf("%s", apiErr.Message)
		}
		return fmt.Errorf("request was not successful")
	}
	return nil
}
