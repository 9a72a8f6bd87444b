package source

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/huanchen1107/TawinCWA/app/fetch"
	"github.com/huanchen1107/TawinCWA/app/table"
)

const censusOrganization = "U.S. Census Bureau"

var censusCategories = []string{
	"Population",
	"Housing",
	"Economics",
	"Demographics",
	"Employment",
	"Income",
	"Education",
	"Health",
}

var censusIDPattern = regexp.MustCompile(`^(\d{4})_(.+)$`)

// CensusAdapter talks to the Census Bureau data API, whose listing groups
// datasets by year.
type CensusAdapter struct {
	config  *Config
	fetcher *fetch.Fetcher
}

func NewCensusAdapter(config *Config, fetcher *fetch.Fetcher) *CensusAdapter {
	return &CensusAdapter{config: config, fetcher: fetcher}
}

// year -> dataset name -> free-form metadata
type censusListing struct {
	Dataset *map[string]map[string]map[string]interface{} `json:"dataset"`
}

func (a *CensusAdapter) Name() string {
	return a.config.Name
}

// Search matches query case-insensitively against dataset names and the text
// of their metadata. The category is recorded on results but not filtered on.
func (a *CensusAdapter) Search(ctx context.Context, query, category string, limit int) ([]Descriptor, error) {
	listing, err := a.listing(ctx)
	if err != nil {
		return nil, err
	}

	if limit <= 0 || limit > a.config.MaxResults {
		limit = a.config.MaxResults
	}
	needle := strings.ToLower(strings.TrimSpace(query))

	years := make([]string, 0, len(listing))
	for year := range listing {
		years = append(years, year)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(years)))

	descriptors := []Descriptor{}
	for _, year := range years {
		names := make([]string, 0, len(listing[year]))
		for name := range listing[year] {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			info := listing[year][name]
			if needle != "" &&
				!strings.Contains(strings.ToLower(name), needle) &&
				!strings.Contains(strings.ToLower(infoText(info)), needle) {
				continue
			}

			descriptors = append(descriptors, a.describe(year, name, info, category))
			if len(descriptors) >= limit {
				return descriptors, nil
			}
		}
	}
	return descriptors, nil
}

func (a *CensusAdapter) Fetch(ctx context.Context, datasetID string) (*RawResponse, error) {
	m := censusIDPattern.FindStringSubmatch(datasetID)
	if m == nil {
		return nil, parseError(a.Name(), datasetID, nil, "dataset id must look like {year}_{name}")
	}

	params := url.Values{
		"get": {strings.Join(a.config.Variables, ",")},
		"for": {a.config.Geography},
	}
	if a.config.APIKey != "" {
		params.Set("key", a.config.APIKey)
	}

	resp, err := a.fetcher.Get(ctx, a.config.APIURL+"/"+m[1]+"/"+m[2], params)
	if err != nil {
		return nil, err
	}

	return &RawResponse{
		Source:    a.Name(),
		DatasetID: datasetID,
		Endpoint:  resp.URL,
		Format:    "json",
		Body:      resp.Body,
		FetchedAt: resp.FetchedAt,
		Latency:   resp.Latency,
	}, nil
}

// Parse reads the API's array-of-arrays payload whose first row is the header.
func (a *CensusAdapter) Parse(raw *RawResponse) (*table.Table, error) {
	if raw == nil {
		return nil, parseError(a.Name(), "", nil, "no response")
	}

	var rows [][]interface{}
	dec := json.NewDecoder(bytes.NewReader(raw.Body))
	dec.UseNumber()
	if err := dec.Decode(&rows); err != nil {
		return nil, parseError(a.Name(), raw.DatasetID, err, "expected an array of rows")
	}
	if len(rows) == 0 {
		return nil, parseError(a.Name(), raw.DatasetID, nil, "missing header row")
	}

	t, err := tableFromRows(rows)
	if err != nil {
		return nil, parseError(a.Name(), raw.DatasetID, err, "malformed rows")
	}
	return t, nil
}

func (a *CensusAdapter) Categories(ctx context.Context) ([]string, error) {
	categories := make([]string, len(censusCategories))
	copy(categories, censusCategories)
	return categories, nil
}

func (a *CensusAdapter) Ping(ctx context.Context) error {
	_, err := a.listing(ctx)
	return err
}

func (a *CensusAdapter) listing(ctx context.Context) (map[string]map[string]map[string]interface{}, error) {
	resp, err := a.fetcher.Get(ctx, a.config.APIURL+".json", nil)
	if err != nil {
		return nil, err
	}

	var payload censusListing
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, parseError(a.Name(), "", err, "invalid dataset listing")
	}
	if payload.Dataset == nil {
		return nil, parseError(a.Name(), "", nil, "missing dataset listing")
	}
	return *payload.Dataset, nil
}

func (a *CensusAdapter) describe(year, name string, info map[string]interface{}, category string) Descriptor {
	title, _ := info["title"].(string)
	if title == "" {
		title = name
	}
	description, _ := info["description"].(string)
	modified, _ := info["modified"].(string)

	return Descriptor{
		ID:            year + "_" + name,
		Title:         title,
		Description:   description,
		Organization:  censusOrganization,
		Tags:          []string{year, "census"},
		Category:      category,
		Source:        a.Name(),
		LastModified:  modified,
		ResourceCount: 1,
		URL:           a.config.APIURL + "/" + year + "/" + name,
	}
}

// infoText joins every string found in a metadata object.
func infoText(v interface{}) string {
	var parts []string
	var walk func(interface{})
	walk = func(v interface{}) {
		switch x := v.(type) {
		case string:
			parts = append(parts, x)
		case map[string]interface{}:
			keys := make([]string, 0, len(x))
			for k := range x {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				walk(x[k])
			}
		case []interface{}:
			for _, e := range x {
				walk(e)
			}
		}
	}
	walk(v)
	return strings.Join(parts, " ")
}
