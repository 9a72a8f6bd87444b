package source

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/huanchen1107/TawinCWA/app/fetch"
	"github.com/huanchen1107/TawinCWA/app/table"
)

const cwaOrganization = "Central Weather Administration (CWA)"

type DatasetKind string

const (
	KindForecast    DatasetKind = "forecast"
	KindObservation DatasetKind = "observation"
	KindEarthquake  DatasetKind = "earthquake"
)

type cwaEndpoint struct {
	ID          string
	Description string
}

var cwaEndpoints = []cwaEndpoint{
	{"F-A0010-001", "Weather forecast for Taiwan 36 hours"},
	{"F-C0032-001", "General weather forecast"},
	{"F-D0047-089", "Weather forecast for all townships"},
	{"O-A0003-001", "Automatic weather station data"},
	{"O-A0001-001", "Current weather observation"},
	{"F-A0012-001", "Marine weather forecast"},
	{"O-A0018-001", "Ocean buoy data"},
	{"F-A0086-001", "Air quality forecast"},
	{"E-A0015-001", "Earthquake report"},
	{"E-A0016-001", "Small earthquake report"},
}

// CWAAdapter talks to the Central Weather Administration open data file API.
// Dataset ids encode their kind: F- forecasts, O- observations, E- earthquakes.
type CWAAdapter struct {
	config  *Config
	fetcher *fetch.Fetcher
}

func NewCWAAdapter(config *Config, fetcher *fetch.Fetcher) *CWAAdapter {
	return &CWAAdapter{config: config, fetcher: fetcher}
}

func (a *CWAAdapter) Name() string {
	return a.config.Name
}

// Search filters the known endpoint catalogue by query and category.
func (a *CWAAdapter) Search(ctx context.Context, query, category string, limit int) ([]Descriptor, error) {
	if limit <= 0 || limit > a.config.MaxResults {
		limit = a.config.MaxResults
	}
	needle := strings.ToLower(strings.TrimSpace(query))

	descriptors := []Descriptor{}
	for _, ep := range cwaEndpoints {
		if needle != "" &&
			!strings.Contains(strings.ToLower(ep.Description), needle) &&
			!strings.Contains(strings.ToLower(ep.ID), needle) {
			continue
		}
		if category != "" && !strings.EqualFold(category, cwaCategory(ep.ID)) {
			continue
		}

		descriptors = append(descriptors, Descriptor{
			ID:              ep.ID,
			Title:           ep.Description,
			Description:     "Taiwan Central Weather Administration - " + ep.Description,
			Organization:    cwaOrganization,
			Tags:            cwaTags(ep.ID),
			Category:        cwaCategory(ep.ID),
			Source:          a.Name(),
			ResourceCount:   1,
			URL:             a.config.APIURL + "/" + ep.ID,
			UpdateFrequency: cwaUpdateFrequency(ep.ID),
		})
		if len(descriptors) >= limit {
			break
		}
	}
	return descriptors, nil
}

func (a *CWAAdapter) Fetch(ctx context.Context, datasetID string) (*RawResponse, error) {
	if _, ok := KindOf(datasetID); !ok {
		return nil, parseError(a.Name(), datasetID, nil, "unsupported dataset id")
	}

	params := url.Values{
		"downloadType": {"WEB"},
		"format":       {"JSON"},
	}
	if a.config.APIKey != "" {
		params.Set("Authorization", a.config.APIKey)
	}

	resp, err := a.fetcher.Get(ctx, a.config.APIURL+"/"+datasetID, params)
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

// Parse flattens a CWA payload into one row per location, station or
// earthquake depending on the dataset kind.
func (a *CWAAdapter) Parse(raw *RawResponse) (*table.Table, error) {
	if raw == nil {
		return nil, parseError(a.Name(), "", nil, "no response")
	}

	kind, ok := KindOf(raw.DatasetID)
	if !ok {
		return nil, parseError(a.Name(), raw.DatasetID, nil, "unsupported dataset id")
	}

	var envelope cwaEnvelope
	if err := json.Unmarshal(raw.Body, &envelope); err != nil {
		return nil, parseError(a.Name(), raw.DatasetID, err, "invalid JSON")
	}
	if envelope.Cwaopendata == nil {
		return nil, parseError(a.Name(), raw.DatasetID, nil, "missing cwaopendata")
	}
	if envelope.Cwaopendata.Dataset == nil {
		return nil, parseError(a.Name(), raw.DatasetID, nil, "missing cwaopendata.dataset")
	}
	dataset := *envelope.Cwaopendata.Dataset

	switch kind {
	case KindForecast:
		return a.parseForecast(raw.DatasetID, dataset)
	case KindObservation:
		return a.parseObservation(raw.DatasetID, dataset)
	default:
		return a.parseEarthquake(raw.DatasetID, dataset)
	}
}

func (a *CWAAdapter) Categories(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var categories []string
	for _, ep := range cwaEndpoints {
		c := cwaCategory(ep.ID)
		if !seen[c] {
			seen[c] = true
			categories = append(categories, c)
		}
	}
	return categories, nil
}

func (a *CWAAdapter) Ping(ctx context.Context) error {
	raw, err := a.Fetch(ctx, "F-C0032-001")
	if err != nil {
		return err
	}
	_, err = a.Parse(raw)
	return err
}

func (a *CWAAdapter) locations(datasetID string, dataset json.RawMessage) ([]json.RawMessage, error) {
	var ds cwaLocationDataset
	if err := json.Unmarshal(dataset, &ds); err != nil {
		return nil, parseError(a.Name(), datasetID, err, "invalid dataset")
	}
	if ds.Location == nil {
		return nil, parseError(a.Name(), datasetID, nil, "missing dataset.location")
	}
	return *ds.Location, nil
}

// parseForecast keeps the first time period of every weather element as
// {element}_name, _value, _unit, _start and _end columns.
func (a *CWAAdapter) parseForecast(datasetID string, dataset json.RawMessage) (*table.Table, error) {
	locations, err := a.locations(datasetID, dataset)
	if err != nil {
		return nil, err
	}

	t := table.New("location")
	for i, rawLocation := range locations {
		var loc cwaForecastLocation
		if err := json.Unmarshal(rawLocation, &loc); err != nil {
			return nil, parseError(a.Name(), datasetID, err, "invalid location %d", i)
		}
		if loc.LocationName == nil || *loc.LocationName == "" {
			return nil, parseError(a.Name(), datasetID, nil, "location %d has no locationName", i)
		}

		record := table.Record{"location": table.String(*loc.LocationName)}
		for _, el := range loc.WeatherElement {
			if el.ElementName == "" {
				return nil, parseError(a.Name(), datasetID, nil, "location %s has an element without elementName", *loc.LocationName)
			}
			if len(el.Time) == 0 {
				continue
			}

			period := el.Time[0]
			var param cwaParameter
			if len(period.Parameter) > 0 {
				param = period.Parameter[0]
			}

			record[el.ElementName+"_name"] = flexValue(param.ParameterName)
			record[el.ElementName+"_value"] = flexValue(param.ParameterValue)
			record[el.ElementName+"_unit"] = flexValue(param.ParameterUnit)
			record[el.ElementName+"_start"] = flexValue(period.StartTime)
			record[el.ElementName+"_end"] = flexValue(period.EndTime)
		}
		t.Append(record)
	}
	return t, nil
}

func (a *CWAAdapter) parseObservation(datasetID string, dataset json.RawMessage) (*table.Table, error) {
	locations, err := a.locations(datasetID, dataset)
	if err != nil {
		return nil, err
	}

	t := table.New("station", "station_id", "observation_time", "lat", "lon")
	for i, rawLocation := range locations {
		var st cwaStation
		if err := json.Unmarshal(rawLocation, &st); err != nil {
			return nil, parseError(a.Name(), datasetID, err, "invalid station %d", i)
		}
		if st.LocationName == nil || st.StationID == nil {
			return nil, parseError(a.Name(), datasetID, nil, "station %d has no locationName or stationId", i)
		}
		if st.Time == nil || !st.Time.ObsTime.Set {
			return nil, parseError(a.Name(), datasetID, nil, "station %s has no time.obsTime", *st.StationID)
		}

		record := table.Record{
			"station":          table.String(*st.LocationName),
			"station_id":       table.String(*st.StationID),
			"observation_time": flexValue(st.Time.ObsTime),
			"lat":              flexValue(st.Lat),
			"lon":              flexValue(st.Lon),
		}
		for _, el := range st.WeatherElement {
			if el.ElementName == "" {
				return nil, parseError(a.Name(), datasetID, nil, "station %s has an element without elementName", *st.StationID)
			}
			record[el.ElementName] = flexValue(el.ElementValue)
		}
		t.Append(record)
	}
	return t, nil
}

func (a *CWAAdapter) parseEarthquake(datasetID string, dataset json.RawMessage) (*table.Table, error) {
	var ds cwaEarthquakeDataset
	if err := json.Unmarshal(dataset, &ds); err != nil {
		return nil, parseError(a.Name(), datasetID, err, "invalid dataset")
	}
	if ds.Earthquake == nil {
		return nil, parseError(a.Name(), datasetID, nil, "missing dataset.earthquake")
	}

	t := table.New(
		"earthquake_no", "report_type", "report_color", "report_content", "report_url",
		"origin_time", "magnitude_type", "magnitude_value", "depth",
		"location", "epicenter_lat", "epicenter_lon",
	)
	for i, eq := range *ds.Earthquake {
		if !eq.EarthquakeNo.Set || eq.EarthquakeNo.Value == "" {
			return nil, parseError(a.Name(), datasetID, nil, "earthquake %d has no earthquakeNo", i)
		}
		info := eq.EarthquakeInfo
		if info == nil {
			return nil, parseError(a.Name(), datasetID, nil, "earthquake %s has no earthquakeInfo", eq.EarthquakeNo.Value)
		}
		if info.Epicenter == nil {
			return nil, parseError(a.Name(), datasetID, nil, "earthquake %s has no earthquakeInfo.epicenter", eq.EarthquakeNo.Value)
		}

		t.Append(table.Record{
			"earthquake_no":   flexValue(eq.EarthquakeNo),
			"report_type":     flexValue(eq.ReportType),
			"report_color":    flexValue(eq.ReportColor),
			"report_content":  flexValue(eq.ReportContent),
			"report_url":      flexValue(eq.Web),
			"origin_time":     flexValue(info.OriginTime),
			"magnitude_type":  flexValue(info.MagnitudeType),
			"magnitude_value": flexValue(info.MagnitudeValue),
			"depth":           flexValue(info.Depth),
			"location":        flexValue(info.Epicenter.Location),
			"epicenter_lat":   flexValue(info.Epicenter.Lat),
			"epicenter_lon":   flexValue(info.Epicenter.Lon),
		})
	}
	return t, nil
}

// KindOf derives the dataset kind from a CWA dataset id prefix.
func KindOf(datasetID string) (DatasetKind, bool) {
	switch {
	case strings.HasPrefix(datasetID, "F-"):
		return KindForecast, true
	case strings.HasPrefix(datasetID, "O-"):
		return KindObservation, true
	case strings.HasPrefix(datasetID, "E-"):
		return KindEarthquake, true
	default:
		return "", false
	}
}

func flexValue(f flexString) table.Value {
	if !f.Set {
		return table.Null()
	}
	return table.String(f.Value)
}

func cwaCategory(id string) string {
	switch {
	case strings.HasPrefix(id, "F-A"), strings.HasPrefix(id, "F-C"), strings.HasPrefix(id, "F-D"):
		return "Weather Forecast"
	case strings.HasPrefix(id, "O-A"):
		return "Current Weather"
	case strings.HasPrefix(id, "E-A"):
		return "Earthquake"
	default:
		return "Weather"
	}
}

func cwaTags(id string) []string {
	tags := []string{"taiwan", "weather", "cwa"}
	switch {
	case strings.HasPrefix(id, "F-"):
		tags = append(tags, "forecast")
	case strings.HasPrefix(id, "O-"):
		tags = append(tags, "real-time")
	}
	switch id {
	case "F-A0012-001", "O-A0018-001":
		tags = append(tags, "marine", "ocean")
	case "F-A0086-001":
		tags = append(tags, "air-quality", "pollution")
	}
	if strings.HasPrefix(id, "E-") {
		tags = append(tags, "earthquake")
	}
	return tags
}

func cwaUpdateFrequency(id string) string {
	switch {
	case strings.HasPrefix(id, "F-"):
		return "Every 6 hours"
	case strings.HasPrefix(id, "O-"):
		return "Every 10 minutes"
	case strings.HasPrefix(id, "E-"):
		return "As needed"
	default:
		return "Unknown"
	}
}
