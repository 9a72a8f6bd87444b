package source

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// flexString accepts a JSON string, number or null. CWA payloads are not
// consistent about quoting numeric fields.
type flexString struct {
	Value string
	Set   bool
}

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = flexString{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString{Value: s, Set: true}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = flexString{Value: n.String(), Set: true}
	return nil
}

type cwaEnvelope struct {
	Cwaopendata *struct {
		Dataset *json.RawMessage `json:"dataset"`
	} `json:"cwaopendata"`
}

type cwaLocationDataset struct {
	Location *[]json.RawMessage `json:"location"`
}

type cwaEarthquakeDataset struct {
	Earthquake *[]cwaEarthquake `json:"earthquake"`
}

type cwaForecastLocation struct {
	LocationName   *string             `json:"locationName"`
	WeatherElement []cwaForecastElement `json:"weatherElement"`
}

type cwaForecastElement struct {
	ElementName string          `json:"elementName"`
	Time        []cwaTimePeriod `json:"time"`
}

type cwaTimePeriod struct {
	StartTime flexString    `json:"startTime"`
	EndTime   flexString    `json:"endTime"`
	Parameter cwaParameters `json:"parameter"`
}

type cwaParameter struct {
	ParameterName  flexString `json:"parameterName"`
	ParameterValue flexString `json:"parameterValue"`
	ParameterUnit  flexString `json:"parameterUnit"`
}

// cwaParameters accepts either a single parameter object or a list of them.
type cwaParameters []cwaParameter

func (p *cwaParameters) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*p = nil
		return nil
	case len(data) > 0 && data[0] == '[':
		var list []cwaParameter
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*p = list
		return nil
	default:
		var single cwaParameter
		if err := json.Unmarshal(data, &single); err != nil {
			return err
		}
		*p = cwaParameters{single}
		return nil
	}
}

type cwaStation struct {
	LocationName *string    `json:"locationName"`
	StationID    *string    `json:"stationId"`
	Lat          flexString `json:"lat"`
	Lon          flexString `json:"lon"`
	Time         *struct {
		ObsTime flexString `json:"obsTime"`
	} `json:"time"`
	WeatherElement []struct {
		ElementName  string     `json:"elementName"`
		ElementValue flexString `json:"elementValue"`
	} `json:"weatherElement"`
}

type cwaEarthquake struct {
	EarthquakeNo   flexString `json:"earthquakeNo"`
	ReportType     flexString `json:"reportType"`
	ReportColor    flexString `json:"reportColor"`
	ReportContent  flexString `json:"reportContent"`
	Web            flexString `json:"web"`
	EarthquakeInfo *struct {
		OriginTime     flexString `json:"originTime"`
		MagnitudeType  flexString `json:"magnitudeType"`
		MagnitudeValue flexString `json:"magnitudeValue"`
		Depth          flexString `json:"depth"`
		Epicenter      *struct {
			Lat      flexString `json:"lat"`
			Lon      flexString `json:"lon"`
			Location flexString `json:"location"`
		} `json:"epicenter"`
	} `json:"earthquakeInfo"`
}
