package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/huanchen1107/TawinCWA/app/database"
	"github.com/huanchen1107/TawinCWA/app/normalize"
	"github.com/huanchen1107/TawinCWA/app/table"
)

const defaultTemperatureUnit = "°C"

// Element names as they appear after column canonicalisation. The first
// present alias wins.
var (
	temperatureElements = []string{"t", "temperature", "maxt", "mint"}
	conditionElements   = []string{"wx", "weather"}
	rainElements        = []string{"pop", "pop12h", "pop6h"}
	humidityElements    = []string{"rh"}
	windElements        = []string{"ws"}

	obsTemperature   = []string{"temp", "airtemperature"}
	obsHumidity      = []string{"humd", "relativehumidity"}
	obsPressure      = []string{"pres", "airpressure"}
	obsWindSpeed     = []string{"wdsd", "windspeed"}
	obsWindDirection = []string{"wdir", "winddirection"}
	obsVisibility    = []string{"visb", "visibility"}
)

func toForecasts(t *table.Table) ([]database.Forecast, error) {
	if !t.HasColumn("location") {
		return nil, fmt.Errorf("forecast table has no location column")
	}

	startColumns := suffixed(t, "_start")
	endColumns := suffixed(t, "_end")

	forecasts := make([]database.Forecast, 0, t.Len())
	for _, r := range t.Rows() {
		location := r.Get("location")
		if location.IsNull() {
			continue
		}

		f := database.Forecast{
			Location:        location.String(),
			TemperatureUnit: defaultTemperatureUnit,
			PeriodStart:     firstString(r, startColumns),
			PeriodEnd:       firstString(r, endColumns),
		}

		for _, el := range temperatureElements {
			if v, ok := elementNumber(r, el); ok {
				f.Temperature = &v
				if unit := r.Get(el + "_unit"); !unit.IsNull() {
					f.TemperatureUnit = unit.String()
				}
				break
			}
		}
		for _, el := range conditionElements {
			if v := r.Get(el + "_name"); !v.IsNull() {
				f.WeatherCondition = v.String()
				break
			}
		}
		f.RainProbability = firstElementNumber(r, rainElements)
		f.Humidity = firstElementNumber(r, humidityElements)
		f.WindSpeed = firstElementNumber(r, windElements)

		forecasts = append(forecasts, f)
	}
	return forecasts, nil
}

func toEarthquakes(t *table.Table, loc *time.Location) ([]database.Earthquake, error) {
	if !t.HasColumn("earthquake_no") {
		return nil, fmt.Errorf("earthquake table has no earthquake_no column")
	}

	earthquakes := make([]database.Earthquake, 0, t.Len())
	for _, r := range t.Rows() {
		no := r.Get("earthquake_no")
		if no.IsNull() {
			continue
		}

		e := database.Earthquake{
			EarthquakeNo:   no.String(),
			OriginTime:     r.Get("origin_time").String(),
			MagnitudeValue: number(r.Get("magnitude_value")),
			MagnitudeType:  r.Get("magnitude_type").String(),
			Depth:          number(r.Get("depth")),
			Location:       r.Get("location").String(),
			EpicenterLat:   number(r.Get("epicenter_lat")),
			EpicenterLon:   number(r.Get("epicenter_lon")),
			ReportType:     r.Get("report_type").String(),
			ReportColor:    r.Get("report_color").String(),
			ReportContent:  r.Get("report_content").String(),
			ReportURL:      r.Get("report_url").String(),
		}
		e.OriginAt = instant(r.Get("origin_time"), loc)

		earthquakes = append(earthquakes, e)
	}
	return earthquakes, nil
}

func toObservations(t *table.Table) ([]database.Observation, error) {
	if !t.HasColumn("station_id") || !t.HasColumn("observation_time") {
		return nil, fmt.Errorf("observation table has no station_id or observation_time column")
	}

	observations := make([]database.Observation, 0, t.Len())
	for _, r := range t.Rows() {
		station, at := r.Get("station_id"), r.Get("observation_time")
		if station.IsNull() || at.IsNull() {
			continue
		}

		observations = append(observations, database.Observation{
			StationID:       station.String(),
			StationName:     r.Get("station").String(),
			ObservationTime: at.String(),
			Lat:             number(r.Get("lat")),
			Lon:             number(r.Get("lon")),
			Temperature:     firstNumber(r, obsTemperature),
			Humidity:        firstNumber(r, obsHumidity),
			Pressure:        firstNumber(r, obsPressure),
			WindSpeed:       firstNumber(r, obsWindSpeed),
			WindDirection:   firstNumber(r, obsWindDirection),
			Visibility:      firstString(r, obsVisibility),
		})
	}
	return observations, nil
}

// elementNumber reads a forecast element's numeric value, falling back to its
// name when only the name carries a number.
func elementNumber(r table.Record, element string) (float64, bool) {
	if f, ok := r.Get(element + "_value").Float(); ok {
		return f, true
	}
	return r.Get(element + "_name").Float()
}

func firstElementNumber(r table.Record, elements []string) *float64 {
	for _, el := range elements {
		if f, ok := elementNumber(r, el); ok {
			return &f
		}
	}
	return nil
}

func firstNumber(r table.Record, columns []string) *float64 {
	for _, c := range columns {
		if f := number(r.Get(c)); f != nil {
			return f
		}
	}
	return nil
}

func firstString(r table.Record, columns []string) string {
	for _, c := range columns {
		if v := r.Get(c); !v.IsNull() {
			return v.String()
		}
	}
	return ""
}

func number(v table.Value) *float64 {
	f, ok := v.Float()
	if !ok {
		return nil
	}
	return &f
}

func instant(v table.Value, loc *time.Location) *time.Time {
	if ts, ok := v.Time(); ok {
		return &ts
	}
	if v.IsNull() {
		return nil
	}
	if ts, ok := normalize.ParseDate(v.String(), loc); ok {
		return &ts
	}
	return nil
}

// suffixed returns the columns ending in suffix, in table order.
func suffixed(t *table.Table, suffix string) []string {
	var columns []string
	for _, c := range t.Columns() {
		if strings.HasSuffix(c, suffix) {
			columns = append(columns, c)
		}
	}
	return columns
}
