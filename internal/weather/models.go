package weather

import (
	"fmt"
	"strings"
	"time"
)

// City is a tracked location with the coordinates used for upstream requests.
type City struct {
	Name string  `yaml:"name" json:"name"`
	Lat  float64 `yaml:"lat" json:"lat"`
	Lon  float64 `yaml:"lon" json:"lon"`
}

// Slug returns the city name as used in dataset file names.
func (c City) Slug() string {
	return CitySlug(c.Name)
}

// CitySlug builds the dataset slug for a raw city name.
func CitySlug(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, " ", "_"))
}

// HourlyPoint is one forecast hour for a city, condition already decoded.
// Time is a local timestamp string with minute precision.
type HourlyPoint struct {
	Time         string  `json:"time_PKT"`
	TemperatureC float64 `json:"temperature_c"`
	HumidityPct  float64 `json:"humidity_percent"`
	Conditions   string  `json:"conditions"`
	WindSpeedKmh float64 `json:"wind_speed_kmh"`
}

// CityForecast is one city's slice of a snapshot.
type CityForecast struct {
	City   string        `json:"city"`
	Hourly []HourlyPoint `json:"current_hourly_forecast_PKT"`
}

// Snapshot is the immutable output of one fetch cycle: every city that
// could be fetched, in request order. The capture timestamp lives in the
// storage name, not in the document.
type Snapshot []CityForecast

// PointTimeLayout is the timestamp format the upstream returns for hourly
// points (local time, minute precision).
const PointTimeLayout = "2006-01-02T15:04"

const (
	dateLayout = "2006-01-02"
	ampmLayout = "03:04 PM"
)

// Key is the per-city dedup key of a clean record.
type Key struct {
	Date     string
	TimeAMPM string
}

// SplitPointTime parses an hourly point timestamp into the calendar date
// and 12-hour clock components that form the dedup key.
func SplitPointTime(s string) (date, timeAMPM string, err error) {
	t, err := time.Parse(PointTimeLayout, s)
	if err != nil {
		return "", "", fmt.Errorf("parse point time %q: %w", s, err)
	}
	return t.Format(dateLayout), t.Format(ampmLayout), nil
}

// Record is one row of a city's clean dataset, derived 1:1 from an
// HourlyPoint. (Date, TimeAMPM) is unique within a dataset.
type Record struct {
	City         string
	Date         string
	TimeAMPM     string
	TemperatureC float64
	HumidityPct  float64
	Conditions   string
	WindSpeedKmh float64
}

// Key returns the record's dedup key.
func (r Record) Key() Key {
	return Key{Date: r.Date, TimeAMPM: r.TimeAMPM}
}
