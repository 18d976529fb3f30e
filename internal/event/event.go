// Package event models the event a person is qualified against and extracts
// it from an event web page.
package event

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Placeholder values for missing fields.
const (
	DefaultName        = "Unknown Event"
	DefaultType        = "Event"
	DefaultDate        = "TBD"
	DefaultLocation    = "TBD"
	DefaultDescription = "Event details extracted from URL"
	DefaultAudience    = "General audience"
	DefaultFormat      = "Presentation"
)

// Details describes an event. Unknown JSON fields are ignored and loosely
// typed fields are coerced, so model output and client input decode alike.
type Details struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Requirements []string `json:"requirements"`
	Audience     string   `json:"audience"`
	Format       string   `json:"format"`
	Date         string   `json:"date"`
	Location     string   `json:"location"`
	Description  string   `json:"description"`
	Topics       []string `json:"topics"`
	URL          string   `json:"url,omitempty"`

	RawContent      string `json:"raw_content,omitempty"`
	ExtractionError string `json:"extraction_error,omitempty"`
}

// Defaults returns the placeholder event for url.
func Defaults(url string) Details {
	return Details{
		Name:         DefaultName,
		Type:         DefaultType,
		Date:         DefaultDate,
		Location:     DefaultLocation,
		Description:  DefaultDescription,
		Requirements: []string{},
		Audience:     DefaultAudience,
		Format:       DefaultFormat,
		Topics:       []string{},
		URL:          url,
	}
}

// Normalize fills missing fields with placeholders. The description is left
// alone since the caller wrote it.
func (d Details) Normalize() Details {
	d.Name = orDefault(d.Name, DefaultName)
	d.Type = orDefault(d.Type, DefaultType)
	d.Date = orDefault(d.Date, DefaultDate)
	d.Location = orDefault(d.Location, DefaultLocation)
	d.Audience = orDefault(d.Audience, DefaultAudience)
	d.Format = orDefault(d.Format, DefaultFormat)
	if d.Requirements == nil {
		d.Requirements = []string{}
	}
	if d.Topics == nil {
		d.Topics = []string{}
	}
	return d
}

// MergeOver fills every empty field of d from base.
func (d Details) MergeOver(base Details) Details {
	d.Name = orDefault(d.Name, base.Name)
	d.Type = orDefault(d.Type, base.Type)
	d.Date = orDefault(d.Date, base.Date)
	d.Location = orDefault(d.Location, base.Location)
	d.Description = orDefault(d.Description, base.Description)
	d.Audience = orDefault(d.Audience, base.Audience)
	d.Format = orDefault(d.Format, base.Format)
	d.URL = orDefault(d.URL, base.URL)
	if len(d.Requirements) == 0 {
		d.Requirements = base.Requirements
	}
	if len(d.Topics) == 0 {
		d.Topics = base.Topics
	}
	return d
}

// UnmarshalJSON decodes leniently: lists may arrive as a single string and
// scalars as numbers.
func (d *Details) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*d = FromMap(m)
	return nil
}

// FromMap builds Details from a decoded JSON object.
func FromMap(m map[string]any) Details {
	return Details{
		Name:            str(m["name"]),
		Type:            str(m["type"]),
		Requirements:    list(m["requirements"]),
		Audience:        str(m["audience"]),
		Format:          str(m["format"]),
		Date:            str(m["date"]),
		Location:        str(m["location"]),
		Description:     str(m["description"]),
		Topics:          list(m["topics"]),
		URL:             str(m["url"]),
		RawContent:      str(m["raw_content"]),
		ExtractionError: str(m["extraction_error"]),
	}
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64, bool:
		return fmt.Sprint(t)
	default:
		return ""
	}
}

func list(v any) []string {
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}
		}
		return nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := str(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return t
	default:
		return nil
	}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
