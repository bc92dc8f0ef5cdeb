package manifest

import (
	"fmt"

	"github.com/GriffinCanCode/localwebapp/internal/shared/types"
)

// decodeFields maps a descriptor section onto a Manifest field by field
func decodeFields(section map[string]interface{}) (types.Manifest, error) {
	var m types.Manifest
	textFields := []struct {
		key string
		dst *string
	}{
		{"id", &m.ID},
		{"title", &m.DisplayName},
		{"publisher", &m.PublisherName},
		{"website", &m.Website},
		{"description", &m.Description},
		{"copyright", &m.Copyright},
		{"icon", &m.Icon},
		{"version", &m.Version},
		{"entry", &m.Entry},
	}
	for _, f := range textFields {
		raw, ok := section[f.key]
		if !ok || raw == nil {
			continue
		}
		s, ok := raw.(string)
		if !ok {
			return m, fmt.Errorf("field %q must be a string, got %T", f.key, raw)
		}
		*f.dst = s
	}

	if raw, ok := section["exclude"]; ok && raw != nil {
		list, ok := raw.([]interface{})
		if !ok {
			return m, fmt.Errorf(`field "exclude" must be a list of strings, got %T`, raw)
		}
		for i, item := range list {
			s, ok := item.(string)
			if !ok {
				return m, fmt.Errorf(`field "exclude[%d]" must be a string, got %T`, i, item)
			}
			m.Exclude = append(m.Exclude, s)
		}
	}
	return m, nil
}

// encodeFields is the inverse of decodeFields, omitting empty fields
func encodeFields(m types.Manifest) map[string]interface{} {
	out := map[string]interface{}{"id": m.ID}
	set := func(key, value string) {
		if value != "" {
			out[key] = value
		}
	}
	set("title", m.DisplayName)
	set("publisher", m.PublisherName)
	set("website", m.Website)
	set("description", m.Description)
	set("copyright", m.Copyright)
	set("icon", m.Icon)
	set("version", m.Version)
	set("entry", m.Entry)
	if len(m.Exclude) > 0 {
		list := make([]interface{}, len(m.Exclude))
		for i, e := range m.Exclude {
			list[i] = e
		}
		out["exclude"] = list
	}
	return out
}
