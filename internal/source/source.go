// Package source fetches relationship snapshots from outside the process.
//
// A snapshot is decoded into []model.Contact. Three wire shapes are accepted:
// a bare JSON array of contacts, an object with a "contacts" key, and the
// contact-listing service envelope {"success": true, "data": {"contacts": [...]}}
// whose records use camelCase keys.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/alfredjeanlab/garden/internal/model"
)

// Source yields a full snapshot on every call to Fetch.
type Source interface {
	Fetch(ctx context.Context) ([]model.Contact, error)
	// Name identifies the source in logs and metrics ("file", "http").
	Name() string
}

// ErrNoContacts is returned when a payload decodes but carries no contacts key.
var ErrNoContacts = errors.New("payload has no contacts")

// wireContact accepts both the native snake_case keys and the listing
// service's camelCase keys.
type wireContact struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	PartnerName string `json:"partnerName" yaml:"partnerName"`
	Category    string `json:"category" yaml:"category"`

	Recency   *float64 `json:"recency" yaml:"recency"`
	Frequency *float64 `json:"frequency" yaml:"frequency"`

	DaysSinceContact      *float64 `json:"days_since_contact" yaml:"days_since_contact"`
	DaysSinceContactCamel *float64 `json:"daysSinceContact" yaml:"daysSinceContact"`
	MessagesPerDay        *float64 `json:"messages_per_day" yaml:"messages_per_day"`
	InteractionFrequency  *float64 `json:"interactionFrequency" yaml:"interactionFrequency"`
	Intensity             *float64 `json:"intensity" yaml:"intensity"`
	SizeHint              *float64 `json:"size_hint" yaml:"size_hint"`
	Size                  *float64 `json:"size" yaml:"size"`

	Metrics *struct {
		InteractionFrequency *float64 `json:"interactionFrequency" yaml:"interactionFrequency"`
		TotalMessages        *float64 `json:"totalMessages" yaml:"totalMessages"`
	} `json:"metrics" yaml:"metrics"`
}

type envelope struct {
	Success  *bool           `json:"success"`
	Error    string          `json:"error"`
	Contacts []wireContact   `json:"contacts"`
	Data     json.RawMessage `json:"data"`
}

// DecodeJSON decodes any of the accepted JSON snapshot shapes.
func DecodeJSON(data []byte) ([]model.Contact, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty payload")
	}

	if data[0] == '[' {
		var wc []wireContact
		if err := json.Unmarshal(data, &wc); err != nil {
			return nil, fmt.Errorf("decoding contact array: %w", err)
		}
		return convert(wc, false), nil
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	if env.Success != nil && !*env.Success {
		msg := env.Error
		if msg == "" {
			msg = "unsuccessful response"
		}
		return nil, fmt.Errorf("listing service: %s", msg)
	}
	if env.Contacts != nil {
		return convert(env.Contacts, false), nil
	}
	if len(env.Data) > 0 {
		var inner struct {
			Contacts []wireContact `json:"contacts"`
		}
		if err := json.Unmarshal(env.Data, &inner); err != nil {
			return nil, fmt.Errorf("decoding envelope data: %w", err)
		}
		if inner.Contacts == nil {
			return nil, ErrNoContacts
		}
		return convert(inner.Contacts, true), nil
	}
	return nil, ErrNoContacts
}

func convert(wc []wireContact, legacy bool) []model.Contact {
	out := make([]model.Contact, len(wc))
	for i, w := range wc {
		out[i] = w.contact(legacy)
	}
	return out
}

// contact maps a wire record to a model.Contact. In the service envelope,
// "recency" means closeness (1 = talked today), the inverse of ours, and
// "size" is a display hint.
func (w wireContact) contact(legacy bool) model.Contact {
	c := model.Contact{
		ID:               w.ID,
		Name:             w.Name,
		Category:         w.Category,
		Frequency:        w.Frequency,
		DaysSinceContact: first(w.DaysSinceContact, w.DaysSinceContactCamel),
		MessagesPerDay:   first(w.MessagesPerDay, w.InteractionFrequency),
		Intensity:        w.Intensity,
		SizeHint:         first(w.SizeHint, w.Size),
		Recency:          w.Recency,
	}
	if c.Name == "" {
		c.Name = w.PartnerName
	}
	if w.Metrics != nil {
		if c.MessagesPerDay == nil {
			c.MessagesPerDay = w.Metrics.InteractionFrequency
		}
		if c.Intensity == nil {
			c.Intensity = w.Metrics.TotalMessages
		}
	}
	if legacy && w.Recency != nil {
		// The service's closeness is clipped at 30 days, so raw days are
		// more informative whenever they are present.
		if c.DaysSinceContact != nil {
			c.Recency = nil
		} else if !math.IsNaN(*w.Recency) {
			c.Recency = model.Float(1 - *w.Recency)
		}
	}
	return c
}

func first(vs ...*float64) *float64 {
	for _, v := range vs {
		if v != nil {
			return v
		}
	}
	return nil
}
