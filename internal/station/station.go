/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package station holds the fixed catalog of themed radio stations.
package station

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrNotFound is returned when a station id is not in the catalog.
var ErrNotFound = errors.New("station not found")

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Station is a themed category mapped to a fixed archive search query.
type Station struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Query       string `json:"query"`
}

// Catalog is an ordered, read-only list of stations.
type Catalog struct {
	stations []Station
	index    map[string]int
}

// New builds a catalog, rejecting empty or duplicate slug ids.
func New(stations ...Station) (*Catalog, error) {
	c := &Catalog{
		stations: make([]Station, 0, len(stations)),
		index:    make(map[string]int, len(stations)),
	}
	for _, s := range stations {
		if !slugPattern.MatchString(s.ID) {
			return nil, fmt.Errorf("invalid station id %q", s.ID)
		}
		if _, dup := c.index[s.ID]; dup {
			return nil, fmt.Errorf("duplicate station id %q", s.ID)
		}
		if s.Query == "" {
			return nil, fmt.Errorf("station %q has no query", s.ID)
		}
		c.index[s.ID] = len(c.stations)
		c.stations = append(c.stations, s)
	}
	return c, nil
}

// Default returns the built-in six station catalog.
func Default() *Catalog {
	c, err := New(defaultStations...)
	if err != nil {
		panic(err)
	}
	return c
}

// List returns the stations in catalog order.
func (c *Catalog) List() []Station {
	out := make([]Station, len(c.stations))
	copy(out, c.stations)
	return out
}

// Find looks up a station by id.
func (c *Catalog) Find(id string) (Station, error) {
	i, ok := c.index[id]
	if !ok {
		return Station{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return c.stations[i], nil
}

// Len returns the number of stations.
func (c *Catalog) Len() int {
	return len(c.stations)
}

var defaultStations = []Station{
	{
		ID:          "classical",
		Name:        "Classical",
		Description: "Orchestral & chamber",
		Icon:        "🎻",
		Query:       "subject:(classical) AND mediatype:(audio) AND format:(mp3)",
	},
	{
		ID:          "jazz",
		Name:        "Jazz",
		Description: "Swing, bop & cool",
		Icon:        "🎷",
		Query:       "subject:(jazz) AND mediatype:(audio) AND format:(mp3)",
	},
	{
		ID:          "blues",
		Name:        "Blues",
		Description: "Delta & Chicago",
		Icon:        "🎸",
		Query:       "subject:(blues) AND mediatype:(audio) AND format:(mp3)",
	},
	{
		ID:          "folk",
		Name:        "Folk",
		Description: "Traditional & roots",
		Icon:        "🪕",
		Query:       "subject:(folk) AND mediatype:(audio) AND format:(mp3)",
	},
	{
		ID:          "world",
		Name:        "World",
		Description: "Global sounds",
		Icon:        "🌍",
		Query:       "subject:(world music) AND mediatype:(audio) AND format:(mp3)",
	},
	{
		ID:          "ambient",
		Name:        "Ambient",
		Description: "Atmospheric textures",
		Icon:        "🌌",
		Query:       "subject:(ambient) AND mediatype:(audio) AND format:(mp3)",
	},
}
