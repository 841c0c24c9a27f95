// Package federation describes the resources the federation backend exposes:
// where they live, how their forms are validated, how their lists are
// filtered and which columns the CLI shows.
package federation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mesh-intelligence/courtside/internal/coerce"
	"github.com/mesh-intelligence/courtside/internal/filter"
	"github.com/mesh-intelligence/courtside/internal/form"
	"github.com/mesh-intelligence/courtside/pkg/types"
)

// Resource names.
const (
	Teams       = "teams"
	Players     = "players"
	Games       = "games"
	Tournaments = "tournaments"
)

// Allowed values for enumerated fields.
var (
	TeamStatuses       = []string{"active", "inactive", "suspended"}
	PlayerPositions    = []string{"PG", "SG", "SF", "PF", "C"}
	GameStatuses       = []string{"scheduled", "live", "final", "postponed"}
	TournamentStatuses = []string{"upcoming", "ongoing", "completed", "cancelled"}
)

// CacheKeyPrefix starts the storage key of every resource cache entry.
const CacheKeyPrefix = "courtside:"

// FirstFoundedYear is the earliest founding year accepted for a team.
const FirstFoundedYear = 1900

// Resource is one backend collection.
type Resource struct {
	Name     string
	Endpoint string
	CacheKey string
	Topic    string
	Schema   form.Schema
	Filters  filter.Config
	Columns  []string
}

var catalogue = map[string]Resource{
	Teams:       teams(),
	Players:     players(),
	Games:       games(),
	Tournaments: tournaments(),
}

// Lookup returns the resource named name, ignoring case.
func Lookup(name string) (Resource, error) {
	r, ok := catalogue[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Resource{}, fmt.Errorf("%w %q (valid: %s)", types.ErrUnknownResource, name, strings.Join(Names(), ", "))
	}
	return r, nil
}

// Names lists every resource in sorted order.
func Names() []string {
	out := make([]string, 0, len(catalogue))
	for name := range catalogue {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// All returns every resource sorted by name.
func All() []Resource {
	out := make([]Resource, 0, len(catalogue))
	for _, name := range Names() {
		out = append(out, catalogue[name])
	}
	return out
}

func resource(name string) Resource {
	return Resource{
		Name:     name,
		Endpoint: "/" + name,
		CacheKey: CacheKeyPrefix + name,
		Topic:    name,
	}
}

func teams() Resource {
	r := resource(Teams)
	r.Schema = form.Schema{
		"name":         {form.Required("Team name is required"), form.MinLength(2), form.MaxLength(100)},
		"city":         {form.Required("City is required")},
		"founded_year": {form.Integer(), form.Min(FirstFoundedYear), notAfterThisYear()},
		"email":        {form.Email()},
		"website":      {form.URL()},
		"status":       {oneOf(TeamStatuses)},
	}
	r.Filters = filter.Config{
		SearchFields: []string{"name", "city", "coach"},
		Keys: map[string]filter.KeyConfig{
			"status": {Default: filter.All},
		},
	}
	r.Columns = []string{"id", "name", "city", "coach", "status"}
	return r
}

func players() Resource {
	r := resource(Players)
	r.Schema = form.Schema{
		"first_name":    {form.Required("First name is required"), form.MaxLength(50)},
		"last_name":     {form.Required("Last name is required"), form.MaxLength(50)},
		"team_id":       {form.Required("Team is required")},
		"jersey_number": {form.Integer(), form.Min(0), form.Max(99)},
		"date_of_birth": {form.Date(), form.PastDate("Date of birth must be in the past")},
		"email":         {form.Email()},
		"position":      {oneOf(PlayerPositions)},
	}
	r.Filters = filter.Config{
		SearchFields: []string{"first_name", "last_name"},
		Keys: map[string]filter.KeyConfig{
			"position": {Default: filter.All},
			"team_id":  {Default: filter.All, Match: sameID("team_id")},
		},
	}
	r.Columns = []string{"id", "first_name", "last_name", "team_id", "jersey_number", "position"}
	return r
}

func games() Resource {
	r := resource(Games)
	r.Schema = form.Schema{
		"home_team_id": {form.Required("Home team is required")},
		"away_team_id": {
			form.Required("Away team is required"),
			form.Custom(func(value any, values types.Values) bool {
				home := types.IDString(values["home_team_id"])
				return home == "" || types.IDString(value) != home
			}, "Away team must differ from home team"),
		},
		"scheduled_at": {form.Date()},
		"venue":        {form.Required("Venue is required")},
		"status":       {oneOf(GameStatuses)},
	}
	r.Filters = filter.Config{
		SearchFields: []string{"venue"},
		Keys: map[string]filter.KeyConfig{
			"status": {Default: filter.All},
		},
	}
	r.Columns = []string{"id", "home_team_id", "away_team_id", "scheduled_at", "venue", "status"}
	return r
}

func tournaments() Resource {
	r := resource(Tournaments)
	r.Schema = form.Schema{
		"name":       {form.Required("Tournament name is required"), form.MaxLength(100)},
		"start_date": {form.Date()},
		"end_date": {
			form.Date(),
			form.Custom(func(value any, values types.Values) bool {
				end, ok := parseDay(value)
				if !ok {
					return true
				}
				start, ok := parseDay(values["start_date"])
				return !ok || !end.Before(start)
			}, "End date cannot be before start date"),
		},
		"max_teams": {form.Integer(), form.Positive()},
		"status":    {oneOf(TournamentStatuses)},
	}
	r.Filters = filter.Config{
		SearchFields: []string{"name", "location"},
		Keys: map[string]filter.KeyConfig{
			"status": {Default: filter.All},
		},
	}
	r.Columns = []string{"id", "name", "location", "start_date", "end_date", "status"}
	return r
}

// notAfterThisYear is evaluated at validation time, not at catalogue build.
func notAfterThisYear() form.Rule {
	return form.Custom(func(value any, _ types.Values) bool {
		n, ok := coerce.ParseNumber(value)
		return !ok || n <= float64(time.Now().Year())
	}, "Founded year cannot be in the future")
}

// oneOf accepts a blank value or one of allowed.
func oneOf(allowed []string) form.Rule {
	msg := "Must be one of " + strings.Join(allowed, ", ")
	return form.Custom(func(value any, _ types.Values) bool {
		s := coerce.String(value)
		if strings.TrimSpace(s) == "" {
			return true
		}
		for _, a := range allowed {
			if s == a {
				return true
			}
		}
		return false
	}, msg)
}

// sameID compares ids by their string form, so a "3" typed on the command
// line matches a numeric 3 from the backend.
func sameID(field string) filter.MatchFunc {
	return func(record types.Record, value any) bool {
		return types.IDString(record[field]) == types.IDString(value)
	}
}

func parseDay(value any) (time.Time, bool) {
	s := strings.TrimSpace(coerce.String(value))
	if len(s) >= 10 {
		s = s[:10]
	}
	t, err := time.Parse("2006-01-02", s)
	return t, err == nil
}
