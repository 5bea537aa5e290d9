package route

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Gerzer/Shuttle-Tracker-Server/internal/geo"
)

// routeFile is the on-disk YAML shape of a route definition.
type routeFile struct {
	ID              string       `yaml:"id"`
	Name            string       `yaml:"name"`
	Color           string       `yaml:"color"`
	ThresholdMeters float64      `yaml:"threshold_meters"`
	Schedule        scheduleFile `yaml:"schedule"`
	Path            [][2]float64 `yaml:"path"` // latitude, longitude pairs
}

type scheduleFile struct {
	Timezone string       `yaml:"timezone"`
	Windows  []windowFile `yaml:"windows"`
}

type windowFile struct {
	Days  []string `yaml:"days"`
	Start string   `yaml:"start"` // "HH:MM"
	End   string   `yaml:"end"`
}

// ParseFile reads and validates a single YAML route definition.
func ParseFile(path string) (*Route, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read route file: %w", err)
	}

	var rf routeFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse route file: %w", err)
	}

	return rf.toRoute()
}

// LoadDir parses every .yaml/.yml file in dir. Files that fail to parse are
// logged and skipped so one bad definition never takes down the rest of the
// route set.
func LoadDir(dir string) ([]Route, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read routes directory: %w", err)
	}

	var routes []Route
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		r, err := ParseFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			log.Printf("Routes: skipping %s: %v", entry.Name(), err)
			continue
		}
		routes = append(routes, *r)
	}

	return routes, nil
}

func (rf routeFile) toRoute() (*Route, error) {
	if rf.ID == "" {
		return nil, fmt.Errorf("route id is required")
	}
	if len(rf.Path) < 2 {
		return nil, fmt.Errorf("route %s: path needs at least 2 points", rf.ID)
	}

	threshold := rf.ThresholdMeters
	if threshold <= 0 {
		threshold = DefaultThresholdMeters
	}

	if rf.Schedule.Timezone != "" {
		if _, err := time.LoadLocation(rf.Schedule.Timezone); err != nil {
			return nil, fmt.Errorf("route %s: unknown timezone %q", rf.ID, rf.Schedule.Timezone)
		}
	}

	windows := make([]Window, 0, len(rf.Schedule.Windows))
	for i, wf := range rf.Schedule.Windows {
		w, err := wf.toWindow()
		if err != nil {
			return nil, fmt.Errorf("route %s: window %d: %w", rf.ID, i, err)
		}
		windows = append(windows, w)
	}

	path := make(geo.Path, len(rf.Path))
	for i, p := range rf.Path {
		c := geo.Coordinate{Latitude: p[0], Longitude: p[1]}
		if !c.Valid() {
			return nil, fmt.Errorf("route %s: path point %d out of range", rf.ID, i)
		}
		path[i] = c
	}

	return &Route{
		ID:              rf.ID,
		Name:            rf.Name,
		Color:           rf.Color,
		ThresholdMeters: threshold,
		Schedule: Schedule{
			Timezone: rf.Schedule.Timezone,
			Windows:  windows,
		},
		Path: path,
	}, nil
}

func (wf windowFile) toWindow() (Window, error) {
	start, err := parseMinute(wf.Start)
	if err != nil {
		return Window{}, fmt.Errorf("bad start time %q: %w", wf.Start, err)
	}
	end, err := parseMinute(wf.End)
	if err != nil {
		return Window{}, fmt.Errorf("bad end time %q: %w", wf.End, err)
	}

	days := make([]time.Weekday, 0, len(wf.Days))
	for _, d := range wf.Days {
		day, err := parseDay(d)
		if err != nil {
			return Window{}, err
		}
		days = append(days, day)
	}

	return Window{Days: days, Start: start, End: end}, nil
}

// parseMinute converts "HH:MM" to minutes after midnight.
func parseMinute(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected HH:MM")
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("bad hour")
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("bad minute")
	}
	return hour*60 + minute, nil
}

var dayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func parseDay(s string) (time.Weekday, error) {
	if day, ok := dayNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return day, nil
	}
	return 0, fmt.Errorf("unknown day %q", s)
}
