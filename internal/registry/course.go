// Package registry holds the course-alias table used to derive a course
// name from free-text provenance at confirmation time.
package registry

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// CourseUnknown is the sentinel emitted when no course can be derived.
// Course derivation is explicitly best-effort; provenance is prose, not a
// parseable field.
const CourseUnknown = "unknown course"

// Course is one entry in the alias table.
type Course struct {
	ID      string   `yaml:"id" json:"id"`
	Name    string   `yaml:"name" json:"name"`
	Aliases []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
}

// CourseRegistry matches provenance text against known course identifiers.
type CourseRegistry struct {
	courses []Course
}

// NewCourseRegistry builds a registry from the given courses.
func NewCourseRegistry(courses []Course) *CourseRegistry {
	return &CourseRegistry{courses: courses}
}

// LoadCoursesFromFile reads a YAML list of courses from the given path and
// returns an indexed registry.
func LoadCoursesFromFile(path string) (*CourseRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "registry: read courses fixture")
	}

	var courses []Course
	if err := yaml.Unmarshal(data, &courses); err != nil {
		return nil, eris.Wrap(err, "registry: unmarshal courses fixture")
	}

	return NewCourseRegistry(courses), nil
}

// Derive scans the given free-text fragments for a known course id, name,
// or alias (case-insensitive substring match, first hit wins) and returns
// the course name. Returns CourseUnknown when nothing matches.
func (r *CourseRegistry) Derive(texts ...string) string {
	if r == nil || len(r.courses) == 0 {
		return CourseUnknown
	}
	for _, text := range texts {
		lower := strings.ToLower(text)
		if lower == "" {
			continue
		}
		for _, c := range r.courses {
			if c.ID != "" && strings.Contains(lower, strings.ToLower(c.ID)) {
				return c.Name
			}
			if c.Name != "" && strings.Contains(lower, strings.ToLower(c.Name)) {
				return c.Name
			}
			for _, alias := range c.Aliases {
				if alias != "" && strings.Contains(lower, strings.ToLower(alias)) {
					return c.Name
				}
			}
		}
	}
	return CourseUnknown
}
