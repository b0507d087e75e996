// Package directory holds the read-only doctor catalog. It is loaded once at
// process start and never mutated afterwards, so it is safe to share between
// concurrent requests without locking.
package directory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/hackgods/clinic-booking-engine/internal/schedule"
)

var (
	ErrDoctorNotFound = errors.New("doctor not found")
	ErrDuplicateID    = errors.New("duplicate doctor_id")
)

type VisitMode string

const (
	VisitOnline   VisitMode = "online"
	VisitInPerson VisitMode = "inperson"
	VisitAny      VisitMode = "any"
)

// ParseVisitMode normalises user input; unknown or empty values mean "any".
func ParseVisitMode(s string) VisitMode {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "-", "")) {
	case "online":
		return VisitOnline
	case "inperson":
		return VisitInPerson
	default:
		return VisitAny
	}
}

type Fees struct {
	Online   int `json:"online_pkr"`
	InPerson int `json:"inperson_pkr"`
}

// For returns the fee for a visit mode. Anything but online is billed in person.
func (f Fees) For(mode VisitMode) int {
	if mode == VisitOnline {
		return f.Online
	}
	return f.InPerson
}

type Doctor struct {
	ID              string
	Name            string
	Specialization  string
	ExperienceYears int
	Location        string
	Fees            Fees
	Weekly          schedule.Weekly
	CalendarID      string
	Email           string
}

// Offers reports whether the doctor can be booked for the given mode. A mode
// is offered when the doctor has a fee configured for it.
func (d Doctor) Offers(mode VisitMode) bool {
	switch mode {
	case VisitOnline:
		return d.Fees.Online > 0
	case VisitInPerson:
		return d.Fees.InPerson > 0
	default:
		return true
	}
}

// Record is one doctor as stored in the catalog file.
type Record struct {
	ID              string              `json:"doctor_id"`
	Name            string              `json:"name"`
	Specialization  string              `json:"specialization"`
	ExperienceYears int                 `json:"experience_years"`
	Location        string              `json:"location"`
	Fees            Fees                `json:"fees"`
	WeeklySchedule  map[string][]string `json:"weekly_schedule"`
	CalendarID      string              `json:"calendar_id"`
	Email           string              `json:"email"`
}

// File is the on-disk shape of the catalog.
type File struct {
	Doctors      []Record            `json:"doctors"`
	ConditionMap map[string][]string `json:"condition_map"`
}

// Directory is the immutable in-memory catalog.
type Directory struct {
	doctors    []Doctor
	byID       map[string]int
	conditions map[string][]string
}

// Load reads a catalog from a JSON file.
func Load(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", path, err)
	}
	return Parse(data)
}

// Parse validates and indexes a JSON catalog.
func Parse(data []byte) (*Directory, error) {
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode directory: %w", err)
	}

	d := &Directory{
		doctors:    make([]Doctor, 0, len(f.Doctors)),
		byID:       make(map[string]int, len(f.Doctors)),
		conditions: make(map[string][]string, len(f.ConditionMap)),
	}
	for _, raw := range f.Doctors {
		if strings.TrimSpace(raw.ID) == "" {
			return nil, fmt.Errorf("doctor %q: doctor_id is required", raw.Name)
		}
		if _, dup := d.byID[raw.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, raw.ID)
		}
		weekly, err := schedule.ParseWeekly(raw.WeeklySchedule)
		if err != nil {
			return nil, fmt.Errorf("doctor %s weekly_schedule: %w", raw.ID, err)
		}
		d.byID[raw.ID] = len(d.doctors)
		d.doctors = append(d.doctors, Doctor{
			ID:              raw.ID,
			Name:            raw.Name,
			Specialization:  raw.Specialization,
			ExperienceYears: raw.ExperienceYears,
			Location:        raw.Location,
			Fees:            raw.Fees,
			Weekly:          weekly,
			CalendarID:      raw.CalendarID,
			Email:           raw.Email,
		})
	}
	for cond, ids := range f.ConditionMap {
		key := normaliseCondition(cond)
		d.conditions[key] = append(d.conditions[key], ids...)
	}
	return d, nil
}

// New builds a directory from already parsed doctors. Used by tests and seeds.
func New(doctors []Doctor, conditions map[string][]string) *Directory {
	d := &Directory{
		doctors:    make([]Doctor, len(doctors)),
		byID:       make(map[string]int, len(doctors)),
		conditions: make(map[string][]string, len(conditions)),
	}
	copy(d.doctors, doctors)
	for i, doc := range d.doctors {
		d.byID[doc.ID] = i
	}
	for cond, ids := range conditions {
		d.conditions[normaliseCondition(cond)] = append([]string(nil), ids...)
	}
	return d
}

// Get returns the doctor with the given id.
func (d *Directory) Get(id string) (Doctor, error) {
	i, ok := d.byID[id]
	if !ok {
		return Doctor{}, fmt.Errorf("%w: %s", ErrDoctorNotFound, id)
	}
	return d.doctors[i], nil
}

// All returns every doctor in file order.
func (d *Directory) All() []Doctor {
	out := make([]Doctor, len(d.doctors))
	copy(out, d.doctors)
	return out
}

// Len is the number of doctors in the catalog.
func (d *Directory) Len() int {
	return len(d.doctors)
}

// ByCondition returns the doctors mapped to a condition and offering mode.
func (d *Directory) ByCondition(condition string, mode VisitMode) []Doctor {
	ids := d.conditions[normaliseCondition(condition)]
	var out []Doctor
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		i, ok := d.byID[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		if d.doctors[i].Offers(mode) {
			out = append(out, d.doctors[i])
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return d.byID[out[a].ID] < d.byID[out[b].ID] })
	return out
}

// FindByName matches case-insensitively when either name contains the other,
// so "Ahmed" finds "Dr. Ahmed Khan". The first match in file order wins.
func (d *Directory) FindByName(name string) (Doctor, error) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return Doctor{}, fmt.Errorf("%w: empty name", ErrDoctorNotFound)
	}
	for _, doc := range d.doctors {
		hay := strings.ToLower(strings.TrimSpace(doc.Name))
		if hay == "" {
			continue
		}
		if strings.Contains(hay, needle) || strings.Contains(needle, hay) {
			return doc, nil
		}
	}
	return Doctor{}, fmt.Errorf("%w: %s", ErrDoctorNotFound, name)
}

// Conditions lists the known condition keywords, sorted.
func (d *Directory) Conditions() []string {
	out := make([]string, 0, len(d.conditions))
	for c := range d.conditions {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func normaliseCondition(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
