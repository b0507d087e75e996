package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking-engine/internal/directory"
	"github.com/hackgods/clinic-booking-engine/pkg/logging"
)

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Physician",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Gynecology",
	"ENT",
}

// conditions maps a condition key to the specialties that treat it.
var conditions = map[string][]string{
	"skin_rash":     {"Dermatology"},
	"acne":          {"Dermatology"},
	"chest_pain":    {"Cardiology", "General Physician"},
	"fever":         {"General Physician", "Pediatrics"},
	"back_pain":     {"Orthopedics"},
	"diabetes":      {"Endocrinology", "General Physician"},
	"migraine":      {"Neurology"},
	"anxiety":       {"Psychiatry"},
	"pregnancy":     {"Gynecology"},
	"ear_pain":      {"ENT"},
	"child_checkup": {"Pediatrics"},
}

var areas = []string{"Clifton", "DHA", "Gulshan", "PECHS", "North Nazimabad"}

func main() {
	log := logging.New(getEnv("LOG_LEVEL", "info"), "dev")

	out := getEnv("SEED_OUT", "data/doctors.json")
	count := getInt("SEED_DOCTORS", 20)
	seed := uint64(time.Now().UnixNano())
	if v := os.Getenv("SEED_RANDOM"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			seed = n
		}
	}

	log.Info().Int("doctors", count).Str("out", out).Uint64("seed", seed).Msg("seed starting")

	file := generateCatalog(gofakeit.New(seed), count)
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("encode catalog")
	}

	// the api-server refuses a catalog it cannot parse, so check it here first
	dir, err := directory.Parse(data)
	if err != nil {
		log.Fatal().Err(err).Msg("generated catalog is invalid")
	}

	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		log.Fatal().Err(err).Msg("create output directory")
	}
	if err := os.WriteFile(out, append(data, '\n'), 0o644); err != nil {
		log.Fatal().Err(err).Msg("write catalog")
	}

	log.Info().Int("doctors", dir.Len()).Int("conditions", len(file.ConditionMap)).Msg("seed complete")
}

func generateCatalog(faker *gofakeit.Faker, count int) directory.File {
	file := directory.File{
		Doctors:      make([]directory.Record, 0, count),
		ConditionMap: make(map[string][]string, len(conditions)),
	}

	bySpecialty := make(map[string][]string)
	for i := 0; i < count; i++ {
		first, last := faker.FirstName(), faker.LastName()
		id := "d-" + strings.ToLower(first) + "-" + uuid.NewString()[:8]
		spec := specialties[faker.Number(0, len(specialties)-1)]
		handle := strings.ToLower(first + "." + last)

		fees := directory.Fees{InPerson: faker.Number(15, 60) * 100}
		// roughly two thirds of the doctors also consult online
		if faker.Number(0, 2) > 0 {
			fees.Online = fees.InPerson - faker.Number(2, 10)*100
		}

		file.Doctors = append(file.Doctors, directory.Record{
			ID:              id,
			Name:            fmt.Sprintf("Dr. %s %s", first, last),
			Specialization:  spec,
			ExperienceYears: faker.Number(2, 35),
			Location:        "Unity Care Clinic, " + areas[faker.Number(0, len(areas)-1)],
			Fees:            fees,
			WeeklySchedule:  weeklySchedule(faker),
			CalendarID:      handle + "@group.calendar.google.com",
			Email:           handle + "@clinic.example",
		})
		bySpecialty[spec] = append(bySpecialty[spec], id)
	}

	for condition, specs := range conditions {
		var ids []string
		for _, s := range specs {
			ids = append(ids, bySpecialty[s]...)
		}
		if len(ids) > 0 {
			file.ConditionMap[condition] = ids
		}
	}
	return file
}

// weeklySchedule picks three to five working days with a morning shift, an
// evening shift, or both.
func weeklySchedule(faker *gofakeit.Faker) map[string][]string {
	days := []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}
	faker.ShuffleAnySlice(days)

	out := make(map[string][]string)
	for _, day := range days[:faker.Number(3, 5)] {
		var windows []string
		switch faker.Number(0, 2) {
		case 0:
			windows = []string{morningShift(faker)}
		case 1:
			windows = []string{eveningShift(faker)}
		default:
			windows = []string{morningShift(faker), eveningShift(faker)}
		}
		out[day] = windows
	}
	return out
}

func morningShift(faker *gofakeit.Faker) string {
	start := faker.Number(8, 10)
	return fmt.Sprintf("%02d:00-%02d:00", start, start+faker.Number(2, 3))
}

func eveningShift(faker *gofakeit.Faker) string {
	start := faker.Number(15, 18)
	end := start + faker.Number(2, 3)
	if start == 18 && faker.Bool() {
		return fmt.Sprintf("%02d:30-%02d:00", start, end)
	}
	return fmt.Sprintf("%02d:00-%02d:00", start, end)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
