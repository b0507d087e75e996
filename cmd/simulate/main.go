package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/clinic-booking-engine/internal/api"
	"github.com/hackgods/clinic-booking-engine/pkg/logging"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	CancelRatio  float64
	ReadRatio    float64
	Patients     int
	Days         int
	SlotMinutes  int
}

// Slot is one bookable interval discovered through the availability API.
type Slot struct {
	DoctorID string
	Start    time.Time
	End      time.Time
}

type booked struct {
	DoctorID string
	EventID  string
	Email    string
}

type DataPool struct {
	Patients []api.PatientRequest
	Slots    []Slot
	mu       sync.Mutex
	booked   []booked
}

func (dp *DataPool) AddBooking(b booked) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.booked = append(dp.booked, b)
}

// TakeBooking removes and returns a random booking, so that two workers never
// cancel the same appointment.
func (dp *DataPool) TakeBooking(rng *rand.Rand) (booked, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.booked) == 0 {
		return booked{}, false
	}
	idx := rng.Intn(len(dp.booked))
	b := dp.booked[idx]
	dp.booked[idx] = dp.booked[len(dp.booked)-1]
	dp.booked = dp.booked[:len(dp.booked)-1]
	return b, true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95, p99 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = percentile(latencies, 50)
	p95 = percentile(latencies, 95)
	p99 = percentile(latencies, 99)
	return avg, min, max, p50, p95, p99
}

func percentile(sorted []time.Duration, p int) time.Duration {
	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

type Metrics struct {
	Booking      OperationMetrics
	Cancel       OperationMetrics
	Availability OperationMetrics
	List         OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	log     zerolog.Logger
}

func main() {
	log := logging.New(getEnv("LOG_LEVEL", "info"), "dev")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	log.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("cancel", cfg.CancelRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 45 * time.Second},
		log:    log,
	}

	loadCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	pool, err := sim.loadDataPool(loadCtx)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("load data pool")
	}
	sim.pool = pool
	log.Info().Int("patients", len(pool.Patients)).Int("slots", len(pool.Slots)).Msg("data pool loaded")

	if err := sim.Run(ctx); err != nil {
		log.Error().Err(err).Msg("simulation aborted")
	}
	sim.PrintReport()
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:   strings.TrimRight(getEnv("SIM_API_BASE_URL", "http://localhost:8080"), "/"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.4),
		CancelRatio:  getFloat("SIM_CANCEL_RATIO", 0.1),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.5),
		Patients:     getInt("SIM_PATIENTS", 200),
		Days:         getInt("SIM_DAYS", 7),
		SlotMinutes:  getInt("SIM_SLOT_MINUTES", 30),
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Days <= 0 || cfg.Days > 31 {
		return fmt.Errorf("SIM_DAYS must be between 1 and 31")
	}
	if cfg.Patients <= 0 {
		return fmt.Errorf("SIM_PATIENTS must be > 0")
	}
	return nil
}

// loadDataPool discovers doctors and their free slots through the API and
// invents a patient population with gofakeit.
func (s *Simulator) loadDataPool(ctx context.Context) (*DataPool, error) {
	var doctors api.DoctorsResponse
	if err := s.getJSON(ctx, "/doctors", &doctors); err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	if len(doctors.Doctors) == 0 {
		return nil, fmt.Errorf("no doctors in the directory")
	}

	var clock api.ClockResponse
	if err := s.getJSON(ctx, "/clock", &clock); err != nil {
		return nil, fmt.Errorf("read clinic clock: %w", err)
	}
	today, err := time.Parse("2006-01-02", clock.Date)
	if err != nil {
		return nil, fmt.Errorf("parse clinic date %q: %w", clock.Date, err)
	}
	last := today.AddDate(0, 0, s.config.Days-1)

	dp := &DataPool{}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, doc := range doctors.Doctors {
		g.Go(func() error {
			q := url.Values{}
			q.Set("date", today.Format("2006-01-02"))
			q.Set("end_date", last.Format("2006-01-02"))
			q.Set("slot_minutes", strconv.Itoa(s.config.SlotMinutes))

			var days api.AvailabilityRangeResponse
			if err := s.getJSON(gctx, "/doctors/"+url.PathEscape(doc.ID)+"/availability?"+q.Encode(), &days); err != nil {
				s.log.Warn().Err(err).Str("doctor_id", doc.ID).Msg("availability failed, doctor skipped")
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			for _, day := range days.Days {
				for _, sl := range day.Slots {
					dp.Slots = append(dp.Slots, Slot{DoctorID: doc.ID, Start: sl.Start, End: sl.End})
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(dp.Slots) == 0 {
		return nil, fmt.Errorf("no free slots in the next %d days", s.config.Days)
	}

	faker := gofakeit.New(uint64(time.Now().UnixNano()))
	for i := 0; i < s.config.Patients; i++ {
		dp.Patients = append(dp.Patients, api.PatientRequest{
			Name:  faker.Name(),
			Email: strings.ToLower(faker.Email()),
			Phone: faker.Phone(),
			Age:   faker.Number(1, 90),
			Sex:   faker.RandomString([]string{"M", "F"}),
		})
	}
	return dp, nil
}

func (s *Simulator) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.Duration)
	defer cancel()

	s.log.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.config.Workers; i++ {
		g.Go(func() error {
			s.worker(gctx, i)
			return nil
		})
	}
	err := g.Wait()
	s.log.Info().Msg("simulation complete")
	return err
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.CancelRatio:
				s.doCancel(ctx, rng)
			case rng.Intn(2) == 0:
				s.doAvailability(ctx, rng)
			default:
				s.doList(ctx, rng)
			}
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	slot := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	req := api.BookAppointmentRequest{
		DoctorID:  slot.DoctorID,
		Start:     slot.Start.Format(time.RFC3339),
		End:       slot.End.Format(time.RFC3339),
		Patient:   patient,
		VisitMode: "inperson",
		Condition: "load test",
	}

	start := time.Now()
	status, body, err := s.post(ctx, "/appointments", req)
	latency := time.Since(start)
	if ctx.Err() != nil {
		return
	}

	success := err == nil && (status == http.StatusCreated || status == http.StatusOK)
	if success {
		var b api.BookingResponse
		if json.Unmarshal(body, &b) == nil && b.EventID != "" && !b.Replayed {
			s.pool.AddBooking(booked{DoctorID: b.DoctorID, EventID: b.EventID, Email: patient.Email})
		}
	}
	s.metrics.Booking.Record(latency, success, status == http.StatusConflict)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.TakeBooking(rng)
	if !ok {
		return
	}

	start := time.Now()
	status, _, err := s.post(ctx, "/appointments/"+url.PathEscape(b.EventID)+"/cancel", api.CancelAppointmentRequest{
		DoctorID:     b.DoctorID,
		PatientEmail: b.Email,
	})
	latency := time.Since(start)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Cancel.Record(latency, err == nil && status == http.StatusOK, status == http.StatusNotFound)
}

func (s *Simulator) doAvailability(ctx context.Context, rng *rand.Rand) {
	slot := s.pool.Slots[rng.Intn(len(s.pool.Slots))]

	start := time.Now()
	var av api.AvailabilityResponse
	err := s.getJSON(ctx, fmt.Sprintf("/doctors/%s/availability?date=%s&slot_minutes=%d",
		url.PathEscape(slot.DoctorID), slot.Start.Format("2006-01-02"), s.config.SlotMinutes), &av)
	latency := time.Since(start)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Availability.Record(latency, err == nil, false)
}

func (s *Simulator) doList(ctx context.Context, rng *rand.Rand) {
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()
	var list api.AppointmentListResponse
	err := s.getJSON(ctx, "/appointments?patient_email="+url.QueryEscape(patient.Email), &list)
	latency := time.Since(start)
	if ctx.Err() != nil {
		return
	}
	s.metrics.List.Record(latency, err == nil, false)
}

func (s *Simulator) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.APIBaseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e api.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("GET %s: %d %s: %s", path, resp.StatusCode, e.Error, e.Details)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (s *Simulator) post(ctx context.Context, path string, payload any) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, buf.Bytes(), nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Availability", &s.metrics.Availability)
	printOperationReport("List by patient", &s.metrics.List)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95, p99 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s p99=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond), p99.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
