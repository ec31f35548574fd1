package lightmeter

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/ztkent/lightmeter/veml6040"
)

//go:embed html/*
var templateFiles embed.FS

// LMeter serves the light meter: it owns the auto-exposure controller, runs
// recording jobs and records their results.
type LMeter struct {
	Sensor         *veml6040.AutoVEML6040 // nil when no sensor is connected
	LuxResultsChan chan LuxResults
	ResultsDB      *sql.DB
	Publishers     []Publisher
	Log            *logrus.Logger
	Location       *time.Location
	RecordInterval time.Duration
	MaxJobDuration time.Duration
	DBPath         string

	sensorMu sync.Mutex // the controller is not safe for concurrent use

	jobMu  sync.Mutex
	cancel context.CancelFunc
	jobID  string
	done   chan struct{}
}

// Publisher forwards recorded readings to an external system.
type Publisher interface {
	Publish(ctx context.Context, result LuxResults) error
	Close() error
}

type LuxResults struct {
	JobID             string    `json:"job_id"`
	Lux               float64   `json:"lux"`
	Red               float64   `json:"red"`
	Green             float64   `json:"green"`
	Blue              float64   `json:"blue"`
	White             float64   `json:"white"`
	IntegrationTimeMs int       `json:"integration_time_ms"`
	Time              time.Time `json:"time"`
	Err               error     `json:"-"`
}

type Conditions struct {
	JobID                 string  `json:"jobID"`
	Lux                   float64 `json:"lux"`
	Red                   float64 `json:"red"`
	Green                 float64 `json:"green"`
	Blue                  float64 `json:"blue"`
	White                 float64 `json:"white"`
	IntegrationTimeMs     int     `json:"integrationTimeMs"`
	DateRange             string  `json:"dateRange"`
	RecordedHoursInRange  float64 `json:"recordedHoursInRange"`
	FullSunlightInRange   float64 `json:"fullSunlightInRange"`
	LightConditionInRange string  `json:"lightConditionInRange"`
	AverageLuxInRange     float64 `json:"averageLuxInRange"`
}

type MeasurementResponse struct {
	Lux                   float64 `json:"lux"`
	Red                   float64 `json:"red"`
	Green                 float64 `json:"green"`
	Blue                  float64 `json:"blue"`
	White                 float64 `json:"white"`
	IntegrationTimeMs     int     `json:"integration_time_ms"`
	NextIntegrationTimeMs int     `json:"next_integration_time_ms"`
}

const (
	MAX_JOB_DURATION = 8 * time.Hour
	RECORD_INTERVAL  = 30 * time.Second
	DB_PATH          = "lightmeter.db"
)

func New(sensor *veml6040.AutoVEML6040, db *sql.DB, l *logrus.Logger) *LMeter {
	return &LMeter{
		Sensor:         sensor,
		LuxResultsChan: make(chan LuxResults),
		ResultsDB:      db,
		Log:            l,
		Location:       time.UTC,
		RecordInterval: RECORD_INTERVAL,
		MaxJobDuration: MAX_JOB_DURATION,
		DBPath:         DB_PATH,
	}
}

// Recording reports whether a recording job is running.
func (m *LMeter) Recording() bool {
	m.jobMu.Lock()
	defer m.jobMu.Unlock()
	return m.cancel != nil
}

// Start the recording job, reading the sensor on every record interval
func (m *LMeter) Start() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.Sensor == nil {
			ServeResponse(w, r, "The sensor is not connected", http.StatusBadRequest)
			return
		}
		jobID, err := m.startJob()
		if err != nil {
			ServeResponse(w, r, err.Error(), http.StatusBadRequest)
			return
		}
		m.Log.WithField("job_id", jobID).Info("It's going to be a bright day!")
		ServeResponse(w, r, "Light Reading Started", http.StatusOK)
	}
}

// Stop the recording job
func (m *LMeter) Stop() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.Sensor == nil {
			ServeResponse(w, r, "The sensor is not connected", http.StatusBadRequest)
			return
		}
		if !m.stopJob() {
			ServeResponse(w, r, "The sensor is already stopped", http.StatusBadRequest)
			return
		}
		ServeResponse(w, r, "Light Reading Stopped", http.StatusOK)
	}
}

func (m *LMeter) startJob() (string, error) {
	m.jobMu.Lock()
	defer m.jobMu.Unlock()
	if m.cancel != nil {
		return "", errors.New("The sensor is already started")
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.MaxJobDuration)
	jobID := uuid.New().String()
	done := make(chan struct{})
	m.cancel, m.jobID, m.done = cancel, jobID, done

	go func() {
		defer close(done)
		defer m.clearJob(jobID)
		m.runJob(ctx, jobID)
	}()
	return jobID, nil
}

// stopJob cancels the running job and waits for it to exit.
func (m *LMeter) stopJob() bool {
	m.jobMu.Lock()
	cancel, done := m.cancel, m.done
	m.jobMu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	<-done
	return true
}

func (m *LMeter) clearJob(jobID string) {
	m.jobMu.Lock()
	defer m.jobMu.Unlock()
	if m.jobID == jobID {
		m.cancel()
		m.cancel, m.jobID, m.done = nil, "", nil
	}
}

func (m *LMeter) runJob(ctx context.Context, jobID string) {
	ticker := time.NewTicker(m.RecordInterval)
	defer ticker.Stop()
	for {
		result := m.readResult(jobID)
		select {
		case m.LuxResultsChan <- result:
		case <-ctx.Done():
			m.Log.WithField("job_id", jobID).Info("Job Cancelled, stopping sensor")
			return
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			m.Log.WithField("job_id", jobID).Info("Job Cancelled, stopping sensor")
			return
		}
	}
}

// readResult takes one auto-exposed measurement for a recording job.
func (m *LMeter) readResult(jobID string) LuxResults {
	m.sensorMu.Lock()
	measurement, err := m.Sensor.ReadAbsoluteRetry()
	acquiredWith := measurement.IntegrationTime
	if err != nil {
		// an absolute failure leaves the setting it was taken with in place
		acquiredWith = m.Sensor.IntegrationTime()
	}
	m.sensorMu.Unlock()

	return LuxResults{
		JobID:             jobID,
		Lux:               measurement.Lux(),
		Red:               measurement.Red,
		Green:             measurement.Green,
		Blue:              measurement.Blue,
		White:             measurement.White,
		IntegrationTimeMs: acquiredWith.Millis(),
		Time:              time.Now().UTC(),
		Err:               err,
	}
}

// Measure takes a single measurement. By default it retries until the
// integration time settles; with once=true a single exposure is attempted.
func (m *LMeter) Measure() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.Sensor == nil {
			ServeResponse(w, r, "The sensor is not connected", http.StatusBadRequest)
			return
		}
		once, _ := strconv.ParseBool(r.URL.Query().Get("once"))

		m.sensorMu.Lock()
		var measurement veml6040.AbsoluteMeasurement
		var err error
		if once {
			measurement, err = m.Sensor.ReadAbsoluteOnce()
		} else {
			measurement, err = m.Sensor.ReadAbsoluteRetry()
		}
		next := m.Sensor.IntegrationTime()
		m.sensorMu.Unlock()

		if err != nil {
			m.Log.WithError(err).WithField("integration_time", next.String()).Warn("Measurement failed")
			if isAPIRequest(r) {
				// a relative failure has already moved the integration time, so asking again may succeed
				ServeJSON(w, measurementErrorStatus(err), map[string]any{
					"message": err.Error(),
					"retry":   veml6040.IsRelative(err),
				})
				return
			}
			ServeResponse(w, r, err.Error(), measurementErrorStatus(err))
			return
		}

		ServeJSON(w, http.StatusOK, MeasurementResponse{
			Lux:                   measurement.Lux(),
			Red:                   measurement.Red,
			Green:                 measurement.Green,
			Blue:                  measurement.Blue,
			White:                 measurement.White,
			IntegrationTimeMs:     measurement.IntegrationTime.Millis(),
			NextIntegrationTimeMs: next.Millis(),
		})
	}
}

func measurementErrorStatus(err error) int {
	switch {
	case veml6040.IsRelative(err):
		return http.StatusServiceUnavailable
	case veml6040.IsAbsolute(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Serve data about the most recent entry saved to the db
func (m *LMeter) CurrentConditions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conditions, err := m.getCurrentConditions()
		if errors.Is(err, sql.ErrNoRows) {
			ServeResponse(w, r, "No readings recorded yet", http.StatusNotFound)
			return
		} else if err != nil {
			m.Log.WithError(err).Error("Failed to get current conditions")
			ServeResponse(w, r, err.Error(), http.StatusInternalServerError)
			return
		}
		ServeJSON(w, http.StatusOK, conditions)
	}
}

// Return the most recent entry saved to the db
func (m *LMeter) getCurrentConditions() (Conditions, error) {
	conditions := Conditions{}
	row := m.ResultsDB.QueryRow("SELECT job_id, lux, red, green, blue, white, integration_time_ms FROM readings ORDER BY id DESC LIMIT 1")
	err := row.Scan(&conditions.JobID, &conditions.Lux, &conditions.Red, &conditions.Green, &conditions.Blue, &conditions.White, &conditions.IntegrationTimeMs)
	if err != nil {
		return Conditions{}, err
	}
	return conditions, nil
}

// Populate the response div with a message, or reply with a JSON message
func ServeResponse(w http.ResponseWriter, r *http.Request, message string, status int) {
	if isAPIRequest(r) {
		ServeJSON(w, status, map[string]string{"message": message})
		return
	}

	tmpl, err := parseTemplateFile("html/response.gohtml")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	if err := tmpl.Execute(w, message); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func isAPIRequest(r *http.Request) bool {
	return strings.Contains(r.URL.Path, "/api/v1/")
}

func ServeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func parseTemplateFile(path string) (*template.Template, error) {
	content, err := templateFiles.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded template: %w", err)
	}

	tmpl, err := template.New(path).Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	return tmpl, nil
}

// Read from LuxResultsChan, record the results in sqlite and forward them to
// the publishers. Returns when ctx is done.
func (m *LMeter) MonitorAndRecordResults(ctx context.Context) {
	m.Log.Info("Monitoring for new light readings...")
	for {
		select {
		case <-ctx.Done():
			return
		case result := <-m.LuxResultsChan:
			m.recordResult(ctx, result)
		}
	}
}

func (m *LMeter) recordResult(ctx context.Context, result LuxResults) {
	entry := m.Log.WithFields(logrus.Fields{
		"job_id":           result.JobID,
		"integration_time": result.IntegrationTimeMs,
	})
	if result.Err != nil {
		entry.WithError(result.Err).Warn("The sensor failed to get a reading")
		if !veml6040.IsAbsolute(result.Err) {
			return
		}
		_, err := m.ResultsDB.ExecContext(ctx,
			"INSERT INTO exposure_failures (job_id, reason, integration_time_ms) VALUES (?, ?, ?)",
			result.JobID, result.Err.Error(), result.IntegrationTimeMs,
		)
		if err != nil {
			entry.WithError(err).Error("Failed to record exposure failure")
		}
		return
	}

	entry.WithField("lux", fmt.Sprintf("%.5f", result.Lux)).Info("Recorded light reading")
	_, err := m.ResultsDB.ExecContext(ctx,
		"INSERT INTO readings (job_id, lux, red, green, blue, white, integration_time_ms) VALUES (?, ?, ?, ?, ?, ?, ?)",
		result.JobID, result.Lux, result.Red, result.Green, result.Blue, result.White, result.IntegrationTimeMs,
	)
	if err != nil {
		entry.WithError(err).Error("Failed to record light reading")
	}

	for _, p := range m.Publishers {
		if err := p.Publish(ctx, result); err != nil {
			entry.WithError(err).Warn("Failed to publish light reading")
		}
	}
}

// Shutdown stops any running job, closes the publishers and disables the sensor.
func (m *LMeter) Shutdown() error {
	m.stopJob()
	var errs []error
	for _, p := range m.Publishers {
		errs = append(errs, p.Close())
	}
	if m.Sensor != nil {
		m.sensorMu.Lock()
		errs = append(errs, m.Sensor.Close())
		m.sensorMu.Unlock()
	}
	return errors.Join(errs...)
}
