package lightmeter

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	"github.com/ztkent/lightmeter/internal/tools"
)

// Reference light levels drawn on the results graph, in lux
var lightLevels = []struct {
	lux   int
	title string
	color string
}{
	{500, "Shade", "DarkGrey"},
	{1000, "Partial Shade", "WhiteSmoke"},
	{10000, "Partial Sun", "SkyBlue"},
	{25000, "Full Sun", "Yellow"},
}

// Average lux above which a minute counts as full sunlight
const fullSunLux = 10000

// Serve the sqlite db for download
func (m *LMeter) ServeResultsDB() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filepath.Base(m.DBPath)))
		w.Header().Set("Content-Type", "application/octet-stream")
		http.ServeFile(w, r, m.DBPath)
	}
}

// Serve the homepage
func (m *LMeter) ServeDashboard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fileContent, err := templateFiles.ReadFile("html/dashboard.html")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		w.Write(fileContent)
	}
}

// Serve the controls for the sensor, start/stop/measure/export/current-conditions
func (m *LMeter) ServeControls() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tmpl, err := parseTemplateFile("html/controls.gohtml")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if err := tmpl.Execute(w, nil); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

type Status struct {
	Connected       bool   `json:"connected"`
	Enabled         bool   `json:"enabled"`
	Recording       bool   `json:"recording"`
	IntegrationTime string `json:"integration_time"`
}

func (m *LMeter) status() Status {
	status := Status{Recording: m.Recording()}
	if m.Sensor == nil {
		return status
	}
	m.sensorMu.Lock()
	defer m.sensorMu.Unlock()
	status.Connected = true
	status.Enabled = m.Sensor.Sensor().Enabled()
	status.IntegrationTime = m.Sensor.IntegrationTime().String()
	return status
}

// Status of the sensor, as JSON on the API or as html for the dashboard
func (m *LMeter) ServeSensorStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := m.status()
		if isAPIRequest(r) {
			ServeJSON(w, http.StatusOK, status)
			return
		}
		tmpl, err := parseTemplateFile("html/status.gohtml")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if err := tmpl.Execute(w, status); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// Serve the results graph
func (m *LMeter) ServeResultsGraph() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startDate, endDate := tools.ParseStartAndEndDate(r, m.Location, time.Now())

		rows, err := m.ResultsDB.Query("SELECT lux, red, green, blue, white, created_at FROM readings WHERE created_at BETWEEN ? AND ? ORDER BY created_at", startDate, endDate)
		if err != nil {
			m.Log.WithError(err).Error("Failed to query readings")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer rows.Close()

		var luxValues, redValues, blueValues, whiteValues []opts.LineData
		var timeValues []string
		var maxLux int
		for rows.Next() {
			var lux, red, green, blue, white float64
			var createdAt time.Time
			if err := rows.Scan(&lux, &red, &green, &blue, &white, &createdAt); err != nil {
				m.Log.WithError(err).Error("Failed to scan reading")
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			if lux > float64(maxLux) {
				// Round up to the nearest 5000
				maxLux = int(math.Ceil(lux/5000) * 5000)
			}
			luxValues = append(luxValues, opts.LineData{Value: lux})
			redValues = append(redValues, opts.LineData{Value: red})
			blueValues = append(blueValues, opts.LineData{Value: blue})
			whiteValues = append(whiteValues, opts.LineData{Value: white})
			timeValues = append(timeValues, createdAt.In(m.Location).Format(tools.LayoutDB))
		}
		if err := rows.Err(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		line := charts.NewLine()
		for _, level := range lightLevels {
			data := make([]opts.LineData, len(timeValues))
			for i := range data {
				data[i] = opts.LineData{Value: level.lux}
			}
			line.AddSeries(level.title, data, charts.WithLineChartOpts(opts.LineChart{
				Color: level.color,
			}))
		}

		line.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{
				Theme: types.ThemeChalk,
			}),
			charts.WithXAxisOpts(opts.XAxis{
				Name: "Time",
			}),
			charts.WithYAxisOpts(opts.YAxis{
				Name: "Lux",
				Min:  "0",
				Max:  fmt.Sprintf("%d", maxLux),
			}),
			charts.WithTooltipOpts(opts.Tooltip{
				Show:      true,
				Trigger:   "axis",
				TriggerOn: "mousemove",
			}),
			charts.WithToolboxOpts(opts.Toolbox{
				Show: true,
				Feature: &opts.ToolBoxFeature{
					SaveAsImage: &opts.ToolBoxFeatureSaveAsImage{
						Show:  true,
						Title: "Save as Image",
						Name:  "lightmeter",
					},
				},
			}),
		)
		line.SetXAxis(timeValues).
			AddSeries("Lux", luxValues, charts.WithLineChartOpts(opts.LineChart{Color: "LimeGreen"})).
			AddSeries("Red", redValues, charts.WithLineChartOpts(opts.LineChart{Color: "Tomato"})).
			AddSeries("Blue", blueValues, charts.WithLineChartOpts(opts.LineChart{Color: "RoyalBlue"})).
			AddSeries("White", whiteValues, charts.WithLineChartOpts(opts.LineChart{Color: "GhostWhite"}))

		page := components.NewPage()
		page.AddCharts(line)

		w.Header().Set("Content-Type", "text/html")
		page.Render(w)
		// Trigger an update for the results tab
		w.Write([]byte(`<div id='resultUpdateTrigger' hx-post='/lightmeter/results' hx-target='#resultsContent' hx-trigger='load'></div>`))
		w.Write([]byte(`<script>document.title = "Light Meter";</script>`))
	}
}

// Update the info in the results tab
func (m *LMeter) ServeResultsTab() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conditions, err := m.getCurrentConditions()
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		startDate, endDate := tools.ParseStartAndEndDate(r, m.Location, time.Now())
		conditions, err = m.getHistoricalConditions(conditions, startDate, endDate)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		tmpl, err := parseTemplateFile("html/results.gohtml")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		type ConditionsForDisplay struct {
			JobID                 string
			Lux                   string
			Red                   string
			Green                 string
			Blue                  string
			White                 string
			IntegrationTime       string
			DateRange             string
			RecordedHoursInRange  string
			FullSunlightInRange   string
			LightConditionInRange string
			AverageLuxInRange     string
			StartDate             string
			EndDate               string
		}
		err = tmpl.Execute(w, ConditionsForDisplay{
			JobID:                 conditions.JobID,
			Lux:                   fmt.Sprintf("%.4f", conditions.Lux),
			Red:                   fmt.Sprintf("%.4f", conditions.Red),
			Green:                 fmt.Sprintf("%.4f", conditions.Green),
			Blue:                  fmt.Sprintf("%.4f", conditions.Blue),
			White:                 fmt.Sprintf("%.4f", conditions.White),
			IntegrationTime:       fmt.Sprintf("%dms", conditions.IntegrationTimeMs),
			DateRange:             conditions.DateRange,
			RecordedHoursInRange:  fmt.Sprintf("%.4f", conditions.RecordedHoursInRange),
			FullSunlightInRange:   fmt.Sprintf("%.4f", conditions.FullSunlightInRange),
			LightConditionInRange: conditions.LightConditionInRange,
			AverageLuxInRange:     fmt.Sprintf("%.4f", conditions.AverageLuxInRange),
			StartDate:             startDate,
			EndDate:               endDate,
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// Summarize the readings recorded between startDate and endDate
func (m *LMeter) getHistoricalConditions(conditions Conditions, startDate string, endDate string) (Conditions, error) {
	if m.ResultsDB == nil {
		return conditions, nil
	}
	conditions.DateRange = fmt.Sprintf("%s - %s UTC", startDate, endDate)

	row := m.ResultsDB.QueryRow(`
    SELECT
        COALESCE(AVG(lux), 0),
        MIN(created_at),
        MAX(created_at)
    FROM readings
    WHERE created_at BETWEEN ? AND ?`, startDate, endDate)
	var oldest, mostRecent sql.NullString
	if err := row.Scan(&conditions.AverageLuxInRange, &oldest, &mostRecent); err != nil {
		return conditions, err
	}
	if !oldest.Valid || !mostRecent.Valid {
		conditions.LightConditionInRange = "No Data in Range"
		return conditions, nil
	}

	// Count the minutes where the average lux was full sunlight
	var fullSunMinutes int
	err := m.ResultsDB.QueryRow(`
    SELECT COUNT(*)
    FROM (
        SELECT AVG(lux) as avg_lux
        FROM readings
        WHERE created_at BETWEEN ? AND ?
        GROUP BY strftime('%Y-%m-%d %H:%M', created_at)
    )
    WHERE avg_lux > ?`, startDate, endDate, fullSunLux).Scan(&fullSunMinutes)
	if err != nil {
		return conditions, err
	}
	conditions.FullSunlightInRange = float64(fullSunMinutes) / 60

	first, last, err := tools.StartAndEndDateToTime(oldest.String, mostRecent.String)
	if err != nil {
		return conditions, err
	}
	conditions.RecordedHoursInRange = last.Sub(first).Hours()
	conditions.LightConditionInRange = classifyLightCondition(conditions.FullSunlightInRange, conditions.RecordedHoursInRange)
	return conditions, nil
}

// classifyLightCondition rates a period by the share of it spent in full sun.
func classifyLightCondition(fullSunHours, recordedHours float64) string {
	if recordedHours <= 0 {
		return "Not Enough Data"
	}
	share := fullSunHours / recordedHours
	switch {
	case share > 0.5:
		return "Full Sun"
	case share > 0.25:
		return "Partial Sun"
	case share > 0.1:
		return "Partial Shade"
	default:
		return "Shade"
	}
}

// Used to clear a div with htmx
func (m *LMeter) Clear() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
	}
}
