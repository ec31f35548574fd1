package tools

import (
	"net"
	"net/http"
	"time"
)

const (
	layoutInput = "2006-01-02T15:04"
	LayoutDB    = "2006-01-02 15:04:05"
)

var privateBlocks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"fc00::/7",
)

// Prevent out-of-network requests to dashboard endpoints
func CheckInNetwork(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}
		parsedIP := net.ParseIP(ip)
		if parsedIP == nil {
			http.Error(w, "Invalid IP address", http.StatusBadRequest)
			return
		}
		if !isLocalAddress(parsedIP) {
			http.Error(w, "Access denied", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func isLocalAddress(ip net.IP) bool {
	if ip.IsLoopback() {
		return true
	}
	for _, cidr := range privateBlocks {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

func mustParseCIDRs(blocks ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(blocks))
	for _, block := range blocks {
		_, cidr, err := net.ParseCIDR(block)
		if err != nil {
			panic(err)
		}
		nets = append(nets, cidr)
	}
	return nets
}

// ParseStartAndEndDate reads the start and end dates of the request, given in
// loc, and formats them in UTC for comparison with the DB. Without a complete
// range it covers the last 8 hours.
func ParseStartAndEndDate(r *http.Request, loc *time.Location, now time.Time) (string, string) {
	r.ParseForm()
	startDate := r.FormValue("start")
	endDate := r.FormValue("end")
	if startDate == "" || endDate == "" {
		return now.UTC().Add(-8 * time.Hour).Format(LayoutDB), now.UTC().Format(LayoutDB)
	}
	if loc == nil {
		loc = time.UTC
	}
	return toDBTime(startDate, loc, now.UTC().Add(-8*time.Hour)), toDBTime(endDate, loc, now.UTC())
}

func toDBTime(value string, loc *time.Location, fallback time.Time) string {
	t, err := time.ParseInLocation(layoutInput, value, loc)
	if err != nil {
		return fallback.Format(LayoutDB)
	}
	return t.UTC().Format(LayoutDB)
}

func StartAndEndDateToTime(startDate string, endDate string) (time.Time, time.Time, error) {
	start, err := time.Parse(LayoutDB, startDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := time.Parse(LayoutDB, endDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}
