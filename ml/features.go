package ml

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	ColArrival     = "Arrivée"
	ColDeparture   = "Départ"
	ColServiceType = "Type_Service"
	ColDayOfWeek   = "Jour_Semaine"
	ColHour        = "Heure"
	ColDuration    = "Durée"
	ColPredicted   = "Predicted_Durée"

	// Placeholder replaces empty categorical values before encoding.
	Placeholder = "Unknown"
)

var (
	TimeColumns        = []string{ColArrival, ColDeparture}
	CategoricalColumns = []string{ColServiceType, ColDayOfWeek, ColHour}

	ErrMalformedTime = errors.New("malformed time")
)

// Sample holds the scheduling attributes of one record, unparsed.
type Sample struct {
	ArrivalTime   string
	DepartureTime string
	ServiceType   string
	DayOfWeek     string
	Hour          string
}

// Categories returns the categorical values in CategoricalColumns order,
// with empty values replaced by Placeholder.
func (s Sample) Categories() []string {
	return []string{
		FillPlaceholder(s.ServiceType),
		FillPlaceholder(s.DayOfWeek),
		FillPlaceholder(s.Hour),
	}
}

// FillPlaceholder returns Placeholder for empty or blank values.
func FillPlaceholder(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return Placeholder
	}
	return value
}

// TimeToMinutes converts "H:M" into minutes since midnight.
func TimeToMinutes(value string) (int, error) {
	trimmed := strings.TrimSpace(value)
	hourPart, minutePart, ok := strings.Cut(trimmed, ":")
	if !ok {
		return 0, errors.Wrapf(ErrMalformedTime, "%q", value)
	}
	hours, err := parseClockField(hourPart, 23)
	if err != nil {
		return 0, errors.Wrapf(ErrMalformedTime, "%q: hour %v", value, err)
	}
	minutes, err := parseClockField(minutePart, 59)
	if err != nil {
		return 0, errors.Wrapf(ErrMalformedTime, "%q: minute %v", value, err)
	}
	return hours*60 + minutes, nil
}

func parseClockField(field string, max int) (int, error) {
	if len(field) == 0 || len(field) > 2 {
		return 0, errors.Errorf("expected 1 or 2 digits, got %q", field)
	}
	for _, r := range field {
		if r < '0' || r > '9' {
			return 0, errors.Errorf("non-digit in %q", field)
		}
	}
	n, err := strconv.Atoi(field)
	if err != nil {
		return 0, err
	}
	if n > max {
		return 0, errors.Errorf("%d exceeds %d", n, max)
	}
	return n, nil
}
