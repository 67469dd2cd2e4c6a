package record

import (
	"encoding/json"
	"time"
)

// DateLayout is the layout of dates in the authorization history table.
const DateLayout = "2006-01-02"

// isoLayout matches the ISO-8601 date-time rendering used in the output files.
const isoLayout = "2006-01-02T15:04:05"

// Date is a calendar date taken from the authorization history.
type Date struct {
	time.Time
}

// ParseDate parses a YYYY-MM-DD value.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

// String renders the date as an ISO-8601 date-time, e.g. 2019-06-30T00:00:00.
func (d Date) String() string {
	return d.Format(isoLayout)
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts both the ISO date-time rendering and a bare date.
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	t, err := time.Parse(isoLayout, s)
	if err != nil {
		t, err = time.Parse(DateLayout, s)
		if err != nil {
			return err
		}
	}
	d.Time = t
	return nil
}
