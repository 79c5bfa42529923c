// Package history keeps a vehicle's charging sessions: a durable per-VIN
// cache, a reconciler that fills it from the paginated session source, and
// the calendar filter applied on top.
package history

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Session is one completed, failed or cancelled charging order. Times are
// epoch-ms; zero means absent.
type Session struct {
	ID                     string  `json:"id" cbor:"id,omitempty"`
	VehicleID              string  `json:"vehicleId" cbor:"vehicleId,omitempty"`
	PluggedTime            int64   `json:"pluggedTime" cbor:"pluggedTime,omitempty"`
	StartChargeTime        int64   `json:"startChargeTime" cbor:"startChargeTime,omitempty"`
	EndChargeTime          int64   `json:"endChargeTime" cbor:"endChargeTime,omitempty"`
	UnpluggedTime          int64   `json:"unpluggedTime" cbor:"unpluggedTime,omitempty"`
	CreatedDate            int64   `json:"createdDate" cbor:"createdDate,omitempty"`
	ChargingStationName    string  `json:"chargingStationName" cbor:"chargingStationName,omitempty"`
	ChargingStationAddress string  `json:"chargingStationAddress" cbor:"chargingStationAddress,omitempty"`
	Province               string  `json:"province" cbor:"province,omitempty"`
	District               string  `json:"district" cbor:"district,omitempty"`
	TotalKWCharged         string  `json:"totalKWCharged" cbor:"totalKWCharged,omitempty"`
	Amount                 float64 `json:"amount" cbor:"amount,omitempty"`
	FinalAmount            float64 `json:"finalAmount" cbor:"finalAmount,omitempty"`
	Discount               float64 `json:"discount" cbor:"discount,omitempty"`
	OrderStatus            int     `json:"orderStatus" cbor:"orderStatus,omitempty"`
	Status                 string  `json:"status" cbor:"status,omitempty"`
}

// SessionTime is the best available start of the session in epoch-ms.
func (s Session) SessionTime() int64 {
	switch {
	case s.StartChargeTime != 0:
		return s.StartChargeTime
	case s.PluggedTime != 0:
		return s.PluggedTime
	}
	return s.CreatedDate
}

// Energy parses TotalKWCharged, returning 0 when it is not a number.
func (s Session) Energy() float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s.TotalKWCharged), 64)
	if err != nil {
		return 0
	}
	return f
}

// Duration is the time spent charging, or 0 when either end is missing.
func (s Session) Duration() time.Duration {
	if s.StartChargeTime == 0 || s.EndChargeTime <= s.StartChargeTime {
		return 0
	}
	return time.Duration(s.EndChargeTime-s.StartChargeTime) * time.Millisecond
}

// DedupKey identifies a session across pages: its id when present, else a
// composite of start time, station and creation time.
func (s Session) DedupKey() string {
	if s.ID != "" {
		return "id:" + s.ID
	}
	start := s.PluggedTime
	if start == 0 {
		start = s.StartChargeTime
	}
	if start == 0 {
		start = s.CreatedDate
	}
	return "noid:" + strconv.FormatInt(start, 10) + ":" + s.ChargingStationName + ":" + strconv.FormatInt(s.CreatedDate, 10)
}

// RevalidateKey is the cheaper key used to spot new sessions on the
// newest page.
func (s Session) RevalidateKey() string {
	if s.ID != "" {
		return s.ID
	}
	return strconv.FormatInt(s.SessionTime(), 10)
}

// Merge concatenates lists, keeps one session per DedupKey (the last one
// seen) and sorts newest first. Sessions with equal times keep their
// first-seen order.
func Merge(lists ...[]Session) []Session {
	index := make(map[string]int)
	var out []Session
	for _, list := range lists {
		for _, s := range list {
			key := s.DedupKey()
			if i, ok := index[key]; ok {
				out[i] = s
				continue
			}
			index[key] = len(out)
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SessionTime() > out[j].SessionTime()
	})
	return out
}

// The session source is loose with types: ids arrive as strings or
// numbers, times as numbers, numeric strings or null.
type sessionWire struct {
	ID                     flexString `json:"id"`
	VehicleID              flexString `json:"vehicleId"`
	PluggedTime            flexInt    `json:"pluggedTime"`
	StartChargeTime        flexInt    `json:"startChargeTime"`
	EndChargeTime          flexInt    `json:"endChargeTime"`
	UnpluggedTime          flexInt    `json:"unpluggedTime"`
	CreatedDate            flexInt    `json:"createdDate"`
	ChargingStationName    flexString `json:"chargingStationName"`
	ChargingStationAddress flexString `json:"chargingStationAddress"`
	Province               flexString `json:"province"`
	District               flexString `json:"district"`
	TotalKWCharged         flexString `json:"totalKWCharged"`
	Amount                 flexFloat  `json:"amount"`
	FinalAmount            flexFloat  `json:"finalAmount"`
	Discount               flexFloat  `json:"discount"`
	OrderStatus            flexInt    `json:"orderStatus"`
	Status                 flexString `json:"status"`
}

func (s *Session) UnmarshalJSON(data []byte) error {
	var w sessionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = Session{
		ID:                     string(w.ID),
		VehicleID:              string(w.VehicleID),
		PluggedTime:            int64(w.PluggedTime),
		StartChargeTime:        int64(w.StartChargeTime),
		EndChargeTime:          int64(w.EndChargeTime),
		UnpluggedTime:          int64(w.UnpluggedTime),
		CreatedDate:            int64(w.CreatedDate),
		ChargingStationName:    string(w.ChargingStationName),
		ChargingStationAddress: string(w.ChargingStationAddress),
		Province:               string(w.Province),
		District:               string(w.District),
		TotalKWCharged:         string(w.TotalKWCharged),
		Amount:                 float64(w.Amount),
		FinalAmount:            float64(w.FinalAmount),
		Discount:               float64(w.Discount),
		OrderStatus:            int(w.OrderStatus),
		Status:                 string(w.Status),
	}
	return nil
}

type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	// numbers and booleans keep their literal form
	*f = flexString(data)
	return nil
}

type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	v, err := flexNumber(data)
	*f = flexInt(v)
	return err
}

type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var n json.Number
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		n = json.Number(strings.TrimSpace(s))
	} else {
		n = json.Number(data)
	}
	v, err := n.Float64()
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexFloat(v)
	return nil
}

// flexNumber truncates a JSON number or numeric string; anything else is 0.
func flexNumber(data []byte) (int64, error) {
	var f flexFloat
	if err := f.UnmarshalJSON(data); err != nil {
		return 0, err
	}
	return int64(f), nil
}
