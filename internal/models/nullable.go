package models

import (
	"bytes"
	"encoding/json"
	"time"
)

var jsonNull = []byte("null")

// NullableTime distinguishes a missing JSON key (Set=false) from an explicit
// null (Set=true, Valid=false).
type NullableTime struct {
	Set   bool
	Valid bool
	Time  time.Time
}

func (n *NullableTime) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(data), jsonNull) {
		n.Valid = false
		return nil
	}
	if err := json.Unmarshal(data, &n.Time); err != nil {
		return err
	}
	n.Valid = true
	return nil
}

func (n NullableTime) Ptr() *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}

// NullableString is the string counterpart of NullableTime.
type NullableString struct {
	Set   bool
	Valid bool
	Value string
}

func (n *NullableString) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(data), jsonNull) {
		n.Valid = false
		return nil
	}
	if err := json.Unmarshal(data, &n.Value); err != nil {
		return err
	}
	n.Valid = true
	return nil
}

func (n NullableString) Ptr() *string {
	if !n.Valid {
		return nil
	}
	s := n.Value
	return &s
}
