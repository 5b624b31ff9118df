package chat

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestStatusAdvance(t *testing.T) {
	tests := []struct {
		from, to, want Status
	}{
		{StatusSending, StatusSent, StatusSent},
		{StatusSent, StatusDelivered, StatusDelivered},
		{StatusDelivered, StatusSent, StatusDelivered},
		{StatusRead, StatusDelivered, StatusRead},
		{StatusSending, StatusFailed, StatusFailed},
		{StatusSent, StatusFailed, StatusSent},
		{StatusFailed, StatusSending, StatusSending},
		{StatusFailed, StatusRead, StatusRead},
	}
	for _, tt := range tests {
		if got := tt.from.Advance(tt.to); got != tt.want {
			t.Errorf("%s.Advance(%s) = %s, want %s", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestStatusFromRecord(t *testing.T) {
	r := Record{ID: "1"}
	if got := StatusFromRecord(r); got != StatusDelivered {
		t.Errorf("unread record status = %s, want delivered", got)
	}
	now := time.Now()
	r.ReadAt = &now
	if got := StatusFromRecord(r); got != StatusRead {
		t.Errorf("read record status = %s, want read", got)
	}
}

func TestRecordValidate(t *testing.T) {
	good := Record{ID: "m1", RideID: "r1", SenderID: "u1", Type: TypeText, Body: "hi", CreatedAt: time.Now()}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Record)
	}{
		{"empty id", func(r *Record) { r.ID = "" }},
		{"no ride", func(r *Record) { r.RideID = "" }},
		{"no sender", func(r *Record) { r.SenderID = "" }},
		{"bad type", func(r *Record) { r.Type = "image" }},
		{"zero time", func(r *Record) { r.CreatedAt = time.Time{} }},
		{"long body", func(r *Record) { r.Body = strings.Repeat("x", MaxBodyLen+1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := good
			tt.mutate(&r)
			err := r.Validate()
			if !errors.Is(err, ErrInvalidRecord) {
				t.Errorf("Validate() = %v, want ErrInvalidRecord", err)
			}
		})
	}
}

func TestFromRecordClassifiesOwn(t *testing.T) {
	r := Record{ID: "m1", RideID: "r1", SenderID: "u1", Type: TypeText, CreatedAt: time.Now()}
	if m := FromRecord(r, "u1"); !m.Own || m.ID != "m1" || m.ServerID != "m1" || m.LocalID != "" {
		t.Errorf("own record converted to %+v", m)
	}
	if m := FromRecord(r, "u2"); m.Own {
		t.Error("counterparty record classified as own")
	}
}

func TestNewLocalIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for range 1000 {
		id := NewLocalID()
		if !IsLocalID(id) {
			t.Fatalf("NewLocalID() = %q, not recognised as local", id)
		}
		if seen[id] {
			t.Fatalf("duplicate local id %q", id)
		}
		seen[id] = true
	}
	if IsLocalID("42") {
		t.Error("server id recognised as local")
	}
}

func TestErrorClassification(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(ErrWrite, "append", "ride-1", cause)

	if !errors.Is(err, ErrWrite) {
		t.Error("wrapped error does not match its kind")
	}
	if !errors.Is(err, cause) {
		t.Error("wrapped error does not match its cause")
	}
	if IsAuth(err) {
		t.Error("write error reported as auth")
	}
	if !strings.Contains(err.Error(), "ride-1") {
		t.Errorf("error text %q missing ride id", err.Error())
	}

	auth := Wrap(ErrAuth, "append", "ride-1", cause)
	if again := Wrap(ErrWrite, "send", "ride-1", auth); !IsAuth(again) {
		t.Error("rewrapping masked the auth kind")
	}

	if Wrap(ErrRead, "history", "", nil) != nil {
		t.Error("Wrap(nil) should be nil")
	}
}
