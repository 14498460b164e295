// Package domain contains entities without transport logic, just meta-data
package domain

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

const (
	MaxAttendeeNameLen = 64
	MaxTitleLen        = 64

	// ModalitySeparator splits a base attendee id from its modality suffix.
	ModalitySeparator = "#"
	ModalityContent   = "content"
)

var (
	ErrNameTooLong  = errors.New("name too long")
	ErrNameEmpty    = errors.New("name empty")
	ErrTitleTooLong = errors.New("title too long")
	ErrTitleEmpty   = errors.New("title empty")
)

type AttendeeID string

// Base returns the canonical identity of a possibly derived attendee id,
// e.g. "abc#content" -> "abc".
func (id AttendeeID) Base() AttendeeID {
	base, _, _ := strings.Cut(string(id), ModalitySeparator)
	return AttendeeID(base)
}

// IsBase reports whether id is not a derived (content share) identity.
func (id AttendeeID) IsBase() bool { return id.Base() == id }

// Modality returns the suffix after the separator, or "" for a base identity.
func (id AttendeeID) Modality() string {
	_, modality, _ := strings.Cut(string(id), ModalitySeparator)
	return modality
}

// WithModality derives an identity, e.g. ContentShare ids.
func (id AttendeeID) WithModality(modality string) AttendeeID {
	return AttendeeID(string(id.Base()) + ModalitySeparator + modality)
}

type Attendee struct {
	ID             AttendeeID `json:"AttendeeId"`
	ExternalUserID string     `json:"ExternalUserId"`
	JoinToken      string     `json:"JoinToken"`
}

// NewAttendeeID is a tiny helper to keep id generation out of adapters.
func NewAttendeeID() AttendeeID {
	return AttendeeID(uuid.NewString())
}

func ValidateName(name string) error {
	if len(name) == 0 {
		return ErrNameEmpty
	}
	if len(name) > MaxAttendeeNameLen {
		return ErrNameTooLong
	}
	return nil
}

func ValidateTitle(title MeetingTitle) error {
	if len(title) == 0 {
		return ErrTitleEmpty
	}
	if len(title) > MaxTitleLen {
		return ErrTitleTooLong
	}
	return nil
}
