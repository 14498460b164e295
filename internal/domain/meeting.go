package domain

import "github.com/google/uuid"

type (
	MeetingTitle string
	MeetingID    string
)

type Meeting struct {
	ID          MeetingID    `json:"MeetingId"`
	External    MeetingTitle `json:"ExternalMeetingId"`
	MediaRegion string       `json:"MediaRegion"`
}

func NewMeetingID() MeetingID {
	return MeetingID(uuid.NewString())
}

// JoinInfo mirrors the /join response body.
type JoinInfo struct {
	Meeting struct {
		Meeting Meeting `json:"Meeting"`
	} `json:"Meeting"`
	Attendee struct {
		Attendee Attendee `json:"Attendee"`
	} `json:"Attendee"`
}

// NewJoinInfo avoids nested anonymous struct literals in adapters.
func NewJoinInfo(m Meeting, a Attendee) JoinInfo {
	var info JoinInfo
	info.Meeting.Meeting = m
	info.Attendee.Attendee = a
	return info
}

// Credentials identify the local attendee to the realtime and messaging sockets.
type Credentials struct {
	AttendeeID AttendeeID
	JoinToken  string
}

// SessionConfiguration is what a realtime session needs to start.
type SessionConfiguration struct {
	MeetingID   MeetingID
	MediaRegion string
	Credentials Credentials
}

func NewSessionConfiguration(info JoinInfo) SessionConfiguration {
	return SessionConfiguration{
		MeetingID:   info.Meeting.Meeting.ID,
		MediaRegion: info.Meeting.Meeting.MediaRegion,
		Credentials: Credentials{
			AttendeeID: info.Attendee.Attendee.ID,
			JoinToken:  info.Attendee.Attendee.JoinToken,
		},
	}
}
