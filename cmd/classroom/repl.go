package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dkeye/classroom/internal/app"
	"github.com/dkeye/classroom/internal/domain"
	"github.com/dkeye/classroom/internal/tiles"
	"github.com/mattn/go-shellwords"
)

const chatType = "chat"

type chatPayload struct {
	AttendeeID domain.AttendeeID `json:"attendeeId"`
	Text       string            `json:"text"`
}

func chatText(m domain.Message) (string, bool) {
	if m.Type != chatType {
		return "", false
	}
	var p chatPayload
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return "", false
	}
	return p.Text, true
}

// call is the part of the facade the REPL drives.
type call interface {
	Mute(muted bool) error
	Video(on bool) error
	SendMessage(msgType string, payload any) error
	Roster() domain.Roster
	Devices() domain.DeviceLists
	CurrentDevices() domain.CurrentDevices
	ChooseDevice(ctx context.Context, kind domain.DeviceKind, deviceID string) error
	Configuration() (domain.SessionConfiguration, bool)
	LeaveRoom(ctx context.Context, end bool)
}

var _ call = (*app.Facade)(nil)

type repl struct {
	call   call
	layout func() tiles.Layout
	out    io.Writer
}

const helpText = `commands:
  /mute, /unmute          toggle the microphone
  /video on|off           start or stop the camera
  /roster                 list attendees
  /devices                list devices and the current selection
  /device <kind> <id>     choose a device (kind: mic, speaker, camera)
  /layout                 show remote video slots
  /leave                  leave the meeting
  /end                    end the meeting for everyone
anything else is sent as a chat message`

// exec runs one input line. done reports that the session is over.
func (r *repl) exec(ctx context.Context, line string) (done bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return false, r.chat(line)
	}

	args, err := shellwords.Parse(line)
	if err != nil {
		return false, err
	}
	switch args[0] {
	case "/help":
		fmt.Fprintln(r.out, helpText)
	case "/mute":
		return false, r.call.Mute(true)
	case "/unmute":
		return false, r.call.Mute(false)
	case "/video":
		if len(args) != 2 || (args[1] != "on" && args[1] != "off") {
			return false, fmt.Errorf("usage: /video on|off")
		}
		return false, r.call.Video(args[1] == "on")
	case "/roster":
		r.printRoster()
	case "/devices":
		r.printDevices()
	case "/device":
		if len(args) != 3 {
			return false, fmt.Errorf("usage: /device <mic|speaker|camera> <id>")
		}
		kind, ok := deviceKinds[args[1]]
		if !ok {
			return false, fmt.Errorf("unknown device kind %q", args[1])
		}
		return false, r.call.ChooseDevice(ctx, kind, args[2])
	case "/layout":
		r.printLayout()
	case "/leave":
		r.call.LeaveRoom(ctx, false)
		return true, nil
	case "/end":
		r.call.LeaveRoom(ctx, true)
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %s, try /help", args[0])
	}
	return false, nil
}

var deviceKinds = map[string]domain.DeviceKind{
	"mic":     domain.AudioInput,
	"speaker": domain.AudioOutput,
	"camera":  domain.VideoInput,
}

func (r *repl) chat(text string) error {
	cfg, ok := r.call.Configuration()
	if !ok {
		return app.ErrNoSession
	}
	return r.call.SendMessage(chatType, chatPayload{AttendeeID: cfg.Credentials.AttendeeID, Text: text})
}

func (r *repl) printRoster() {
	roster := r.call.Roster()
	ids := make([]string, 0, len(roster))
	for id := range roster {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	for _, id := range ids {
		e := roster[domain.AttendeeID(id)]
		var flags []string
		if e.Muted != nil && *e.Muted {
			flags = append(flags, "muted")
		}
		if e.Volume != nil {
			flags = append(flags, fmt.Sprintf("vol %d%%", *e.Volume))
		}
		if e.SignalStrength != nil {
			flags = append(flags, fmt.Sprintf("signal %d%%", *e.SignalStrength))
		}
		fmt.Fprintf(r.out, "  %-20s %s\n", displayName(e.Name), strings.Join(flags, ", "))
	}
}

func (r *repl) printDevices() {
	lists, cur := r.call.Devices(), r.call.CurrentDevices()
	show := func(title string, ds []domain.Device, selected domain.Device) {
		fmt.Fprintf(r.out, "%s:\n", title)
		for _, d := range ds {
			mark := " "
			if d.Value != "" && d.Value == selected.Value {
				mark = "*"
			}
			fmt.Fprintf(r.out, " %s %s (%s)\n", mark, d.Label, d.Value)
		}
	}
	show("mic", lists.AudioInputs, cur.AudioInput)
	show("speaker", lists.AudioOutputs, cur.AudioOutput)
	show("camera", lists.VideoInputs, cur.VideoInput)
}

func (r *repl) printLayout() {
	l := r.layout()
	fmt.Fprintf(r.out, "%d remote video(s), %s tiles\n", l.Count, l.Size)
	for slot, v := range l.Visible {
		if v == nil {
			continue
		}
		fmt.Fprintf(r.out, "  slot %2d: tile %d (%s)\n", slot, v.TileID, v.BoundAttendeeID)
	}
}
