package model

import (
	"bytes"
	"encoding/json"
)

// MaxLogs is the number of check-in entries kept per bot, newest first.
const MaxLogs = 10

type Status string

const (
	StatusActive    Status = "Active"
	StatusBanned    Status = "Banned"
	StatusNonactive Status = "Nonactive"
)

// Known reports whether s is one of the recognised statuses. Matching is
// case-sensitive.
func (s Status) Known() bool {
	switch s {
	case StatusActive, StatusBanned, StatusNonactive:
		return true
	}
	return false
}

// LogEntry is one check-in. Like Bot it keeps unknown members and re-emits
// decoded values as they were.
type LogEntry struct {
	Time   string
	Status Status
	IP     string
	Extra  map[string]json.RawMessage

	src    object
	opaque json.RawMessage
}

var logKeys = []string{"time", "status", "ip"}

func (l *LogEntry) UnmarshalJSON(data []byte) error {
	obj, ok, err := decodeObject(data)
	if err != nil {
		return err
	}
	*l = LogEntry{}
	if !ok {
		l.opaque = append(json.RawMessage(nil), data...)
		return nil
	}
	l.src = obj
	for _, key := range obj.keys {
		raw := obj.values[key]
		switch key {
		case "time":
			l.Time = stringValue(raw)
		case "status":
			l.Status = Status(stringValue(raw))
		case "ip":
			l.IP = stringValue(raw)
		default:
			if l.Extra == nil {
				l.Extra = make(map[string]json.RawMessage)
			}
			l.Extra[key] = raw
		}
	}
	return nil
}

func (l LogEntry) MarshalJSON() ([]byte, error) {
	if l.opaque != nil && l.blank() {
		return l.opaque, nil
	}
	members := copyRaw(l.Extra)
	if members == nil {
		members = make(map[string]json.RawMessage, len(logKeys))
	}
	l.src.stringField(members, "time", l.Time)
	l.src.stringField(members, "status", string(l.Status))
	l.src.stringField(members, "ip", l.IP)
	return l.src.encode(members, logKeys), nil
}

func (l LogEntry) blank() bool {
	return l.Time == "" && l.Status == "" && l.IP == "" && len(l.Extra) == 0
}

func (l LogEntry) equal(o LogEntry) bool {
	return l.Time == o.Time && l.Status == o.Status && l.IP == o.IP &&
		bytes.Equal(l.opaque, o.opaque) && equalRaw(l.Extra, o.Extra)
}

func (l LogEntry) clone() LogEntry {
	l.Extra = copyRaw(l.Extra)
	return l
}

// Label holds the bot "number" exactly as it appears in the document, which
// may be a JSON string or a JSON number.
type Label struct {
	raw json.RawMessage
}

func NewLabel(s string) Label {
	b, _ := json.Marshal(s)
	return Label{raw: b}
}

func (l Label) IsZero() bool {
	return len(l.raw) == 0
}

func (l Label) String() string {
	if len(l.raw) == 0 || bytes.Equal(l.raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(l.raw, &s); err == nil {
		return s
	}
	return string(l.raw)
}

func (l Label) MarshalJSON() ([]byte, error) {
	if len(l.raw) == 0 {
		return []byte("null"), nil
	}
	return l.raw, nil
}

func (l *Label) UnmarshalJSON(data []byte) error {
	l.raw = append(l.raw[:0], data...)
	return nil
}

// Bot is one tracked node. Fields the service does not know about are kept
// in Extra, and every decoded member is written back exactly as it was read
// unless its value changed. Decoding never fails on member types: a token or
// status that is not a JSON string reads as empty and never matches.
type Bot struct {
	Token     string
	OwnerName string
	Number    Label
	Status    Status
	Logs      []LogEntry
	Extra     map[string]json.RawMessage

	src    object
	opaque json.RawMessage
}

var botKeys = []string{"token", "ownerName", "number", "status", "logs"}

func (b *Bot) UnmarshalJSON(data []byte) error {
	obj, ok, err := decodeObject(data)
	if err != nil {
		return err
	}
	*b = Bot{}
	if !ok {
		b.opaque = append(json.RawMessage(nil), data...)
		return nil
	}
	b.src = obj
	for _, key := range obj.keys {
		raw := obj.values[key]
		switch key {
		case "token":
			b.Token = stringValue(raw)
		case "ownerName":
			b.OwnerName = stringValue(raw)
		case "status":
			b.Status = Status(stringValue(raw))
		case "number":
			b.Number = Label{raw: raw}
		case "logs":
			b.Logs = decodeLogs(raw)
		default:
			if b.Extra == nil {
				b.Extra = make(map[string]json.RawMessage)
			}
			b.Extra[key] = raw
		}
	}
	return nil
}

func (b Bot) MarshalJSON() ([]byte, error) {
	if b.opaque != nil && b.blank() {
		return b.opaque, nil
	}
	members := copyRaw(b.Extra)
	if members == nil {
		members = make(map[string]json.RawMessage, len(botKeys))
	}
	b.src.stringField(members, "token", b.Token)
	b.src.stringField(members, "ownerName", b.OwnerName)
	if !b.Number.IsZero() {
		members["number"] = b.Number.raw
	}
	b.src.stringField(members, "status", string(b.Status))
	if err := b.logsField(members); err != nil {
		return nil, err
	}
	return b.src.encode(members, botKeys), nil
}

// logsField keeps the stored logs member while the decoded entries are
// unchanged. Bots built in Go always get an array.
func (b Bot) logsField(out map[string]json.RawMessage) error {
	raw, present := b.src.values["logs"]
	switch {
	case present && logsEqual(decodeLogs(raw), b.Logs):
		out["logs"] = raw
		return nil
	case !present && b.src.decoded() && b.Logs == nil:
		return nil
	}
	logs := b.Logs
	if logs == nil {
		logs = []LogEntry{}
	}
	enc, err := json.Marshal(logs)
	if err != nil {
		return err
	}
	out["logs"] = enc
	return nil
}

func (b Bot) blank() bool {
	return b.Token == "" && b.OwnerName == "" && b.Number.IsZero() && b.Status == "" &&
		b.Logs == nil && len(b.Extra) == 0
}

// Fields returns the bot's JSON members, extra fields included.
func (b Bot) Fields() (map[string]json.RawMessage, error) {
	data, err := b.MarshalJSON()
	if err != nil {
		return nil, err
	}
	obj, ok, err := decodeObject(data)
	if err != nil || !ok {
		return map[string]json.RawMessage{}, err
	}
	return obj.values, nil
}

// decodeLogs reads a logs member. Anything but an array reads as no logs.
func decodeLogs(raw json.RawMessage) []LogEntry {
	var logs []LogEntry
	if err := json.Unmarshal(raw, &logs); err != nil {
		return nil
	}
	return logs
}

func logsEqual(a, b []LogEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].equal(b[i]) {
			return false
		}
	}
	return true
}

// PrependLog puts entry at the head of the log and drops the oldest entries
// beyond MaxLogs.
func (b *Bot) PrependLog(entry LogEntry) {
	logs := make([]LogEntry, 0, min(len(b.Logs)+1, MaxLogs))
	logs = append(logs, entry)
	for _, l := range b.Logs {
		if len(logs) == MaxLogs {
			break
		}
		logs = append(logs, l)
	}
	b.Logs = logs
}

type Registry []Bot

// Find returns the index of the first bot holding token, or -1.
func (r Registry) Find(token string) int {
	if token == "" {
		return -1
	}
	for i := range r {
		if r[i].Token == token {
			return i
		}
	}
	return -1
}

// Clone copies the registry deep enough that log mutations on the copy do
// not reach the original.
func (r Registry) Clone() Registry {
	if r == nil {
		return nil
	}
	out := make(Registry, len(r))
	for i, b := range r {
		out[i] = b
		if b.Logs != nil {
			out[i].Logs = make([]LogEntry, len(b.Logs))
			for j, l := range b.Logs {
				out[i].Logs[j] = l.clone()
			}
		}
		out[i].Extra = copyRaw(b.Extra)
	}
	return out
}

// AnnotatedLog is a log entry tagged with the bot that produced it.
type AnnotatedLog struct {
	Time   string `json:"time"`
	Status Status `json:"status"`
	IP     string `json:"ip"`
	Name   string `json:"name"`
	Number Label  `json:"number"`
}

type Stats struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Banned    int `json:"banned"`
	Nonactive int `json:"nonactive"`
	Other     int `json:"other"`
}

// User is one entry of the external credential list.
type User struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UnmarshalJSON reads an entry leniently: members that are not JSON strings,
// or entries that are not objects, read as empty.
func (u *User) UnmarshalJSON(data []byte) error {
	obj, ok, err := decodeObject(data)
	if err != nil {
		return err
	}
	*u = User{}
	if ok {
		u.Username = stringValue(obj.values["username"])
		u.Password = stringValue(obj.values["password"])
	}
	return nil
}
