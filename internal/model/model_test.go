package model

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrependLogTruncates(t *testing.T) {
	var b Bot
	for i := 0; i < MaxLogs+3; i++ {
		b.PrependLog(LogEntry{Time: fmt.Sprintf("00:00:%02d", i), Status: StatusActive})
		assert.Equal(t, min(i+1, MaxLogs), len(b.Logs))
	}
	assert.Equal(t, "00:00:12", b.Logs[0].Time)
	assert.Equal(t, "00:00:03", b.Logs[MaxLogs-1].Time)
}

func TestBotKeepsUnknownFields(t *testing.T) {
	doc := `[{"token":"abc","ownerName":"Bob","number":628123,"status":"Active","plan":{"tier":"gold"},"note":"vip"}]`

	var reg Registry
	require.NoError(t, json.Unmarshal([]byte(doc), &reg))
	require.Len(t, reg, 1)
	assert.Equal(t, "628123", reg[0].Number.String())
	assert.Empty(t, reg[0].Logs)

	reg[0].PrependLog(LogEntry{Time: "10:00:00", Status: reg[0].Status, IP: "1.2.3.4"})
	out, err := json.Marshal(reg)
	require.NoError(t, err)

	var generic []map[string]any
	require.NoError(t, json.Unmarshal(out, &generic))
	assert.Equal(t, "vip", generic[0]["note"])
	assert.Equal(t, map[string]any{"tier": "gold"}, generic[0]["plan"])
	assert.Equal(t, float64(628123), generic[0]["number"])
	assert.Len(t, generic[0]["logs"], 1)
}

func TestNullLogsKeptUntilCheckIn(t *testing.T) {
	var b Bot
	require.NoError(t, json.Unmarshal([]byte(`{"token":"x","logs":null,"number":"12"}`), &b))
	out, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, `{"token":"x","logs":null,"number":"12"}`, string(out))

	b.PrependLog(LogEntry{Time: "09:00:00", Status: StatusActive, IP: "10.0.0.1"})
	out, err = json.Marshal(b)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"logs":[{"time":"09:00:00","status":"Active","ip":"10.0.0.1"}]`)
}

func TestBuiltBotEncodesAllFields(t *testing.T) {
	out, err := json.Marshal(Bot{Token: "abc", OwnerName: "Bob"})
	require.NoError(t, err)
	assert.Equal(t, `{"token":"abc","ownerName":"Bob","status":"","logs":[]}`, string(out))
}

func TestRegistryRoundTripIsVerbatim(t *testing.T) {
	doc := `[{"ownerName":"Ann","number":"08"},` +
		`{"token":123,"status":7,"ownerName":["x"]},` +
		`null,"loose",` +
		`{"token":"abc","logs":[{"time":"10:00:00","status":"Active","ip":"1.1.1.1","note":"x"},{"ip":5}],"z":1,"a":2}]`

	var reg Registry
	require.NoError(t, json.Unmarshal([]byte(doc), &reg))
	require.Len(t, reg, 5)
	assert.Equal(t, "", reg[1].Token)
	assert.Equal(t, Status(""), reg[1].Status)

	out, err := json.Marshal(reg)
	require.NoError(t, err)
	assert.Equal(t, doc, string(out))

	out, err = json.Marshal(reg.Clone())
	require.NoError(t, err)
	assert.Equal(t, doc, string(out))
}

func TestCheckInKeepsLogExtras(t *testing.T) {
	doc := `{"token":"abc","status":"Active","logs":[{"time":"10:00:00","status":"Active","ip":"1.1.1.1","note":"x"}],"region":"sg"}`

	var b Bot
	require.NoError(t, json.Unmarshal([]byte(doc), &b))
	b.PrependLog(LogEntry{Time: "11:00:00", Status: b.Status, IP: "2.2.2.2"})

	out, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Equal(t,
		`{"token":"abc","status":"Active","logs":[{"time":"11:00:00","status":"Active","ip":"2.2.2.2"},{"time":"10:00:00","status":"Active","ip":"1.1.1.1","note":"x"}],"region":"sg"}`,
		string(out))
}

func TestChangedFieldIsReencoded(t *testing.T) {
	var b Bot
	require.NoError(t, json.Unmarshal([]byte(`{"token":9,"status":"Banned"}`), &b))
	b.Status = StatusActive
	out, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, `{"token":9,"status":"Active"}`, string(out))
}

func TestNonStringTokenNeverMatches(t *testing.T) {
	var reg Registry
	require.NoError(t, json.Unmarshal([]byte(`[{"token":123},{"token":null},{"token":"123"}]`), &reg))
	assert.Equal(t, 2, reg.Find("123"))
	assert.Equal(t, -1, reg.Find(""))
}

func TestUserDecodesLeniently(t *testing.T) {
	var users []User
	require.NoError(t, json.Unmarshal([]byte(`[{"username":1,"password":"x"},"junk",{"username":"ann","password":"pw"}]`), &users))
	require.Len(t, users, 3)
	assert.Equal(t, User{Password: "x"}, users[0])
	assert.Equal(t, User{}, users[1])
	assert.Equal(t, User{Username: "ann", Password: "pw"}, users[2])
}

func TestStatusKnown(t *testing.T) {
	assert.True(t, StatusActive.Known())
	assert.True(t, StatusBanned.Known())
	assert.True(t, StatusNonactive.Known())
	assert.False(t, Status("active").Known())
	assert.False(t, Status("").Known())
}

func TestRegistryFindFirstMatch(t *testing.T) {
	reg := Registry{{Token: "a", OwnerName: "one"}, {Token: "b"}, {Token: "a", OwnerName: "two"}}
	assert.Equal(t, 0, reg.Find("a"))
	assert.Equal(t, 1, reg.Find("b"))
	assert.Equal(t, -1, reg.Find("A"))
}

func TestCloneIsolatesLogs(t *testing.T) {
	reg := Registry{{Token: "a", Logs: []LogEntry{{Time: "01:00:00"}}}}
	cp := reg.Clone()
	cp[0].PrependLog(LogEntry{Time: "02:00:00"})
	assert.Len(t, reg[0].Logs, 1)
	assert.Len(t, cp[0].Logs, 2)
}
