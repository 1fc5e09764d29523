package script_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netwatch/bgwmonitor/models"
	"github.com/netwatch/bgwmonitor/pkg/bgwmonitor/script"
)

const fixtureTemplate = "ip={{bgw_ip}} user={{bgw_user}} pass={{bgw_passwd}} " +
	"last={{prev_last_session_id}} active={{prev_active_session_ids}} " +
	"rtp={{rtp_stats}} cmds={{commands}} debug={{debug}}"

func TestBuilder_Build_Discovery(t *testing.T) {
	gw := models.NewBGW("10.0.0.1", "tls", 20)
	b := &script.Builder{
		User: "admin", Passwd: "secret",
		DiscoveryCommands: []string{"show system"},
		QueryCommands:     []string{"show faults"},
	}

	out, err := b.Build(gw, script.TextTemplate{Source: fixtureTemplate})
	require.NoError(t, err)
	assert.Contains(t, out, "ip=10.0.0.1")
	assert.Contains(t, out, `last=""`)
	assert.Contains(t, out, "active={}")
	assert.Contains(t, out, "rtp=0")
	assert.Contains(t, out, `cmds={"show system"}`)
}

func TestBuilder_Build_QueryPrependsAdhocCommands(t *testing.T) {
	gw := models.NewBGW("10.0.0.1", "tls", 20)
	gw.Update(models.UpdateInput{LastSeen: "2026-01-15,09:00:00", LastSessionID: "42"})
	gw.EnqueueCommands([]string{"capture start"})

	b := &script.Builder{
		User: "admin", Passwd: "secret",
		DiscoveryCommands: []string{"show system"},
		QueryCommands:     []string{"show faults", "show system"},
	}

	out, err := b.Build(gw, script.TextTemplate{Source: fixtureTemplate})
	require.NoError(t, err)
	assert.Contains(t, out, "rtp=1")
	assert.Contains(t, out, `last="42"`)
	assert.Contains(t, out, `cmds={"capture start" "show faults" "show system"}`)
}

func TestBuilder_Build_OnlyOneAdhocBatchDequeued(t *testing.T) {
	gw := models.NewBGW("10.0.0.1", "tls", 20)
	gw.Update(models.UpdateInput{LastSeen: "2026-01-15,09:00:00"})
	gw.EnqueueCommands([]string{"capture start"})
	gw.EnqueueCommands([]string{"capture stop"})

	b := &script.Builder{QueryCommands: []string{"show faults"}}
	out, err := b.Build(gw, script.TextTemplate{Source: fixtureTemplate})
	require.NoError(t, err)
	assert.Contains(t, out, `cmds={"capture start" "show faults"}`)
	assert.NotContains(t, out, "capture stop")

	assert.Equal(t, []string{"capture stop"}, gw.DequeueCommands())
}

func TestBuilder_Build_ActiveSessionIDsSortedAndJoined(t *testing.T) {
	gw := models.NewBGW("10.0.0.1", "tls", 20)
	gw.Update(models.UpdateInput{LastSeen: "2026-01-15,09:00:00"})
	gw.ActiveSessionIDs["3"] = struct{}{}
	gw.ActiveSessionIDs["1"] = struct{}{}

	b := &script.Builder{QueryCommands: []string{"show faults"}}
	out, err := b.Build(gw, script.TextTemplate{Source: fixtureTemplate})
	require.NoError(t, err)
	assert.Contains(t, out, `active={"1" "3"}`)
}

func TestTextTemplate_Render_EmptySourceErrors(t *testing.T) {
	_, err := script.TextTemplate{}.Render(script.Vars{})
	assert.Error(t, err)
}
