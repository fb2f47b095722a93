package main

import (
	"bufio"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildEvent(t *testing.T) {
	tests := []struct {
		args     []string
		wantType string
		wantData string
	}{
		{[]string{"speed", "60"}, "set_speed_position", `{"position":60}`},
		{[]string{"boost", "15"}, "set_boost_position", `{"position":15}`},
		{[]string{"preset", "speed", "1.5"}, "select_speed_preset", `{"speed":1.5}`},
		{[]string{"preset", "boost", "200"}, "select_boost_preset", `{"percent":200}`},
		{[]string{"nudge", "boost", "-2"}, "nudge_boost", `{"steps":-2}`},
		{[]string{"knob", "3"}, "rotary_turn", `{"steps":3}`},
		{[]string{"off", "speed"}, "disable_speed", ""},
		{[]string{"reapply"}, "reapply", ""},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			env, err := buildEvent(tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, env.Type)
			if tt.wantData == "" {
				assert.Empty(t, env.Data)
			} else {
				assert.JSONEq(t, tt.wantData, string(env.Data))
			}
		})
	}
}

func TestBuildEvent_Errors(t *testing.T) {
	for _, args := range [][]string{
		{"speed"},
		{"speed", "fast"},
		{"preset", "pitch", "2"},
		{"nudge", "speed", "1.5"},
		{"off", "everything"},
		{"launch"},
	} {
		_, err := buildEvent(args)
		assert.Error(t, err, "args %v", args)
	}
}

// fakeDaemon answers one IPC line per connection with reply.
func fakeDaemon(t *testing.T, reply func(EventEnvelope) IPCResponse) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "tabtune-ctl")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	sock := filepath.Join(dir, "d.sock")

	ln, err := net.Listen("unix", sock)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				line, err := bufio.NewReader(c).ReadBytes('\n')
				if err != nil {
					return
				}
				var env EventEnvelope
				_ = json.Unmarshal(line, &env)
				_ = json.NewEncoder(c).Encode(reply(env))
			}(conn)
		}
	}()
	return sock
}

func TestSendAndGetState(t *testing.T) {
	sock := fakeDaemon(t, func(env EventEnvelope) IPCResponse {
		switch env.Type {
		case "get_state":
			return IPCResponse{Status: "ok", State: &stateSnapshot{SpeedDisplay: "2.00x", SpeedPosition: 62.5, SpeedEnabled: true, BoostDisplay: "100%", BoostPosition: 15}}
		case "reapply":
			return IPCResponse{Status: "ok"}
		}
		return IPCResponse{Status: "error", Error: "unknown event type"}
	})

	_, err := send(sock, EventEnvelope{Type: "reapply"})
	require.NoError(t, err)

	_, err = send(sock, EventEnvelope{Type: "bogus"})
	assert.ErrorContains(t, err, "unknown event type")

	s, err := getState(sock)
	require.NoError(t, err)
	assert.Equal(t, "2.00x", s.SpeedDisplay)
	assert.Contains(t, formatState(s), "speed 2.00x (position 62.5, on)")
	assert.Contains(t, formatState(s), "boost 100% (position 15.0, off)")
}
