package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aerolink/mavbridge/bridge"
	"github.com/aerolink/mavbridge/log2"
	"github.com/aerolink/mavbridge/serial"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRead(t *testing.T) {
	t.Parallel()

	type Case struct {
		name      string
		input     string
		check     func(testing.TB, *Config)
		expectErr string
	}
	cases := []Case{
		{"empty", "", func(t testing.TB, c *Config) {
			bc := c.BridgeConfig()
			assert.Equal(t, serial.DefaultDevice, bc.Serial.Device)
			assert.Equal(t, serial.DefaultBaud, bc.Serial.Baud)
			assert.Equal(t, serial.DefaultReadTimeout, bc.Serial.ReadTimeout)
			assert.Equal(t, time.Second, bc.HeartbeatPeriod)
			assert.Equal(t, uint8(bridge.DefaultSystemID), bc.SystemID)
			assert.Equal(t, uint8(bridge.DefaultComponentID), bc.ComponentID)
			assert.Equal(t, bridge.Routes{}, bc.Routes)
			assert.Empty(t, bc.Bus.Endpoints)
			assert.Equal(t, "mavbridge", bc.Bus.ClientID)
		}, ""},

		{"full", `
serial { device = "/dev/ttyUSB0" baud = 57600 read_timeout_ms = 20 }
bus {
	endpoints = ["tcp://10.0.0.1:1883", "tcp://10.0.0.2:1883"]
	client_id = "drone7"
	keepalive_sec = 15
	log_debug = true
}
bridge {
	heartbeat_period_ms = 500
	system_id = 2
	component_id = 100
	forward_position_messages = true
	publish_state_snapshot = true
}
log_debug = true`,
			func(t testing.TB, c *Config) {
				bc := c.BridgeConfig()
				assert.Equal(t, "/dev/ttyUSB0", bc.Serial.Device)
				assert.Equal(t, 57600, bc.Serial.Baud)
				assert.Equal(t, 20*time.Millisecond, bc.Serial.ReadTimeout)
				assert.Equal(t, []string{"tcp://10.0.0.1:1883", "tcp://10.0.0.2:1883"}, bc.Bus.Endpoints)
				assert.Equal(t, "drone7", bc.Bus.ClientID)
				assert.Equal(t, 15, bc.Bus.KeepaliveSec)
				assert.True(t, bc.Bus.LogDebug)
				assert.Equal(t, 500*time.Millisecond, bc.HeartbeatPeriod)
				assert.Equal(t, uint8(2), bc.SystemID)
				assert.Equal(t, uint8(100), bc.ComponentID)
				assert.Equal(t, bridge.Routes{PositionMessages: true, StateSnapshot: true}, bc.Routes)
				assert.True(t, c.LogDebug)
			}, ""},

		{"include-normalize", `
serial { baud = 1 }
include "./empty" {}`,
			nil, ""},

		{"include-optional", `
include "device-usb" {}
include "non-exist" { optional = true }`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, "/dev/ttyUSB0", c.Serial.Device)
			}, ""},

		{"include-overwrites", `
serial { device = "/dev/ttyS1" }
include "device-usb" {}`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, "/dev/ttyUSB0", c.Serial.Device)
			}, ""},

		{"include-required", `include "non-exist" {}`, nil, "config required name=non-exist"},
		{"include-loop", `include "loop" {}`, nil, "config include loop"},
		{"syntax", `serial {`, nil, "config unmarshal source=test-inline"},
		{"invalid-system-id", `bridge { system_id = 300 }`, nil, "config bridge.system_id=300 not valid"},
	}
	mkCheck := func(c Case) func(*testing.T) {
		return func(t *testing.T) {
			t.Parallel()
			log := log2.NewTest(t, log2.LDebug)
			fs := NewMockFullReader(map[string]string{
				"test-inline": c.input,
				"empty":       "",
				"device-usb":  `serial { device = "/dev/ttyUSB0" }`,
				"loop":        `include "test-inline" {}`,
			})
			cfg, err := Read(log, fs, "test-inline")
			if c.expectErr == "" {
				require.NoError(t, err, errors.ErrorStack(err))
				if c.check != nil {
					c.check(t, cfg)
				}
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), c.expectErr)
			}
		}
	}
	for _, c := range cases {
		t.Run(c.name, mkCheck(c))
	}
}

func TestReadOs(t *testing.T) {
	t.Parallel()

	dir, err := ioutil.TempDir("", "mavbridge-config")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "main.hcl"),
		[]byte(`include "local.hcl" {}
bridge { heartbeat_period_ms = 250 }`), 0600))
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "local.hcl"),
		[]byte(`serial { device = "/dev/ttyACM0" }`), 0600))

	c, err := Read(log2.NewTest(t, log2.LDebug), NewOsFullReader(), filepath.Join(dir, "main.hcl"))
	require.NoError(t, err)
	bc := c.BridgeConfig()
	assert.Equal(t, "/dev/ttyACM0", bc.Serial.Device)
	assert.Equal(t, 250*time.Millisecond, bc.HeartbeatPeriod)

	_, err = Read(nil, NewOsFullReader(), filepath.Join(dir, "missing.hcl"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config required name=missing.hcl")
}
