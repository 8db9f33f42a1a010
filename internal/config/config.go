// Package config reads bridge configuration from HCL files.
//
// Example:
//
//	serial { device = "/dev/ttyTHS1" baud = 921600 }
//	bus { endpoints = ["tcp://127.0.0.1:1883"] client_id = "mavbridge" }
//	bridge { heartbeat_period_ms = 1000 }
//	include "local.hcl" { optional = true }
package config

import (
	"path/filepath"

	"github.com/aerolink/mavbridge/bridge"
	"github.com/aerolink/mavbridge/bus"
	"github.com/aerolink/mavbridge/helpers"
	"github.com/aerolink/mavbridge/log2"
	"github.com/aerolink/mavbridge/serial"
	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
)

type Config struct {
	includeSeen map[string]struct{}
	XXX_Include []Source `hcl:"include"`

	Serial struct {
		Device        string `hcl:"device"`
		Baud          int    `hcl:"baud"`
		ReadTimeoutMs int    `hcl:"read_timeout_ms"`
	} `hcl:"serial"`

	Bus struct {
		Endpoints         []string `hcl:"endpoints"`
		ClientID          string   `hcl:"client_id"`
		KeepaliveSec      int      `hcl:"keepalive_sec"`
		NetworkTimeoutSec int      `hcl:"network_timeout_sec"`
		LogDebug          bool     `hcl:"log_debug"`
	} `hcl:"bus"`

	Bridge struct {
		HeartbeatPeriodMs       int  `hcl:"heartbeat_period_ms"`
		SystemID                int  `hcl:"system_id"`
		ComponentID             int  `hcl:"component_id"`
		ForwardPositionMessages bool `hcl:"forward_position_messages"`
		PublishStateSnapshot    bool `hcl:"publish_state_snapshot"`
	} `hcl:"bridge"`

	LogDebug bool `hcl:"log_debug"`
}

type Source struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

func (c *Config) read(log *log2.Log, fs FullReader, source Source, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			*errs = append(*errs, errors.NotFoundf("config required name=%s path=%s", source.Name, norm))
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	if err = hcl.Unmarshal(bs, c); err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config unmarshal source=%s", source.Name))
		return
	}

	var includes []Source
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		if _, ok := c.includeSeen[fs.Normalize(include.Name)]; ok {
			*errs = append(*errs, errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name))
			continue
		}
		c.read(log, fs, include, errs)
	}
}

// Read parses sources in order, later values overwrite earlier.
// Includes are relative to directory of first name when fs is OsFullReader.
func Read(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		return nil, errors.NotValidf("code error config.Read() without names")
	}
	names = append([]string(nil), names...)
	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		if err := osfs.SetBase(dir); err != nil {
			return nil, err
		}
		names[0] = name
	}
	c := &Config{includeSeen: make(map[string]struct{})}
	errs := make([]error, 0, 4)
	for _, name := range names {
		c.read(log, fs, Source{Name: name}, &errs)
	}
	if err := helpers.FoldErrors(errs); err != nil {
		return nil, err
	}
	return c, c.validate()
}

func (c *Config) validate() error {
	if c.Serial.Baud < 0 {
		return errors.NotValidf("config serial.baud=%d", c.Serial.Baud)
	}
	if c.Bridge.SystemID < 0 || c.Bridge.SystemID > 255 {
		return errors.NotValidf("config bridge.system_id=%d", c.Bridge.SystemID)
	}
	if c.Bridge.ComponentID < 0 || c.Bridge.ComponentID > 255 {
		return errors.NotValidf("config bridge.component_id=%d", c.Bridge.ComponentID)
	}
	if c.Bridge.HeartbeatPeriodMs < 0 {
		return errors.NotValidf("config bridge.heartbeat_period_ms=%d", c.Bridge.HeartbeatPeriodMs)
	}
	return nil
}

// BridgeConfig applies defaults for zero values.
func (c *Config) BridgeConfig() bridge.Config {
	return bridge.Config{
		Serial: serial.Config{
			Device:      defaultString(c.Serial.Device, serial.DefaultDevice),
			Baud:        defaultInt(c.Serial.Baud, serial.DefaultBaud),
			ReadTimeout: helpers.IntMillisecondDefault(c.Serial.ReadTimeoutMs, serial.DefaultReadTimeout),
		},
		Bus: bus.Config{
			Endpoints:         c.Bus.Endpoints,
			ClientID:          defaultString(c.Bus.ClientID, "mavbridge"),
			KeepaliveSec:      c.Bus.KeepaliveSec,
			NetworkTimeoutSec: c.Bus.NetworkTimeoutSec,
			LogDebug:          c.Bus.LogDebug,
		},
		HeartbeatPeriod: helpers.IntMillisecondDefault(c.Bridge.HeartbeatPeriodMs, bridge.DefaultHeartbeatPeriod),
		SystemID:        uint8(defaultInt(c.Bridge.SystemID, bridge.DefaultSystemID)),
		ComponentID:     uint8(defaultInt(c.Bridge.ComponentID, bridge.DefaultComponentID)),
		Routes: bridge.Routes{
			PositionMessages: c.Bridge.ForwardPositionMessages,
			StateSnapshot:    c.Bridge.PublishStateSnapshot,
		},
	}
}

func defaultString(main, def string) string {
	if main == "" {
		return def
	}
	return main
}

func defaultInt(main, def int) int {
	if main == 0 {
		return def
	}
	return main
}
