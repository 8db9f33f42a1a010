package run

import (
	"context"
	"time"

	"github.com/aerolink/mavbridge/bridge"
	"github.com/aerolink/mavbridge/cmd/mavbridge/subcmd"
	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	flag "github.com/spf13/pflag"
)

var Mod = subcmd.Mod{Name: "run", Usage: "relay serial telemetry to bus", Main: Main}

func Main(ctx context.Context, env *subcmd.Env) error {
	flags := flag.NewFlagSet("run", flag.ContinueOnError)
	statInterval := flags.Duration("stat-interval", time.Minute, "log counters period, 0 disables")
	if err := flags.Parse(env.Args); err != nil {
		return errors.Annotate(err, "run flags")
	}

	bc := env.Config.BridgeConfig()
	env.Log.Debugf("config=%+v", bc)
	s := bridge.NewSupervisor(bc, env.Log)
	if err := s.Open(); err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			env.Log.Errorf("close err=%v", err)
		}
	}()

	if *statInterval > 0 {
		go func() {
			tick := time.NewTicker(*statInterval)
			defer tick.Stop()
			for {
				select {
				case <-tick.C:
					env.Log.Infof("stat %+v", s.Stat())
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	subcmd.SdNotify(daemon.SdNotifyReady)
	env.Log.Infof("bridge running")
	err := s.Run(ctx)
	subcmd.SdNotify(daemon.SdNotifyStopping)
	env.Log.Infof("bridge stopped stat=%+v", s.Stat())
	return err
}
