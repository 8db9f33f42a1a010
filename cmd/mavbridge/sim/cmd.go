// Simulated flight controller on serial device, for bench testing the bridge
// over null-modem cable or socat pty pair.
package sim

import (
	"context"
	"time"

	"github.com/aerolink/mavbridge/cmd/mavbridge/subcmd"
	"github.com/aerolink/mavbridge/internal/vehiclesim"
	"github.com/aerolink/mavbridge/serial"
	"github.com/juju/errors"
	flag "github.com/spf13/pflag"
)

var Mod = subcmd.Mod{Name: "sim", Usage: "simulated vehicle on serial device", Main: Main}

func Main(ctx context.Context, env *subcmd.Env) error {
	bc := env.Config.BridgeConfig()
	flags := flag.NewFlagSet("sim", flag.ContinueOnError)
	device := flags.String("device", bc.Serial.Device, "serial device")
	rate := flags.Duration("rate", vehiclesim.DefaultRate, "attitude state period")
	noise := flags.Int("noise", 0, "inject garbage before every N-th frame, 0 disables")
	if err := flags.Parse(env.Args); err != nil {
		return errors.Annotate(err, "sim flags")
	}

	sc := bc.Serial
	sc.Device = *device
	port, err := serial.Open(sc)
	if err != nil {
		return err
	}
	defer port.Close()

	v := vehiclesim.New(port, env.Log)
	v.Rate = *rate
	v.NoiseEvery = *noise
	env.Log.Infof("sim running device=%s rate=%v", port.String(), *rate)

	go func() {
		tick := time.NewTicker(10 * time.Second)
		defer tick.Stop()
		for {
			select {
			case <-tick.C:
				env.Log.Infof("sim heartbeats received=%d bytes read=%d written=%d",
					len(v.Heartbeats()), port.BytesRead.Value(), port.BytesWritten.Value())
			case <-ctx.Done():
				return
			}
		}
	}()
	return v.Run(ctx)
}
