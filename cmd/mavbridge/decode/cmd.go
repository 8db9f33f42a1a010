// Interactive decoder of hex dumps: MAVLink frames captured from serial link
// or telemetry records captured from bus (mosquitto_sub -F %x).
package decode

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/aerolink/mavbridge/bridge"
	"github.com/aerolink/mavbridge/cmd/mavbridge/subcmd"
	"github.com/aerolink/mavbridge/helpers/cli"
	"github.com/aerolink/mavbridge/log2"
	"github.com/aerolink/mavbridge/mavlink"
	"github.com/aerolink/mavbridge/telemetry"
	"github.com/c-bata/go-prompt"
)

const modName = "decode"

var Mod = subcmd.Mod{Name: modName, Usage: "decode hex frames or telemetry records from stdin", Main: Main}

func Main(ctx context.Context, env *subcmd.Env) error {
	bc := env.Config.BridgeConfig()
	cli.MainLoop(ctx, modName, newExecutor(env.Log, bc.Routes), newCompleter())
	return nil
}

func newCompleter() func(d prompt.Document) []prompt.Suggest {
	suggests := []prompt.Suggest{
		{Text: "fd", Description: "MAVLink v2 frame"},
		{Text: "fe", Description: "MAVLink v1 frame"},
	}
	return func(d prompt.Document) []prompt.Suggest {
		if d.TextBeforeCursor() == "" {
			return nil
		}
		return prompt.FilterHasPrefix(suggests, d.GetWordBeforeCursor(), true)
	}
}

func newExecutor(log *log2.Log, routes bridge.Routes) func(string) {
	return func(line string) {
		line = strings.Join(strings.Fields(line), "")
		if line == "" {
			return
		}
		// mosquitto_sub wrongly strips leading zero in hex format
		if len(line)%2 == 1 {
			line = "0" + line
		}
		b, err := hex.DecodeString(line)
		if err != nil {
			log.Errorf("hex.Decode err=%v", err)
			return
		}
		for _, s := range Describe(b, routes) {
			log.Info(s)
		}
	}
}

// Describe explains every frame or record found in b.
func Describe(b []byte, routes bridge.Routes) []string {
	if len(b) == 0 {
		return nil
	}
	if b[0] != mavlink.MagicV1 && b[0] != mavlink.MagicV2 {
		topic, r, err := telemetry.Decode(b)
		if err != nil {
			return []string{"telemetry err=" + err.Error()}
		}
		return []string{"telemetry topic=" + topic + " " + r.String()}
	}

	var out []string
	d := mavlink.NewDecoder(bytes.NewReader(b))
	for {
		msg, err := d.DecodeNext()
		switch mavlink.FaultOf(err) {
		case mavlink.FaultNone:
			out = append(out, d.Header().String()+" "+describeMessage(msg))
			for _, a := range bridge.Classify(msg, routes) {
				out = append(out, "  "+describeAction(a))
			}
			continue
		case mavlink.FaultMalformed:
			out = append(out, err.Error())
			continue
		}
		if n := d.Buffered(); n > 0 {
			out = append(out, fmt.Sprintf("incomplete frame, buffered=%d", n))
		}
		return out
	}
}

func describeMessage(msg mavlink.Message) string {
	if s, ok := msg.(interface{ String() string }); ok {
		return s.String()
	}
	return msg.Kind().String()
}

func describeAction(a bridge.Action) string {
	if a.Verdict != bridge.VerdictPublish {
		return a.Verdict.String()
	}
	_, r, err := telemetry.Decode(a.Payload)
	if err != nil {
		return a.String()
	}
	return "publish topic=" + a.Topic + " " + r.String()
}
