package bus

import (
	"fmt"
	"time"

	"github.com/256dpi/gomqtt/packet"
)

func defaultString(main, def string) string {
	if main == "" {
		return def
	}
	return main
}

func keepaliveAndHalf(sec uint16) time.Duration {
	d := time.Duration(sec) * time.Second
	return d + d/2
}

// PacketString prints PUBLISH payload as hex.
func PacketString(p packet.Generic) string {
	if p == nil {
		return "(nil)"
	}
	if pub, ok := p.(*packet.Publish); ok {
		m := &pub.Message
		return fmt.Sprintf("<Publish ID=%d Topic=%q QOS=%d Payload=%x>", pub.ID, m.Topic, m.QOS, m.Payload)
	}
	return p.String()
}
