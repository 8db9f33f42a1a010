// Support sub-commands in mavbridge application.
package subcmd

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/aerolink/mavbridge/internal/config"
	"github.com/aerolink/mavbridge/log2"
	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
)

type Env struct {
	Config *config.Config
	Log    *log2.Log
	// arguments after sub-command name
	Args []string
}

type Mod struct {
	Name  string
	Usage string
	Main  func(context.Context, *Env) error
}

func Parse(command string, modules []Mod) (*Mod, error) {
	if command == "" {
		return nil, fmt.Errorf("empty command, expected one of: %s", names(modules))
	}

	for i := range modules {
		m := &modules[i]
		if m.Name == "" {
			panic(fmt.Sprintf("code error Name='' module=%#v", m))
		}
		if command == m.Name {
			return m, nil
		}
	}
	return nil, fmt.Errorf("unknown command='%s', expected one of: %s", command, names(modules))
}

func names(modules []Mod) string {
	ss := make([]string, len(modules))
	for i, m := range modules {
		ss[i] = m.Name
	}
	return strings.Join(ss, ", ")
}

// SdNotify returns true when running under systemd.
func SdNotify(s string) bool {
	ok, err := daemon.SdNotify(false, s)
	if err != nil {
		log.Fatal("sdnotify: ", errors.ErrorStack(err))
	}
	return ok
}
