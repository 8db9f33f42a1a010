package cli

import (
	"bufio"
	"context"
	"os"

	"github.com/c-bata/go-prompt"
	"github.com/mattn/go-isatty"
)

// MainLoop calls exec for every input line.
// Terminal gets interactive prompt with completion, pipe is read until EOF or ctx done.
func MainLoop(ctx context.Context, tag string, exec func(line string), complete func(d prompt.Document) []prompt.Suggest) {
	if isatty.IsTerminal(os.Stdin.Fd()) {
		// TODO OptionHistory
		prompt.New(exec, complete, prompt.OptionPrefix(tag+"> ")).Run()
		return
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		s := bufio.NewScanner(os.Stdin)
		s.Buffer(make([]byte, 64<<10), 1<<20)
		for s.Scan() {
			lines <- s.Text()
		}
	}()
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return
			}
			exec(line)
		case <-ctx.Done():
			return
		}
	}
}
