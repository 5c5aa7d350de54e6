package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/bluebuzzah/firmware/internal/menu"
)

// runREPL drives the menu surface from a local readline prompt. It is the
// same Router the link routes remote commands to, so anything the phone
// connection can do, the local operator can do.
func runREPL(ctx context.Context, prompt string, handler menu.Handler) {
	rl, err := readline.New(prompt)
	if err != nil {
		fmt.Println("interactive mode unavailable:", err)
		return
	}
	defer rl.Close()

	go func() {
		<-ctx.Done()
		rl.Close()
	}()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF || ctx.Err() != nil {
			return
		}
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			return
		}
		fmt.Println(handler.Handle(line))
	}
}
