package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// execIface is the command surface of the shell. App implements it; tests
// use a stub.
type execIface interface {
	Download(ctx context.Context, args []string) error
	Cancel(args []string) error
	Play(ctx context.Context, args []string) error
	Pause() error
	Resume() error
	Stop() error
	Seek(args []string) error
	Rate(args []string) error
	Retry(ctx context.Context) error
	Status(args []string) error
	List() error
	Size() error
	Remove(ctx context.Context, args []string) error
	RemoveAll(ctx context.Context) error
	printf(format string, args ...any)
}

const helpText = "Available commands: download, cancel, play, pause, resume, stop, seek, rate, retry, status, list, size, remove, removeall, exit"

var errUsage = errors.New("usage")

// runREPL dispatches one command per line until EOF, "exit"/"quit" or ctx
// is done. Handler errors are printed and the loop goes on.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		if ctx.Err() != nil {
			return
		}
		a.printf("ak %s> ", statusFn())

		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			a.printf("\n")
			return
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			a.printf("%s\n", helpText)
			continue
		case "exit", "quit":
			a.printf("Bye!\n")
			return
		}

		err = dispatch(ctx, a, cmd, args)
		switch {
		case errors.Is(err, errUsage):
			a.printf("%v\n", err)
		case err != nil:
			a.printf("error: %v\n", err)
		}
	}
}

func dispatch(ctx context.Context, a execIface, cmd string, args []string) error {
	switch cmd {
	case "download":
		return a.Download(ctx, args)
	case "cancel":
		return a.Cancel(args)
	case "play":
		return a.Play(ctx, args)
	case "pause":
		return a.Pause()
	case "resume":
		return a.Resume()
	case "stop":
		return a.Stop()
	case "seek":
		return a.Seek(args)
	case "rate":
		return a.Rate(args)
	case "retry":
		return a.Retry(ctx)
	case "status":
		return a.Status(args)
	case "l", "list":
		return a.List()
	case "size":
		return a.Size()
	case "remove":
		return a.Remove(ctx, args)
	case "removeall":
		return a.RemoveAll(ctx)
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func usage(s string) error {
	return fmt.Errorf("%w: %s", errUsage, s)
}
