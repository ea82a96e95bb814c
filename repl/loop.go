package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rudderlabs/rudder-go-kit/logger"
)

var ErrFatal = errors.New("fatal error")

type executor interface {
	Execute(ctx context.Context, cmd Command) error
}

// Loop reads commands line by line and executes them one at a time.
type Loop struct {
	in       io.Reader
	prompt   bool
	console  *Console
	executor executor
	logger   logger.Logger
}

func NewLoop(in io.Reader, prompt bool, console *Console, executor executor, log logger.Logger) *Loop {
	return &Loop{
		in:       in,
		prompt:   prompt,
		console:  console,
		executor: executor,
		logger:   log.Child("loop"),
	}
}

// Run returns nil after an exit command or the end of the input, ctx.Err() when the
// context is cancelled and an ErrFatal wrapped error if command processing panicked.
func (l *Loop) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(l.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
		close(lines)
	}()

	for {
		if l.prompt {
			l.console.Prompt()
		}

		var err error
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				if err := <-readErr; err != nil {
					return fmt.Errorf("reading input: %w", err)
				}
				l.logger.Infow("end of input, exiting")
				err = l.execute(ctx, Exit{})
			} else {
				err = l.handle(ctx, line)
			}
		}

		switch {
		case err == nil:
		case errors.Is(err, ErrExit):
			return nil
		default:
			return err
		}
	}
}

func (l *Loop) handle(ctx context.Context, line string) error {
	cmd, err := Parse(line)
	if err != nil {
		l.console.Error(err)
		return nil
	}
	return l.execute(ctx, cmd)
}

func (l *Loop) execute(ctx context.Context, cmd Command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Errorw("command panicked", "command", fmt.Sprintf("%T", cmd), "panic", r)
			err = fmt.Errorf("%w: %v", ErrFatal, r)
		}
	}()
	return l.executor.Execute(ctx, cmd)
}
