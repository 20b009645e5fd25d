package main

import (
	"bufio"
	"context"
	"io"

	"github.com/hpcloud/tail"

	"github.com/szibis/logship/internal/logging"
)

// maxLineBytes bounds a single line read from standard input.
const maxLineBytes = 1024 * 1024

// readLines calls emit for every line of r until EOF or ctx is done. The
// scanner runs in its own goroutine because a blocked Read cannot be
// interrupted; it exits when r does.
func readLines(ctx context.Context, r io.Reader, emit func(string)) error {
	lines := make(chan string)
	errc := make(chan error, 1)

	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					return err
				default:
					return nil
				}
			}
			emit(line)
		}
	}
}

// followFile tails path from its current end, surviving rotation, until
// ctx is done.
func followFile(ctx context.Context, path string, emit func(string)) error {
	t, err := tail.TailFile(path, tail.Config{
		Follow:   true,
		ReOpen:   true,
		Poll:     true,
		Location: &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
		Logger:   tail.DiscardingLogger,
	})
	if err != nil {
		return err
	}
	defer t.Cleanup()

	for {
		select {
		case <-ctx.Done():
			_ = t.Stop()
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line.Err != nil {
				logging.Warn("tail error", logging.F("path", path, "error", line.Err.Error()))
				continue
			}
			emit(line.Text)
		}
	}
}
