// Package reader delivers scanned credentials to the engine's poll loop.
package reader

import (
	"bufio"
	"context"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/classgate/access-server/internal/model"
)

// Reader is polled once per loop iteration and must not block.
type Reader interface {
	Poll(ctx context.Context) (model.Credential, bool, error)
}

// Feed is a buffered in-process reader. Scans pushed while the buffer is full
// are dropped, the same as a card removed before the next poll.
type Feed struct {
	scans chan model.Credential
}

func NewFeed(size int) *Feed {
	if size < 1 {
		size = 1
	}
	return &Feed{scans: make(chan model.Credential, size)}
}

// Push reports whether the scan was buffered.
func (f *Feed) Push(credential model.Credential) bool {
	select {
	case f.scans <- credential:
		return true
	default:
		log.Warn().Str("credential", credential.String()).Msg("reader buffer full, dropping scan")
		return false
	}
}

func (f *Feed) Poll(ctx context.Context) (model.Credential, bool, error) {
	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	case c := <-f.scans:
		return c, true, nil
	default:
		return "", false, nil
	}
}

// LineReader reads one tag UID per line, as keyboard-wedge and serial RFID
// readers emit them, and pushes each valid credential into a Feed.
type LineReader struct {
	src  io.Reader
	feed *Feed
}

func NewLineReader(src io.Reader, feed *Feed) *LineReader {
	return &LineReader{src: src, feed: feed}
}

// Run blocks until src is exhausted or ctx is cancelled.
func (r *LineReader) Run(ctx context.Context) error {
	lines := make(chan string)
	errc := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r.src)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					return err
				default:
					return nil
				}
			}
			credential := model.NormalizeCredential(line)
			if credential.IsZero() {
				continue
			}
			if !credential.Valid() {
				log.Warn().Str("line", line).Msg("ignoring malformed reader line")
				continue
			}
			r.feed.Push(credential)
		}
	}
}
