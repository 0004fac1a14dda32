// Package console runs the turn pipeline as a line-oriented REPL.
//
// Every input line is one turn. Lines starting with a slash are commands:
//
//	/image <path>   submit a photo file as the captured image
//	/new            start a fresh conversation
//	/history        print the conversation so far
//	/quit           exit
package console

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/MrWong99/toolroute/internal/app"
	"github.com/MrWong99/toolroute/internal/dispatch"
	"github.com/MrWong99/toolroute/internal/session"
)

const prompt = "> "

// Option is a functional option for New.
type Option func(*Console)

// WithAudioDir saves synthesized speech into dir instead of only printing its
// size.
func WithAudioDir(dir string) Option {
	return func(c *Console) { c.audioDir = dir }
}

// WithReadFile overrides how /image reads files. Defaults to [os.ReadFile].
func WithReadFile(fn func(path string) ([]byte, error)) Option {
	return func(c *Console) { c.readFile = fn }
}

// Console reads turns from in and renders envelopes to out.
type Console struct {
	app      *app.App
	in       io.Reader
	out      io.Writer
	audioDir string
	readFile func(string) ([]byte, error)

	conv *session.Conversation
}

// New creates a Console over a.
func New(a *app.App, in io.Reader, out io.Writer, opts ...Option) *Console {
	c := &Console{app: a, in: in, out: out, readFile: os.ReadFile}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Run processes input until EOF, /quit or ctx cancellation. The conversation
// is ended on return.
func (c *Console) Run(ctx context.Context) error {
	c.conv = c.app.Conversations().Create()
	defer func() { c.app.Conversations().End(c.conv.ID) }()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	fmt.Fprintln(c.out, "toolroute console. /image <path> submits a photo, /quit exits.")
	for {
		fmt.Fprint(c.out, prompt)
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(c.out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(c.out)
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("console: read input: %w", err)
					}
				default:
				}
				return nil
			}
			line = strings.TrimSpace(l)
		}

		if line == "" {
			continue
		}
		if quit := c.handle(ctx, line); quit {
			return nil
		}
	}
}

// handle runs one input line and reports whether the REPL should stop.
func (c *Console) handle(ctx context.Context, line string) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/quit", "/exit":
		return true
	case "/new":
		c.app.Conversations().End(c.conv.ID)
		c.conv = c.app.Conversations().Create()
		fmt.Fprintf(c.out, "started conversation %s\n", c.conv.ID)
	case "/history":
		snap, err := c.app.Snapshot(c.conv)
		if err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
			return false
		}
		for _, m := range snap.History {
			fmt.Fprintf(c.out, "[%s] %s\n", m.Role, m.Content)
		}
	case "/image":
		if arg == "" {
			fmt.Fprintln(c.out, "usage: /image <path>")
			return false
		}
		data, err := c.readFile(arg)
		if err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
			return false
		}
		env, err := c.app.SubmitImage(ctx, c.conv, data, contentType(arg, data))
		if err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
			return false
		}
		c.render(env)
	default:
		env, err := c.app.Turn(ctx, c.conv, line)
		if err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
			return false
		}
		c.render(env)
	}
	return false
}

func (c *Console) render(env dispatch.Envelope) {
	switch env.Kind {
	case dispatch.KindText:
		if env.Caption != "" {
			fmt.Fprintln(c.out, env.Caption)
		}
		fmt.Fprintln(c.out, env.Payload)
	case dispatch.KindImage:
		fmt.Fprintf(c.out, "%s\n%s\n", env.Caption, env.Payload)
	case dispatch.KindAudio:
		fmt.Fprintln(c.out, env.Caption)
		fmt.Fprintln(c.out, c.saveAudio(env.Payload))
	case dispatch.KindCollect:
		fmt.Fprintln(c.out, env.Payload)
		fmt.Fprintln(c.out, "(submit the photo with /image <path>)")
	case dispatch.KindError:
		if env.Caption != "" {
			fmt.Fprintf(c.out, "error: %s\n", env.Caption)
		}
		fmt.Fprintln(c.out, env.Payload)
	default:
		fmt.Fprintln(c.out, env.Text())
	}
}

// saveAudio writes a data URL to the audio directory and returns a line
// describing the outcome.
func (c *Console) saveAudio(dataURL string) string {
	meta, encoded, ok := strings.Cut(dataURL, ",")
	if !ok {
		return "[audio: malformed data URL]"
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Sprintf("[audio: %v]", err)
	}
	if c.audioDir == "" {
		return fmt.Sprintf("[audio: %d bytes]", len(data))
	}

	ext := ".mp3"
	mimeType := strings.TrimSuffix(strings.TrimPrefix(meta, "data:"), ";base64")
	if exts, _ := mime.ExtensionsByType(mimeType); len(exts) > 0 {
		ext = exts[0]
	}
	path := filepath.Join(c.audioDir, uuid.NewString()+ext)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Sprintf("[audio: %v]", err)
	}
	return "[audio saved to " + path + "]"
}

// contentType guesses the MIME type of an image file.
func contentType(path string, data []byte) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}
