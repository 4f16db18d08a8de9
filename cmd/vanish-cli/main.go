// vanish-cli shares and retrieves secrets through a running vanish server.
//
//	vanish-cli share [--ttl MINUTES] [--views N] <text>
//	vanish-cli get <id|url>
//
// The server address comes from --url or VANISH_URL (default
// http://localhost:3000). Passing "-" as the text reads it from stdin.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/haukened/vanish/internal/httpx"
)

const defaultServer = "http://localhost:3000"

var errUsage = errors.New("usage: vanish-cli <share|get> [flags] <arg>")

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr, os.Getenv); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// client is a thin JSON client for the vanish HTTP API.
type client struct {
	base string
	http *http.Client
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer, getenv func(string) string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]

	fs := pflag.NewFlagSet("vanish-cli "+cmd, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	server := getenv("VANISH_URL")
	if server == "" {
		server = defaultServer
	}
	fs.StringVar(&server, "url", server, "vanish server base URL (env VANISH_URL)")
	timeout := fs.Duration("timeout", 10*time.Second, "request timeout")

	switch cmd {
	case "share":
		ttl := fs.Int("ttl", 0, "minutes until the secret expires (server default when 0)")
		views := fs.Int("views", 0, "number of allowed views (server default when 0)")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			return errUsage
		}
		text := fs.Arg(0)
		if text == "-" {
			b, err := io.ReadAll(stdin)
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			text = strings.TrimSuffix(string(b), "\n")
		}
		c := &client{base: strings.TrimRight(server, "/"), http: &http.Client{Timeout: *timeout}}
		res, err := c.share(ctx, text, positive(*ttl), positive(*views))
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, res.URL)
		fmt.Fprintf(stderr, "id %s, %d view(s), expires %s\n", res.ID, res.MaxViews, res.ExpiresAt.Local().Format(time.RFC1123))
		return nil
	case "get":
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			return errUsage
		}
		id, err := secretID(fs.Arg(0))
		if err != nil {
			return err
		}
		c := &client{base: strings.TrimRight(server, "/"), http: &http.Client{Timeout: *timeout}}
		res, err := c.get(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, res.Secret)
		fmt.Fprintf(stderr, "%d view(s) remaining\n", res.RemainingViews)
		return nil
	}
	return errUsage
}

// positive returns nil for unset flags so the server applies its defaults.
func positive(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}

// secretID accepts a bare id or a share link ending in /secret/<id>.
func secretID(arg string) (string, error) {
	if !strings.Contains(arg, "/") {
		return arg, nil
	}
	u, err := url.Parse(arg)
	if err != nil {
		return "", fmt.Errorf("parse link: %w", err)
	}
	id := path.Base(strings.TrimRight(u.Path, "/"))
	if id == "." || id == "/" || id == "" {
		return "", fmt.Errorf("no secret id in %q", arg)
	}
	return id, nil
}

func (c *client) share(ctx context.Context, text string, ttl, views *int) (httpx.ShareResponse, error) {
	var out httpx.ShareResponse
	body, err := json.Marshal(httpx.ShareRequest{Secret: &text, ExpireMinutes: ttl, MaxViews: views})
	if err != nil {
		return out, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/share", bytes.NewReader(body))
	if err != nil {
		return out, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return out, c.do(req, http.StatusCreated, &out)
}

func (c *client) get(ctx context.Context, id string) (httpx.RetrieveResponse, error) {
	var out httpx.RetrieveResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/secret/"+url.PathEscape(id), nil)
	if err != nil {
		return out, err
	}
	req.Header.Set("Accept", "application/json")
	return out, c.do(req, http.StatusOK, &out)
}

// do sends req and decodes a want-status JSON body into out. Other statuses
// surface the server's error message.
func (c *client) do(req *http.Request, want int, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		var er httpx.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&er) != nil || er.Error == "" {
			er.Error = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, er.Error)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
