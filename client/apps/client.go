package apps

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
)

const protoVer = "TXT01" // cmdlist protocol, text format, v01

// Application is one line of a list response
type Application struct {
	ID   string
	Name string
}

// Matches is the answer to a match or match-exp command
type Matches struct {
	Apps      []Application
	Signature string
}

// AppInfo describes one installed app
type AppInfo struct {
	ID     string
	Name   string
	Icon   string
	AppURL string
	Slug   string
}

// Response is a parsed server response
type Response struct {
	Attrs map[string]string
	Body  []string
}

// ServerError is an error response from the daemon
type ServerError struct {
	Cmd  string
	Kind string
	Desc string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: %s: %s (%s)", e.Cmd, e.Kind, e.Desc)
}

// IsNotFound reports whether err is the daemon's answer for an unknown app id
func IsNotFound(err error) bool {
	var se *ServerError
	return errors.As(err, &se) && se.Kind == "not found"
}

// Client handles connection to ade-apps-ctld
type Client struct {
	conn   net.Conn
	reader *bufio.Reader
	mu     sync.Mutex
}

// Dial connects to the daemon socket and sends the protocol header
func Dial(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to socket %s: %w", socketPath, err)
	}

	c, err := NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// NewClient speaks the protocol over an established connection
func NewClient(conn net.Conn) (*Client, error) {
	if _, err := conn.Write([]byte(protoVer)); err != nil {
		return nil, fmt.Errorf("failed to send header: %w", err)
	}
	return &Client{
		conn:   conn,
		reader: bufio.NewReader(conn),
	}, nil
}

// Close closes the connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// FormatArgument formats an argument according to its type
func FormatArgument(arg string) string {
	arg = strings.TrimSpace(arg)

	// If starts with ", it's a string (keep prefix)
	if strings.HasPrefix(arg, `"`) {
		return arg
	}

	// Check for boolean literals
	if arg == "t" || arg == "f" {
		return arg
	}

	// Check if it's numeric (all digits)
	if _, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return arg
	}

	// Default: treat as string (add prefix)
	return `"` + arg
}

// Do sends a command with already formatted arguments and reads its response.
// Error responses are returned as *ServerError.
func (c *Client) Do(cmdName string, args ...string) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder
	for _, arg := range args {
		b.WriteString(arg)
		b.WriteByte('\n')
	}
	b.WriteString(cmdName)
	b.WriteByte('\n')

	if _, err := io.WriteString(c.conn, b.String()); err != nil {
		return Response{}, fmt.Errorf("failed to send command: %w", err)
	}

	resp, err := readResponse(c.reader)
	if err != nil {
		return Response{}, fmt.Errorf("failed to read response: %w", err)
	}
	if kind, ok := resp.Attrs["error"]; ok {
		return resp, &ServerError{Cmd: resp.Attrs["error-cmd"], Kind: kind, Desc: resp.Attrs["desc"]}
	}
	return resp, nil
}

// Match lists installed apps whose name or tags match text
func (c *Client) Match(text string) (Matches, error) {
	return c.matches("match", text)
}

// MatchExperience lists installed apps for a marketplace experience
func (c *Client) MatchExperience(experienceID string) (Matches, error) {
	return c.matches("match-exp", experienceID)
}

func (c *Client) matches(cmd, arg string) (Matches, error) {
	resp, err := c.Do(cmd, quote(arg))
	if err != nil {
		return Matches{}, err
	}
	return Matches{Apps: applications(resp.Body), Signature: resp.Attrs["signature"]}, nil
}

// App returns the record of one installed app
func (c *Client) App(id string) (AppInfo, error) {
	resp, err := c.Do("app", quote(id))
	if err != nil {
		return AppInfo{}, err
	}
	return AppInfo{
		ID:     resp.Attrs["id"],
		Name:   resp.Attrs["name"],
		Icon:   resp.Attrs["icon"],
		AppURL: resp.Attrs["app-url"],
		Slug:   resp.Attrs["slug"],
	}, nil
}

// Apps lists every installed app
func (c *Client) Apps() ([]Application, error) {
	resp, err := c.Do("apps")
	if err != nil {
		return nil, err
	}
	return applications(resp.Body), nil
}

// Slugs lists the catalog slugs of installed apps
func (c *Client) Slugs() ([]string, error) {
	resp, err := c.Do("slugs")
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Reindex rebuilds the index and returns the number of indexed apps
func (c *Client) Reindex() (int, error) {
	resp, err := c.Do("reindex")
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(resp.Attrs["indexed"])
}

// Stats returns the daemon counters as reported
func (c *Client) Stats() (map[string]string, error) {
	resp, err := c.Do("stats")
	if err != nil {
		return nil, err
	}
	return resp.Attrs, nil
}

// quote always sends s as a string value
func quote(s string) string {
	return `"` + s
}

func applications(lines []string) []Application {
	apps := make([]Application, 0, len(lines))
	for _, line := range lines {
		id, name, _ := strings.Cut(line, " ")
		if id == "" {
			continue
		}
		apps = append(apps, Application{ID: id, Name: name})
	}
	return apps
}

// readResponse reads the header, the attrs block up to a blank line and
// as many body lines as the lines attr announces
func readResponse(reader *bufio.Reader) (Response, error) {
	header := make([]byte, len(protoVer))
	if _, err := io.ReadFull(reader, header); err != nil {
		return Response{}, fmt.Errorf("failed to read response header: %w", err)
	}
	if string(header) != protoVer {
		return Response{}, fmt.Errorf("unexpected response header %q", header)
	}

	resp := Response{Attrs: make(map[string]string)}
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return Response{}, fmt.Errorf("read error: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		key, value, ok := strings.Cut(line, ":")
		if ok {
			resp.Attrs[strings.TrimSpace(key)] = strings.TrimSpace(value)
		}
	}

	n, err := strconv.Atoi(resp.Attrs["lines"])
	if err != nil {
		return resp, nil
	}
	resp.Body = make([]string, 0, n)
	for range n {
		line, err := reader.ReadString('\n')
		if err != nil {
			return Response{}, fmt.Errorf("read error: %w", err)
		}
		resp.Body = append(resp.Body, strings.TrimRight(line, "\r\n"))
	}
	return resp, nil
}
