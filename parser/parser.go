package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Protocol is the header sent by both sides: text format, version 01
const Protocol = "TXT01"

// Command words
const (
	CmdMatch    = "match"     // "text match
	CmdMatchExp = "match-exp" // "experience match-exp
	CmdApp      = "app"       // "id app
	CmdApps     = "apps"
	CmdSlugs    = "slugs"
	CmdReindex  = "reindex"
	CmdStats    = "stats"
)

var commands = map[string]struct{}{
	CmdMatch:    {},
	CmdMatchExp: {},
	CmdApp:      {},
	CmdApps:     {},
	CmdSlugs:    {},
	CmdReindex:  {},
	CmdStats:    {},
}

var (
	ErrInvalidHeader      = errors.New("invalid header")
	ErrUnsupportedVersion = errors.New("unsupported protocol version")
	ErrSyntax             = errors.New("parse error")
)

// ValueType represents the type of a value on the stack
type ValueType int

const (
	TypeString ValueType = iota
	TypeInt
	TypeBool
)

// Value represents a value on the stack
type Value struct {
	Type ValueType
	Str  string
	Int  int64
	Bool bool
}

// Command represents a parsed command
type Command struct {
	Name string
	Args []Value
}

// StringArg returns the i-th argument when it is a string
func (c *Command) StringArg(i int) (string, bool) {
	if i < 0 || i >= len(c.Args) || c.Args[i].Type != TypeString {
		return "", false
	}
	return c.Args[i].Str, true
}

// Parser parses Forth-style commands
type Parser struct {
	reader  *bufio.Reader
	version string
}

// NewParser reads the protocol header and returns a parser for the commands after it
func NewParser(reader io.Reader) (*Parser, error) {
	p := &Parser{
		reader: bufio.NewReader(reader),
	}

	header := make([]byte, len(Protocol))
	if _, err := io.ReadFull(p.reader, header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}
	if string(header[:3]) != "TXT" {
		return nil, fmt.Errorf("%w: unsupported format %q", ErrInvalidHeader, header[:3])
	}

	p.version = string(header[3:])
	if p.version != Protocol[3:] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVersion, p.version)
	}

	return p, nil
}

// ParseCommand parses the next command from input. Values are pushed on a
// stack until a command word pops them as its arguments.
func (p *Parser) ParseCommand() (*Command, error) {
	stack := make([]Value, 0)

	for {
		line, err := p.reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, err
		}
		eof := err == io.EOF

		line = strings.TrimSpace(line)

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			if eof {
				return nil, io.EOF
			}
			continue
		}

		if _, ok := commands[line]; ok {
			return &Command{Name: line, Args: stack}, nil
		}

		value, err := parseValue(line)
		if err != nil {
			return nil, err
		}
		stack = append(stack, value)

		// Values without a command word are dropped
		if eof {
			return nil, io.EOF
		}
	}
}

func parseValue(line string) (Value, error) {
	// String value (prefixed with ")
	if after, ok := strings.CutPrefix(line, `"`); ok {
		return Value{Type: TypeString, Str: after}, nil
	}

	// Boolean literals (t/f)
	switch line {
	case "t":
		return Value{Type: TypeBool, Bool: true}, nil
	case "f":
		return Value{Type: TypeBool, Bool: false}, nil
	}

	if intVal, err := strconv.ParseInt(line, 10, 64); err == nil {
		return Value{Type: TypeInt, Int: intVal}, nil
	}

	return Value{}, fmt.Errorf("%w: cannot parse value: %s", ErrSyntax, line)
}

// ReadAllCommands reads all commands from the parser
func (p *Parser) ReadAllCommands() ([]*Command, error) {
	var commands []*Command

	for {
		cmd, err := p.ParseCommand()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		commands = append(commands, cmd)
	}

	return commands, nil
}
