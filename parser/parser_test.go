package parser

import (
	"io"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("NewParser", func() {
	It("should reject a short header", func() {
		_, err := NewParser(strings.NewReader("TX"))
		Expect(err).To(MatchError(ErrInvalidHeader))
	})

	It("should reject other formats", func() {
		_, err := NewParser(strings.NewReader("BIN01apps\n"))
		Expect(err).To(MatchError(ErrInvalidHeader))
	})

	It("should reject other versions", func() {
		_, err := NewParser(strings.NewReader("TXT02apps\n"))
		Expect(err).To(MatchError(ErrUnsupportedVersion))
	})
})

var _ = Describe("ParseCommand", func() {
	var (
		input    string
		parser   *Parser
		cmd      *Command
		parseErr error
	)

	JustBeforeEach(func() {
		parser, parseErr = NewParser(strings.NewReader(input))
		Expect(parseErr).NotTo(HaveOccurred())

		cmd, parseErr = parser.ParseCommand()
		Expect(parseErr).NotTo(HaveOccurred())
	})

	Context("when parsing match with a query", func() {
		BeforeEach(func() {
			input = `TXT01
"top apps
match
`
		})

		It("should parse command name correctly", func() {
			Expect(cmd.Name).To(Equal(CmdMatch))
		})

		It("should keep spaces inside the string argument", func() {
			Expect(cmd.Args).To(HaveLen(1))
			Expect(cmd.Args[0].Type).To(Equal(TypeString))
			Expect(cmd.Args[0].Str).To(Equal("top apps"))
		})

		It("should expose the argument as a string", func() {
			q, ok := cmd.StringArg(0)
			Expect(ok).To(BeTrue())
			Expect(q).To(Equal("top apps"))

			_, ok = cmd.StringArg(1)
			Expect(ok).To(BeFalse())
		})
	})

	Context("when the header is directly followed by a command", func() {
		BeforeEach(func() {
			input = "TXT01apps\n"
		})

		It("should parse it without arguments", func() {
			Expect(cmd.Name).To(Equal(CmdApps))
			Expect(cmd.Args).To(BeEmpty())
		})
	})

	Context("when parsing typed values and comments", func() {
		BeforeEach(func() {
			input = `TXT01
# experience lookup
"
207
t
match-exp`
		})

		It("should parse the last command without a trailing newline", func() {
			Expect(cmd.Name).To(Equal(CmdMatchExp))
		})

		It("should type each value", func() {
			Expect(cmd.Args).To(Equal([]Value{
				{Type: TypeString, Str: ""},
				{Type: TypeInt, Int: 207},
				{Type: TypeBool, Bool: true},
			}))
		})
	})
})

var _ = Describe("ReadAllCommands", func() {
	It("should read commands in order until EOF", func() {
		p, err := NewParser(strings.NewReader("TXT01\n\"app://maps\napp\nstats\n\"dangling\n"))
		Expect(err).NotTo(HaveOccurred())

		cmds, err := p.ReadAllCommands()
		Expect(err).NotTo(HaveOccurred())
		Expect(cmds).To(HaveLen(2))
		Expect(cmds[0].Name).To(Equal(CmdApp))
		Expect(cmds[0].Args[0].Str).To(Equal("app://maps"))
		Expect(cmds[1].Name).To(Equal(CmdStats))
	})

	It("should report an unparsable value and continue", func() {
		p, err := NewParser(strings.NewReader("TXT01\nbogus\napps\n"))
		Expect(err).NotTo(HaveOccurred())

		_, err = p.ParseCommand()
		Expect(err).To(MatchError(ErrSyntax))
		Expect(err.Error()).To(ContainSubstring("cannot parse value: bogus"))

		cmd, err := p.ParseCommand()
		Expect(err).NotTo(HaveOccurred())
		Expect(cmd.Name).To(Equal(CmdApps))

		_, err = p.ParseCommand()
		Expect(err).To(Equal(io.EOF))
	})
})
