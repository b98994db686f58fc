package main

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/0xADE/ade-appsd/client/apps"
	"github.com/0xADE/ade-appsd/internal/config"
)

func main() {
	app := &cli.App{
		Name:  "ade-apps-cli",
		Usage: "Query the installed apps index of ade-apps-ctld",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "socket",
				Aliases: []string{"s"},
				Usage:   "Path to the ade-apps-ctld socket",
				EnvVars: []string{"ADE_APPSD_SOCK"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "match",
				Usage:     "List apps whose name or tags match a query",
				ArgsUsage: "<query>",
				Action: withClient(func(c *cli.Context, client *apps.Client) error {
					if c.NArg() == 0 {
						return cli.Exit("match requires a query", 1)
					}
					m, err := client.Match(strings.Join(c.Args().Slice(), " "))
					if err != nil {
						return err
					}
					printMatches(m)
					return nil
				}),
			},
			{
				Name:      "match-exp",
				Usage:     "List apps for a marketplace experience",
				ArgsUsage: "<experience-id>",
				Action: withClient(func(c *cli.Context, client *apps.Client) error {
					if c.NArg() != 1 {
						return cli.Exit("match-exp requires one experience id", 1)
					}
					m, err := client.MatchExperience(c.Args().First())
					if err != nil {
						return err
					}
					printMatches(m)
					return nil
				}),
			},
			{
				Name:      "app",
				Usage:     "Show one installed app",
				ArgsUsage: "<id>",
				Action: withClient(func(c *cli.Context, client *apps.Client) error {
					if c.NArg() != 1 {
						return cli.Exit("app requires one id", 1)
					}
					info, err := client.App(c.Args().First())
					if apps.IsNotFound(err) {
						return cli.Exit(fmt.Sprintf("%s is not installed", c.Args().First()), 2)
					}
					if err != nil {
						return err
					}
					fmt.Printf("id: %s\nname: %s\nicon: %s\napp-url: %s\nslug: %s\n",
						info.ID, info.Name, info.Icon, info.AppURL, info.Slug)
					return nil
				}),
			},
			{
				Name:  "apps",
				Usage: "List all installed apps",
				Action: withClient(func(c *cli.Context, client *apps.Client) error {
					list, err := client.Apps()
					if err != nil {
						return err
					}
					for _, a := range list {
						fmt.Printf("%s %s\n", a.ID, a.Name)
					}
					return nil
				}),
			},
			{
				Name:  "slugs",
				Usage: "List catalog slugs of installed apps",
				Action: withClient(func(c *cli.Context, client *apps.Client) error {
					slugs, err := client.Slugs()
					if err != nil {
						return err
					}
					for _, s := range slugs {
						fmt.Println(s)
					}
					return nil
				}),
			},
			{
				Name:  "reindex",
				Usage: "Rebuild the index now",
				Action: withClient(func(c *cli.Context, client *apps.Client) error {
					n, err := client.Reindex()
					if err != nil {
						return err
					}
					fmt.Printf("indexed: %d\n", n)
					return nil
				}),
			},
			{
				Name:  "stats",
				Usage: "Show index counters",
				Action: withClient(func(c *cli.Context, client *apps.Client) error {
					stats, err := client.Stats()
					if err != nil {
						return err
					}
					keys := make([]string, 0, len(stats))
					for k := range stats {
						keys = append(keys, k)
					}
					sort.Strings(keys)
					for _, k := range keys {
						fmt.Printf("%s: %s\n", k, stats[k])
					}
					return nil
				}),
			},
			{
				Name:   "interactive",
				Usage:  "Send raw protocol commands read from stdin",
				Action: withClient(runInteractive),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func withClient(fn func(*cli.Context, *apps.Client) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		socket := c.String("socket")
		if socket == "" {
			var err error
			if socket, err = config.SocketPath(); err != nil {
				return err
			}
		}

		client, err := apps.Dial(socket)
		if err != nil {
			return err
		}
		defer client.Close()
		return fn(c, client)
	}
}

func printMatches(m apps.Matches) {
	fmt.Printf("list-len: %d\nsignature: %s\n\n", len(m.Apps), m.Signature)
	for _, a := range m.Apps {
		fmt.Printf("%s %s\n", a.ID, a.Name)
	}
}

// runInteractive reads "<command> [args...]" lines and prints raw responses
func runInteractive(_ *cli.Context, client *apps.Client) error {
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Println("Interactive mode. Type commands or 'exit' to quit.")
	fmt.Print("> ")

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "exit" || line == "quit" {
			break
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			fmt.Print("> ")
			continue
		}

		args := make([]string, len(parts)-1)
		for i, arg := range parts[1:] {
			args[i] = apps.FormatArgument(arg)
		}

		resp, err := client.Do(parts[0], args...)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		} else {
			keys := make([]string, 0, len(resp.Attrs))
			for k := range resp.Attrs {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("%s: %s\n", k, resp.Attrs[k])
			}
			fmt.Println()
			for _, b := range resp.Body {
				fmt.Println(b)
			}
		}

		fmt.Print("> ")
	}

	return scanner.Err()
}
