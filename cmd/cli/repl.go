package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"distritree/pkg/client"
)

const Prompt = "distritree> "

func newReplCmd(connect dialFunc, addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Interactive shell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("distritree CLI (Target: %s)\n", *addr)
			fmt.Println("Connecting...")
			return withClient(connect, func(cli *client.Client) error {
				fmt.Println("Connected! Type 'help' for commands.")
				repl(os.Stdin, cmd.OutOrStdout(), cli)
				return nil
			})
		},
	}
}

func repl(in io.Reader, out io.Writer, cli *client.Client) {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, Prompt)
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])

		var err error
		switch cmd {
		case "insert", "put", "set":
			if len(parts) < 3 {
				fmt.Fprintln(out, "Usage: insert <key_int> <value_string>")
				continue
			}
			key, perr := parseKey(parts[1])
			if perr != nil {
				err = perr
				break
			}
			err = doInsert(out, cli, key, strings.Join(parts[2:], " "), false)
		case "search", "get", "scan":
			if len(parts) < 2 {
				fmt.Fprintf(out, "Usage: %s <key_int>\n", cmd)
				continue
			}
			key, perr := parseKey(parts[1])
			if perr != nil {
				err = perr
				break
			}
			err = doSearch(out, cli, key, cmd != "scan")
		case "range":
			if len(parts) < 3 {
				fmt.Fprintln(out, "Usage: range <start_key> <end_key>")
				continue
			}
			start, perr := parseKey(parts[1])
			if perr != nil {
				err = perr
				break
			}
			end, perr := parseKey(parts[2])
			if perr != nil {
				err = perr
				break
			}
			err = doRange(out, cli, start, end, true)
		case "tree":
			err = doTree(out, cli)
		case "clear":
			err = cli.Clear()
			if err == nil {
				fmt.Fprintln(out, "Cleared.")
			}
		case "help":
			printHelp(out)
		case "exit", "quit":
			fmt.Fprintln(out, "Bye!")
			return
		default:
			fmt.Fprintf(out, "Unknown command: '%s'. Type 'help'.\n", cmd)
		}
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
		}
	}
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, `
Commands:
  insert <key> <value>   Insert/overwrite a key
  search <key>           Indexed lookup
  scan <key>             Linear lookup along the leaf chain
  range <start> <end>    Range query (inclusive)
  tree                   Print the tree
  clear                  Drop every key
  exit                   Exit CLI
	`)
}
