package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"distritree/pkg/client"
	"distritree/pkg/common"
	"distritree/pkg/core/serialize"
)

type dialFunc func() (*client.Client, error)

func parseKey(s string) (common.KeyType, error) {
	k, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("key must be an integer (e.g. 1001), got %q", s)
	}
	return common.KeyType(k), nil
}

func withClient(connect dialFunc, fn func(cli *client.Client) error) error {
	cli, err := connect()
	if err != nil {
		return err
	}
	defer cli.Close()
	return fn(cli)
}

func newInsertCmd(connect dialFunc) *cobra.Command {
	var showTree bool
	cmd := &cobra.Command{
		Use:     "insert <key> <value...>",
		Aliases: []string{"put", "set"},
		Short:   "Insert or overwrite a key",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseKey(args[0])
			if err != nil {
				return err
			}
			return withClient(connect, func(cli *client.Client) error {
				return doInsert(cmd.OutOrStdout(), cli, key, strings.Join(args[1:], " "), showTree)
			})
		},
	}
	cmd.Flags().BoolVar(&showTree, "tree", false, "Print the tree after the insert")
	return cmd
}

func newSearchCmd(connect dialFunc) *cobra.Command {
	var linear bool
	cmd := &cobra.Command{
		Use:     "search <key>",
		Aliases: []string{"get"},
		Short:   "Look a key up and report the nodes visited",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseKey(args[0])
			if err != nil {
				return err
			}
			return withClient(connect, func(cli *client.Client) error {
				return doSearch(cmd.OutOrStdout(), cli, key, !linear)
			})
		},
	}
	cmd.Flags().BoolVar(&linear, "scan", false, "Walk the leaf chain instead of descending the index")
	return cmd
}

func newRangeCmd(connect dialFunc) *cobra.Command {
	var linear bool
	cmd := &cobra.Command{
		Use:   "range <start> <end>",
		Short: "List the keys in [start, end]",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := parseKey(args[0])
			if err != nil {
				return err
			}
			end, err := parseKey(args[1])
			if err != nil {
				return err
			}
			return withClient(connect, func(cli *client.Client) error {
				return doRange(cmd.OutOrStdout(), cli, start, end, !linear)
			})
		},
	}
	cmd.Flags().BoolVar(&linear, "scan", false, "Walk the leaf chain from the leftmost leaf")
	return cmd
}

func newTreeCmd(connect dialFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "tree",
		Short: "Print the current tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(connect, func(cli *client.Client) error {
				return doTree(cmd.OutOrStdout(), cli)
			})
		},
	}
}

func newClearCmd(connect dialFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop every key and start a fresh tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(connect, func(cli *client.Client) error {
				if err := cli.Clear(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Cleared.")
				return nil
			})
		},
	}
}

func doInsert(w io.Writer, cli *client.Client, key common.KeyType, value string, showTree bool) error {
	start := time.Now()
	resp, err := cli.Insert(key, []byte(value))
	if err != nil {
		return err
	}
	verb := "Inserted"
	if resp.Replaced {
		verb = "Overwrote"
	}
	fmt.Fprintf(w, "%s %d at %s, shard %d (io_cost=%d, %v)\n", verb, key, resp.Location.NodeID, resp.Location.Shard, resp.IOCost, time.Since(start))
	if showTree {
		fmt.Fprint(w, serialize.Render(resp.Tree))
	}
	return nil
}

func doSearch(w io.Writer, cli *client.Client, key common.KeyType, optimized bool) error {
	start := time.Now()
	resp, err := cli.Search(key, optimized)
	if err != nil {
		return err
	}
	duration := time.Since(start)

	if resp.Found {
		fmt.Fprintf(w, "%q in %s (%v)\n", resp.Result.Value, resp.Result.NodeID, duration)
	} else {
		fmt.Fprintf(w, "(not found) (%v)\n", duration)
	}
	printCost(w, resp.Method, resp.IOCost, resp.PathTaken)
	return nil
}

func doRange(w io.Writer, cli *client.Client, start, end common.KeyType, optimized bool) error {
	fmt.Fprintf(w, "Scanning range [%d, %d]...\n", start, end)
	t0 := time.Now()
	resp, err := cli.Range(start, end, optimized)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Found %d keys (%v):\n", len(resp.Results), time.Since(t0))
	for i, k := range resp.Results {
		if i >= 20 {
			fmt.Fprintf(w, "... and %d more\n", len(resp.Results)-20)
			break
		}
		fmt.Fprintf(w, "  [%d]\n", k)
	}
	printCost(w, resp.Method, resp.IOCost, resp.PathTaken)
	return nil
}

func doTree(w io.Writer, cli *client.Client) error {
	snap, err := cli.Snapshot()
	if err != nil {
		return err
	}
	fmt.Fprint(w, serialize.Render(snap))
	st := serialize.Shape(snap)
	fmt.Fprintf(w, "height=%d nodes=%d leaves=%d keys=%d\n", st.Height, st.Nodes, st.Leaves, st.Keys)
	return nil
}

func printCost(w io.Writer, method string, ioCost int, path []common.NodeID) {
	hops := make([]string, len(path))
	for i, id := range path {
		hops[i] = id.String()
	}
	fmt.Fprintf(w, "  method:  %s\n  io_cost: %d\n  path:    %s\n", method, ioCost, strings.Join(hops, " -> "))
}
