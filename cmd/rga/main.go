package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/ergochat/readline"

	rga "github.com/melatron/crdt-rga"
	"github.com/melatron/crdt-rga/lamport"
	"github.com/melatron/crdt-rga/protocol"
	"github.com/melatron/crdt-rga/server"
	"github.com/melatron/crdt-rga/store"
	"github.com/melatron/crdt-rga/utils"
)

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),

	readline.PcItem("insert"),
	readline.PcItem("del"),
	readline.PcItem("text"),
	readline.PcItem("nodes"),
	readline.PcItem("fp"),

	readline.PcItem("listen"),
	readline.PcItem("connect"),

	readline.PcItem("serve"),
	readline.PcItem("save"),
	readline.PcItem("load"),

	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

const usage = `commands:
  insert <after-id|-> <text>   insert text after a node (- for start)
  del <id>                     tombstone a node
  text                         print the document
  nodes                        dump every node, tombstones included
  fp                           print the convergence fingerprint
  listen <addr>                accept replication peers (tcp:// or tls://)
  connect <addr>               replicate with a peer
  serve <addr>                 start the websocket shell
  save <dir> | load <dir>      persist / restore via the pebble log
  exit | quit
`

type cli struct {
	replica *rga.Replica
	log     utils.Logger
	net     *protocol.Net
	ctx     context.Context
}

func (c *cli) depot() *protocol.Net {
	if c.net == nil {
		c.net = protocol.NewNet(c.log,
			func(name string) protocol.FeedDrainCloser {
				return &rga.Syncer{Host: c.replica, Name: name}
			},
			func(name string) {},
		)
	}
	return c.net
}

func (c *cli) run(cmd string, args []string) error {
	switch cmd {
	case "help":
		fmt.Print(usage)
	case "insert":
		if len(args) < 2 {
			return fmt.Errorf("insert <after-id|-> <text>")
		}
		anchor := c.replica.SentinelStart()
		if args[0] != "-" {
			parsed, ok := lamport.TimeFromString(args[0])
			if !ok {
				return fmt.Errorf("bad id %s", args[0])
			}
			anchor = parsed
		}
		for _, ch := range strings.Join(args[1:], " ") {
			id, err := c.replica.InsertAfter(anchor, ch)
			if err != nil {
				return err
			}
			anchor = id
		}
		fmt.Println(anchor.String())
	case "del":
		if len(args) != 1 {
			return fmt.Errorf("del <id>")
		}
		id, ok := lamport.TimeFromString(args[0])
		if !ok {
			return fmt.Errorf("bad id %s", args[0])
		}
		return c.replica.Delete(id)
	case "text", "show":
		fmt.Println(c.replica.String())
	case "nodes":
		for _, n := range c.replica.AllNodes() {
			status := "live"
			if n.Sentinel {
				status = "sentinel"
			} else if n.Deleted {
				status = "tombstone"
			}
			fmt.Printf("%s\torigin %s\t%q\t%s\n", n.ID.String(), n.Origin.String(), n.Char, status)
		}
	case "fp":
		fmt.Printf("%x\n", c.replica.Fingerprint())
	case "listen":
		if len(args) != 1 {
			return fmt.Errorf("listen <addr>")
		}
		return c.depot().Listen(c.ctx, args[0])
	case "connect":
		if len(args) != 1 {
			return fmt.Errorf("connect <addr>")
		}
		return c.depot().Connect(c.ctx, args[0])
	case "serve":
		if len(args) != 1 {
			return fmt.Errorf("serve <addr>")
		}
		srv, err := server.New(server.Options{Src: c.replica.Src(), Logger: c.log})
		if err != nil {
			return err
		}
		go func() {
			if err := http.ListenAndServe(args[0], srv.Router()); err != nil {
				c.log.Error("http server stopped", "err", err)
			}
		}()
		fmt.Printf("serving on %s\n", args[0])
	case "save":
		if len(args) != 1 {
			return fmt.Errorf("save <dir>")
		}
		l, err := store.Open(args[0], c.log)
		if err != nil {
			return err
		}
		defer l.Close()
		return l.Append(c.replica.SnapshotRecords())
	case "load":
		if len(args) != 1 {
			return fmt.Errorf("load <dir>")
		}
		l, err := store.Open(args[0], c.log)
		if err != nil {
			return err
		}
		defer l.Close()
		return l.LoadInto(c.replica)
	default:
		return fmt.Errorf("command unknown: %s", cmd)
	}
	return nil
}

func main() {
	src := uint64(1)
	if len(os.Args) > 1 {
		if _, err := fmt.Sscanf(os.Args[1], "%d", &src); err != nil {
			fmt.Fprintln(os.Stderr, "usage: rga <replica-id>")
			os.Exit(2)
		}
	}

	log := utils.NewDefaultLogger(slog.LevelInfo)
	replica, err := rga.New(src)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	l, err := readline.NewEx(&readline.Config{
		Prompt:          "◌ ",
		HistoryFile:     ".rga_cmd_log.txt",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		panic(err)
	}
	defer l.Close()
	l.CaptureExitSignal()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := &cli{replica: replica, log: log, ctx: ctx}

	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				break
			}
			continue
		} else if err == io.EOF {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd, args := fields[0], fields[1:]
		if cmd == "exit" || cmd == "quit" {
			break
		}
		if err := c.run(cmd, args); err != nil {
			fmt.Fprintf(os.Stderr, "error executing %s: %s\n", cmd, err.Error())
		}
	}

	if c.net != nil {
		_ = c.net.Close()
	}
	_ = replica.Close()
}
