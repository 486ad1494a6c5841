// quantctl is an interactive console for a quantd server.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/c-bata/go-prompt"
	"golang.org/x/term"
)

var commands = []prompt.Suggest{
	{Text: "tickers", Description: "Resolve a natural-language query to tickers"},
	{Text: "universe", Description: "Search the instrument universe"},
	{Text: "fetch", Description: "Fetch a ticker into the session (returns a handle)"},
	{Text: "pricing", Description: "Fetch tickers and publish a pricing artifact"},
	{Text: "transform", Description: "Apply an operation to stored handles"},
	{Text: "materialize", Description: "Batch transform the session table"},
	{Text: "summary", Description: "Show the session activity summary"},
	{Text: "metadata", Description: "Show session metadata"},
	{Text: "delete", Description: "Delete the session"},
	{Text: "session", Description: "Show or switch the active session"},
	{Text: "help", Description: "List commands"},
	{Text: "exit", Description: "Leave the console"},
}

var operations = []prompt.Suggest{
	{Text: "resample", Description: "Last observation per calendar bucket"},
	{Text: "pct_change", Description: "Percent change over a lag"},
	{Text: "cumulative_performance", Description: "Compounded index rebased to 100"},
	{Text: "correlation", Description: "Pearson correlation of two handles"},
}

type console struct {
	client *client
}

func main() {
	server := flag.String("server", "http://localhost:8080", "quantd server URL")
	token := flag.String("token", "", "API token (or QUANTD_TOKEN env)")
	sessionID := flag.String("session", "console", "session ID to operate on")
	flag.Parse()

	authToken := *token
	if authToken == "" {
		authToken = os.Getenv("QUANTD_TOKEN")
	}
	if authToken == "" && term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Print("API token (empty for none): ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err == nil {
			authToken = strings.TrimSpace(string(raw))
		}
	}

	c := &console{client: newClient(strings.TrimRight(*server, "/"), authToken, *sessionID)}

	if _, err := c.client.call(http.MethodGet, "/healthz", nil); err != nil {
		fmt.Fprintf(os.Stderr, "cannot reach %s: %v\n", *server, err)
		os.Exit(1)
	}

	fmt.Printf("quantctl connected to %s (session %q)\n", *server, *sessionID)
	p := prompt.New(
		c.execute,
		c.complete,
		prompt.OptionTitle("quantctl"),
		prompt.OptionPrefix("quantctl> "),
	)
	p.Run()
}

func (c *console) complete(d prompt.Document) []prompt.Suggest {
	text := d.TextBeforeCursor()
	fields := strings.Fields(text)

	if len(fields) <= 1 && !strings.HasSuffix(text, " ") {
		return prompt.FilterHasPrefix(commands, d.GetWordBeforeCursor(), true)
	}
	if len(fields) > 0 && (fields[0] == "transform" || fields[0] == "materialize") {
		return prompt.FilterHasPrefix(operations, d.GetWordBeforeCursor(), true)
	}
	return nil
}

func (c *console) execute(line string) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "exit", "quit":
		os.Exit(0)
	case "help":
		for _, s := range commands {
			fmt.Printf("  %-14s %s\n", s.Text, s.Description)
		}
	case "session":
		if len(args) == 1 {
			c.client.session = args[0]
		}
		fmt.Println("session:", c.client.session)
	case "tickers":
		c.run(http.MethodPost, "/v1/tickers", map[string]interface{}{
			"query": strings.Join(args, " "),
		})
	case "universe":
		c.run(http.MethodGet, "/v1/universe?q="+strings.Join(args, "+"), nil)
	case "fetch":
		if len(args) != 1 {
			fmt.Println("usage: fetch <ticker>")
			return
		}
		c.run(http.MethodPost, c.client.sessionPath("/fetch"), map[string]interface{}{
			"ticker": args[0],
		})
	case "pricing":
		if len(args) == 0 {
			fmt.Println("usage: pricing <ticker,ticker,...> [start] [end]")
			return
		}
		body := map[string]interface{}{
			"session_id": c.client.session,
			"tickers":    strings.Split(args[0], ","),
		}
		if len(args) > 1 {
			body["start_date"] = args[1]
		}
		if len(args) > 2 {
			body["end_date"] = args[2]
		}
		c.run(http.MethodPost, "/v1/pricing", body)
	case "transform":
		c.transform(args)
	case "materialize":
		c.materialize(args)
	case "summary":
		c.run(http.MethodGet, c.client.sessionPath("/summary"), nil)
	case "metadata":
		c.run(http.MethodGet, c.client.sessionPath("/metadata"), nil)
	case "delete":
		c.run(http.MethodDelete, c.client.sessionPath(""), nil)
	default:
		fmt.Printf("unknown command %q (try help)\n", cmd)
	}
}

// transform: transform <operation> <handle> [handle2] [key=value...]
func (c *console) transform(args []string) {
	if len(args) < 2 {
		fmt.Println("usage: transform <operation> <handle> [handle2] [frequency=M] [window=1] [start=...] [end=...]")
		return
	}

	body := map[string]interface{}{"operation": args[0]}
	var handles []string
	for _, a := range args[1:] {
		if k, v, ok := strings.Cut(a, "="); ok {
			applyParam(body, k, v)
			continue
		}
		handles = append(handles, a)
	}
	body["handles"] = handles
	c.run(http.MethodPost, "/v1/transform", body)
}

// materialize: materialize <operation> [ticker,ticker] [key=value...]
func (c *console) materialize(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: materialize <operation> [ticker,ticker] [frequency=M] [window=1] [start=...] [end=...]")
		return
	}

	body := map[string]interface{}{"operation": args[0]}
	for _, a := range args[1:] {
		if k, v, ok := strings.Cut(a, "="); ok {
			applyParam(body, k, v)
			continue
		}
		body["tickers"] = strings.Split(a, ",")
	}
	c.run(http.MethodPost, c.client.sessionPath("/materialize"), body)
}

func applyParam(body map[string]interface{}, key, value string) {
	switch key {
	case "frequency", "freq":
		body["frequency"] = value
	case "window", "lag":
		if n, err := strconv.Atoi(value); err == nil {
			body["window"] = n
		}
	case "start":
		body["start_date"] = value
	case "end":
		body["end_date"] = value
	}
}

func (c *console) run(method, path string, body interface{}) {
	out, err := c.client.call(method, path, body)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	pretty, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		fmt.Println(out)
		return
	}
	fmt.Println(string(pretty))
}
