// ABOUTME: Admin CLI for the coven-routes control surface.
// ABOUTME: Talks HTTP/JSON to the /bgp endpoints with optional bearer auth.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
)

const banner = `
                                                 _           _
  _ __ ___  _   _| |_ ___  ___        __ _  __| |_ __ ___ (_)_ __
 | '__/ _ \| | | | __/ _ \/ __|_____ / _' |/ _' | '_ ' _ \| | '_ \
 | | | (_) | |_| | ||  __/\__ \_____| (_| | (_| | | | | | | | | | |
 |_|  \___/ \__,_|\__\___||___/      \__,_|\__,_|_| |_| |_|_|_| |_|
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	baseURL := os.Getenv("COVEN_ROUTES_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8179"
	}
	client := &apiClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   os.Getenv("COVEN_ROUTES_TOKEN"),
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "status":
		err = cmdStatus(client)
	case "peers":
		err = cmdPeers(client, args)
	case "routes":
		err = cmdRoutes(client)
	case "agents":
		err = cmdAgents(client, args)
	case "sessions":
		err = cmdSessions(client)
	case "templates":
		err = cmdTemplates(client, args)
	case "discover":
		err = cmdDiscover(client, args)
	case "validate":
		err = cmdValidate(client)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: routes-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  status                       Show routing server status")
	fmt.Println("  peers                        List peers")
	fmt.Println("  peers add <asn> <address>    Add a peer")
	fmt.Println("  peers remove <asn>           Remove a peer (withdraws its routes)")
	fmt.Println("  routes                       List installed best routes")
	fmt.Println("  agents                       List reachable agents")
	fmt.Println("  agents advertise <id> <cap,...>  Advertise a local agent")
	fmt.Println("  sessions                     Show session stats")
	fmt.Println("  templates                    List policy templates")
	fmt.Println("  templates show <id>          Show one template")
	fmt.Println("  templates apply <id>         Apply a template to the policy engine")
	fmt.Println("  discover <agent-id>          Sweep peers for an agent's routes")
	fmt.Println("  validate                     Run RIB consistency advisories")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  COVEN_ROUTES_URL     Server base URL (default: http://localhost:8179)")
	fmt.Println("  COVEN_ROUTES_TOKEN   Bearer token, if the server requires auth")
	fmt.Println()
}

type apiClient struct {
	baseURL string
	token   string
}

func (c *apiClient) do(method, path string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (%d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func cmdStatus(c *apiClient) error {
	var status struct {
		Status        string `json:"status"`
		RouterID      string `json:"routerId"`
		LocalASN      uint32 `json:"localASN"`
		UptimeSeconds int    `json:"uptimeSeconds"`
		Peers         int    `json:"peers"`
		Established   int    `json:"established"`
	}
	if err := c.do(http.MethodGet, "/bgp/status", nil, &status); err != nil {
		return err
	}

	color.Green("✓ %s", status.Status)
	fmt.Printf("  router:      %s\n", status.RouterID)
	fmt.Printf("  local AS:    %d\n", status.LocalASN)
	fmt.Printf("  uptime:      %ds\n", status.UptimeSeconds)
	fmt.Printf("  peers:       %d (%d established)\n", status.Peers, status.Established)
	return nil
}

type peerView struct {
	ASN      uint32 `json:"asn"`
	Address  string `json:"address"`
	RouterID string `json:"routerId"`
	State    string `json:"state"`
}

func cmdPeers(c *apiClient, args []string) error {
	if len(args) == 0 || args[0] == "list" {
		var resp struct {
			Peers []peerView `json:"peers"`
		}
		if err := c.do(http.MethodGet, "/bgp/peers", nil, &resp); err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ASN\tADDRESS\tROUTER ID\tSTATE")
		for _, p := range resp.Peers {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", p.ASN, p.Address, p.RouterID, p.State)
		}
		return w.Flush()
	}

	switch args[0] {
	case "add":
		if len(args) != 3 {
			return fmt.Errorf("usage: peers add <asn> <address>")
		}
		asn, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid ASN %q", args[1])
		}
		body := map[string]any{"asn": asn, "address": args[2]}
		if err := c.do(http.MethodPost, "/bgp/peers", body, nil); err != nil {
			return err
		}
		color.Green("✓ peer %d added", asn)
		return nil
	case "remove":
		if len(args) != 2 {
			return fmt.Errorf("usage: peers remove <asn>")
		}
		var resp struct {
			WithdrawnRoutes int `json:"withdrawnRoutes"`
		}
		if err := c.do(http.MethodDelete, "/bgp/peers/"+args[1], nil, &resp); err != nil {
			return err
		}
		color.Green("✓ peer %s removed (%d routes withdrawn)", args[1], resp.WithdrawnRoutes)
		return nil
	default:
		return fmt.Errorf("unknown peers subcommand: %s", args[0])
	}
}

type routeView struct {
	AgentID      string   `json:"agentId"`
	Capabilities []string `json:"capabilities"`
	ASPath       []uint32 `json:"asPath"`
	NextHop      string   `json:"nextHop"`
	LocalPref    int      `json:"localPref"`
	MED          int      `json:"med"`
}

func cmdRoutes(c *apiClient) error {
	var resp struct {
		Routes []routeView `json:"routes"`
	}
	if err := c.do(http.MethodGet, "/bgp/routes", nil, &resp); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "AGENT\tAS PATH\tNEXT HOP\tLOCAL PREF\tMED\tCAPABILITIES")
	for _, r := range resp.Routes {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			r.AgentID, formatPath(r.ASPath), r.NextHop, r.LocalPref, r.MED,
			strings.Join(r.Capabilities, ","))
	}
	return w.Flush()
}

func formatPath(path []uint32) string {
	parts := make([]string, len(path))
	for i, asn := range path {
		parts[i] = strconv.FormatUint(uint64(asn), 10)
	}
	return strings.Join(parts, " ")
}

func cmdAgents(c *apiClient, args []string) error {
	if len(args) == 0 || args[0] == "list" {
		var resp struct {
			Agents []struct {
				AgentID string    `json:"agentId"`
				Route   routeView `json:"route"`
			} `json:"agents"`
		}
		if err := c.do(http.MethodGet, "/bgp/agents", nil, &resp); err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "AGENT\tORIGIN AS\tCAPABILITIES")
		for _, a := range resp.Agents {
			origin := ""
			if len(a.Route.ASPath) > 0 {
				origin = strconv.FormatUint(uint64(a.Route.ASPath[0]), 10)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", a.AgentID, origin, strings.Join(a.Route.Capabilities, ","))
		}
		return w.Flush()
	}

	if args[0] == "advertise" {
		if len(args) != 3 {
			return fmt.Errorf("usage: agents advertise <id> <cap,...>")
		}
		body := map[string]any{
			"agentId":      args[1],
			"capabilities": strings.Split(args[2], ","),
		}
		if err := c.do(http.MethodPost, "/bgp/agents/advertise", body, nil); err != nil {
			return err
		}
		color.Green("✓ agent %s advertised", args[1])
		return nil
	}
	return fmt.Errorf("unknown agents subcommand: %s", args[0])
}

func cmdSessions(c *apiClient) error {
	var stats struct {
		Peers       int            `json:"peers"`
		Established int            `json:"established"`
		ByState     map[string]int `json:"byState"`
		LocalASN    uint32         `json:"localASN"`
		RouterID    string         `json:"routerId"`
	}
	if err := c.do(http.MethodGet, "/bgp/sessions", nil, &stats); err != nil {
		return err
	}

	fmt.Printf("local AS %d, router %s\n", stats.LocalASN, stats.RouterID)
	fmt.Printf("%d peers, %d established\n", stats.Peers, stats.Established)
	for state, n := range stats.ByState {
		fmt.Printf("  %-14s %d\n", state, n)
	}
	return nil
}

func cmdTemplates(c *apiClient, args []string) error {
	if len(args) == 0 || args[0] == "list" {
		var resp struct {
			Templates []struct {
				ID          string `json:"id"`
				Name        string `json:"name"`
				Category    string `json:"category"`
				Description string `json:"description"`
			} `json:"templates"`
		}
		if err := c.do(http.MethodGet, "/bgp/policy-templates", nil, &resp); err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCATEGORY\tNAME\tDESCRIPTION")
		for _, tpl := range resp.Templates {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", tpl.ID, tpl.Category, tpl.Name, tpl.Description)
		}
		return w.Flush()
	}

	switch args[0] {
	case "show":
		if len(args) != 2 {
			return fmt.Errorf("usage: templates show <id>")
		}
		var tpl json.RawMessage
		if err := c.do(http.MethodGet, "/bgp/policy-templates/"+args[1], nil, &tpl); err != nil {
			return err
		}
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, tpl, "", "  "); err != nil {
			return err
		}
		fmt.Println(pretty.String())
		return nil
	case "apply":
		if len(args) != 2 {
			return fmt.Errorf("usage: templates apply <id>")
		}
		var resp struct {
			RulesAdded int `json:"rulesAdded"`
			TotalRules int `json:"totalRules"`
		}
		if err := c.do(http.MethodPost, "/bgp/policy-templates/"+args[1]+"/apply", map[string]any{}, &resp); err != nil {
			return err
		}
		color.Green("✓ template %s applied (%d rules added, %d active)", args[1], resp.RulesAdded, resp.TotalRules)
		return nil
	default:
		return fmt.Errorf("unknown templates subcommand: %s", args[0])
	}
}

func cmdDiscover(c *apiClient, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: discover <agent-id>")
	}
	var resp struct {
		Discovered []routeView `json:"discovered"`
		Installed  int         `json:"installed"`
	}
	body := map[string]any{"agentId": args[0]}
	if err := c.do(http.MethodPost, "/bgp/discover", body, &resp); err != nil {
		return err
	}

	if len(resp.Discovered) == 0 {
		color.Yellow("no peers host %s", args[0])
		return nil
	}
	color.Green("✓ %d routes discovered, %d installed", len(resp.Discovered), resp.Installed)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "AS PATH\tNEXT HOP\tLOCAL PREF\tMED")
	for _, r := range resp.Discovered {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", formatPath(r.ASPath), r.NextHop, r.LocalPref, r.MED)
	}
	return w.Flush()
}

func cmdValidate(c *apiClient) error {
	var resp struct {
		Advisories []string `json:"advisories"`
	}
	if err := c.do(http.MethodGet, "/bgp/routes/validate", nil, &resp); err != nil {
		return err
	}

	if len(resp.Advisories) == 0 {
		color.Green("✓ no advisories")
		return nil
	}
	color.Yellow("%d advisories:", len(resp.Advisories))
	for _, a := range resp.Advisories {
		fmt.Printf("  - %s\n", a)
	}
	return nil
}
