// Package cli implements the interactive command-line interface for MCPulse.
// It provides one-off pings, batch queries, watchlist management, and history
// inspection against the same engine the background scheduler uses.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"

	"github.com/mcpulse-project/mcpulse/internal/config"
	"github.com/mcpulse-project/mcpulse/internal/db"
	"github.com/mcpulse-project/mcpulse/internal/dnscache"
	"github.com/mcpulse-project/mcpulse/internal/events"
	"github.com/mcpulse-project/mcpulse/internal/monitor"
	"github.com/mcpulse-project/mcpulse/internal/ping"
	"github.com/mcpulse-project/mcpulse/internal/util"
)

const (
	updateRepoURL = "https://github.com/mcpulse-project/mcpulse"
	updateBranch  = "main"
)

// CLI provides an interactive command-line interface.
type CLI struct {
	cfg      *config.Config
	eventBus *events.EventBus
	watch    *monitor.Manager
	history  *db.HistoryDatabase
	cache    *dnscache.Cache
	client   *ping.Client
}

// NewCLI creates a new CLI handler.
func NewCLI(cfg *config.Config, eventBus *events.EventBus, watch *monitor.Manager, history *db.HistoryDatabase, cache *dnscache.Cache, client *ping.Client) *CLI {
	return &CLI{
		cfg:      cfg,
		eventBus: eventBus,
		watch:    watch,
		history:  history,
		cache:    cache,
		client:   client,
	}
}

// Start begins the interactive CLI loop.
func (c *CLI) Start(ctx context.Context) {
	fmt.Println("\nMCPulse CLI ready. Type 'help' for available commands.")
	fmt.Println("─────────────────────────────────────────────────────")

	reader := newLineReader()
	if reader == nil {
		log.Warn().Msg("CLI: failed to initialize line reader, CLI disabled")
		<-ctx.Done()
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := reader.ReadLine("mcpulse> ")
		if err != nil {
			if err == io.EOF {
				return
			}
			continue
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		if err := c.execute(ctx, cmd, args); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}
}

// execute processes a single CLI command.
func (c *CLI) execute(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "ping", "p":
		return c.cmdPing(ctx, args)
	case "query", "q":
		return c.cmdQuery(ctx, args)
	case "watch", "w":
		return c.cmdWatch(ctx, args)
	case "history", "hist":
		return c.cmdHistory(args)
	case "status", "s":
		c.printStatus()
	case "system", "sys":
		c.printSystem()
	case "flushdns":
		c.cache.Flush()
		fmt.Println("DNS cache flushed")
	case "setconfig":
		return c.cmdSetConfig(args)
	case "update":
		return c.cmdUpdate()
	case "quit", "exit":
		fmt.Println("Shutting down MCPulse...")
		c.eventBus.Emit(ctx, events.Event{
			Type:   events.EventShutdown,
			Source: "cli",
		})
	default:
		fmt.Printf("Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return nil
}

// printHelp displays available commands.
func (c *CLI) printHelp() {
	fmt.Println("\n╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                     MCPulse CLI Commands                     ║")
	fmt.Println("╠══════════════════════════════════════════════════════════════╣")
	fmt.Println("║  ping <addr> [ed]     Ping one server (edition java|bedrock) ║")
	fmt.Println("║  query <a,b,c> [ed]   Ping several servers in parallel       ║")
	fmt.Println("║  watch add <addr> [ed]    Add a server to the watchlist      ║")
	fmt.Println("║  watch remove <addr> [ed] Remove a server from the watchlist ║")
	fmt.Println("║  watch list           Show the watchlist                     ║")
	fmt.Println("║  history <addr> [n]   Show recent check results              ║")
	fmt.Println("║  status               Watchlist status table                 ║")
	fmt.Println("║  system               Host system information                ║")
	fmt.Println("║  flushdns             Clear the DNS resolution cache         ║")
	fmt.Println("║  setconfig <k> <v>    Update a configuration value           ║")
	fmt.Println("║  update               Check for a newer MCPulse version      ║")
	fmt.Println("║  quit                 Shutdown MCPulse                       ║")
	fmt.Println("║  help                 Show this help message                 ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")
	fmt.Println()
}

// parseTarget interprets an address plus optional edition argument.
func parseTarget(address, editionArg string) (ping.Target, error) {
	edition := ping.EditionJava
	if editionArg != "" {
		parsed, err := ping.ParseEdition(editionArg)
		if err != nil {
			return ping.Target{}, err
		}
		edition = parsed
	}
	return ping.Target{Address: address, Edition: edition}, nil
}

func (c *CLI) cmdPing(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: ping <address> [edition]")
	}

	editionArg := ""
	if len(args) > 1 {
		editionArg = args[1]
	}
	target, err := parseTarget(args[0], editionArg)
	if err != nil {
		return err
	}

	outcome := c.client.Ping(ctx, target)
	c.printOutcomeDetail(outcome)
	return nil
}

func (c *CLI) cmdQuery(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: query <addr1,addr2,...> [edition]")
	}

	editionArg := ""
	if len(args) > 1 {
		editionArg = args[1]
	}

	var targets []ping.Target
	for _, address := range strings.Split(args[0], ",") {
		address = strings.TrimSpace(address)
		if address == "" {
			continue
		}
		target, err := parseTarget(address, editionArg)
		if err != nil {
			return err
		}
		targets = append(targets, target)
	}
	if len(targets) == 0 {
		return fmt.Errorf("no addresses given")
	}

	start := time.Now()
	outcomes := c.client.PingMany(ctx, targets)
	took := time.Since(start)

	fmt.Println()
	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Address", "Edition", "Online", "Latency", "Players", "Version"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, outcome := range outcomes {
		online := "no"
		latency := "-"
		players := "-"
		version := "-"

		if outcome.Err != nil {
			version = string(ping.KindOf(outcome.Err))
		} else if outcome.Status != nil {
			online = "yes"
			latency = fmt.Sprintf("%.1fms", outcome.Status.LatencyMs)
			if outcome.Status.Java != nil {
				players = fmt.Sprintf("%d/%d", outcome.Status.Java.OnlinePlayers, outcome.Status.Java.MaxPlayers)
				version = outcome.Status.Java.Version
			} else if outcome.Status.Bedrock != nil {
				players = fmt.Sprintf("%s/%s", outcome.Status.Bedrock.OnlinePlayers, outcome.Status.Bedrock.MaxPlayers)
				version = outcome.Status.Bedrock.Version
			}
		}

		tw.Append([]string{
			outcome.Target.Address,
			string(outcome.Target.Edition),
			online,
			latency,
			players,
			version,
		})
	}

	tw.Render()
	fmt.Printf("%d servers in %s\n\n", len(outcomes), took.Round(time.Millisecond))
	return nil
}

// printOutcomeDetail prints the full result of a single ping.
func (c *CLI) printOutcomeDetail(outcome ping.Outcome) {
	fmt.Printf("\n  Address:  %s (%s)\n", outcome.Target.Address, outcome.Target.Edition)

	if outcome.Err != nil {
		fmt.Printf("  Online:   no\n")
		fmt.Printf("  Error:    [%s] %v\n\n", ping.KindOf(outcome.Err), outcome.Err)
		return
	}

	status := outcome.Status
	fmt.Printf("  Online:   yes\n")
	fmt.Printf("  IP:       %s:%d\n", status.IP, status.Port)
	fmt.Printf("  Latency:  %.1fms\n", status.LatencyMs)
	if status.DNS != nil {
		fmt.Printf("  DNS:      %s (TTL %ds)\n", strings.Join(status.DNS.ARecords, ", "), status.DNS.TTL)
		if status.DNS.CNAME != "" {
			fmt.Printf("  CNAME:    %s\n", status.DNS.CNAME)
		}
	}

	if java := status.Java; java != nil {
		fmt.Printf("  Version:  %s (protocol %d)\n", java.Version, java.Protocol)
		fmt.Printf("  Players:  %d/%d\n", java.OnlinePlayers, java.MaxPlayers)
		fmt.Printf("  MOTD:     %s\n", java.Description)
		for _, player := range java.Sample {
			fmt.Printf("    - %s\n", player.Name)
		}
	}

	if bedrock := status.Bedrock; bedrock != nil {
		fmt.Printf("  Version:  %s (protocol %s)\n", bedrock.Version, bedrock.ProtocolVersion)
		fmt.Printf("  Players:  %s/%s\n", bedrock.OnlinePlayers, bedrock.MaxPlayers)
		fmt.Printf("  MOTD:     %s\n", bedrock.MOTD)
		if bedrock.GameMode != "" {
			fmt.Printf("  Mode:     %s\n", bedrock.GameMode)
		}
	}
	fmt.Println()
}

func (c *CLI) cmdWatch(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: watch add|remove|list [address] [edition]")
	}

	switch strings.ToLower(args[0]) {
	case "list", "ls":
		c.printStatus()
		return nil
	case "add":
		return c.cmdWatchAdd(args[1:])
	case "remove", "rm", "del":
		return c.cmdWatchRemove(args[1:])
	default:
		return fmt.Errorf("unknown watch subcommand: %s", args[0])
	}
}

func (c *CLI) cmdWatchAdd(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: watch add <address> [edition]")
	}

	editionArg := ""
	if len(args) > 1 {
		editionArg = args[1]
	}
	target, err := parseTarget(args[0], editionArg)
	if err != nil {
		return err
	}

	if !c.watch.Track(target.Address, string(target.Edition)) {
		return fmt.Errorf("%s (%s) is already on the watchlist", target.Address, target.Edition)
	}
	if _, err := c.history.WatchlistAdd(target.Address, string(target.Edition)); err != nil {
		log.Warn().Err(err).Msg("CLI: failed to persist watchlist entry")
	}

	fmt.Printf("Watching %s (%s)\n", target.Address, target.Edition)
	return nil
}

func (c *CLI) cmdWatchRemove(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: watch remove <address> [edition]")
	}

	editionArg := ""
	if len(args) > 1 {
		editionArg = args[1]
	}
	target, err := parseTarget(args[0], editionArg)
	if err != nil {
		return err
	}

	if !c.watch.Untrack(target.Address, string(target.Edition)) {
		return fmt.Errorf("%s (%s) is not on the watchlist", target.Address, target.Edition)
	}
	if _, err := c.history.WatchlistRemove(target.Address, string(target.Edition)); err != nil {
		log.Warn().Err(err).Msg("CLI: failed to remove persisted watchlist entry")
	}

	fmt.Printf("Stopped watching %s (%s)\n", target.Address, target.Edition)
	return nil
}

func (c *CLI) cmdHistory(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: history <address> [limit]")
	}
	address := args[0]

	limit := 20
	if len(args) > 1 {
		parsed, err := strconv.Atoi(args[1])
		if err != nil || parsed < 1 {
			return fmt.Errorf("invalid limit: %s", args[1])
		}
		limit = parsed
	}

	records, err := c.history.History(address, string(ping.EditionJava), limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		records, err = c.history.History(address, string(ping.EditionBedrock), limit)
		if err != nil {
			return err
		}
	}
	if len(records) == 0 {
		fmt.Printf("No history for %s\n", address)
		return nil
	}

	fmt.Println()
	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Checked", "Online", "Latency", "Players", "Version", "Error"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, rec := range records {
		online := "no"
		latency := "-"
		players := "-"
		if rec.Online {
			online = "yes"
			latency = fmt.Sprintf("%.1fms", rec.LatencyMs)
			players = fmt.Sprintf("%d/%d", rec.PlayersOnline, rec.PlayersMax)
		}
		tw.Append([]string{
			rec.CheckedAt.Local().Format("2006-01-02 15:04:05"),
			online,
			latency,
			players,
			rec.Version,
			rec.Error,
		})
	}

	tw.Render()
	fmt.Println()
	return nil
}

// printStatus displays the watchlist in a formatted table.
func (c *CLI) printStatus() {
	snaps := c.watch.Snapshots()
	if len(snaps) == 0 {
		fmt.Println("Watchlist is empty. Use 'watch add <address>' to add a server.")
		return
	}

	fmt.Println()
	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Address", "Edition", "Status", "Latency", "Players", "Version", "Last Checked"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, snap := range snaps {
		latency := "-"
		players := "-"
		checked := "never"

		if snap.Status == events.MonitorStatusUp {
			latency = fmt.Sprintf("%.1fms", snap.LatencyMs)
			players = fmt.Sprintf("%d/%d", snap.PlayersOnline, snap.PlayersMax)
		}
		if !snap.LastChecked.IsZero() {
			checked = snap.LastChecked.Local().Format("15:04:05")
		}

		tw.Append([]string{
			snap.Address,
			snap.Edition,
			strings.ToUpper(snap.Status.String()),
			latency,
			players,
			snap.Version,
			checked,
		})
	}

	tw.Render()

	counts := c.watch.Counts()
	fmt.Printf("%d watched, %d up, %d down, %d unknown\n\n",
		counts.Total, counts.Up, counts.Down, counts.Unknown)
}

// printSystem prints host information and resource usage.
func (c *CLI) printSystem() {
	info := util.GetSystemInfo()

	fmt.Printf("\n  Hostname:   %s\n", info.Hostname)
	fmt.Printf("  OS:         %s (%s)\n", info.OS, info.Architecture)
	fmt.Printf("  CPU:        %s (%d cores, %d threads)\n", info.CPUModel, info.CPUCores, info.CPUThreads)
	fmt.Printf("  Memory:     %d MB\n", info.TotalMemory)
	fmt.Printf("  Uptime:     %s\n", (time.Duration(info.UptimeSeconds) * time.Second).String())

	if cpu, err := util.GetCPUUsage(); err == nil {
		fmt.Printf("  CPU Usage:  %.1f%%\n", cpu)
	}
	if mem, err := util.GetMemoryUsage(); err == nil {
		fmt.Printf("  Mem Usage:  %d/%d MB (%.1f%%)\n", mem.Used, mem.Total, mem.UsedPercent)
	}
	if ip, err := util.GetPublicIP(); err == nil {
		fmt.Printf("  Public IP:  %s\n", ip)
	}

	fmt.Printf("  DNS Cache:  %d entries (TTL %s)\n", c.cache.Len(), c.cache.TTL())
	fmt.Println()
}

func (c *CLI) cmdSetConfig(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: setconfig <key> <value>")
	}

	key := args[0]
	value := parseConfigValue(strings.Join(args[1:], " "))

	// Ping settings first, then monitor settings.
	err := c.cfg.UpdatePingField(key, value)
	if err != nil {
		err = c.cfg.UpdateMonitorField(key, value)
	}
	if err != nil {
		return fmt.Errorf("unknown config key: %s", key)
	}

	if err := c.cfg.Save(); err != nil {
		return err
	}

	fmt.Printf("Config updated: %s = %v\n", key, value)
	return nil
}

// parseConfigValue converts a CLI string into the JSON type the config
// field round-trip expects.
func parseConfigValue(raw string) interface{} {
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}

func (c *CLI) cmdUpdate() error {
	updater := util.NewUpdater(updateRepoURL, updateBranch, ".")

	current, err := updater.GetCurrentVersion()
	if err == nil {
		fmt.Printf("Current version: %s\n", current)
	}

	available, latest, err := updater.CheckForUpdate()
	if err != nil {
		return fmt.Errorf("update check failed: %w", err)
	}
	if !available {
		fmt.Println("MCPulse is up to date")
		return nil
	}

	fmt.Printf("Update available: %s. Pulling...\n", latest)
	if err := updater.Update(); err != nil {
		return fmt.Errorf("update failed: %w", err)
	}
	fmt.Println("Updated. Restart MCPulse to apply.")
	return nil
}

// lineReader wraps stdin with a buffered scanner so multi-word commands
// arrive as one line.
type lineReader struct {
	scanner *bufio.Scanner
}

func newLineReader() *lineReader {
	return &lineReader{scanner: bufio.NewScanner(os.Stdin)}
}

func (lr *lineReader) ReadLine(prompt string) (string, error) {
	fmt.Print(prompt)
	if !lr.scanner.Scan() {
		if err := lr.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return lr.scanner.Text(), nil
}
