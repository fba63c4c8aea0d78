package infra

import (
	"fmt"
	"io"
	"strings"

	"ladder_go/pkg/ladder"
)

// ANSI Color Codes
const (
	ColorReset  = "\033[0m"
	ColorYellow = "\033[33m"
	ColorCyan   = "\033[36m"
)

// PrintBanner displays the startup banner with one line per book. Books using
// hard reset get a warning, because every re-anchor needs a new snapshot.
func PrintBanner(w io.Writer, cfg *Config) {
	color := ColorCyan
	var warn []string
	for _, b := range cfg.Books {
		if p, _ := ParsePolicy(b.Policy); p == ladder.HardReset {
			color = ColorYellow
			warn = append(warn, b.Symbol)
		}
	}

	line := func(format string, args ...any) {
		fmt.Fprintf(w, "%s#  %-55s#%s\n", color, fmt.Sprintf(format, args...), ColorReset)
	}
	rule := color + strings.Repeat("#", 59) + ColorReset + "\n"

	fmt.Fprintln(w)
	fmt.Fprint(w, rule)
	line("")
	line("%s depth service", cfg.App.Name)
	line("FEED:  %s %s/%s", cfg.Feed.Exchange, cfg.Feed.InstType, cfg.Feed.Channel)
	if cfg.API.Addr != "" {
		line("API:   %s", cfg.API.Addr)
	}
	line("")
	for _, b := range cfg.Books {
		policy := b.Policy
		if policy == "" {
			policy = "shift"
		}
		line("%-12s tick=%-10s cap=%-6d %s", b.Symbol, b.TickSize, b.Capacity, policy)
	}
	if len(warn) > 0 {
		line("")
		line("WARNING: hard reset drops levels on re-anchor: %s", strings.Join(warn, ","))
	}
	line("")
	fmt.Fprint(w, rule)
	fmt.Fprintln(w)
}
