package main

import (
	"chat-relay/observability"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
)

func main() {
	addr := flag.String("addr", "http://localhost:6060", "Debug server of a running relay")
	flag.Parse()

	stats, err := fetchStats(*addr)
	if err != nil {
		log.Fatal("Error while fetching stats: ", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Counter", "Value"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.AppendBulk(rows(stats))
	table.Render()
}

func fetchStats(addr string) (observability.Stats, error) {
	client := http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(strings.TrimSuffix(addr, "/") + "/stats")
	if err != nil {
		return observability.Stats{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return observability.Stats{}, fmt.Errorf("unexpected status %s", resp.Status)
	}
	var stats observability.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return observability.Stats{}, err
	}
	return stats, nil
}

func rows(s observability.Stats) [][]string {
	count := func(v uint64) string { return strconv.FormatUint(v, 10) }
	return [][]string{
		{"Started at", s.StartedAt.Format(time.RFC3339)},
		{"Uptime", s.Uptime},
		{"Peers online", strconv.Itoa(s.PeersOnline)},
		{"Usernames", strings.Join(s.Usernames, ", ")},
		{"Accepted", count(s.Accepted)},
		{"Handshake aborted", count(s.HandshakeAborted)},
		{"Joined", count(s.Joined)},
		{"Left", count(s.Left)},
		{"Chats", count(s.Chats)},
		{"Censored", count(s.Censored)},
		{"Delivered", count(s.Delivered)},
		{"Dropped", count(s.Dropped)},
		{"Evicted", count(s.Evicted)},
		{"Read errors", count(s.ReadErrors)},
		{"Write errors", count(s.WriteErrors)},
	}
}
