// event-cli читает историю событий сервера через административный REST API.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/annel0/blockverse/internal/api/replay"
	"github.com/annel0/blockverse/internal/eventbus"
)

const (
	defaultServerAddr = "http://localhost:8088"
	timeFormat        = time.RFC3339
)

func main() {
	var (
		serverAddr = flag.String("server", defaultServerAddr, "REST API address")
		token      = flag.String("token", os.Getenv("BLOCKVERSE_TOKEN"), "JWT token (or $BLOCKVERSE_TOKEN)")
		command    = flag.String("cmd", "tail", "Command: tail, stats")
		eventTypes = flag.String("types", "", "Event types filter (comma-separated)")
		username   = flag.String("user", "", "Username filter")
		since      = flag.String("since", "1h", "Time duration since now (e.g., 1h, 30m) or RFC3339")
		limit      = flag.Int("limit", 100, "Maximum number of events")
		follow     = flag.Bool("follow", false, "Follow new events (like tail -f)")
		interval   = flag.Duration("interval", 2*time.Second, "Poll interval for -follow")
	)
	flag.Parse()

	client := &Client{BaseURL: strings.TrimRight(*serverAddr, "/"), Token: *token, HTTP: &http.Client{Timeout: 10 * time.Second}}

	switch *command {
	case "tail":
		if err := tailEvents(client, &TailOptions{
			EventTypes: parseStringList(*eventTypes),
			Username:   *username,
			Since:      *since,
			Limit:      *limit,
			Follow:     *follow,
			Interval:   *interval,
		}); err != nil {
			log.Fatalf("❌ Tail failed: %v", err)
		}

	case "stats":
		if err := showStats(client); err != nil {
			log.Fatalf("❌ Stats failed: %v", err)
		}

	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: tail, stats")
		os.Exit(1)
	}
}

// Client минимальный клиент маршрутов /api/admin/events
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK || !body.Success {
		return fmt.Errorf("%s: %d %s", path, resp.StatusCode, body.Message)
	}
	return json.Unmarshal(body.Data, out)
}

// Events запрашивает события, от новых к старым
func (c *Client) Events(ctx context.Context, q replay.EventQuery) ([]*eventbus.Envelope, error) {
	query := url.Values{}
	if len(q.EventTypes) > 0 {
		query.Set("type", strings.Join(q.EventTypes, ","))
	}
	if q.Username != "" {
		query.Set("username", q.Username)
	}
	if q.StartTime != nil {
		query.Set("since", q.StartTime.UTC().Format(timeFormat))
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}

	var data struct {
		Events []*eventbus.Envelope `json:"events"`
	}
	if err := c.get(ctx, "/api/admin/events", query, &data); err != nil {
		return nil, err
	}
	return data.Events, nil
}

// Stats сводка по буферу событий
func (c *Client) Stats(ctx context.Context) (replay.EventStats, error) {
	var st replay.EventStats
	err := c.get(ctx, "/api/admin/events/stats", nil, &st)
	return st, err
}

type TailOptions struct {
	EventTypes []string
	Username   string
	Since      string
	Limit      int
	Follow     bool
	Interval   time.Duration
}

// tailEvents выводит события по возрастанию времени; в режиме follow опрашивает сервер
func tailEvents(client *Client, opts *TailOptions) error {
	fmt.Printf("🎬 Tailing events (limit: %d, follow: %v)\n", opts.Limit, opts.Follow)

	startTime, err := parseSinceTime(opts.Since, time.Now())
	if err != nil {
		return fmt.Errorf("invalid since time: %v", err)
	}

	seen := make(map[string]struct{})
	eventCount := 0
	for {
		events, err := client.Events(context.Background(), replay.EventQuery{
			EventTypes: opts.EventTypes,
			Username:   opts.Username,
			StartTime:  &startTime,
			Limit:      opts.Limit,
		})
		if err != nil {
			return err
		}

		for i := len(events) - 1; i >= 0; i-- {
			ev := events[i]
			if _, dup := seen[ev.ID]; dup {
				continue
			}
			seen[ev.ID] = struct{}{}
			printEvent(ev)
			eventCount++
			if ev.Timestamp.After(startTime) {
				startTime = ev.Timestamp
			}
		}

		if !opts.Follow {
			break
		}
		time.Sleep(opts.Interval)
	}

	fmt.Printf("\n📊 Total events: %d\n", eventCount)
	return nil
}

// showStats выводит статистику событий
func showStats(client *Client) error {
	fmt.Println("📊 Event statistics")

	stats, err := client.Stats(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get stats: %v", err)
	}

	if stats.Oldest != nil && stats.Newest != nil {
		fmt.Printf("Period: %s - %s\n", stats.Oldest.Format(timeFormat), stats.Newest.Format(timeFormat))
	}
	fmt.Printf("Total events: %d (buffered: %d)\n", stats.TotalEvents, stats.Buffered)
	fmt.Println("\nBy event type:")
	types := make([]string, 0, len(stats.EventTypes))
	for t := range stats.EventTypes {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Printf("  %s: %d events\n", t, stats.EventTypes[t])
	}
	return nil
}

// printEvent выводит событие в читаемом формате
func printEvent(ev *eventbus.Envelope) {
	fmt.Println(formatEvent(ev))
}

func formatEvent(ev *eventbus.Envelope) string {
	line := fmt.Sprintf("[%s] %s [%s] %s", ev.Timestamp.Format("15:04:05"), ev.Source, ev.EventType, ev.ID)

	switch ev.EventType {
	case eventbus.TypePlayerJoin, eventbus.TypePlayerLeave, eventbus.TypeWorldChange:
		var p eventbus.PlayerEvent
		if ev.Decode(&p) == nil {
			line += fmt.Sprintf("\n  Player: %s World: %s", p.Username, p.World)
		}
	case eventbus.TypeBlockChange:
		var b eventbus.BlockEvent
		if ev.Decode(&b) == nil {
			line += fmt.Sprintf("\n  Block: (%d,%d,%d) %d→%d Player: %s", b.X, b.Y, b.Z, b.Previous, b.Block, b.Username)
		}
	case eventbus.TypeChat:
		var c eventbus.ChatEvent
		if ev.Decode(&c) == nil {
			line += fmt.Sprintf("\n  Player: %s Scope: %s Text: %s", c.Username, c.Scope, c.Text)
		}
	}
	return line
}

// parseStringList парсит строку с разделителями-запятыми
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// parseSinceTime парсит относительное время типа "1h", "30m" или RFC3339
func parseSinceTime(since string, from time.Time) (time.Time, error) {
	if since == "" {
		return from, nil
	}

	duration, err := time.ParseDuration(since)
	if err != nil {
		// Пробуем парсить как абсолютное время
		return time.Parse(timeFormat, since)
	}

	return from.Add(-duration), nil
}
