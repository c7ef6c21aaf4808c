// watch: terminal dashboard for a spatialvcs scan channel. It follows the
// live tracked state over the dashboard websocket and, with -diff, fetches
// a stored reference scan over the REST API and diffs every update locally
// without flipping the server's live-diff mode.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/spatialvcs/go-spatialvcs/internal/config"
	"github.com/spatialvcs/go-spatialvcs/internal/httpc"
	"github.com/spatialvcs/go-spatialvcs/internal/log"
	"github.com/spatialvcs/go-spatialvcs/pkg/tracking"
)

var (
	server    = flag.String("server", "", "server base URL (defaults to SERVER_URL)")
	diffScan  = flag.String("diff", "", "reference scan id to diff against locally")
	threshold = flag.Float64("threshold", config.FloatEnv("MOVE_THRESHOLD_M", tracking.DefaultThresholdMeters), "move threshold in meters (defaults to MOVE_THRESHOLD_M)")
)

// update mirrors the dashboard broadcast payload.
type update struct {
	Type    string               `json:"type"`
	ScanID  string               `json:"scan_id"`
	Objects []tracking.Detection `json:"objects"`
	Log     string               `json:"log"`
	Diff    *tracking.Result     `json:"diff"`
}

// restLoader fetches reference snapshots over the server's REST API.
type restLoader struct {
	base string
}

func (l restLoader) LoadReference(ctx context.Context, scanID string) (tracking.Reference, error) {
	var out struct {
		Reference tracking.Reference `json:"reference"`
	}
	url := l.base + "/spatial/reference/" + scanID
	if err := httpc.GetJSON(url, &out); err != nil {
		return nil, err
	}
	return out.Reference, nil
}

func wsURL(base, scan string) string {
	u := strings.TrimSuffix(base, "/")
	u = strings.Replace(u, "http://", "ws://", 1)
	u = strings.Replace(u, "https://", "wss://", 1)
	return u + "/ws/dashboard/" + scan
}

func main() {
	flag.Parse()
	log.Init(config.LogLevel())

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: watch [flags] <scan_id>")
		flag.PrintDefaults()
		os.Exit(2)
	}
	scan := flag.Arg(0)
	base := config.ServerURL(*server)

	var reference tracking.Reference
	if *diffScan != "" {
		loader := restLoader{base: base}
		ref, err := loader.LoadReference(context.Background(), *diffScan)
		if err != nil {
			log.Fatal("reference fetch failed", "scan_id", *diffScan, "error", err)
		}
		reference = ref
		log.Info("reference loaded", "scan_id", *diffScan, "objects", len(reference))
	}

	url := wsURL(base, scan)
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		log.Fatal("connect failed", "url", url, "error", err)
	}
	defer conn.Close()
	log.Info("watching", "scan_id", scan, "url", url)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	updates := make(chan update, 16)
	go func() {
		defer close(updates)
		for {
			var u update
			if err := conn.ReadJSON(&u); err != nil {
				return
			}
			updates <- u
		}
	}()

	lastSummary := ""
	for {
		select {
		case <-quit:
			return
		case u, ok := <-updates:
			if !ok {
				log.Warn("connection closed")
				return
			}
			render(u, reference, *threshold, &lastSummary)
		}
	}
}

// render prints one update, diffing locally when a reference is loaded.
// Unchanged summaries are suppressed so the terminal only moves when the
// scene does.
func render(u update, reference tracking.Reference, threshold float64, lastSummary *string) {
	switch u.Type {
	case "scan_completed":
		fmt.Printf("scan %s completed\n", u.ScanID)
		return
	case "probe_disconnected":
		fmt.Println("probe disconnected")
		return
	}

	labels := make([]string, 0, len(u.Objects))
	for _, det := range u.Objects {
		labels = append(labels, det.Canonical)
	}

	result := u.Diff
	if reference != nil {
		local := tracking.Diff(u.Objects, reference, threshold)
		result = &local
	}

	line := fmt.Sprintf("%d objects [%s]", len(u.Objects), strings.Join(labels, " "))
	if result != nil {
		line += " | " + result.Summary
		if result.Summary != *lastSummary {
			for _, ev := range result.Events {
				if ev.Distance != nil {
					fmt.Printf("  %s %s (%.2fm)\n", ev.Type, ev.Label, *ev.Distance)
				} else {
					fmt.Printf("  %s %s\n", ev.Type, ev.Label)
				}
			}
			*lastSummary = result.Summary
		}
	}
	fmt.Println(line)
}
