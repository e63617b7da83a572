package internal

import (
	"context"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"estimo/domain"

	"github.com/samber/lo"
)

//go:embed inspect.html
var templatesFS embed.FS

type RoomLister interface {
	List(ctx context.Context) ([]domain.Room, error)
}

type InspectRow struct {
	RoomID       string
	Revision     uint64
	Created      string
	Revealed     bool
	Participants string
	Voted        string
	Watchers     int
}

type StatsProvider func() map[string]any
type WatchersProvider func() map[domain.RoomID]int

type PageData struct {
	Prefix string
	Items  []InspectRow
	Stats  map[string]any
	Error  string
}

// NewDebugServer serves an HTML view of every stored room on /inspect,
// optionally filtered by a room id prefix. The caller owns ListenAndServe
// and Shutdown.
func NewDebugServer(log *slog.Logger, addr string, rooms RoomLister, stats StatsProvider, watchers WatchersProvider) *http.Server {
	mux := http.NewServeMux()
	tmpl := template.Must(template.ParseFS(templatesFS, "inspect.html"))

	mux.HandleFunc("/inspect", func(w http.ResponseWriter, r *http.Request) {
		data := PageData{
			Prefix: strings.ToUpper(r.URL.Query().Get("prefix")),
			Stats:  make(map[string]any),
		}
		if stats != nil {
			data.Stats = stats()
		}
		var counts map[domain.RoomID]int
		if watchers != nil {
			counts = watchers()
		}

		list, err := rooms.List(r.Context())
		if err != nil {
			log.Error("Inspector failed to list rooms", "error", err)
			data.Error = err.Error()
		}
		for _, room := range list {
			if !strings.HasPrefix(string(room.ID), data.Prefix) {
				continue
			}
			data.Items = append(data.Items, RoomRow(room, counts[room.ID]))
		}
		sort.Slice(data.Items, func(i, j int) bool { return data.Items[i].RoomID < data.Items[j].RoomID })

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			log.Warn("Inspector template failed", "error", err)
		}
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

// RoomRow flattens a room for display. Vote values are shown in full: the
// inspector is an operator tool, not a player view.
func RoomRow(room domain.Room, watchers int) InspectRow {
	return InspectRow{
		RoomID:   string(room.ID),
		Revision: room.Revision,
		Created:  room.CreatedAt.Format(time.DateTime),
		Revealed: room.VotesRevealed,
		Participants: strings.Join(lo.Map(room.Participants, func(p domain.Participant, _ int) string {
			if p.IsHost {
				return p.Name + " (host)"
			}
			return p.Name
		}), ", "),
		Voted: strings.Join(lo.FilterMap(room.Participants, func(p domain.Participant, _ int) (string, bool) {
			if !p.HasVoted() {
				return "", false
			}
			return p.Name + "=" + p.Vote.String(), true
		}), ", "),
		Watchers: watchers,
	}
}
