// Command simulator drives a running server with many concurrent remote
// sessions and checks that no join or vote is lost under contention.
package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"estimo/domain"
	"estimo/errors"
	"estimo/infrastructure/grpc/client"
	"estimo/runtime"

	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/kelseyhightower/envconfig"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	ServerAddr  string        `envconfig:"SERVER_ADDR" default:"localhost:9090"`
	RoomID      string        `envconfig:"ROOM_ID"`
	Clients     int           `envconfig:"CLIENTS" default:"20"`
	Rounds      int           `envconfig:"ROUNDS" default:"3"`
	JoinTimeout time.Duration `envconfig:"JOIN_TIMEOUT" default:"60s"`
	LogLevel    string        `envconfig:"LOG_LEVEL" default:"WARN"`
	// SIM_COLOURS enables colorized output
	Colours bool `envconfig:"SIM_COLOURS" default:"true"`
}

var deck = []*domain.Vote{
	domain.Points(1), domain.Points(2), domain.Points(3), domain.Points(5),
	domain.Points(8), domain.Points(13), domain.Token(domain.TokenUnsure), domain.Token(domain.TokenCoffee),
}

type roundReport struct {
	Round   int
	Summary domain.Summary
	Lost    int
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if cfg.Clients <= 0 {
		return fmt.Errorf("CLIENTS must be positive, got %d", cfg.Clients)
	}
	log := logs.GetLoggerFromString(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	remote, err := client.Dial(log, cfg.ServerAddr)
	if err != nil {
		return err
	}
	defer func() { _ = remote.Close() }()

	roomID := domain.RoomID(cfg.RoomID)
	if roomID == "" {
		if roomID, err = remote.CreateRoom(ctx); err != nil {
			return fmt.Errorf("failed to create room: %w", err)
		}
	}
	printHeader(cfg, fmt.Sprintf("Room %s, %d clients, %d rounds", roomID, cfg.Clients, cfg.Rounds))

	// 1. Everyone joins at once
	sessions := make([]*runtime.Session, 0, cfg.Clients)
	for i := range cfg.Clients {
		name := "player-" + uuid.NewString()[:8]
		session, err := runtime.NewSession(log, remote, roomID, domain.NewParticipant(name, i == 0), runtime.DefaultSessionPolicy)
		if err != nil {
			return err
		}
		defer session.Close()
		sessions = append(sessions, session)
		session.Start(ctx)
	}

	joinCtx, cancelJoin := context.WithTimeout(ctx, cfg.JoinTimeout)
	defer cancelJoin()
	start := time.Now()
	for _, session := range sessions {
		select {
		case <-session.Joined():
		case <-joinCtx.Done():
			return fmt.Errorf("%s did not join in time: %w", session.Participant().Name, joinCtx.Err())
		}
	}
	room, err := remote.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	printJoins(sessions, room, time.Since(start))

	// 2. Rounds of concurrent votes
	reports := make([]roundReport, 0, cfg.Rounds)
	for round := 1; round <= cfg.Rounds; round++ {
		report, err := playRound(ctx, remote, roomID, sessions, round)
		if err != nil {
			return err
		}
		reports = append(reports, report)
	}
	printRounds(cfg, reports)
	return nil
}

func playRound(ctx context.Context, remote *client.RoomClient, roomID domain.RoomID, sessions []*runtime.Session, round int) (roundReport, error) {
	g, gctx := errgroup.WithContext(ctx)
	for _, session := range sessions {
		g.Go(func() error {
			return voteUntilAccepted(gctx, session)
		})
	}
	if err := g.Wait(); err != nil {
		return roundReport{}, fmt.Errorf("round %d: %w", round, err)
	}

	if err := remote.RevealVotes(ctx, roomID); err != nil {
		return roundReport{}, err
	}
	room, err := remote.GetRoom(ctx, roomID)
	if err != nil {
		return roundReport{}, err
	}
	summary := domain.Summarize(room)
	if err := remote.StartNewRound(ctx, roomID); err != nil {
		return roundReport{}, err
	}
	return roundReport{Round: round, Summary: summary, Lost: summary.Participants - summary.Voters}, nil
}

// voteUntilAccepted retries throttled votes, and votes that lost every
// commit race, after the session's interval.
func voteUntilAccepted(ctx context.Context, session *runtime.Session) error {
	vote := deck[rand.IntN(len(deck))]
	for {
		err := session.Vote(ctx, vote)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errors.ErrVoteThrottled) && !errors.Is(err, errors.ErrTransactionFailed) {
			return fmt.Errorf("%s: %w", session.Participant().Name, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(runtime.DefaultSessionPolicy.VoteInterval):
		}
	}
}

var printMu sync.Mutex

func printHeader(cfg Config, title string) {
	printMu.Lock()
	defer printMu.Unlock()
	header := fmt.Sprintf("  ====== %s ======", title)
	if cfg.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	fmt.Println(header)
}

func printJoins(sessions []*runtime.Session, room domain.Room, took time.Duration) {
	table := newTable([]string{"Participant", "Host", "Attempts", "In room"})
	for _, session := range sessions {
		p := session.Participant()
		_, present := room.Participant(p.Name)
		table.Append([]string{p.Name, strconv.FormatBool(p.IsHost), strconv.Itoa(session.Attempts()), strconv.FormatBool(present)})
	}
	table.Render()
	fmt.Printf("%d/%d participants joined in %v\n\n", len(room.Participants), len(sessions), took.Round(time.Millisecond))
}

func printRounds(cfg Config, reports []roundReport) {
	table := newTable([]string{"Round", "Participants", "Voters", "Average", "Min", "Max", "Status"})
	for _, r := range reports {
		status := "OK"
		style := color.New(color.FgGreen)
		if r.Lost > 0 {
			status = fmt.Sprintf("%d LOST", r.Lost)
			style = color.New(color.FgRed, color.OpBold)
		}
		if cfg.Colours {
			status = style.Render(status)
		}
		table.Append([]string{
			strconv.Itoa(r.Round),
			strconv.Itoa(r.Summary.Participants),
			strconv.Itoa(r.Summary.Voters),
			strconv.FormatFloat(r.Summary.Average, 'f', 1, 64),
			strconv.FormatFloat(r.Summary.Min, 'f', -1, 64),
			strconv.FormatFloat(r.Summary.Max, 'f', -1, 64),
			status,
		})
	}
	table.Render()
}

func newTable(header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	return table
}
