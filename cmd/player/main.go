// cmd/player is a terminal client for one room. The host judges rounds with
// the local word-overlap judge and plays on fallback scenes.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/jason-s-yu/mindmeld/internal/client"
	"github.com/jason-s-yu/mindmeld/internal/orchestrator"
	"github.com/jason-s-yu/mindmeld/internal/protocol"
	"github.com/sirupsen/logrus"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "room server base URL")
	roomID := flag.String("room", "", "room id")
	role := flag.String("role", "host", "host or guest")
	name := flag.String("name", "", "nickname shown to the other player")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	if *roomID == "" {
		logger.Fatal("-room is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sender := &lateSender{}
	orch := orchestrator.New(orchestrator.Config{
		Role:   protocol.Role(*role),
		Sender: sender,
		Judge:  orchestrator.LocalJudge{},
		Logger: logger,
	})
	defer orch.Close()

	c, err := client.Dial(ctx, *server, *roomID, protocol.Role(*role), client.Options{
		Nickname: *name,
		Logger:   logger,
		OnMessage: func(m protocol.ServerMessage) {
			orch.HandleMessage(m)
			show(m, orch)
		},
		OnStatus: func(s client.Status) {
			if s == client.StatusDisconnected {
				fmt.Println("* disconnected (type 'reconnect' to retry)")
			}
		},
	})
	if err != nil {
		logger.Fatalf("connect: %v", err)
	}
	defer c.Close()
	sender.c.Store(c)

	fmt.Println("commands: start | guess <words> | again | reconnect | quit")
	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if done := run(ctx, strings.TrimSpace(line), c, orch); done {
				return
			}
		}
	}
}

func run(ctx context.Context, line string, c *client.Client, orch *orchestrator.Orchestrator) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	var err error
	switch cmd {
	case "":
	case "start":
		err = orch.StartNextRound(ctx)
	case "guess":
		err = orch.SubmitGuess(ctx, arg)
	case "again":
		err = orch.PlayAgain(ctx)
	case "reconnect":
		err = c.Reconnect(ctx)
	case "quit":
		return true
	default:
		fmt.Printf("unknown command %q\n", cmd)
	}
	if err != nil {
		fmt.Printf("! %v\n", err)
	}
	return false
}

func show(m protocol.ServerMessage, orch *orchestrator.Orchestrator) {
	switch m := m.(type) {
	case protocol.RoomState:
		fmt.Printf("* room is %s (round %d)\n", orch.Phase(), m.State.CurrentRound)
	case protocol.PlayerJoined:
		fmt.Printf("* %s joined\n", m.Role)
	case protocol.RoundStart:
		fmt.Printf("* round %d: scene %q, what comes to mind?\n", m.Round, m.Params.SceneID)
	case protocol.RoundArtUpdated:
		fmt.Printf("* art updated (%s)\n", m.Theme)
	case protocol.GuessReceived:
		fmt.Printf("* guess %s is in\n", m.From)
	case protocol.BothGuessed:
		fmt.Printf("* %q vs %q, judging...\n", m.GuessA, m.GuessB)
	case protocol.RoundResult:
		fmt.Printf("* %s: %s\n", m.Record.Match, m.Record.Comment)
	case protocol.GameOver:
		fmt.Printf("* game over after %d rounds", len(m.History))
		if m.FinalComment != nil {
			fmt.Printf(": %s", *m.FinalComment)
		}
		fmt.Println()
	case protocol.OpponentDisconnected:
		fmt.Println("* opponent disconnected")
	case protocol.OpponentReconnected:
		fmt.Println("* opponent is here")
	case protocol.ErrorMessage:
		fmt.Printf("! %s\n", m.Message)
	}
}

// lateSender lets the orchestrator exist before the client it sends through.
type lateSender struct {
	c atomic.Pointer[client.Client]
}

func (s *lateSender) Send(ctx context.Context, msg protocol.ClientMessage) error {
	c := s.c.Load()
	if c == nil {
		return client.ErrNotConnected
	}
	return c.Send(ctx, msg)
}
