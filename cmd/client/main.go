package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cbodonnell/battlecards/pkg/client/network"
	"github.com/cbodonnell/battlecards/pkg/game/types"
	"github.com/cbodonnell/battlecards/pkg/messages"
	"github.com/joho/godotenv"
)

func main() {
	serverURL := flag.String("server", "", "Gateway URL (defaults to ws://<host>:3000/ws)")
	hostname := flag.String("hostname", network.DefaultServerHostname, "Gateway hostname")
	gameID := flag.String("game", "", "Game to join")
	slot := flag.String("slot", string(types.SlotPlayer1), "Slot to join as (player1 or player2)")
	name := flag.String("name", "", "Player name")
	abilities := flag.String("abilities", "", "Comma-separated starting abilities")
	isHost := flag.Bool("host", false, "Join as the host")
	flag.Parse()

	godotenv.Load()
	if *serverURL == "" {
		if env := os.Getenv("BATTLECARDS_SERVER_URL"); env != "" {
			*serverURL = env
		} else {
			*serverURL = network.DefaultServerURL(*hostname)
		}
	}

	parsedSlot, err := types.ParseSlot(*slot)
	if err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
	if *gameID == "" {
		fmt.Println("Error: -game is required")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	connectCtx, connectCancel := context.WithTimeout(ctx, 10*time.Second)
	client := network.NewWSClient(*serverURL)
	err = client.Connect(connectCtx)
	connectCancel()
	if err != nil {
		fmt.Println("Error connecting to gateway:", err)
		os.Exit(1)
	}
	defer client.Close()

	s := newSession(*gameID, parsedSlot)
	join := &messages.JoinGame{
		GameID:     *gameID,
		Slot:       parsedSlot,
		PlayerName: *name,
		Abilities:  splitList(*abilities),
		IsHost:     *isHost,
	}
	if err := client.Send(ctx, messages.MessageTypeClientJoinGame, join); err != nil {
		fmt.Println("Error joining game:", err)
		os.Exit(1)
	}

	go func() {
		defer cancel()
		for {
			msg, err := client.Receive(ctx)
			if err != nil {
				if ctx.Err() == nil {
					fmt.Println("Gateway disconnected:", err)
				}
				return
			}
			s.observe(msg)
			fmt.Printf("Server: %s %s\n", msg.Type, msg.Payload)
		}
	}()

	go func() {
		defer cancel()
		scanner := bufio.NewScanner(os.Stdin)
		fmt.Println("Commands: request <ability>, approve <id>, reject <id>, state, abilities <a,b,c>, exit")
		for scanner.Scan() {
			line := scanner.Text()
			if line == "exit" {
				fmt.Println("Received exit command, exiting.")
				return
			}
			msg, err := s.command(line)
			if err != nil {
				fmt.Println("Error:", err)
				continue
			}
			if msg == nil {
				continue
			}
			if err := client.SendMessage(ctx, msg); err != nil {
				fmt.Println("Error sending message:", err)
				return
			}
		}
	}()

	<-ctx.Done()
	fmt.Println("Exiting client.")
}
