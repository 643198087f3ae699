// roomcli is an interactive terminal client for one room: join, chat, ready
// up, play minigames and collect rewards, driven by line commands on stdin.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tankmates/tankmates/internal/config"
	"github.com/tankmates/tankmates/internal/friends"
	"github.com/tankmates/tankmates/internal/game"
	"github.com/tankmates/tankmates/internal/rest"
	"github.com/tankmates/tankmates/internal/reward"
	"github.com/tankmates/tankmates/internal/room"
	"github.com/tankmates/tankmates/internal/roster"
	"github.com/tankmates/tankmates/internal/screen"
	"github.com/tankmates/tankmates/internal/transport"
	"github.com/tankmates/tankmates/pkg/protocol"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: roomcli <userID> <roomCode>")
		os.Exit(2)
	}
	userID, roomCode := os.Args[1], os.Args[2]

	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg := config.Load()
	ctx := context.Background()

	restClient := rest.NewClient(cfg.RESTBase, log)
	me, err := restClient.User(ctx, userID)
	if err != nil {
		log.Fatal("identity fetch failed", zap.Error(err))
	}

	var store friends.Store
	if cfg.PostgresDSN != "" {
		db, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{})
		if err != nil {
			log.Fatal("postgres open failed", zap.Error(err))
		}
		if store, err = friends.NewGormStore(db); err != nil {
			log.Fatal("friend cache init failed", zap.Error(err))
		}
	} else {
		store = friends.NewMemoryStore()
	}

	directory := friends.NewDirectory(userID, restClient, store, log)
	if err := directory.Load(ctx); err != nil {
		log.Warn("friend cache load failed", zap.Error(err))
	}
	if err := directory.Refresh(ctx); err != nil {
		log.Warn("friend refresh failed", zap.Error(err))
	}

	r := room.New(room.Config{
		RoomID:   roomCode,
		Identity: room.Identity{ID: me.ID, Nickname: me.Nickname, Level: me.Level},
		Transport: transport.Config{
			URL:            cfg.BrokerURL + "?room=" + roomCode,
			ReconnectDelay: cfg.ReconnectDelay,
			MaxReconnects:  cfg.MaxReconnects,
		},
		Screen: screen.Config{},
	}, restClient, directory, log)

	r.OnChatMessage(func(m protocol.ChatMessage) {
		fmt.Printf("[%s] %s\n", m.Sender, m.Content)
	})
	r.OnScreenChange(func(s screen.State) {
		fmt.Printf("-- screen: %s\n", s)
	})
	r.OnRosterChange(func(ps []roster.Participant) {
		names := make([]string, 0, len(ps))
		for _, p := range ps {
			tag := ""
			if p.Host {
				tag = "*"
			}
			if p.Ready {
				tag += "+"
			}
			names = append(names, p.DisplayName+tag)
		}
		fmt.Printf("-- roster: %s\n", strings.Join(names, ", "))
	})
	r.OnResult(func(res *reward.Result) {
		fmt.Printf("-- rank %d, +%d exp (level %d)\n", res.Rank, res.EarnedExp, res.Exp.UserLevel)
		if res.LeveledUp {
			if t, err := r.ConfirmLevelUp(ctx); err == nil {
				fmt.Printf("-- level up! tickets: %d\n", t.FishTicket)
			}
		}
	})
	r.OnRemoved(func() {
		fmt.Println("-- removed from room")
		os.Exit(0)
	})
	r.OnConnectionDown(func(err error) {
		fmt.Printf("-- connection lost: %v\n", err)
		os.Exit(1)
	})

	if err := r.Enter(ctx); err != nil {
		log.Fatal("enter failed", zap.Error(err))
	}
	defer r.Leave()

	fmt.Println("commands: chat <msg> | ready | unready | select <variant> | start | tap | press <0-3> | move <dx> | eat <FEED|STONE> | kick <user> | invite <user> | who | track | ack | quit")

	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if done := dispatch(ctx, r, sc.Text()); done {
			return
		}
	}
}

func dispatch(ctx context.Context, r *room.Room, line string) bool {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	var err error
	switch cmd {
	case "":
	case "chat":
		err = r.SendChat(arg)
	case "ready":
		err = r.SetReady(true)
	case "unready":
		err = r.SetReady(false)
	case "select":
		if v, ok := protocol.ParseVariant(arg); ok {
			err = r.SelectVariant(v)
		} else {
			fmt.Println("variants: TAP_RACE, DIRECTION_SEQUENCE, ITEM_DODGE")
		}
	case "start":
		err = r.StartGame()
	case "tap":
		_, err = r.Tap()
	case "press":
		var dir int
		if dir, err = strconv.Atoi(arg); err == nil {
			var ok bool
			ok, err = r.PressDirection(dir)
			if err == nil && !ok {
				fmt.Println("miss")
			}
		}
	case "move":
		var dx, x int
		if dx, err = strconv.Atoi(arg); err == nil {
			if x, err = r.Move(dx); err == nil {
				fmt.Printf("x=%d\n", x)
			}
		}
	case "eat":
		_, err = r.Collide(protocol.ItemType(arg))
	case "kick":
		err = r.Kick(arg)
	case "invite":
		err = r.Invite(ctx, arg)
	case "who":
		for _, p := range r.Participants() {
			fmt.Printf("  %s host=%v ready=%v level=%d\n", p.DisplayName, p.Host, p.Ready, p.Level)
		}
	case "track":
		e := r.Engine()
		if e == nil {
			fmt.Println("no game in progress")
			break
		}
		players := e.Players()
		for i, p := range players {
			fmt.Printf("  lane %d: %s steps=%d progress=%d stunned=%v\n",
				game.Lane(i, len(players)), p.Nickname, game.TrackSteps(p.Progress), p.Progress, p.Stunned)
		}
	case "ack":
		err = r.AcknowledgeResult(ctx)
	case "quit", "leave":
		return true
	default:
		fmt.Println("unknown command:", cmd)
	}
	if err != nil {
		fmt.Println("error:", err)
	}
	return false
}
