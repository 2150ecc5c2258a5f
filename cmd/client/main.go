// cmd/client/main.go

package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"geochat/internal/config"
	"geochat/internal/discovery"
	"geochat/internal/domain/room"
	"geochat/internal/service/sync"
	"geochat/internal/transport/ws"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	userID := cfg.Client.UserID
	if userID == "" {
		userID = uuid.NewString()
	}

	engine := sync.New(sync.Identity{
		UserID:   userID,
		Username: cfg.Client.Username,
	}, nil)

	ctx := context.Background()
	url := fmt.Sprintf("%s?user_id=%s&username=%s", cfg.Client.WebSocketURL, userID, cfg.Client.Username)
	conn, err := ws.Dial(ctx, url, engine.HandleEvent, ws.DefaultConfig())
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()
	engine.SetTransport(conn)
	engine.SetRadius(cfg.Client.DefaultRadiusKm)

	disco := discovery.New(cfg.Client.ServerURL)

	fmt.Printf("Connected as %s (%s). Type /help for commands.\n", cfg.Client.Username, userID)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			active := engine.ActiveRoomID()
			if active == "" {
				fmt.Println("No active room. /open <id> first.")
				continue
			}
			engine.SendMessage(active, line)
			continue
		}
		if !runCommand(ctx, engine, disco, line) {
			return
		}
	}
}

// runCommand executes one slash command; it returns false on /quit.
func runCommand(ctx context.Context, engine *sync.Engine, disco *discovery.Client, line string) bool {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/help":
		fmt.Println(`/rooms                list known rooms
/visible              list rooms passing the current filters
/search <query>       set the text filter (comma-separated terms)
/radius <km>          set the radius filter (0 = unbounded)
/position <lat> <lon> set the reference position
/nearby               fetch rooms near the position from the server
/open <id>            make a room active and show its log
/join <id>            ask to join a room
/leave <id>           ask to leave a room
/create <name> <lat> <lon>
/quit`)

	case "/rooms":
		printRooms(engine, engine.Rooms())

	case "/visible":
		printRooms(engine, engine.VisibleRooms())

	case "/search":
		engine.SetQuery(strings.Join(args, " "))
		printRooms(engine, engine.VisibleRooms())

	case "/radius":
		if len(args) != 1 {
			fmt.Println("usage: /radius <km>")
			break
		}
		km, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			fmt.Println("bad radius:", err)
			break
		}
		engine.SetRadius(km)
		printRooms(engine, engine.VisibleRooms())

	case "/position":
		if len(args) != 2 {
			fmt.Println("usage: /position <lat> <lon>")
			break
		}
		lat, err1 := strconv.ParseFloat(args[0], 64)
		lon, err2 := strconv.ParseFloat(args[1], 64)
		if err1 != nil || err2 != nil {
			fmt.Println("bad coordinates")
			break
		}
		engine.SetPosition(lat, lon)

	case "/nearby":
		fetchNearby(ctx, engine, disco)

	case "/open":
		if len(args) != 1 {
			fmt.Println("usage: /open <id>")
			break
		}
		engine.SetActiveRoom(args[0])
		for _, m := range engine.Messages(args[0]) {
			fmt.Printf("[%s] %s: %s\n", m.Timestamp.Format("15:04:05"), m.Username, m.Text)
		}

	case "/join":
		if len(args) == 1 {
			engine.JoinRoom(args[0])
		}

	case "/leave":
		if len(args) == 1 {
			engine.LeaveRoom(args[0])
		}

	case "/create":
		if len(args) != 3 {
			fmt.Println("usage: /create <name> <lat> <lon>")
			break
		}
		lat, err1 := strconv.ParseFloat(args[1], 64)
		lon, err2 := strconv.ParseFloat(args[2], 64)
		if err1 != nil || err2 != nil {
			fmt.Println("bad coordinates")
			break
		}
		engine.CreateRoom(args[0], lat, lon)

	case "/quit":
		return false

	default:
		fmt.Println("Unknown command; /help lists them.")
	}
	return true
}

// fetchNearby runs a discovery query from the engine's current filters and
// replaces the directory with the result.
func fetchNearby(ctx context.Context, engine *sync.Engine, disco *discovery.Client) {
	pos := engine.Position()
	if pos == nil {
		fmt.Println("Set /position first.")
		return
	}
	radius := engine.Radius()
	if radius <= 0 {
		radius = 50
	}
	rooms, err := disco.NearbyRooms(ctx, discovery.Query{
		Latitude:  pos.Latitude,
		Longitude: pos.Longitude,
		RadiusKm:  radius,
	})
	if err != nil {
		fmt.Println("discovery failed:", err)
		return
	}
	engine.ApplyRoomList(rooms)
	printRooms(engine, engine.Rooms())
}

func printRooms(engine *sync.Engine, rooms []room.Room) {
	if len(rooms) == 0 {
		fmt.Println("(no rooms)")
		return
	}
	active := engine.ActiveRoomID()
	for _, r := range rooms {
		marker := " "
		if r.ID == active {
			marker = "*"
		}
		joined := ""
		if r.IsJoined {
			joined = " joined"
		}
		unread := ""
		if r.UnreadCount > 0 {
			unread = fmt.Sprintf(" (%d unread)", r.UnreadCount)
		}
		fmt.Printf("%s %s  %s (%.4f, %.4f)%s%s\n", marker, r.ID, r.Name, r.Latitude, r.Longitude, joined, unread)
	}
}
