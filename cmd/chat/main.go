// Command chat is a terminal chat client for the marketplace: it opens
// a session for one user, lists their conversations and streams the
// active thread. Feeds come from the websocket gateway when GATEWAY_URL
// is set, otherwise straight from Redis pub/sub.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"oficina-chat/config"
	"oficina-chat/internal/backend"
	"oficina-chat/internal/domain"
	"oficina-chat/internal/redisfeed"
	"oficina-chat/internal/repository"
	"oficina-chat/internal/session"
	"oficina-chat/internal/wsfeed"
	"oficina-chat/pkg/database"
	"oficina-chat/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
)

func main() {
	userID := flag.String("user", "", "user id to open the session as")
	role := flag.String("role", "driver", "participant role: driver or workshop")
	flag.Parse()

	if *userID == "" {
		log.Fatal("missing -user")
	}
	participantRole := domain.RoleDriver
	if strings.EqualFold(*role, "workshop") {
		participantRole = domain.RoleWorkshop
	}

	cfg := config.LoadConfig()
	lg := logger.New(cfg.AppMode)
	defer lg.Logger.Sync()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}

	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()

	publisher := redisfeed.NewPublisher(redisClient)
	store := repository.NewPostgresStore(db, publisher, lg)
	presence := redisfeed.NewPresenceStore(redisClient, publisher, cfg.PresenceTTL)

	var feed backend.Feed
	if cfg.GatewayURL != "" {
		gw, err := wsfeed.NewFeedSource(cfg.GatewayURL, cfg.AccessToken, lg)
		if err != nil {
			log.Fatalf("gateway feed: %v", err)
		}
		feed = gw
	} else {
		feed = redisfeed.NewFeedSource(redisClient, lg)
	}

	client := backend.Composite{
		Store:          store,
		PresenceWriter: presence,
		Feed:           feed,
	}

	sess := session.New(client, participantRole, lg)
	ctx := context.Background()
	if err := sess.Open(ctx, *userID); err != nil {
		// Partial failures leave the session usable; report and go on.
		lg.Warnf("session opened with errors: %v", err)
	}
	defer sess.Close()

	go renderLoop(sess)

	printConversations(sess)
	fmt.Println(`commands: /list, /select <conversation-id>, /quit; anything else sends to the active thread`)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "/quit":
			return
		case line == "/list":
			printConversations(sess)
		case strings.HasPrefix(line, "/select "):
			id := strings.TrimSpace(strings.TrimPrefix(line, "/select "))
			if err := sess.SelectConversation(ctx, id); err != nil {
				fmt.Printf("! select: %v\n", err)
				continue
			}
			for _, msg := range sess.Messages() {
				printMessage(msg, *userID)
			}
		default:
			active := sess.ActiveConversation()
			if active == "" {
				fmt.Println("! no active conversation, /select one first")
				continue
			}
			if _, err := sess.Send(ctx, active, line, domain.KindText); err != nil {
				fmt.Printf("! send: %v (draft kept: %q)\n", err, sess.Draft())
			}
		}
	}
}

// renderLoop prints messages appended to the active stream by the
// realtime feed.
func renderLoop(sess *session.Session) {
	seen := make(map[string]struct{})
	for range sess.Updates() {
		if sess.Connectivity() == backend.FeedDegraded {
			fmt.Println("… connection degraded, reconnecting")
		}
		for _, msg := range sess.Messages() {
			if _, ok := seen[msg.ID]; ok {
				continue
			}
			seen[msg.ID] = struct{}{}
			printMessage(msg, "")
		}
	}
}

func printConversations(sess *session.Session) {
	conversations := sess.Conversations()
	if len(conversations) == 0 {
		fmt.Println("(no conversations)")
		return
	}
	for _, conv := range conversations {
		marker := ""
		if conv.UnreadCount > 0 {
			marker = fmt.Sprintf(" (%d unread)", conv.UnreadCount)
		}
		fmt.Printf("%s  [%s]%s  %s\n", conv.ID, conv.Status, marker, conv.LastMessagePreview)
	}
}

func printMessage(msg domain.Message, selfID string) {
	who := string(msg.SenderRole)
	if selfID != "" && msg.SenderID == selfID {
		who = "you"
	}
	fmt.Printf("[%s] %s: %s\n", msg.CreatedAt.Format("15:04"), who, msg.Content)
}
