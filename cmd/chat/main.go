// 终端聊天客户端：本地缓存先行 + 乐观发送 + 实时事件订阅。
package main

import (
	"Amoura/internal/client/cache"
	"Amoura/internal/client/chat"
	"Amoura/internal/client/transport"
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	log "log/slog"
)

func main() {
	var (
		server     = flag.String("server", "http://localhost:8080", "服务端地址")
		token      = flag.String("token", "", "登录令牌")
		userID     = flag.Uint64("user", 0, "当前用户 ID")
		passphrase = flag.String("passphrase", "", "消息加密口令")
		cachePath  = flag.String("cache", defaultCachePath(), "本地缓存路径")
	)
	flag.Parse()

	if *token == "" || *userID == 0 || *passphrase == "" {
		fmt.Fprintln(os.Stderr, "用法: chat -token <jwt> -user <id> -passphrase <口令> [-server <url>]")
		os.Exit(1)
	}

	if err := run(*server, *token, *userID, *passphrase, *cachePath); err != nil {
		log.Error("客户端退出", "error", err)
		os.Exit(1)
	}
}

func run(server, token string, userID uint64, passphrase, cachePath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(filepath.Dir(cachePath), 0o700); err != nil {
		return err
	}
	kv, err := cache.Open(cachePath)
	if err != nil {
		return err
	}
	defer kv.Close()

	chatCache := cache.NewChatCache(kv)
	runner := cache.NewRunner(kv, cache.NewPlaintextMigration(chatCache, passphrase))
	if err := runner.Run(ctx); err != nil {
		return err
	}

	rest := transport.NewREST(server, token)
	socket, err := transport.DialSocket(ctx, server, token)
	if err != nil {
		return err
	}
	defer socket.Close()

	store := chat.NewStore(userID, passphrase, rest, socket, chatCache)
	store.Bootstrap()
	store.Subscribe()

	return repl(ctx, store)
}

// repl 极简交互循环。/open 进入会话后，普通输入直接发送文本。
func repl(ctx context.Context, store *chat.Store) error {
	var openPeer uint64

	store.OnChange = func() {
		// 留给更完整的界面做增量刷新，这里只保证下一次渲染是新状态
	}

	fmt.Println("命令: /chats  /open <用户ID>  /close  /del <消息ID>  /online  /quit")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/quit":
			return nil

		case line == "/chats":
			sums, err := store.LoadChats(ctx)
			if err != nil {
				fmt.Println("拉取会话列表失败:", err)
				continue
			}
			for _, s := range sums {
				marker := ""
				if s.UnseenCount > 0 {
					marker = fmt.Sprintf(" (%d 未读)", s.UnseenCount)
				}
				fmt.Printf("[%d] %s: %s%s\n", s.PartnerID, s.PartnerName, s.LastMessage, marker)
			}

		case strings.HasPrefix(line, "/open "):
			id, err := strconv.ParseUint(strings.TrimSpace(line[len("/open "):]), 10, 64)
			if err != nil {
				fmt.Println("无效的用户 ID")
				continue
			}
			openPeer = id
			messages, err := store.OpenConversation(ctx, id)
			if err != nil {
				fmt.Println("历史消息可能不完整:", err)
			}
			for _, m := range messages {
				printMessage(m)
			}

		case line == "/close":
			openPeer = 0
			store.CloseConversation()

		case strings.HasPrefix(line, "/del "):
			if openPeer == 0 {
				fmt.Println("先 /open 一个会话")
				continue
			}
			id := strings.TrimSpace(line[len("/del "):])
			if err := store.DeleteMessage(ctx, openPeer, id); err != nil {
				fmt.Println("删除失败:", err)
			}

		case line == "/online":
			fmt.Println("在线:", store.Online())

		default:
			if openPeer == 0 {
				fmt.Println("先 /open 一个会话再发消息")
				continue
			}
			store.NotifyTyping(openPeer)
			if _, err := store.SendText(ctx, openPeer, line); err != nil {
				fmt.Println("发送失败:", err)
			}
		}
	}
}

func printMessage(m *chat.Message) {
	text := m.Plaintext
	if text == "" {
		switch m.Type {
		case chat.TypeImage:
			text = "[图片] " + m.URL
		case chat.TypeVideoCall:
			text = "[视频通话]"
		default:
			text = chat.EncryptedPlaceholder
		}
	}
	status := ""
	if m.Pending() {
		status = " (发送中)"
	} else if m.Seen {
		status = " (已读)"
	}
	fmt.Printf("%s %d: %s%s\n", m.CreatedAt.Format("15:04"), m.SenderID, text, status)
}

func defaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "chat.db"
	}
	return filepath.Join(home, ".amoura", "chat.db")
}
