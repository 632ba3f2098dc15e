package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/liveChat"
)

const usage = `commands:
  signup <name> <number> <email> <password>
  signin <email> <password>
  logout
  whoami
  profile [name=<name>] [number=<number>]
  avatar <image file>
  token <expo push token>
  chats
  add <number>
  open <chat id>
  close
  send <text>
  messages
  status
  post <image file>
  quit`

type terminal struct {
	client *liveChat.Client
	in     *bufio.Scanner

	mu  sync.Mutex
	out io.Writer
}

func newTerminal(client *liveChat.Client, in io.Reader, out io.Writer) *terminal {
	return &terminal{client: client, in: bufio.NewScanner(in), out: out}
}

func (t *terminal) printf(format string, args ...interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format, args...)
}

// flush prints the pending notification, if nobody has shown it yet.
func (t *terminal) flush() {
	if msg, ok := t.client.Notification().Get(); ok {
		t.printf("! %s\n", msg)
	}
}

func (t *terminal) watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.client.Changes():
			t.flush()
		}
	}
}

func (t *terminal) run(ctx context.Context) error {
	t.printf("%s\n", usage)
	for t.in.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(t.in.Text())
		if line == "" {
			continue
		}
		if t.exec(ctx, line) {
			return nil
		}
	}
	return t.in.Err()
}

// exec runs one command line and reports whether the user asked to quit.
// Command failures are shown through the client's notification.
func (t *terminal) exec(ctx context.Context, line string) bool {
	defer t.flush()

	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "quit", "exit":
		return true
	case "help":
		t.printf("%s\n", usage)
	case "signup":
		if len(args) != 4 {
			t.printf("usage: signup <name> <number> <email> <password>\n")
			return false
		}
		t.client.SignUp(ctx, args[0], args[1], args[2], args[3])
	case "signin":
		if len(args) != 2 {
			t.printf("usage: signin <email> <password>\n")
			return false
		}
		t.client.SignIn(ctx, args[0], args[1])
	case "logout":
		t.client.LogOut()
	case "whoami":
		t.whoami()
	case "profile":
		t.profile(ctx, args)
	case "avatar":
		t.upload(ctx, args, t.client.UploadProfileImage)
	case "token":
		if len(args) != 1 {
			t.printf("usage: token <expo push token>\n")
			return false
		}
		t.client.RegisterPushToken(ctx, args[0])
	case "chats":
		t.chats()
	case "add":
		if len(args) != 1 {
			t.printf("usage: add <number>\n")
			return false
		}
		if chat, err := t.client.AddChat(ctx, args[0]); err == nil {
			t.printf("chat %s created\n", chat.ChatID)
		}
	case "open":
		if len(args) != 1 {
			t.printf("usage: open <chat id>\n")
			return false
		}
		if t.client.OpenChatMessages(args[0]) == nil {
			t.messages()
		}
	case "close":
		t.client.CloseChatMessages()
	case "send":
		t.send(ctx, strings.TrimSpace(strings.TrimPrefix(line, cmd)))
	case "messages":
		t.messages()
	case "status":
		t.statuses()
	case "post":
		t.upload(ctx, args, t.client.UploadStatus)
	default:
		t.printf("unknown command %q, try help\n", cmd)
	}
	return false
}

func (t *terminal) whoami() {
	profile := t.client.Profile()
	if profile == nil {
		t.printf("not signed in\n")
		return
	}
	t.printf("%s (%s) %s\n", profile.Name, profile.Number, profile.ImageURL)
}

func (t *terminal) profile(ctx context.Context, args []string) {
	var update liveChat.ProfileUpdate
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			t.printf("expected key=value, got %q\n", arg)
			return
		}
		switch key {
		case "name":
			update.Name = &value
		case "number":
			update.Number = &value
		default:
			t.printf("unknown profile field %q\n", key)
			return
		}
	}
	t.client.CreateOrUpdateProfile(ctx, update)
}

func (t *terminal) upload(ctx context.Context, args []string, fn func(context.Context, io.Reader, string) error) {
	if len(args) != 1 {
		t.printf("usage: <command> <image file>\n")
		return
	}

	f, err := os.Open(args[0])
	if err != nil {
		t.printf("%s\n", err)
		return
	}
	defer f.Close()

	contentType := mime.TypeByExtension(filepath.Ext(args[0]))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	fn(ctx, f, contentType)
}

func (t *terminal) chats() {
	self := t.client.Identity().UserID
	chats := t.client.Chats()
	if len(chats) == 0 {
		t.printf("no chats\n")
		return
	}
	for _, chat := range chats {
		partner := chat.Partner(self)
		t.printf("%s  %s (%s)\n", chat.ChatID, partner.Name, partner.Number)
	}
}

func (t *terminal) send(ctx context.Context, text string) {
	chatID := t.client.OpenChat()
	if chatID == "" {
		t.printf("open a chat first\n")
		return
	}
	t.client.SendMessage(ctx, chatID, text)
}

func (t *terminal) messages() {
	self := t.client.Identity().UserID
	chat, _ := t.client.Chat(t.client.OpenChat())

	for _, msg := range t.client.Messages() {
		who := "me"
		if msg.SentBy != self {
			who = chat.Partner(self).Name
		}
		stamp := time.UnixMilli(msg.Timestamp).Format("15:04")
		t.printf("[%s] %s: %s\n", stamp, who, msg.Message)
	}
}

func (t *terminal) statuses() {
	self := t.client.Identity().UserID
	own, others := liveChat.PartitionStatuses(t.client.Statuses(), self)

	t.printf("my status: %d post(s)\n", len(own))
	for _, status := range liveChat.LatestPerAuthor(others) {
		posts := len(liveChat.StatusesBy(others, status.User.UserID))
		t.printf("%s: %d post(s), latest %s\n", status.User.Name, posts, status.ImageURL)
	}
}
