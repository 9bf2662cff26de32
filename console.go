package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/golang/glog"

	"github.com/mqy/minichat/session"
	"github.com/mqy/minichat/store"
	"github.com/mqy/minichat/types"
	"github.com/mqy/minichat/ws"
)

// console is the presentation layer: renders store snapshots, issues
// commands. It owns no state of its own beyond render bookkeeping.
type console struct {
	ctx     context.Context
	sess    *session.Session
	chats   *store.ChatStore
	channel *ws.Channel

	mu       sync.Mutex
	rendered map[string]int // per chat, how many messages are on screen
	lastErr  string
}

func newConsole(ctx context.Context, sess *session.Session, chats *store.ChatStore, channel *ws.Channel) *console {
	return &console{
		ctx:      ctx,
		sess:     sess,
		chats:    chats,
		channel:  channel,
		rendered: make(map[string]int),
	}
}

func (c *console) run() {
	go c.watch()

	fmt.Println("minichat - type `help` for commands")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd, args := fields[0], fields[1:]

		switch cmd {
		case "help":
			c.help()
		case "login":
			c.login(args)
		case "register":
			c.register(args)
		case "logout":
			c.logout()
		case "status":
			c.printStatus()
		case "chats":
			c.printChats()
		case "open":
			c.open(args)
		case "close":
			c.chats.SetActiveChat("")
		case "send":
			c.send(line)
		case "start":
			c.start(args)
		case "create":
			c.create(args)
		case "quit", "exit":
			return
		default:
			fmt.Printf("unknown command `%s`, try `help`\n", cmd)
		}
	}
}

// watch repaints on store changes: new messages in the active chat and
// fresh errors.
func (c *console) watch() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.chats.Changes():
		}

		if msg := c.chats.Err(); msg != "" {
			c.mu.Lock()
			changed := msg != c.lastErr
			c.lastErr = msg
			c.mu.Unlock()
			if changed {
				fmt.Printf("\n[error] %s\n> ", msg)
			}
		}

		active := c.chats.ActiveChatID()
		if active == "" {
			continue
		}
		msgs := c.chats.Messages(active)

		c.mu.Lock()
		from := c.rendered[active]
		if from > len(msgs) { // list was reconciled shorter
			from = 0
		}
		fresh := msgs[from:]
		c.rendered[active] = len(msgs)
		c.mu.Unlock()

		if len(fresh) > 0 {
			fmt.Println()
			for _, m := range fresh {
				c.printMessage(m)
			}
			fmt.Print("> ")
		}
	}
}

func (c *console) help() {
	fmt.Print(`commands:
  login <email> <password>
  register <name> <email> <password>
  logout
  status
  chats                       list chats, newest first
  open <n|chatId>             focus a chat, fetch history
  close                       leave the focused chat
  send <text>                 send to the focused chat
  start <email> [message]     start a private chat by email
  create <PRIVATE|GROUP> <name|-> <userId>...
  quit
`)
}

func (c *console) connect() {
	go func() {
		if err := c.channel.Connect(c.ctx); err != nil {
			glog.Errorf("console: %v", err)
			c.chats.OnChannelError(err.Error())
		}
	}()
}

func (c *console) login(args []string) {
	if len(args) != 2 {
		fmt.Println("usage: login <email> <password>")
		return
	}
	if err := c.sess.Login(c.ctx, args[0], args[1]); err != nil {
		fmt.Printf("login failed: %v\n", err)
		return
	}
	fmt.Printf("logged in as %s\n", c.sess.CurrentUser().Email)
	c.connect()
}

func (c *console) register(args []string) {
	if len(args) != 3 {
		fmt.Println("usage: register <name> <email> <password>")
		return
	}
	if err := c.sess.Register(c.ctx, args[0], args[1], args[2]); err != nil {
		fmt.Printf("register failed: %v\n", err)
		return
	}
	fmt.Printf("registered and logged in as %s\n", c.sess.CurrentUser().Email)
	c.connect()
}

func (c *console) logout() {
	c.channel.Disconnect()
	c.chats.Reset()
	c.sess.Logout(c.ctx)
	c.mu.Lock()
	c.rendered = make(map[string]int)
	c.mu.Unlock()
	fmt.Println("logged out")
}

func (c *console) printStatus() {
	fmt.Printf("session: %s", c.sess.State())
	if u := c.sess.CurrentUser(); u != nil {
		fmt.Printf(" (%s)", u.Email)
	}
	fmt.Printf(", channel: ")
	if c.chats.Connected() {
		fmt.Println("connected")
	} else {
		fmt.Println("disconnected")
	}
}

func (c *console) printChats() {
	chats := c.chats.Chats()
	if len(chats) == 0 {
		fmt.Println("no chats")
		return
	}
	var selfID string
	if u := c.sess.CurrentUser(); u != nil {
		selfID = u.ID
	}
	for i, chat := range chats {
		marker := " "
		if chat.ID == c.chats.ActiveChatID() {
			marker = "*"
		}
		preview := ""
		if chat.LastMessage != nil {
			preview = chat.LastMessage.Content
			if len(preview) > 40 {
				preview = preview[:40] + "..."
			}
			preview = "  | " + preview
		}
		fmt.Printf("%s %2d. [%s] %s%s\n", marker, i+1, strings.ToLower(chat.Type), chat.DisplayName(selfID), preview)
	}
}

func (c *console) open(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: open <n|chatId>")
		return
	}
	chatID := args[0]
	if n, err := strconv.Atoi(args[0]); err == nil {
		chats := c.chats.Chats()
		if n < 1 || n > len(chats) {
			fmt.Printf("no chat #%d\n", n)
			return
		}
		chatID = chats[n-1].ID
	}

	c.mu.Lock()
	delete(c.rendered, chatID)
	c.mu.Unlock()

	c.chats.SetActiveChat(chatID)

	msgs := c.chats.Messages(chatID)
	for _, m := range msgs {
		c.printMessage(m)
	}
	c.mu.Lock()
	c.rendered[chatID] = len(msgs)
	c.mu.Unlock()
}

func (c *console) send(line string) {
	text := strings.TrimSpace(strings.TrimPrefix(line, "send"))
	active := c.chats.ActiveChatID()
	if active == "" {
		fmt.Println("no chat open, use `open` first")
		return
	}
	if err := c.chats.SendMessage(active, text); err != nil {
		fmt.Printf("send failed: %v\n", err)
	}
}

func (c *console) start(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: start <email> [message]")
		return
	}
	initial := strings.Join(args[1:], " ")
	if err := c.chats.StartChatByEmail(c.ctx, args[0], initial); err != nil {
		fmt.Printf("start failed: %v\n", err)
		return
	}
	fmt.Println("chat requested")
}

func (c *console) create(args []string) {
	if len(args) < 2 {
		fmt.Println("usage: create <PRIVATE|GROUP> <name|-> <userId>...")
		return
	}
	chatType := strings.ToUpper(args[0])
	if chatType != types.ChatPrivate && chatType != types.ChatGroup {
		fmt.Println("chat type must be PRIVATE or GROUP")
		return
	}
	name := args[1]
	if name == "-" {
		name = ""
	}
	participants := args[2:]
	if err := c.chats.CreateChat(c.ctx, participants, chatType, name); err != nil {
		fmt.Printf("create failed: %v\n", err)
		return
	}
	fmt.Println("chat created, it will show up shortly")
}

func (c *console) printMessage(m *types.Message) {
	who := m.SenderEmail
	if who == "" {
		who = m.SenderID
	}
	if u := c.sess.CurrentUser(); u != nil && m.SenderID == u.ID {
		who = "me"
	}
	suffix := ""
	switch m.Status {
	case types.StatusSending:
		suffix = " ..."
	case types.StatusFailed:
		suffix = " [failed]"
	}
	fmt.Printf("  %s %s: %s%s\n", m.CreatedAt.Local().Format("15:04"), who, m.Content, suffix)
}
