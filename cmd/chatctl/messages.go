package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/matheus3301/quickchat/internal/bus"
	"github.com/matheus3301/quickchat/internal/model"
	"github.com/matheus3301/quickchat/internal/notify"
	"github.com/matheus3301/quickchat/internal/status"
	"github.com/urfave/cli/v2"
)

var chatsCommand = &cli.Command{
	Name:   "chats",
	Usage:  "List conversations, most recent first",
	Before: requiresAuth,
	Action: cmdChats,
}

var threadCommand = &cli.Command{
	Name:      "thread",
	Usage:     "Show the conversation with a user",
	ArgsUsage: "USER",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "mark-read", Usage: "Mark received messages as read"},
	},
	Before: requiresAuth,
	Action: cmdThread,
}

var sendCommand = &cli.Command{
	Name:      "send",
	Usage:     "Send a message",
	ArgsUsage: "USER TEXT...",
	Before:    requiresAuth,
	Action:    cmdSend,
}

var readCommand = &cli.Command{
	Name:      "read",
	Usage:     "Mark the conversation with a user as read",
	ArgsUsage: "USER",
	Before:    requiresAuth,
	Action:    cmdRead,
}

var deleteCommand = &cli.Command{
	Name:      "delete",
	Usage:     "Delete a message you sent",
	ArgsUsage: "MESSAGE_ID",
	Before:    requiresAuth,
	Action:    cmdDelete,
}

var searchCommand = &cli.Command{
	Name:      "search",
	Usage:     "Search your messages",
	ArgsUsage: "QUERY",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "limit", Value: 50},
	},
	Before: requiresAuth,
	Action: cmdSearch,
}

var watchCommand = &cli.Command{
	Name:   "watch",
	Usage:  "Print messages as they arrive until interrupted",
	Before: requiresAuth,
	Action: cmdWatch,
}

func requireArg(ctx *cli.Context, what string) (string, error) {
	if ctx.NArg() == 0 {
		return "", fmt.Errorf("you must specify %s", what)
	}
	return ctx.Args().Get(0), nil
}

func cmdChats(ctx *cli.Context) error {
	s, err := openSession(ctx, true)
	if err != nil {
		return err
	}
	defer s.Close()

	rows, err := s.Roster(ctx.Context)
	if err != nil {
		return err
	}
	if jsonOutput(ctx) {
		return outputJSON(rows)
	}
	tw := newTable()
	fmt.Fprintln(tw, "NAME\tUNREAD\tWHEN\tLAST MESSAGE")
	for _, r := range rows {
		if r.Last == nil {
			continue
		}
		unread := ""
		if r.Unread > 0 {
			unread = fmt.Sprint(r.Unread)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", displayName(r.Profile), unread, formatTime(r.Last.CreatedAt), oneLine(r.Preview, 60))
	}
	return tw.Flush()
}

func displayName(p model.Profile) string {
	if p.FullName != "" {
		return p.FullName
	}
	return p.UserID
}

func cmdThread(ctx *cli.Context) error {
	arg, err := requireArg(ctx, "a user")
	if err != nil {
		return err
	}
	peer, err := resolveUser(ctx, arg)
	if err != nil {
		return err
	}
	s, err := openSession(ctx, true)
	if err != nil {
		return err
	}
	defer s.Close()

	thread, err := s.Thread(peer.UserID)
	if err != nil {
		return err
	}
	if ctx.Bool("mark-read") {
		if _, err := s.MarkConversationRead(ctx.Context, peer.UserID); err != nil {
			return err
		}
	}
	if jsonOutput(ctx) {
		return outputJSON(thread)
	}
	if len(thread) == 0 {
		fmt.Printf("No messages with %s yet.\n", displayName(peer))
		return nil
	}
	for _, m := range thread {
		who := displayName(peer)
		if m.SenderID == s.Self() {
			who = "You"
		}
		marker := ""
		if m.ReceiverID == s.Self() && !m.IsRead {
			marker = " *"
		}
		fmt.Printf("[%s] %s: %s%s\n", formatTime(m.CreatedAt), who, m.Content, marker)
	}
	return nil
}

func cmdSend(ctx *cli.Context) error {
	if ctx.NArg() < 2 {
		return errors.New("usage: chatctl send USER TEXT...")
	}
	peer, err := resolveUser(ctx, ctx.Args().Get(0))
	if err != nil {
		return err
	}
	content := strings.Join(ctx.Args().Tail(), " ")
	m, err := getClient(ctx).SendMessage(ctx.Context, peer.UserID, content)
	if err != nil {
		return fmt.Errorf("message not sent: %w", err)
	}
	if jsonOutput(ctx) {
		return outputJSON(m)
	}
	fmt.Printf("Sent to %s (%s)\n", displayName(peer), m.ID)
	return nil
}

func cmdRead(ctx *cli.Context) error {
	arg, err := requireArg(ctx, "a user")
	if err != nil {
		return err
	}
	peer, err := resolveUser(ctx, arg)
	if err != nil {
		return err
	}
	s, err := openSession(ctx, true)
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := s.MarkConversationRead(ctx.Context, peer.UserID)
	if err != nil {
		return err
	}
	fmt.Printf("Marked %d messages from %s as read\n", n, displayName(peer))
	return nil
}

func cmdDelete(ctx *cli.Context) error {
	id, err := requireArg(ctx, "a message id")
	if err != nil {
		return err
	}
	if err := getClient(ctx).DeleteMessage(ctx.Context, id); err != nil {
		if errors.Is(err, model.ErrForbidden) {
			return errors.New("only the sender can delete a message")
		}
		return err
	}
	fmt.Println("Message deleted")
	return nil
}

func cmdSearch(ctx *cli.Context) error {
	query := strings.Join(ctx.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("you must specify a query")
	}
	found, err := getClient(ctx).SearchMessages(ctx.Context, query, ctx.Int("limit"))
	if err != nil {
		return err
	}
	if jsonOutput(ctx) {
		return outputJSON(found)
	}
	names, err := profileNames(ctx)
	if err != nil {
		return err
	}
	tw := newTable()
	fmt.Fprintln(tw, "ID\tWHEN\tFROM\tTO\tMESSAGE")
	for _, m := range found {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", m.ID, formatTime(m.CreatedAt), names(m.SenderID), names(m.ReceiverID), oneLine(m.Content, 60))
	}
	return tw.Flush()
}

func profileNames(ctx *cli.Context) (func(string) string, error) {
	profiles, err := getClient(ctx).ListProfiles(ctx.Context)
	if err != nil {
		return nil, err
	}
	self := getCredentials(ctx).UserID
	byID := make(map[string]string, len(profiles))
	for _, p := range profiles {
		byID[p.UserID] = displayName(p)
	}
	return func(id string) string {
		if id == self {
			return "You"
		}
		if name, ok := byID[id]; ok {
			return name
		}
		return id
	}, nil
}

func cmdWatch(ctx *cli.Context) error {
	names, err := profileNames(ctx)
	if err != nil {
		return err
	}
	s, err := openSession(ctx, true)
	if err != nil {
		return err
	}
	defer s.Close()

	sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	changes, unsubChanges := s.Bus().Subscribe(bus.KindStoreChanged, 64)
	defer unsubChanges()
	statuses, unsubStatus := s.Bus().Subscribe(bus.KindSessionStatus, 8)
	defer unsubStatus()
	notices, unsubNotices := s.Bus().Subscribe(bus.KindNotice, 8)
	defer unsubNotices()

	fmt.Fprintln(os.Stderr, "Watching for messages, Ctrl-C to stop.")
	for {
		select {
		case <-sigCtx.Done():
			return nil
		case evt := <-changes:
			if change, ok := evt.Payload.(model.ChangeEvent); ok {
				printChange(ctx, change, names)
			}
		case evt := <-notices:
			if n, ok := evt.Payload.(notify.Notice); ok && n.Variant == notify.Destructive {
				fmt.Fprintf(os.Stderr, "%s: %s\n", n.Title, n.Description)
			}
		case evt := <-statuses:
			change, ok := evt.Payload.(status.StatusChange)
			if ok && change.To == status.Degraded {
				return fmt.Errorf("live updates stopped: %w", model.ErrUnavailable)
			}
		}
	}
}

func printChange(ctx *cli.Context, evt model.ChangeEvent, names func(string) string) {
	if jsonOutput(ctx) {
		_ = outputJSON(evt)
		return
	}
	m := evt.Row()
	if m == nil {
		return
	}
	switch evt.Kind {
	case model.EventInsert:
		fmt.Printf("[%s] %s -> %s: %s\n", formatTime(m.CreatedAt), names(m.SenderID), names(m.ReceiverID), m.Content)
	case model.EventUpdate:
		if m.IsRead {
			fmt.Printf("[%s] %s read %s\n", formatTime(m.CreatedAt), names(m.ReceiverID), m.ID)
		}
	case model.EventDelete:
		fmt.Printf("[%s] %s deleted %s\n", formatTime(m.CreatedAt), names(m.SenderID), m.ID)
	}
}
