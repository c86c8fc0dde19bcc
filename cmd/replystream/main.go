package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/mwatt/replystream/chat"
	"github.com/mwatt/replystream/config"
	"github.com/mwatt/replystream/model"
	"github.com/mwatt/replystream/store"
	"github.com/mwatt/replystream/stream"
)

const historyPageLimit = 10_000

func main() {
	configPath := flag.String("config", "~/.replystream/config.json", "path to config file")
	sessionID := flag.String("session", "", "resume an existing session id")
	flag.Parse()

	if flag.NArg() != 0 {
		panic("unexpected positional arguments")
	}
	if *configPath == "" {
		panic("config path must not be empty")
	}

	if err := run(*configPath, *sessionID); err != nil {
		fmt.Fprintln(os.Stderr, "replystream:", err)
		os.Exit(1)
	}
}

func run(configPath, sessionID string) error {
	cfg, err := config.Load(expandHome(configPath))
	if err != nil {
		return err
	}
	mode, err := chat.ParseMode(cfg.Chat.Mode)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.StatePath, 0o755); err != nil {
		return err
	}
	db, err := store.OpenSQLite(filepath.Join(cfg.StatePath, "replystream.db"))
	if err != nil {
		return err
	}
	defer db.Close()

	client := stream.NewClient(cfg.Endpoint.URL, cfg.Endpoint.APIKey, cfg.Endpoint.Extra, idleTimeout(cfg.Chat))
	session, record, err := openSession(db, sessionID, mode, client)
	if err != nil {
		return err
	}
	defer session.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return repl(ctx, session, record, db.Sessions)
}

func idleTimeout(c config.ChatConfig) time.Duration {
	if c.IdleTimeoutSeconds < 0 {
		return 0
	}
	return time.Duration(c.IdleTimeoutSeconds) * time.Second
}

func openSession(db *store.SQLiteStore, id string, mode chat.Mode, transport chat.Transport) (*chat.Session, *model.Session, error) {
	if id != "" {
		record, err := db.Sessions.Get(id)
		if err != nil {
			return nil, nil, fmt.Errorf("resume session %q: %v", id, err)
		}
		if record.Mode != string(mode) {
			return nil, nil, fmt.Errorf("session %q was created in %s mode", id, record.Mode)
		}
		msgs, err := db.Messages.ListBySession(id, historyPageLimit, 0)
		if err != nil {
			return nil, nil, err
		}
		session := chat.NewSession(id, mode, transport, db.Messages)
		history := make([]model.Message, 0, len(msgs))
		for _, m := range msgs {
			history = append(history, *m)
		}
		session.Resume(history)
		return session, record, nil
	}
	session := chat.NewSession("", mode, transport, db.Messages)
	now := time.Now().UTC()
	record := &model.Session{
		ID:        session.ID(),
		Mode:      string(mode),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.Sessions.Create(record); err != nil {
		return nil, nil, err
	}
	fmt.Fprintln(os.Stderr, "session", session.ID())
	return session, record, nil
}

func repl(ctx context.Context, session *chat.Session, record *model.Session, sessions store.SessionStore) error {
	events, unsub := session.Events().Subscribe()
	defer unsub()

	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !in.Scan() {
			return in.Err()
		}
		line := strings.TrimSpace(in.Text())
		switch line {
		case "":
			continue
		case "/quit":
			return nil
		case "/reset":
			session.Reset()
			continue
		}
		if err := sendAndRender(ctx, session, events, line); err != nil {
			return err
		}
		updateRecord(session, record, sessions)
		if ctx.Err() != nil {
			return nil
		}
	}
}

func sendAndRender(ctx context.Context, session *chat.Session, events <-chan chat.Event, text string) error {
	if err := session.Send(ctx, text); err != nil {
		if errors.Is(err, chat.ErrBusy) || errors.Is(err, chat.ErrEmptyInput) {
			fmt.Fprintln(os.Stderr, "replystream:", err)
			return nil
		}
		return err
	}
	printed := 0
	for ev := range events {
		switch ev.Type {
		case chat.EventReplyDelta:
			printed = printTail(ev.Content, printed)
		case chat.EventReplyFinalized:
			printTail(ev.Content, printed)
			fmt.Println()
			if len(ev.Suggestion) > 0 {
				fmt.Println("suggestion:", string(ev.Suggestion))
			}
			return nil
		}
	}
	return nil
}

// printTail writes the part of content not printed yet. The reply only ever
// grows, so printing the suffix renders a live stream without redrawing.
func printTail(content string, printed int) int {
	if printed > len(content) {
		// content was rewritten shorter (error annotation path); start over
		fmt.Println()
		printed = 0
	}
	fmt.Print(content[printed:])
	return len(content)
}

func updateRecord(session *chat.Session, record *model.Session, sessions store.SessionStore) {
	record.MessageCount = len(session.History())
	record.UpdatedAt = time.Now().UTC()
	if err := sessions.Update(record); err != nil {
		fmt.Fprintln(os.Stderr, "replystream: update session:", err)
	}
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	h, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(h, p[2:])
}
