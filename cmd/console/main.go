package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"

	"supportdesk/domain"
	"supportdesk/repositories"
)

// Read-only inspection console for a running (or stopped) server.
// BypassLockGuard allows opening while the server process holds the lock.
func main() {
	dbPath := flag.String("db", "/tmp/supportdesk/badger", "Path to badger DB")
	statusFilter := flag.String("status", "", "Filter on status (open, in_progress, closed)")
	sessionID := flag.String("session", "", "Dump the message history of one session")
	flag.Parse()

	opts := badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	sessions := repositories.NewSessionRepository(db, logger)
	messages := repositories.NewMessageRepository(db, logger)

	if *sessionID != "" {
		dumpHistory(messages, *sessionID)
		return
	}
	listSessions(sessions, *statusFilter)
}

func listSessions(sessions repositories.ISessionRepository, statusFilter string) {
	var filter *domain.Status
	if statusFilter != "" {
		status := domain.Status(statusFilter)
		if !status.Valid() {
			log.Fatalf("Unknown status %q", statusFilter)
		}
		filter = &status
	}

	rows, err := sessions.List(filter)
	if err != nil {
		log.Fatal(err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Session", "User", "Status", "Unread", "Last Activity", "Last Message"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, session := range rows {
		unread, err := sessions.Unread(session.ID, string(domain.RoleAgent))
		if err != nil {
			log.Fatal(err)
		}

		preview := ""
		if session.LastMessage != nil {
			preview = session.LastMessage.Content
			if len(preview) > 48 {
				preview = preview[:48] + "…"
			}
		}

		table.Append([]string{
			session.ID.String()[:8],
			session.UserName,
			renderStatus(session.Status),
			fmt.Sprintf("%d", unread),
			session.LastActivityAt.Format("15:04:05"),
			preview,
		})
	}
	table.Render()
}

func dumpHistory(messages repositories.IMessageRepository, raw string) {
	id, err := uuid.Parse(raw)
	if err != nil {
		log.Fatalf("Bad session id %q: %v", raw, err)
	}

	history, err := messages.History(id)
	if err != nil {
		log.Fatal(err)
	}

	for _, message := range history {
		sender := message.SenderName
		if message.SenderRole == domain.RoleAgent {
			sender = color.New(color.FgCyan).Render(sender)
		}
		fmt.Printf("%5d  %s  %s: %s\n",
			message.Seq,
			message.CreatedAt.Format("15:04:05"),
			sender,
			message.Content,
		)
	}
}

func renderStatus(status domain.Status) string {
	switch status {
	case domain.StatusOpen:
		return color.New(color.FgGreen).Render(string(status))
	case domain.StatusInProgress:
		return color.New(color.FgYellow).Render(string(status))
	case domain.StatusClosed:
		return color.New(color.FgGray).Render(string(status))
	}
	return string(status)
}
