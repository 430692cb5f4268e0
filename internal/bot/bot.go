package bot

import (
	"context"
	"fmt"
	"log"

	"github.com/bwmarrin/discordgo"
	"github.com/susu3304/tablesplit/internal/commands"
)

type Bot struct {
	session  *discordgo.Session
	svc      commands.BillService
	staff    commands.StaffChecker
	notifier *Notifier
}

func New(token, staffChannelID string) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	bot := &Bot{
		session:  session,
		notifier: NewNotifier(session, staffChannelID),
	}

	// Register event handlers
	session.AddHandler(bot.onReady)
	session.AddHandler(bot.onGuildCreate)
	session.AddHandler(bot.onInteractionCreate)

	session.Identify.Intents = discordgo.IntentsGuilds

	return bot, nil
}

// Notifier is the staff channel publisher. It only delivers while Run is
// active.
func (b *Bot) Notifier() *Notifier {
	return b.notifier
}

// Run opens the gateway connection, serves /bill from svc and delivers staff
// notifications until ctx is cancelled.
func (b *Bot) Run(ctx context.Context, svc commands.BillService, staff commands.StaffChecker) error {
	b.svc = svc
	b.staff = staff
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	log.Println("Discord bot is running")

	b.notifier.Run(ctx)

	log.Println("Discord bot is stopping")
	return b.session.Close()
}
