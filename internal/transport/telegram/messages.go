package telegram

import (
	"fmt"
	"strings"
	"time"

	tg "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/and161185/remind-keeper/internal/model"
)

const (
	btnMyReminders = "My reminders"

	txtWelcome = "Hi! I'm your reminder bot. I help you stay organised and never miss an important event.\n\n" +
		"Just tell me what to remember and when, and I'll set a reminder for you.\n\n" +
		"For example: \"Remind me about the meeting tomorrow at 15:00\".\n\n" +
		"<b>If you don't give a date, I'll remind you today.</b>"
	txtAnalysing       = "Analysing your reminder..."
	txtNoReminders     = "You have no reminders"
	txtListHeader      = "Here are your reminders:\n"
	txtNeedDate        = "Please send the reminder again with a date and time.\nThe minimum lead time is 1 minute."
	txtLeadTime        = "The minimum lead time is 1 minute."
	txtSubmitFailed    = "Something went wrong while setting the reminder. Please try again later."
	txtBadNumber       = "Please give a valid reminder number."
	txtBadEdit         = "Please give a valid reminder number, new text and date."
	txtDeleted         = "Reminder deleted"
	txtUpdated         = "Reminder updated"
	txtNotFound        = "Reminder not found"
	txtDeleteFailed    = "Something went wrong while deleting the reminder."
	txtEditFailed      = "Something went wrong while editing the reminder."
	txtUpdatedNoResend = "Reminder updated, but its notification could not be rescheduled."

	fmtListItem     = "\n%d. \"%s\" at %s"
	fmtConfirmation = "Your reminder: \"%s\"\nDate: %s\nTime: %s"

	listLayout = "2006-01-02 15:04"
	dateLayout = "02 January"
	timeLayout = "15:04"
	// editLayout is the date format accepted by /edit_reminder.
	editLayout = "2006-01-02 15:04:05"
)

var mainKeyboard = tg.NewReplyKeyboard(tg.NewKeyboardButtonRow(tg.NewKeyboardButton(btnMyReminders)))

var botCommands = []tg.BotCommand{
	{Command: cmdStart, Description: "Start the bot"},
	{Command: cmdList, Description: "List your reminders"},
	{Command: cmdEdit, Description: "Example: /edit_reminder 1 New text 2024-10-22 14:30:00"},
	{Command: cmdDelete, Description: "Example: /delete_reminder 1"},
}

// renderList formats reminders as a numbered list in loc.
func renderList(rs []model.Reminder, loc *time.Location) string {
	if len(rs) == 0 {
		return txtNoReminders
	}
	var b strings.Builder
	b.WriteString(txtListHeader)
	for i, r := range rs {
		fmt.Fprintf(&b, fmtListItem, i+1, r.Text, r.FireAt.In(loc).Format(listLayout))
	}
	return b.String()
}

func renderConfirmation(r model.Reminder, loc *time.Location) string {
	at := r.FireAt.In(loc)
	return fmt.Sprintf(fmtConfirmation, r.Text, at.Format(dateLayout), at.Format(timeLayout))
}
