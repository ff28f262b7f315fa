package bot

import (
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/tbourn/filegate-bot/internal/domain"
)

// Callback data values.
const (
	cbStore   = "store"
	cbStorage = "storage"
	cbMoney   = "money"
	cbDelete  = "delete"

	cbDeletePrefix       = "delete:"
	cbLegacyDeletePrefix = "del_"
)

const (
	msgNotAdmitted   = "⚠️ Please verify first using /start."
	msgVerifyPrompt  = "🔐 Click to verify (watch ad) for %s access:"
	msgAwaitCallback = "Access is granted as soon as the verification page confirms your visit."
	msgMenu          = "Choose an action:"
	msgStorePrompt   = "📤 Send the file you want to store."
	msgNoFiles       = "📂 No files stored."
	msgDeleteHint    = "🗑️ Open 📂 Storage and tap Delete under the file you want to remove."
	msgDeleted       = "✅ Deleted file with ID %s"
	msgDeleteMissing = "⚠️ File %s was not found."
	msgDeleteForeign = "⛔ File %s does not belong to you."
	msgRelayFailed   = "❌ Could not store your file. Please try again later."
	msgFileMissing   = "⚠️ That file link is invalid or the file was deleted."
	msgFailure       = "⚠️ Something went wrong. Please try again."
	msgHelp          = "/start – verify and get access\n" +
		"/menu – store, list, and manage files\n" +
		"/storage – list your stored files\n" +
		"/money – show your referral balance\n\n" +
		"Send any document, video, photo, or text to store it."
)

var (
	printer    = message.NewPrinter(language.English)
	titleCaser = cases.Title(language.English)
)

// commands is the list registered with setMyCommands.
var commands = []tgbotapi.BotCommand{
	{Command: "start", Description: "Verify and get access"},
	{Command: "menu", Description: "Store, list and delete files"},
	{Command: "storage", Description: "List your stored files"},
	{Command: "money", Description: "Show your referral balance"},
	{Command: "help", Description: "How to use the bot"},
}

func balanceText(balance float64) string {
	return printer.Sprintf("💸 Your Balance: ₹%.2f", balance)
}

func storedText(kind domain.FileKind, link string) string {
	return fmt.Sprintf("✅ Stored! (%s)\n🔗 Link: %s", titleCaser.String(string(kind)), link)
}

func verifiedText(expiry time.Time) string {
	return "✅ You're verified until " + expiry.UTC().Format("2006-01-02 15:04 MST") + "."
}

// windowText renders an admission window such as "24-hour".
func windowText(ttl time.Duration) string {
	if ttl >= time.Hour && ttl%time.Hour == 0 {
		return fmt.Sprintf("%d-hour", int(ttl/time.Hour))
	}
	return ttl.String()
}

func menuKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📥 Store", cbStore)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📂 Storage", cbStorage)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("💰 Money", cbMoney)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🗑️ Delete File", cbDelete)),
	)
}

func verifyKeyboard(link string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("Verify Now", link)),
	)
}

func deleteKeyboard(id string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🗑️ Delete", cbDeletePrefix+id)),
	)
}
