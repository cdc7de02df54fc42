// Package lines centralises every user-facing string, in Hebrew and
// English. Edit this file to change BaskIt's voice. Keep lines short.
package lines

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/hammamikhairi/baskit/internal/domain"
)

// Lang is a UI language code.
type Lang string

const (
	Hebrew  Lang = "he"
	English Lang = "en"
)

// ParseLang maps anything that is not English to Hebrew.
func ParseLang(s string) Lang {
	if strings.EqualFold(strings.TrimSpace(s), "en") {
		return English
	}
	return Hebrew
}

func pick(lang Lang, he, en string) string {
	if lang == English {
		return en
	}
	return he
}

// ── Greeting / Global ────────────────────────────────────────────

var welcomeHe = []string{
	"שלום! מה צריך לקנות?",
	"היי, מה מוסיפים לרשימה?",
	"אני מקשיב. מה חסר?",
}

var welcomeEn = []string{
	"Hi! What do we need?",
	"Hello. What goes on the list?",
	"Listening. What's missing?",
}

// Welcome returns a random greeting.
func Welcome(lang Lang) string {
	if lang == English {
		return welcomeEn[rand.IntN(len(welcomeEn))]
	}
	return welcomeHe[rand.IntN(len(welcomeHe))]
}

func Bye(lang Lang) string {
	return pick(lang, "להתראות.", "Bye.")
}

func AIDisabled(lang Lang) string {
	return pick(lang,
		"שירות ההבנה כבוי. עובד במצב בסיסי.",
		"Language service is off. Running on basic rules.")
}

func Degraded(lang Lang) string {
	return pick(lang,
		"(השירות לא זמין, הבנתי לפי כללים בסיסיים)",
		"(service unavailable, understood with basic rules)")
}

// ── Mutations ────────────────────────────────────────────────────

// Mutated describes an applied event.
func Mutated(lang Lang, ev *domain.DomainEvent) string {
	if ev.Undo {
		return pick(lang, "בוטל. ", "Undone. ") + describeState(lang, ev)
	}

	item := eventItem(ev)
	listName := eventListName(ev)

	switch ev.Op {
	case domain.OpAddItem:
		if item == nil {
			break
		}
		if ev.Before != nil && ev.Before.Items[item.ID] != nil {
			return pick(lang,
				fmt.Sprintf("עדכנתי: %s, עכשיו %s.", item.Name, quantity(lang, item.Quantity, item.Unit)),
				fmt.Sprintf("Merged: %s, now %s.", item.Name, quantity(lang, item.Quantity, item.Unit)))
		}
		return pick(lang,
			fmt.Sprintf("הוספתי %s %s לרשימה.", quantity(lang, item.Quantity, item.Unit), item.Name),
			fmt.Sprintf("Added %s %s.", quantity(lang, item.Quantity, item.Unit), item.Name))
	case domain.OpRemoveItem:
		if item == nil {
			break
		}
		return pick(lang,
			fmt.Sprintf("הורדתי את %s מהרשימה.", item.Name),
			fmt.Sprintf("Removed %s.", item.Name))
	case domain.OpUpdateQuantity:
		if item == nil {
			break
		}
		return pick(lang,
			fmt.Sprintf("עדכנתי: %s, %s.", item.Name, quantity(lang, item.Quantity, item.Unit)),
			fmt.Sprintf("Updated %s to %s.", item.Name, quantity(lang, item.Quantity, item.Unit)))
	case domain.OpReduceQuantity:
		if item == nil {
			break
		}
		if item.Deleted {
			return pick(lang,
				fmt.Sprintf("לא נשאר %s, הורדתי מהרשימה.", item.Name),
				fmt.Sprintf("No %s left, removed it.", item.Name))
		}
		return pick(lang,
			fmt.Sprintf("הורדתי: %s, נשארו %s.", item.Name, quantity(lang, item.Quantity, item.Unit)),
			fmt.Sprintf("Took some off: %s, now %s.", item.Name, quantity(lang, item.Quantity, item.Unit)))
	case domain.OpShowList:
		if ev.After != nil {
			return ListSummary(lang, ev.After)
		}
	case domain.OpMarkBought:
		if item == nil {
			break
		}
		return pick(lang,
			fmt.Sprintf("סימנתי ש%s נקנה.", item.Name),
			fmt.Sprintf("Marked %s as bought.", item.Name))
	case domain.OpCreateList:
		return pick(lang,
			fmt.Sprintf("יצרתי רשימה חדשה: %s.", listName),
			fmt.Sprintf("Created list %s.", listName))
	case domain.OpSwitchList:
		return pick(lang,
			fmt.Sprintf("עברתי לרשימה %s.", listName),
			fmt.Sprintf("Switched to %s.", listName))
	case domain.OpDeleteList:
		return pick(lang,
			fmt.Sprintf("מחקתי את הרשימה %s.", listName),
			fmt.Sprintf("Deleted list %s.", listName))
	}
	return pick(lang, "בוצע.", "Done.")
}

func describeState(lang Lang, ev *domain.DomainEvent) string {
	if ev.After == nil {
		return pick(lang, "הרשימה הוסרה.", "The list is gone.")
	}
	if item := eventItem(ev); item != nil {
		if item.Deleted {
			return pick(lang,
				fmt.Sprintf("%s לא ברשימה.", item.Name),
				fmt.Sprintf("%s is off the list.", item.Name))
		}
		return pick(lang,
			fmt.Sprintf("%s: %s.", item.Name, quantity(lang, item.Quantity, item.Unit)),
			fmt.Sprintf("%s: %s.", item.Name, quantity(lang, item.Quantity, item.Unit)))
	}
	return pick(lang,
		fmt.Sprintf("הרשימה %s חזרה.", ev.After.Name),
		fmt.Sprintf("List %s is back.", ev.After.Name))
}

func eventItem(ev *domain.DomainEvent) *domain.Item {
	if ev.ItemID == "" {
		return nil
	}
	if ev.After != nil {
		if it := ev.After.Items[ev.ItemID]; it != nil {
			return it
		}
	}
	if ev.Before != nil {
		return ev.Before.Items[ev.ItemID]
	}
	return nil
}

func eventListName(ev *domain.DomainEvent) string {
	if ev.After != nil {
		return ev.After.Name
	}
	if ev.Before != nil {
		return ev.Before.Name
	}
	return ""
}

func quantity(_ Lang, q int, unit string) string {
	if unit == "" || unit == "יחידה" || unit == "unit" {
		return fmt.Sprint(q)
	}
	return fmt.Sprintf("%d %s", q, unit)
}

// ── Clarification ────────────────────────────────────────────────

// Clarify asks the user to confirm a low-confidence guess.
func Clarify(lang Lang, in domain.Intent) string {
	if in.Tool == domain.ToolClarify || in.Tool == domain.ToolUnknown {
		if in.Args.Question != "" {
			return in.Args.Question
		}
		return pick(lang,
			"לא הבנתי. אפשר לנסח אחרת? למשל: \"תוסיף 2 חלב\"",
			"I didn't get that. Try something like \"add 2 milk\".")
	}
	return pick(lang,
		fmt.Sprintf("לא בטוח שהבנתי. התכוונת %s?", Describe(lang, in)),
		fmt.Sprintf("Not sure I got that. Did you mean to %s?", Describe(lang, in)))
}

// Describe renders an intent as a short action phrase.
func Describe(lang Lang, in domain.Intent) string {
	a := in.Args
	qty := ""
	if a.Quantity != nil {
		qty = fmt.Sprint(*a.Quantity) + " "
	}
	switch in.Tool {
	case domain.ToolAddItem:
		return pick(lang, fmt.Sprintf("להוסיף %s%s", qty, a.ItemName), fmt.Sprintf("add %s%s", qty, a.ItemName))
	case domain.ToolRemoveItem:
		return pick(lang, fmt.Sprintf("להוריד את %s", a.ItemName), fmt.Sprintf("remove %s", a.ItemName))
	case domain.ToolUpdateQuantity:
		return pick(lang, fmt.Sprintf("לעדכן את %s ל-%s", a.ItemName, strings.TrimSpace(qty)), fmt.Sprintf("set %s to %s", a.ItemName, strings.TrimSpace(qty)))
	case domain.ToolMarkBought:
		return pick(lang, fmt.Sprintf("לסמן ש%s נקנה", a.ItemName), fmt.Sprintf("mark %s as bought", a.ItemName))
	case domain.ToolReduceQuantity:
		if qty == "" {
			qty = "1 "
		}
		return pick(lang, fmt.Sprintf("להוריד %sמ%s", qty, a.ItemName), fmt.Sprintf("take %soff %s", qty, a.ItemName))
	case domain.ToolShowList:
		if a.ListName == "" {
			return pick(lang, "להציג את הרשימה", "show the list")
		}
		return pick(lang, fmt.Sprintf("להציג את הרשימה %s", a.ListName), fmt.Sprintf("show list %s", a.ListName))
	case domain.ToolCreateList:
		return pick(lang, fmt.Sprintf("ליצור רשימה %s", a.ListName), fmt.Sprintf("create list %s", a.ListName))
	case domain.ToolSwitchList:
		return pick(lang, fmt.Sprintf("לעבור לרשימה %s", a.ListName), fmt.Sprintf("switch to list %s", a.ListName))
	case domain.ToolDeleteList:
		if a.ListName == "" {
			return pick(lang, "למחוק את הרשימה הנוכחית", "delete the current list")
		}
		return pick(lang, fmt.Sprintf("למחוק את הרשימה %s", a.ListName), fmt.Sprintf("delete list %s", a.ListName))
	default:
		return pick(lang, "משהו אחר", "something else")
	}
}

// ── Rejections ───────────────────────────────────────────────────

// Rejected explains a failure. guess, when set, is echoed back so the
// user can see what was understood.
func Rejected(lang Lang, kind domain.ErrorKind, guess *domain.Intent) string {
	msg := rejection(lang, kind)
	if guess != nil && guess.Tool != domain.ToolClarify && guess.Tool != domain.ToolUnknown {
		msg += pick(lang,
			fmt.Sprintf(" (הבנתי: %s)", Describe(lang, *guess)),
			fmt.Sprintf(" (understood: %s)", Describe(lang, *guess)))
	}
	return msg
}

func rejection(lang Lang, kind domain.ErrorKind) string {
	switch kind {
	case domain.KindEmptyInput:
		return pick(lang, "לא נאמר כלום.", "Nothing was said.")
	case domain.KindTooLong:
		return pick(lang, "ההודעה ארוכה מדי. נסה בקצרה.", "That message is too long. Keep it short.")
	case domain.KindInsufficientHebrewRatio:
		return pick(lang, "אני מבין עברית. נסה לכתוב בעברית.", "Please write in Hebrew, or start with an English command like \"add\".")
	case domain.KindRateLimited, domain.KindTimeout, domain.KindUnavailable:
		return pick(lang, "השירות עמוס כרגע. נסה שוב עוד רגע.", "The service is busy. Try again in a moment.")
	case domain.KindUnauthorized:
		return pick(lang, "אין הרשאה לשירות ההבנה. בדוק את מפתח ה-API.", "Not authorized with the language service. Check the API key.")
	case domain.KindMalformed, domain.KindUnknownTool:
		return pick(lang, "לא הצלחתי להבין את הבקשה.", "I couldn't make sense of that request.")
	case domain.KindDuplicateItem:
		return pick(lang, "הפריט כבר ברשימה.", "That item is already on the list.")
	case domain.KindQuantityOverflow:
		return pick(lang, "הכמות הכוללת גבוהה מדי.", "That would make the quantity too large.")
	case domain.KindInvalidQuantity:
		return pick(lang, "כמות לא תקינה.", "Invalid quantity.")
	case domain.KindListLimitExceeded:
		return pick(lang, "הגעת למספר הרשימות המרבי. מחק רשימה קודם.", "You have too many lists. Delete one first.")
	case domain.KindDuplicateList:
		return pick(lang, "כבר יש רשימה בשם הזה.", "A list with that name already exists.")
	case domain.KindUnsupportedTool:
		return pick(lang, "את זה אני לא יודע לעשות.", "I can't do that.")
	case domain.KindInvalidArguments:
		return pick(lang, "חסר מידע כדי לבצע.", "Some details are missing.")
	case domain.KindItemNotFound:
		return pick(lang, "הפריט לא נמצא ברשימה.", "That item isn't on the list.")
	case domain.KindListNotFound:
		return pick(lang, "הרשימה לא נמצאה.", "List not found.")
	case domain.KindListDeleted:
		return pick(lang, "הרשימה נמחקה.", "That list was deleted.")
	case domain.KindNothingToUndo:
		return pick(lang, "אין מה לבטל.", "Nothing to undo.")
	case domain.KindExpiredUndo:
		return pick(lang, "עבר יותר מדי זמן, אי אפשר לבטל.", "Too late to undo that.")
	case domain.KindPersistence:
		return pick(lang, "השמירה נכשלה. לא בוצע שינוי.", "Saving failed. Nothing changed.")
	case domain.KindCanceled:
		return pick(lang, "בוטל.", "Canceled.")
	default:
		return pick(lang, "משהו השתבש.", "Something went wrong.")
	}
}

// ── Lists ────────────────────────────────────────────────────────

// ListSummary renders a list for display, one active item per line.
func ListSummary(lang Lang, l *domain.List) string {
	items := l.ActiveItems()
	if len(items) == 0 {
		return pick(lang, fmt.Sprintf("%s: ריקה.", l.Name), fmt.Sprintf("%s: empty.", l.Name))
	}
	slices.SortFunc(items, func(a, b *domain.Item) int { return a.CreatedAt.Compare(b.CreatedAt) })

	var b strings.Builder
	fmt.Fprintf(&b, "%s:", l.Name)
	for _, it := range items {
		mark := "•"
		if it.Bought {
			mark = "✓"
		}
		fmt.Fprintf(&b, "\n  %s %s × %s", mark, it.Name, quantity(lang, it.Quantity, it.Unit))
	}
	return b.String()
}

// ── Help ─────────────────────────────────────────────────────────

// Help lists the REPL commands and a few example utterances.
func Help(lang Lang) string {
	return pick(lang,
		`פקודות:
  רשימה      הצג את הרשימה הפעילה
  רשימות     הצג את כל הרשימות
  בטל        בטל את הפעולה האחרונה
  יציאה      צא
דוגמאות: "תוסיף 2 חלב", "תוריד את הלחם", "תיצור רשימה חדשה בשם מסיבה"`,
		`Commands:
  list       show the active list
  lists      show all lists
  undo       revert the last change
  quit       exit
Examples: "add 2 milk", "remove bread", "create list party"`)
}

// NoLists is shown when the user has no lists yet.
func NoLists(lang Lang) string {
	return pick(lang, "אין עדיין רשימות.", "No lists yet.")
}
