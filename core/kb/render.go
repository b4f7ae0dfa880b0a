package kb

import (
	"fmt"
	"strings"
)

// MainMenu renders the numbered category list.
func MainMenu(b *Base, botName string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "👋 **Добро пожаловать в %s!** 🤖\n\n", botName)
	sb.WriteString("**Выберите категорию, введя цифру:**\n\n")
	for i, c := range b.Categories {
		fmt.Fprintf(&sb, "%d. 🖥️ **%s**\n", i+1, c.Name)
	}
	fmt.Fprintf(&sb, "\n**Введите %s для выбора категории**", rangeHint(b.Len()))
	return sb.String()
}

// CategoryMenu renders the numbered question list of c with the back reminder.
func CategoryMenu(c *Category, backWord string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 **Категория: %s**\n\n", c.Name)
	sb.WriteString("**Выберите вопрос, введя цифру:**\n\n")
	for i, qa := range c.Questions {
		fmt.Fprintf(&sb, "%d. ❓ **%s**\n", i+1, qa.Question)
	}
	fmt.Fprintf(&sb, "\n**Введите %s для выбора вопроса**\n", rangeHint(len(c.Questions)))
	fmt.Fprintf(&sb, "📝 Или введите '%s' для возврата к категориям", backWord)
	return sb.String()
}

// AnswerView renders a question with its answer and navigation reminders.
func AnswerView(qa QA, backWord, menuWord string) string {
	return fmt.Sprintf("🎯 **Вопрос:** %s\n\n📝 **Ответ:** %s\n\n"+
		"💡 *Для возврата к вопросам категории введите '%s'*\n"+
		"📋 *Для возврата к категориям введите '%s'*",
		qa.Question, qa.Answer, backWord, menuWord)
}

// InvalidChoice prefixes view with the out-of-range notice.
func InvalidChoice(view string) string {
	return "❌ **Неверный выбор!**\n\n" + view
}

// ExpectNumber prefixes view with the "type a number" notice for the range 1..max.
func ExpectNumber(max int, view string) string {
	return fmt.Sprintf("❌ **Пожалуйста, введите %s**\n\n", rangeHint(max)) + view
}

// UnknownCommand prefixes view with the unknown command notice.
func UnknownCommand(view string) string {
	return "❌ **Неизвестная команда**\n\n" + view
}

func rangeHint(max int) string {
	if max <= 1 {
		return "цифру 1"
	}
	return fmt.Sprintf("цифру от 1 до %d", max)
}
