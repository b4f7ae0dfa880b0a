package kb

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
categories:
  - key: dsm
    name: DSM
    questions:
      - question: Как настроить DSM?
        answer: Центр управления → Система.
      - question: Как обновить DSM?
        answer: Центр управления → Обновление.
  - key: backup
    name: Резервное копирование
    questions:
      - question: Как настроить Hyper Backup?
        answer: Откройте Hyper Backup и создайте задачу.
`

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "knowledge_base.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestParsePreservesOrder(t *testing.T) {
	b, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	require.Equal(t, 2, b.Len())

	first, ok := b.At(1)
	require.True(t, ok)
	assert.Equal(t, "dsm", first.Key)
	assert.Equal(t, "Как обновить DSM?", first.Questions[1].Question)

	second, ok := b.At(2)
	require.True(t, ok)
	assert.Equal(t, "backup", second.Key)

	_, ok = b.At(0)
	assert.False(t, ok)
	_, ok = b.At(3)
	assert.False(t, ok)

	c, ok := b.Lookup("backup")
	require.True(t, ok)
	assert.Equal(t, "Резервное копирование", c.Name)
	_, ok = b.Lookup("missing")
	assert.False(t, ok)
}

func TestParseJSON(t *testing.T) {
	b, err := Parse([]byte(`{"categories":[{"key":"a","name":"A","questions":[{"question":"q","answer":"a"}]}]}`))
	require.NoError(t, err)
	assert.Equal(t, 1, b.Len())
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"empty":         `categories: []`,
		"duplicate key": "categories:\n  - {key: a, name: A, questions: [{question: q, answer: x}]}\n  - {key: a, name: B, questions: [{question: q, answer: x}]}\n",
		"no questions":  "categories:\n  - {key: a, name: A, questions: []}\n",
		"empty name":    "categories:\n  - {key: a, name: '', questions: [{question: q, answer: x}]}\n",
		"empty answer":  "categories:\n  - {key: a, name: A, questions: [{question: q, answer: ''}]}\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.ErrorIs(t, err, ErrInvalid)
		})
	}

	_, err := Parse([]byte("categories: [oops"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalid)
}

func TestLoadOrFallback(t *testing.T) {
	b := LoadOrFallback(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Equal(t, 1, b.Len())
	c, ok := b.At(1)
	require.True(t, ok)
	assert.Equal(t, "dsm", c.Key)

	b = LoadOrFallback(writeFile(t, "categories: {"))
	assert.Equal(t, Fallback().Categories, b.Categories)
}

func TestStoreReload(t *testing.T) {
	path := writeFile(t, sampleYAML)
	s := NewStore(path)
	before := s.Current()
	require.Equal(t, 2, before.Len())

	require.NoError(t, os.WriteFile(path, []byte("categories:\n  - {key: x, name: X, questions: [{question: q, answer: a}]}\n"), 0o644))
	require.NoError(t, s.Reload())
	after := s.Current()
	assert.Equal(t, 1, after.Len())
	assert.Equal(t, 2, before.Len(), "old snapshot must stay intact")

	require.NoError(t, os.WriteFile(path, []byte("categories: {"), 0o644))
	require.Error(t, s.Reload())
	assert.Same(t, after, s.Current(), "broken source keeps the previous snapshot")
}

func TestStoreWatchReloadsOnChange(t *testing.T) {
	path := writeFile(t, sampleYAML)
	s := NewStore(path)
	require.Equal(t, 2, s.Current().Len())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Watch(ctx, 10*time.Millisecond)
		close(done)
	}()

	require.NoError(t, os.WriteFile(path, []byte("categories:\n  - {key: x, name: X, questions: [{question: q, answer: a}]}\n"), 0o644))
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	assert.Eventually(t, func() bool { return s.Current().Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done
}

func TestStaticStoreReloadIsNoop(t *testing.T) {
	s := NewStaticStore(Fallback())
	require.NoError(t, s.Reload())
	assert.Equal(t, 1, s.Current().Len())
}

func TestRender(t *testing.T) {
	b, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	menu := MainMenu(b, "ИнструкторБот")
	assert.Contains(t, menu, "ИнструкторБот")
	assert.Contains(t, menu, "1. 🖥️ **DSM**")
	assert.Contains(t, menu, "2. 🖥️ **Резервное копирование**")
	assert.Contains(t, menu, "от 1 до 2")
	assert.Less(t, strings.Index(menu, "DSM"), strings.Index(menu, "Резервное"))

	c, _ := b.At(1)
	list := CategoryMenu(c, "назад")
	assert.Contains(t, list, "Категория: DSM")
	assert.Contains(t, list, "2. ❓ **Как обновить DSM?**")
	assert.Contains(t, list, "'назад'")

	answer := AnswerView(c.Questions[0], "назад", "меню")
	assert.Contains(t, answer, "Как настроить DSM?")
	assert.Contains(t, answer, "Центр управления → Система.")
	assert.Contains(t, answer, "'меню'")

	assert.True(t, strings.HasPrefix(ExpectNumber(1, "x"), "❌ **Пожалуйста, введите цифру 1**"))
	assert.True(t, strings.HasSuffix(InvalidChoice(menu), menu))
	assert.True(t, strings.HasSuffix(UnknownCommand(answer), answer))
}
