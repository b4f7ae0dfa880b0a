// Package kb holds the read-only knowledge base tree the menus are rendered from.
package kb

// QA is a single question with its answer.
type QA struct {
	Question string `yaml:"question" json:"question"`
	Answer   string `yaml:"answer" json:"answer"`
}

// Category groups questions under a stable key. Question order defines menu numbering.
type Category struct {
	Key       string `yaml:"key" json:"key"`
	Name      string `yaml:"name" json:"name"`
	Questions []QA   `yaml:"questions" json:"questions"`
}

// Base is an immutable snapshot of the knowledge base.
// Category order defines main menu numbering.
type Base struct {
	Categories []Category `yaml:"categories" json:"categories"`

	index map[string]int
}

// New builds a Base from categories, indexing them by key.
func New(categories []Category) *Base {
	b := &Base{Categories: categories}
	b.reindex()
	return b
}

func (b *Base) reindex() {
	b.index = make(map[string]int, len(b.Categories))
	for i, c := range b.Categories {
		if _, dup := b.index[c.Key]; !dup {
			b.index[c.Key] = i
		}
	}
}

// Len returns the number of categories.
func (b *Base) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Categories)
}

// At returns the category at 1-based menu position pos.
func (b *Base) At(pos int) (*Category, bool) {
	if pos < 1 || pos > b.Len() {
		return nil, false
	}
	return &b.Categories[pos-1], true
}

// Lookup finds a category by key.
func (b *Base) Lookup(key string) (*Category, bool) {
	if b == nil {
		return nil, false
	}
	i, ok := b.index[key]
	if !ok {
		return nil, false
	}
	return &b.Categories[i], true
}

// Question returns the question at 0-based index.
func (c *Category) Question(index int) (QA, bool) {
	if c == nil || index < 0 || index >= len(c.Questions) {
		return QA{}, false
	}
	return c.Questions[index], true
}

// QuestionCount returns the number of questions in c.
func (c *Category) QuestionCount() int {
	if c == nil {
		return 0
	}
	return len(c.Questions)
}
