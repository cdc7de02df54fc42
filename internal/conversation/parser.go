package conversation

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/hammamikhairi/baskit/internal/domain"
	"github.com/hammamikhairi/baskit/internal/logger"
)

// Compile-time interface check.
var _ domain.FallbackParser = (*RuleParser)(nil)

// Confidence levels of the rule parser.
const (
	DefaultRuleConfidence = 0.65
	BareNounConfidence    = 0.4
)

// RuleParser matches utterances against a small closed grammar of
// verb + quantity + item and list commands, in Hebrew and English. It is
// the degraded-mode substitute for the language service and never fails.
type RuleParser struct {
	log        *logger.Logger
	confidence float64
	patterns   []patternRule
}

type patternRule struct {
	regex *regexp.Regexp
	tool  domain.Tool
}

// ParserOption configures a RuleParser.
type ParserOption func(*RuleParser)

// WithRuleConfidence sets the confidence of full grammar matches.
func WithRuleConfidence(c float64) ParserOption {
	return func(p *RuleParser) { p.confidence = c }
}

// NewRuleParser creates a rule-based parser.
func NewRuleParser(log *logger.Logger, opts ...ParserOption) *RuleParser {
	p := &RuleParser{log: log, confidence: DefaultRuleConfidence}
	for _, o := range opts {
		o(p)
	}
	p.patterns = []patternRule{
		// List commands first so "delete list X" never reads as an item.
		{regexp.MustCompile(`^(?:מה\s+(?:יש\s+)?ב?רשימה|(?:תראה|הראה|תציג|הצג)\s+(?:לי\s+)?(?:את\s+)?(?:ה)?רשימה|show\s+(?:me\s+)?(?:the\s+|my\s+)?list|what(?:'s|\s+is)\s+on\s+(?:the\s+|my\s+)?list)(?:\s+(.+?))?\s*\??$`), domain.ToolShowList},
		{regexp.MustCompile(`^(?:צור|תיצור|פתח|תפתח|create|make|new|start)\s+(?:a\s+)?(?:new\s+)?(?:list|רשימה(?:\s+חדשה)?)\s+(?:called\s+|named\s+|בשם\s+)?(.+)$`), domain.ToolCreateList},
		{regexp.MustCompile(`^(?:מחק|תמחק|delete|remove)\s+(?:את\s+)?(?:the\s+)?(?:list|רשימה|הרשימה|רשימת)\s+(.+)$`), domain.ToolDeleteList},
		{regexp.MustCompile(`^(?:עבור|תעבור|switch)\s+(?:to\s+)?(?:the\s+)?(?:list\s+)?(?:ל)?(?:רשימה\s+|רשימת\s*)?(.+)$`), domain.ToolSwitchList},
		{regexp.MustCompile(`^(?:use|open)\s+(?:the\s+)?(?:list\s+)?(.+?)(?:\s+list)?$`), domain.ToolSwitchList},

		// Item commands.
		{regexp.MustCompile(`^(?:סמן\s+ש?קניתי|סמן\s+ש?קנינו|קניתי|קנינו|לקחתי|bought|got)\s+(?:את\s+)?(.+)$`), domain.ToolMarkBought},
		{regexp.MustCompile(`^mark\s+(.+?)\s+(?:as\s+)?(?:bought|done)$`), domain.ToolMarkBought},
		{regexp.MustCompile(`^(?:שנה|תשנה|עדכן|תעדכן|set|change|update)\s+(?:את\s+)?(?:ה?כמות\s+(?:של\s+)?)?(?:the\s+)?(?:quantity\s+of\s+)?(.+?)\s+(?:ל-?\s*|to\s+)(\S+)$`), domain.ToolUpdateQuantity},
		{regexp.MustCompile(`^(?:הפחת|תפחית|reduce|decrease|take\s+off)\s+(.+)$`), domain.ToolReduceQuantity},
		{regexp.MustCompile(`^(?:תוריד|הורד|תורידי|תסיר|הסר|תמחק|מחק|remove|delete|drop)\s+(.+)$`), domain.ToolRemoveItem},
		{regexp.MustCompile(`^(?:תוסיף|הוסף|תוסיפי|להוסיף|צריך|צריכים|צריכה|תקנה|תכניס|add|buy|get|need|put)\s+(.+)$`), domain.ToolAddItem},
	}
	return p
}

// Parse converts normalized text into an intent. lastItem resolves
// pronouns such as "it" or "אותו".
func (p *RuleParser) Parse(text string, lastItem string) domain.Intent {
	trimmed := strings.ToLower(strings.TrimSpace(text))
	base := domain.Intent{Utterance: text, Degraded: true, Source: domain.SourceFallback}

	if trimmed == "" {
		return p.clarify(base)
	}

	p.log.Debug("rule parser input: %q", trimmed)

	matched := false
	for _, rule := range p.patterns {
		m := rule.regex.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		matched = true
		in, ok := p.build(base, rule.tool, m[1:], lastItem)
		if !ok {
			continue
		}
		p.log.Debug("rule parser matched %s", in.Tool)
		return in
	}

	// A short phrase with no verb is most likely an item to add.
	if item, ok := parseItem(trimmed, lastItem); !matched && ok && len(strings.Fields(item.name)) <= 3 {
		base.Tool = domain.ToolAddItem
		base.Args = item.args()
		base.Confidence = BareNounConfidence
		return base
	}

	p.log.Debug("rule parser found no match")
	return p.clarify(base)
}

func (p *RuleParser) build(base domain.Intent, tool domain.Tool, groups []string, lastItem string) (domain.Intent, bool) {
	base.Tool = tool
	base.Confidence = p.confidence

	switch tool {
	case domain.ToolShowList:
		base.Args.ListName = cleanListName(groups[0])

	case domain.ToolCreateList, domain.ToolDeleteList, domain.ToolSwitchList:
		name := cleanListName(groups[0])
		if name == "" {
			return base, false
		}
		base.Args.ListName = name

	case domain.ToolUpdateQuantity:
		q, ok := parseNumber(groups[1])
		if !ok {
			return base, false
		}
		item, ok := parseItem(groups[0], lastItem)
		if !ok {
			return base, false
		}
		base.Args = item.args()
		base.Args.Quantity = domain.Qty(q)

	default:
		item, ok := parseItem(groups[0], lastItem)
		if !ok {
			return base, false
		}
		base.Args = item.args()
		// "remove 2 tomatoes" takes two off rather than the whole item.
		if tool == domain.ToolRemoveItem && item.hasQty {
			base.Tool = domain.ToolReduceQuantity
		}
		switch base.Tool {
		case domain.ToolAddItem:
		case domain.ToolReduceQuantity:
			base.Args.Unit = ""
		default:
			base.Args.Quantity = nil
			base.Args.Unit = ""
		}
	}
	return base, true
}

func (p *RuleParser) clarify(base domain.Intent) domain.Intent {
	base.Tool = domain.ToolClarify
	base.Confidence = 0
	return base
}

type parsedItem struct {
	name     string
	quantity int
	hasQty   bool
	unit     string
}

// args keeps any spoken quantity, zero and negative included, so the
// engine can reject it instead of silently defaulting.
func (it parsedItem) args() domain.Args {
	a := domain.Args{ItemName: it.name, Unit: it.unit}
	if it.hasQty {
		a.Quantity = domain.Qty(it.quantity)
	}
	return a
}

// parseItem splits "[את] [qty] [unit] [of] name [qty]" into its parts.
func parseItem(s string, lastItem string) (parsedItem, bool) {
	s = trimListSuffix(s)
	words := strings.Fields(s)
	if len(words) > 0 && words[0] == "את" {
		words = words[1:]
	}

	var it parsedItem
	if len(words) > 0 {
		if q, ok := parseNumber(words[0]); ok {
			it.quantity, it.hasQty = q, true
			words = words[1:]
			if len(words) > 0 && units[words[0]] {
				it.unit = words[0]
				words = words[1:]
			}
			if len(words) > 0 && (words[0] == "של" || words[0] == "of") {
				words = words[1:]
			}
		} else if words[0] == "a" || words[0] == "an" || words[0] == "some" {
			words = words[1:]
		}
	}
	if !it.hasQty && len(words) > 1 {
		if q, ok := parseNumber(words[len(words)-1]); ok {
			it.quantity, it.hasQty = q, true
			words = words[:len(words)-1]
		}
	}

	if len(words) == 0 {
		return it, false
	}
	name := strings.Join(words, " ")
	if pronouns[name] {
		if lastItem == "" {
			return it, false
		}
		name = lastItem
	}
	for _, w := range strings.Fields(name) {
		if _, err := strconv.Atoi(w); err == nil {
			return it, false
		}
	}
	it.name = name
	return it, true
}

var listSuffixes = []string{
	" from the list", " to the list", " to my list", " from my list",
	" מהרשימה", " לרשימה", " ברשימה",
}

func trimListSuffix(s string) string {
	for _, suf := range listSuffixes {
		s = strings.TrimSuffix(s, suf)
	}
	return strings.TrimSpace(s)
}

func cleanListName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, " list")
	s = strings.TrimPrefix(s, "את ")
	return strings.TrimSpace(s)
}

// parseNumber reads digits or a number word.
func parseNumber(s string) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	n, ok := numberWords[s]
	return n, ok
}

var numberWords = map[string]int{
	"אחד": 1, "אחת": 1,
	"שניים": 2, "שתיים": 2, "שני": 2, "שתי": 2,
	"שלוש": 3, "שלושה": 3, "שלושת": 3,
	"ארבע": 4, "ארבעה": 4, "ארבעת": 4,
	"חמש": 5, "חמישה": 5, "חמשת": 5,
	"שש": 6, "שישה": 6,
	"שבע": 7, "שבעה": 7,
	"שמונה": 8,
	"תשע": 9, "תשעה": 9,
	"עשר": 10, "עשרה": 10,
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"dozen": 12, "תריסר": 12,
}

var units = map[string]bool{
	"יחידה": true, "יחידות": true,
	"קילו": true, "ק\"ג": true, "קג": true, "גרם": true,
	"ליטר": true, "ליטרים": true,
	"בקבוק": true, "בקבוקים": true, "בקבוקי": true,
	"חבילה": true, "חבילות": true, "חבילת": true,
	"שקית": true, "שקיות": true, "קופסה": true, "קופסאות": true,
	"kg": true, "kilo": true, "kilos": true, "g": true, "grams": true,
	"liter": true, "liters": true, "l": true,
	"bottle": true, "bottles": true, "pack": true, "packs": true,
	"bag": true, "bags": true, "box": true, "boxes": true,
	"can": true, "cans": true, "unit": true, "units": true,
}

var pronouns = map[string]bool{
	"אותו": true, "אותה": true, "אותם": true, "אותן": true, "זה": true, "זאת": true,
	"it": true, "them": true, "that": true, "this": true,
}
