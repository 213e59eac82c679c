// Package router decides whether a message is a request for the assistant
// and, if so, turns it into the prompt sent to the completion API.
package router

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/whisper/chillbot/internal/platform"
)

// Language tags.
const (
	LangEnglish = "en"
	LangArabic  = "ar"
)

// TriggerKind says why a message was routed to the assistant.
type TriggerKind int

const (
	TriggerNone TriggerKind = iota
	TriggerMention
	TriggerDirectMessage
	TriggerCommandPrefix
)

func (k TriggerKind) String() string {
	switch k {
	case TriggerMention:
		return "mention"
	case TriggerDirectMessage:
		return "direct_message"
	case TriggerCommandPrefix:
		return "command_prefix"
	default:
		return "none"
	}
}

// Prompt templates.
const (
	codeHelpIntro   = "Please help fix or explain the following code:\n\n"
	emptyCommand    = "Say hi and offer help. Ask what they need."
	styleArabic     = "(Reply in Egyptian Arabic, chill/friendly tone)\n\n"
	styleEnglish    = "(Reply in chill friendly English, like a real friend)\n\n"
	fixCodeIntro    = "Fix this code and explain the changes briefly:\n\n"
	fixHelpIntro    = "Help with: "
	fixStyleArabic  = "(Reply in Egyptian Arabic, chill helper tone)\n\n"
	fixStyleEnglish = "(Reply in chill helpful English)\n\n"
)

var (
	// codeBlockPattern matches whole fenced blocks, fences included.
	codeBlockPattern = regexp.MustCompile("```[\\s\\S]*?```")

	// fixBlockPattern captures the body of a fenced block with an optional
	// language tag on the opening fence.
	fixBlockPattern = regexp.MustCompile("```[a-zA-Z]*\\n([\\s\\S]*?)```")
)

// DefaultPrefix and DefaultTriggers form the command tokens "!ai", "!ask",
// "!fix" and "!scripthelp".
const DefaultPrefix = "!"

var DefaultTriggers = []string{"ai", "ask", "fix", "scripthelp"}

// PromptContext is everything derived from a routed message.
type PromptContext struct {
	Raw        string      // trimmed message text
	Body       string      // final prompt, style directive included
	Language   string      // LangEnglish or LangArabic
	CodeBlocks []string    // fenced blocks found in Raw, in order
	Trigger    TriggerKind // why the message was routed
	Command    string      // matched trigger name for TriggerCommandPrefix
}

// Router matches trigger tokens and builds prompts.
type Router struct {
	prefix string
	tokens []token
}

type token struct {
	name string // "ai"
	text string // "!ai"
}

// New creates a Router for prefix + each trigger name.
func New(prefix string, triggers []string) *Router {
	r := &Router{prefix: prefix}
	for _, t := range triggers {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		r.tokens = append(r.tokens, token{name: strings.ToLower(t), text: prefix + t})
	}
	return r
}

// Prefix returns the command prefix.
func (r *Router) Prefix() string {
	return r.prefix
}

// Trigger reports why msg should go to the assistant, or TriggerNone.
// A command token takes precedence because it changes the prompt.
func (r *Router) Trigger(msg platform.Message, botID string) (TriggerKind, string) {
	kind, name, _ := r.trigger(strings.TrimSpace(msg.Content), msg, botID)
	return kind, name
}

// trigger also returns how many bytes of text the command token covers.
func (r *Router) trigger(text string, msg platform.Message, botID string) (TriggerKind, string, int) {
	if name, n, ok := r.matchToken(text); ok {
		return TriggerCommandPrefix, name, n
	}
	if msg.MentionsUser(botID) {
		return TriggerMention, "", 0
	}
	if msg.IsDirect() {
		return TriggerDirectMessage, "", 0
	}
	return TriggerNone, "", 0
}

// ShouldRespond reports whether msg is addressed to the assistant.
func (r *Router) ShouldRespond(msg platform.Message, botID string) bool {
	kind, _ := r.Trigger(msg, botID)
	return kind != TriggerNone
}

// Build derives the prompt for msg.
func (r *Router) Build(msg platform.Message, botID string) PromptContext {
	raw := strings.TrimSpace(msg.Content)
	kind, name, n := r.trigger(raw, msg, botID)

	pc := PromptContext{
		Raw:        raw,
		Language:   DetectLanguage(raw),
		CodeBlocks: ExtractCodeBlocks(raw),
		Trigger:    kind,
		Command:    name,
	}

	var body string
	switch {
	case len(pc.CodeBlocks) > 0:
		body = codeHelpIntro + strings.Join(pc.CodeBlocks, "\n\n")
	case kind == TriggerCommandPrefix:
		body = strings.TrimSpace(raw[n:])
		if body == "" {
			body = emptyCommand
		}
	default:
		body = StripMention(raw, botID)
	}

	pc.Body = styleFor(pc.Language) + body
	return pc
}

// BuildFix derives the prompt for the fix command. Only the first fenced
// block is used. ok is false when content is blank.
func BuildFix(content string) (pc PromptContext, ok bool) {
	content = strings.TrimSpace(content)
	pc = PromptContext{
		Raw:      content,
		Language: DetectLanguage(content),
		Trigger:  TriggerCommandPrefix,
		Command:  "fix",
	}

	var body string
	if m := fixBlockPattern.FindStringSubmatch(content); m != nil {
		pc.CodeBlocks = []string{m[1]}
		body = fixCodeIntro + m[1]
	} else if content != "" {
		body = fixHelpIntro + content
	} else {
		return pc, false
	}

	if pc.Language == LangArabic {
		pc.Body = fixStyleArabic + body
	} else {
		pc.Body = fixStyleEnglish + body
	}
	return pc, true
}

// matchToken returns the first token text starts with, ignoring case, and
// the byte length of the matched part of text.
func (r *Router) matchToken(text string) (string, int, bool) {
	for _, t := range r.tokens {
		if n, ok := hasFoldPrefix(text, t.text); ok {
			return t.name, n, true
		}
	}
	return "", 0, false
}

// hasFoldPrefix compares rune by rune so the returned length is measured on
// s itself. Case folding can change a rune's encoded width.
func hasFoldPrefix(s, prefix string) (int, bool) {
	n := 0
	for _, want := range prefix {
		got, size := utf8.DecodeRuneInString(s[n:])
		if size == 0 || !strings.EqualFold(string(got), string(want)) {
			return 0, false
		}
		n += size
	}
	return n, true
}

func styleFor(lang string) string {
	if lang == LangArabic {
		return styleArabic
	}
	return styleEnglish
}

// ExtractCodeBlocks returns every fenced block in text, fences included.
func ExtractCodeBlocks(text string) []string {
	return codeBlockPattern.FindAllString(text, -1)
}

// DetectLanguage tags text as Arabic if it contains any letter from the
// Arabic (U+0600–U+06FF) or Arabic Supplement (U+0750–U+077F) blocks.
func DetectLanguage(text string) string {
	if ContainsArabic(text) {
		return LangArabic
	}
	return LangEnglish
}

// ContainsArabic reports whether text has a rune in the Arabic ranges.
func ContainsArabic(text string) bool {
	for _, r := range text {
		if (r >= 0x0600 && r <= 0x06FF) || (r >= 0x0750 && r <= 0x077F) {
			return true
		}
	}
	return false
}

// StripMention removes the bot's mention markup from text.
func StripMention(text, botID string) string {
	if botID == "" {
		return text
	}
	text = strings.ReplaceAll(text, "<@"+botID+">", "")
	text = strings.ReplaceAll(text, "<@!"+botID+">", "")
	return strings.TrimSpace(text)
}
