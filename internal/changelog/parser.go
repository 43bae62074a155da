// Package changelog recognizes version-indexed changelog headings, parses the
// bullet items under them and checks that the newest entry matches a package's
// current version.
package changelog

import (
	"bufio"
	"strings"

	"github.com/temirov/deptrack/internal/versioncheck"
)

const (
	headingMarkerConstant           = "#"
	codeFenceMarkerConstant         = "```"
	openingBracketConstant          = "["
	closingBracketConstant          = "]"
	unreleasedTokenConstant         = "unreleased"
	keepAChangelogReferenceConstant = "keepachangelog.com"
	versionPrefixesConstant         = "vV"
	titleLevelConstant              = 1
	entryLevelConstant              = 2
	starBulletConstant              = "*"
	dashBulletConstant              = "-"
	typeSeparatorConstant           = ":"
	scopeOpeningConstant            = "("
	scopeClosingConstant            = ")"
	defaultItemTypeConstant         = "chore"
	emptyItemProblemConstant        = "empty entry"
	emptyDescriptionProblemConstant = "empty description"
	emptyTypeProblemConstant        = "empty change type"
	unclosedScopeProblemConstant    = "unclosed parenthesis in scope"
)

// Format names a recognized changelog heading convention.
type Format string

// Supported formats.
const (
	FormatCommonChangelog Format = "common-changelog"
	FormatKeepAChangelog  Format = "keep-a-changelog"
	FormatUnrecognized    Format = "unrecognized"
	// FormatEmpty describes a present changelog without entry headings.
	FormatEmpty Format = "empty"
	// FormatNone describes an absent changelog.
	FormatNone Format = "none"
)

// Item is one bullet line of a changelog entry, written as "type(scope): description".
type Item struct {
	Line int
	// Type defaults to chore when the bullet has no type prefix.
	Type        string
	Scope       string
	HasScope    bool
	Description string
	// Bullet is the marker the line started with.
	Bullet string
	// Problem describes why the bullet could not be split into its parts.
	Problem string
}

// Heading is one entry heading of a changelog.
type Heading struct {
	Line  int
	Level int
	Text  string
	// Version is the literal version token, without brackets or a leading v.
	Version    string
	Unreleased bool
	Items      []Item
}

// Versioned reports whether the heading carries a semantic version token.
func (heading Heading) Versioned() bool {
	return len(heading.Version) > 0
}

// Parsed is the heading structure of a changelog document.
type Parsed struct {
	HasTitle bool
	Entries  []Heading
	Format   Format
	// TopVersion is the first versioned entry after skipping Unreleased placeholders.
	TopVersion string
	// UnrecognizedHeading is set when the top entry heading carries no version token.
	UnrecognizedHeading *Heading
	// StrayItems are bullets found before the first entry heading.
	StrayItems []Item
}

// Parse scans headings outside fenced code blocks and classifies the document.
func Parse(content string) Parsed {
	parsed := Parsed{}
	referencesKeepAChangelog := strings.Contains(strings.ToLower(content), keepAChangelogReferenceConstant)

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	insideCodeFence := false
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		rawLine := scanner.Text()
		trimmedLine := strings.TrimSpace(rawLine)
		if strings.HasPrefix(trimmedLine, codeFenceMarkerConstant) {
			insideCodeFence = !insideCodeFence
			continue
		}
		if insideCodeFence {
			continue
		}
		if bullet, itemText, isBullet := splitBullet(rawLine); isBullet {
			item := ParseItem(lineNumber, bullet, itemText)
			if len(parsed.Entries) == 0 {
				parsed.StrayItems = append(parsed.StrayItems, item)
				continue
			}
			current := &parsed.Entries[len(parsed.Entries)-1]
			current.Items = append(current.Items, item)
			continue
		}
		if !strings.HasPrefix(trimmedLine, headingMarkerConstant) {
			continue
		}

		level, headingText := splitHeading(trimmedLine)
		if level == 0 || level > entryLevelConstant {
			continue
		}

		heading := Heading{Line: lineNumber, Level: level, Text: headingText}
		token := extractToken(headingText)
		switch {
		case strings.EqualFold(token, unreleasedTokenConstant):
			heading.Unreleased = true
		case isVersionToken(token):
			heading.Version = token
		case level == titleLevelConstant:
			parsed.HasTitle = true
			continue
		}
		parsed.Entries = append(parsed.Entries, heading)
	}

	parsed.Format = classify(&parsed, referencesKeepAChangelog, len(strings.TrimSpace(content)) == 0)
	return parsed
}

func classify(parsed *Parsed, referencesKeepAChangelog bool, blank bool) Format {
	if len(parsed.Entries) == 0 {
		if blank || parsed.HasTitle {
			return FormatEmpty
		}
		return FormatUnrecognized
	}

	startsWithUnreleased := parsed.Entries[0].Unreleased
	for entryIndex := range parsed.Entries {
		entry := parsed.Entries[entryIndex]
		if entry.Unreleased {
			continue
		}
		if !entry.Versioned() {
			parsed.UnrecognizedHeading = &entry
			return FormatUnrecognized
		}
		parsed.TopVersion = entry.Version
		break
	}

	if startsWithUnreleased || referencesKeepAChangelog {
		return FormatKeepAChangelog
	}
	return FormatCommonChangelog
}

// ParseItem splits the text of a bullet into change type, optional scope and description.
func ParseItem(line int, bullet string, text string) Item {
	item := Item{Line: line, Bullet: bullet}
	text = strings.TrimSpace(text)

	separatorIndex := strings.Index(text, typeSeparatorConstant)
	if separatorIndex < 0 {
		if len(text) == 0 {
			item.Problem = emptyItemProblemConstant
			return item
		}
		item.Type = defaultItemTypeConstant
		item.Description = text
		return item
	}

	prefix := text[:separatorIndex]
	item.Description = strings.TrimSpace(text[separatorIndex+1:])
	if len(item.Description) == 0 {
		item.Problem = emptyDescriptionProblemConstant
		return item
	}

	openingIndex := strings.Index(prefix, scopeOpeningConstant)
	if openingIndex < 0 {
		item.Type = strings.TrimSpace(prefix)
	} else {
		remainder := prefix[openingIndex+1:]
		closingIndex := strings.Index(remainder, scopeClosingConstant)
		if closingIndex < 0 {
			item.Problem = unclosedScopeProblemConstant
			return item
		}
		item.Type = strings.TrimSpace(prefix[:openingIndex])
		item.Scope = strings.TrimSpace(remainder[:closingIndex])
		item.HasScope = true
	}
	if len(item.Type) == 0 {
		item.Problem = emptyTypeProblemConstant
	}
	return item
}

// splitBullet recognizes a top-level "*" or "-" list line. Indented bullets continue the previous item.
func splitBullet(rawLine string) (string, string, bool) {
	if len(rawLine) == 0 || rawLine[0] == ' ' || rawLine[0] == '\t' {
		return "", "", false
	}
	for _, bullet := range []string{starBulletConstant, dashBulletConstant} {
		if !strings.HasPrefix(rawLine, bullet) {
			continue
		}
		remainder := rawLine[len(bullet):]
		if len(remainder) > 0 && remainder[0] != ' ' && remainder[0] != '\t' {
			return "", "", false
		}
		return bullet, remainder, true
	}
	return "", "", false
}

func splitHeading(trimmedLine string) (int, string) {
	level := 0
	for level < len(trimmedLine) && trimmedLine[level] == '#' {
		level++
	}
	remainder := trimmedLine[level:]
	if len(remainder) > 0 && remainder[0] != ' ' && remainder[0] != '\t' && remainder[0] != '[' {
		return 0, ""
	}
	return level, strings.TrimSpace(remainder)
}

// extractToken returns the bracketed or first bare token of a heading, without a version prefix.
func extractToken(headingText string) string {
	token := headingText
	if strings.HasPrefix(token, openingBracketConstant) {
		closingIndex := strings.Index(token, closingBracketConstant)
		if closingIndex < 0 {
			return ""
		}
		token = token[1:closingIndex]
	} else if fields := strings.Fields(token); len(fields) > 0 {
		token = fields[0]
	}
	token = strings.TrimSpace(token)
	if len(token) > 1 && strings.ContainsRune(versionPrefixesConstant, rune(token[0])) && token[1] >= '0' && token[1] <= '9' {
		token = token[1:]
	}
	return token
}

func isVersionToken(token string) bool {
	if len(token) == 0 {
		return false
	}
	_, parseError := versioncheck.ParseVersion(token)
	return parseError == nil
}
