package changelog

import (
	"fmt"
	"strings"
)

const (
	missingTitleIssueConstant           = "missing changelog title heading"
	strayItemIssueTemplateConstant      = "line %d: entry found outside of a version section"
	itemProblemIssueTemplateConstant    = "line %d: %s"
	emptyVersionIssueTemplateConstant   = "version %s has no entries"
	disallowedTypeIssueTemplateConstant = "version %s: line %d: change type %q is not one of %s"
	missingScopeIssueTemplateConstant   = "version %s: line %d: scope is required (type(scope): description)"
	allowedTypesSeparatorConstant       = ", "
)

// DefaultAllowedChangeTypes is the built-in change type allow list.
var DefaultAllowedChangeTypes = []string{"feat", "fix", "chore", "refactor", "docs", "test", "style", "perf"}

// EntryRules configures validation of the bullet items under each entry heading.
type EntryRules struct {
	// Validate enables the rules below; when false no item is inspected.
	Validate bool
	// RequireTitle demands a level one title heading.
	RequireTitle bool
	// AllowedChangeTypes restricts item types; an empty list accepts every type.
	AllowedChangeTypes []string
	// RequireScope demands a "(scope)" on every item.
	RequireScope bool
}

// ValidateEntries returns one message per rule violation in document order.
// Unreleased sections may be empty; versioned sections may not.
func ValidateEntries(parsed Parsed, rules EntryRules) []string {
	if !rules.Validate {
		return nil
	}

	issues := make([]string, 0)
	if rules.RequireTitle && !parsed.HasTitle {
		issues = append(issues, missingTitleIssueConstant)
	}
	for _, item := range parsed.StrayItems {
		if item.Bullet == starBulletConstant {
			issues = append(issues, fmt.Sprintf(strayItemIssueTemplateConstant, item.Line))
		}
	}

	allowed := make(map[string]struct{}, len(rules.AllowedChangeTypes))
	for _, changeType := range rules.AllowedChangeTypes {
		allowed[strings.TrimSpace(changeType)] = struct{}{}
	}

	for _, heading := range parsed.Entries {
		if !heading.Versioned() && !heading.Unreleased {
			continue
		}
		if heading.Versioned() && len(heading.Items) == 0 {
			issues = append(issues, fmt.Sprintf(emptyVersionIssueTemplateConstant, heading.Version))
		}
		for _, item := range heading.Items {
			if issue, violated := validateItem(heading, item, allowed, rules); violated {
				issues = append(issues, issue)
			}
		}
	}
	return issues
}

func validateItem(heading Heading, item Item, allowed map[string]struct{}, rules EntryRules) (string, bool) {
	if len(item.Problem) > 0 {
		return fmt.Sprintf(itemProblemIssueTemplateConstant, item.Line, item.Problem), true
	}
	label := heading.Version
	if heading.Unreleased {
		label = unreleasedTokenConstant
	}
	if len(allowed) > 0 {
		if _, permitted := allowed[item.Type]; !permitted {
			return fmt.Sprintf(disallowedTypeIssueTemplateConstant, label, item.Line, item.Type, strings.Join(rules.AllowedChangeTypes, allowedTypesSeparatorConstant)), true
		}
	}
	if rules.RequireScope && !item.HasScope {
		return fmt.Sprintf(missingScopeIssueTemplateConstant, label, item.Line), true
	}
	return "", false
}
