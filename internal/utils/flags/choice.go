// Package flags provides pflag values shared by shellkeeper commands.
package flags

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

const (
	choicePlaceholderPrefix           = "<"
	choicePlaceholderSuffix           = ">"
	choiceSeparatorLiteral            = "|"
	choiceUsageEmptyTemplate          = "`%s`"
	choiceUsageFullTemplate           = "`%s` %s"
	choiceTypeNameConstant            = "choice"
	choiceRejectedTemplateConstant    = "unsupported value %q (expected %s)"
	choiceExpectationSeparatorLiteral = " or "
)

// ChoiceValue is a pflag.Value restricted to a fixed, case-insensitive set of options.
type ChoiceValue struct {
	choices []string
	value   string
}

// NewChoiceValue constructs a ChoiceValue holding defaultChoice.
func NewChoiceValue(defaultChoice string, choices []string) *ChoiceValue {
	normalized := normalizeChoices(choices)
	return &ChoiceValue{choices: normalized, value: strings.ToLower(strings.TrimSpace(defaultChoice))}
}

// AddChoiceFlag registers a choice flag and returns its value holder.
func AddChoiceFlag(flagSet *pflag.FlagSet, name string, defaultChoice string, choices []string, description string) *ChoiceValue {
	value := NewChoiceValue(defaultChoice, choices)
	if flagSet != nil && len(name) > 0 {
		flagSet.Var(value, name, FormatChoiceUsage(defaultChoice, choices, description))
	}
	return value
}

// Set implements pflag.Value.
func (choice *ChoiceValue) Set(candidate string) error {
	normalized := strings.ToLower(strings.TrimSpace(candidate))
	for _, allowed := range choice.choices {
		if allowed == normalized {
			choice.value = normalized
			return nil
		}
	}
	return fmt.Errorf(choiceRejectedTemplateConstant, candidate, strings.Join(choice.choices, choiceExpectationSeparatorLiteral))
}

// String implements pflag.Value.
func (choice *ChoiceValue) String() string {
	if choice == nil {
		return ""
	}
	return choice.value
}

// Type implements pflag.Value.
func (choice *ChoiceValue) Type() string {
	return choiceTypeNameConstant
}

// Value reports the selected option in lower case.
func (choice *ChoiceValue) Value() string {
	return choice.String()
}

// FormatChoiceUsage builds a usage string where the default option is capitalized inside a placeholder.
func FormatChoiceUsage(defaultChoice string, choices []string, description string) string {
	placeholder := buildChoicePlaceholder(defaultChoice, choices)
	if len(strings.TrimSpace(description)) == 0 {
		return fmt.Sprintf(choiceUsageEmptyTemplate, placeholder)
	}
	return fmt.Sprintf(choiceUsageFullTemplate, placeholder, description)
}

func buildChoicePlaceholder(defaultChoice string, choices []string) string {
	normalizedDefault := strings.ToLower(strings.TrimSpace(defaultChoice))
	highlighted := normalizeChoices(choices)
	for index, choice := range highlighted {
		if choice == normalizedDefault {
			highlighted[index] = strings.ToUpper(choice)
		}
	}
	return choicePlaceholderPrefix + strings.Join(highlighted, choiceSeparatorLiteral) + choicePlaceholderSuffix
}

func normalizeChoices(choices []string) []string {
	normalized := make([]string, 0, len(choices))
	seen := make(map[string]struct{}, len(choices))
	for _, choice := range choices {
		trimmed := strings.ToLower(strings.TrimSpace(choice))
		if len(trimmed) == 0 {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	return normalized
}
