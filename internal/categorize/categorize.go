// Package categorize assigns spend categories to incoming transactions.
// Deterministic rules only; it runs strictly before reward computation and
// never touches reward logic.
package categorize

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/finmatter/kestrel/internal/domain"
)

// RulesVersion is recorded for audit alongside categorized transactions.
const RulesVersion = "1.0.0"

// Rule maps a CEL predicate over merchant data to a spend category.
// Rules are evaluated in declaration order; the first match wins.
type Rule struct {
	Name       string
	Expression string
	Category   domain.SpendCategory
}

// Result is the outcome of category assignment. Matched is false when no
// rule applied and the fallback category was returned.
type Result struct {
	Category domain.SpendCategory
	Matched  bool
	RuleName string
}

type compiledRule struct {
	rule    Rule
	program cel.Program
}

// Categorizer evaluates an ordered rule list against merchant data.
type Categorizer struct {
	compiled []compiledRule
}

// New compiles the given rules into a Categorizer.
func New(rules []Rule) (*Categorizer, error) {
	env, err := cel.NewEnv(
		cel.Variable("merchant", cel.StringType),
		cel.Variable("merchant_category", cel.StringType),
		cel.Variable("description", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		if !domain.ValidCategory(rule.Category) {
			return nil, fmt.Errorf("rule %q: unknown category %q", rule.Name, rule.Category)
		}

		ast, iss := env.Compile(rule.Expression)
		if iss != nil && iss.Err() != nil {
			return nil, fmt.Errorf("rule %q: %w", rule.Name, iss.Err())
		}
		if ast.OutputType() != cel.BoolType {
			return nil, fmt.Errorf("rule %q: expression must return bool, got %s", rule.Name, ast.OutputType())
		}

		program, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", rule.Name, err)
		}

		compiled = append(compiled, compiledRule{rule: rule, program: program})
	}

	return &Categorizer{compiled: compiled}, nil
}

// NewDefault compiles the built-in rule list.
func NewDefault() (*Categorizer, error) {
	return New(DefaultRules())
}

// Assign evaluates rules in order and returns the first matching category.
// When no rule matches it returns CategoryOther with Matched false.
func (c *Categorizer) Assign(merchant, merchantCategory, description string) Result {
	activation := map[string]any{
		"merchant":          strings.ToLower(strings.TrimSpace(merchant)),
		"merchant_category": strings.ToLower(strings.TrimSpace(merchantCategory)),
		"description":       strings.ToLower(strings.TrimSpace(description)),
	}

	for _, cr := range c.compiled {
		out, _, err := cr.program.Eval(activation)
		if err != nil {
			// A failing rule never blocks assignment; later rules still run.
			continue
		}
		if out == types.True {
			return Result{
				Category: cr.rule.Category,
				Matched:  true,
				RuleName: cr.rule.Name,
			}
		}
	}

	return Result{Category: domain.CategoryOther, Matched: false}
}

// DefaultRules returns the built-in assignment rules: a direct
// merchant-category mapping per taxonomy entry, then merchant keyword
// heuristics for transactions that arrive without a merchant category.
func DefaultRules() []Rule {
	rules := make([]Rule, 0, 16)

	for _, category := range domain.SpendCategories() {
		rules = append(rules, Rule{
			Name:       "mcc-" + string(category),
			Expression: fmt.Sprintf("merchant_category == %q", string(category)),
			Category:   category,
		})
	}

	rules = append(rules,
		Rule{
			Name:       "merchant-food-delivery",
			Expression: `merchant.contains("swiggy") || merchant.contains("zomato") || merchant.contains("eatsure")`,
			Category:   domain.CategoryDining,
		},
		Rule{
			Name:       "merchant-ride-and-rail",
			Expression: `merchant.contains("uber") || merchant.contains("ola cabs") || merchant.contains("irctc") || merchant.contains("makemytrip")`,
			Category:   domain.CategoryTravel,
		},
		Rule{
			Name:       "merchant-grocery-chains",
			Expression: `merchant.contains("bigbasket") || merchant.contains("blinkit") || merchant.contains("dmart") || merchant.contains("zepto")`,
			Category:   domain.CategoryGroceries,
		},
		Rule{
			Name:       "merchant-fuel-pumps",
			Expression: `merchant.contains("indian oil") || merchant.contains("bharat petroleum") || merchant.contains("hpcl")`,
			Category:   domain.CategoryFuel,
		},
		Rule{
			Name:       "merchant-wallet-load",
			Expression: `description.contains("wallet load") || merchant.contains("paytm wallet")`,
			Category:   domain.CategoryWalletLoad,
		},
	)

	return rules
}
