package categorize

import (
	"testing"

	"github.com/finmatter/kestrel/internal/domain"
)

func TestAssignByMerchantCategory(t *testing.T) {
	c, err := NewDefault()
	if err != nil {
		t.Fatalf("NewDefault failed: %v", err)
	}

	tests := []struct {
		merchantCategory string
		want             domain.SpendCategory
	}{
		{"dining", domain.CategoryDining},
		{"groceries", domain.CategoryGroceries},
		{"fuel", domain.CategoryFuel},
		{"travel", domain.CategoryTravel},
		{"wallet_load", domain.CategoryWalletLoad},
		{"other", domain.CategoryOther},
	}

	for _, tt := range tests {
		t.Run(tt.merchantCategory, func(t *testing.T) {
			got := c.Assign("Some Merchant", tt.merchantCategory, "")
			if got.Category != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got.Category)
			}
			if !got.Matched {
				t.Error("expected a rule match")
			}
		})
	}
}

func TestAssignNormalizesInput(t *testing.T) {
	c, err := NewDefault()
	if err != nil {
		t.Fatalf("NewDefault failed: %v", err)
	}

	got := c.Assign("SWIGGY BANGALORE", "  DINING  ", "")
	if got.Category != domain.CategoryDining || !got.Matched {
		t.Errorf("expected dining match for upper-case input, got %+v", got)
	}
}

func TestAssignMerchantKeywordFallback(t *testing.T) {
	c, err := NewDefault()
	if err != nil {
		t.Fatalf("NewDefault failed: %v", err)
	}

	tests := []struct {
		merchant string
		want     domain.SpendCategory
	}{
		{"Swiggy Order 1234", domain.CategoryDining},
		{"IRCTC E-Ticketing", domain.CategoryTravel},
		{"BigBasket Daily", domain.CategoryGroceries},
		{"Indian Oil Petrol Pump", domain.CategoryFuel},
	}

	for _, tt := range tests {
		t.Run(tt.merchant, func(t *testing.T) {
			got := c.Assign(tt.merchant, "", "")
			if got.Category != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got.Category)
			}
			if !got.Matched {
				t.Error("expected a rule match")
			}
		})
	}
}

func TestAssignNoMatchFallsBackToOther(t *testing.T) {
	c, err := NewDefault()
	if err != nil {
		t.Fatalf("NewDefault failed: %v", err)
	}

	got := c.Assign("Unknown Shop", "", "")
	if got.Category != domain.CategoryOther {
		t.Errorf("expected other, got %s", got.Category)
	}
	if got.Matched {
		t.Error("fallback must report Matched false")
	}

	got = c.Assign("Store", "not-in-taxonomy", "")
	if got.Category != domain.CategoryOther || got.Matched {
		t.Errorf("unknown merchant category must fall back unmatched, got %+v", got)
	}
}

func TestFirstMatchingRuleWins(t *testing.T) {
	c, err := New([]Rule{
		{Name: "first", Expression: `merchant.contains("store")`, Category: domain.CategoryShopping},
		{Name: "second", Expression: `merchant.contains("store")`, Category: domain.CategoryGroceries},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	got := c.Assign("My Store", "", "")
	if got.Category != domain.CategoryShopping || got.RuleName != "first" {
		t.Errorf("expected first rule to win, got %+v", got)
	}
}

func TestNewRejectsBadRules(t *testing.T) {
	t.Run("invalid expression", func(t *testing.T) {
		_, err := New([]Rule{{Name: "broken", Expression: `merchant ==`, Category: domain.CategoryDining}})
		if err == nil {
			t.Error("expected compile error")
		}
	})

	t.Run("non-bool expression", func(t *testing.T) {
		_, err := New([]Rule{{Name: "stringy", Expression: `merchant`, Category: domain.CategoryDining}})
		if err == nil {
			t.Error("expected output type error")
		}
	})

	t.Run("unknown category", func(t *testing.T) {
		_, err := New([]Rule{{Name: "bad-cat", Expression: `true`, Category: "cryptocurrency"}})
		if err == nil {
			t.Error("expected unknown category error")
		}
	})
}
