package domain

// SpendCategory is the closed spend taxonomy used by categorization and
// reward rules. Assigned upstream of the engine; the engine treats it as
// an opaque key.
type SpendCategory string

const (
	CategoryDining        SpendCategory = "dining"
	CategoryGroceries     SpendCategory = "groceries"
	CategoryFuel          SpendCategory = "fuel"
	CategoryTravel        SpendCategory = "travel"
	CategoryShopping      SpendCategory = "shopping"
	CategoryUtilities     SpendCategory = "utilities"
	CategoryEntertainment SpendCategory = "entertainment"
	CategoryHealthcare    SpendCategory = "healthcare"
	CategoryEducation     SpendCategory = "education"
	CategoryRent          SpendCategory = "rent"
	CategoryWalletLoad    SpendCategory = "wallet_load"
	CategoryOther         SpendCategory = "other"
)

// SpendCategories returns the full taxonomy in declaration order.
func SpendCategories() []SpendCategory {
	return []SpendCategory{
		CategoryDining,
		CategoryGroceries,
		CategoryFuel,
		CategoryTravel,
		CategoryShopping,
		CategoryUtilities,
		CategoryEntertainment,
		CategoryHealthcare,
		CategoryEducation,
		CategoryRent,
		CategoryWalletLoad,
		CategoryOther,
	}
}

// ValidCategory reports whether c is a member of the taxonomy.
func ValidCategory(c SpendCategory) bool {
	for _, known := range SpendCategories() {
		if c == known {
			return true
		}
	}
	return false
}
