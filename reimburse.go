package recalc

// Estimate maps a category rule and an item cost to the capped
// reimbursement amount:
//
//	min(category.MaxReimbursement, category.Percentage * cost / 100)
//
// Pure; the standalone preview endpoint and claim creation both call
// this and must produce identical results for identical inputs.
func Estimate(category *Category, cost float64) float64 {
	amount := category.Percentage * cost / 100

	if amount > category.MaxReimbursement {
		return category.MaxReimbursement
	}

	return amount
}
