package approvalflow

import "fmt"

// BudgetRevision is the outcome of a reconciler save: the merged breakdown
// and the recomputed total, ready for the caller to persist.
type BudgetRevision struct {
	Breakdown []ExpenseItem
	Total     float64
}

// BudgetReconciler merges a comptroller's per-item edits into an expense
// breakdown and recomputes the total.
//
// Edits accumulate in a pending buffer and are only merged on an explicit
// Save, never on every keystroke. The total is recomputed incrementally
// (original total minus original item sum plus effective item sum) rather
// than re-summed flat, so any portion of the total not represented by a
// named item survives the merge. The result is floored at zero.
type BudgetReconciler struct {
	original      []ExpenseItem
	originalTotal float64
	edits         map[string]float64
}

// NewBudgetReconciler creates a reconciler over the given breakdown and
// total. The breakdown is copied; later edits never touch the original.
func NewBudgetReconciler(breakdown []ExpenseItem, total float64) *BudgetReconciler {
	original := make([]ExpenseItem, len(breakdown))
	copy(original, breakdown)
	return &BudgetReconciler{
		original:      original,
		originalTotal: total,
		edits:         make(map[string]float64),
	}
}

// Edit buffers a new amount for the named item. The item must exist in
// the original breakdown and the amount must be non-negative.
func (r *BudgetReconciler) Edit(category string, amount float64) error {
	if amount < 0 {
		return fmt.Errorf("%w: %s", ErrNegativeAmount, category)
	}
	if !r.hasItem(category) {
		return fmt.Errorf("%w: %s", ErrUnknownExpenseItem, category)
	}
	r.edits[category] = amount
	return nil
}

// ClearEdit drops a buffered edit, reverting the item to its original
// amount. Clearing an item with no pending edit is a no-op.
func (r *BudgetReconciler) ClearEdit(category string) {
	delete(r.edits, category)
}

// HasChanges returns true if any edit is buffered.
func (r *BudgetReconciler) HasChanges() bool {
	return len(r.edits) > 0
}

// EditedAmount returns the buffered amount for an item, or false if the
// item has no pending edit.
func (r *BudgetReconciler) EditedAmount(category string) (float64, bool) {
	v, ok := r.edits[category]
	return v, ok
}

// Preview computes the merged breakdown and total without committing the
// buffered edits.
func (r *BudgetReconciler) Preview() BudgetRevision {
	breakdown := make([]ExpenseItem, len(r.original))
	copy(breakdown, r.original)

	var originalSum, effectiveSum float64
	for i := range breakdown {
		originalSum += breakdown[i].Amount
		if edited, ok := r.edits[breakdown[i].Category]; ok {
			breakdown[i].Amount = edited
		}
		effectiveSum += breakdown[i].Amount
	}

	total := r.originalTotal - originalSum + effectiveSum
	if total < 0 {
		total = 0
	}

	return BudgetRevision{Breakdown: breakdown, Total: total}
}

// Save commits the buffered edits: it returns the merged revision and
// resets the reconciler so the revision becomes the new baseline. A save
// with an empty edit set is a user error, not a silent success.
func (r *BudgetReconciler) Save() (BudgetRevision, error) {
	if !r.HasChanges() {
		return BudgetRevision{}, ErrNoBudgetChanges
	}

	rev := r.Preview()

	r.original = make([]ExpenseItem, len(rev.Breakdown))
	copy(r.original, rev.Breakdown)
	r.originalTotal = rev.Total
	r.edits = make(map[string]float64)

	return rev, nil
}

func (r *BudgetReconciler) hasItem(category string) bool {
	for _, item := range r.original {
		if item.Category == category {
			return true
		}
	}
	return false
}
