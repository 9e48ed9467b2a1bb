// Package recalc implements the ReCalc expense-claim backend: session
// credential issuance and verification, ordered-role access control, and
// the claim lifecycle engine (creation with per-item reimbursement
// computation, single-transition approval).
package recalc
