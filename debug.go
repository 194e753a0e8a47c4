//go:build pooldebug

package pagepool

// debugChecks enables full recomputation of pool invariants around every
// mutating operation.
const debugChecks = true
