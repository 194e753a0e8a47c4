//go:build !pooldebug

package pagepool

const debugChecks = false
