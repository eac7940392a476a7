// Package rules resolves unit priorities and dependencies from the rule tables
// supplied at construction time. Rules declared against a kind also apply to
// every kind deriving from it in the unit.Hierarchy.
package rules
