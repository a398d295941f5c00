// Package policy provides optional declarative rules that can be applied on
// top of a running world runtime – for example to require human approval for
// selected effect adapters or to enforce execution constraints.
package policy
