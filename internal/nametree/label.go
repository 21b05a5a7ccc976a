// Package nametree implements the hierarchical, wildcard-capable label
// tree that backs the DNS registry: a radix-like structure indexed by DNS
// labels, walked tail-first (outermost label first), supporting exact and
// wildcard lookup with a single walk and per-node round-robin answers.
package nametree

import "strings"

// Wildcard is the reserved label segment that marks a node's own address
// list as a wildcard fallback for anything below it.
const Wildcard = "*"

// Label is a DNS name decomposed into its dot-separated segments, kept in
// their natural written order (left to right, most specific segment
// first). Tree operations walk a Label tail-first -- popping the last
// (outermost) segment at each step -- which is what lets "com" branch
// before "example" before "www" for "www.example.com", the same order
// dnslib's DNSLabel.label is walked in original_source/dnsrest/nodez.py.
type Label []string

// NewLabel splits a dotted DNS name into a Label, tolerating a trailing
// dot and surrounding whitespace.
func NewLabel(name string) Label {
	name = strings.TrimSuffix(strings.TrimSpace(name), ".")
	if name == "" {
		return nil
	}
	return strings.Split(name, ".")
}

// IDNA renders the label back to its canonical dotted string form, without
// a trailing dot. Container and compose-derived names are plain ASCII, so
// canonicalization here is a case fold rather than a true IDNA punycode
// round-trip -- see DESIGN.md for why a dedicated IDNA library is not used.
func (l Label) IDNA() string {
	if len(l) == 0 {
		return ""
	}
	parts := make([]string, len(l))
	for i, seg := range l {
		parts[i] = strings.ToLower(seg)
	}
	return strings.Join(parts, ".")
}

func (l Label) String() string { return l.IDNA() }

// pop splits off the outermost (last) segment of the label, returning it
// along with the remaining, inner segments. Both the returned part and
// rest share the label's backing array; neither call mutates it, so a
// single Label can be popped repeatedly across independent tree walks.
func (l Label) pop() (part string, rest Label, ok bool) {
	if len(l) == 0 {
		return "", nil, false
	}
	n := len(l) - 1
	return l[n], l[:n], true
}
