// Copyright 2025 Kim Wittenburg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ttlv

import (
	"strconv"
	"strings"

	"github.com/NLnetLabs/kmip-ttlv/wire"
)

// ruleKind enumerates the forms a selection rule can take.
type ruleKind int

const (
	ruleTagEqValue ruleKind = iota // if 0xNNNNNN==0xNNNNNNNN
	ruleTagEqText                  // if 0xNNNNNN==verbatim text
	ruleTagGte                     // if 0xNNNNNN>=0xNNNNNNNN
	ruleTagIn                      // if 0xNNNNNN in [0x..,0x..]
	ruleTypeIs                     // if type==TypeName
)

// A rule is the parsed form of a union variant's selection rule. Rules are
// parsed once per Go type and cached with the type description, so malformed
// rules fail identically on every use of the type.
type rule struct {
	kind  ruleKind
	tag   wire.Tag  // the sibling tag inspected by tag-based rules
	value uint32    // right-hand side of numeric == and >= rules
	set   []uint32  // right-hand side of in rules
	text  string    // right-hand side of textual == rules
	typ   wire.Type // right-hand side of type rules
}

// parseRule parses the selection rule s. The grammar is described in the
// package documentation. Whitespace around tokens is ignored.
func parseRule(s string) (*rule, error) {
	body, ok := strings.CutPrefix(s, "if ")
	if !ok {
		return nil, &MatcherSyntaxError{Rule: s, Reason: `rules start with "if "`}
	}
	body = strings.TrimSpace(body)
	if rest, ok := strings.CutPrefix(body, "type"); ok {
		name, ok := strings.CutPrefix(strings.TrimSpace(rest), "==")
		if !ok {
			return nil, &MatcherSyntaxError{Rule: s, Reason: "type rules use the == operator"}
		}
		typ, ok := wire.TypeByName(strings.TrimSpace(name))
		if !ok {
			return nil, &MatcherSyntaxError{Rule: s, Reason: "unknown item type " + strconv.Quote(strings.TrimSpace(name))}
		}
		return &rule{kind: ruleTypeIs, typ: typ}, nil
	}

	var lhs, op, rhs string
	for _, o := range []string{"==", ">=", " in "} {
		if i := strings.Index(body, o); i >= 0 {
			lhs, op, rhs = body[:i], strings.TrimSpace(o), body[i+len(o):]
			break
		}
	}
	if op == "" {
		return nil, &MatcherSyntaxError{Rule: s, Reason: "missing comparison operator"}
	}
	tag, err := wire.ParseTag(strings.TrimSpace(lhs))
	if err != nil {
		return nil, &MatcherSyntaxError{Rule: s, Reason: "left-hand side must be a tag"}
	}
	rhs = strings.TrimSpace(rhs)

	switch op {
	case "==":
		if v, ok := enumConst(rhs); ok {
			return &rule{kind: ruleTagEqValue, tag: tag, value: v}, nil
		}
		if rhs == "" {
			return nil, &MatcherSyntaxError{Rule: s, Reason: "missing right-hand side"}
		}
		return &rule{kind: ruleTagEqText, tag: tag, text: rhs}, nil
	case ">=":
		v, ok := enumConst(rhs)
		if !ok {
			return nil, &MatcherSyntaxError{Rule: s, Reason: ">= compares against a 0x prefixed 8 digit constant"}
		}
		return &rule{kind: ruleTagGte, tag: tag, value: v}, nil
	default: // in
		list, ok := strings.CutPrefix(rhs, "[")
		if ok {
			list, ok = strings.CutSuffix(list, "]")
		}
		if !ok {
			return nil, &MatcherSyntaxError{Rule: s, Reason: "in compares against a [..] list"}
		}
		r := &rule{kind: ruleTagIn, tag: tag}
		for part := range strings.SplitSeq(list, ",") {
			v, ok := enumConst(strings.TrimSpace(part))
			if !ok {
				return nil, &MatcherSyntaxError{Rule: s, Reason: "list elements must be 0x prefixed 8 digit constants"}
			}
			r.set = append(r.set, v)
		}
		if len(r.set) == 0 {
			return nil, &MatcherSyntaxError{Rule: s, Reason: "empty list"}
		}
		return r, nil
	}
}

// enumConst parses the numeric constant form "0x" followed by exactly 8 hex
// digits.
func enumConst(s string) (uint32, bool) {
	digits, ok := strings.CutPrefix(s, "0x")
	if !ok || len(digits) != 8 {
		return 0, false
	}
	n, err := strconv.ParseUint(digits, 16, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// matches reports whether r selects the current item. sc holds the sibling
// values already decoded in the enclosing Structure, typ is the wire type of
// the current item. A rule referring to a sibling that has not been seen
// does not match.
func (r *rule) matches(sc *scope, typ wire.Type) bool {
	if r.kind == ruleTypeIs {
		return typ == r.typ
	}
	sv, ok := sc.lookup(r.tag)
	if !ok {
		return false
	}
	switch r.kind {
	case ruleTagEqText:
		s, ok := sv.val.(string)
		return ok && s == r.text
	case ruleTagEqValue:
		n, ok := numeric(sv.val)
		return ok && n == int64(r.value)
	case ruleTagGte:
		n, ok := numeric(sv.val)
		return ok && n >= int64(r.value)
	case ruleTagIn:
		n, ok := numeric(sv.val)
		if !ok {
			return false
		}
		for _, v := range r.set {
			if n == int64(v) {
				return true
			}
		}
	}
	return false
}

// numeric converts a retained sibling value to a comparable integer.
// Enumeration values compare by their unsigned value.
func numeric(v any) (int64, bool) {
	switch n := v.(type) {
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	}
	return 0, false
}
