// Package frontmatter reads and writes the metadata block at the head of a
// vault document.
//
// The dialect is a small YAML-like subset:
//
//	---
//	todoist_id: "6X7rM8997g3RQmvh"
//	todoist_type: task
//	priority: 4
//	completed: false
//	labels:
//	  - errand
//	  - home
//	aliases: [one, two]
//	description: |
//	  first line
//	  second line
//	# comments are ignored
//	---
//
// Scalars are strings, integers, floats or booleans. Arrays hold strings and
// may be written in flow form ([a, b]) or block form (one "- item" per line).
// Lines the parser does not understand are skipped, never reported.
package frontmatter

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// Delimiter fences the frontmatter block.
const Delimiter = "---"

// Kind identifies which field of a Value is populated.
type Kind uint8

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
	KindList
)

// Value is a single property value.
type Value struct {
	Kind  Kind
	Str   string
	Int   int64
	Float float64
	Bool  bool
	List  []string
}

func String(s string) Value     { return Value{Kind: KindString, Str: s} }
func Int(i int64) Value         { return Value{Kind: KindInt, Int: i} }
func Float(f float64) Value     { return Value{Kind: KindFloat, Float: f} }
func Bool(b bool) Value         { return Value{Kind: KindBool, Bool: b} }
func List(items []string) Value { return Value{Kind: KindList, List: items} }

// Text renders a scalar as plain text. Lists are joined with ", ".
func (v Value) Text() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return formatFloat(v.Float)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindList:
		return strings.Join(v.List, ", ")
	}
	return ""
}

// Properties is the property bag of one document.
type Properties map[string]Value

// GetString returns the value for key rendered as text. Numbers and booleans
// are accepted because hand-edited documents often drop the quotes.
func (p Properties) GetString(key string) (string, bool) {
	v, ok := p[key]
	if !ok || v.Kind == KindList {
		return "", false
	}
	return v.Text(), true
}

// GetInt returns an integer value. Quoted digits are accepted.
func (p Properties) GetInt(key string) (int64, bool) {
	v, ok := p[key]
	if !ok {
		return 0, false
	}
	switch v.Kind {
	case KindInt:
		return v.Int, true
	case KindFloat:
		return int64(v.Float), true
	case KindString:
		i, err := strconv.ParseInt(strings.TrimSpace(v.Str), 10, 64)
		return i, err == nil
	}
	return 0, false
}

// GetBool returns a boolean value. The strings "true" and "false" are accepted.
func (p Properties) GetBool(key string) (bool, bool) {
	v, ok := p[key]
	if !ok {
		return false, false
	}
	switch v.Kind {
	case KindBool:
		return v.Bool, true
	case KindString:
		b, err := strconv.ParseBool(strings.TrimSpace(v.Str))
		return b, err == nil
	}
	return false, false
}

// GetList returns an array value. A single scalar is promoted to a one-item list.
func (p Properties) GetList(key string) ([]string, bool) {
	v, ok := p[key]
	if !ok {
		return nil, false
	}
	if v.Kind == KindList {
		return v.List, true
	}
	if s := v.Text(); s != "" {
		return []string{s}, true
	}
	return []string{}, true
}

// Clone returns a copy that shares no slices with p.
func (p Properties) Clone() Properties {
	out := make(Properties, len(p))
	for k, v := range p {
		if v.Kind == KindList {
			v.List = slices.Clone(v.List)
		}
		out[k] = v
	}
	return out
}

// keyOrder lists the keys written first, in this order. Remaining keys follow
// alphabetically.
var keyOrder = []string{
	"todoist_id",
	"todoist_type",
	"title",
	"name",
	"description",
	"completed",
	"priority",
	"due",
	"labels",
	"project",
	"project_id",
	"section",
	"section_id",
	"parent_id",
	"color",
	"favorite",
	"tags",
	"last_sync",
	"sync_status",
}

// Keys returns the keys of p in serialization order.
func (p Properties) Keys() []string {
	keys := make([]string, 0, len(p))
	for _, k := range keyOrder {
		if _, ok := p[k]; ok {
			keys = append(keys, k)
		}
	}
	var rest []string
	for k := range p {
		if !slices.Contains(keyOrder, k) {
			rest = append(rest, k)
		}
	}
	slices.Sort(rest)
	return append(keys, rest...)
}

var floatPattern = regexp.MustCompile(`^-?\d+\.\d+$`)

func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
