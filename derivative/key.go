// Package derivative names and caches resized variants of stored images.
package derivative

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"photogallery/errs"
)

// keyAliases maps the compact URL dialect to transform capability names
var keyAliases = map[string]string{
	"w": "width",
	"h": "height",
	"g": "gravity",
	"q": "quality",
	"f": "format",
}

// fitAliases maps URL fit values to transform capability fit modes
var fitAliases = map[string]string{
	"outside": "crop",
	"inside":  "pad",
	"fill":    "scale-down",
	"cover":   "cover",
}

var (
	reverseKeyAliases = reverse(keyAliases)
	reverseFitAliases = reverse(fitAliases)
)

func reverse(m map[string]string) map[string]string {
	r := make(map[string]string, len(m))
	for k, v := range m {
		r[v] = k
	}
	return r
}

var (
	intParams   = map[string]bool{"width": true, "height": true, "quality": true, "rotate": true}
	floatParams = map[string]bool{"dpr": true, "sharpen": true, "blur": true}
)

type Pair struct {
	Name  string
	Value string
}

// Key is the canonical form of a set of transform parameters, in the URL dialect
type Key struct {
	pairs []Pair // sorted by Name, unique names
}

// ParseParams splits "w=100,h=200" into its pairs. A repeated name keeps the last value.
func ParseParams(s string) (map[string]string, error) {
	params := map[string]string{}
	if s == "" {
		return params, nil
	}
	for _, part := range strings.Split(s, ",") {
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok || name == "" {
			return nil, errs.New(errs.KindValidation, fmt.Sprintf("invalid parameter %q", part))
		}
		params[name] = value
	}
	return params, nil
}

// Canonicalize validates params and returns their canonical key
func Canonicalize(params map[string]string) (Key, error) {
	pairs := make([]Pair, 0, len(params))
	for name, value := range params {
		if name == "" || strings.ContainsAny(name, "/=,") || strings.ContainsAny(value, "/,") || value == ".." {
			return Key{}, errs.New(errs.KindValidation, fmt.Sprintf("invalid parameter %q", name))
		}
		capName := capabilityName(name)
		if intParams[capName] {
			if _, err := strconv.Atoi(value); err != nil {
				return Key{}, errs.Wrap(errs.KindValidation, fmt.Sprintf("invalid parameter %s: %q is not an integer", name, value), err)
			}
		} else if floatParams[capName] {
			if _, err := strconv.ParseFloat(value, 64); err != nil {
				return Key{}, errs.Wrap(errs.KindValidation, fmt.Sprintf("invalid parameter %s: %q is not a number", name, value), err)
			}
		}
		pairs = append(pairs, Pair{Name: name, Value: value})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Name < pairs[j].Name })
	return Key{pairs: pairs}, nil
}

// ParseKey is ParseParams followed by Canonicalize
func ParseKey(s string) (Key, error) {
	params, err := ParseParams(s)
	if err != nil {
		return Key{}, err
	}
	return Canonicalize(params)
}

func capabilityName(name string) string {
	if alias, ok := keyAliases[name]; ok {
		return alias
	}
	return name
}

func (k Key) IsZero() bool {
	return len(k.pairs) == 0
}

func (k Key) Pairs() []Pair {
	return append([]Pair(nil), k.pairs...)
}

// String is the cache path segment: sorted pairs joined by ','
func (k Key) String() string {
	parts := make([]string, len(k.pairs))
	for i, p := range k.pairs {
		parts[i] = p.Name + "=" + p.Value
	}
	return strings.Join(parts, ",")
}

// ToCapability returns the parameters in the transform capability dialect
func (k Key) ToCapability() map[string]string {
	result := make(map[string]string, len(k.pairs))
	for _, p := range k.pairs {
		name := capabilityName(p.Name)
		value := p.Value
		if name == "fit" {
			if alias, ok := fitAliases[value]; ok {
				value = alias
			}
		}
		result[name] = value
	}
	return result
}

// FromCapability maps capability parameters back to the URL dialect
func FromCapability(params map[string]string) map[string]string {
	result := make(map[string]string, len(params))
	for name, value := range params {
		if name == "fit" {
			if alias, ok := reverseFitAliases[value]; ok {
				value = alias
			}
		}
		if alias, ok := reverseKeyAliases[name]; ok {
			name = alias
		}
		result[name] = value
	}
	return result
}
