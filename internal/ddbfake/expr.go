package ddbfake

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

var (
	eqClause     = regexp.MustCompile(`^(\S+)\s*=\s*(:\w+)$`)
	beginsClause = regexp.MustCompile(`^begins_with\s*\(\s*([^,\s]+)\s*,\s*(:\w+)\s*\)$`)
	existsClause = regexp.MustCompile(`^attribute_(not_)?exists\s*\(\s*([^)\s]+)\s*\)$`)
)

// fakeAPIError satisfies smithy.APIError for errors DynamoDB reports by code only.
type fakeAPIError struct {
	code    string
	message string
}

func (e *fakeAPIError) Error() string                 { return e.code + ": " + e.message }
func (e *fakeAPIError) ErrorCode() string             { return e.code }
func (e *fakeAPIError) ErrorMessage() string          { return e.message }
func (e *fakeAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

// keyCondition is a parsed KeyConditionExpression.
type keyCondition struct {
	hash      string
	rangeOp   string // "", "=" or "begins_with"
	rangeWant string
}

func (kc keyCondition) matchRange(v string) bool {
	switch kc.rangeOp {
	case "=":
		return v == kc.rangeWant
	case "begins_with":
		return strings.HasPrefix(v, kc.rangeWant)
	default:
		return true
	}
}

func parseKeyCondition(expr string, names map[string]string, values map[string]types.AttributeValue, hashAttr, rangeAttr string) (keyCondition, error) {
	var kc keyCondition
	hashSeen := false
	for _, clause := range splitAnd(expr) {
		var name, placeholder, op string
		if m := beginsClause.FindStringSubmatch(clause); m != nil {
			name, placeholder, op = m[1], m[2], "begins_with"
		} else if m := eqClause.FindStringSubmatch(clause); m != nil {
			name, placeholder, op = m[1], m[2], "="
		} else {
			return kc, validationError("unsupported key condition %q", clause)
		}
		attr := resolveName(name, names)
		value, ok := values[placeholder].(*types.AttributeValueMemberS)
		if !ok {
			return kc, validationError("missing string value for %s", placeholder)
		}
		switch {
		case attr == hashAttr && op == "=":
			kc.hash = value.Value
			hashSeen = true
		case attr == rangeAttr:
			kc.rangeOp, kc.rangeWant = op, value.Value
		default:
			return kc, validationError("query key condition not supported on %s", attr)
		}
	}
	if !hashSeen {
		return kc, validationError("query condition missed key schema element: %s", hashAttr)
	}
	return kc, nil
}

// evalCondition evaluates a ConditionExpression against item (nil when absent).
func evalCondition(expr string, names map[string]string, values map[string]types.AttributeValue, item map[string]types.AttributeValue) (bool, error) {
	if strings.TrimSpace(expr) == "" {
		return true, nil
	}
	for _, clause := range splitAnd(expr) {
		if m := existsClause.FindStringSubmatch(clause); m != nil {
			_, present := item[resolveName(m[2], names)]
			if (m[1] == "") != present {
				return false, nil
			}
			continue
		}
		if m := eqClause.FindStringSubmatch(clause); m != nil {
			want, ok := values[m[2]]
			if !ok {
				return false, validationError("value %s is not defined", m[2])
			}
			got, present := item[resolveName(m[1], names)]
			if !present || !reflect.DeepEqual(got, want) {
				return false, nil
			}
			continue
		}
		return false, validationError("unsupported condition %q", clause)
	}
	return true, nil
}

// applyUpdate applies a SET-only update expression and returns the new item.
func applyUpdate(current, key map[string]types.AttributeValue, expr string, names map[string]string, values map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	expr = strings.TrimSpace(expr)
	if !strings.HasPrefix(expr, "SET ") {
		return nil, validationError("unsupported update expression %q", expr)
	}
	next := copyItem(current)
	if next == nil {
		next = copyItem(key)
	}
	for _, assignment := range strings.Split(strings.TrimPrefix(expr, "SET "), ",") {
		m := eqClause.FindStringSubmatch(strings.TrimSpace(assignment))
		if m == nil {
			return nil, validationError("unsupported assignment %q", assignment)
		}
		v, ok := values[m[2]]
		if !ok {
			return nil, validationError("value %s is not defined", m[2])
		}
		next[resolveName(m[1], names)] = v
	}
	return next, nil
}

func projectionNames(expr string, names map[string]string) []string {
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	var out []string
	for _, n := range strings.Split(expr, ",") {
		out = append(out, resolveName(strings.TrimSpace(n), names))
	}
	return out
}

func project(item map[string]types.AttributeValue, attrs []string) map[string]types.AttributeValue {
	if attrs == nil {
		return copyItem(item)
	}
	out := make(map[string]types.AttributeValue, len(attrs))
	for _, a := range attrs {
		if v, ok := item[a]; ok {
			out[a] = v
		}
	}
	return out
}

// splitAnd splits on AND and strips the parentheses the expression builder
// puts around each operand.
func splitAnd(expr string) []string {
	parts := strings.Split(expr, " AND ")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		for strings.HasPrefix(p, "(") && strings.HasSuffix(p, ")") && balanced(p[1:len(p)-1]) {
			p = strings.TrimSpace(p[1 : len(p)-1])
		}
		parts[i] = p
	}
	return parts
}

func balanced(s string) bool {
	depth := 0
	for _, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

func resolveName(name string, names map[string]string) string {
	if strings.HasPrefix(name, "#") {
		if n, ok := names[name]; ok {
			return n
		}
	}
	return name
}

func stringAttr(item map[string]types.AttributeValue, name string) (string, bool) {
	s, ok := item[name].(*types.AttributeValueMemberS)
	if !ok {
		return "", false
	}
	return s.Value, true
}

func storageKey(pk, sk string) string {
	return pk + "\x00" + sk
}

func itemStorageKey(item map[string]types.AttributeValue) string {
	pk, _ := stringAttr(item, "PK")
	sk, _ := stringAttr(item, "SK")
	return storageKey(pk, sk)
}

func keyOf(key map[string]types.AttributeValue) (string, error) {
	pk, ok := stringAttr(key, "PK")
	if !ok {
		return "", validationError("missing key attribute PK")
	}
	sk, ok := stringAttr(key, "SK")
	if !ok {
		return "", validationError("missing key attribute SK")
	}
	return storageKey(pk, sk), nil
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	if item == nil {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func compareKeys(a, b []string) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := strings.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}
