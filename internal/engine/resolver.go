package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/capitalize-ai/guided-resolution/internal/model"
)

// Resolve picks the next node id from node's edges given the response map.
// Conditional rules are tried in declared order and the first rule whose
// conditions all hold wins. A missing field makes its condition false.
func Resolve(node model.Node, responses map[string]any) (string, error) {
	edges := node.Base().Edges
	if edges.Next != "" {
		return edges.Next, nil
	}

	for _, rule := range edges.Conditional {
		ok, err := ruleHolds(node.NodeID(), rule, responses)
		if err != nil {
			return "", err
		}
		if ok {
			return rule.NodeID, nil
		}
	}
	return "", &UnroutableStateError{NodeID: node.NodeID()}
}

func ruleHolds(nodeID string, rule model.Rule, responses map[string]any) (bool, error) {
	for _, c := range rule.Conditions {
		ok, err := evalCondition(c, responses)
		if err != nil {
			var ee *EvaluationError
			if errors.As(err, &ee) {
				ee.NodeID = nodeID
			}
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func evalCondition(c model.Condition, responses map[string]any) (bool, error) {
	actual, present := responses[c.Field]
	if !present {
		return false, nil
	}

	switch c.Operator {
	case model.OpEquals:
		return equal(actual, c.Value), nil
	case model.OpIn:
		return member(actual, c.Value, c)
	case model.OpGreaterThan, model.OpLessThan:
		a, ok := toFloat(actual)
		if !ok {
			return false, &EvaluationError{Field: c.Field, Operator: string(c.Operator), Reason: fmt.Sprintf("response %v is not numeric", actual)}
		}
		b, ok := toFloat(c.Value)
		if !ok {
			return false, &EvaluationError{Field: c.Field, Operator: string(c.Operator), Reason: fmt.Sprintf("operand %v is not numeric", c.Value)}
		}
		if c.Operator == model.OpGreaterThan {
			return a > b, nil
		}
		return a < b, nil
	default:
		return false, &EvaluationError{Field: c.Field, Operator: string(c.Operator), Reason: "unknown operator"}
	}
}

func member(actual, list any, c model.Condition) (bool, error) {
	if list == nil {
		return false, &EvaluationError{Field: c.Field, Operator: string(c.Operator), Reason: "operand is not a list"}
	}
	v := reflect.ValueOf(list)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return false, &EvaluationError{Field: c.Field, Operator: string(c.Operator), Reason: "operand is not a list"}
	}
	for i := 0; i < v.Len(); i++ {
		if equal(actual, v.Index(i).Interface()) {
			return true, nil
		}
	}
	return false, nil
}

// equal is strict equality over normalised JSON scalars: numbers compare by
// value regardless of Go type, but "3" never equals 3.
func equal(a, b any) bool {
	na, nb := normalize(a), normalize(b)
	if reflect.TypeOf(na) != reflect.TypeOf(nb) {
		return false
	}
	switch na.(type) {
	case nil, bool, float64, string:
		return na == nb
	}
	return reflect.DeepEqual(na, nb)
}

// normalize maps every Go numeric kind to float64 so values decoded from
// JSON, YAML and the database compare alike.
func normalize(v any) any {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int8:
		return float64(t)
	case int16:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint:
		return float64(t)
	case uint8:
		return float64(t)
	case uint16:
		return float64(t)
	case uint32:
		return float64(t)
	case uint64:
		return float64(t)
	case float32:
		return float64(t)
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	}
	return v
}

func toFloat(v any) (float64, bool) {
	switch t := normalize(v).(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}
