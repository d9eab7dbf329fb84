package tools

import (
	"context"
	"math"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/expr-lang/expr"
)

// CalculateTool evaluates arithmetic expressions.
type CalculateTool struct{}

// NewCalculateTool creates the calculate tool.
func NewCalculateTool() *CalculateTool {
	return &CalculateTool{}
}

func (t *CalculateTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: "calculate",
		Desc: "Evaluate a mathematical expression. Supports +, -, *, /, %, **, parentheses and functions like sqrt, sin, cos, log, pow, abs, ceil, floor, round, plus the constants pi and e.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"expression": {
				Type:     schema.String,
				Desc:     "The expression to evaluate, e.g. \"2+2\" or \"sqrt(144) * pi\"",
				Required: true,
			},
		}),
	}, nil
}

type calculateInput struct {
	Expression string `json:"expression"`
}

// calcEnv exposes the math vocabulary available inside expressions.
var calcEnv = map[string]any{
	"pi":    math.Pi,
	"e":     math.E,
	"sqrt":  math.Sqrt,
	"abs":   math.Abs,
	"ceil":  math.Ceil,
	"floor": math.Floor,
	"round": math.Round,
	"sin":   math.Sin,
	"cos":   math.Cos,
	"tan":   math.Tan,
	"log":   math.Log,
	"log10": math.Log10,
	"log2":  math.Log2,
	"exp":   math.Exp,
	"pow":   math.Pow,
}

func (t *CalculateTool) InvokableRun(_ context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var in calculateInput
	if err := decodeArgs(argumentsInJSON, &in); err != nil {
		return errorResult("invalid arguments: " + err.Error()), nil
	}
	expression := strings.TrimSpace(in.Expression)
	if expression == "" {
		return errorResult("expression is required"), nil
	}

	value, err := expr.Eval(expression, calcEnv)
	if err != nil {
		return marshalResult(map[string]any{
			"success":    false,
			"expression": expression,
			"error":      err.Error(),
		})
	}
	if f, ok := value.(float64); ok && (math.IsInf(f, 0) || math.IsNaN(f)) {
		return marshalResult(map[string]any{
			"success":    false,
			"expression": expression,
			"error":      "result is not a finite number",
		})
	}

	return marshalResult(map[string]any{
		"success":    true,
		"expression": expression,
		"result":     value,
	})
}

var _ tool.InvokableTool = (*CalculateTool)(nil)
