// Package tools routes reasoning-service tool calls to the numerology engine
// and the interpretation knowledge base. Dispatch never returns an error and
// never panics: every failure becomes a structured error payload the model
// can recover from conversationally, because an escaped error here would
// terminate the live audio session.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/trieuvy/aria/backend/internal/numerology"
	"github.com/trieuvy/aria/backend/internal/store"
)

// Error kinds surfaced to the reasoning service as data.
const (
	ErrKindInvalidDate      = "InvalidDate"
	ErrKindInvalidName      = "InvalidName"
	ErrKindCalculationError = "CalculationError"
	ErrKindDatabaseError    = "DatabaseError"
	ErrKindUnknownTool      = "UnknownTool"
	ErrKindMissingArgument  = "MissingArgument"
)

// Dispatcher executes tool calls against local services.
type Dispatcher struct {
	interpretations store.Interpretations
	now             func() time.Time
	log             zerolog.Logger
}

// NewDispatcher builds a dispatcher over the interpretation lookup.
func NewDispatcher(interpretations store.Interpretations, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		interpretations: interpretations,
		now:             time.Now,
		log:             log.With().Str("component", "tools").Logger(),
	}
}

type errorResult struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Dispatch runs the named tool and always returns a JSON payload. Unknown
// tools and missing arguments are error payloads, not failures.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, rawArgs json.RawMessage) (out json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Str("tool", name).Any("panic", r).Msg("tool handler panicked")
			out = marshalResult(errorResult{ErrKindCalculationError, "Unable to process the request. Please try again."})
		}
	}()

	var args map[string]json.RawMessage
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			d.log.Warn().Str("tool", name).Err(err).Msg("malformed tool arguments")
			return marshalResult(errorResult{ErrKindMissingArgument, "Tool arguments could not be parsed."})
		}
	}

	d.log.Debug().Str("tool", name).Msg("dispatching tool call")

	var result any
	switch name {
	case ToolLifePath:
		result = d.handleDateTool(args, "birth_date", func(t time.Time) any {
			return map[string]int{"life_path_number": numerology.LifePath(t)}
		})
	case ToolExpression:
		result = d.handleNameTool(args, func(fullName string) any {
			return map[string]int{"expression_number": numerology.Expression(fullName)}
		})
	case ToolSoulUrge:
		result = d.handleNameTool(args, func(fullName string) any {
			return map[string]int{"soul_urge_number": numerology.SoulUrge(fullName)}
		})
	case ToolBirthday:
		result = d.handleDateTool(args, "birth_date", func(t time.Time) any {
			return map[string]int{"birthday_number": numerology.Birthday(t)}
		})
	case ToolPersonalYear:
		result = d.handlePersonalYear(args)
	case ToolInterpretation:
		result = d.handleInterpretation(ctx, args)
	default:
		d.log.Warn().Str("tool", name).Msg("unknown tool requested")
		result = errorResult{ErrKindUnknownTool, fmt.Sprintf("Tool %s is not available.", name)}
	}

	return marshalResult(result)
}

func (d *Dispatcher) handleDateTool(args map[string]json.RawMessage, field string, calc func(time.Time) any) any {
	raw, err := stringArg(args, field)
	if err != nil {
		return errorResult{ErrKindMissingArgument, fmt.Sprintf("Missing required parameter: %s", field)}
	}
	parsed, perr := time.Parse("2006-01-02", strings.TrimSpace(raw))
	if perr != nil {
		return errorResult{ErrKindInvalidDate, "Invalid date format. Please use YYYY-MM-DD (e.g. 1990-05-15)."}
	}
	return calc(parsed)
}

func (d *Dispatcher) handleNameTool(args map[string]json.RawMessage, calc func(string) any) any {
	fullName, err := stringArg(args, "full_name")
	if err != nil {
		return errorResult{ErrKindMissingArgument, "Missing required parameter: full_name"}
	}
	if strings.TrimSpace(fullName) == "" {
		return errorResult{ErrKindInvalidName, "Please provide your full name."}
	}
	return calc(fullName)
}

func (d *Dispatcher) handlePersonalYear(args map[string]json.RawMessage) any {
	raw, err := stringArg(args, "birth_date")
	if err != nil {
		return errorResult{ErrKindMissingArgument, "Missing required parameter: birth_date"}
	}
	parsed, perr := time.Parse("2006-01-02", strings.TrimSpace(raw))
	if perr != nil {
		return errorResult{ErrKindInvalidDate, "Invalid date format. Please use YYYY-MM-DD (e.g. 1990-05-15)."}
	}

	year := d.now().Year()
	if rawYear, ok := args["year"]; ok {
		if err := json.Unmarshal(rawYear, &year); err != nil || year <= 0 {
			return errorResult{ErrKindCalculationError, "The year must be a positive whole number."}
		}
	}
	return map[string]int{"personal_year_number": numerology.PersonalYear(parsed, year)}
}

func (d *Dispatcher) handleInterpretation(ctx context.Context, args map[string]json.RawMessage) any {
	numberType, err := stringArg(args, "number_type")
	if err != nil {
		return errorResult{ErrKindMissingArgument, "Missing required parameter: number_type"}
	}

	rawValue, ok := args["number_value"]
	if !ok {
		return errorResult{ErrKindMissingArgument, "Missing required parameter: number_value"}
	}
	var numberValue int
	if err := json.Unmarshal(rawValue, &numberValue); err != nil {
		return errorResult{ErrKindCalculationError, "The number value must be a whole number."}
	}

	category := ""
	if raw, ok := args["category"]; ok {
		_ = json.Unmarshal(raw, &category)
	}

	entries, lerr := d.interpretations.Lookup(ctx, numberType, numberValue, category)
	if lerr != nil {
		d.log.Error().Err(lerr).Str("numberType", numberType).Int("numberValue", numberValue).
			Msg("interpretation lookup failed")
		return errorResult{ErrKindDatabaseError, "Unable to retrieve interpretations right now. Please try again."}
	}

	type entry struct {
		Category string `json:"category"`
		Content  string `json:"content"`
	}
	out := make([]entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, entry{Category: e.Category, Content: e.Content})
	}
	return map[string]any{"interpretations": out}
}

func stringArg(args map[string]json.RawMessage, field string) (string, error) {
	raw, ok := args[field]
	if !ok {
		return "", fmt.Errorf("missing %s", field)
	}
	var out string
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("non-string %s", field)
	}
	return out, nil
}

func marshalResult(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		// All result shapes above are marshalable; this path guards
		// future handlers only.
		raw, _ = json.Marshal(errorResult{ErrKindCalculationError, "Unable to process the result."})
	}
	return raw
}
