package tools

import "github.com/cloudwego/eino/schema"

// Tool names as presented to the reasoning service. Names stay English for
// function-calling reliability even though the agent converses in Vietnamese.
const (
	ToolLifePath       = "calculate_life_path"
	ToolExpression     = "calculate_expression_number"
	ToolSoulUrge       = "calculate_soul_urge_number"
	ToolBirthday       = "calculate_birthday_number"
	ToolPersonalYear   = "calculate_personal_year"
	ToolInterpretation = "get_numerology_interpretation"
)

// Definitions returns the tool schemas bound to the chat model.
func Definitions() []*schema.ToolInfo {
	birthDate := &schema.ParameterInfo{
		Type:     schema.String,
		Desc:     "Birth date in YYYY-MM-DD format (e.g. 1990-05-15). Ask for the complete date if missing.",
		Required: true,
	}
	fullName := &schema.ParameterInfo{
		Type:     schema.String,
		Desc:     "Full birth name as on the birth certificate, not a nickname or married name.",
		Required: true,
	}

	return []*schema.ToolInfo{
		{
			Name: ToolLifePath,
			Desc: "Calculate the Life Path number from a birth date. Reveals life purpose and journey. Returns 1-9 or a master number 11, 22, 33.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"birth_date": birthDate,
			}),
		},
		{
			Name: ToolExpression,
			Desc: "Calculate the Expression (Destiny) number from a full birth name. Reveals natural talents and abilities.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"full_name": fullName,
			}),
		},
		{
			Name: ToolSoulUrge,
			Desc: "Calculate the Soul Urge (Heart's Desire) number from the vowels of a full birth name. Reveals inner motivations.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"full_name": fullName,
			}),
		},
		{
			Name: ToolBirthday,
			Desc: "Calculate the Birthday number from the day of the month of a birth date. Reveals special talents.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"birth_date": birthDate,
			}),
		},
		{
			Name: ToolPersonalYear,
			Desc: "Calculate the Personal Year number for a calendar year. Reveals the theme of that year.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"birth_date": birthDate,
				"year": {
					Type: schema.Integer,
					Desc: "Target calendar year. Defaults to the current year.",
				},
			}),
		},
		{
			Name: ToolInterpretation,
			Desc: "Retrieve expert interpretations for a calculated numerology number, optionally filtered by category.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"number_type": {
					Type:     schema.String,
					Desc:     "Type of number to interpret.",
					Enum:     []string{"life_path", "expression", "soul_urge", "birthday", "personal_year"},
					Required: true,
				},
				"number_value": {
					Type:     schema.Integer,
					Desc:     "The calculated value: 1-9 or 11, 22, 33.",
					Required: true,
				},
				"category": {
					Type: schema.String,
					Desc: "Optional interpretation category.",
					Enum: []string{"personality", "strengths", "challenges", "career", "relationships", "talents", "abilities", "purpose"},
				},
			}),
		},
	}
}
