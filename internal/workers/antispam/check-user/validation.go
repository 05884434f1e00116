package checkuser

import "cleantalk-antispam/internal/common/validation"

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"clientIp"},
		Properties: map[string]validation.Property{
			"email": {
				Type:        "string",
				Description: "Email entered in the registration form",
				MaxLength:   validation.IntPtr(254),
			},
			"nickname": {
				Type:        "string",
				Description: "Nickname entered in the registration form",
				MaxLength:   validation.IntPtr(255),
			},
			"clientIp": {
				Type:        "string",
				Description: "IP address of the visitor",
				MinLength:   validation.IntPtr(2),
				MaxLength:   validation.IntPtr(45),
			},
			"referrer": {
				Type:        "string",
				Description: "Referer header of the submission",
				MaxLength:   validation.IntPtr(2048),
			},
			"userAgent": {
				Type:        "string",
				Description: "User-Agent header of the submission",
				MaxLength:   validation.IntPtr(1024),
			},
			"sessionId": {
				Type:        "string",
				Description: "Visitor session holding the form start time",
				MaxLength:   validation.IntPtr(128),
			},
			"formId": {
				Type:        "string",
				Description: "Posted ct_formid value",
				MaxLength:   validation.IntPtr(128),
			},
			"checkJs": {
				Type:        "string",
				Description: "Posted ct_checkjs value; any other value than the challenge means js_on=0",
				MaxLength:   validation.IntPtr(256),
			},
		},
		AdditionalProperties: true,
	}
}

func GetOutputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"allowed", "comment"},
		Properties: map[string]validation.Property{
			"allowed": {
				Type:        "boolean",
				Description: "Whether the registration may proceed",
			},
			"comment": {
				Type:        "string",
				Description: "Comment returned by the moderation server",
			},
		},
		AdditionalProperties: false,
	}
}
