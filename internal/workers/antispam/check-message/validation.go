package checkmessage

import "cleantalk-antispam/internal/common/validation"

func GetInputSchema(maxMessageLength int) validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"message", "clientIp"},
		Properties: map[string]validation.Property{
			"message": {
				Type:        "string",
				Description: "Text of the comment or contact message",
				MinLength:   validation.IntPtr(1),
				MaxLength:   validation.IntPtr(maxMessageLength),
			},
			"email": {
				Type:      "string",
				MaxLength: validation.IntPtr(254),
			},
			"nickname": {
				Type:      "string",
				MaxLength: validation.IntPtr(255),
			},
			"clientIp": {
				Type:        "string",
				Description: "IP address of the visitor",
				MinLength:   validation.IntPtr(2),
				MaxLength:   validation.IntPtr(45),
			},
			"referrer":  {Type: "string", MaxLength: validation.IntPtr(2048)},
			"userAgent": {Type: "string", MaxLength: validation.IntPtr(1024)},
			"sessionId": {Type: "string", MaxLength: validation.IntPtr(128)},
			"formId":    {Type: "string", MaxLength: validation.IntPtr(128)},
			"checkJs":   {Type: "string", MaxLength: validation.IntPtr(256)},
		},
		AdditionalProperties: true,
	}
}

func GetOutputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"allowed", "comment"},
		Properties: map[string]validation.Property{
			"allowed": {Type: "boolean", Description: "Whether the message may be published"},
			"comment": {Type: "string", Description: "Comment returned by the moderation server"},
		},
		AdditionalProperties: false,
	}
}
