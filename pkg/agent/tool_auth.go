package agent

import (
	"encoding/json"
	"regexp"
	"strings"
)

// The gateway reports tool auth either as a structured "detail" object (HTTP 401 from the proxy)
// or stringified inside the error text (HTTP 200 from the async task runner).
var (
	toolNamePattern    = regexp.MustCompile(`['"]tool_name['"]:\s*['"]([^'"]+)['"]`)
	toolSourcePattern  = regexp.MustCompile(`['"]tool_source['"]:\s*['"]([^'"]+)['"]`)
	reasonPattern      = regexp.MustCompile(`['"]reason['"]:\s*['"]([^'"]+)['"]`)
	actionNamesPattern = regexp.MustCompile(`['"]action_names['"]:\s*\[([^\]]+)\]`)
	quotedPattern      = regexp.MustCompile(`['"]([^'"]+)['"]`)
)

type toolAuthBody struct {
	Detail   *ToolAuth `json:"detail"`
	Error    string    `json:"error"`
	Response *struct {
		Message string `json:"message"`
	} `json:"response"`
}

func extractToolAuth(body []byte) *ToolAuth {
	var parsed toolAuthBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		// detail may not be an object; fall back to scanning the raw text
		parsed = toolAuthBody{Error: string(body)}
	}

	errText := parsed.Error
	if errText == "" && parsed.Response != nil {
		errText = parsed.Response.Message
	}

	out := &ToolAuth{}
	if parsed.Detail != nil {
		*out = *parsed.Detail
	}
	if out.ToolName == "" {
		out.ToolName = firstMatch(toolNamePattern, errText)
	}
	if out.ToolSource == "" {
		out.ToolSource = firstMatch(toolSourcePattern, errText)
	}
	if out.Reason == "" {
		out.Reason = firstMatch(reasonPattern, errText)
	}
	if len(out.ActionNames) == 0 {
		if raw := firstMatch(actionNamesPattern, errText); raw != "" {
			for _, m := range quotedPattern.FindAllStringSubmatch(raw, -1) {
				out.ActionNames = append(out.ActionNames, strings.TrimSpace(m[1]))
			}
		}
	}

	return out
}

func firstMatch(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return ""
}
