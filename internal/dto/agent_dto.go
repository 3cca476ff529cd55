package dto

// TurnContext travels with every agent call.
type TurnContext struct {
	SessionId string `json:"session_id"`
}

type AgentRequest struct {
	Message   string `json:"message"`
	AgentId   string `json:"agent_id"`
	SessionId string `json:"session_id"`
}

// AgentReply.Result is either a string (to be parsed) or an already decoded object.
type AgentReply struct {
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
	Result  any    `json:"result,omitempty"`
}

type AgentResponse struct {
	Success  bool        `json:"success"`
	Response *AgentReply `json:"response,omitempty"`
	Error    string      `json:"error,omitempty"`
}
