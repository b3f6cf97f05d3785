package rag

// ChatTurn 对话轮次
// 历史序列中 system 消息最多一条，且只允许出现在第 0 位
type ChatTurn struct {
	Role    string `json:"role"` // system / user / assistant
	Content string `json:"content"`
}

// LastUsedModel 上次使用的模型记录
type LastUsedModel struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}
