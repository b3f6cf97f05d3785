package archive

// Conversation 归档会话
// 一次完整的 AI 对话记录，由导入器写入 conversations 表
type Conversation struct {
	ConversationID string // 会话 ID（导入时生成或来自导出文件）
	Title          string // 会话标题
	AISource       string // 来源，如 gpt / claude
	CreateTime     int64  // 创建时间（Unix 秒）
}

// Message 会话消息
type Message struct {
	MessageID  string // 消息 ID
	Role       string // user / assistant / system / tool
	Content    string // 消息正文
	CreateTime int64  // 创建时间（Unix 秒）
}

// 消息角色常量
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)
