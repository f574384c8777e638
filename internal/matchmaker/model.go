package matchmaker

import "time"

// JoinRequest 前端提交的匹配请求
type JoinRequest struct {
	TeamID   string   `json:"teamId"` // 可选：重新排队时沿用原 ticket
	Secret   string   `json:"secret"` // 沿用 TeamID 时必须提供
	TeamName string   `json:"teamName" binding:"required"`
	Members  []string `json:"members"`
	Pool     string   `json:"pool" binding:"required"` // 例如 "class-3a"
}

// JoinResponse 返回是否已成桌；若已成桌则给出房间信息与队伍 token。
// Secret 只在入队时返回一次，之后查询与取消都要带上它。
type JoinResponse struct {
	Queued bool   `json:"queued"`
	TeamID string `json:"teamId"`
	Secret string `json:"secret,omitempty"`
	Pool   string `json:"pool"`
	RoomID string `json:"roomId,omitempty"`
	JWT    string `json:"jwt,omitempty"`
}

// CancelRequest 取消匹配
type CancelRequest struct {
	TeamID string `json:"teamId" binding:"required"`
	Secret string `json:"secret" binding:"required"`
}

// Ticket is one team waiting in a pool.
type Ticket struct {
	TeamID   string    `json:"teamId"`
	TeamName string    `json:"teamName"`
	Members  []string  `json:"members"`
	Pool     string    `json:"pool"`
	JoinedAt time.Time `json:"joinedAt"`
	// SecretHash travels with the ticket so it can be refreshed when the
	// room forms.
	SecretHash string `json:"secretHash,omitempty"`
}
