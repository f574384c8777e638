package matchmaker

import "context"

// Repo 定义对匹配池的抽象操作
type Repo interface {
	// Enqueue 将队伍加入指定池
	Enqueue(ctx context.Context, t Ticket, ttlSeconds int) error
	// PopNRandom 当池内达到 N 支队伍时，随机弹出 N 支（原子）
	PopNRandom(ctx context.Context, pool string, n int) ([]Ticket, error)
	// Remove 将队伍从当前池移除（用于取消）
	Remove(ctx context.Context, teamID string) error
	// Count 返回池内队伍数
	Count(ctx context.Context, pool string) (int64, error)
	// SetTeamRoom 记录队伍所在房间
	SetTeamRoom(ctx context.Context, teamID, roomID string, ttlSeconds int) error
	// GetTeamRoom 查询队伍所在房间，未成桌返回 ""
	GetTeamRoom(ctx context.Context, teamID string) (string, error)
	// SetSecret 保存队伍 ticket 密钥的哈希
	SetSecret(ctx context.Context, teamID, hash string, ttlSeconds int) error
	// SecretHash 返回队伍密钥哈希，不存在返回 ""
	SecretHash(ctx context.Context, teamID string) (string, error)
}
