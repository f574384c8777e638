package matchmaker

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"ChipClash/internal/auth"
	"ChipClash/internal/game/table"
	"ChipClash/internal/storage"
	"ChipClash/internal/utils"

	"github.com/charmbracelet/log"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// 一局固定两支队伍
const teamsPerRoom = 2

var (
	ErrInvalidRequest = errors.New("invalid match request")
	ErrForbidden      = errors.New("ticket secret mismatch")
)

// TokenIssuer signs the team token handed out once a room is formed.
type TokenIssuer interface {
	Issue(teamID, roomID, role string) (string, error)
}

type Service struct {
	repo             Repo
	teamTTL          int // seconds, 用于防止遗留队列
	rooms            storage.RoomStore
	tokens           TokenIssuer
	startingWinnings int
	log              *log.Logger
	OnRoomReady      func(*table.Room) // 成桌时调用的回调函数
}

func NewService(repo Repo, teamTTL int, rooms storage.RoomStore, tokens TokenIssuer, startingWinnings int) *Service {
	return &Service{
		repo:             repo,
		teamTTL:          teamTTL,
		rooms:            rooms,
		tokens:           tokens,
		startingWinnings: startingWinnings,
		log:              utils.Named("matchmaker"),
	}
}

// Join 入队并尝试立即成桌（随机两支队伍）。若可成桌，返回房间；否则返回排队中。
func (s *Service) Join(ctx context.Context, req JoinRequest) (*JoinResponse, error) {
	req.TeamName = strings.TrimSpace(req.TeamName)
	req.Pool = strings.TrimSpace(req.Pool)
	if req.TeamName == "" || req.Pool == "" {
		return nil, fmt.Errorf("%w: teamName and pool are required", ErrInvalidRequest)
	}
	if req.TeamID == "" {
		req.TeamID = uuid.NewString()
	} else if err := s.checkSecret(ctx, req.TeamID, req.Secret, true); err != nil {
		// 沿用已有 TeamID 需证明是同一支队伍
		return nil, err
	}

	// 防止重复匹配：检测队伍是否已经在房间中
	roomID, err := s.repo.GetTeamRoom(ctx, req.TeamID)
	if err != nil {
		return nil, err
	}
	if roomID != "" {
		return nil, fmt.Errorf("%w: team %s already in room %s", ErrInvalidRequest, req.TeamID, roomID)
	}

	secret, err := newSecret()
	if err != nil {
		return nil, err
	}
	ticket := Ticket{
		TeamID:     req.TeamID,
		TeamName:   req.TeamName,
		Members:    req.Members,
		Pool:       req.Pool,
		JoinedAt:   time.Now().UTC(),
		SecretHash: hashSecret(secret),
	}
	if err := s.repo.SetSecret(ctx, ticket.TeamID, ticket.SecretHash, s.teamTTL); err != nil {
		return nil, err
	}
	if err := s.repo.Enqueue(ctx, ticket, s.teamTTL); err != nil {
		return nil, err
	}
	queued := &JoinResponse{Queued: true, TeamID: req.TeamID, Secret: secret, Pool: req.Pool}

	cnt, err := s.repo.Count(ctx, req.Pool)
	if err != nil {
		return nil, err
	}
	if int(cnt) < teamsPerRoom {
		return queued, nil
	}
	tickets, err := s.repo.PopNRandom(ctx, req.Pool, teamsPerRoom)
	if err != nil {
		return nil, err
	}
	if len(tickets) < teamsPerRoom {
		// 并发竞争导致队伍不足：回退为排队状态
		return queued, nil
	}

	room, err := s.createRoom(ctx, req.Pool, tickets)
	if err != nil {
		// 建房失败，把两支队伍放回池子
		for _, t := range tickets {
			if qerr := s.repo.Enqueue(ctx, t, s.teamTTL); qerr != nil {
				s.log.Error("requeue failed", "team", t.TeamID, "err", qerr)
			}
		}
		return nil, err
	}

	// 启动游戏逻辑
	if s.OnRoomReady != nil {
		go s.OnRoomReady(room)
	}

	// 刚入队者可能没被选中（池里原本有多支队伍）
	for _, t := range tickets {
		if t.TeamID == req.TeamID {
			resp, err := s.Status(ctx, req.TeamID, secret)
			if err != nil {
				return nil, err
			}
			resp.Secret = secret
			return resp, nil
		}
	}
	return queued, nil
}

func (s *Service) createRoom(ctx context.Context, pool string, tickets []Ticket) (*table.Room, error) {
	a, b := tickets[0], tickets[1]
	room := table.NewRoom(pool,
		table.Team{ID: a.TeamID, Name: a.TeamName, Members: a.Members},
		table.Team{ID: b.TeamID, Name: b.TeamName, Members: b.Members},
		s.startingWinnings,
	)
	if err := s.rooms.Create(ctx, room); err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	for _, t := range tickets {
		if err := s.repo.SetTeamRoom(ctx, t.TeamID, room.ID, s.teamTTL); err != nil {
			s.log.Error("SetTeamRoom failed", "team", t.TeamID, "room", room.ID, "err", err)
		}
		// 密钥与房间映射同时过期
		if err := s.repo.SetSecret(ctx, t.TeamID, t.SecretHash, s.teamTTL); err != nil {
			s.log.Error("SetSecret failed", "team", t.TeamID, "err", err)
		}
	}
	s.log.Info("room formed", "room", room.ID, "pool", pool, "a", a.TeamName, "b", b.TeamName)
	return room, nil
}

// Status 查询队伍是否已成桌；成桌后签发队伍 token。
// 只有持有入队密钥的调用方才能拿到 token。
func (s *Service) Status(ctx context.Context, teamID, secret string) (*JoinResponse, error) {
	if err := s.checkSecret(ctx, teamID, secret, false); err != nil {
		return nil, err
	}
	roomID, err := s.repo.GetTeamRoom(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if roomID == "" {
		return &JoinResponse{Queued: true, TeamID: teamID}, nil
	}
	room, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	token, err := s.tokens.Issue(teamID, roomID, auth.RoleTeam)
	if err != nil {
		return nil, err
	}
	return &JoinResponse{TeamID: teamID, Pool: room.Pool, RoomID: roomID, JWT: token}, nil
}

func (s *Service) Cancel(ctx context.Context, teamID, secret string) error {
	if err := s.checkSecret(ctx, teamID, secret, false); err != nil {
		return err
	}
	return s.repo.Remove(ctx, teamID)
}

// checkSecret compares secret with the stored hash. A team without a stored
// hash fails unless allowUnknown is set.
func (s *Service) checkSecret(ctx context.Context, teamID, secret string, allowUnknown bool) error {
	want, err := s.repo.SecretHash(ctx, teamID)
	if err != nil {
		return err
	}
	if want == "" {
		if allowUnknown {
			return nil
		}
		return fmt.Errorf("%w: team %s", ErrForbidden, teamID)
	}
	if secret == "" || subtle.ConstantTimeCompare([]byte(hashSecret(secret)), []byte(want)) != 1 {
		return fmt.Errorf("%w: team %s", ErrForbidden, teamID)
	}
	return nil
}

func newSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("ticket secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func hashSecret(secret string) string {
	return crypto.Keccak256Hash([]byte(secret)).Hex()
}
