package service

import (
	"context"
	"log/slog"
	"math/rand"
)

const defaultContestTopN = 10

// ContestService 比赛榜单与随机抽奖（全部时间前 N 名）
type ContestService struct {
	board *LeaderboardService
	topN  int
	pick  func(n int) int
}

// NewContestService 创建比赛服务
func NewContestService(board *LeaderboardService, topN int) *ContestService {
	if topN <= 0 {
		topN = defaultContestTopN
	}
	return &ContestService{board: board, topN: topN, pick: rand.Intn}
}

// TopN 参与抽奖的名额
func (s *ContestService) TopN() int {
	return s.topN
}

// ContestBoard 全部时间前 N 名
func (s *ContestService) ContestBoard(ctx context.Context) ([]Entry, error) {
	b, err := s.board.Aggregate(ctx, Window{Days: 0, Limit: s.topN})
	if err != nil {
		return nil, err
	}
	return b.Ranked(), nil
}

// PickWinner 从前 N 名中等概率抽取一人
func (s *ContestService) PickWinner(ctx context.Context) (Entry, error) {
	candidates, err := s.ContestBoard(ctx)
	if err != nil {
		return Entry{}, err
	}
	if len(candidates) == 0 {
		return Entry{}, ErrNoCandidates
	}
	winner := candidates[s.pick(len(candidates))]
	slog.Info("抽奖完成", "winner", winner.UserID, "rank", winner.Rank, "candidates", len(candidates))
	return winner, nil
}
