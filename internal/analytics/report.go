package analytics

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"coffeeleaf/internal/llm"
	"coffeeleaf/internal/logger"
)

// ErrNoLLM is returned by FarmReport when no model is configured.
var ErrNoLLM = errors.New("analytics: llm not configured")

const farmReportPrompt = `Bạn là chuyên gia nông học về cây cà phê. Dựa trên thống kê quét lá dưới đây,
hãy viết một đoạn tư vấn ngắn (tối đa 5 câu) bằng tiếng Việt cho nông dân: tình trạng chung của vườn,
bệnh cần ưu tiên xử lý và việc nên làm trong tuần tới.`

type Reporter struct {
	llm llm.Client
	log *logger.Logger
}

// NewReporter accepts a nil client; FarmReport then returns ErrNoLLM.
func NewReporter(client llm.Client, log *logger.Logger) *Reporter {
	return &Reporter{llm: client, log: logger.OrNop(log)}
}

// FarmReport asks the model for a short advisory paragraph about stats.
func (r *Reporter) FarmReport(ctx context.Context, stats HistoryStats) (string, error) {
	if r == nil || r.llm == nil {
		return "", ErrNoLLM
	}
	if stats.TotalScans == 0 {
		return "Chưa có dữ liệu quét nào để phân tích.", nil
	}

	resp, err := r.llm.Generate(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: farmReportPrompt},
		{Role: llm.RoleUser, Content: stats.GenerateReportSummary()},
	})
	if err != nil {
		r.log.Error("farm report generation failed", "error", err)
		return "", fmt.Errorf("farm report: %w", err)
	}
	r.log.Info("farm report generated", "model", resp.Model, "tokens", resp.TotalTokens)
	return strings.TrimSpace(resp.Content), nil
}
