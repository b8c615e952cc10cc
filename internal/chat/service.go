package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/pentabot/backend/internal/ai"
	"github.com/pentabot/backend/internal/apperr"
	"github.com/pentabot/backend/internal/credits"
	"github.com/pentabot/backend/internal/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type HistoryMode string

const (
	// HistoryStateless sends only the current message to the model.
	HistoryStateless HistoryMode = "stateless"
	// HistoryAugmented sends the recent window before the current message.
	HistoryAugmented HistoryMode = "history"
)

// Generator is the generation client the exchange depends on.
type Generator interface {
	Generate(ctx context.Context, req ai.GenerateRequest) (string, error)
}

type Options struct {
	HistoryMode  HistoryMode
	HistoryLimit int
	Instruction  string
}

// Service runs message exchanges and the chat read paths.
type Service struct {
	repo   *Repo
	ledger *credits.Ledger
	gen    Generator
	opts   Options
	log    *zap.Logger
	now    func() time.Time
}

func NewService(repo *Repo, ledger *credits.Ledger, gen Generator, opts Options, log *zap.Logger) *Service {
	if opts.HistoryMode != HistoryAugmented {
		opts.HistoryMode = HistoryStateless
	}
	if opts.HistoryLimit <= 0 || opts.HistoryLimit > 100 {
		opts.HistoryLimit = defaultHistoryLimit
	}
	if opts.Instruction == "" {
		opts.Instruction = ai.FormattingInstruction
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, ledger: ledger, gen: gen, opts: opts, log: log, now: time.Now}
}

type SendResult struct {
	Reply     string
	ChatID    uint64
	Credits   int
	ChatTitle string
	MessageID uint64
}

// HandleSend runs one exchange: credit gate, chat resolution, user message, generation,
// normalization, then the AI message, chat summary and credit decrement in one transaction.
// If generation or the commit fails, the user message is kept but marked orphaned.
// The exchange ignores cancellation of ctx; the generator's timeout bounds it instead.
func (s *Service) HandleSend(ctx context.Context, userID uint64, chatID *uint64, text string) (*SendResult, error) {
	defer logging.Timed(s.log, "HandleSend", zap.Uint64("user_id", userID))()
	ctx = context.WithoutCancel(ctx)

	if strings.TrimSpace(text) == "" {
		return nil, apperr.Validation("Message is required")
	}

	res, err := s.ledger.CheckAndReserve(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !res.OK {
		return nil, apperr.InsufficientCredits()
	}

	chat, created, err := s.repo.ResolveOrCreate(ctx, userID, chatID, text, s.opts.HistoryLimit, s.now())
	if err != nil {
		return nil, err
	}

	userMsg, err := s.repo.AppendMessage(ctx, chat.ID, SenderUser, text)
	if err != nil {
		return nil, err
	}

	req := ai.GenerateRequest{Prompt: text, Instruction: s.opts.Instruction}
	history := historyFrom(chat.Messages)
	if s.opts.HistoryMode == HistoryAugmented {
		req.History = history
	}
	s.log.Debug("exchange started",
		zap.Uint64("chat_id", chat.ID),
		zap.Bool("new_chat", created),
		zap.Int("history", len(history)),
		zap.String("history_mode", string(s.opts.HistoryMode)),
	)

	raw, err := s.gen.Generate(ctx, req)
	if err != nil {
		s.orphan(ctx, userMsg.ID)
		s.log.Warn("generation failed", zap.Uint64("chat_id", chat.ID), zap.Error(err))
		if !errors.Is(err, apperr.ErrGeneration) {
			err = apperr.Generation("AI generation failed", err)
		}
		return nil, err
	}

	parsed := ParseReply(raw)
	reply := parsed.Normalize()

	out := &SendResult{Reply: reply, ChatID: chat.ID, ChatTitle: chat.Title}
	err = s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		aiMsg, err := repo.AppendMessage(ctx, chat.ID, SenderAI, reply)
		if err != nil {
			return err
		}
		if err := repo.UpdateSummary(ctx, chat.ID, reply, s.now()); err != nil {
			return err
		}
		remaining, err := s.ledger.WithTx(tx).Decrement(ctx, userID)
		if err != nil {
			return err
		}

		out.MessageID = aiMsg.ID
		out.Credits = remaining
		return nil
	})
	if err != nil {
		s.orphan(ctx, userMsg.ID)
		return nil, apperr.Storage(err)
	}

	s.log.Info("exchange completed",
		zap.Uint64("user_id", userID),
		zap.Uint64("chat_id", chat.ID),
		zap.Stringer("kind", parsed.Kind),
		zap.Int("credits", out.Credits),
	)
	return out, nil
}

// orphan flags the user message of an exchange that did not complete.
func (s *Service) orphan(ctx context.Context, messageID uint64) {
	if err := s.repo.MarkOrphaned(ctx, messageID); err != nil {
		s.log.Error("mark message orphaned", zap.Uint64("message_id", messageID), zap.Error(err))
	}
}

// historyFrom turns newest-first messages into chronological provider turns.
func historyFrom(msgs []Message) []ai.Message {
	out := make([]ai.Message, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		role := ai.RoleUser
		if msgs[i].Sender == SenderAI {
			role = ai.RoleAssistant
		}
		out = append(out, ai.Message{Role: role, Content: msgs[i].Text})
	}
	return out
}

func (s *Service) ListChats(ctx context.Context, userID uint64) ([]Summary, error) {
	return s.repo.ListByUser(ctx, userID)
}

// GetChat returns the chat and its messages oldest first.
func (s *Service) GetChat(ctx context.Context, userID, chatID uint64) (*Chat, []Message, error) {
	c, err := s.repo.GetChat(ctx, chatID, userID)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := s.repo.GetMessages(ctx, chatID, userID)
	if err != nil {
		return nil, nil, err
	}
	return c, msgs, nil
}

func (s *Service) DeleteChat(ctx context.Context, userID, chatID uint64) error {
	if err := s.repo.DeleteChat(ctx, chatID, userID); err != nil {
		return err
	}
	s.log.Info("chat deleted", zap.Uint64("user_id", userID), zap.Uint64("chat_id", chatID))
	return nil
}
