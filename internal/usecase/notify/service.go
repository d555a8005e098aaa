package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tg-combo-bot/internal/domain"
	"tg-combo-bot/internal/infra/metrics"
)

// Service рассылает новые заявки модераторам. Доставка каждому модератору
// независима: сбой у одного не останавливает остальных.
type Service struct {
	subs   domain.SubmissionRepo
	sender domain.Sender
	admins domain.AdminSet
	log    zerolog.Logger
}

// NewService создаёт сервис рассылки.
func NewService(subs domain.SubmissionRepo, sender domain.Sender, admins domain.AdminSet, log zerolog.Logger) *Service {
	return &Service{subs: subs, sender: sender, admins: admins, log: log}
}

// popBackoff пауза перед повторным опросом после сбоя бекенда очереди.
const popBackoff = time.Second

// Run читает задания из очереди до отмены контекста.
func (s *Service) Run(ctx context.Context, queue domain.NotifyQueue) {
	for {
		job, err := queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			s.log.Error().Err(err).Msg("не удалось прочитать задание из очереди")
			select {
			case <-ctx.Done():
				return
			case <-time.After(popBackoff):
			}
			continue
		}
		if err := s.NotifyByID(ctx, job.SubmissionID); err != nil {
			s.log.Error().Err(err).Str("submission_id", job.SubmissionID).Msg("не удалось обработать задание")
		}
	}
}

// NotifyByID загружает заявку и запускает рассылку.
func (s *Service) NotifyByID(ctx context.Context, submissionID string) error {
	sub, err := s.subs.GetBySubmissionID(ctx, submissionID)
	if err != nil {
		return fmt.Errorf("получение заявки: %w", err)
	}
	images, err := s.subs.ListImages(ctx, submissionID)
	if err != nil {
		return fmt.Errorf("получение фото: %w", err)
	}
	return s.Fanout(ctx, sub, images)
}

// Fanout отправляет каждому модератору сводку, фото комбо по порядку,
// чек и кнопки approve/reject.
func (s *Service) Fanout(ctx context.Context, sub domain.Submission, images []domain.Image) error {
	summary := fmt.Sprintf(
		"New submission received (ID: %s):\n\n"+
			"Nickname: %s\n"+
			"Number of People: %d\n"+
			"Delivery Source: %s",
		sub.SubmissionID, sub.Nickname, sub.PeopleCount, sub.DeliverySource,
	)
	for _, adminID := range s.admins.IDs() {
		if err := s.notifyOne(ctx, adminID, sub, images, summary); err != nil {
			metrics.NotifyErrors.Inc()
			s.log.Error().Err(err).
				Int64("admin", adminID).
				Str("submission_id", sub.SubmissionID).
				Msg("не удалось уведомить модератора")
		}
	}
	return nil
}

func (s *Service) notifyOne(ctx context.Context, adminID int64, sub domain.Submission, images []domain.Image, summary string) error {
	if err := s.sender.SendText(ctx, adminID, summary); err != nil {
		return fmt.Errorf("сводка: %w", err)
	}
	for _, img := range images {
		caption := ""
		if img.IsProof {
			caption = "Receipt image"
		}
		if err := s.sender.SendPhoto(ctx, adminID, img.FileID, caption); err != nil {
			return fmt.Errorf("фото: %w", err)
		}
	}
	if err := s.sender.SendModerationPrompt(ctx, adminID, sub.SubmissionID); err != nil {
		return fmt.Errorf("кнопки действий: %w", err)
	}
	return nil
}
