package moderation

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"tg-combo-bot/internal/domain"
	"tg-combo-bot/internal/infra/metrics"
)

// Service выполняет действия модераторов над заявками.
type Service struct {
	subs      domain.SubmissionRepo
	publisher domain.Publisher
	sender    domain.Sender
	admins    domain.AdminSet
	log       zerolog.Logger
}

// NewService создаёт сервис модерации.
func NewService(subs domain.SubmissionRepo, publisher domain.Publisher, sender domain.Sender, admins domain.AdminSet, log zerolog.Logger) *Service {
	return &Service{subs: subs, publisher: publisher, sender: sender, admins: admins, log: log}
}

// Result — подтверждение выполненного действия для модератора.
type Result struct {
	SubmissionID   string
	Nickname       string
	PeopleCount    int
	DeliverySource string
}

// Approve публикует заявку в канал и переводит её в approved.
// Сбой публикации фатален для шага: статус не меняется.
func (s *Service) Approve(ctx context.Context, actorID int64, submissionID string) (Result, error) {
	if !s.admins.Contains(actorID) {
		return Result{}, domain.ErrNotAllowed
	}

	sub, err := s.subs.GetBySubmissionID(ctx, submissionID)
	if err != nil {
		return Result{}, err
	}
	if sub.Status != domain.StatusPending {
		return Result{}, domain.ErrInvalidState
	}

	images, err := s.subs.ListImages(ctx, submissionID)
	if err != nil {
		return Result{}, fmt.Errorf("получение фото: %w", err)
	}

	photos := buildAlbum(sub, images)
	postID, err := s.publisher.PublishAlbum(ctx, photos)
	metrics.IncModerationAction("approve", err)
	if err != nil {
		s.log.Error().Err(err).Str("submission_id", submissionID).Int64("admin", actorID).Msg("не удалось опубликовать пост")
		return Result{}, fmt.Errorf("публикация в канал: %w", err)
	}

	if err := s.subs.MarkApproved(ctx, submissionID, postID); err != nil {
		return Result{}, err
	}

	// Уведомление автора best-effort: сбой не откатывает одобрение.
	if err := s.sender.SendText(ctx, sub.TGUserID, "Your food combo submission has been approved and published to the channel!"); err != nil {
		s.log.Error().Err(err).Int64("user", sub.TGUserID).Str("submission_id", submissionID).Msg("не удалось уведомить автора об одобрении")
	}

	return result(sub), nil
}

// Reject отклоняет pending-заявку.
func (s *Service) Reject(ctx context.Context, actorID int64, submissionID string) (Result, error) {
	if !s.admins.Contains(actorID) {
		return Result{}, domain.ErrNotAllowed
	}

	sub, err := s.subs.GetBySubmissionID(ctx, submissionID)
	if err != nil {
		return Result{}, err
	}
	if sub.Status != domain.StatusPending {
		return Result{}, domain.ErrInvalidState
	}

	err = s.subs.MarkRejected(ctx, submissionID)
	metrics.IncModerationAction("reject", err)
	if err != nil {
		return Result{}, err
	}

	if err := s.sender.SendText(ctx, sub.TGUserID, "Your food combo submission was not approved."); err != nil {
		s.log.Error().Err(err).Int64("user", sub.TGUserID).Str("submission_id", submissionID).Msg("не удалось уведомить автора об отказе")
	}

	return result(sub), nil
}

// Delete удаляет опубликованный пост из канала. Сбой транспорта оставляет
// запись нетронутой.
func (s *Service) Delete(ctx context.Context, actorID int64, submissionID string) error {
	if !s.admins.Contains(actorID) {
		return domain.ErrNotAllowed
	}

	sub, err := s.subs.GetBySubmissionID(ctx, submissionID)
	if err != nil {
		return err
	}
	if sub.Status != domain.StatusApproved || sub.ChannelPostID == nil {
		return domain.ErrInvalidState
	}

	err = s.publisher.DeletePost(ctx, *sub.ChannelPostID)
	metrics.IncModerationAction("delete", err)
	if err != nil {
		s.log.Error().Err(err).Str("submission_id", submissionID).Int64("admin", actorID).Msg("не удалось удалить пост из канала")
		return fmt.Errorf("удаление из канала: %w", err)
	}

	return s.subs.MarkDeleted(ctx, submissionID)
}

// ListPending возвращает все заявки в статусе pending.
func (s *Service) ListPending(ctx context.Context, actorID int64) ([]domain.Submission, error) {
	if !s.admins.Contains(actorID) {
		return nil, domain.ErrNotAllowed
	}
	return s.subs.ListByStatus(ctx, domain.StatusPending)
}

// buildAlbum собирает альбом: подпись на первом фото комбо, остальные фото
// и чек без подписи, чек последним.
func buildAlbum(sub domain.Submission, images []domain.Image) []domain.AlbumPhoto {
	caption := fmt.Sprintf(
		"🍽️ <b>Food Combo Submission</b> 🚀\n\n"+
			"👤 <b>Nickname:</b> %s\n"+
			"📍 <b>Delivery From:</b> %s\n"+
			"👥 <b>Serves:</b> %d\n\n"+
			"📸 <b>Check out my food combo!</b> 😍",
		sub.Nickname, sub.DeliverySource, sub.PeopleCount,
	)

	var photos []domain.AlbumPhoto
	var proof *domain.Image
	for i := range images {
		if images[i].IsProof {
			proof = &images[i]
			continue
		}
		photo := domain.AlbumPhoto{FileID: images[i].FileID}
		if len(photos) == 0 {
			photo.Caption = caption
		}
		photos = append(photos, photo)
	}
	if proof != nil {
		photos = append(photos, domain.AlbumPhoto{FileID: proof.FileID})
	}
	return photos
}

func result(sub domain.Submission) Result {
	return Result{
		SubmissionID:   sub.SubmissionID,
		Nickname:       sub.Nickname,
		PeopleCount:    sub.PeopleCount,
		DeliverySource: sub.DeliverySource,
	}
}
