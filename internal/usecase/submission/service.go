package submission

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tg-combo-bot/internal/domain"
	"tg-combo-bot/internal/infra/metrics"
)

// Fanout рассылает подтверждённую заявку модераторам. Используется как
// резервный путь, если очередь уведомлений недоступна.
type Fanout interface {
	Fanout(ctx context.Context, sub domain.Submission, images []domain.Image) error
}

// Engine ведёт пользователя по шагам подачи заявки. Все переходы
// для одного пользователя сериализуются общим замком.
type Engine struct {
	users   domain.UserRepo
	subs    domain.SubmissionRepo
	queue   domain.NotifyQueue
	fanout  Fanout
	sources *Sources
	log     zerolog.Logger

	mu     sync.Mutex
	drafts map[int64]*Draft
}

// NewEngine создаёт движок диалога.
func NewEngine(users domain.UserRepo, subs domain.SubmissionRepo, queue domain.NotifyQueue, fanout Fanout, sources *Sources, log zerolog.Logger) *Engine {
	return &Engine{
		users:   users,
		subs:    subs,
		queue:   queue,
		fanout:  fanout,
		sources: sources,
		log:     log,
		drafts:  make(map[int64]*Draft),
	}
}

// Sources возвращает настроенный набор служб доставки для клавиатуры.
func (e *Engine) Sources() *Sources {
	return e.sources
}

// InFlight сообщает, идёт ли сейчас диалог с пользователем.
func (e *Engine) InFlight(userID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.drafts[userID]
	return ok
}

// Begin начинает новый диалог. Существующий черновик отбрасывается:
// поток для пользователя всегда один.
func (e *Engine) Begin(ctx context.Context, userID int64) (Reply, error) {
	user, err := e.users.UpsertByTGID(ctx, userID)
	if err != nil {
		e.log.Error().Err(err).Int64("user", userID).Msg("не удалось зарегистрировать пользователя")
		return Reply{Text: "Something went wrong. Please try again later."}, err
	}
	return e.start(userID, user), nil
}

// Resume начинает диалог по сохранённому профилю, не трогая запись
// пользователя. Незнакомый пользователь регистрируется как в Begin.
func (e *Engine) Resume(ctx context.Context, userID int64) (Reply, error) {
	user, err := e.users.GetByTGID(ctx, userID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return e.Begin(ctx, userID)
	}
	if err != nil {
		e.log.Error().Err(err).Int64("user", userID).Msg("не удалось загрузить пользователя")
		return Reply{Text: "Something went wrong. Please try again later."}, err
	}
	return e.start(userID, user), nil
}

func (e *Engine) start(userID int64, user domain.User) Reply {
	metrics.SubmissionsStarted.Inc()

	e.mu.Lock()
	defer e.mu.Unlock()
	if user.Nickname != "" {
		e.drafts[userID] = &Draft{State: StateImageCount, Nickname: user.Nickname}
		return Reply{Text: fmt.Sprintf(
			"Welcome back, %s! Let's submit your food combo.\n\nHow many pictures do you have of your food combo? (e.g., '3')",
			user.Nickname,
		)}
	}
	e.drafts[userID] = &Draft{State: StateNickname}
	return Reply{Text: "Welcome to the Food Combo Channel Bot! 🍔🍕\n\n" +
		"This bot helps you submit your favorite food combinations to our channel.\n\n" +
		"To get started, please provide a nickname that will be used for your posts."}
}

// ChangeNickname переводит пользователя на шаг ввода нового никнейма.
func (e *Engine) ChangeNickname(ctx context.Context, userID int64) (Reply, error) {
	if _, err := e.users.UpsertByTGID(ctx, userID); err != nil {
		e.log.Error().Err(err).Int64("user", userID).Msg("не удалось зарегистрировать пользователя")
		return Reply{Text: "Something went wrong. Please try again later."}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.drafts[userID] = &Draft{State: StateNickname}
	return Reply{Text: "Please enter your new nickname that will be used for your posts."}, nil
}

// HandleText обрабатывает текстовый ввод пользователя на текущем шаге.
// Ошибки валидации не покидают движок: они превращаются в повторный запрос.
func (e *Engine) HandleText(ctx context.Context, userID int64, text string) (Reply, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	draft, ok := e.drafts[userID]
	if !ok {
		return Reply{Text: "Type /start to begin a new submission."}, nil
	}

	switch draft.State {
	case StateNickname:
		nickname := strings.TrimSpace(text)
		if nickname == "" || len([]rune(nickname)) > domain.NicknameMaxLen {
			return Reply{Text: fmt.Sprintf("Nickname must be between 1 and %d characters. Please try again.", domain.NicknameMaxLen)}, nil
		}
		if err := e.users.UpdateNickname(ctx, userID, nickname); err != nil {
			e.log.Error().Err(err).Int64("user", userID).Msg("не удалось сохранить никнейм")
			return Reply{Text: "Could not save your nickname. Please try again."}, err
		}
		draft.Nickname = nickname
		draft.State = StateImageCount
		return Reply{Text: fmt.Sprintf(
			"Great! Your nickname is set to '%s'.\n\nNow, let's submit your food combo. How many pictures do you have of your food combo? (e.g., '3')",
			nickname,
		)}, nil

	case StateImageCount:
		count, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil {
			return Reply{Text: "Please enter a valid number."}, nil
		}
		if count <= 0 {
			return Reply{Text: "Please enter a positive number."}, nil
		}
		draft.ImageCount = count
		draft.Images = draft.Images[:0]
		draft.State = StateImage
		return Reply{Text: fmt.Sprintf("Please upload image 1 of %d for your food combo.", count)}, nil

	case StatePeopleCount:
		count, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil {
			return Reply{Text: "Please enter a valid number."}, nil
		}
		if count <= 0 {
			return Reply{Text: "Please enter a positive number."}, nil
		}
		draft.PeopleCount = count
		draft.State = StateSource
		return Reply{Text: "Please select the delivery source:", Keyboard: KeyboardSources}, nil

	default:
		return e.reprompt(draft), nil
	}
}

// HandlePhoto обрабатывает присланное фото. Фото ожидается только на шагах
// загрузки комбо и чека.
func (e *Engine) HandlePhoto(ctx context.Context, userID int64, fileID string) (Reply, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	draft, ok := e.drafts[userID]
	if !ok {
		return Reply{Text: "Type /start to begin a new submission."}, nil
	}

	switch draft.State {
	case StateImage:
		draft.Images = append(draft.Images, fileID)
		if len(draft.Images) < draft.ImageCount {
			return Reply{Text: fmt.Sprintf("Please upload image %d of %d for your food combo.", len(draft.Images)+1, draft.ImageCount)}, nil
		}
		draft.State = StateProof
		return Reply{Text: "Now, please upload a photo of your receipt."}, nil

	case StateProof:
		draft.ProofFileID = fileID
		draft.State = StatePeopleCount
		return Reply{Text: "How many people ordered this food combo?"}, nil

	default:
		return e.reprompt(draft), nil
	}
}

// SelectSource фиксирует выбранную службу доставки и показывает сводку.
func (e *Engine) SelectSource(ctx context.Context, userID int64, key string) (Reply, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	draft, ok := e.drafts[userID]
	if !ok || draft.State != StateSource {
		return Reply{Text: "Type /start to begin a new submission."}, nil
	}

	canonical, known := e.sources.Canonical(key)
	if !known {
		return Reply{Text: "Please choose one of the delivery sources below.", Keyboard: KeyboardSources}, nil
	}
	draft.Source = canonical
	draft.State = StateConfirm
	summary := fmt.Sprintf(
		"Please review your submission:\n\n"+
			"Nickname: %s\n"+
			"Number of Images: %d\n"+
			"Number of People: %d\n"+
			"Delivery Source: %s\n\n"+
			"Would you like to submit this post?",
		draft.Nickname, draft.ImageCount, draft.PeopleCount, draft.Source,
	)
	return Reply{Text: summary, Keyboard: KeyboardConfirm}, nil
}

// Confirm сохраняет заявку одной транзакцией и ставит уведомление в очередь.
// Рассылка модераторам выполняется строго после коммита.
func (e *Engine) Confirm(ctx context.Context, userID int64) (Reply, error) {
	e.mu.Lock()
	draft, ok := e.drafts[userID]
	if !ok || draft.State != StateConfirm {
		e.mu.Unlock()
		return Reply{Text: "Type /start to begin a new submission."}, nil
	}

	sub := domain.Submission{
		SubmissionID:   uuid.NewString(),
		TGUserID:       userID,
		Nickname:       draft.Nickname,
		ImageCount:     draft.ImageCount,
		PeopleCount:    draft.PeopleCount,
		DeliverySource: draft.Source,
		Status:         domain.StatusPending,
	}
	images := make([]domain.Image, 0, len(draft.Images)+1)
	for i, fileID := range draft.Images {
		images = append(images, domain.Image{
			SubmissionID: sub.SubmissionID,
			FileID:       fileID,
			Sequence:     i + 1,
		})
	}
	images = append(images, domain.Image{
		SubmissionID: sub.SubmissionID,
		FileID:       draft.ProofFileID,
		IsProof:      true,
	})

	if err := e.subs.CreateWithImages(ctx, sub, images); err != nil {
		// Черновик остаётся, пользователь может подтвердить ещё раз.
		e.mu.Unlock()
		e.log.Error().Err(err).Str("submission_id", sub.SubmissionID).Int64("user", userID).Msg("не удалось сохранить заявку")
		return Reply{Text: "Could not save your submission. Please try again."}, err
	}
	delete(e.drafts, userID)
	e.mu.Unlock()

	metrics.SubmissionsConfirmed.Inc()
	e.notifyModerators(ctx, sub, images)

	return Reply{Text: "Thank you! Your submission has been received and is pending admin approval. " +
		"You'll be notified when it's approved or rejected."}, nil
}

// Cancel отбрасывает черновик из любого состояния. Сохранённые данные
// не затрагиваются.
func (e *Engine) Cancel(ctx context.Context, userID int64) (Reply, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.drafts[userID]; !ok {
		return Reply{Text: "There is nothing to cancel. Type /start to begin."}, nil
	}
	delete(e.drafts, userID)
	metrics.SubmissionsCancelled.Inc()
	return Reply{Text: "Submission cancelled. Type /start to begin again."}, nil
}

func (e *Engine) notifyModerators(ctx context.Context, sub domain.Submission, images []domain.Image) {
	job := domain.NotifyJob{SubmissionID: sub.SubmissionID, EnqueuedAt: time.Now().UTC()}
	if e.queue != nil {
		err := e.queue.Enqueue(ctx, job)
		if err == nil {
			return
		}
		e.log.Warn().Err(err).Str("submission_id", sub.SubmissionID).Msg("очередь недоступна, рассылаем напрямую")
	}
	if e.fanout == nil {
		return
	}
	if err := e.fanout.Fanout(ctx, sub, images); err != nil {
		e.log.Error().Err(err).Str("submission_id", sub.SubmissionID).Msg("не удалось уведомить модераторов")
	}
}

func (e *Engine) reprompt(draft *Draft) Reply {
	switch draft.State {
	case StateNickname:
		return Reply{Text: "Please send a nickname for your posts."}
	case StateImageCount:
		return Reply{Text: "How many pictures do you have of your food combo? (e.g., '3')"}
	case StateImage:
		return Reply{Text: fmt.Sprintf("Please upload image %d of %d for your food combo.", len(draft.Images)+1, draft.ImageCount)}
	case StateProof:
		return Reply{Text: "Please upload a photo of your receipt."}
	case StatePeopleCount:
		return Reply{Text: "How many people ordered this food combo?"}
	case StateSource:
		return Reply{Text: "Please select the delivery source:", Keyboard: KeyboardSources}
	case StateConfirm:
		return Reply{Text: "Please confirm or cancel your submission.", Keyboard: KeyboardConfirm}
	default:
		return Reply{Text: "Type /start to begin a new submission."}
	}
}
