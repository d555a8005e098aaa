package submission

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"tg-combo-bot/internal/domain"
)

type stubUsers struct {
	user     domain.User
	nickname string
	nickErr  error
	getErr   error
	upserts  int
}

func (s *stubUsers) UpsertByTGID(_ context.Context, tgUserID int64) (domain.User, error) {
	s.upserts++
	u := s.user
	u.TGUserID = tgUserID
	if s.nickname != "" {
		u.Nickname = s.nickname
	}
	return u, nil
}

func (s *stubUsers) GetByTGID(_ context.Context, tgUserID int64) (domain.User, error) {
	if s.getErr != nil {
		return domain.User{}, s.getErr
	}
	u := s.user
	u.TGUserID = tgUserID
	if s.nickname != "" {
		u.Nickname = s.nickname
	}
	return u, nil
}

func (s *stubUsers) UpdateNickname(_ context.Context, _ int64, nickname string) error {
	if s.nickErr != nil {
		return s.nickErr
	}
	s.nickname = nickname
	return nil
}

type stubSubs struct {
	created   []domain.Submission
	images    map[string][]domain.Image
	createErr error
}

func (s *stubSubs) CreateWithImages(_ context.Context, sub domain.Submission, images []domain.Image) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, sub)
	if s.images == nil {
		s.images = make(map[string][]domain.Image)
	}
	s.images[sub.SubmissionID] = images
	return nil
}

func (s *stubSubs) GetBySubmissionID(_ context.Context, submissionID string) (domain.Submission, error) {
	for _, sub := range s.created {
		if sub.SubmissionID == submissionID {
			return sub, nil
		}
	}
	return domain.Submission{}, domain.ErrSubmissionNotFound
}

func (s *stubSubs) ListByStatus(_ context.Context, status domain.SubmissionStatus) ([]domain.Submission, error) {
	var out []domain.Submission
	for _, sub := range s.created {
		if sub.Status == status {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *stubSubs) ListImages(_ context.Context, submissionID string) ([]domain.Image, error) {
	return s.images[submissionID], nil
}

func (s *stubSubs) MarkApproved(_ context.Context, _ string, _ int64) error { return nil }
func (s *stubSubs) MarkRejected(_ context.Context, _ string) error        { return nil }
func (s *stubSubs) MarkDeleted(_ context.Context, _ string) error         { return nil }

type stubQueue struct {
	jobs []domain.NotifyJob
	err  error
}

func (s *stubQueue) Enqueue(_ context.Context, job domain.NotifyJob) error {
	if s.err != nil {
		return s.err
	}
	s.jobs = append(s.jobs, job)
	return nil
}

func (s *stubQueue) Pop(context.Context) (domain.NotifyJob, error) {
	return domain.NotifyJob{}, errors.New("пусто")
}

type stubFanout struct {
	subs []domain.Submission
}

func (s *stubFanout) Fanout(_ context.Context, sub domain.Submission, _ []domain.Image) error {
	s.subs = append(s.subs, sub)
	return nil
}

func newTestEngine(users *stubUsers, subs *stubSubs, queue *stubQueue, fanout *stubFanout) *Engine {
	return NewEngine(users, subs, queue, fanout, NewSources([]string{"wolt", "yandex", "uzum"}), zerolog.Nop())
}

func runToConfirm(t *testing.T, e *Engine, userID int64, images []string, proof string) {
	t.Helper()
	ctx := context.Background()
	if _, err := e.HandleText(ctx, userID, "Alex"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, err := e.HandleText(ctx, userID, "2"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	for _, fileID := range images {
		if _, err := e.HandlePhoto(ctx, userID, fileID); err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
	}
	if _, err := e.HandlePhoto(ctx, userID, proof); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, err := e.HandleText(ctx, userID, "3"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
}

func TestFullSubmissionFlow(t *testing.T) {
	ctx := context.Background()
	users := &stubUsers{}
	subs := &stubSubs{}
	queue := &stubQueue{}
	engine := newTestEngine(users, subs, queue, &stubFanout{})

	reply, err := engine.Begin(ctx, 42)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !strings.Contains(reply.Text, "nickname") {
		t.Fatalf("ожидали запрос никнейма, получили: %s", reply.Text)
	}

	runToConfirm(t, engine, 42, []string{"file_a", "file_b"}, "file_c")
	if users.nickname != "Alex" {
		t.Fatalf("ожидали сохранённый никнейм Alex, получили %q", users.nickname)
	}

	reply, err = engine.SelectSource(ctx, 42, "wolt")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if reply.Keyboard != KeyboardConfirm {
		t.Fatalf("ожидали клавиатуру подтверждения")
	}
	if !strings.Contains(reply.Text, "Delivery Source: Wolt") {
		t.Fatalf("ожидали каноничный источник Wolt в сводке: %s", reply.Text)
	}

	if _, err := engine.Confirm(ctx, 42); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(subs.created) != 1 {
		t.Fatalf("ожидали 1 сохранённую заявку, получили %d", len(subs.created))
	}
	sub := subs.created[0]
	if sub.Status != domain.StatusPending {
		t.Fatalf("ожидали статус pending, получили %s", sub.Status)
	}
	if sub.Nickname != "Alex" || sub.ImageCount != 2 || sub.PeopleCount != 3 || sub.DeliverySource != "Wolt" {
		t.Fatalf("поля заявки не совпали: %+v", sub)
	}

	images := subs.images[sub.SubmissionID]
	if len(images) != 3 {
		t.Fatalf("ожидали 3 фото (2 комбо + чек), получили %d", len(images))
	}
	if images[0].FileID != "file_a" || images[0].Sequence != 1 {
		t.Fatalf("ожидали file_a первым: %+v", images[0])
	}
	if images[1].FileID != "file_b" || images[1].Sequence != 2 {
		t.Fatalf("ожидали file_b вторым: %+v", images[1])
	}
	if !images[2].IsProof || images[2].FileID != "file_c" {
		t.Fatalf("ожидали чек последним: %+v", images[2])
	}

	if len(queue.jobs) != 1 || queue.jobs[0].SubmissionID != sub.SubmissionID {
		t.Fatalf("ожидали задание на рассылку для заявки %s", sub.SubmissionID)
	}
	if engine.InFlight(42) {
		t.Fatalf("ожидали, что черновик удалён после подтверждения")
	}
}

func TestNicknameTooLongReprompts(t *testing.T) {
	ctx := context.Background()
	users := &stubUsers{}
	engine := newTestEngine(users, &stubSubs{}, &stubQueue{}, &stubFanout{})

	if _, err := engine.Begin(ctx, 7); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	long := strings.Repeat("x", domain.NicknameMaxLen+1)
	reply, err := engine.HandleText(ctx, 7, long)
	if err != nil {
		t.Fatalf("ошибка валидации не должна покидать движок: %v", err)
	}
	if !strings.Contains(reply.Text, "between 1 and 30") {
		t.Fatalf("ожидали повторный запрос никнейма: %s", reply.Text)
	}
	if users.nickname != "" {
		t.Fatalf("никнейм не должен был сохраниться, получили %q", users.nickname)
	}

	// Ровно 30 рун проходит.
	ok := strings.Repeat("я", domain.NicknameMaxLen)
	if _, err := engine.HandleText(ctx, 7, ok); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if users.nickname != ok {
		t.Fatalf("ожидали сохранённый никнейм из 30 рун")
	}
}

func TestImageCountValidation(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(&stubUsers{user: domain.User{Nickname: "Alex"}}, &stubSubs{}, &stubQueue{}, &stubFanout{})

	if _, err := engine.Begin(ctx, 7); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	reply, _ := engine.HandleText(ctx, 7, "abc")
	if reply.Text != "Please enter a valid number." {
		t.Fatalf("ожидали повторный запрос числа: %s", reply.Text)
	}
	reply, _ = engine.HandleText(ctx, 7, "0")
	if reply.Text != "Please enter a positive number." {
		t.Fatalf("ожидали требование положительного числа: %s", reply.Text)
	}
	reply, _ = engine.HandleText(ctx, 7, "2")
	if !strings.Contains(reply.Text, "image 1 of 2") {
		t.Fatalf("ожидали переход к загрузке фото: %s", reply.Text)
	}
}

func TestBeginRestartsExistingDraft(t *testing.T) {
	ctx := context.Background()
	users := &stubUsers{}
	subs := &stubSubs{}
	engine := newTestEngine(users, subs, &stubQueue{}, &stubFanout{})

	if _, err := engine.Begin(ctx, 42); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	runToConfirm(t, engine, 42, []string{"old_a", "old_b"}, "old_c")

	// Повторный Begin посреди диалога начинает поток заново.
	reply, err := engine.Begin(ctx, 42)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !strings.Contains(reply.Text, "Welcome back, Alex!") {
		t.Fatalf("ожидали перезапуск с сохранённым никнеймом: %s", reply.Text)
	}

	if _, err := engine.HandleText(ctx, 42, "1"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, err := engine.HandlePhoto(ctx, 42, "new_a"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, err := engine.HandlePhoto(ctx, 42, "new_proof"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, err := engine.HandleText(ctx, 42, "2"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	reply, err = engine.SelectSource(ctx, 42, "wolt")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !strings.Contains(reply.Text, "Number of Images: 1") {
		t.Fatalf("старый черновик не должен просачиваться в новый: %s", reply.Text)
	}
	if _, err := engine.Confirm(ctx, 42); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	if len(subs.created) != 1 {
		t.Fatalf("ожидали 1 заявку, получили %d", len(subs.created))
	}
	images := subs.images[subs.created[0].SubmissionID]
	if len(images) != 2 {
		t.Fatalf("ожидали 2 фото нового черновика, получили %d", len(images))
	}
	if images[0].FileID != "new_a" || images[1].FileID != "new_proof" {
		t.Fatalf("фото старого черновика не должны сохраняться: %+v", images)
	}
}

func TestResumeUsesStoredNickname(t *testing.T) {
	ctx := context.Background()
	users := &stubUsers{user: domain.User{Nickname: "Alex"}}
	engine := newTestEngine(users, &stubSubs{}, &stubQueue{}, &stubFanout{})

	reply, err := engine.Resume(ctx, 42)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !strings.Contains(reply.Text, "Welcome back, Alex!") {
		t.Fatalf("ожидали приветствие по сохранённому никнейму: %s", reply.Text)
	}
	if users.upserts != 0 {
		t.Fatalf("Resume не должен перезаписывать пользователя, upsert вызван %d раз", users.upserts)
	}
}

func TestResumeUnknownUserRegisters(t *testing.T) {
	ctx := context.Background()
	users := &stubUsers{getErr: domain.ErrUserNotFound}
	engine := newTestEngine(users, &stubSubs{}, &stubQueue{}, &stubFanout{})

	reply, err := engine.Resume(ctx, 42)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !strings.Contains(reply.Text, "provide a nickname") {
		t.Fatalf("незнакомый пользователь начинает с никнейма: %s", reply.Text)
	}
	if users.upserts != 1 {
		t.Fatalf("ожидали регистрацию через Begin, upsert вызван %d раз", users.upserts)
	}
}

func TestWelcomeBackSkipsNickname(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(&stubUsers{user: domain.User{Nickname: "Alex"}}, &stubSubs{}, &stubQueue{}, &stubFanout{})

	reply, err := engine.Begin(ctx, 7)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !strings.Contains(reply.Text, "Welcome back, Alex!") {
		t.Fatalf("ожидали приветствие по сохранённому никнейму: %s", reply.Text)
	}
}

func TestConfirmKeepsDraftOnStorageError(t *testing.T) {
	ctx := context.Background()
	subs := &stubSubs{createErr: errors.New("БД недоступна")}
	queue := &stubQueue{}
	engine := newTestEngine(&stubUsers{}, subs, queue, &stubFanout{})

	if _, err := engine.Begin(ctx, 42); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	runToConfirm(t, engine, 42, []string{"a", "b"}, "c")
	if _, err := engine.SelectSource(ctx, 42, "uzum"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	reply, err := engine.Confirm(ctx, 42)
	if err == nil {
		t.Fatalf("ожидали ошибку сохранения")
	}
	if !strings.Contains(reply.Text, "Could not save") {
		t.Fatalf("ожидали сообщение об ошибке: %s", reply.Text)
	}
	if len(queue.jobs) != 0 {
		t.Fatalf("рассылка не должна запускаться без коммита")
	}
	if !engine.InFlight(42) {
		t.Fatalf("черновик должен сохраниться для повторной попытки")
	}

	// Повторное подтверждение после восстановления БД проходит.
	subs.createErr = nil
	if _, err := engine.Confirm(ctx, 42); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(subs.created) != 1 {
		t.Fatalf("ожидали 1 заявку после повторной попытки")
	}
}

func TestQueueFailureFallsBackToFanout(t *testing.T) {
	ctx := context.Background()
	subs := &stubSubs{}
	fanout := &stubFanout{}
	engine := newTestEngine(&stubUsers{}, subs, &stubQueue{err: errors.New("redis недоступен")}, fanout)

	if _, err := engine.Begin(ctx, 42); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	runToConfirm(t, engine, 42, []string{"a", "b"}, "c")
	if _, err := engine.SelectSource(ctx, 42, "yandex"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, err := engine.Confirm(ctx, 42); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(fanout.subs) != 1 {
		t.Fatalf("ожидали прямую рассылку при недоступной очереди")
	}
}

func TestUnknownSourceRepeatsKeyboard(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(&stubUsers{}, &stubSubs{}, &stubQueue{}, &stubFanout{})

	if _, err := engine.Begin(ctx, 42); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	runToConfirm(t, engine, 42, []string{"a", "b"}, "c")

	reply, err := engine.SelectSource(ctx, 42, "glovo")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if reply.Keyboard != KeyboardSources {
		t.Fatalf("ожидали повторную клавиатуру источников")
	}
}

func TestCancelDropsDraft(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(&stubUsers{}, &stubSubs{}, &stubQueue{}, &stubFanout{})

	reply, _ := engine.Cancel(ctx, 42)
	if !strings.Contains(reply.Text, "nothing to cancel") {
		t.Fatalf("ожидали ответ про отсутствие черновика: %s", reply.Text)
	}

	if _, err := engine.Begin(ctx, 42); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, err := engine.Cancel(ctx, 42); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if engine.InFlight(42) {
		t.Fatalf("черновик должен быть удалён")
	}
}

func TestTextWithoutDraftPointsToStart(t *testing.T) {
	engine := newTestEngine(&stubUsers{}, &stubSubs{}, &stubQueue{}, &stubFanout{})
	reply, err := engine.HandleText(context.Background(), 42, "привет")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !strings.Contains(reply.Text, "/start") {
		t.Fatalf("ожидали подсказку про /start: %s", reply.Text)
	}
}

func TestSourcesCanonicalization(t *testing.T) {
	sources := NewSources([]string{" Wolt", "yandex", "WOLT", "", "uzum"})
	keys := sources.Keys()
	if len(keys) != 3 {
		t.Fatalf("ожидали 3 уникальных ключа, получили %d", len(keys))
	}
	if keys[0] != "wolt" || keys[1] != "yandex" || keys[2] != "uzum" {
		t.Fatalf("порядок ключей должен следовать конфигурации: %v", keys)
	}
	canonical, ok := sources.Canonical("WOLT ")
	if !ok || canonical != "Wolt" {
		t.Fatalf("ожидали каноничную форму Wolt, получили %q", canonical)
	}
	if _, ok := sources.Canonical("glovo"); ok {
		t.Fatalf("неизвестный ключ не должен проходить")
	}
}
