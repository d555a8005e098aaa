package domain

import "context"

// UserRepo управляет пользователями.
type UserRepo interface {
	UpsertByTGID(ctx context.Context, tgUserID int64) (User, error)
	GetByTGID(ctx context.Context, tgUserID int64) (User, error)
	UpdateNickname(ctx context.Context, tgUserID int64, nickname string) error
}

// SubmissionRepo управляет заявками и их фотографиями.
type SubmissionRepo interface {
	// CreateWithImages сохраняет заявку вместе со всеми фото одной транзакцией.
	CreateWithImages(ctx context.Context, sub Submission, images []Image) error
	GetBySubmissionID(ctx context.Context, submissionID string) (Submission, error)
	ListByStatus(ctx context.Context, status SubmissionStatus) ([]Submission, error)
	// ListImages возвращает фото заявки: сначала комбо по возрастанию sequence, затем чек.
	ListImages(ctx context.Context, submissionID string) ([]Image, error)
	// MarkApproved переводит pending-заявку в approved и записывает ссылку на пост.
	MarkApproved(ctx context.Context, submissionID string, channelPostID int64) error
	// MarkRejected переводит pending-заявку в rejected.
	MarkRejected(ctx context.Context, submissionID string) error
	// MarkDeleted переводит approved-заявку в deleted и очищает ссылку на пост.
	MarkDeleted(ctx context.Context, submissionID string) error
}

// Sender отправляет сообщения в личные чаты пользователей и модераторов.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendPhoto(ctx context.Context, chatID int64, fileID, caption string) error
	// SendModerationPrompt отправляет модератору кнопки approve/reject по заявке.
	SendModerationPrompt(ctx context.Context, chatID int64, submissionID string) error
}

// Publisher публикует и удаляет посты в публичном канале.
type Publisher interface {
	// PublishAlbum отправляет альбом одним постом и возвращает ID первого сообщения.
	PublishAlbum(ctx context.Context, photos []AlbumPhoto) (int64, error)
	DeletePost(ctx context.Context, channelPostID int64) error
}

// NotifyQueue очередь заданий на рассылку заявок модераторам.
type NotifyQueue interface {
	Enqueue(ctx context.Context, job NotifyJob) error
	Pop(ctx context.Context) (NotifyJob, error)
}
