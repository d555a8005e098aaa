package domain

import "time"

// NicknameMaxLen ограничивает длину никнейма пользователя.
const NicknameMaxLen = 30

// SubmissionStatus описывает статус заявки в модерации.
type SubmissionStatus string

const (
	StatusPending  SubmissionStatus = "pending"
	StatusApproved SubmissionStatus = "approved"
	StatusRejected SubmissionStatus = "rejected"
	StatusDeleted  SubmissionStatus = "deleted"
)

// User описывает пользователя Telegram в системе.
type User struct {
	ID       int64
	TGUserID int64
	Nickname string
	JoinedAt time.Time
}

// Submission представляет заявку пользователя на публикацию.
type Submission struct {
	ID             int64
	SubmissionID   string
	TGUserID       int64
	Nickname       string
	ImageCount     int
	PeopleCount    int
	DeliverySource string
	Status         SubmissionStatus
	CreatedAt      time.Time
	ChannelPostID  *int64
}

// Image хранит ссылку на фото заявки. Sequence задан только для
// фотографий комбо, для чека он равен нулю.
type Image struct {
	ID           int64
	SubmissionID string
	FileID       string
	IsProof      bool
	Sequence     int
}

// AlbumPhoto описывает одну позицию альбома для публикации в канал.
type AlbumPhoto struct {
	FileID  string
	Caption string
}

// NotifyJob задание на рассылку новой заявки модераторам.
type NotifyJob struct {
	SubmissionID string    `json:"submission_id"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
}
