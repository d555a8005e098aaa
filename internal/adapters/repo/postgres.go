package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tg-combo-bot/internal/domain"
	"tg-combo-bot/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.UserRepo       = (*Postgres)(nil)
	_ domain.SubmissionRepo = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// UpsertByTGID регистрирует пользователя при первом контакте.
func (p *Postgres) UpsertByTGID(ctx context.Context, tgUserID int64) (domain.User, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var (
		user     domain.User
		nickname sql.NullString
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO users (tg_user_id)
VALUES ($1)
ON CONFLICT (tg_user_id) DO UPDATE SET tg_user_id = EXCLUDED.tg_user_id
RETURNING id, tg_user_id, nickname, joined_at
`, tgUserID).Scan(&user.ID, &user.TGUserID, &nickname, &user.JoinedAt)
	metrics.ObserveNetworkRequest("postgres", "users_upsert", "users", start, err)
	if err != nil {
		return domain.User{}, err
	}
	if nickname.Valid {
		user.Nickname = nickname.String
	}
	return user, nil
}

// GetByTGID возвращает пользователя по Telegram ID.
func (p *Postgres) GetByTGID(ctx context.Context, tgUserID int64) (domain.User, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var (
		user     domain.User
		nickname sql.NullString
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, tg_user_id, nickname, joined_at FROM users WHERE tg_user_id=$1
`, tgUserID).Scan(&user.ID, &user.TGUserID, &nickname, &user.JoinedAt)
	metrics.ObserveNetworkRequest("postgres", "users_get_by_tgid", "users", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	if nickname.Valid {
		user.Nickname = nickname.String
	}
	return user, nil
}

// UpdateNickname сохраняет новый никнейм пользователя.
func (p *Postgres) UpdateNickname(ctx context.Context, tgUserID int64, nickname string) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE users SET nickname=$2 WHERE tg_user_id=$1`, tgUserID, nickname)
	metrics.ObserveNetworkRequest("postgres", "users_update_nickname", "users", start, err)
	return err
}

// CreateWithImages сохраняет заявку и все её фото одной транзакцией.
func (p *Postgres) CreateWithImages(ctx context.Context, sub domain.Submission, images []domain.Image) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "submissions", start, err)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	start = time.Now()
	_, err = tx.Exec(ctx, `
INSERT INTO submissions (submission_id, tg_user_id, nickname, image_count, people_count, delivery_source, status)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, sub.SubmissionID, sub.TGUserID, sub.Nickname, sub.ImageCount, sub.PeopleCount, sub.DeliverySource, sub.Status)
	metrics.ObserveNetworkRequest("postgres", "submissions_insert", "submissions", start, err)
	if err != nil {
		return fmt.Errorf("сохранение заявки: %w", err)
	}

	batch := &pgx.Batch{}
	for _, img := range images {
		var seq any
		if !img.IsProof {
			seq = img.Sequence
		}
		batch.Queue(`
INSERT INTO images (submission_id, file_id, is_proof, sequence)
VALUES ($1,$2,$3,$4)
`, img.SubmissionID, img.FileID, img.IsProof, seq)
	}
	start = time.Now()
	br := tx.SendBatch(ctx, batch)
	for range images {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			metrics.ObserveNetworkRequest("postgres", "images_batch_exec", "images", start, err)
			return fmt.Errorf("сохранение фото: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		metrics.ObserveNetworkRequest("postgres", "images_batch_close", "images", start, err)
		return fmt.Errorf("сохранение фото: %w", err)
	}
	metrics.ObserveNetworkRequest("postgres", "images_send_batch", "images", start, nil)

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "submissions", start, err)
	return err
}

// GetBySubmissionID возвращает заявку по её идентификатору.
func (p *Postgres) GetBySubmissionID(ctx context.Context, submissionID string) (domain.Submission, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var (
		sub    domain.Submission
		postID sql.NullInt64
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, submission_id, tg_user_id, nickname, image_count, people_count, delivery_source, status, created_at, channel_post_id
FROM submissions WHERE submission_id=$1
`, submissionID).Scan(&sub.ID, &sub.SubmissionID, &sub.TGUserID, &sub.Nickname, &sub.ImageCount, &sub.PeopleCount, &sub.DeliverySource, &sub.Status, &sub.CreatedAt, &postID)
	metrics.ObserveNetworkRequest("postgres", "submissions_get", "submissions", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Submission{}, domain.ErrSubmissionNotFound
	}
	if err != nil {
		return domain.Submission{}, err
	}
	if postID.Valid {
		id := postID.Int64
		sub.ChannelPostID = &id
	}
	return sub, nil
}

// ListByStatus возвращает заявки в указанном статусе.
func (p *Postgres) ListByStatus(ctx context.Context, status domain.SubmissionStatus) ([]domain.Submission, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, submission_id, tg_user_id, nickname, image_count, people_count, delivery_source, status, created_at, channel_post_id
FROM submissions WHERE status=$1
ORDER BY created_at
`, status)
	metrics.ObserveNetworkRequest("postgres", "submissions_list_by_status", "submissions", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subs []domain.Submission
	for rows.Next() {
		var (
			sub    domain.Submission
			postID sql.NullInt64
		)
		if err := rows.Scan(&sub.ID, &sub.SubmissionID, &sub.TGUserID, &sub.Nickname, &sub.ImageCount, &sub.PeopleCount, &sub.DeliverySource, &sub.Status, &sub.CreatedAt, &postID); err != nil {
			return nil, err
		}
		if postID.Valid {
			id := postID.Int64
			sub.ChannelPostID = &id
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// ListImages возвращает фото заявки: сначала комбо по порядку, затем чек.
func (p *Postgres) ListImages(ctx context.Context, submissionID string) ([]domain.Image, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, submission_id, file_id, is_proof, COALESCE(sequence, 0)
FROM images WHERE submission_id=$1
ORDER BY is_proof, sequence
`, submissionID)
	metrics.ObserveNetworkRequest("postgres", "images_list", "images", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var images []domain.Image
	for rows.Next() {
		var img domain.Image
		if err := rows.Scan(&img.ID, &img.SubmissionID, &img.FileID, &img.IsProof, &img.Sequence); err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// MarkApproved переводит pending-заявку в approved и записывает ссылку на пост.
// Условие на статус защищает от гонки двух модераторов.
func (p *Postgres) MarkApproved(ctx context.Context, submissionID string, channelPostID int64) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `
UPDATE submissions SET status=$2, channel_post_id=$3
WHERE submission_id=$1 AND status=$4
`, submissionID, domain.StatusApproved, channelPostID, domain.StatusPending)
	metrics.ObserveNetworkRequest("postgres", "submissions_mark_approved", "submissions", start, err)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return domain.ErrInvalidState
	}
	return nil
}

// MarkRejected переводит pending-заявку в rejected.
func (p *Postgres) MarkRejected(ctx context.Context, submissionID string) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `
UPDATE submissions SET status=$2
WHERE submission_id=$1 AND status=$3
`, submissionID, domain.StatusRejected, domain.StatusPending)
	metrics.ObserveNetworkRequest("postgres", "submissions_mark_rejected", "submissions", start, err)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return domain.ErrInvalidState
	}
	return nil
}

// MarkDeleted переводит approved-заявку в deleted и очищает ссылку на пост.
func (p *Postgres) MarkDeleted(ctx context.Context, submissionID string) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `
UPDATE submissions SET status=$2, channel_post_id=NULL
WHERE submission_id=$1 AND status=$3
`, submissionID, domain.StatusDeleted, domain.StatusApproved)
	metrics.ObserveNetworkRequest("postgres", "submissions_mark_deleted", "submissions", start, err)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return domain.ErrInvalidState
	}
	return nil
}
