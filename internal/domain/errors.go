package domain

import "errors"

var (
	// ErrSubmissionNotFound возвращается, если заявка с указанным ID отсутствует.
	ErrSubmissionNotFound = errors.New("заявка не найдена")
	// ErrInvalidState возвращается при недопустимом переходе статуса заявки.
	ErrInvalidState = errors.New("недопустимый статус заявки для операции")
	// ErrNotAllowed возвращается, когда действие требует прав модератора.
	ErrNotAllowed = errors.New("действие доступно только модераторам")
	// ErrUserNotFound возвращается, если пользователь ещё не известен боту.
	ErrUserNotFound = errors.New("пользователь не найден")
)
