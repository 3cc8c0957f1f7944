package repository

import (
	"errors"

	"github.com/giantcranberry/Newsworthy-sub000/internal/domain"
)

var (
	// ErrNotFound запись не найдена
	ErrNotFound = domain.ErrNotFound

	// ErrDuplicate дубликат записи
	ErrDuplicate = errors.New("duplicate record")

	// ErrSerialization транзакция не прошла сериализацию, ее можно повторить
	ErrSerialization = errors.New("transaction serialization failure")
)
