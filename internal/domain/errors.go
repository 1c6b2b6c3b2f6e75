package domain

import "errors"

// Ошибки операций над письмами. Слой транспорта переводит их в коды ответов.
var (
	// ErrNotFound — запрошенный объект не существует.
	ErrNotFound = errors.New("объект не найден")
	// ErrPreconditionFailed — операция вызвана в недопустимом состоянии письма.
	ErrPreconditionFailed = errors.New("недопустимое состояние письма")
	// ErrConflict — письмо уже зарезервировано другим согласующим.
	ErrConflict = errors.New("письмо зарезервировано другим пользователем")
	// ErrAnalysisFailed — анализ не завершился, письмо возвращено во входящие.
	ErrAnalysisFailed = errors.New("анализ письма не выполнен")
	// ErrDispatchFailed — финальный ответ не отправлен; согласование не откатывается.
	ErrDispatchFailed = errors.New("не удалось отправить финальный ответ")
)
