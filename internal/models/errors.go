package models

import "errors"

var (
	// ErrImportJobNotFound 导入任务不存在错误
	ErrImportJobNotFound = errors.New("import job not found")

	// ErrNoFlashcards 文本中没有可用的闪卡
	ErrNoFlashcards = errors.New("no flashcards found in text")

	// ErrAnkiUnavailable 无法连接AnkiConnect
	ErrAnkiUnavailable = errors.New("ankiconnect is unavailable")

	// ErrDeckCreation 创建牌组失败
	ErrDeckCreation = errors.New("failed to create deck")
)

// ErrInvalidRequest 导入请求参数无效
var ErrInvalidRequest = errors.New("invalid import request")
