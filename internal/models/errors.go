package models

import "errors"

var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrRead              = errors.New("read error")
	ErrEmbedding         = errors.New("embedding error")
	ErrEmptyIndex        = errors.New("empty index")
	ErrNoAnswerFound     = errors.New("no answer found")

	ErrDuplicateBook   = errors.New("book already indexed")
	ErrBookNotFound    = errors.New("book not found")
	ErrInvalidChunking = errors.New("invalid chunking parameters")
	ErrInvalidQuery    = errors.New("invalid query")
)
