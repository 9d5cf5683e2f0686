package advisory

import "errors"

var (
	// ErrTimeout 表示轮询预算耗尽仍未等到顾问回复。
	ErrTimeout = errors.New("advisory: provider response timeout")
	// ErrMalformed 表示顾问回复不是合法JSON或不满足协议约定，
	// 该错误立即终止周期，不在轮询预算内重试。
	ErrMalformed = errors.New("advisory: malformed provider response")
)
