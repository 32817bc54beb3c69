package section

import (
	"errors"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	ErrUnknownSection   = errors.New("章节配置不存在")
	ErrMissingInput     = errors.New("缺少必需输入数据")
	ErrNoToolCall       = errors.New("LLM 未返回 tool_calls")
	ErrInvalidArguments = errors.New("解析 arguments 失败")

	// ErrSnapshotWrite wraps persistence failures, which abort the report.
	ErrSnapshotWrite = errors.New("snapshot write failed")
)
