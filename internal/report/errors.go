package report

import "errors"

var (
	// ErrDataUnavailable means the athlete's own result could not be loaded.
	ErrDataUnavailable = errors.New("未找到运动员数据")

	ErrGenerationInProgress = errors.New("report generation already in progress")
	ErrAlreadyFinished      = errors.New("report already finished; create it again with force_regenerate")
	ErrNoSectionOutput      = errors.New("no section produced output")
)
