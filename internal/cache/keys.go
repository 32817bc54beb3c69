package cache

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// CohortStatsKey identifies the cached statistics of one cohort. version
// changes whenever the race's results are re-imported, which retires
// stale entries without an explicit delete.
func CohortStatsKey(season int, location, gender, division, version string) string {
	return fmt.Sprintf("stats:cohort:s%d:%s:%s:%s:%s",
		season, strings.ToLower(location), strings.ToLower(gender), strings.ToLower(division), version)
}

func ReportStatusKey(reportID uuid.UUID) string {
	return fmt.Sprintf("report:status:%s", reportID)
}

func SnapshotKey(dataID uuid.UUID) string {
	return fmt.Sprintf("snapshot:%s", dataID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
