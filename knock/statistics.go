package knock

import (
	"fmt"
	"io"
)

func PrintStatistics(w io.Writer, syncStat *SyncStat) {
	if syncStat == nil {
		return
	}
	_, _ = fmt.Fprintf(w, "Directory users fetched:\t%d\n", syncStat.Fetched)
	_, _ = fmt.Fprintf(w, "Users excluded:\t%d\n", syncStat.Excluded)
	_, _ = fmt.Fprintf(w, "Source users queried:\t%d\n", syncStat.Queried)
	if syncStat.DryRun {
		_, _ = fmt.Fprintf(w, "Users to submit (dry run):\t%d\n", syncStat.Submitted)
	} else {
		_, _ = fmt.Fprintf(w, "Users submitted:\t%d\n", syncStat.Submitted)
	}
	if len(syncStat.Response) > 0 {
		if syncStat.DryRun {
			_, _ = fmt.Fprintf(w, "Payload:\n")
		} else {
			_, _ = fmt.Fprintf(w, "Response:\n")
		}
		_, _ = fmt.Fprintf(w, "%s\n", syncStat.Response)
	}
}
