package knock

import (
	"bufio"
	"fmt"
	"github.com/google/uuid"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	LogCategoryDirectory = "directory"
	LogCategorySource    = "source"
)

// RunLog appends the records seen by a run to one file per category per UTC day
type RunLog struct {
	dir   string
	runId string
	now   func() time.Time
}

func NewRunLog(dir string) *RunLog {
	return &RunLog{
		dir:   dir,
		runId: uuid.NewString(),
		now:   time.Now,
	}
}

func (rl *RunLog) RunId() string {
	return rl.runId
}

// Path returns the file for category on the current UTC day
func (rl *RunLog) Path(category string) string {
	var day = rl.now().UTC().Format(time.DateOnly)
	return filepath.Join(rl.dir, fmt.Sprintf("%s-%s.log", day, category))
}

func (rl *RunLog) appendSection(category string, rows [][]string) (err error) {
	if err = os.MkdirAll(rl.dir, 0755); err != nil {
		return
	}
	var f *os.File
	if f, err = os.OpenFile(rl.Path(category), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err != nil {
		return
	}
	defer func() {
		if er1 := f.Close(); er1 != nil && err == nil {
			err = er1
		}
	}()

	var w = bufio.NewWriter(f)
	_, _ = fmt.Fprintf(w, "# %s run=%s records=%d\n", rl.now().UTC().Format(time.RFC3339), rl.runId, len(rows))
	for _, row := range rows {
		var fields = make([]string, len(row))
		for i, v := range row {
			fields[i] = flattenField(v)
		}
		_, _ = w.WriteString(strings.Join(fields, "\t"))
		_ = w.WriteByte('\n')
	}
	err = w.Flush()
	return
}

func (rl *RunLog) WriteDirectory(users []*RemoteUser) (err error) {
	var rows = make([][]string, 0, len(users))
	for _, u := range users {
		rows = append(rows, []string{u.Id, u.Email, u.Name})
	}
	if err = rl.appendSection(LogCategoryDirectory, rows); err != nil {
		err = fmt.Errorf("write %s log: %w", LogCategoryDirectory, err)
	}
	return
}

func (rl *RunLog) WriteSource(users []*SourceUser) (err error) {
	var rows = make([][]string, 0, len(users))
	for _, u := range users {
		rows = append(rows, []string{u.Id, u.Email, u.PreferredLanguage, u.FirstName, u.MiddleName, u.LastName, u.PhoneNumber})
	}
	if err = rl.appendSection(LogCategorySource, rows); err != nil {
		err = fmt.Errorf("write %s log: %w", LogCategorySource, err)
	}
	return
}
