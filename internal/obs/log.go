package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

var (
	initLogger sync.Once
	logger     *log.Logger
)

// Logger returns the process-wide logger. Lines go to stdout with no prefix
// so every record is a bare JSON object a collector can ingest as-is.
func Logger() *log.Logger {
	initLogger.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogRequest marshals one log record to JSON and emits it on its own line.
func LogRequest(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"ts":"error","level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}
