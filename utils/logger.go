package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

var (
	InfoLogger  = log.New(os.Stdout, "INFO: ", log.Ldate|log.Ltime)
	ErrorLogger = log.New(os.Stderr, "ERROR: ", log.Ldate|log.Ltime)
	DebugLogger = log.New(io.Discard, "DEBUG: ", log.Ldate|log.Ltime)
)

// InitLoggers настраивает логгеры. Если dir задан, логи пишутся
// в info.log, error.log и debug.log внутри него. Отладочный вывод
// включается только при level=debug.
func InitLoggers(dir, level string) error {
	infoOut, errorOut, debugOut := io.Writer(os.Stdout), io.Writer(os.Stderr), io.Writer(os.Stdout)

	if dir != "" {
		// Создаем директорию для логов, если она не существует
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}

		files := make([]io.Writer, 0, 3)
		for _, name := range []string{"info.log", "error.log", "debug.log"} {
			f, err := os.OpenFile(filepath.Join(dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", name, err)
			}
			files = append(files, f)
		}
		infoOut, errorOut, debugOut = files[0], files[1], files[2]
	}

	if !strings.EqualFold(level, "debug") {
		debugOut = io.Discard
	}

	InfoLogger = log.New(infoOut, "INFO: ", log.Ldate|log.Ltime)
	ErrorLogger = log.New(errorOut, "ERROR: ", log.Ldate|log.Ltime)
	DebugLogger = log.New(debugOut, "DEBUG: ", log.Ldate|log.Ltime)
	return nil
}

// LogInfo логирует информационное сообщение
func LogInfo(format string, v ...interface{}) {
	_, file, line, _ := runtime.Caller(1)
	InfoLogger.Printf("%s:%d - %s", filepath.Base(file), line, fmt.Sprintf(format, v...))
}

// LogError логирует сообщение об ошибке
func LogError(format string, v ...interface{}) {
	_, file, line, _ := runtime.Caller(1)
	ErrorLogger.Printf("%s:%d - %s", filepath.Base(file), line, fmt.Sprintf(format, v...))
}

// LogDebug логирует отладочное сообщение
func LogDebug(format string, v ...interface{}) {
	_, file, line, _ := runtime.Caller(1)
	DebugLogger.Printf("%s:%d - %s", filepath.Base(file), line, fmt.Sprintf(format, v...))
}

// LogOperation логирует операцию с длительностью
func LogOperation(operation string, startTime time.Time, err error) {
	duration := time.Since(startTime)
	if err != nil {
		LogError("Operation %s failed after %v: %v", operation, duration, err)
	} else {
		LogInfo("Operation %s completed in %v", operation, duration)
	}
}
