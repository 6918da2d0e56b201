package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New создает логгер сервиса, пишущий в stdout
func New(level string) *logrus.Logger {
	return NewWithOutput(level, os.Stdout)
}

// NewCLI создает логгер для командной строки: stdout остается под вывод команд
func NewCLI(level string) *logrus.Logger {
	return NewWithOutput(level, os.Stderr)
}

// NewWithOutput создает JSON-логгер с заданным уровнем и выводом
func NewWithOutput(level string, out io.Writer) *logrus.Logger {
	logger := logrus.New()

	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)
	logger.SetOutput(out)

	return logger
}

// Discard логгер для тестов
func Discard() *logrus.Logger {
	return NewWithOutput("panic", io.Discard)
}

// ForOperation добавляет к записи имя операции клиента
func ForOperation(logger logrus.FieldLogger, op string) *logrus.Entry {
	return logger.WithField("operation", op)
}
