package utils

import (
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// InitLogger configures the global logrus logger.
func InitLogger(level, environment string) {
	if lvl, err := logrus.ParseLevel(level); err == nil {
		logrus.SetLevel(lvl)
	}
	if environment == "production" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// Logger returns a component-scoped entry.
func Logger(component string) *logrus.Entry {
	return logrus.WithField("component", component)
}

// LogError logs errors with structured context to both console and Sentry
func LogError(errorType string, err error, context map[string]interface{}) {
	log := logrus.WithFields(logrus.Fields{
		"error_type": errorType,
		"error":      err.Error(),
	})

	for k, v := range context {
		log = log.WithField(k, v)
	}

	log.Error("Error occurred")

	// Send to Sentry
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("error_type", errorType)
		for k, v := range context {
			scope.SetExtra(k, v)
		}
		sentry.CaptureException(err)
	})
}

// LogEvent logs events with structured context
func LogEvent(eventType string, data map[string]interface{}) {
	log := logrus.WithFields(logrus.Fields{
		"event_type": eventType,
	})

	for k, v := range data {
		log = log.WithField(k, v)
	}

	log.Info("Event occurred")

	sentry.AddBreadcrumb(&sentry.Breadcrumb{
		Type:      "info",
		Category:  eventType,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// ErrorResponse writes err as a single-line JSON error. Internal errors are
// logged and reported, and the client only sees a generic message.
func ErrorResponse(c *fiber.Ctx, err error) error {
	kind := KindOf(err)
	if kind == KindInternal {
		LogError("internal", err, map[string]interface{}{
			"method": c.Method(),
			"path":   c.Path(),
		})
	}
	return c.Status(kind.Status()).JSON(fiber.Map{
		"error": PublicMessage(err),
	})
}

// FiberErrorHandler is installed as the app-wide handler for errors that
// escape a route, including fiber's own 404/405 errors.
func FiberErrorHandler(c *fiber.Ctx, err error) error {
	if fe, ok := err.(*fiber.Error); ok {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}
	return ErrorResponse(c, err)
}

// ParseUint safely parses a string to uint
func ParseUint(s string) uint {
	i, _ := strconv.ParseUint(s, 10, 32)
	return uint(i)
}

// ParamID reads a positive numeric route parameter.
func ParamID(c *fiber.Ctx, name string) (uint, error) {
	id := ParseUint(c.Params(name))
	if id == 0 {
		return 0, InvalidArgument("Invalid " + name)
	}
	return id, nil
}

// Pointer returns a pointer to the given value
func Pointer[T any](v T) *T {
	return &v
}
