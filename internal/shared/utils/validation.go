package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/bytedance/sonic"
)

// Envelope limits
const (
	MaxFrameSize   = 1 << 20  // one envelope on the wire
	MaxContextSize = 64 << 10 // encoded request context, echoed back verbatim
	MaxJSONDepth   = 32       // nesting of command data
)

// Identifier limits
const (
	MaxIDLength      = 128
	MaxCommandLength = 128
)

var (
	// appIDPattern accepts reverse-DNS identifiers such as com.example.notes
	appIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)
	// commandPattern accepts capability.command with optional dotted sub-commands
	commandPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*(\.[a-zA-Z0-9_-]+)+$`)
)

// JSONSizeValidator rejects encoded payloads above a byte limit
type JSONSizeValidator struct {
	maxSize int
}

// NewJSONSizeValidator creates a validator for maxSize bytes
func NewJSONSizeValidator(maxSize int) *JSONSizeValidator {
	return &JSONSizeValidator{maxSize: maxSize}
}

// ValidateSize checks len(data) against the limit
func (v *JSONSizeValidator) ValidateSize(data []byte) error {
	if len(data) > v.maxSize {
		return fmt.Errorf("payload of %d bytes exceeds %d bytes", len(data), v.maxSize)
	}
	return nil
}

// ValidateJSONDepth walks decoded JSON and fails past maxDepth levels
func ValidateJSONDepth(data interface{}, maxDepth int) error {
	return walkDepth(data, 0, maxDepth)
}

func walkDepth(data interface{}, depth, maxDepth int) error {
	if depth > maxDepth {
		return fmt.Errorf("data nesting depth exceeds %d", maxDepth)
	}
	switch v := data.(type) {
	case map[string]interface{}:
		for _, child := range v {
			if err := walkDepth(child, depth+1, maxDepth); err != nil {
				return err
			}
		}
	case []interface{}:
		for _, child := range v {
			if err := walkDepth(child, depth+1, maxDepth); err != nil {
				return err
			}
		}
	}
	return nil
}

// ValidateContext bounds the encoded size of a request context
func ValidateContext(ctx map[string]interface{}) error {
	if len(ctx) == 0 {
		return nil
	}
	data, err := sonic.Marshal(ctx)
	if err != nil {
		return fmt.Errorf("context is not encodable: %w", err)
	}
	if err := NewJSONSizeValidator(MaxContextSize).ValidateSize(data); err != nil {
		return fmt.Errorf("context: %w", err)
	}
	return nil
}

// validIdentifier applies the checks shared by ids and command names
func validIdentifier(field, value string, maxLen int, pattern *regexp.Regexp) error {
	if value == "" {
		return fmt.Errorf("%s is required", field)
	}
	if n := utf8.RuneCountInString(value); n > maxLen {
		return fmt.Errorf("%s is %d characters, limit is %d", field, n, maxLen)
	}
	if strings.ContainsRune(value, 0) || !pattern.MatchString(value) {
		return fmt.Errorf("%s %q contains invalid characters", field, value)
	}
	return nil
}

// ValidateAppID checks a manifest id: letters, digits, dots, hyphens and
// underscores, starting with a letter or digit, with no ".." segment
func ValidateAppID(appID string) error {
	if err := validIdentifier("id", appID, MaxIDLength, appIDPattern); err != nil {
		return err
	}
	if strings.Contains(appID, "..") {
		return fmt.Errorf("id %q must not contain '..'", appID)
	}
	return nil
}

// ValidateCommand checks that cmd has the form capability.command
func ValidateCommand(cmd string) error {
	if err := validIdentifier("cmd", cmd, MaxCommandLength, commandPattern); err != nil {
		return fmt.Errorf("%w (expected capability.command)", err)
	}
	return nil
}
