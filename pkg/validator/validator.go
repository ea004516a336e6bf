package validator

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strings"
)

// All returns the first non-nil error.
func All(errors ...error) error {
	for _, err := range errors {
		if err != nil {
			return err
		}
	}
	return nil
}

type Validatable interface {
	Validate() error
}

func Each[T Validatable](items []T, description string) error {
	for i, item := range items {
		if err := item.Validate(); err != nil {
			return fmt.Errorf("%s[%d]: %w", description, i, err)
		}
	}
	return nil
}

func Map[T any](items []T, f func(T, string) error, description string) error {
	for i, item := range items {
		if err := f(item, fmt.Sprintf("%s[%d]", description, i)); err != nil {
			return err
		}
	}
	return nil
}

func NotEmpty(field, description string) error {
	if field == "" {
		return fmt.Errorf("%s must not be empty", description)
	}
	return nil
}

func NoDuplicates[T comparable](slice []T, description string) error {
	seen := make(map[T]struct{})
	for _, v := range slice {
		if _, ok := seen[v]; ok {
			return fmt.Errorf("%s contains duplicate value: %v", description, v)
		}
		seen[v] = struct{}{}
	}
	return nil
}

func SliceHasElements[T comparable](slice []T, allowed []T, description string) error {
	for _, v := range slice {
		if err := MatchesAllowed(v, allowed, description); err != nil {
			return err
		}
	}
	return nil
}

func MatchesAllowed[T comparable](field T, allowed []T, description string) error {
	if !slices.Contains(allowed, field) {
		return fmt.Errorf("%s must be one of %v, got %v", description, allowed, field)
	}
	return nil
}

// HasNoTemplateTags rejects values containing variable or tag delimiters.
func HasNoTemplateTags(field string, description string) error {
	if field != "" && (strings.Contains(field, "{{") || strings.Contains(field, "{%")) {
		return fmt.Errorf("%s must not contain template tags", description)
	}
	return nil
}

// HTTPURL accepts an empty string or an absolute http(s) URL.
func HTTPURL(field, description string) error {
	if field == "" {
		return nil
	}
	u, err := url.Parse(field)
	if err != nil {
		return fmt.Errorf("%s: %w", description, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) url, got %q", description, field)
	}
	return nil
}

func IsDir(field, description string) error {
	st, err := os.Stat(field)
	if err != nil {
		return fmt.Errorf("%s: %w", description, err)
	}
	if !st.IsDir() {
		return fmt.Errorf("%s: %s is not a directory", description, field)
	}
	return nil
}

func IsFile(field, description string) error {
	st, err := os.Stat(field)
	if err != nil {
		return fmt.Errorf("%s: %w", description, err)
	}
	if st.IsDir() {
		return fmt.Errorf("%s: %s is a directory", description, field)
	}
	return nil
}
