package validator

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidateStruct checks the `validate` tags of a struct's fields.
// Supported rules: required, email, min=N and max=N (string length).
// The first failing rule is returned as the error.
func ValidateStruct(s any) error {
	v := reflect.ValueOf(s)
	for v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return errors.New("validate: not a struct")
	}

	t := v.Type()
	for i := range t.NumField() {
		tag := t.Field(i).Tag.Get("validate")
		if tag == "" || tag == "-" {
			continue
		}
		for _, rule := range strings.Split(tag, ",") {
			if err := checkRule(t.Field(i).Name, v.Field(i), rule); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkRule(name string, value reflect.Value, rule string) error {
	key, arg, _ := strings.Cut(rule, "=")

	switch key {
	case "required":
		if value.IsZero() {
			return fmt.Errorf("%s is required", name)
		}
	case "email":
		if value.Kind() == reflect.String && !emailRegex.MatchString(value.String()) {
			return fmt.Errorf("%s must be a valid email", name)
		}
	case "min":
		n, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("%s has a malformed min rule", name)
		}
		if value.Kind() == reflect.String && len(value.String()) < n {
			return fmt.Errorf("%s must be at least %d characters", name, n)
		}
	case "max":
		n, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("%s has a malformed max rule", name)
		}
		if value.Kind() == reflect.String && len(value.String()) > n {
			return fmt.Errorf("%s must be at most %d characters", name, n)
		}
	}
	return nil
}
