package tgui

import (
	"errors"
	"strings"
)

// MaxCallbackDataLen is Telegram's callback_data size limit in bytes.
const MaxCallbackDataLen = 64

var ErrCallbackDataTooLong = errors.New("tgui: callback_data too long")

// Data joins callback parts with ':' and checks the size limit.
func Data(parts ...string) (string, error) {
	s := strings.Join(parts, ":")
	if len(s) > MaxCallbackDataLen {
		return "", ErrCallbackDataTooLong
	}
	return s, nil
}

// SplitData is the inverse of Data.
func SplitData(data string) []string {
	data = strings.TrimSpace(data)
	if data == "" {
		return nil
	}
	return strings.Split(data, ":")
}
