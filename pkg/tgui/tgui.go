package tgui

import (
	tele "gopkg.in/telebot.v4"
)

// Button is a callback button.
type Button = tele.Btn

// Inline is a small builder for inline keyboards.
type Inline struct {
	rm   *tele.ReplyMarkup
	rows []tele.Row
}

func NewInline() *Inline {
	return &Inline{rm: &tele.ReplyMarkup{}}
}

// Row appends one row of buttons.
func (i *Inline) Row(btn ...tele.Btn) *Inline {
	if len(btn) == 0 {
		return i
	}
	i.rows = append(i.rows, i.rm.Row(btn...))
	i.rm.Inline(i.rows...)
	return i
}

// Rows appends one single-button row per button.
func (i *Inline) Rows(btn ...tele.Btn) *Inline {
	for _, b := range btn {
		i.Row(b)
	}
	return i
}

// Len reports the number of rows.
func (i *Inline) Len() int { return len(i.rows) }

func (i *Inline) Markup() *tele.ReplyMarkup { return i.rm }

// Btn creates a callback button with raw callback data.
func Btn(text, data string) tele.Btn {
	return tele.Btn{Text: text, Data: data}
}

// Confirm builds a two-row yes/no keyboard.
func Confirm(yes, no tele.Btn) *Inline {
	return NewInline().Row(yes).Row(no)
}
