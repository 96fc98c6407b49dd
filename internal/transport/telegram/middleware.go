package telegram

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"gopkg.in/telebot.v4"
)

// Recover turns a handler panic into an error. onError defaults to logging it.
func Recover(onError ...func(error, telebot.Context)) telebot.MiddlewareFunc {
	handleError := func(err error, _ telebot.Context) {
		log.Printf("recovered from panic: %v", err)
	}
	if len(onError) > 0 {
		handleError = onError[0]
	}

	return func(next telebot.HandlerFunc) telebot.HandlerFunc {
		return func(c telebot.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					var e error
					switch x := r.(type) {
					case error:
						e = x
					case string:
						e = errors.New(x)
					default:
						e = fmt.Errorf("panic: %v", x)
					}
					handleError(e, c)
					err = e
				}
			}()
			return next(c)
		}
	}
}

// Logger dumps every incoming update as indented JSON.
func Logger(logger ...*log.Logger) telebot.MiddlewareFunc {
	l := log.Default()
	if len(logger) > 0 {
		l = logger[0]
	}
	return func(next telebot.HandlerFunc) telebot.HandlerFunc {
		return func(c telebot.Context) error {
			data, _ := json.MarshalIndent(c.Update(), "", "  ")
			l.Println(string(data))
			return next(c)
		}
	}
}
