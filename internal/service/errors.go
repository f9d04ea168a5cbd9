package service

import "errors"

// ErrCompletionNotConfigured indica que se pidio una operacion asistida por modelo sin completer.
var ErrCompletionNotConfigured = errors.New("completion provider not configured")

// ErrEmptyContent se devuelve al guardar un recuerdo sin texto.
var ErrEmptyContent = errors.New("memory content is empty")

// ErrUnknownEvent se devuelve para tipos de evento de relacion fuera del catalogo.
var ErrUnknownEvent = errors.New("unknown relationship event")
