// Package demo holds the sample host objects served by `capbridge run`.
package demo

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/danmuck/capbridge/internal/host"
)

var ErrBrightnessRange = errors.New("demo: brightness out of range")

type Color struct {
	R uint8
	G uint8
	B uint8
}

// Changed is fired after every state change.
type Changed struct {
	Brightness float64
	Color      Color
	Flashes    int
}

// Lamp is a dimmable light with a flash operation.
type Lamp struct {
	RS_Brightness float64
	RS_Color      Color
	RS_Changed    host.Event[Changed]

	flashes  int
	received atomic.Int64
}

func (l *Lamp) RS_Flash(count int) error {
	if count < 0 {
		return fmt.Errorf("demo: negative flash count %d", count)
	}
	l.flashes += count
	l.changed()
	return nil
}

func (l *Lamp) RS_Dim(level float64) error {
	if level < 0 || level > 1 {
		return ErrBrightnessRange
	}
	l.RS_Brightness = level
	l.changed()
	return nil
}

func (l *Lamp) RS_Paint(c Color) {
	l.RS_Color = c
	l.changed()
}

func (l *Lamp) ParamNames() map[string][]string {
	return map[string][]string{
		"RS_Flash": {"Count"},
		"RS_Dim":   {"Level"},
		"RS_Paint": {"Color"},
	}
}

// OnDataReceived counts remote writes.
func (l *Lamp) OnDataReceived() { l.received.Add(1) }

func (l *Lamp) Flashes() int    { return l.flashes }
func (l *Lamp) Received() int64 { return l.received.Load() }

func (l *Lamp) changed() {
	l.RS_Changed.Emit(Changed{Brightness: l.RS_Brightness, Color: l.RS_Color, Flashes: l.flashes})
}

// NewLamp wraps a fresh Lamp for registration under name.
func NewLamp(name string, opts ...host.Option) (*Lamp, *host.Object, error) {
	l := &Lamp{RS_Brightness: 1, RS_Color: Color{R: 255, G: 200, B: 120}}
	obj, err := host.New(l, append([]host.Option{host.WithName(name)}, opts...)...)
	if err != nil {
		return nil, nil, err
	}
	return l, obj, nil
}
