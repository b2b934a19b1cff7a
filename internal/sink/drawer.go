package sink

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"time"

	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"
	"periph.io/x/extra/devices/screen"
	"periph.io/x/host/v3"

	"github.com/dokzlo13/huestrip/internal/frame"
)

// Drawer renders frames onto a periph display device: a WS281x strip behind an
// SPI port, or an ANSI terminal preview.
type Drawer struct {
	name     string
	dev      display.Drawer
	closer   func() error
	minDelay time.Duration
	box      *mailbox
}

// NewDrawer wraps dev. maxFPS caps how often the device is redrawn, 0 = no cap.
func NewDrawer(name string, dev display.Drawer, maxFPS int, closer func() error) *Drawer {
	var minDelay time.Duration
	if maxFPS > 0 {
		minDelay = time.Second / time.Duration(maxFPS)
	}
	return &Drawer{
		name:     name,
		dev:      dev,
		closer:   closer,
		minDelay: minDelay,
		box:      newMailbox(),
	}
}

// NewSPI opens an SPI port and drives a WS281x strip of n pixels on it.
// An empty port selects the first one available.
func NewSPI(port string, n int, freqKHz int) (*Drawer, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	p, err := spireg.Open(port)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %q: %w", port, err)
	}

	opts := nrzled.Opts{
		NumPixels: n,
		Channels:  3,
		Freq:      physic.Frequency(freqKHz) * physic.KiloHertz,
	}
	dev, err := nrzled.NewSPI(p, &opts)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to create nrzled device: %w", err)
	}

	return NewDrawer("spi", dev, 0, closeAll(dev, p)), nil
}

// NewConsole previews a strip of n pixels in the terminal.
func NewConsole(n int, maxFPS int) *Drawer {
	dev := screen.New(n)
	return NewDrawer("console", dev, maxFPS, dev.Halt)
}

func closeAll(dev display.Drawer, p spi.PortCloser) func() error {
	return func() error {
		err := dev.Halt()
		if cerr := p.Close(); err == nil {
			err = cerr
		}
		return err
	}
}

// Name implements Sink.
func (d *Drawer) Name() string { return d.name }

// Emit implements frame.Sink.
func (d *Drawer) Emit(f frame.Frame) {
	d.box.put(f)
}

// Run draws frames until ctx is cancelled, then draws the last pending frame
// and halts the device.
func (d *Drawer) Run(ctx context.Context) error {
	defer func() {
		if d.closer != nil {
			if err := d.closer(); err != nil {
				log.Warn().Err(err).Str("sink", d.name).Msg("Failed to release display device")
			}
		}
	}()

	var (
		last    time.Time
		failing bool
		held    *frame.Frame
		flush   <-chan time.Time
	)

	show := func(f frame.Frame) {
		last = time.Now()
		held = nil
		err := d.draw(f)
		switch {
		case err != nil && !failing:
			log.Warn().Err(err).Str("sink", d.name).Msg("Failed to draw frame")
			failing = true
		case err == nil:
			failing = false
		}
	}

	for {
		select {
		case <-ctx.Done():
			if pending, ok := d.box.take(); ok {
				_ = d.draw(pending)
			} else if held != nil {
				_ = d.draw(*held)
			}
			return nil

		case f := <-d.box.C():
			// Over the FPS cap the newest frame is held and drawn once the cap allows.
			if wait := d.minDelay - time.Since(last); d.minDelay > 0 && wait > 0 {
				held = &f
				if flush == nil {
					flush = time.After(wait)
				}
				continue
			}
			show(f)

		case <-flush:
			flush = nil
			if held != nil {
				show(*held)
			}
		}
	}
}

func (d *Drawer) draw(f frame.Frame) error {
	img := FrameImage(f)
	return d.dev.Draw(d.dev.Bounds(), img, image.Point{})
}

// FrameImage lays a frame out as a one-pixel-high image, channels rounded and
// clamped to bytes.
func FrameImage(f frame.Frame) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, len(f.Colors), 1))
	for i, c := range f.Colors {
		img.SetNRGBA(i, 0, color.NRGBA{
			R: toByte(c.R),
			G: toByte(c.G),
			B: toByte(c.B),
			A: 255,
		})
	}
	return img
}

func toByte(v float64) uint8 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(math.Round(v))
}
